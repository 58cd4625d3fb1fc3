// Package patterns matches OS command lines against the set of process
// shapes drover is willing to reclaim. It is the heuristic half of orphan
// detection: a match alone never authorizes a kill, only candidacy.
package patterns

// DefaultSubstrings are command-line substrings for process families drover
// commonly leaks: AI-CLI invocations, long-running test runners, and log
// tailers.
var DefaultSubstrings = []string{
	"claude --print",
	"claude -p ",
	"claude-code",
	"tail -f",
	"jest --watch",
	"vitest",
	"pytest",
}

// DefaultRegexes are anchored patterns for runners whose substrings are too
// generic to match safely.
var DefaultRegexes = []string{
	`(^|/)go test\b`,
	`(^|/)node .*jest\b`,
	`npm (test|run test)\b`,
}

// DefaultExclusions are command-line substrings that disqualify a match.
// These are processes that mention our patterns without being ours, such as
// terminal multiplexers and desktop applications.
var DefaultExclusions = []string{
	"tmux ",
	"/usr/bin/tmux",
	"Claude.app",
	"/Applications/Claude",
	"Claude Helper",
	"grep ",
}

// TestRunnerSubstrings is the deliberately narrow allowlist used by the
// stale-test sweeper. Aggressive force-kill is safe only because this set
// is high-confidence.
var TestRunnerSubstrings = []string{
	"go test",
	"jest",
	"vitest",
	"pytest",
	"npm test",
}
