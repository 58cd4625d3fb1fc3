package patterns

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatcher_Defaults(t *testing.T) {
	m := New()

	tests := []struct {
		name    string
		command string
		want    bool
	}{
		{"claude print invocation", "claude --print fix the tests", true},
		{"claude short flag", "node /usr/local/bin/claude -p refactor", true},
		{"go test", "go test ./... -run TestFoo", true},
		{"log tailer", "tail -f /var/log/agent.log", true},
		{"pytest", "python -m pytest tests/", true},
		{"unrelated daemon", "/usr/sbin/sshd -D", false},
		{"tmux excluded", "tmux new-session claude", false},
		{"desktop app excluded", "/Applications/Claude.app/Contents/MacOS/Claude", false},
		{"grep over patterns excluded", "grep claude --print /tmp/x", false},
		{"case insensitive substring", "CLAUDE --PRINT do it", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := m.Match(tt.command)
			if got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.command, got, tt.want)
			}
			if got && reason == "" {
				t.Error("match must carry a reason")
			}
		})
	}
}

func TestMatcher_AddSubstrings(t *testing.T) {
	m := New()
	if ok, _ := m.Match("my-custom-agent --loop"); ok {
		t.Fatal("unexpected match before extension")
	}
	m.AddSubstrings([]string{"my-custom-agent"})
	if ok, _ := m.Match("my-custom-agent --loop"); !ok {
		t.Error("extended substring did not match")
	}
}

func TestMatcher_NewForSubstrings(t *testing.T) {
	m := NewForSubstrings([]string{"go test"})

	if ok, _ := m.Match("go test ./internal/..."); !ok {
		t.Error("allowlisted substring should match")
	}
	// No defaults: claude invocations are out of scope for this matcher.
	if ok, _ := m.Match("claude --print something"); ok {
		t.Error("non-allowlisted command should not match")
	}
}

func TestMatcher_LoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".drover.yaml")
	content := `reclaim_patterns:
  substrings:
    - my-agent-wrapper
  regexes:
    - 'bun (test|run)\b'
  exclusions:
    - keep-me-alive
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m := New()
	if err := m.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if ok, _ := m.Match("my-agent-wrapper --daemon"); !ok {
		t.Error("config substring did not match")
	}
	if ok, _ := m.Match("bun test src/"); !ok {
		t.Error("config regex did not match")
	}
	if ok, _ := m.Match("claude --print keep-me-alive"); ok {
		t.Error("config exclusion did not veto")
	}
}

func TestMatcher_LoadConfigMissingFile(t *testing.T) {
	m := New()
	if err := m.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("missing config file should not error: %v", err)
	}
}

func TestMatcher_LoadConfigBadRegex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".drover.yaml")
	content := "reclaim_patterns:\n  regexes:\n    - '['\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m := New()
	if err := m.LoadConfig(path); err == nil {
		t.Error("invalid regex in config should error")
	}
}
