package patterns

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

// Matcher checks command lines against reclaimable-process patterns.
// Uses 2 detection strategies:
// 1. Substrings in the command line (e.g., "claude --print")
// 2. Regular expressions (e.g., `(^|/)go test\b`)
// Exclusions veto a match from either strategy.
type Matcher struct {
	substrings []string
	regexes    []*regexp.Regexp
	exclusions []string
	mu         sync.RWMutex
}

// droverConfig represents the .drover.yaml configuration file structure.
type droverConfig struct {
	ReclaimPatterns struct {
		Substrings []string `yaml:"substrings"`
		Regexes    []string `yaml:"regexes"`
		Exclusions []string `yaml:"exclusions"`
	} `yaml:"reclaim_patterns"`
}

// New creates a matcher with the default pattern set.
func New() *Matcher {
	m := &Matcher{
		substrings: append([]string{}, DefaultSubstrings...),
		exclusions: append([]string{}, DefaultExclusions...),
	}
	for _, expr := range DefaultRegexes {
		m.regexes = append(m.regexes, regexp.MustCompile(expr))
	}
	return m
}

// NewForSubstrings creates a matcher restricted to an explicit substring
// allowlist with no defaults. The stale-test sweeper uses this.
func NewForSubstrings(substrings []string) *Matcher {
	return &Matcher{
		substrings: append([]string{}, substrings...),
		exclusions: append([]string{}, DefaultExclusions...),
	}
}

// Match checks a command line and returns the reason on a hit.
func (m *Matcher) Match(command string) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, excl := range m.exclusions {
		if strings.Contains(command, excl) {
			return false, ""
		}
	}

	lower := strings.ToLower(command)
	for _, sub := range m.substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true, "command matches pattern: " + sub
		}
	}
	for _, re := range m.regexes {
		if re.MatchString(command) {
			return true, "command matches pattern: " + re.String()
		}
	}
	return false, ""
}

// AddSubstrings extends the matcher with extra substring patterns.
func (m *Matcher) AddSubstrings(subs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.substrings = append(m.substrings, subs...)
}

// LoadConfig merges pattern overrides from a .drover.yaml file. A missing
// file leaves the defaults untouched.
func (m *Matcher) LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pattern config: %w", err)
	}

	var cfg droverConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	compiled := make([]*regexp.Regexp, 0, len(cfg.ReclaimPatterns.Regexes))
	for _, expr := range cfg.ReclaimPatterns.Regexes {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("compile pattern %q in %s: %w", expr, path, err)
		}
		compiled = append(compiled, re)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.substrings = append(m.substrings, cfg.ReclaimPatterns.Substrings...)
	m.regexes = append(m.regexes, compiled...)
	m.exclusions = append(m.exclusions, cfg.ReclaimPatterns.Exclusions...)
	return nil
}
