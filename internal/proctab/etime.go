package proctab

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseElapsed converts the etime column of ps into a duration.
// Supported encodings: "ss", "mm:ss", "hh:mm:ss", and "dd-hh:mm:ss".
func ParseElapsed(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty elapsed time")
	}

	var days int64
	if i := strings.IndexByte(s, '-'); i >= 0 {
		d, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse elapsed days %q: %w", s, err)
		}
		days = d
		s = s[i+1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("unexpected elapsed time format %q", s)
	}

	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse elapsed component %q: %w", p, err)
		}
		total = total*60 + n
	}

	total += days * 24 * 3600
	return time.Duration(total) * time.Second, nil
}
