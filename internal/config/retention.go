package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidAge = errors.New("invalid age: expected a duration such as 720h, 30d or 2w")

// ParseAge parses a Go duration or a whole number of days ("30d") or weeks
// ("2w").
func ParseAge(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAge)
	}
	unit := raw[len(raw)-1]
	if unit == 'd' || unit == 'w' {
		n, err := strconv.Atoi(raw[:len(raw)-1])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: got %q", ErrInvalidAge, raw)
		}
		days := n
		if unit == 'w' {
			days = n * 7
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: got %q", ErrInvalidAge, raw)
	}
	return d, nil
}

// CutoffFromAge returns the instant age before now, truncated to the second
// so it round-trips through the archive key timestamp.
func CutoffFromAge(now time.Time, age time.Duration) time.Time {
	return now.Add(-age).UTC().Truncate(time.Second)
}
