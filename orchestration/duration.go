package orchestration

import (
	"fmt"
	"strconv"
	"time"
)

// ParseDuration interprets a sleep-step/hookTimeout duration string per
// spec.md §4.4: "Ns" | "Nm" | "Nh" | "Nd", or a bare positive integer of
// milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("orchestration: empty duration")
	}
	unit := s[len(s)-1]
	var mult time.Duration
	numPart := s
	switch unit {
	case 's':
		mult = time.Second
		numPart = s[:len(s)-1]
	case 'm':
		mult = time.Minute
		numPart = s[:len(s)-1]
	case 'h':
		mult = time.Hour
		numPart = s[:len(s)-1]
	case 'd':
		mult = 24 * time.Hour
		numPart = s[:len(s)-1]
	default:
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil || ms <= 0 {
			return 0, fmt.Errorf("orchestration: invalid duration %q", s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("orchestration: invalid duration %q", s)
	}
	return time.Duration(n * float64(mult)), nil
}
