package jwt

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// DefaultExpirySeconds is returned by ExpiryToSeconds for unrecognized input.
const DefaultExpirySeconds int64 = 15 * 60

var expiryPattern = regexp.MustCompile(`^(\d+)([mhd])$`)

// ParseExpiry converts "<n>m", "<n>h" or "<n>d" into a duration. ok is
// false for any other shape, including a zero amount or one that does not
// fit in a time.Duration.
func ParseExpiry(s string) (d time.Duration, ok bool) {
	m := expiryPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	var unit time.Duration
	switch m[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	default:
		unit = 24 * time.Hour
	}
	if n > math.MaxInt64/int64(unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// ExpiryToSeconds converts an expiry string to seconds, falling back to
// 15 minutes when the string is not understood.
func ExpiryToSeconds(s string) int64 {
	d, ok := ParseExpiry(s)
	if !ok {
		return DefaultExpirySeconds
	}
	return int64(d / time.Second)
}
