package blotter

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// MaxNumber is the largest sequence number that fits the six digit suffix
const MaxNumber = 999999

var wellFormed = regexp.MustCompile(`^\d{4}-\d{2}-\d{6}$`)

// PeriodKey returns the YYYY-MM counter key for t
func PeriodKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// ParsePeriodKey splits a YYYY-MM key into year and month
func ParsePeriodKey(key string) (year, month int, err error) {
	if len(key) != 7 || key[4] != '-' {
		return 0, 0, fmt.Errorf("malformed period key %q", key)
	}
	year, err = strconv.Atoi(key[:4])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed period key %q: %w", key, err)
	}
	month, err = strconv.Atoi(key[5:])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("malformed period key %q", key)
	}
	return year, month, nil
}

// Format renders a blotter number, e.g. 2025-10-000001
func Format(year, month int, number int64) string {
	return fmt.Sprintf("%04d-%02d-%06d", year, month, number)
}

// IsWellFormed checks the exact YYYY-MM-NNNNNN shape
func IsWellFormed(s string) bool {
	return wellFormed.MatchString(s)
}

// Parse splits a blotter number into its parts. ok is false when s is not well formed.
func Parse(s string) (year, month int, number int64, ok bool) {
	if !IsWellFormed(s) {
		return 0, 0, 0, false
	}
	year, _ = strconv.Atoi(s[0:4])
	month, _ = strconv.Atoi(s[5:7])
	number, _ = strconv.ParseInt(s[8:], 10, 64)
	return year, month, number, true
}
