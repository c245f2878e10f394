package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nonNumericRegex          = regexp.MustCompile(`[^\d]`)
	extractSignedNumberRegex = regexp.MustCompile(`[-+]?\d+`)
)

// SafeAtoi parses s as an integer, returning 0 on any failure.
func SafeAtoi(s string) int {
	i, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(s), "+"))
	if err != nil {
		return 0
	}
	return i
}

// CleanNumericString strips everything but digits, so "1,234 views" becomes "1234".
func CleanNumericString(s string) string {
	return nonNumericRegex.ReplaceAllString(s, "")
}

// ParseSignedNumericString returns the first signed integer in s, e.g. "-3" from "-3 votes".
func ParseSignedNumericString(s string) string {
	return extractSignedNumberRegex.FindString(s)
}

// NonNegative clamps negative engagement counters (RFD shows net votes) to zero.
func NonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
