package textutil

import (
	"regexp"
	"strings"
)

var nonAlnumRegex = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeName lowercases a display name or username and strips everything
// that is not an ascii letter or digit.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	return nonAlnumRegex.ReplaceAllString(name, "")
}

// LoosePrefixMatch reports whether two already normalized names share a
// leading prefix: either one starts with the first n characters of the other.
// Empty names never match.
func LoosePrefixMatch(a, b string, n int) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return strings.HasPrefix(a, prefix(b, n)) || strings.HasPrefix(b, prefix(a, n))
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// ContainsFold reports whether substr is within s, case-insensitively.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
