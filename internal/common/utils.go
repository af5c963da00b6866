package common

import "strings"

// HasAnyPrefix reports whether s starts with any of the prefixes, ignoring case.
func HasAnyPrefix(s string, prefixes ...string) bool {
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// ContainsFold reports whether sub is within s, ignoring case.
func ContainsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// IsRemote reports whether location looks like an http(s) URL rather than a file path.
func IsRemote(location string) bool {
	return HasAnyPrefix(location, "http://", "https://")
}
