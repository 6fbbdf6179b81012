package filtering

import (
	"slices"
	"strings"
)

// Match reports whether the lower-cased capturedURL contains any of the
// restricted substrings and returns the first one found. Entries are compared
// as configured, so an entry with upper-case letters never matches.
func Match(capturedURL string, restricted []string) (string, bool) {
	lowered := strings.ToLower(capturedURL)
	for _, entry := range restricted {
		if strings.Contains(lowered, entry) {
			return entry, true
		}
	}
	return "", false
}

// ParseRestricted splits a comma separated list of restricted addresses.
// Entries are trimmed and keep their case; empty entries and duplicates are
// dropped.
func ParseRestricted(raw string) []string {
	return NormalizeRestricted(strings.Split(raw, ","))
}

// NormalizeRestricted applies the ParseRestricted rules to a list.
func NormalizeRestricted(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		out = append(out, entry)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
