package fetcher

import "regexp"

// Accepted input shapes for single-post lookups. The id is always extracted
// verbatim.
var (
	statusPattern = regexp.MustCompile(`(?:twitter\.com|x\.com)/[A-Za-z0-9_]+/status/(\d+)`)
	bareStatus    = regexp.MustCompile(`/status/(\d+)`)
	bareID        = regexp.MustCompile(`^\d{19}$`)
)

// ParsePostID extracts a post id from any accepted URL form or a bare
// 19-digit id. The second return is false when the input matches no pattern.
func ParsePostID(raw string) (string, bool) {
	if m := statusPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	if m := bareStatus.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	if bareID.MatchString(raw) {
		return raw, true
	}
	return "", false
}
