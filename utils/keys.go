package utils

import "strings"

// Permission keys have the shape "domain:resource:action" with an optional
// ":subtype" fourth segment. Config and DSL loaders may use '*' segments in
// role grants ("users:user:*"); expansion against the catalog happens at
// load time, the engine only ever sees concrete keys.

// SplitKey splits a key into its segments and reports whether the shape is
// valid (3 or 4 non-empty segments).
func SplitKey(key string) ([]string, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return nil, false
	}
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}
	return parts, true
}

// IsPattern reports whether the key contains a wildcard segment.
func IsPattern(key string) bool {
	return strings.Contains(key, "*")
}

// MatchKey matches a concrete key against a pattern. A '*' segment matches
// any single segment; a trailing '*' in third position also covers keys that
// carry a subtype. Patterns never match across segment boundaries.
func MatchKey(pattern, key string) bool {
	pp, ok := SplitKey(pattern)
	if !ok {
		return false
	}
	kp, ok := SplitKey(key)
	if !ok {
		return false
	}
	if len(pp) != len(kp) {
		// "a:b:*" covers "a:b:c:d" as well
		if !(len(pp) == 3 && len(kp) == 4 && pp[2] == "*") {
			return false
		}
	}
	for i, seg := range pp {
		if seg == "*" {
			continue
		}
		if i >= len(kp) || seg != kp[i] {
			return false
		}
	}
	return true
}
