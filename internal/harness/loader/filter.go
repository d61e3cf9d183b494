package loader

import "strings"

// FilterByPattern keeps scenarios whose ID or name matches one of the
// comma-separated glob patterns ("TC-REG-*", "*observe*").
func FilterByPattern(cases []*Scenario, pattern string) []*Scenario {
	patterns := splitList(pattern)
	if len(patterns) == 0 {
		return cases
	}
	var filtered []*Scenario
	for _, sc := range cases {
		for _, p := range patterns {
			if matchPattern(sc.ID, p) || matchPattern(sc.Name, p) {
				filtered = append(filtered, sc)
				break
			}
		}
	}
	return filtered
}

// FilterByTags keeps scenarios that have at least one of the
// comma-separated tags.
func FilterByTags(cases []*Scenario, tags string) []*Scenario {
	wanted := splitList(tags)
	if len(wanted) == 0 {
		return cases
	}
	var filtered []*Scenario
	for _, sc := range cases {
		if hasAnyTag(sc.Tags, wanted) {
			filtered = append(filtered, sc)
		}
	}
	return filtered
}

// FilterByExcludeTags removes scenarios that have any of the
// comma-separated tags.
func FilterByExcludeTags(cases []*Scenario, tags string) []*Scenario {
	excluded := splitList(tags)
	if len(excluded) == 0 {
		return cases
	}
	var filtered []*Scenario
	for _, sc := range cases {
		if !hasAnyTag(sc.Tags, excluded) {
			filtered = append(filtered, sc)
		}
	}
	return filtered
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hasAnyTag(tags, wanted []string) bool {
	for _, t := range tags {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}

// matchPattern performs simple glob matching with a leading and/or
// trailing '*'.
func matchPattern(name, pattern string) bool {
	if pattern == "*" {
		return true
	}
	prefix := strings.HasPrefix(pattern, "*")
	suffix := strings.HasSuffix(pattern, "*")
	switch {
	case prefix && suffix && len(pattern) > 2:
		return strings.Contains(name, pattern[1:len(pattern)-1])
	case prefix:
		return strings.HasSuffix(name, pattern[1:])
	case suffix:
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}
	return name == pattern
}
