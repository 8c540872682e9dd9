package engine

import "regexp"

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// ExtractMentions returns the distinct @names in texts, in order of first
// appearance, that are not already in known.
func ExtractMentions(known []string, texts ...string) []string {
	seen := make(map[string]bool, len(known))
	for _, n := range known {
		seen[n] = true
	}
	var names []string
	for _, text := range texts {
		for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
			if seen[m[1]] {
				continue
			}
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
