package changelog

import (
	"regexp"
	"sort"
)

// IssueKeyPattern matches tracker keys such as PROJ-123: an uppercase project
// key of at least two characters, a dash, and a number without leading zeros.
const IssueKeyPattern = `\b[A-Z][A-Z0-9_]+-[1-9][0-9]*\b`

var issueKeyRe = regexp.MustCompile(IssueKeyPattern)

// ExtractIssueKeys returns the sorted, deduplicated set of issue keys found in
// the given texts. It never returns nil.
func ExtractIssueKeys(texts ...string) []string {
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, key := range issueKeyRe.FindAllString(text, -1) {
			seen[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MergeIssueKeys returns the sorted union of key lists, dropping blanks.
func MergeIssueKeys(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, key := range list {
			if key != "" {
				seen[key] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
