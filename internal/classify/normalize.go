package classify

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalize folds s for marker and label comparison: NFKC (so full-width
// Latin matches ASCII), Unicode case folding, and collapsed whitespace.
// A Caser keeps state, so a fresh one is built per call.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// normalizeAll normalizes every entry and drops the ones that end up empty.
func normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := normalize(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// firstContained returns the first marker contained in haystack.
// Both sides must already be normalized.
func firstContained(haystack string, markers []string) (string, bool) {
	if haystack == "" {
		return "", false
	}
	for _, m := range markers {
		if strings.Contains(haystack, m) {
			return m, true
		}
	}
	return "", false
}
