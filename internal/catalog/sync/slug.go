package sync

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugStrip = regexp.MustCompile(`[^\w\-. ]`)

// Slugify turns a folder name into a filename-safe ASCII identifier.
//
// The name is NFKD-decomposed and stripped of non-ASCII runes, so accented
// letters degrade to their base letter. Anything outside [A-Za-z0-9_-. ]
// is then removed and spaces become underscores. The result may be empty,
// and distinct names may share a slug.
func Slugify(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	ascii, _, err := transform.String(t, name)
	if err != nil {
		// Only reachable on malformed input; fall back to a byte filter.
		ascii = strings.Map(func(r rune) rune {
			if r > unicode.MaxASCII {
				return -1
			}
			return r
		}, name)
	}
	return strings.ReplaceAll(slugStrip.ReplaceAllString(ascii, ""), " ", "_")
}
