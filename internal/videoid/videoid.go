// Package videoid extracts YouTube video identifiers from URLs.
package videoid

import (
	"fmt"
	"regexp"
)

const idPattern = `([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`

// Matchers are tried in order; the first capture wins.
var matchers = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=)` + idPattern),
	regexp.MustCompile(`(?:youtu\.be/)` + idPattern),
	regexp.MustCompile(`(?:embed/)` + idPattern),
	regexp.MustCompile(`(?:shorts/)` + idPattern),
	regexp.MustCompile(`/` + idPattern),
}

// Resolve returns the 11-character video id embedded in url. The boolean is
// false when no known URL shape matches.
func Resolve(url string) (string, bool) {
	for _, re := range matchers {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// WatchURL builds the canonical watch URL for id.
func WatchURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}
