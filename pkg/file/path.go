package file

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var unsafeTitleChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

// MaxTitleBytes bounds a sanitized title so that title, id and extension
// stay under the usual 255-byte file name limit.
const MaxTitleBytes = 150

// SanitizeTitle strips everything but letters, digits, underscores, whitespace
// and hyphens, trims the result and turns spaces into underscores. The result
// is cut to MaxTitleBytes at a rune boundary.
func SanitizeTitle(title string) string {
	cleaned := unsafeTitleChars.ReplaceAllString(title, "")
	cleaned = strings.ReplaceAll(strings.TrimSpace(cleaned), " ", "_")
	if len(cleaned) <= MaxTitleBytes {
		return cleaned
	}
	cut := MaxTitleBytes
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return strings.TrimRight(cleaned[:cut], "_")
}

func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return filepath.Join(dir, filename+ext)
	}

	return filepath.Join(dir, filename[:lastDot]+ext)
}
