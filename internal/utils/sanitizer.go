package utils

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	scriptTagsRegex     = regexp.MustCompile(`(?i)<script[\s\S]*?>[\s\S]*?</script>`)
	htmlTagsRegex       = regexp.MustCompile(`<[^>]*>`)
	multipleSpacesRegex = regexp.MustCompile(`\s+`)
)

// maxCommentLength matches the limit SoundCloud enforces on comment bodies.
const maxCommentLength = 1000

// SanitizeString removes HTML tags and normalizes whitespace
func SanitizeString(s string) string {
	s = scriptTagsRegex.ReplaceAllString(s, "")
	s = htmlTagsRegex.ReplaceAllString(s, "")
	s = multipleSpacesRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SanitizeComment prepares a user-typed comment body for posting.
func SanitizeComment(body string) string {
	body = StripNonPrintable(SanitizeString(body))
	if r := []rune(body); len(r) > maxCommentLength {
		body = string(r[:maxCommentLength])
	}
	return body
}

// NormalizeQuery trims a search string and collapses inner whitespace.
// Unlike SanitizeString it keeps punctuation, which SoundCloud search treats as meaningful.
func NormalizeQuery(query string) string {
	return strings.TrimSpace(multipleSpacesRegex.ReplaceAllString(query, " "))
}

// StripNonPrintable removes non-printable characters from a string
func StripNonPrintable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
