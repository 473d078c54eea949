// Package normalize standardizes raw person fields (names, phones, emails,
// zip codes) for matching. Every function is pure and total: malformed input
// yields an empty result, never an error, because these sit on write paths
// that must not block ingestion of imperfect source data.
package normalize

import (
	"strings"
	"unicode"
)

// Name title-cases a raw person name: the first alphabetic rune after
// start-of-string, space, hyphen, or apostrophe is uppercased, all other
// alphabetic runes are lowercased, non-alphabetic runes pass through
// untouched. Internal whitespace runs collapse to a single space and
// leading/trailing whitespace is trimmed.
func Name(raw string) string {
	words := strings.Fields(raw)
	for i, w := range words {
		words[i] = caseWord(w)
	}
	return strings.Join(words, " ")
}

func caseWord(w string) string {
	var b strings.Builder
	b.Grow(len(w))
	capNext := true
	for _, r := range w {
		switch {
		case !unicode.IsLetter(r):
			b.WriteRune(r)
			if r == '-' || r == '\'' {
				capNext = true
			}
		case capNext:
			b.WriteRune(unicode.ToUpper(r))
			capNext = false
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Phone strips all non-digit characters and returns the rightmost 10 digits.
// Returns false when fewer than 10 digits remain (the leading-country-code
// case "1XXXXXXXXXX" reduces to its last 10 digits).
func Phone(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 10 {
		return "", false
	}
	return digits[len(digits)-10:], true
}

// Email lowercases and trims a raw email address. No format validation:
// module ingestion stores whatever the source provided.
func Email(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Zip extracts a 5-digit zip code, tolerating zip+4 suffixes and stray
// punctuation. Returns "" when fewer than 5 digits are present.
func Zip(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
		if b.Len() == 5 {
			break
		}
	}
	if b.Len() < 5 {
		return ""
	}
	return b.String()
}
