package guard

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// IsSpamContent flags empty or one-character bodies, a single character
// repeated more than five times, and bodies carrying a raw URL.
func IsSpamContent(text string) bool {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n < 2 {
		return true
	}
	if n > 5 && singleRune(text) {
		return true
	}
	return urlPattern.MatchString(text)
}

func singleRune(s string) bool {
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			return false
		}
	}
	return true
}
