package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims, drops control characters and truncates to maxLen
// runes. Free-text staff input goes through it before reaching audit rows.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			return strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}
