package export

import (
	"strings"
	"unicode"
)

// SanitizeName keeps letters, digits and a few separators, replacing every
// other rune with '_' and trimming the result to maxLen runes.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(b.String(), " .")
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.':
		return true
	default:
		return false
	}
}

// DownloadName builds the attachment filename for a job artifact.
func DownloadName(jobID, ext string) string {
	name := SanitizeName(jobID, 64)
	if name == "" {
		name = "video"
	}
	return "short-" + name + ext
}
