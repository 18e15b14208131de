package views

import (
	"strings"
	"unicode"
)

// sanitizeForTerminal drops the runes other users can send that tcell draws
// badly or not at all: emoji modifiers and joiners, and control characters
// other than newline. A thumbs up with a skin tone becomes a plain thumbs up,
// two cells wide.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r == '\t' {
			return ' '
		}
		if isProblematicRune(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// singleLine sanitizes s for a table cell or title.
func singleLine(s string) string {
	return strings.Join(strings.Fields(sanitizeForTerminal(s)), " ")
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tones
		return true
	case r == 0x200D: // zero width joiner
		return true
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF: // variation selectors
		return true
	}
	return false
}
