package views

import (
	"strings"
	"unicode"
)

// joiners are codepoints tcell renders as stray cells: skin tone
// modifiers, the zero width joiner and the variation selectors. Dropping
// them leaves the base emoji, which renders as one 2-cell glyph.
var joiners = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200D, Hi: 0x200D, Stride: 1},
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1F3FB, Hi: 0x1F3FF, Stride: 1},
		{Lo: 0xE0100, Hi: 0xE01EF, Stride: 1},
	},
}

// sanitizeForTerminal strips joiners and control characters. Newlines and
// tabs in message bodies are kept.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.Is(joiners, r), unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, s)
}
