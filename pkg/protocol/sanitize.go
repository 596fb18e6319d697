// Package protocol implements the line-oriented protocol transport: one JSON
// message per line on stdin/stdout, correlated by id.
//
// The package owns the primary output channel for the lifetime of the
// process. Nothing else may write to it; all diagnostics go to the logger,
// which writes to stderr.
package protocol

import (
	"strings"
	"unicode/utf8"
)

// Replacement is the substitution marker for invalid encoding units.
const Replacement = '�'

// SanitizeText makes text safe for the protocol channel:
//   - every invalid UTF-8 byte is replaced with U+FFFD, never dropped
//   - control characters other than newline, carriage return, and tab are
//     stripped
//
// The result always re-decodes losslessly.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(Replacement)
			i++
			continue
		}

		if isStrippedControl(r) {
			i += size
			continue
		}

		b.WriteRune(r)
		i += size
	}

	return b.String()
}

// isStrippedControl reports whether r is a control character that must not
// appear in sanitized text. Newline, carriage return, and tab survive.
func isStrippedControl(r rune) bool {
	switch r {
	case '\n', '\r', '\t':
		return false
	}
	return (r >= 0x00 && r < 0x20) || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}
