package protocol_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/duomem/duomem-go/pkg/protocol"
)

func TestSanitizeText_ValidTextUnchanged(t *testing.T) {
	in := "Sarah Johnson works with Alex on architecture, café included"
	assert.Equal(t, in, protocol.SanitizeText(in))
}

func TestSanitizeText_InvalidBytesReplacedNotDropped(t *testing.T) {
	in := "abc\xff\xfedef"
	out := protocol.SanitizeText(in)

	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "abc��def", out)
	// Each bad byte becomes a marker; nothing silently disappears.
	assert.Equal(t, utf8.RuneCountInString("abcXXdef"), utf8.RuneCountInString(out))
}

func TestSanitizeText_TruncatedMultibyteSequence(t *testing.T) {
	// First byte of a 3-byte sequence with nothing after it.
	out := protocol.SanitizeText("ok\xe2")
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "ok�", out)
}

func TestSanitizeText_StripsControlCharacters(t *testing.T) {
	in := "a\x00b\x01c\x7Fde"
	assert.Equal(t, "abcde", protocol.SanitizeText(in))
}

func TestSanitizeText_KeepsWhitespaceControls(t *testing.T) {
	in := "line one\nline two\r\n\tindented"
	assert.Equal(t, in, protocol.SanitizeText(in))
}

func TestSanitizeText_AlwaysValidUTF8(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		strings.Repeat("\xf0", 10),
		"\xc3\x28",
		"mixed \xe2\x82 euro \xe2\x82\xac done",
	}
	for _, in := range inputs {
		assert.True(t, utf8.ValidString(protocol.SanitizeText(in)), "input %q", in)
	}
}
