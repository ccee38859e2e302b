package embedder

import (
	"strings"
)

// escapeRule maps one input byte to its C++ string-literal spelling.
type escapeRule struct {
	Name string
	From byte
	To   string
}

// escapeTable is applied in this order. Bytes not listed here pass through,
// except the remaining control bytes which are written as three-digit octal.
var escapeTable = []escapeRule{
	{Name: "backslash", From: '\\', To: `\\`},
	{Name: "quote", From: '"', To: `\"`},
	{Name: "question", From: '?', To: `\?`},
	{Name: "newline", From: '\n', To: `\n`},
	{Name: "carriage-return", From: '\r', To: `\r`},
	{Name: "tab", From: '\t', To: `\t`},
}

var escapeIndex = func() [256]string {
	var idx [256]string
	for _, r := range escapeTable {
		idx[r.From] = r.To
	}
	return idx
}()

func isControl(b byte) bool {
	return b < 0x20 || b == 0x7f
}

func octal(b byte) string {
	return string([]byte{'\\', '0' + b>>6, '0' + (b>>3)&7, '0' + b&7})
}

// EscapeLiteral returns text escaped for the inside of a double-quoted C++
// string literal. It makes a single pass over the input, so the output of one
// rule is never fed back into another.
func EscapeLiteral(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) + len(text)/8)
	for i := 0; i < len(text); i++ {
		b := text[i]
		switch {
		case escapeIndex[b] != "":
			sb.WriteString(escapeIndex[b])
		case isControl(b):
			sb.WriteString(octal(b))
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// LiteralPieces escapes text and splits it into adjacent literal pieces, one
// per script line. Each piece is a complete quoted literal. An empty text
// yields a single empty literal.
func LiteralPieces(text string) []string {
	if text == "" {
		return []string{`""`}
	}
	var pieces []string
	for len(text) > 0 {
		line := text
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line = text[:i+1]
		}
		text = text[len(line):]
		pieces = append(pieces, `"`+EscapeLiteral(line)+`"`)
	}
	return pieces
}
