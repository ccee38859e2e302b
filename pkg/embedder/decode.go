package embedder

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoEmbeddedScript is returned by ExtractScript when the source does not
// carry a script initializer.
var ErrNoEmbeddedScript = errors.New("no embedded script found")

// scriptMarker introduces the script array in the generated source.
const scriptMarker = "kScript[] ="

var simpleEscapes = map[byte]byte{
	'\\': '\\', '"': '"', '\'': '\'', '?': '?',
	'n': '\n', 'r': '\r', 't': '\t',
	'a': '\a', 'b': '\b', 'f': '\f', 'v': '\v',
}

// DecodeLiteral interprets src the way a C++ compiler interprets a sequence
// of adjacent narrow string literals: whitespace between pieces is ignored and
// the pieces are concatenated after escape processing.
func DecodeLiteral(src string) ([]byte, error) {
	out, rest, err := decodePieces(src)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace([]byte(rest))) != 0 {
		return nil, fmt.Errorf("unexpected text after string literal: %q", truncate(rest, 16))
	}
	return out, nil
}

// ExtractScript recovers the script bytes embedded in a generated wrapper
// source.
func ExtractScript(source []byte) ([]byte, error) {
	i := bytes.Index(source, []byte(scriptMarker))
	if i < 0 {
		return nil, ErrNoEmbeddedScript
	}
	out, rest, err := decodePieces(string(source[i+len(scriptMarker):]))
	if err != nil {
		return nil, errors.Wrap(err, "decoding embedded script")
	}
	rest = string(bytes.TrimLeft([]byte(rest), " \t\r\n"))
	if len(rest) == 0 || rest[0] != ';' {
		return nil, errors.New("embedded script initializer is not terminated")
	}
	return out, nil
}

// decodePieces consumes leading whitespace-separated literals and returns the
// decoded bytes plus the unconsumed remainder. At least one literal is
// required.
func decodePieces(src string) ([]byte, string, error) {
	var out []byte
	pieces := 0
	i := 0
	for {
		for i < len(src) && isSpace(src[i]) {
			i++
		}
		if i >= len(src) || src[i] != '"' {
			break
		}
		n, err := decodeOne(src[i+1:], &out)
		if err != nil {
			return nil, "", errors.Wrapf(err, "literal piece %d", pieces)
		}
		i += 1 + n
		pieces++
	}
	if pieces == 0 {
		return nil, "", errors.New("expected a string literal")
	}
	return out, src[i:], nil
}

// decodeOne decodes the body of one literal (after its opening quote) into
// out and returns the number of bytes consumed, including the closing quote.
func decodeOne(s string, out *[]byte) (int, error) {
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '"':
			return i + 1, nil
		case c == '\n':
			return 0, errors.New("raw newline inside string literal")
		case c != '\\':
			*out = append(*out, c)
			i++
			continue
		}

		if i+1 >= len(s) {
			break
		}
		e := s[i+1]
		if v, ok := simpleEscapes[e]; ok {
			*out = append(*out, v)
			i += 2
			continue
		}
		switch {
		case e >= '0' && e <= '7':
			v, j := 0, i+1
			for ; j < len(s) && j < i+4 && s[j] >= '0' && s[j] <= '7'; j++ {
				v = v*8 + int(s[j]-'0')
			}
			if v > 0xff {
				return 0, fmt.Errorf("octal escape out of range at offset %d", i)
			}
			*out = append(*out, byte(v))
			i = j
		case e == 'x':
			v, j := 0, i+2
			for ; j < len(s) && isHex(s[j]); j++ {
				v = v*16 + hexVal(s[j])
				if v > 0xff {
					return 0, fmt.Errorf("hex escape out of range at offset %d", i)
				}
			}
			if j == i+2 {
				return 0, fmt.Errorf("empty hex escape at offset %d", i)
			}
			*out = append(*out, byte(v))
			i = j
		default:
			return 0, fmt.Errorf("unknown escape sequence \\%c at offset %d", e, i)
		}
	}
	return 0, errors.New("unterminated string literal")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
