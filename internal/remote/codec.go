package remote

import (
	"fmt"
	"strings"
)

const hexDigits = "0123456789ABCDEF"

// Escape renders every byte of b as a %XX escape, including unreserved
// characters. The result is always 3*len(b) bytes long.
func Escape(b []byte) string {
	var sb strings.Builder
	sb.Grow(3 * len(b))
	for _, c := range b {
		sb.WriteByte('%')
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0f])
	}
	return sb.String()
}

// EscapeString is Escape for strings.
func EscapeString(s string) string {
	return Escape([]byte(s))
}

// Unescape reverses Escape. Input must consist only of %XX escapes; hex
// digits may be either case.
func Unescape(s string) ([]byte, error) {
	if len(s)%3 != 0 {
		return nil, fmt.Errorf("escaped value has length %d, not a multiple of 3", len(s))
	}

	out := make([]byte, 0, len(s)/3)
	for i := 0; i < len(s); i += 3 {
		if s[i] != '%' {
			return nil, fmt.Errorf("expected %% at offset %d, got %q", i, s[i])
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("invalid escape %q at offset %d", s[i:i+3], i)
		}
		out = append(out, hi<<4|lo)
	}
	return out, nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
