package pdfcore

import "strings"

// isRegularChar reports whether b can appear unescaped in a PDF name, per
// ISO 32000-1 §7.3.5: printable ASCII (0x21-0x7e) other than the ten
// delimiter characters and `#` is regular; whitespace and bytes outside that
// range are not.
func isRegularChar(b byte) bool {
	switch b {
	case 0x00, '\t', '\n', '\f', '\r', ' ',
		'(', ')', '<', '>', '[', ']', '{', '}', '/', '%', '#':
		return false
	}
	return b > 0x20 && b < 0x7f
}

// EscapeName returns the wire form of a name's bytes (without the leading
// `/`), escaping any byte that must not appear literally as `#xx`.
func EscapeName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isRegularChar(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('#')
			b.WriteString(hexDigits[c>>4 : c>>4+1])
			b.WriteString(hexDigits[c&0xf : c&0xf+1])
		}
	}
	return b.String()
}

const hexDigits = "0123456789abcdef"

// UnescapeName decodes `#xx` hex escapes in raw name bytes, as read between
// the leading `/` and the next delimiter or whitespace. Tokenizers that
// already decode escapes while lexing names make this a no-op in practice;
// it is kept independent so the invariant
// unescapeName(escapeName(n)) == n (spec.md §8 property 2) holds without
// relying on that assumption.
func UnescapeName(raw []byte) (Name, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '#' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(raw) {
			return "", newErrf(KindParseError, "name escape", "truncated #xx escape in name")
		}
		hi, ok1 := hexVal(raw[i+1])
		lo, ok2 := hexVal(raw[i+2])
		if !ok1 || !ok2 {
			return "", newErrf(KindParseError, "name escape", "invalid #xx escape in name")
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return Name(b.String()), nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// EscapeLiteralString returns the wire form of s as a PDF literal string,
// i.e. `(...)` with `\`, `(`, `)` and carriage returns escaped, matching
// the teacher's EscapeByteString.
func EscapeLiteralString(sb []byte) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, c := range sb {
		switch c {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(')')
	return b.String()
}

// EscapeHexString returns the wire form of sb as a PDF hex string `<...>`.
func EscapeHexString(sb []byte) string {
	var b strings.Builder
	b.WriteByte('<')
	for _, c := range sb {
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0xf])
	}
	b.WriteByte('>')
	return b.String()
}
