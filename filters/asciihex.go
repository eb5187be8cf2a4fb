package filters

import (
	"bytes"
	"io"
	"io/ioutil"
)

const eodHex = '>'

type skipperASCIIHex struct{}

func (skipperASCIIHex) Skip(r io.Reader) (int, error) {
	cr := newCountingReader(r)
	mr := newMarkerReader(cr, []byte{eodHex})
	_, err := ioutil.ReadAll(mr)
	return cr.totalRead, err
}

// decodeASCIIHex decodes a hexadecimal-encoded stream (ISO 32000-1 §7.4.2).
// Whitespace between digit pairs is ignored; an odd trailing digit is
// padded with an implicit 0, per the spec.
func decodeASCIIHex(src []byte) ([]byte, error) {
	if i := bytes.IndexByte(src, eodHex); i != -1 {
		src = src[:i]
	}

	out := make([]byte, 0, len(src)/2+1)
	var hi byte
	haveHi := false
	for _, c := range src {
		v, ok := hexDigitValue(c)
		if !ok {
			continue // whitespace and any other stray byte is skipped
		}
		if !haveHi {
			hi = v
			haveHi = true
			continue
		}
		out = append(out, hi<<4|v)
		haveHi = false
	}
	if haveHi {
		out = append(out, hi<<4)
	}
	return out, nil
}

func hexDigitValue(c byte) (byte, bool) {
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
