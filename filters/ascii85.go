package filters

import (
	"bytes"
	"encoding/ascii85"
	"fmt"
	"io"
	"io/ioutil"
)

const eodASCII85 = "~>"

type skipperASCII85 struct{}

func (skipperASCII85) Skip(r io.Reader) (int, error) {
	cr := newCountingReader(r)
	mr := newMarkerReader(cr, []byte(eodASCII85))
	_, err := ioutil.ReadAll(mr)
	return cr.totalRead, err
}

// decodeASCII85 decodes a base-85 encoded stream (ISO 32000-1 §7.4.3). The
// PDF variant tolerates embedded whitespace and the `z` shorthand for a
// run of four zero bytes; stdlib encoding/ascii85 already accepts both, so
// this only has to strip the trailing `~>` EOD marker and an optional
// leading `<~`.
func decodeASCII85(src []byte) ([]byte, error) {
	src = bytes.TrimSpace(src)
	src = bytes.TrimPrefix(src, []byte("<~"))
	if i := bytes.Index(src, []byte(eodASCII85)); i != -1 {
		src = src[:i]
	}

	// ascii85.Decode stops early once fewer than 4 bytes of dst remain, and a
	// single `z` expands to 4 bytes, so size dst for the worst case.
	dst := make([]byte, 4*len(src))
	n, _, err := ascii85.Decode(dst, src, true)
	if err != nil {
		return nil, fmt.Errorf("ASCII85Decode: %w", err)
	}
	return dst[:n], nil
}
