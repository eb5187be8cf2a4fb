package filters

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/hhrutter/lzw"
)

type skipperLZW struct{ earlyChange bool }

func (s skipperLZW) Skip(r io.Reader) (int, error) {
	cr := newCountingReader(r)
	rc := lzw.NewReader(cr, s.earlyChange)
	if _, err := ioutil.ReadAll(rc); err != nil {
		return 0, err
	}
	return cr.totalRead, rc.Close()
}

// decodeLZW decodes an LZWDecode stream (ISO 32000-1 §7.4.4). PDF's variant
// of LZW defaults EarlyChange to 1 (true); stdlib compress/lzw lacks that
// knob, so this uses github.com/hhrutter/lzw instead.
func decodeLZW(p Params, src []byte) ([]byte, error) {
	earlyChange := p.EarlyChange != 0
	rc := lzw.NewReader(bytes.NewReader(src), earlyChange)
	defer rc.Close()
	raw, err := ioutil.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("LZWDecode: %w", err)
	}
	return applyPredictor(p, raw)
}
