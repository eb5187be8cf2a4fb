package filters

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"io"
	"testing"
)

func deflate(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeFlatePlain(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog")
	got, err := Decode(Step{Name: Flate}, deflate(t, want))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodeFlatePNGUpPredictor(t *testing.T) {
	// Two 3-byte RGB rows, predictor 15 (PNG, optimal), row 1 using the
	// "Up" filter (tag 2) relative to row 0's "None" filter (tag 0).
	row0 := []byte{0, 10, 20, 30}
	row1 := []byte{2, 5, 5, 5} // encodes {15,25,35} via Up from row0
	raw := append(append([]byte{}, row0...), row1...)

	got, err := Decode(Step{Name: Flate, Params: Params{
		Predictor: 15, Colors: 3, BitsPerComponent: 8, Columns: 1,
	}}, deflate(t, raw))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{10, 20, 30, 15, 25, 35}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodeFlateTIFFPredictor(t *testing.T) {
	// One row of 2 RGB pixels, horizontally differenced.
	raw := []byte{10, 20, 30, 5, 5, 5}
	got, err := Decode(Step{Name: Flate, Params: Params{
		Predictor: 2, Colors: 3, BitsPerComponent: 8, Columns: 2,
	}}, deflate(t, raw))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{10, 20, 30, 15, 25, 35}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodeASCII85(t *testing.T) {
	// "Man " encodes to "9jqo^" per the classic ASCII85 example.
	got, err := Decode(Step{Name: ASCII85}, []byte("9jqo^~>"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "Man " {
		t.Errorf("got %q, want %q", got, "Man ")
	}
}

func TestDecodeASCIIHex(t *testing.T) {
	got, err := Decode(Step{Name: ASCIIHex}, []byte("48656c6c6f>"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "Hello" {
		t.Errorf("got %q, want %q", got, "Hello")
	}
}

func TestDecodeASCIIHexOddTrailingDigit(t *testing.T) {
	// A trailing lone digit is implicitly padded with a final 0 nibble.
	got, err := Decode(Step{Name: ASCIIHex}, []byte("48656c6c6f0>"))
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte("Hello"), 0x00)
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodeChain(t *testing.T) {
	want := []byte("chained data")
	ascii := []byte("<~" + string(mustASCII85(t, deflate(t, want))) + "~>")
	got, err := DecodeChain([]Step{{Name: ASCII85}, {Name: Flate}}, ascii)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func mustASCII85(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := ascii85.NewEncoder(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUnsupportedFilter(t *testing.T) {
	_, err := Decode(Step{Name: "JBIG2Decode"}, nil)
	if err == nil {
		t.Fatal("expected an UnsupportedFilterError")
	}
	if _, ok := err.(*UnsupportedFilterError); !ok {
		t.Errorf("got %T, want *UnsupportedFilterError", err)
	}
}

func TestSkipperFlateStopsAtEOD(t *testing.T) {
	payload := deflate(t, []byte("payload"))
	trailer := []byte("trailing garbage that is not part of the stream")
	r := io.MultiReader(bytes.NewReader(payload), bytes.NewReader(trailer))

	n, err := skipperFlate{}.Skip(r)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Errorf("Skip consumed %d bytes, want %d", n, len(payload))
	}
}
