// Package pdfwriter serializes a graph of pdfcore objects back into the
// classic PDF file syntax: header, indirect objects, a single-subsection
// cross-reference table, and a trailer. It is the write-side counterpart of
// pdfcore's reader; it does not attempt incremental updates or
// cross-reference streams, only the well-understood classic form.
//
// Grounded on model/writer/writer.go's output/WriteObject/CreateObject/
// writeHeader/writeFooter pattern.
package pdfwriter

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/arkaio/pdfcore"
	"golang.org/x/text/encoding/unicode"
)

var (
	replacer = strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)", "\r", "\\r")
	utf16Enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
)

// EncodeTextString escapes the literal-string delimiters and backslashes in
// s and encodes the result as UTF-16BE with a leading byte-order mark, the
// form ISO 32000-1 §7.9.2.2 calls a "text string". The returned bytes carry
// no surrounding parentheses. Use this for human-readable metadata entries (e.g.
// /Info's /Title); use plain pdfcore.String for byte-for-byte content.
func EncodeTextString(s string) (pdfcore.String, error) {
	s = replacer.Replace(s)
	encoded, err := utf16Enc.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("pdfwriter: invalid text string %q: %w", s, err)
	}
	return pdfcore.String(encoded), nil
}

// Writer accumulates indirect objects and serializes them, plus a trailer,
// to an io.Writer in one pass. It does not support updating an existing
// file; callers building an incremental update should instead append a new
// body of objects and a fresh trailer pointing at the prior startxref
// themselves.
type Writer struct {
	dst     io.Writer
	err     error
	written int64

	offsets map[int]int64 // object number -> byte offset of "N G obj"
	nextNum int
}

// New returns a Writer that will serialize to dst.
func New(dst io.Writer) *Writer {
	return &Writer{dst: dst, offsets: map[int]int64{}, nextNum: 1}
}

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	n, err := w.dst.Write(b)
	w.written += int64(n)
	if err != nil {
		w.err = err
	}
}

func (w *Writer) writef(format string, args ...interface{}) {
	w.write([]byte(fmt.Sprintf(format, args...)))
}

// NewRef allocates a fresh object number with generation 0, without writing
// anything yet. Callers use it to forward-reference an object (e.g. /Parent)
// before the referent itself has been written.
func (w *Writer) NewRef() pdfcore.Ref {
	n := w.nextNum
	w.nextNum++
	return pdfcore.Ref{Number: n, Generation: 0}
}

// WriteHeader emits the `%PDF-x.y` header line followed by the conventional
// binary-marker comment (ISO 32000-1 §7.5.2), signaling to naive tools that
// the file contains binary stream data.
func (w *Writer) WriteHeader(version string) {
	w.writef("%%PDF-%s\n", version)
	w.write([]byte{'%', 200, 200, 200, 200, '\n'})
}

// WriteObject serializes ref as an indirect object: `N G obj`, value's
// textual form, an optional stream payload, and `endobj`. value's own
// String() method (pdfcore.Object) renders dictionaries/arrays/scalars;
// stream may be nil for a non-stream object, and must already be filter- and
// (if applicable) encryption-encoded by the caller - the writer performs no
// filtering of its own.
func (w *Writer) WriteObject(ref pdfcore.Ref, value pdfcore.Object, stream []byte) {
	w.offsets[ref.Number] = w.written
	w.writef("%d %d obj\n", ref.Number, ref.Generation)
	w.write([]byte(value.String()))
	if stream != nil {
		w.write([]byte("\nstream\n"))
		w.write(stream)
		w.write([]byte("\nendstream"))
	}
	w.write([]byte("\nendobj\n"))
}

// WriteTrailer emits the cross-reference table, the trailer dictionary, and
// the startxref footer. root and info are object numbers; info may be 0 to
// omit /Info. Any number below w.nextNum that WriteObject was never called
// for (e.g. a NewRef that went unused) is recorded as a free entry.
func (w *Writer) WriteTrailer(root, info int, extra *pdfcore.Dict) error {
	if w.err != nil {
		return w.err
	}

	xrefOffset := w.written
	size := w.nextNum

	// Every object number below size must appear in some subsection, even
	// one allocated via NewRef but never written (it is simply free); a
	// single 0..size-1 run keeps that guarantee without bookkeeping gaps.
	var b bytes.Buffer
	b.WriteString("xref\n")
	fmt.Fprintf(&b, "0 %d\n", size)
	b.WriteString("0000000000 65535 f \n")
	for n := 1; n < size; n++ {
		if off, ok := w.offsets[n]; ok {
			fmt.Fprintf(&b, "%010d 00000 n \n", off)
		} else {
			b.WriteString("0000000000 65535 f \n")
		}
	}

	b.WriteString("trailer\n<<\n")
	fmt.Fprintf(&b, "/Size %d\n", size)
	fmt.Fprintf(&b, "/Root %d 0 R\n", root)
	if info != 0 {
		fmt.Fprintf(&b, "/Info %d 0 R\n", info)
	}
	if extra != nil {
		for _, k := range extra.Keys() {
			v, _ := extra.Get(k)
			fmt.Fprintf(&b, "%s %s\n", k.String(), v.String())
		}
	}
	b.WriteString(">>\nstartxref\n")
	fmt.Fprintf(&b, "%d\n", xrefOffset)
	b.WriteString("%%EOF")

	w.write(b.Bytes())
	return w.err
}

