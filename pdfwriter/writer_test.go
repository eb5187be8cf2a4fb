package pdfwriter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/arkaio/pdfcore"
)

func TestWriteObjectAndTrailerRoundTripThroughDocumentOpen(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	w.WriteHeader("1.4")

	pagesRef := w.NewRef()
	pageRef := w.NewRef()

	catalog := pdfcore.NewDict()
	catalog.Set("Type", pdfcore.Name("Catalog"))
	catalog.Set("Pages", pagesRef)
	catalogRef := w.NewRef()
	w.WriteObject(catalogRef, catalog, nil)

	pages := pdfcore.NewDict()
	pages.Set("Type", pdfcore.Name("Pages"))
	pages.Set("Kids", pdfcore.Array{pageRef})
	pages.Set("Count", pdfcore.Integer(1))
	w.WriteObject(pagesRef, pages, nil)

	page := pdfcore.NewDict()
	page.Set("Type", pdfcore.Name("Page"))
	page.Set("Parent", pagesRef)
	w.WriteObject(pageRef, page, nil)

	if err := w.WriteTrailer(catalogRef.Number, 0, nil); err != nil {
		t.Fatal(err)
	}

	doc, err := pdfcore.Open(bytes.NewReader(buf.Bytes()), nil)
	if err != nil {
		t.Fatalf("re-reading written PDF failed: %v\n%s", err, buf.String())
	}
	root, err := doc.Root()
	if err != nil {
		t.Fatal(err)
	}
	if root.String() != catalog.String() {
		t.Errorf("re-read Root = %v, want %v", root, catalog)
	}
}

func TestEncodeTextStringEscapesAndEncodesUTF16(t *testing.T) {
	out, err := EncodeTextString("hi (there)")
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := utf16Enc.NewDecoder().Bytes(out)
	if err != nil {
		t.Fatal(err)
	}
	// The literal parentheses from the input must be backslash-escaped
	// before being wrapped in the string's own delimiters, since they are
	// PDF literal-string delimiters.
	want := `hi \(there\)`
	if string(decoded) != want {
		t.Errorf("decoded text string = %q, want %q", decoded, want)
	}
}

func TestWriteObjectWithStream(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	w.WriteHeader("1.4")

	dict := pdfcore.NewDict()
	dict.Set("Length", pdfcore.Integer(5))
	ref := w.NewRef()
	w.WriteObject(ref, dict, []byte("hello"))
	if err := w.WriteTrailer(ref.Number, 0, nil); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.Contains(out, "stream\nhello\nendstream") {
		t.Errorf("written object does not contain the expected stream framing:\n%s", out)
	}
}
