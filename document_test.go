package pdfcore

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// buildMinimalPDF assembles a small, valid classic-xref PDF in memory: a
// Catalog/Pages/Page graph plus one content stream. Offsets are recorded as
// they're written, so nothing here depends on manually counted byte
// positions.
func buildMinimalPDF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	offsets := make(map[int]int)

	buf.WriteString("%PDF-1.4\n")

	writeObj := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}

	content := "BT /F1 24 Tf 100 700 Td (Hello) Tj ET"
	writeObj(1, "<</Type/Catalog/Pages 2 0 R>>")
	writeObj(2, "<</Type/Pages/Kids[3 0 R]/Count 1>>")
	writeObj(3, "<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]/Contents 4 0 R/Resources<</Font<</F1 5 0 R>>>>>>")
	offsets[4] = buf.Len()
	fmt.Fprintf(&buf, "4 0 obj\n<</Length %d>>\nstream\n%s\nendstream\nendobj\n", len(content), content)
	writeObj(5, "<</Type/Font/Subtype/Type1/BaseFont/Helvetica>>")

	xrefOffset := buf.Len()
	size := 6
	buf.WriteString("xref\n")
	fmt.Fprintf(&buf, "0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n < size; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	buf.WriteString("trailer\n<</Size 6/Root 1 0 R>>\n")
	buf.WriteString("startxref\n")
	fmt.Fprintf(&buf, "%d\n", xrefOffset)
	buf.WriteString("%%EOF")

	return buf.Bytes()
}

func openTestDocument(t *testing.T, data []byte) *Document {
	t.Helper()
	d, err := Open(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return d
}

func TestOpenMinimalDocument(t *testing.T) {
	d := openTestDocument(t, buildMinimalPDF(t))

	if d.HeaderVersion != "1.4" {
		t.Errorf("HeaderVersion = %q, want %q", d.HeaderVersion, "1.4")
	}

	root, err := d.Root()
	if err != nil {
		t.Fatalf("Root(): %v", err)
	}
	catalog, ok := asDict(root)
	if !ok {
		t.Fatalf("Root did not resolve to a dictionary: %v", root)
	}
	typ, _ := catalog.Get("Type")
	if typ.(Name) != "Catalog" {
		t.Errorf("Root/Type = %v, want Catalog", typ)
	}
}

func TestDerefFollowsReferencesToStream(t *testing.T) {
	d := openTestDocument(t, buildMinimalPDF(t))

	page, err := d.Deref(Ref{Number: 3})
	if err != nil {
		t.Fatal(err)
	}
	pageDict, ok := asDict(page)
	if !ok {
		t.Fatalf("object 3 is not a dictionary: %v", page)
	}
	contentsRef, _ := pageDict.Get("Contents")
	contentsObj, err := d.Deref(contentsRef)
	if err != nil {
		t.Fatal(err)
	}
	stream, ok := contentsObj.(Stream)
	if !ok {
		t.Fatalf("Contents did not resolve to a stream: %T", contentsObj)
	}

	payload, err := d.StreamBytes(contentsRef.(Ref), stream)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(payload), "Hello") {
		t.Errorf("stream payload = %q, want it to contain %q", payload, "Hello")
	}
}

func TestDerefDanglingReferenceIsNull(t *testing.T) {
	d := openTestDocument(t, buildMinimalPDF(t))

	obj, err := d.Deref(Ref{Number: 999})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := obj.(Null); !ok {
		t.Errorf("dangling reference resolved to %T, want Null", obj)
	}
}

func TestDerefWrongGenerationIsCorrupted(t *testing.T) {
	d := openTestDocument(t, buildMinimalPDF(t))

	// Object 3 exists at generation 0; requesting generation 1 must fail
	// rather than silently resolving to the live (generation-0) object.
	_, err := d.Deref(Ref{Number: 3, Generation: 1})
	if err == nil {
		t.Fatal("expected an error for a generation mismatch on lookup")
	}
	if KindOf(err) != KindCorrupted {
		t.Errorf("KindOf(err) = %v, want KindCorrupted", KindOf(err))
	}
}

func TestOpenRejectsMissingRoot(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offset := buf.Len()
	buf.WriteString("1 0 obj\n<</Type/Catalog>>\nendobj\n")
	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 2\n0000000000 65535 f \n")
	fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	buf.WriteString("trailer\n<</Size 2>>\n")
	buf.WriteString("startxref\n")
	fmt.Fprintf(&buf, "%d\n", xrefOffset)
	buf.WriteString("%%EOF")

	_, err := Open(bytes.NewReader(buf.Bytes()), nil)
	if err == nil {
		t.Fatal("expected an error for a trailer with no Root entry")
	}
	if KindOf(err) != KindCorrupted {
		t.Errorf("KindOf(err) = %v, want KindCorrupted", KindOf(err))
	}
}
