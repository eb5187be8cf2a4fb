package pdfcore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/arkaio/pdfcore/crypt"
)

func hexString(b []byte) string {
	return "<" + hex.EncodeToString(b) + ">"
}

// buildEncryptedPDFWithMetadataExemption assembles an R4/RC4-encrypted
// document whose Encrypt dict sets /EncryptMetadata false: the page content
// stream is encrypted (and must be decrypted back to "Hello"), while the
// /Type /Metadata stream is stored in the clear (and must be returned
// byte-for-byte, not run through the cipher a second time).
func buildEncryptedPDFWithMetadataExemption(t *testing.T) (data []byte, contentRef, metadataRef Ref) {
	t.Helper()

	id0 := []byte("0123456789abcdef")
	userPW := []byte(nil)
	ownerPW := []byte("owner-secret")
	const keyLen = 16

	o := crypt.ComputeOwnerEntry(4, keyLen, userPW, ownerPW)
	p := crypt.Params{R: 4, KeyLengthBytes: keyLen, O: o, P: -4, ID0: id0, EncryptMetadata: false}
	fileKey := crypt.FileKey(userPW, p)
	u := crypt.ComputeUserEntry(4, fileKey, id0)

	content := []byte("Hello")
	contentKey := crypt.ObjectKey(fileKey, 4, 0, false)
	cipherContent := append([]byte(nil), content...)
	if _, err := crypt.DecryptRC4(contentKey, cipherContent); err != nil { // RC4 encrypt == decrypt
		t.Fatal(err)
	}

	metadata := []byte("<x:xmpmeta>plain</x:xmpmeta>")

	var buf bytes.Buffer
	offsets := make(map[int]int)
	buf.WriteString("%PDF-1.6\n")

	writeObj := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}
	writeStreamObj := func(n int, dict string, payload []byte) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nstream\n", n, dict)
		buf.Write(payload)
		buf.WriteString("\nendstream\nendobj\n")
	}

	writeObj(1, "<</Type/Catalog/Pages 2 0 R>>")
	writeObj(2, "<</Type/Pages/Kids[3 0 R]/Count 1>>")
	writeObj(3, "<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]/Contents 4 0 R>>")
	writeStreamObj(4, fmt.Sprintf("<</Length %d>>", len(cipherContent)), cipherContent)
	writeStreamObj(5, fmt.Sprintf("<</Type/Metadata/Subtype/XML/Length %d>>", len(metadata)), metadata)
	writeObj(6, fmt.Sprintf(
		"<</Filter/Standard/V 4/R 4/Length 128/CF<</StdCF<</CFM/V2/Length 16>>>>/StmF/StdCF/StrF/StdCF"+
			"/O%s/U%s/P -4/EncryptMetadata false>>",
		hexString(o[:]), hexString(u[:])))

	xrefOffset := buf.Len()
	size := 7
	buf.WriteString("xref\n")
	fmt.Fprintf(&buf, "0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n < size; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<</Size %d/Root 1 0 R/Encrypt 6 0 R/ID[%s %s]>>\n",
		size, hexString(id0), hexString(id0))
	buf.WriteString("startxref\n")
	fmt.Fprintf(&buf, "%d\n", xrefOffset)
	buf.WriteString("%%EOF")

	return buf.Bytes(), Ref{Number: 4}, Ref{Number: 5}
}

func TestMetadataStreamExemptFromEncryption(t *testing.T) {
	data, contentRef, metadataRef := buildEncryptedPDFWithMetadataExemption(t)

	d, err := Open(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	contentObj, err := d.Deref(contentRef)
	if err != nil {
		t.Fatal(err)
	}
	contentStream, ok := contentObj.(Stream)
	if !ok {
		t.Fatalf("object 4 is not a stream: %T", contentObj)
	}
	contentBytes, err := d.StreamBytes(contentRef, contentStream)
	if err != nil {
		t.Fatal(err)
	}
	if string(contentBytes) != "Hello" {
		t.Errorf("decrypted content stream = %q, want %q", contentBytes, "Hello")
	}

	metadataObj, err := d.Deref(metadataRef)
	if err != nil {
		t.Fatal(err)
	}
	metadataStream, ok := metadataObj.(Stream)
	if !ok {
		t.Fatalf("object 5 is not a stream: %T", metadataObj)
	}
	metadataBytes, err := d.StreamBytes(metadataRef, metadataStream)
	if err != nil {
		t.Fatal(err)
	}
	want := "<x:xmpmeta>plain</x:xmpmeta>"
	if string(metadataBytes) != want {
		t.Errorf("metadata stream = %q, want %q (must not be run through the cipher when EncryptMetadata is false)", metadataBytes, want)
	}
}

func TestDecryptObjectWalksNestedValues(t *testing.T) {
	fileKey := []byte{1, 2, 3, 4, 5}
	enc := &encryptContext{fileKey: fileKey}

	ref := Ref{Number: 9, Generation: 0}
	key := crypt.ObjectKey(fileKey, ref.Number, ref.Generation, false)

	plainA := []byte("alpha")
	plainB := []byte("bravo")
	cipherA := append([]byte(nil), plainA...)
	cipherB := append([]byte(nil), plainB...)
	if _, err := crypt.DecryptRC4(key, cipherA); err != nil { // encrypt == decrypt for RC4
		t.Fatal(err)
	}
	if _, err := crypt.DecryptRC4(key, cipherB); err != nil {
		t.Fatal(err)
	}

	dict := NewDict()
	dict.Set("A", String(cipherA))
	input := Array{String(cipherB), dict}

	out, err := enc.decryptObject(input, ref)
	if err != nil {
		t.Fatal(err)
	}

	arr := out.(Array)
	if !bytes.Equal([]byte(arr[0].(String)), plainB) {
		t.Errorf("array element = %q, want %q", arr[0], plainB)
	}
	outDict := arr[1].(*Dict)
	v, _ := outDict.Get("A")
	if !bytes.Equal([]byte(v.(String)), plainA) {
		t.Errorf("dict value = %q, want %q", v, plainA)
	}
}

func TestIsAESFilterResolvesCFDict(t *testing.T) {
	d := &Document{}

	cf := NewDict()
	entry := NewDict()
	entry.Set("CFM", Name("AESV2"))
	cf.Set("StdCF", entry)

	encDict := NewDict()
	encDict.Set("StmF", Name("StdCF"))
	encDict.Set("CF", cf)

	isAES, err := d.isAESFilter(encDict, "StmF")
	if err != nil {
		t.Fatal(err)
	}
	if !isAES {
		t.Error("expected StmF=StdCF with CFM=AESV2 to report AES")
	}

	encDict.Set("StrF", Name("Identity"))
	isAES, err = d.isAESFilter(encDict, "StrF")
	if err != nil {
		t.Fatal(err)
	}
	if isAES {
		t.Error("Identity should never report AES")
	}
}
