package pdfcore

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	tok "github.com/benoitkugler/pstokenizer"
)

// Configuration tunes how Open processes a file. The zero value is a usable
// default: no password, lazy object-stream decoding.
type Configuration struct {
	// UserPassword is tried against the Standard Security Handler, if the
	// file declares one, before Open fails with KindAuthFailure.
	UserPassword []byte

	// EagerObjectStreams makes Open decode every compressed object up
	// front instead of lazily on first lookupObject. Useful for callers
	// that will walk the whole object graph anyway and want failures
	// surfaced at Open time.
	EagerObjectStreams bool
}

func NewDefaultConfiguration() *Configuration { return &Configuration{} }

// Document is a parsed PDF file: its cross-reference table and trailer have
// been read, but indirect objects are resolved lazily, on demand, from the
// underlying byte source (spec.md §4.4, §9 concurrency notes: a Document is
// not safe for concurrent use without external synchronization, mirroring
// the teacher's *context).
type Document struct {
	src  io.ReadSeeker
	size int64

	Configuration

	HeaderVersion     string
	xref              *xrefTable
	trailer           *Dict
	additionalStreams Array

	enc *encryptContext
}

// Open reads the cross-reference table and trailer of src and returns a
// Document ready for object lookup. It does not itself load the page tree
// or any other document-level structure; that belongs to a layer built on
// top of this package (spec.md §1 Scope).
func Open(src io.ReadSeeker, conf *Configuration) (*Document, error) {
	if conf == nil {
		conf = NewDefaultConfiguration()
	}
	d := &Document{src: src, Configuration: *conf, xref: newXrefTable()}

	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, newErr(KindIOError, "open", err)
	}
	d.size = size

	d.HeaderVersion, err = d.readHeaderVersion()
	if err != nil {
		return nil, err
	}

	offset, err := d.offsetOfLastXRefSection(0)
	if err != nil {
		return nil, annotate("open", err)
	}

	if err := d.buildXRefChain(offset); err != nil {
		return nil, annotate("open", err)
	}

	if d.trailer == nil {
		return nil, newErrf(KindCorrupted, "open", "no trailer found")
	}
	if _, ok := d.trailer.Get("Root"); !ok {
		return nil, newErrf(KindCorrupted, "open", "trailer is missing a Root entry")
	}

	if err := d.setupEncryption(); err != nil {
		return nil, annotate("open", err)
	}

	if conf.EagerObjectStreams {
		if err := d.resolveAllObjects(); err != nil {
			return nil, annotate("open", err)
		}
	}

	return d, nil
}

// Trailer returns the merged trailer dictionary (across every incremental
// update processed).
func (d *Document) Trailer() *Dict { return d.trailer }

// AdditionalStreams returns the trailer's AdditionalStreams entries, an
// Adobe extension used by some generators (e.g. Oasis Open Doc) to stash
// extra indirect streams outside the normal object graph.
func (d *Document) AdditionalStreams() Array { return d.additionalStreams }

// Root returns the trailer's Root reference, resolved.
func (d *Document) Root() (Object, error) {
	root, _ := d.trailer.Get("Root")
	return d.Deref(root)
}

// --- byte-source helpers ---

// readAt allocates a size-byte buffer and fills it from offset. A request
// running past the end of the file is clamped to the file size; a read that
// still comes up short is reported as KindUnexpectedEOF.
func (d *Document) readAt(offset int64, size int64) ([]byte, error) {
	if size < 0 || offset < 0 || offset > d.size {
		return nil, newErrf(KindCorrupted, "read", "invalid offset/size %d/%d", offset, size)
	}
	if offset+size > d.size {
		size = d.size - offset
	}
	if _, err := d.src.Seek(offset, io.SeekStart); err != nil {
		return nil, newErr(KindIOError, "read", err)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(d.src, buf); err != nil {
		return nil, newErr(KindUnexpectedEOF, "read", err)
	}
	return buf, nil
}

// readHeaderVersion reads the `%PDF-1.N` banner expected as the file's
// first line. Grounded on reader/file/read.go's headerVersion.
func (d *Document) readHeaderVersion() (string, error) {
	if _, err := d.src.Seek(0, io.SeekStart); err != nil {
		return "", newErr(KindIOError, "header", err)
	}
	buf := make([]byte, 100)
	n, err := d.src.Read(buf)
	if err != nil && err != io.EOF {
		return "", newErr(KindIOError, "header", err)
	}
	buf = buf[:n]

	const prefix = "%PDF-"
	s := string(buf)
	if len(s) < len(prefix)+3 || !strings.HasPrefix(s, prefix) {
		return "", newErrf(KindCorrupted, "header", "missing %%PDF- version banner")
	}
	return s[len(prefix) : len(prefix)+3], nil
}

// offsetOfLastXRefSection locates the last `startxref` / `%%EOF` pair by
// scanning backward from the end of the file in fixed-size chunks.
// Grounded on reader/file/read.go's offsetLastXRefSection.
func (d *Document) offsetOfLastXRefSection(skip int64) (int64, error) {
	var prevBuf, workBuf []byte
	bufSize := int64(512)
	if d.size < bufSize {
		bufSize = d.size
	}

	for i := int64(1); ; i++ {
		seekPos := -i*bufSize - skip
		if _, err := d.src.Seek(seekPos, io.SeekEnd); err != nil {
			return 0, newErrf(KindCorrupted, "startxref", "can't find last xref section: %v", err)
		}
		curBuf := make([]byte, bufSize)
		if _, err := d.src.Read(curBuf); err != nil {
			return 0, newErrf(KindCorrupted, "startxref", "can't read last xref section: %v", err)
		}

		workBuf = append(curBuf, prevBuf...)
		j := bytes.LastIndex(workBuf, []byte("startxref"))
		if j == -1 {
			prevBuf = curBuf
			if seekPos <= -d.size {
				return 0, newErrf(KindCorrupted, "startxref", "no startxref keyword found")
			}
			continue
		}

		p := workBuf[j+len("startxref"):]
		posEOF := bytes.Index(p, []byte("%%EOF"))
		if posEOF == -1 {
			return 0, newErrf(KindCorrupted, "startxref", "no matching %%%%EOF for startxref")
		}
		p = bytes.TrimSpace(p[:posEOF])

		offset, err := parseASCIIInt(p)
		if err != nil || offset < 0 || offset >= d.size {
			return 0, newErrf(KindCorrupted, "startxref", "corrupted startxref offset")
		}
		return offset, nil
	}
}

func parseASCIIInt(b []byte) (int64, error) {
	tk := tok.NewTokenizer(b)
	t, err := tk.NextToken()
	if err != nil {
		return 0, err
	}
	return t.Int()
}

// --- lazy object resolution ---

// Deref resolves o if it is a Ref, otherwise returns it unchanged. It performs
// a single lookup: if the resolved value is itself a Ref, that Ref is
// returned as is, not followed.
func (d *Document) Deref(o Object) (Object, error) {
	ref, ok := o.(Ref)
	if !ok {
		return o, nil
	}
	return d.lookupObject(ref)
}

// lookupObject resolves ref using the cross-reference table, caching the
// result on the entry. An undefined object number resolves to Null, per
// ISO 32000-1 §7.3.10: dangling references are not an error.
func (d *Document) lookupObject(ref Ref) (Object, error) {
	entry, ok := d.xref.entries[ref.Number]
	if !ok || entry.kind == xrefFree {
		return Null{}, nil
	}
	if entry.kind == xrefInUse && entry.generation != ref.Generation {
		return nil, newErrf(KindCorrupted, objContext(ref.Number, ref.Generation),
			"xref entry for object %d has generation %d, reference requested generation %d",
			ref.Number, entry.generation, ref.Generation)
	}
	if entry.cached != nil {
		return entry.cached, nil
	}

	// Guard against malicious or accidental cycles (a compressed object
	// whose container is itself, or an object stream entry pointing back
	// at the referencing object) by installing a placeholder before
	// recursing.
	entry.cached = Null{}

	var (
		value Object
		err   error
	)
	if entry.kind == xrefCompressed {
		value, err = d.lookupCompressedObject(entry)
	} else {
		value, err = d.lookupDirectObject(ref.Number, entry)
	}
	if err != nil {
		return nil, err
	}

	if d.enc != nil && entry.kind != xrefCompressed {
		// Objects inside an object stream are not separately encrypted:
		// the stream payload containing them already was.
		value, err = d.enc.decryptObject(value, ref)
		if err != nil {
			return nil, annotate(objContext(ref.Number, ref.Generation), err)
		}
	}

	entry.cached = value
	return value, nil
}

func (d *Document) lookupCompressedObject(entry *xrefEntry) (Object, error) {
	objs, err := d.processObjectStream(entry.containerNumber)
	if err != nil {
		return nil, annotate("compressed object", err)
	}
	if entry.indexInContainer >= len(objs) {
		return nil, newErrf(KindCorrupted, "compressed object", "index %d out of range (stream has %d objects)", entry.indexInContainer, len(objs))
	}
	return objs[entry.indexInContainer], nil
}

func (d *Document) lookupDirectObject(number int, entry *xrefEntry) (Object, error) {
	ind, err := d.parseIndirectObjectAt(entry.offset)
	if err != nil {
		return nil, annotate(objContext(number, entry.generation), err)
	}
	if ind.Ref.Number != number {
		return nil, newErrf(KindCorrupted, objContext(number, entry.generation), "xref offset points at object %d", ind.Ref.Number)
	}

	stream, isStream := ind.Value.(Stream)
	if !isStream {
		return ind.Value, nil
	}

	// Streams carry their content separately: the payload is not read here;
	// StreamBytes decodes it lazily from the Dict/offset pair stored in the
	// Stream.
	return stream, nil
}

// parseIndirectObjectAt parses the `N G obj ... endobj` (or `...stream`)
// construct located at offset.
func (d *Document) parseIndirectObjectAt(offset int64) (IndirectObject, error) {
	if _, err := d.src.Seek(offset, io.SeekStart); err != nil {
		return IndirectObject{}, newErr(KindIOError, "object", err)
	}
	p := newObjParserFromReader(d.src)
	ind, err := p.parseIndirectObject()
	if err != nil {
		return IndirectObject{}, err
	}
	if s, ok := ind.Value.(Stream); ok {
		s.PayloadOffset += offset
		ind.Value = s
	}
	return ind, nil
}

// resolveAllObjects eagerly resolves every in-use and compressed object
// number, used by Configuration.EagerObjectStreams.
func (d *Document) resolveAllObjects() error {
	for number, entry := range d.xref.entries {
		if entry.kind == xrefFree {
			continue
		}
		if _, err := d.lookupObject(Ref{Number: number, Generation: entry.generation}); err != nil {
			return err
		}
	}
	return nil
}

// --- small io helpers shared with xref.go's bypass scanner ---

type readerAt = io.Reader

type bufReader struct{ r *bufio.Reader }

func newBufReader(r readerAt) *bufReader { return &bufReader{r: bufio.NewReader(r)} }
func (b *bufReader) ReadByte() (byte, error) { return b.r.ReadByte() }
