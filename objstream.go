package pdfcore

import (
	"bytes"
	"strconv"
)

// objectStream is the decoded content of one ObjStm container: the Objects
// it holds, in the order declared by its prologue.
type objectStream []Object

// processObjectStream decodes (and caches) the object stream whose
// container object number is on. Grounded on
// reader/file/object_streams.go's processObjectStream.
func (d *Document) processObjectStream(on int) (objectStream, error) {
	if cached, ok := d.xref.objStreams[on]; ok {
		return cached, nil
	}

	entry, ok := d.xref.entries[on]
	if !ok || entry.kind != xrefInUse {
		return nil, newErrf(KindCorrupted, "object stream", "missing container object %d", on)
	}

	header, err := d.parseStreamHeaderAt(entry.offset)
	if err != nil {
		return nil, annotate("object stream", err)
	}

	decoded, err := d.decodeStreamPayload(header.dict, header.contentOffset, Ref{Number: on, Generation: entry.generation})
	if err != nil {
		return nil, annotate("object stream", err)
	}

	first, ok := asInteger(mustGet(header.dict, "First"))
	if !ok {
		return nil, newErrf(KindCorrupted, "object stream", `missing "First" entry`)
	}
	if int(first) > len(decoded) {
		return nil, newErrf(KindCorrupted, "object stream", "First (%d) beyond decoded length (%d)", first, len(decoded))
	}

	// The prolog is N pairs of (object number, relative offset) separated
	// by whitespace, but some writers use a literal 0x00 byte instead.
	prolog := bytes.ReplaceAll(decoded[:first], []byte{0x00}, []byte{' '})
	fields := bytes.Fields(prolog)
	if len(fields)%2 != 0 {
		return nil, newErrf(KindCorrupted, "object stream", "odd number of prolog fields (%d)", len(fields))
	}

	count := len(fields) / 2
	offsets := make([]int, count)
	for i := 0; i < count; i++ {
		rel, err := strconv.Atoi(string(fields[2*i+1]))
		if err != nil {
			return nil, newErrf(KindCorrupted, "object stream", "invalid offset field %q", fields[2*i+1])
		}
		offsets[i] = int(first) + rel
		if offsets[i] > len(decoded) {
			return nil, newErrf(KindCorrupted, "object stream", "offset %d beyond decoded length (%d)", offsets[i], len(decoded))
		}
	}

	objects := make(objectStream, count)
	for i := range objects {
		start, end := offsets[i], len(decoded)
		if i+1 < count {
			end = offsets[i+1]
		}
		obj, err := ParseObject(decoded[start:end])
		if err != nil {
			return nil, annotate("object stream member", err)
		}
		objects[i] = obj
	}

	d.xref.objStreams[on] = objects
	return objects, nil
}
