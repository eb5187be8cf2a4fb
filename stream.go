package pdfcore

import (
	"bytes"
	"io"
	"log"

	"github.com/arkaio/pdfcore/filters"
)

type streamHeader struct {
	number, generation int
	dict               *Dict
	contentOffset      int64
}

// parseStreamHeaderAt parses the `N G obj << ... >> stream` prologue at
// offset and returns the dictionary plus the absolute offset of the first
// payload byte. Grounded on reader/file/streams.go's parseStreamDictAt.
func (d *Document) parseStreamHeaderAt(offset int64) (streamHeader, error) {
	var out streamHeader
	if _, err := d.src.Seek(offset, io.SeekStart); err != nil {
		return out, newErr(KindIOError, "stream header", err)
	}
	p := newObjParserFromReader(d.src)

	number, generation, err := p.parseObjectHeader()
	if err != nil {
		return out, err
	}
	obj, err := p.parseObject()
	if err != nil {
		return out, annotate("stream header", err)
	}
	dict, ok := obj.(*Dict)
	if !ok {
		return out, newErrf(KindParseError, "stream header", "expected dictionary, got %T", obj)
	}

	streamTk, err := p.tokens.NextToken()
	if err != nil {
		return out, newErr(KindUnexpectedEOF, "stream header", err)
	}
	if !streamTk.IsOther("stream") {
		return out, newErrf(KindParseError, "stream header", `expected "stream" keyword`)
	}

	out.number, out.generation = number, generation
	out.dict = dict
	out.contentOffset = offset + int64(p.tokens.StreamPosition())
	return out, nil
}

// filterChain resolves dict's /Filter and /DecodeParms entries (each may be
// a lone Name/Dict or an Array of them) into a filters.Step pipeline,
// dereferencing indirect entries along the way.
func (d *Document) filterChain(dict *Dict) ([]filters.Step, error) {
	filterObj, err := d.Deref(mustGet(dict, "Filter"))
	if err != nil {
		return nil, err
	}
	parmsObj, err := d.Deref(mustGet(dict, "DecodeParms"))
	if err != nil {
		return nil, err
	}

	var names Array
	switch v := filterObj.(type) {
	case Name:
		names = Array{v}
	case Array:
		names = v
	case nil, Null:
		return nil, nil
	default:
		return nil, newErrf(KindCorrupted, "filter chain", "Filter must be a name or array, got %T", filterObj)
	}

	var parmsList Array
	switch v := parmsObj.(type) {
	case *Dict:
		parmsList = Array{v}
	case Array:
		parmsList = v
	}

	steps := make([]filters.Step, len(names))
	for i, n := range names {
		name, ok := n.(Name)
		if !ok {
			return nil, newErrf(KindCorrupted, "filter chain", "filter name must be a Name, got %T", n)
		}
		steps[i] = filters.Step{Name: string(name), Params: filters.Params{EarlyChange: 1}}
		if i < len(parmsList) {
			parmsObj, err := d.Deref(parmsList[i])
			if err != nil {
				return nil, err
			}
			if pd, ok := asDict(parmsObj); ok {
				steps[i].Params = d.decodeParams(pd)
			}
		}
	}
	return steps, nil
}

func (d *Document) decodeParams(pd *Dict) filters.Params {
	get := func(key Name, def int) int {
		v, err := d.Deref(mustGet(pd, key))
		if err != nil {
			return def
		}
		n, ok := asInteger(v)
		if !ok {
			return def
		}
		return int(n)
	}
	earlyChange := 1
	if ec, err := d.Deref(mustGet(pd, "EarlyChange")); err == nil {
		if n, ok := asInteger(ec); ok {
			earlyChange = int(n)
		}
	}
	return filters.Params{
		Predictor:        get("Predictor", 0),
		Colors:           get("Colors", 0),
		BitsPerComponent: get("BitsPerComponent", 0),
		Columns:          get("Columns", 0),
		EarlyChange:      earlyChange,
	}
}

// extractStreamContent locates and returns the raw (still encoded, still
// possibly encrypted) payload bytes of a stream whose dictionary is dict,
// starting at contentOffset. declaredLength is the stream's /Length value,
// which is not always trustworthy (spec.md §4.6 edge cases).
//
// Grounded on reader/file/streams.go's extractStreamContent /
// readStreamWithEOD / readStreamBlindly / readStreamMaxLength.
func (d *Document) extractStreamContent(dict *Dict, contentOffset int64, declaredLength int, encrypted bool) ([]byte, error) {
	chain, err := d.filterChain(dict)
	if err != nil {
		return nil, err
	}

	if encrypted || len(chain) == 0 {
		return d.readStreamFromLength(contentOffset, declaredLength)
	}

	skipper, ok := filters.SkipperFor(chain[0])
	if !ok {
		return d.readStreamFromLength(contentOffset, declaredLength)
	}

	out, err := d.readStreamWithEOD(skipper, contentOffset)
	if err != nil {
		log.Printf("pdfcore: reading filtered stream at offset %d: %v; falling back to length heuristics", contentOffset, err)
		return d.readStreamFromLength(contentOffset, declaredLength)
	}
	return out, nil
}

func (d *Document) readStreamFromLength(offset int64, declaredLength int) ([]byte, error) {
	if declaredLength <= 0 || int64(declaredLength) > d.size {
		return d.readStreamBlindly(offset)
	}
	return d.readStreamMaxLength(offset, declaredLength)
}

// readStreamBlindly buffers forward from offset looking for the literal
// "endstream" marker, the last resort when /Length is unusable.
func (d *Document) readStreamBlindly(offset int64) ([]byte, error) {
	if _, err := d.src.Seek(offset, io.SeekStart); err != nil {
		return nil, newErr(KindIOError, "stream content", err)
	}
	const eod = "endstream"
	var (
		buf   [1024]byte
		total []byte
	)
	for {
		n, err := d.src.Read(buf[:])
		total = append(total, buf[:n]...)
		searchStart := len(total) - n - len(eod)
		if searchStart < 0 {
			searchStart = 0
		}
		if idx := bytes.Index(total[searchStart:], []byte(eod)); idx != -1 {
			return bytes.TrimRight(total[:searchStart+idx], "\r\n"), nil
		}
		if err == io.EOF {
			return nil, newErrf(KindUnexpectedEOF, "stream content", "no endstream marker found")
		}
		if err != nil {
			return nil, newErr(KindIOError, "stream content", err)
		}
	}
}

// readStreamMaxLength reads exactly maxLength bytes, falling back to an
// "endstream" scan if that overruns EOF (a corrupted /Length).
func (d *Document) readStreamMaxLength(offset int64, maxLength int) ([]byte, error) {
	if _, err := d.src.Seek(offset, io.SeekStart); err != nil {
		return nil, newErr(KindIOError, "stream content", err)
	}
	buf := make([]byte, maxLength)
	_, err := io.ReadFull(d.src, buf)
	if err == io.ErrUnexpectedEOF {
		if eob := bytes.Index(buf, []byte("endstream")); eob >= 0 {
			return buf[:eob], nil
		}
		return nil, newErr(KindUnexpectedEOF, "stream content", err)
	}
	if err != nil {
		return nil, newErr(KindIOError, "stream content", err)
	}
	return buf, nil
}

// readStreamWithEOD reads until skipper reports the filter's own
// end-of-data marker, the most reliable length source when available.
func (d *Document) readStreamWithEOD(skipper filters.Skipper, offset int64) ([]byte, error) {
	if _, err := d.src.Seek(offset, io.SeekStart); err != nil {
		return nil, newErr(KindIOError, "stream content", err)
	}
	n, err := skipper.Skip(d.src)
	if err != nil {
		return nil, newErrf(KindCorrupted, "stream content", "failed to locate end of data: %v", err)
	}
	return d.readAt(offset, int64(n))
}

// decodeStreamPayload returns the fully decrypted and filter-decoded bytes
// of the stream described by dict/contentOffset/ref. The identity crypt
// filter is honored: a stream whose sole filter is "Crypt" with /Name
// Identity (the default when /Name is absent) is not separately decrypted
// (spec.md §4.7 edge cases).
func (d *Document) decodeStreamPayload(dict *Dict, contentOffset int64, ref Ref) ([]byte, error) {
	length := 0
	if lengthObj, err := d.Deref(mustGet(dict, "Length")); err == nil {
		if n, ok := asInteger(lengthObj); ok {
			length = int(n)
		}
	}

	chain, err := d.filterChain(dict)
	if err != nil {
		return nil, err
	}

	isIdentityCrypt := false
	if len(chain) == 1 && chain[0].Name == filters.Crypt {
		cryptName := Name("Identity")
		parms, _ := d.Deref(mustGet(dict, "DecodeParms"))
		if arr, ok := asArray(parms); ok && len(arr) > 0 {
			parms, _ = d.Deref(arr[0])
		}
		if pd, ok := asDict(parms); ok {
			if n, ok := asName(mustGet(pd, "Name")); ok {
				cryptName = n
			}
		}
		isIdentityCrypt = cryptName == "Identity"
	}
	exemptMetadata := d.isExemptMetadataStream(dict)

	raw, err := d.extractStreamContent(dict, contentOffset, length, d.enc != nil && !exemptMetadata)
	if err != nil {
		return nil, annotate("stream payload", err)
	}

	if d.enc != nil && !isIdentityCrypt && !exemptMetadata {
		raw, err = d.enc.decryptStreamPayload(raw, ref)
		if err != nil {
			return nil, annotate("stream payload", err)
		}
	}

	decoded, err := filters.DecodeChain(chain, raw)
	if err != nil {
		return nil, annotate("stream payload", err)
	}
	return decoded, nil
}

// StreamBytes returns the decoded content of a Stream object previously
// obtained via Deref. ref must be the reference that resolved to s.
func (d *Document) StreamBytes(ref Ref, s Stream) ([]byte, error) {
	return d.decodeStreamPayload(s.Dict, s.PayloadOffset, ref)
}
