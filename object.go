// Package pdfcore provides random-access, memory-efficient access to the
// structural layer of a PDF file: the cross-reference table, the trailer,
// indirect objects and content streams. It deliberately stops at the
// object-graph plumbing; interpreting pages, fonts or content-stream
// operators is left to a higher, document-level layer.
package pdfcore

import (
	"strconv"
	"strings"
)

// Object is a tagged sum over the PDF value types (ISO 32000-1 §7.3). The
// concrete types below are the only ones that implement it; a type switch
// over Object is exhaustive.
type Object interface {
	isObject()
	// String returns the canonical textual form of the object, as it would
	// appear on the wire (escaping applied, but no encryption).
	String() string
}

// Null is the PDF null object.
type Null struct{}

func (Null) isObject()       {}
func (Null) String() string { return "null" }

// Boolean is a PDF boolean object.
type Boolean bool

func (Boolean) isObject() {}
func (b Boolean) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Integer is a PDF integer object (NumberI in the data model).
type Integer int64

func (Integer) isObject() {}
func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }

// Real is a PDF real-number object (NumberR in the data model).
type Real float64

func (Real) isObject() {}
func (f Real) String() string {
	s := strconv.FormatFloat(float64(f), 'f', -1, 64)
	return s
}

// String is a PDF string object: raw bytes, not decoded. Both the literal
// `(...)` and hexadecimal `<...>` syntaxes parse to this type; which one was
// used on the wire is not preserved (spec §3: strings are value-typed).
type String []byte

func (String) isObject() {}

func (s String) String() string {
	return EscapeLiteralString([]byte(s))
}

// Name is an atomic PDF name value: bytes, decoded from any `#xx` escapes
// already. On the wire it is re-escaped by EscapeName.
type Name string

func (Name) isObject() {}
func (n Name) String() string { return "/" + EscapeName(string(n)) }

// Array is an ordered sequence of Object.
type Array []Object

func (Array) isObject() {}
func (a Array) String() string {
	parts := make([]string, len(a))
	for i, o := range a {
		parts[i] = o.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Dict is a mapping from Name to Object. Keys are unique; Go map iteration
// order is not semantically meaningful, but the Writer needs a stable
// sequence to serialize deterministically, so Dict additionally carries
// insertion order.
type Dict struct {
	m     map[Name]Object
	order []Name
}

func NewDict() *Dict { return &Dict{m: map[Name]Object{}} }

func (*Dict) isObject() {}

// Get returns the value for key, or (nil, false) if absent.
func (d *Dict) Get(key Name) (Object, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.m[key]
	return v, ok
}

// Set inserts or overwrites key. Insertion order is preserved for new keys.
func (d *Dict) Set(key Name, value Object) {
	if _, exists := d.m[key]; !exists {
		d.order = append(d.order, key)
	}
	d.m[key] = value
}

// Keys returns the dictionary's keys in insertion order.
func (d *Dict) Keys() []Name {
	if d == nil {
		return nil
	}
	return d.order
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.m)
}

func (d *Dict) String() string {
	var b strings.Builder
	b.WriteString("<<")
	for _, k := range d.order {
		b.WriteString(k.String())
		b.WriteByte(' ')
		b.WriteString(d.m[k].String())
		b.WriteByte(' ')
	}
	b.WriteString(">>")
	return b.String()
}

// Ref is an indirect reference: an object number (>= 1) and a generation
// (>= 0).
type Ref struct {
	Number     int
	Generation int
}

func (Ref) isObject() {}
func (r Ref) String() string {
	return strconv.Itoa(r.Number) + " " + strconv.Itoa(r.Generation) + " R"
}

// Stream pairs a dictionary with the starting byte offset of its payload in
// the underlying file. A Stream only ever exists as the value of an
// IndirectObject: the grammar requires `N G obj << ... >> stream ... `.
type Stream struct {
	Dict *Dict
	// PayloadOffset is the absolute byte offset of the first payload byte,
	// i.e. immediately after the `stream` keyword's end-of-line marker.
	PayloadOffset int64
}

func (Stream) isObject() {}
func (s Stream) String() string { return s.Dict.String() }

// IndirectObject is a (Ref, Object) pair, the unit produced by
// parseIndirectObject and consumed by the Writer.
type IndirectObject struct {
	Ref   Ref
	Value Object
}

// asInteger, asName, ... are small accessor helpers returning (value, ok)
// rather than panicking on a type mismatch; no reason is given for a
// failure. asInteger also accepts a Real, truncating it toward zero.

func asInteger(o Object) (int64, bool) {
	switch v := o.(type) {
	case Integer:
		return int64(v), true
	case Real:
		return int64(v), true
	}
	return 0, false
}

func asName(o Object) (Name, bool) {
	n, ok := o.(Name)
	return n, ok
}

func asDict(o Object) (*Dict, bool) {
	switch v := o.(type) {
	case *Dict:
		return v, true
	case Stream:
		return v.Dict, true
	}
	return nil, false
}

func asArray(o Object) (Array, bool) {
	a, ok := o.(Array)
	return a, ok
}

func asString(o Object) ([]byte, bool) {
	s, ok := o.(String)
	return []byte(s), ok
}
