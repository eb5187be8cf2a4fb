package pdfcore

import (
	"fmt"

	"golang.org/x/exp/errors"
	xfmt "golang.org/x/exp/errors/fmt"
)

// Kind classifies the failures a core operation can report, per the error
// model of a tolerant, random-access PDF reader: parsing, structural, and
// cryptographic failures are distinguished so a caller can decide whether to
// abort a whole navigator walk or simply treat one object as missing.
type Kind uint8

const (
	// KindIOError wraps a failure of the underlying byte source itself.
	KindIOError Kind = iota
	// KindUnexpectedEOF signals a read past the end of the byte source.
	KindUnexpectedEOF
	// KindParseError signals the textual parser expected a specific token
	// and did not find it.
	KindParseError
	// KindCorrupted signals a grammar or invariant violation: malformed
	// xref entries, a missing startxref, a wrong generation on lookup.
	KindCorrupted
	// KindUnsupportedFeature signals a filter, encryption algorithm, or
	// predictor this module does not implement.
	KindUnsupportedFeature
	// KindAuthFailure signals that encryption key setup succeeded
	// syntactically but password verification failed.
	KindAuthFailure
)

func (k Kind) String() string {
	switch k {
	case KindIOError:
		return "IOError"
	case KindUnexpectedEOF:
		return "UnexpectedEOF"
	case KindParseError:
		return "ParseError"
	case KindCorrupted:
		return "Corrupted"
	case KindUnsupportedFeature:
		return "UnsupportedFeature"
	case KindAuthFailure:
		return "AuthFailure"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every exported operation in this
// package. It carries a Kind so callers can branch on the failure class, and
// a context path built up as the error is propagated outward through the
// layers (xref chain, object graph, stream decode pipeline).
type Error struct {
	Kind    Kind
	Context string // e.g. "xref entry for object 12 generation 0"
	err     error
}

func (e *Error) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func newErr(kind Kind, context string, err error) *Error {
	return &Error{Kind: kind, Context: context, err: err}
}

func newErrf(kind Kind, context string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Context: context, err: xfmt.Errorf(format, args...)}
}

// annotate wraps err (if non-nil) with an additional breadcrumb, preserving
// its Kind when err is already one of ours, and defaulting to KindCorrupted
// otherwise (an error from a dependency that isn't already classified).
func annotate(context string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Context == "" {
			return newErr(e.Kind, context, e.err)
		}
		return newErr(e.Kind, context+": "+e.Context, e.err)
	}
	return newErr(KindCorrupted, context, err)
}

// KindOf reports the Kind of err, or KindCorrupted if err was not produced
// by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindCorrupted
}
