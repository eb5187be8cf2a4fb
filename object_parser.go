package pdfcore

import (
	"io"

	tok "github.com/benoitkugler/pstokenizer"
)

// objParser implements the textual grammar of ISO 32000-1 §7.3: parsing of
// any PDF value, of indirect-object headers, and of the `trailer` form. It
// is built directly on pstokenizer.Tokenizer, matching the teacher's
// reader/parser.Parser.
type objParser struct {
	tokens *tok.Tokenizer
}

func newObjParser(data []byte) *objParser {
	return &objParser{tokens: tok.NewTokenizer(data)}
}

func newObjParserFromReader(r io.Reader) *objParser {
	return &objParser{tokens: tok.NewTokenizerFromReader(r)}
}

func newObjParserFromTokenizer(tk *tok.Tokenizer) *objParser {
	return &objParser{tokens: tk}
}

// ParseObject parses data as a single PDF value (anything but an indirect
// object header).
func ParseObject(data []byte) (Object, error) {
	return newObjParser(data).parseObject()
}

func (p *objParser) parseObject() (Object, error) {
	tk, err := p.tokens.NextToken()
	if err != nil {
		return nil, newErr(KindUnexpectedEOF, "object", err)
	}

	switch tk.Kind {
	case tok.EOF:
		return nil, newErrf(KindParseError, "object", "unexpected end of input")
	case tok.Name:
		return Name(tk.Value), nil
	case tok.String:
		return String(tk.Value), nil
	case tok.StringHex:
		return String(tk.Value), nil
	case tok.StartArray:
		return p.parseArray()
	case tok.StartDic:
		return p.parseDict()
	case tok.Float:
		f, err := tk.Float()
		if err != nil {
			return nil, newErr(KindParseError, "object: real number", err)
		}
		return Real(f), nil
	case tok.Integer:
		return p.parseNumericOrRef(tk)
	case tok.Other:
		return p.parseKeyword(tk.Value)
	default:
		return nil, newErrf(KindParseError, "object", "unexpected token %v", tk)
	}
}

func (p *objParser) parseArray() (Array, error) {
	a := Array{}
	for {
		tk, err := p.tokens.PeekToken()
		if err != nil {
			return nil, newErr(KindUnexpectedEOF, "array", err)
		}
		switch tk.Kind {
		case tok.EndArray:
			_, _ = p.tokens.NextToken()
			return a, nil
		case tok.EOF:
			return nil, newErrf(KindParseError, "array", "unterminated array")
		default:
			obj, err := p.parseObject()
			if err != nil {
				return nil, annotate("array", err)
			}
			a = append(a, obj)
		}
	}
}

func (p *objParser) parseDict() (*Dict, error) {
	d := NewDict()
	for {
		tk, err := p.tokens.PeekToken()
		if err != nil {
			return nil, newErr(KindUnexpectedEOF, "dict", err)
		}
		switch tk.Kind {
		case tok.EndDic:
			_, _ = p.tokens.NextToken()
			return d, nil
		case tok.EOF:
			return nil, newErrf(KindParseError, "dict", "unterminated dictionary")
		case tok.Name:
			key, err := UnescapeName(tk.Value)
			if err != nil {
				return nil, annotate("dict key", err)
			}
			_, _ = p.tokens.NextToken() // consume the key

			var value Object
			// A dict entry whose value is missing entirely (some
			// generators emit `/Key\n/Next`) is treated leniently as an
			// empty string, rather than failing the whole object.
			if p.tokens.HasEOLBeforeToken() {
				if nextTk, perr := p.tokens.PeekToken(); perr == nil && nextTk.Kind == tok.Name {
					value = String(nil)
				}
			}
			if value == nil {
				value, err = p.parseObject()
				if err != nil {
					return nil, annotate("dict value for "+string(key), err)
				}
			}

			// Specifying null as a dict value is equivalent to omitting
			// the entry entirely (ISO 32000-1 §7.3.7).
			if _, isNull := value.(Null); !isNull {
				d.Set(key, value)
			}
		default:
			return nil, newErrf(KindParseError, "dict", "unexpected token %v in dictionary", tk)
		}
	}
}

func (p *objParser) parseKeyword(l []byte) (Object, error) {
	switch string(l) {
	case "null":
		return Null{}, nil
	case "true":
		return Boolean(true), nil
	case "false":
		return Boolean(false), nil
	default:
		return nil, newErrf(KindParseError, "object", "unexpected keyword %q", l)
	}
}

// parseNumericOrRef handles the ambiguity between a lone integer and the
// start of an indirect reference `N G R`.
func (p *objParser) parseNumericOrRef(first tok.Token) (Object, error) {
	n, err := first.Int()
	if err != nil {
		return nil, newErr(KindParseError, "object: integer", err)
	}

	save := p.tokens.CurrentPosition()

	second, err := p.tokens.PeekToken()
	if err != nil || second.Kind != tok.Integer {
		return Integer(n), nil
	}
	gen, err := second.Int()
	if err != nil {
		return Integer(n), nil
	}

	third, err := p.tokens.PeekPeekToken()
	if err != nil || !third.IsOther("R") {
		p.tokens.SetPosition(save)
		return Integer(n), nil
	}

	_, _ = p.tokens.NextToken() // consume generation
	_, _ = p.tokens.NextToken() // consume "R"
	return Ref{Number: int(n), Generation: int(gen)}, nil
}

// parseObjectHeader parses the `N G obj` prologue shared by
// parseIndirectObject and the xref navigator's direct object lookups.
func (p *objParser) parseObjectHeader() (number, generation int, err error) {
	numTk, err := p.tokens.NextToken()
	if err != nil {
		return 0, 0, newErr(KindUnexpectedEOF, "indirect object header", err)
	}
	n, err := numTk.Int()
	if numTk.Kind != tok.Integer || err != nil {
		return 0, 0, newErrf(KindParseError, "indirect object header", "expected object number")
	}

	genTk, err := p.tokens.NextToken()
	if err != nil {
		return 0, 0, newErr(KindUnexpectedEOF, "indirect object header", err)
	}
	g, err := genTk.Int()
	if genTk.Kind != tok.Integer || err != nil {
		return 0, 0, newErrf(KindParseError, "indirect object header", "expected generation number")
	}

	objTk, err := p.tokens.NextToken()
	if err != nil {
		return 0, 0, newErr(KindUnexpectedEOF, "indirect object header", err)
	}
	if !objTk.IsOther("obj") {
		return 0, 0, newErrf(KindParseError, "indirect object header", `expected "obj" keyword`)
	}

	return int(n), int(g), nil
}

// parseIndirectObject parses `N G obj <value> endobj`. When value is a
// dictionary immediately followed by `stream\r?\n`, the returned Object is a
// Stream whose PayloadOffset is the offset (relative to the tokenizer's
// input) of the first payload byte; payload bytes themselves are not
// consumed (spec.md §4.2).
func (p *objParser) parseIndirectObject() (IndirectObject, error) {
	number, generation, err := p.parseObjectHeader()
	if err != nil {
		return IndirectObject{}, err
	}

	value, err := p.parseObject()
	if err != nil {
		return IndirectObject{}, annotate(objContext(number, generation), err)
	}

	if dict, ok := value.(*Dict); ok {
		if streamTk, err := p.tokens.PeekToken(); err == nil && streamTk.IsOther("stream") {
			_, _ = p.tokens.NextToken()
			value = Stream{Dict: dict, PayloadOffset: int64(p.tokens.StreamPosition())}
			return IndirectObject{Ref: Ref{Number: number, Generation: generation}, Value: value}, nil
		}
	}

	return IndirectObject{Ref: Ref{Number: number, Generation: generation}, Value: value}, nil
}

// parseTrailer parses the `trailer <<...>>` form and returns the trailer
// dictionary.
func (p *objParser) parseTrailer() (*Dict, error) {
	tk, err := p.tokens.NextToken()
	if err != nil {
		return nil, newErr(KindUnexpectedEOF, "trailer", err)
	}
	if !tk.IsOther("trailer") {
		return nil, newErrf(KindParseError, "trailer", `expected "trailer" keyword`)
	}
	obj, err := p.parseObject()
	if err != nil {
		return nil, annotate("trailer", err)
	}
	dict, ok := obj.(*Dict)
	if !ok {
		return nil, newErrf(KindParseError, "trailer", "expected dictionary, got %T", obj)
	}
	return dict, nil
}

func objContext(number, generation int) string {
	return "object " + Integer(number).String() + " generation " + Integer(generation).String()
}
