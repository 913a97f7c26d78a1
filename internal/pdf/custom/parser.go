package custom

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// LengthResolver resolves an indirect stream /Length
type LengthResolver func(ref *IndirectRef) (int64, bool)

// PDFParser builds objects from PDF syntax held in memory
type PDFParser struct {
	data           []byte
	lexer          *PDFLexer
	lengthResolver LengthResolver
}

// NewPDFParser creates a parser over data positioned at offset 0
func NewPDFParser(data []byte) *PDFParser {
	return &PDFParser{
		data:  data,
		lexer: NewPDFLexer(data, 0),
	}
}

// SetLengthResolver installs the callback used for indirect /Length values
func (p *PDFParser) SetLengthResolver(fn LengthResolver) {
	p.lengthResolver = fn
}

// SeekTo positions the parser at an absolute offset
func (p *PDFParser) SeekTo(offset int64) {
	p.lexer.SeekTo(offset)
}

// Position returns the current offset
func (p *PDFParser) Position() int64 {
	return p.lexer.GetPosition()
}

// Lexer exposes the underlying lexer
func (p *PDFParser) Lexer() *PDFLexer {
	return p.lexer
}

// ParseIndirectObjectAt parses "N G obj ... endobj" at offset
func (p *PDFParser) ParseIndirectObjectAt(offset int64) (*IndirectObject, error) {
	p.lexer.SeekTo(offset)
	return p.ParseIndirectObject()
}

// ParseIndirectObject parses an indirect object definition at the current position
func (p *PDFParser) ParseIndirectObject() (*IndirectObject, error) {
	numToken, err := p.lexer.ExpectToken(TokenNumber)
	if err != nil {
		return nil, fmt.Errorf("object number: %w", err)
	}
	objNum, err := strconv.ParseInt(numToken.Value, 10, 64)
	if err != nil {
		return nil, NewParseError("invalid object number", numToken.Pos)
	}

	genToken, err := p.lexer.ExpectToken(TokenNumber)
	if err != nil {
		return nil, fmt.Errorf("generation number: %w", err)
	}
	generation, err := strconv.ParseInt(genToken.Value, 10, 64)
	if err != nil {
		return nil, NewParseError("invalid generation number", genToken.Pos)
	}

	if _, err := p.lexer.ExpectToken(TokenObjStart); err != nil {
		return nil, err
	}

	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("object %d %d: %w", objNum, generation, err)
	}

	// endobj is frequently missing or misplaced in the wild; only the
	// object body matters.
	if tok, err := p.lexer.PeekToken(); err == nil && tok.Type == TokenObjEnd {
		_, _ = p.lexer.NextToken()
	}

	return &IndirectObject{
		ID:     ObjectID{Number: objNum, Generation: generation},
		Object: obj,
	}, nil
}

// ParseObject parses a PDF object of any type at the current position
func (p *PDFParser) ParseObject() (PDFObject, error) {
	token, err := p.lexer.NextToken()
	if err != nil {
		return nil, err
	}
	return p.parseTokenAsObject(token)
}

func (p *PDFParser) parseTokenAsObject(token Token) (PDFObject, error) {
	switch token.Type {
	case TokenKeyword:
		switch token.Value {
		case "null":
			return &Null{}, nil
		case "true":
			return &Bool{Value: true}, nil
		case "false":
			return &Bool{Value: false}, nil
		default:
			return &Keyword{Value: token.Value}, nil
		}

	case TokenNumber:
		return p.parseNumberOrRef(token)

	case TokenString:
		return &String{Value: token.Value}, nil

	case TokenHexString:
		return &String{Value: token.Value, IsHex: true}, nil

	case TokenName:
		return &Name{Value: token.Value}, nil

	case TokenArrayStart:
		return p.parseArray()

	case TokenDictStart:
		return p.parseDictionary()

	case TokenEOF:
		return nil, NewParseError("unexpected end of data", token.Pos)

	default:
		return nil, NewParseError(fmt.Sprintf("unexpected token %s %q", token.Type, token.Value), token.Pos)
	}
}

// parseNumber parses a numeric object
func parseNumber(token Token) (*Number, error) {
	if strings.Contains(token.Value, ".") {
		val, err := strconv.ParseFloat(token.Value, 64)
		if err != nil {
			return nil, NewParseError("invalid real number", token.Pos)
		}
		return &Number{Value: val}, nil
	}
	val, err := strconv.ParseInt(token.Value, 10, 64)
	if err != nil {
		return nil, NewParseError("invalid integer", token.Pos)
	}
	return &Number{Value: val}, nil
}

// parseNumberOrRef parses a number or, when followed by "G R", an indirect reference
func (p *PDFParser) parseNumberOrRef(numToken Token) (PDFObject, error) {
	num, err := parseNumber(numToken)
	if err != nil {
		return nil, err
	}
	if _, isInt := num.Value.(int64); !isInt {
		return num, nil
	}

	saved := p.lexer.GetPosition()
	genToken, err := p.lexer.NextToken()
	if err == nil && genToken.Type == TokenNumber && !strings.Contains(genToken.Value, ".") {
		refToken, err := p.lexer.NextToken()
		if err == nil && refToken.Type == TokenIndirectRef {
			generation, _ := strconv.ParseInt(genToken.Value, 10, 64)
			return Ref(num.Int(), generation), nil
		}
	}

	p.lexer.SeekTo(saved)
	return num, nil
}

// parseArray parses a PDF array object
func (p *PDFParser) parseArray() (PDFObject, error) {
	array := &Array{Elements: make([]PDFObject, 0)}

	for {
		token, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		if token.Type == TokenArrayEnd {
			return array, nil
		}

		obj, err := p.parseTokenAsObject(token)
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		array.Add(obj)
	}
}

// parseDictionary parses a PDF dictionary object, or a stream when the
// dictionary is followed by the stream keyword.
func (p *PDFParser) parseDictionary() (PDFObject, error) {
	dict := NewDictionary()

	for {
		token, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		if token.Type == TokenDictEnd {
			break
		}
		if token.Type != TokenName {
			return nil, NewParseError(fmt.Sprintf("expected name for dictionary key, got %s", token.Type), token.Pos)
		}

		value, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("value for key /%s: %w", token.Value, err)
		}
		// a null value is equivalent to an absent key
		if value.Type() != TypeNull {
			dict.Set(token.Value, value)
		}
	}

	if tok, err := p.lexer.PeekToken(); err == nil && tok.Type == TokenStreamStart {
		_, _ = p.lexer.NextToken()
		return p.readStream(dict)
	}
	return dict, nil
}

// readStream reads stream data following the stream keyword
func (p *PDFParser) readStream(dict *Dictionary) (PDFObject, error) {
	p.lexer.SkipEOL()
	start := p.lexer.GetPosition()

	length := int64(-1)
	switch l := dict.Get("Length").(type) {
	case *Number:
		length = l.Int()
	case *IndirectRef:
		if p.lengthResolver != nil {
			if n, ok := p.lengthResolver(l); ok {
				length = n
			}
		}
	}

	if length >= 0 && p.endstreamAt(start+length) {
		p.lexer.SeekTo(start + length)
		_, _ = p.lexer.NextToken()
		return &Stream{Dict: dict, Data: copyBytes(p.data[start : start+length]), Offset: start}, nil
	}

	// Length missing or wrong: fall back to scanning for endstream.
	idx := bytes.Index(p.data[start:], []byte(EndStreamKeyword))
	if idx < 0 {
		return nil, NewParseError("stream without endstream", start)
	}
	end := start + int64(idx)
	data := p.data[start:end]
	data = bytes.TrimSuffix(data, []byte("\n"))
	data = bytes.TrimSuffix(data, []byte("\r"))

	p.lexer.SeekTo(end + int64(len(EndStreamKeyword)))
	return &Stream{Dict: dict, Data: copyBytes(data), Offset: start}, nil
}

// endstreamAt reports whether the endstream keyword follows offset, after
// optional whitespace.
func (p *PDFParser) endstreamAt(offset int64) bool {
	if offset < 0 || offset > int64(len(p.data)) {
		return false
	}
	i := int(offset)
	for i < len(p.data) && IsWhitespace(p.data[i]) {
		i++
	}
	return bytes.HasPrefix(p.data[i:], []byte(EndStreamKeyword))
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
