package custom

import (
	"fmt"
	"strconv"
	"strings"
)

// ObjectType represents the type of a PDF object
type ObjectType int

const (
	TypeNull ObjectType = iota
	TypeBool
	TypeNumber
	TypeString
	TypeName
	TypeArray
	TypeDictionary
	TypeStream
	TypeIndirectRef
	TypeKeyword
)

func (t ObjectType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeName:
		return "name"
	case TypeArray:
		return "array"
	case TypeDictionary:
		return "dictionary"
	case TypeStream:
		return "stream"
	case TypeIndirectRef:
		return "indirect_ref"
	case TypeKeyword:
		return "keyword"
	default:
		return "unknown"
	}
}

// PDFObject is the base interface for all PDF objects
type PDFObject interface {
	Type() ObjectType
	String() string
}

// ObjectID represents a PDF object identifier
type ObjectID struct {
	Number     int64 // Object number
	Generation int64 // Generation number
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%d %d", id.Number, id.Generation)
}

// Null represents a PDF null object
type Null struct{}

func (n *Null) Type() ObjectType { return TypeNull }
func (n *Null) String() string   { return "null" }

// Bool represents a PDF boolean object
type Bool struct {
	Value bool
}

func (b *Bool) Type() ObjectType { return TypeBool }
func (b *Bool) String() string {
	if b.Value {
		return "true"
	}
	return "false"
}

// Number represents a PDF numeric object (integer or real)
type Number struct {
	Value interface{} // int64 or float64
}

// Int returns an integer number object
func Int(v int64) *Number { return &Number{Value: v} }

func (n *Number) Type() ObjectType { return TypeNumber }
func (n *Number) String() string {
	switch v := n.Value.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "0"
	}
}

func (n *Number) Int() int64 {
	switch v := n.Value.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// String represents a PDF string object. Value holds the decoded bytes for
// both literal and hex strings; IsHex only selects the written form.
type String struct {
	Value string
	IsHex bool
}

func (s *String) Type() ObjectType { return TypeString }
func (s *String) String() string {
	if s.IsHex {
		return "<" + fmt.Sprintf("%X", s.Value) + ">"
	}
	return "(" + escapeLiteral(s.Value) + ")"
}

// Text decodes a PDF text string (UTF-16BE with BOM or PDFDocEncoding).
func (s *String) Text() string {
	return DecodeTextString(s.Value)
}

// Name represents a PDF name object
type Name struct {
	Value string
}

func (n *Name) Type() ObjectType { return TypeName }
func (n *Name) String() string   { return "/" + encodeName(n.Value) }

// Array represents a PDF array object
type Array struct {
	Elements []PDFObject
}

// NewArray builds an array from the given elements
func NewArray(elems ...PDFObject) *Array {
	return &Array{Elements: elems}
}

func (a *Array) Type() ObjectType { return TypeArray }
func (a *Array) String() string {
	parts := make([]string, 0, len(a.Elements))
	for _, elem := range a.Elements {
		parts = append(parts, elem.String())
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (a *Array) Len() int {
	return len(a.Elements)
}

func (a *Array) Get(index int) PDFObject {
	if index >= 0 && index < len(a.Elements) {
		return a.Elements[index]
	}
	return &Null{}
}

func (a *Array) Add(obj PDFObject) {
	a.Elements = append(a.Elements, obj)
}

// Dictionary represents a PDF dictionary object
type Dictionary struct {
	Keys   []Name // Maintains insertion order
	Values map[string]PDFObject
}

func NewDictionary() *Dictionary {
	return &Dictionary{
		Keys:   make([]Name, 0),
		Values: make(map[string]PDFObject),
	}
}

func (d *Dictionary) Type() ObjectType { return TypeDictionary }
func (d *Dictionary) String() string {
	parts := make([]string, 0, len(d.Keys))
	for _, key := range d.Keys {
		value := d.Values[key.Value]
		parts = append(parts, key.String()+" "+value.String())
	}
	return "<<" + strings.Join(parts, " ") + ">>"
}

func (d *Dictionary) Get(key string) PDFObject {
	if obj, exists := d.Values[key]; exists {
		return obj
	}
	return &Null{}
}

// Set adds or replaces key. Replaced keys keep their position.
func (d *Dictionary) Set(key string, value PDFObject) *Dictionary {
	if _, exists := d.Values[key]; !exists {
		d.Keys = append(d.Keys, Name{Value: key})
	}
	d.Values[key] = value
	return d
}

func (d *Dictionary) Has(key string) bool {
	_, exists := d.Values[key]
	return exists
}

func (d *Dictionary) Remove(key string) {
	if _, exists := d.Values[key]; exists {
		delete(d.Values, key)
		for i, k := range d.Keys {
			if k.Value == key {
				d.Keys = append(d.Keys[:i], d.Keys[i+1:]...)
				break
			}
		}
	}
}

func (d *Dictionary) Len() int {
	return len(d.Keys)
}

// Clone returns a shallow copy: values are shared, key order is not.
func (d *Dictionary) Clone() *Dictionary {
	c := NewDictionary()
	for _, k := range d.Keys {
		c.Set(k.Value, d.Values[k.Value])
	}
	return c
}

// Convenience methods for common types
func (d *Dictionary) GetString(key string) string {
	if obj := d.Get(key); obj.Type() == TypeString {
		return obj.(*String).Value
	}
	return ""
}

func (d *Dictionary) GetInt(key string) int64 {
	if obj := d.Get(key); obj.Type() == TypeNumber {
		return obj.(*Number).Int()
	}
	return 0
}

func (d *Dictionary) GetName(key string) string {
	if obj := d.Get(key); obj.Type() == TypeName {
		return obj.(*Name).Value
	}
	return ""
}

func (d *Dictionary) GetArray(key string) *Array {
	if obj := d.Get(key); obj.Type() == TypeArray {
		return obj.(*Array)
	}
	return &Array{}
}

// GetRef returns the indirect reference stored under key, or nil.
func (d *Dictionary) GetRef(key string) *IndirectRef {
	if ref, ok := d.Get(key).(*IndirectRef); ok {
		return ref
	}
	return nil
}

// Stream represents a PDF stream object. Data holds the raw, still encoded
// bytes between the stream and endstream keywords.
type Stream struct {
	Dict   *Dictionary
	Data   []byte
	Offset int64 // File offset where stream data starts
}

func (s *Stream) Type() ObjectType { return TypeStream }
func (s *Stream) String() string {
	return fmt.Sprintf("%s\nstream\n[%d bytes]\nendstream", s.Dict.String(), len(s.Data))
}

func (s *Stream) GetFilter() []string {
	filterObj := s.Dict.Get("Filter")
	var filters []string
	switch f := filterObj.(type) {
	case *Name:
		filters = append(filters, f.Value)
	case *Array:
		for _, elem := range f.Elements {
			if n, ok := elem.(*Name); ok {
				filters = append(filters, n.Value)
			}
		}
	}
	return filters
}

// IndirectRef represents an indirect object reference
type IndirectRef struct {
	ObjectID ObjectID
}

// Ref builds a reference to object num, generation gen.
func Ref(num, gen int64) *IndirectRef {
	return &IndirectRef{ObjectID: ObjectID{Number: num, Generation: gen}}
}

func (r *IndirectRef) Type() ObjectType { return TypeIndirectRef }
func (r *IndirectRef) String() string   { return fmt.Sprintf("%s R", r.ObjectID.String()) }

// Keyword represents a PDF keyword/operator
type Keyword struct {
	Value string
}

func (k *Keyword) Type() ObjectType { return TypeKeyword }
func (k *Keyword) String() string   { return k.Value }

// Token represents a lexical token in PDF content
type Token struct {
	Type  TokenType
	Value string
	Pos   int64 // Offset of the first byte of the token
}

// TokenType represents the type of a lexical token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenHexString
	TokenName
	TokenKeyword
	TokenDelimiter
	TokenArrayStart     // [
	TokenArrayEnd       // ]
	TokenDictStart      // <<
	TokenDictEnd        // >>
	TokenStreamStart    // stream
	TokenStreamEnd      // endstream
	TokenObjStart       // obj
	TokenObjEnd         // endobj
	TokenIndirectRef    // R
	TokenXRefKeyword    // xref
	TokenTrailerKeyword // trailer
	TokenStartXRef      // startxref
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNumber:
		return "NUMBER"
	case TokenString:
		return "STRING"
	case TokenHexString:
		return "HEXSTRING"
	case TokenName:
		return "NAME"
	case TokenKeyword:
		return "KEYWORD"
	case TokenDelimiter:
		return "DELIMITER"
	case TokenArrayStart:
		return "ARRAY_START"
	case TokenArrayEnd:
		return "ARRAY_END"
	case TokenDictStart:
		return "DICT_START"
	case TokenDictEnd:
		return "DICT_END"
	case TokenStreamStart:
		return "STREAM_START"
	case TokenStreamEnd:
		return "STREAM_END"
	case TokenObjStart:
		return "OBJ_START"
	case TokenObjEnd:
		return "OBJ_END"
	case TokenIndirectRef:
		return "INDIRECT_REF"
	case TokenXRefKeyword:
		return "XREF"
	case TokenTrailerKeyword:
		return "TRAILER"
	case TokenStartXRef:
		return "STARTXREF"
	default:
		return "UNKNOWN"
	}
}

// IndirectObject represents an indirect object with its ID and content
type IndirectObject struct {
	ID     ObjectID
	Object PDFObject
}

func (io *IndirectObject) String() string {
	return fmt.Sprintf("%s obj\n%s\nendobj", io.ID.String(), io.Object.String())
}

// ParseError reports a syntax problem at a byte offset
type ParseError struct {
	Message  string
	Position int64
}

func (e *ParseError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("PDF parse error at position %d: %s", e.Position, e.Message)
	}
	return fmt.Sprintf("PDF parse error: %s", e.Message)
}

func NewParseError(msg string, pos int64) *ParseError {
	return &ParseError{
		Message:  msg,
		Position: pos,
	}
}

// Constants for PDF parsing
const (
	PDFHeaderPattern = "%PDF-"
	PDFVersion17     = "1.7"

	ObjKeyword       = "obj"
	EndObjKeyword    = "endobj"
	StreamKeyword    = "stream"
	EndStreamKeyword = "endstream"
	XRefKeyword      = "xref"
	TrailerKeyword   = "trailer"
	StartXRefKeyword = "startxref"
	EOFMarker        = "%%EOF"

	NullChar           = '\000'
	TabChar            = '\t'
	LineFeedChar       = '\n'
	FormFeedChar       = '\f'
	CarriageReturnChar = '\r'
	SpaceChar          = ' '

	LeftParen   = '('
	RightParen  = ')'
	LeftAngle   = '<'
	RightAngle  = '>'
	LeftSquare  = '['
	RightSquare = ']'
	LeftCurly   = '{'
	RightCurly  = '}'
	Solidus     = '/'
	PercentSign = '%'
)

// IsWhitespace checks if a character is PDF whitespace
func IsWhitespace(ch byte) bool {
	return ch == NullChar || ch == TabChar || ch == LineFeedChar ||
		ch == FormFeedChar || ch == CarriageReturnChar || ch == SpaceChar
}

// IsDelimiter checks if a character is a PDF delimiter
func IsDelimiter(ch byte) bool {
	return ch == LeftParen || ch == RightParen || ch == LeftAngle || ch == RightAngle ||
		ch == LeftSquare || ch == RightSquare || ch == LeftCurly || ch == RightCurly ||
		ch == Solidus || ch == PercentSign
}

// IsRegular checks if a character is a regular character (not whitespace or delimiter)
func IsRegular(ch byte) bool {
	return !IsWhitespace(ch) && !IsDelimiter(ch)
}
