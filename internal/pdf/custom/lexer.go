package custom

import (
	"bytes"
	"fmt"
)

// PDFLexer tokenizes PDF syntax held in memory. Positions are absolute
// offsets into the slice it was created with.
type PDFLexer struct {
	data []byte
	pos  int
}

// NewPDFLexer creates a lexer positioned at offset pos of data
func NewPDFLexer(data []byte, pos int64) *PDFLexer {
	l := &PDFLexer{data: data}
	l.SeekTo(pos)
	return l
}

// SeekTo moves the lexer to an absolute offset, clamped to the input
func (l *PDFLexer) SeekTo(pos int64) {
	switch {
	case pos < 0:
		l.pos = 0
	case pos > int64(len(l.data)):
		l.pos = len(l.data)
	default:
		l.pos = int(pos)
	}
}

// GetPosition returns the current offset
func (l *PDFLexer) GetPosition() int64 {
	return int64(l.pos)
}

// HasNext returns true if there are more bytes to read
func (l *PDFLexer) HasNext() bool {
	return l.pos < len(l.data)
}

func (l *PDFLexer) peekByte(offset int) byte {
	if l.pos+offset < len(l.data) {
		return l.data[l.pos+offset]
	}
	return 0
}

// skipSpace skips whitespace and comments
func (l *PDFLexer) skipSpace() {
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		if IsWhitespace(ch) {
			l.pos++
			continue
		}
		if ch == PercentSign {
			for l.pos < len(l.data) && l.data[l.pos] != LineFeedChar && l.data[l.pos] != CarriageReturnChar {
				l.pos++
			}
			continue
		}
		return
	}
}

// SkipEOL consumes a single end-of-line marker (CRLF, LF or CR)
func (l *PDFLexer) SkipEOL() {
	if l.peekByte(0) == CarriageReturnChar {
		l.pos++
	}
	if l.peekByte(0) == LineFeedChar {
		l.pos++
	}
}

// NextToken returns the next token from the input
func (l *PDFLexer) NextToken() (Token, error) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return Token{Type: TokenEOF, Pos: int64(l.pos)}, nil
	}

	start := int64(l.pos)
	switch l.data[l.pos] {
	case LeftParen:
		return l.readLiteralString()
	case LeftAngle:
		if l.peekByte(1) == LeftAngle {
			l.pos += 2
			return Token{Type: TokenDictStart, Value: "<<", Pos: start}, nil
		}
		return l.readHexString()
	case RightAngle:
		if l.peekByte(1) == RightAngle {
			l.pos += 2
			return Token{Type: TokenDictEnd, Value: ">>", Pos: start}, nil
		}
		l.pos++
		return Token{Type: TokenDelimiter, Value: ">", Pos: start}, nil
	case LeftSquare:
		l.pos++
		return Token{Type: TokenArrayStart, Value: "[", Pos: start}, nil
	case RightSquare:
		l.pos++
		return Token{Type: TokenArrayEnd, Value: "]", Pos: start}, nil
	case LeftCurly, RightCurly, RightParen:
		l.pos++
		return Token{Type: TokenDelimiter, Value: string(l.data[start]), Pos: start}, nil
	case Solidus:
		return l.readName()
	default:
		ch := l.data[l.pos]
		if isDigit(ch) || ch == '+' || ch == '-' || ch == '.' {
			return l.readNumber()
		}
		return l.readKeyword()
	}
}

// PeekToken returns the next token without consuming it
func (l *PDFLexer) PeekToken() (Token, error) {
	saved := l.pos
	tok, err := l.NextToken()
	l.pos = saved
	return tok, err
}

// readLiteralString reads a literal string enclosed in parentheses
func (l *PDFLexer) readLiteralString() (Token, error) {
	start := int64(l.pos)
	var buffer bytes.Buffer

	l.pos++ // opening parenthesis
	depth := 1

	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		l.pos++

		switch ch {
		case LeftParen:
			depth++
			buffer.WriteByte(ch)
		case RightParen:
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Value: buffer.String(), Pos: start}, nil
			}
			buffer.WriteByte(ch)
		case '\\':
			if l.pos >= len(l.data) {
				break
			}
			esc := l.data[l.pos]
			l.pos++
			switch esc {
			case 'n':
				buffer.WriteByte('\n')
			case 'r':
				buffer.WriteByte('\r')
			case 't':
				buffer.WriteByte('\t')
			case 'b':
				buffer.WriteByte('\b')
			case 'f':
				buffer.WriteByte('\f')
			case CarriageReturnChar:
				// line continuation
				if l.peekByte(0) == LineFeedChar {
					l.pos++
				}
			case LineFeedChar:
			default:
				if isOctal(esc) {
					val := int(esc - '0')
					for i := 0; i < 2 && isOctal(l.peekByte(0)); i++ {
						val = val*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					buffer.WriteByte(byte(val))
				} else {
					buffer.WriteByte(esc)
				}
			}
		case CarriageReturnChar:
			// an unescaped EOL in a string reads as a single LF
			if l.peekByte(0) == LineFeedChar {
				l.pos++
			}
			buffer.WriteByte(LineFeedChar)
		default:
			buffer.WriteByte(ch)
		}
	}

	return Token{}, NewParseError("unterminated literal string", start)
}

// readHexString reads a hexadecimal string enclosed in angle brackets and
// returns the decoded bytes as the token value.
func (l *PDFLexer) readHexString() (Token, error) {
	start := int64(l.pos)
	var buffer bytes.Buffer

	l.pos++ // opening angle bracket
	var hi byte
	half := false

	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		l.pos++
		if ch == RightAngle {
			if half {
				buffer.WriteByte(hi << 4)
			}
			return Token{Type: TokenHexString, Value: buffer.String(), Pos: start}, nil
		}
		if IsWhitespace(ch) {
			continue
		}
		v, ok := hexValue(ch)
		if !ok {
			return Token{}, NewParseError(fmt.Sprintf("invalid hex digit %q in hex string", ch), int64(l.pos-1))
		}
		if half {
			buffer.WriteByte(hi<<4 | v)
		} else {
			hi = v
		}
		half = !half
	}

	return Token{}, NewParseError("unterminated hex string", start)
}

// readName reads a name object starting with /
func (l *PDFLexer) readName() (Token, error) {
	start := int64(l.pos)
	var buffer bytes.Buffer

	l.pos++ // solidus

	for l.pos < len(l.data) && IsRegular(l.data[l.pos]) {
		ch := l.data[l.pos]
		if ch == '#' {
			h1, ok1 := hexValue(l.peekByte(1))
			h2, ok2 := hexValue(l.peekByte(2))
			if ok1 && ok2 {
				buffer.WriteByte(h1<<4 | h2)
				l.pos += 3
				continue
			}
		}
		buffer.WriteByte(ch)
		l.pos++
	}

	return Token{Type: TokenName, Value: buffer.String(), Pos: start}, nil
}

// readNumber reads a numeric value (integer or real)
func (l *PDFLexer) readNumber() (Token, error) {
	start := l.pos

	if ch := l.data[l.pos]; ch == '+' || ch == '-' {
		l.pos++
	}
	for l.pos < len(l.data) && (isDigit(l.data[l.pos]) || l.data[l.pos] == '.') {
		l.pos++
	}

	value := string(l.data[start:l.pos])
	if value == "+" || value == "-" || value == "." {
		// a lone sign or dot is not a number
		return Token{Type: TokenKeyword, Value: value, Pos: int64(start)}, nil
	}
	return Token{Type: TokenNumber, Value: value, Pos: int64(start)}, nil
}

// readKeyword reads a keyword or identifier
func (l *PDFLexer) readKeyword() (Token, error) {
	start := l.pos
	for l.pos < len(l.data) && IsRegular(l.data[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		// lone delimiter byte we do not otherwise recognise
		l.pos++
	}

	keyword := string(l.data[start:l.pos])
	tok := Token{Type: TokenKeyword, Value: keyword, Pos: int64(start)}

	switch keyword {
	case "R":
		tok.Type = TokenIndirectRef
	case ObjKeyword:
		tok.Type = TokenObjStart
	case EndObjKeyword:
		tok.Type = TokenObjEnd
	case StreamKeyword:
		tok.Type = TokenStreamStart
	case EndStreamKeyword:
		tok.Type = TokenStreamEnd
	case XRefKeyword:
		tok.Type = TokenXRefKeyword
	case TrailerKeyword:
		tok.Type = TokenTrailerKeyword
	case StartXRefKeyword:
		tok.Type = TokenStartXRef
	}
	return tok, nil
}

// ExpectToken checks if the next token is of the expected type
func (l *PDFLexer) ExpectToken(expectedType TokenType) (Token, error) {
	token, err := l.NextToken()
	if err != nil {
		return token, err
	}

	if token.Type != expectedType {
		return token, NewParseError(fmt.Sprintf("expected %s, got %s %q", expectedType, token.Type, token.Value), token.Pos)
	}

	return token, nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isOctal(ch byte) bool {
	return ch >= '0' && ch <= '7'
}

func hexValue(ch byte) (byte, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0', true
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10, true
	case ch >= 'A' && ch <= 'F':
		return ch - 'A' + 10, true
	}
	return 0, false
}
