// Package lexer implements the morph tokenizer.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/source"
)

// Kind identifies the kind of a lexer token.
type Kind int

const (
	Ident Kind = iota
	String
	Number
	Punctuation
	Comment
	EOF
)

func (k Kind) String() string {
	switch k {
	case Ident:
		return "ident"
	case String:
		return "string"
	case Number:
		return "number"
	case Punctuation:
		return "punctuation"
	case Comment:
		return "comment"
	case EOF:
		return "eof"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token represents a single lexer token.
//
// Raw is the text exactly as written. For identifiers Value holds the name
// (the quoted contents for raw identifiers written as @"..."); for strings it
// holds the decoded contents.
type Token struct {
	Kind  Kind
	Raw   string
	Value string
	IsRaw bool
	Quote byte
	Span  source.Span
}

// Name returns the identifier name, or "" if the token is not an identifier.
func (t Token) Name() string {
	if t.Kind != Ident {
		return ""
	}
	return t.Value
}

func (t Token) String() string {
	if t.Kind == EOF {
		return "<eof>"
	}
	return t.Raw
}

// operators lists the punctuation sequences longer than one character.
// Longest match wins.
var operators = []string{
	"->", "<-", "=>", "::", "==", "!=", "<=", ">=", "&&", "||", "++",
}

// delimiters never combine with neighbouring characters.
const delimiters = "()[]{},;."

const operatorChars = "+-*/%<>=!&|^~:?$`\\"

type scanner struct {
	source   string
	filename string
	pos      int
	index    int
	line     int
	col      int
}

func newScanner(src, filename string) *scanner {
	return &scanner{
		source:   src,
		filename: filename,
		line:     1,
		col:      1,
	}
}

func (s *scanner) atEnd() bool {
	return s.pos >= len(s.source)
}

func (s *scanner) peek() rune {
	if s.atEnd() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s.source[s.pos:])
	return r
}

func (s *scanner) peekAt(offset int) rune {
	p := s.pos
	for i := 0; i < offset; i++ {
		if p >= len(s.source) {
			return 0
		}
		_, size := utf8.DecodeRuneInString(s.source[p:])
		p += size
	}
	if p >= len(s.source) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s.source[p:])
	return r
}

func (s *scanner) advance() rune {
	r, size := utf8.DecodeRuneInString(s.source[s.pos:])
	s.pos += size
	s.index++
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return r
}

func (s *scanner) position() source.Position {
	return source.Position{Index: s.index, Line: s.line, Column: s.col}
}

func (s *scanner) span(start source.Position) source.Span {
	return source.Span{File: s.filename, Start: start, End: s.position()}
}

func (s *scanner) skipWhitespace() {
	for !s.atEnd() && unicode.IsSpace(s.peek()) {
		s.advance()
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func (s *scanner) scanComment() Token {
	start := s.position()
	startPos := s.pos
	for !s.atEnd() && s.peek() != '\n' {
		s.advance()
	}
	return Token{Kind: Comment, Raw: s.source[startPos:s.pos], Span: s.span(start)}
}

// readQuoted consumes a quoted literal starting at the opening quote and
// returns its decoded contents.
func (s *scanner) readQuoted(start source.Position) (string, error) {
	quote := s.advance()
	var buf strings.Builder
	for !s.atEnd() {
		ch := s.peek()
		if ch == quote {
			s.advance()
			return buf.String(), nil
		}
		if ch != '\\' {
			buf.WriteRune(s.advance())
			continue
		}
		s.advance()
		if s.atEnd() {
			return "", s.lexError(start, "unterminated string escape")
		}
		esc := s.advance()
		switch esc {
		case '"', '\'', '\\', '/':
			buf.WriteRune(esc)
		case 'n':
			buf.WriteByte('\n')
		case 'r':
			buf.WriteByte('\r')
		case 't':
			buf.WriteByte('\t')
		case '0':
			buf.WriteByte(0)
		case 'u':
			if s.pos+4 > len(s.source) {
				return "", s.lexError(start, "incomplete unicode escape")
			}
			hex := s.source[s.pos : s.pos+4]
			codepoint, err := strconv.ParseUint(hex, 16, 32)
			if err != nil {
				return "", s.lexError(start, fmt.Sprintf("invalid unicode escape: \\u%s", hex))
			}
			buf.WriteRune(rune(codepoint))
			for i := 0; i < 4; i++ {
				s.advance()
			}
		default:
			return "", s.lexError(start, fmt.Sprintf("invalid escape character: \\%c", esc))
		}
	}
	return "", s.lexError(start, "unterminated string literal")
}

func (s *scanner) scanString() (Token, error) {
	start := s.position()
	startPos := s.pos
	quote := byte(s.peek())
	contents, err := s.readQuoted(start)
	if err != nil {
		return Token{}, err
	}
	return Token{
		Kind:  String,
		Raw:   s.source[startPos:s.pos],
		Value: contents,
		Quote: quote,
		Span:  s.span(start),
	}, nil
}

func (s *scanner) scanRawIdent() (Token, error) {
	start := s.position()
	startPos := s.pos
	s.advance() // @
	if s.peek() != '"' {
		return Token{}, s.lexError(start, "expected '\"' after '@'")
	}
	name, err := s.readQuoted(start)
	if err != nil {
		return Token{}, err
	}
	return Token{
		Kind:  Ident,
		Raw:   s.source[startPos:s.pos],
		Value: name,
		IsRaw: true,
		Span:  s.span(start),
	}, nil
}

func (s *scanner) scanNumber() Token {
	start := s.position()
	startPos := s.pos

	for isDigit(s.peek()) || s.peek() == '_' {
		s.advance()
	}

	// A '.' only continues the number when a digit follows, so `t.0` and
	// `1.field` stay field accesses.
	if s.peek() == '.' && isDigit(s.peekAt(1)) {
		s.advance()
		for isDigit(s.peek()) || s.peek() == '_' {
			s.advance()
		}
	}

	if s.peek() == 'e' || s.peek() == 'E' {
		next := s.peekAt(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(s.peekAt(2))) {
			s.advance()
			if s.peek() == '+' || s.peek() == '-' {
				s.advance()
			}
			for isDigit(s.peek()) {
				s.advance()
			}
		}
	}

	text := s.source[startPos:s.pos]
	return Token{Kind: Number, Raw: text, Value: strings.ReplaceAll(text, "_", ""), Span: s.span(start)}
}

func (s *scanner) scanIdent() Token {
	start := s.position()
	startPos := s.pos
	for !s.atEnd() && isIdentPart(s.peek()) {
		s.advance()
	}
	text := s.source[startPos:s.pos]
	return Token{Kind: Ident, Raw: text, Value: text, Span: s.span(start)}
}

func (s *scanner) scanPunctuation() (Token, error) {
	start := s.position()
	ch := s.peek()
	if strings.ContainsRune(delimiters, ch) {
		s.advance()
		return Token{Kind: Punctuation, Raw: string(ch), Span: s.span(start)}, nil
	}
	if !strings.ContainsRune(operatorChars, ch) {
		s.advance()
		return Token{}, s.lexError(start, fmt.Sprintf("unexpected character %q", ch))
	}
	rest := s.source[s.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			for range op {
				s.advance()
			}
			return Token{Kind: Punctuation, Raw: op, Span: s.span(start)}, nil
		}
	}
	s.advance()
	return Token{Kind: Punctuation, Raw: string(ch), Span: s.span(start)}, nil
}

func (s *scanner) lexError(start source.Position, msg string) error {
	span := source.Span{File: s.filename, Start: start, End: s.position()}
	return &LexError{Diag: diagnostics.MakeDiag(diagnostics.ELex, msg, &span, "")}
}

// LexError wraps a diagnostic for lex errors.
type LexError struct {
	Diag diagnostics.Diagnostic
}

// Diagnostic returns the wrapped diagnostic.
func (e *LexError) Diagnostic() diagnostics.Diagnostic {
	return e.Diag
}

func (e *LexError) Error() string {
	if e.Diag.Span != nil {
		return fmt.Sprintf("%s: %s", e.Diag.Span, e.Diag.Message)
	}
	return e.Diag.Message
}

func (s *scanner) nextToken() (Token, error) {
	s.skipWhitespace()
	if s.atEnd() {
		pos := s.position()
		return Token{Kind: EOF, Span: source.Span{File: s.filename, Start: pos, End: pos}}, nil
	}

	ch := s.peek()
	switch {
	case ch == '#':
		return s.scanComment(), nil
	case ch == '"' || ch == '\'':
		return s.scanString()
	case ch == '@' && s.peekAt(1) == '"':
		return s.scanRawIdent()
	case isDigit(ch):
		return s.scanNumber(), nil
	case isIdentStart(ch):
		return s.scanIdent(), nil
	}
	return s.scanPunctuation()
}

// Tokenize breaks source code into tokens. Comments are kept as tokens; the
// last token is always EOF.
func Tokenize(src, filename string) ([]Token, error) {
	s := newScanner(src, filename)
	var tokens []Token
	for {
		tok, err := s.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == EOF {
			return tokens, nil
		}
	}
}
