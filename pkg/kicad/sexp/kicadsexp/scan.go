package kicadsexp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Sentinel causes carried by SyntaxError.
var (
	ErrUnexpectedEOF = errors.New("unexpected EOF")
	ErrUnexpectedTok = errors.New("unexpected token")
	ErrEmptySymbol   = errors.New("empty symbol")
)

// SyntaxError describes malformed input together with its position.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokOpen
	tokClose
	tokSymbol
	tokString
)

func (k tokenKind) String() string {
	switch k {
	case tokOpen:
		return "'('"
	case tokClose:
		return "')'"
	case tokSymbol:
		return "symbol"
	case tokString:
		return "string"
	default:
		return "EOF"
	}
}

type token struct {
	kind      tokenKind
	text      string
	line, col int
}

// scanner splits input into tokens and tracks 1-based line and column
type scanner struct {
	r         *bufio.Reader
	line, col int
	prevLine  int
	prevCol   int
	// blank is set while nothing but whitespace precedes the cursor on
	// the current line
	blank bool
}

func newScanner(r io.Reader) *scanner {
	return &scanner{r: bufio.NewReader(r), line: 1, blank: true}
}

func (s *scanner) fail(cause error, format string, args ...any) error {
	return &SyntaxError{Line: s.line, Col: s.col, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func (s *scanner) next() (rune, error) {
	ch, _, err := s.r.ReadRune()
	if err != nil {
		return 0, err
	}
	s.prevLine, s.prevCol = s.line, s.col
	if ch == '\n' {
		s.line++
		s.col = 0
		s.blank = true
	} else {
		s.col++
	}
	return ch, nil
}

// back returns the last rune to the reader; only one step is supported
func (s *scanner) back() {
	_ = s.r.UnreadRune()
	s.line, s.col = s.prevLine, s.prevCol
}

// token returns the next token. Whitespace is skipped, as is a line whose
// first non-blank character is #. A # anywhere else starts a symbol.
func (s *scanner) token() (token, error) {
	tok, err := s.scan()
	if tok.kind != tokEOF {
		s.blank = false
	}
	return tok, err
}

func (s *scanner) scan() (token, error) {
	for {
		ch, err := s.next()
		if err == io.EOF {
			return token{kind: tokEOF, line: s.line, col: s.col + 1}, nil
		}
		if err != nil {
			return token{}, err
		}

		switch {
		case unicode.IsSpace(ch):
		case ch == '#' && s.blank:
			if _, err := s.r.ReadString('\n'); err == nil {
				s.line++
				s.col = 0
			}
		case ch == '(':
			return token{kind: tokOpen, text: "(", line: s.line, col: s.col}, nil
		case ch == ')':
			return token{kind: tokClose, text: ")", line: s.line, col: s.col}, nil
		case ch == '"':
			line, col := s.line, s.col
			text, err := s.quoted()
			return token{kind: tokString, text: text, line: line, col: col}, err
		default:
			line, col := s.line, s.col
			s.back()
			text, err := s.bare()
			return token{kind: tokSymbol, text: text, line: line, col: col}, err
		}
	}
}

// quoted reads the body of a string after its opening quote. Supported
// escapes are \n \t \r \\ and \"; any other escaped character is kept.
func (s *scanner) quoted() (string, error) {
	var b strings.Builder
	for {
		ch, err := s.next()
		if err == io.EOF {
			return "", s.fail(ErrUnexpectedEOF, "unexpected EOF in string")
		}
		if err != nil {
			return "", err
		}
		switch ch {
		case '"':
			return b.String(), nil
		case '\\':
			esc, err := s.next()
			if err != nil {
				return "", s.fail(ErrUnexpectedEOF, "unexpected EOF after backslash")
			}
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(ch)
		}
	}
}

func isDelimiter(ch rune) bool {
	return unicode.IsSpace(ch) || ch == '(' || ch == ')' || ch == '"'
}

// bare reads a symbol up to the next delimiter or EOF
func (s *scanner) bare() (string, error) {
	var b strings.Builder
	for {
		ch, err := s.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if isDelimiter(ch) {
			s.back()
			break
		}
		b.WriteRune(ch)
	}
	if b.Len() == 0 {
		return "", s.fail(ErrEmptySymbol, "empty symbol")
	}
	return b.String(), nil
}
