package kicadsexp

import (
	"fmt"
	"io"
)

// Parser reads S-expressions from a stream. Nesting is tracked on an
// explicit stack, so depth is bounded by memory rather than the goroutine
// stack.
type Parser struct {
	sc  *scanner
	tok token
}

// NewParser creates a parser reading from r
func NewParser(r io.Reader) *Parser {
	return &Parser{sc: newScanner(r)}
}

func (p *Parser) advance() (err error) {
	p.tok, err = p.sc.token()
	return err
}

func (p *Parser) errorf(cause error, format string, args ...any) error {
	return &SyntaxError{Line: p.tok.line, Col: p.tok.col, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// ParseOne parses exactly one top-level expression. Empty input and trailing
// expressions are both errors.
func (p *Parser) ParseOne() (Sexp, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokEOF {
		return nil, p.errorf(ErrUnexpectedEOF, "unexpected EOF: empty document")
	}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf(ErrUnexpectedTok, "unexpected %s after root expression", p.tok.kind)
	}
	return root, nil
}

// ParseAll parses every top-level expression until EOF
func (p *Parser) ParseAll() ([]Sexp, error) {
	var out []Sexp
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokEOF {
			return out, nil
		}
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}

type frame struct {
	open  token
	items []Sexp
}

// expr parses the expression starting at the current token and leaves the
// parser on its last token
func (p *Parser) expr() (Sexp, error) {
	var stack []frame
	for {
		var node Sexp
		switch p.tok.kind {
		case tokOpen:
			stack = append(stack, frame{open: p.tok})
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		case tokClose:
			if len(stack) == 0 {
				return nil, p.errorf(ErrUnexpectedTok, "unexpected ')'")
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			node = &List{elements: top.items}
		case tokSymbol:
			node = Symbol(p.tok.text)
		case tokString:
			node = QuotedString(p.tok.text)
		default:
			if n := len(stack); n > 0 {
				open := stack[n-1].open
				return nil, p.errorf(ErrUnexpectedEOF, "unexpected EOF in list opened at %d:%d", open.line, open.col)
			}
			return nil, p.errorf(ErrUnexpectedEOF, "unexpected EOF")
		}

		if len(stack) == 0 {
			return node, nil
		}
		top := &stack[len(stack)-1]
		top.items = append(top.items, node)
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}
