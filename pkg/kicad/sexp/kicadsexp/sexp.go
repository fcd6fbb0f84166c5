// Package kicadsexp provides a lightweight streaming S-expression parser
// for KiCad schematic and board files. Unlike general-purpose sexp libraries,
// this parser keeps quoted strings as single atoms and can handle arbitrarily
// large files by streaming.
package kicadsexp

import (
	"io"
	"strings"
)

// Sexp represents an S-expression node.
// It can be either a leaf (atom) or a list.
type Sexp interface {
	// IsLeaf returns true if this is an atom (not a list)
	IsLeaf() bool

	// LeafCount returns the number of elements in a list (1 for atoms)
	LeafCount() int

	// Head returns the first element of a list (the atom itself for atoms)
	Head() Sexp

	// Tail returns the rest of the list after the first element (nil for atoms)
	Tail() Sexp

	// String renders the node back to parseable text
	String() string
}

// Atom is implemented by Symbol and QuotedString.
type Atom interface {
	Sexp
	Text() string
}

// Symbol represents a bare atom (identifier, number, keyword)
type Symbol string

func (s Symbol) IsLeaf() bool   { return true }
func (s Symbol) LeafCount() int { return 1 }
func (s Symbol) Head() Sexp     { return s }
func (s Symbol) Tail() Sexp     { return nil }
func (s Symbol) Text() string   { return string(s) }
func (s Symbol) String() string { return renderAtom(string(s), false) }

// QuotedString represents an atom that was written in double quotes
type QuotedString string

func (s QuotedString) IsLeaf() bool   { return true }
func (s QuotedString) LeafCount() int { return 1 }
func (s QuotedString) Head() Sexp     { return s }
func (s QuotedString) Tail() Sexp     { return nil }
func (s QuotedString) Text() string   { return string(s) }
func (s QuotedString) String() string { return renderAtom(string(s), true) }

// List represents a list of S-expressions
type List struct {
	elements []Sexp
}

// NewList builds a list from elements.
func NewList(elements ...Sexp) *List {
	return &List{elements: elements}
}

func (l *List) IsLeaf() bool { return false }

func (l *List) LeafCount() int {
	return len(l.elements)
}

func (l *List) Head() Sexp {
	if len(l.elements) == 0 {
		return nil
	}
	return l.elements[0]
}

func (l *List) Tail() Sexp {
	if len(l.elements) <= 1 {
		return nil
	}
	return &List{elements: l.elements[1:]}
}

func (l *List) String() string {
	var sb strings.Builder
	l.render(&sb)
	return sb.String()
}

func (l *List) render(sb *strings.Builder) {
	sb.WriteByte('(')
	for i, elem := range l.elements {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if sub, ok := elem.(*List); ok {
			sub.render(sb)
			continue
		}
		sb.WriteString(elem.String())
	}
	sb.WriteByte(')')
}

// At returns the element at the given index
func (l *List) At(index int) Sexp {
	if index < 0 || index >= len(l.elements) {
		return nil
	}
	return l.elements[index]
}

// Len returns the number of elements in the list
func (l *List) Len() int {
	return len(l.elements)
}

// Elements returns the children of the list. The slice must not be modified.
func (l *List) Elements() []Sexp {
	return l.elements
}

// Name returns the text of the first element when it is an atom.
func (l *List) Name() string {
	if len(l.elements) == 0 {
		return ""
	}
	if a, ok := l.elements[0].(Atom); ok {
		return a.Text()
	}
	return ""
}

// Get scans the immediate children for the first sublist named key.
// A two element sublist yields its second element, a longer one yields
// the sublist itself.
func (l *List) Get(key string) (Sexp, bool) {
	for _, elem := range l.elements {
		sub, ok := elem.(*List)
		if !ok || sub.Name() != key {
			continue
		}
		if len(sub.elements) == 2 {
			return sub.elements[1], true
		}
		return sub, true
	}
	return nil, false
}

// GetAll returns every immediate sublist named key in document order.
func (l *List) GetAll(key string) []*List {
	var out []*List
	for _, elem := range l.elements {
		if sub, ok := elem.(*List); ok && sub.Name() == key {
			out = append(out, sub)
		}
	}
	return out
}

// Find returns the first immediate sublist named key, whatever its length.
func (l *List) Find(key string) (*List, bool) {
	for _, elem := range l.elements {
		if sub, ok := elem.(*List); ok && sub.Name() == key {
			return sub, true
		}
	}
	return nil, false
}

// Text returns the atom text of s, or "" and false for lists.
func Text(s Sexp) (string, bool) {
	if a, ok := s.(Atom); ok {
		return a.Text(), true
	}
	return "", false
}

// Equal reports whether a and b are structurally equal. Atoms compare by
// text, so a bare symbol equals a quoted string with the same content.
func Equal(a, b Sexp) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	at, aok := a.(Atom)
	bt, bok := b.(Atom)
	if aok || bok {
		return aok && bok && at.Text() == bt.Text()
	}
	al, aok := a.(*List)
	bl, bok := b.(*List)
	if !aok || !bok || len(al.elements) != len(bl.elements) {
		return false
	}
	for i := range al.elements {
		if !Equal(al.elements[i], bl.elements[i]) {
			return false
		}
	}
	return true
}

// Parse parses exactly one root expression from an io.Reader.
func Parse(r io.Reader) (Sexp, error) {
	return NewParser(r).ParseOne()
}

// ParseString parses exactly one root expression from a string.
func ParseString(s string) (Sexp, error) {
	return Parse(strings.NewReader(s))
}

// ParseAll parses every top-level expression from an io.Reader.
func ParseAll(r io.Reader) ([]Sexp, error) {
	return NewParser(r).ParseAll()
}
