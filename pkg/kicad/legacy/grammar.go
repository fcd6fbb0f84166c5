// Package legacy parses the line-oriented KiCad 4/5 schematic (EESchema)
// and board (PCBNEW) formats into the same domain types as the modern
// parsers.
package legacy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// lineLexer splits one record line into quoted strings, numbers and words.
// Numbers must end on a word boundary so hex masks such as 00E0FFFF stay
// a single word.
var lineLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Number", Pattern: `[-+]?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?\b`},
	{Name: "Ident", Pattern: `[^\s"]+`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
})

// Record is one tokenized line
type Record struct {
	Fields []*Field `parser:"@@*"`
}

// Field is a single token of a record line
type Field struct {
	Quoted *string `parser:"  @String"`
	Number *string `parser:"| @Number"`
	Word   *string `parser:"| @Ident"`
}

var recordParser = participle.MustBuild[Record](
	participle.Lexer(lineLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

// Tokenize splits a record line into fields
func Tokenize(line string) (*Record, error) {
	rec, err := recordParser.ParseString("", line)
	if err != nil {
		return nil, fmt.Errorf("tokenize %q: %w", line, err)
	}
	return rec, nil
}

// Text returns the field text without quotes
func (f *Field) Text() string {
	switch {
	case f == nil:
		return ""
	case f.Quoted != nil:
		return *f.Quoted
	case f.Number != nil:
		return *f.Number
	case f.Word != nil:
		return *f.Word
	}
	return ""
}

// IsQuoted reports whether the field was a string literal
func (f *Field) IsQuoted() bool { return f != nil && f.Quoted != nil }

// Len returns the number of fields
func (r *Record) Len() int { return len(r.Fields) }

// Key returns the leading word of the record
func (r *Record) Key() string { return r.Text(0) }

// Text returns field i, or "" when out of range
func (r *Record) Text(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i].Text()
}

// Float returns field i as a float
func (r *Record) Float(i int) (float64, error) {
	s := r.Text(i)
	if s == "" {
		return 0, fmt.Errorf("missing field %d", i)
	}
	return strconv.ParseFloat(s, 64)
}

// FloatOr returns field i as a float, or def
func (r *Record) FloatOr(i int, def float64) float64 {
	f, err := r.Float(i)
	if err != nil {
		return def
	}
	return f
}

// IntOr returns field i as an integer, or def
func (r *Record) IntOr(i int, def int) int {
	n, err := strconv.Atoi(r.Text(i))
	if err != nil {
		return def
	}
	return n
}

// LastQuoted returns the last quoted field of the record
func (r *Record) LastQuoted() (string, bool) {
	for i := len(r.Fields) - 1; i >= 0; i-- {
		if r.Fields[i].IsQuoted() {
			return *r.Fields[i].Quoted, true
		}
	}
	return "", false
}

// lines splits content into trimmed lines
func lines(content []byte) []string {
	raw := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	out := make([]string, len(raw))
	for i, l := range raw {
		out[i] = strings.TrimSpace(l)
	}
	return out
}
