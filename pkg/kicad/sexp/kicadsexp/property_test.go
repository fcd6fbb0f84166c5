package kicadsexp

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// atomRunes covers plain text plus every character the renderer must
// quote or escape
var atomRunes = []interface{}{
	'a', 'Z', 'q', '0', '7', '.', '-', '_', ':', '+', '/',
	' ', '"', '\\', '#', '(', ')', '\n', '\t', '\r', 'µ', 'Ω',
}

// atomGen builds arbitrary atom text without filtered generators, so no
// sample is ever discarded
func atomGen() gopter.Gen {
	return gen.SliceOf(gen.OneConstOf(atomRunes...), reflect.TypeOf(rune(0))).
		Map(func(rs []rune) string { return string(rs) })
}

// TestRenderRoundTrip checks that rendering and re-parsing yields an equal tree.
func TestRenderRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("render then parse is identity", prop.ForAll(
		func(head []string, inner []string, quoted bool) bool {
			var innerElems []Sexp
			innerElems = append(innerElems, Symbol("inner"))
			for _, s := range inner {
				if quoted {
					innerElems = append(innerElems, QuotedString(s))
				} else {
					innerElems = append(innerElems, Symbol(s))
				}
			}
			var elems []Sexp
			elems = append(elems, Symbol("root"))
			for _, s := range head {
				elems = append(elems, Symbol(s))
			}
			elems = append(elems, NewList(innerElems...), NewList())
			tree := NewList(elems...)

			parsed, err := ParseString(Render(tree))
			if err != nil {
				return false
			}
			return Equal(tree, parsed)
		},
		gen.SliceOf(atomGen(), reflect.TypeOf("")),
		gen.SliceOf(atomGen(), reflect.TypeOf("")),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
