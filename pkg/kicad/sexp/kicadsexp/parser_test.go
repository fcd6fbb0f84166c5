package kicadsexp

import (
	"errors"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "simple list",
			input: `(kicad_sch (version 20231120))`,
			want:  `(kicad_sch (version 20231120))`,
		},
		{
			name:  "quoted string with spaces",
			input: `(property "Reference" "R 1")`,
			want:  `(property "Reference" "R 1")`,
		},
		{
			name:  "escapes",
			input: `(text "a\"b\\c\nd\qe")`,
			want:  `(text "a\"b\\c\nd` + "q" + `e")`,
		},
		{
			name:  "comment lines skipped",
			input: "# header\n(a\n  # indented note\n b)\n",
			want:  `(a b)`,
		},
		{
			name:  "hash inside a line is a symbol",
			input: "(a #b\n)",
			want:  `(a "#b")`,
		},
		{
			name:  "hash before close paren",
			input: `(a #b)`,
			want:  `(a "#b")`,
		},
		{
			name:    "hash after a token on the same line",
			input:   "(a b) # trailing",
			wantErr: ErrUnexpectedTok,
		},
		{
			name:  "empty list",
			input: `()`,
			want:  `()`,
		},
		{
			name:    "unterminated string",
			input:   `(a "never closed)`,
			wantErr: ErrUnexpectedEOF,
		},
		{
			name:    "missing close paren",
			input:   `(a (b c)`,
			wantErr: ErrUnexpectedEOF,
		},
		{
			name:    "extra close paren",
			input:   `(a b))`,
			wantErr: ErrUnexpectedTok,
		},
		{
			name:    "two roots",
			input:   `(a) (b)`,
			wantErr: ErrUnexpectedTok,
		},
		{
			name:    "empty input",
			input:   "   \n",
			wantErr: ErrUnexpectedEOF,
		},
		{
			name:    "backslash at EOF",
			input:   `(a "b\`,
			wantErr: ErrUnexpectedEOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseString(tt.input)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("Expected error %v, got tree %s", tt.wantErr, got)
				}
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected error %v, got %v", tt.wantErr, err)
				}
				var se *SyntaxError
				if !errors.As(err, &se) {
					t.Errorf("Expected *SyntaxError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got.String())
			}
		})
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := ParseString("(a\n  (b c)\n  )\n)")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *SyntaxError, got %v", err)
	}
	if se.Line != 4 {
		t.Errorf("Expected error on line 4, got %d", se.Line)
	}
}

func TestParseAll(t *testing.T) {
	exprs, err := ParseAll(strings.NewReader(`(a 1) (b 2) c`))
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(exprs) != 3 {
		t.Fatalf("Expected 3 expressions, got %d", len(exprs))
	}
	if s, _ := Text(exprs[2]); s != "c" {
		t.Errorf("Expected third expression 'c', got %q", s)
	}
}

func TestGetFirstMatch(t *testing.T) {
	root, err := ParseString(`(symbol (at 1 2 0) (unit 1) (unit 2) (property "Value" "10k"))`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	list := root.(*List)

	unit, ok := list.Get("unit")
	if !ok {
		t.Fatal("Expected unit")
	}
	if s, _ := Text(unit); s != "1" {
		t.Errorf("Expected first unit 1, got %s", s)
	}

	at, ok := list.Get("at")
	if !ok {
		t.Fatal("Expected at")
	}
	atList, isList := at.(*List)
	if !isList || atList.Len() != 4 {
		t.Errorf("Expected whole (at ...) sublist, got %v", at)
	}

	if _, ok := list.Get("missing"); ok {
		t.Error("Expected no match for missing key")
	}

	units := list.GetAll("unit")
	if len(units) != 2 {
		t.Fatalf("Expected 2 units, got %d", len(units))
	}
	if s, _ := Text(units[1].At(1)); s != "2" {
		t.Errorf("Expected second unit 2, got %s", s)
	}
}

func TestEqual(t *testing.T) {
	a, _ := ParseString(`(a "b" (c d))`)
	b, _ := ParseString(`(a b (c "d"))`)
	c, _ := ParseString(`(a b (c d e))`)

	if !Equal(a, b) {
		t.Error("Expected quoted and bare atoms with the same text to be equal")
	}
	if Equal(a, c) {
		t.Error("Expected lists of different length to differ")
	}
	if Equal(Symbol("x"), NewList(Symbol("x"))) {
		t.Error("Expected atom and list to differ")
	}
}

func TestRenderQuoting(t *testing.T) {
	tests := []struct {
		atom Sexp
		want string
	}{
		{Symbol("abc"), `abc`},
		{Symbol(""), `""`},
		{Symbol("a b"), `"a b"`},
		{Symbol("(x"), `"(x"`},
		{Symbol("#PWR01"), `"#PWR01"`},
		{Symbol(`say "hi"`), `"say \"hi\""`},
		{QuotedString("R1"), `"R1"`},
	}
	for _, tt := range tests {
		if got := Render(tt.atom); got != tt.want {
			t.Errorf("Render(%q) = %s, want %s", tt.atom.(Atom).Text(), got, tt.want)
		}
	}
}

func TestDeepNesting(t *testing.T) {
	const depth = 100000
	input := strings.Repeat("(", depth) + "x" + strings.Repeat(")", depth)
	got, err := ParseString(input)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	n := 0
	for node := got; !node.IsLeaf(); node = node.Head() {
		n++
	}
	if n != depth {
		t.Errorf("Expected depth %d, got %d", depth, n)
	}
}
