package schematic

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/OpenTraceLab/designguard/pkg/errs"
)

const resistorSchematic = `(kicad_sch
	(version 20231120)
	(generator "eeschema")
	(uuid test-uuid)
	(paper "A4")
	(lib_symbols
		(symbol "Device:R"
			(property "Reference" "R" (at 0 0 0))
			(property "Value" "R" (at 0 0 0))
			(symbol "R_1_1"
				(pin passive line (at 0 3.81 270) (length 1.27)
					(name "~" (effects (font (size 1.27 1.27))))
					(number "1" (effects (font (size 1.27 1.27))))
				)
				(pin passive line (at 0 -3.81 90) (length 1.27)
					(name "~" (effects (font (size 1.27 1.27))))
					(number "2" (effects (font (size 1.27 1.27))))
				)
			)
		)
		(symbol "power:GND" (power)
			(property "Reference" "#PWR" (at 0 0 0))
			(symbol "GND_0_1"
				(pin power_in line (at 0 0 270) (length 0) hide
					(name "GND" (effects (font (size 1.27 1.27))))
					(number "1" (effects (font (size 1.27 1.27))))
				)
			)
		)
	)
	(symbol (lib_id "Device:R")
		(at 100 50 0)
		(unit 1)
		(uuid sym-uuid-1)
		(property "Reference" "R1" (at 100 45 0))
		(property "Value" "10k" (at 100 55 0))
		(property "Footprint" "Resistor_SMD:R_0603_1608Metric" (at 100 55 0) (effects (hide yes)))
		(pin "1" (uuid pin-1))
		(pin "2" (uuid pin-2))
	)
	(symbol (lib_id "power:GND")
		(at 100 53.81 0)
		(unit 1)
		(uuid pwr-uuid-1)
		(property "Reference" "#PWR01" (at 100 60 0))
		(property "Value" "GND" (at 100 58 0))
		(pin "1" (uuid pwr-pin-1))
	)
	(wire (pts (xy 100 46.19) (xy 100 40)) (stroke (width 0) (type default)) (uuid wire-1))
	(label "SDA" (at 100 40 0) (effects (font (size 1.27 1.27))) (uuid label-1))
	(global_label "VCC" (shape input) (at 120 40 0) (effects (font (size 1.27 1.27))) (uuid glabel-1))
	(hierarchical_label "RESET" (shape input) (at 130 40 180) (uuid hlabel-1))
	(junction (at 100 40) (diameter 0) (color 0 0 0 0) (uuid junc-1))
	(no_connect (at 140 40) (uuid nc-1))
	(future_node (with "unknown" content))
)`

func TestParseMinimalSchematic(t *testing.T) {
	input := `(kicad_sch
		(version 20250114)
		(generator "eeschema")
		(generator_version "9.0")
		(uuid 862335ee-c981-4fe1-9eb9-84db19301dd4)
		(paper "A4")
		(lib_symbols)
		(sheet_instances
			(path "/"
				(page "1")
			)
		)
	)`

	sch, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Failed to parse schematic: %v", err)
	}

	if sch.Version != 20250114 {
		t.Errorf("Expected version 20250114, got %d", sch.Version)
	}

	if sch.Generator != "eeschema" {
		t.Errorf("Expected generator 'eeschema', got '%s'", sch.Generator)
	}

	if sch.GeneratorVer != "9.0" {
		t.Errorf("Expected generator version '9.0', got '%s'", sch.GeneratorVer)
	}

	if sch.UUID != "862335ee-c981-4fe1-9eb9-84db19301dd4" {
		t.Errorf("Unexpected uuid %s", sch.UUID)
	}
}

func TestParseSchematicWithSymbol(t *testing.T) {
	sch, err := Parse(strings.NewReader(resistorSchematic))
	if err != nil {
		t.Fatalf("Failed to parse schematic: %v", err)
	}

	if len(sch.LibSymbols) != 2 {
		t.Errorf("Expected 2 lib symbols, got %d", len(sch.LibSymbols))
	}

	if len(sch.Components) != 1 {
		t.Fatalf("Expected 1 component, got %d", len(sch.Components))
	}

	r1, ok := sch.GetComponent("R1")
	if !ok {
		t.Fatal("GetComponent('R1') found nothing")
	}
	if r1.Value != "10k" || r1.LibID != "Device:R" || r1.ID != "sym-uuid-1" {
		t.Errorf("Unexpected component %+v", r1)
	}
	if r1.Footprint != "Resistor_SMD:R_0603_1608Metric" {
		t.Errorf("Expected footprint, got %q", r1.Footprint)
	}
	if r1.Class() != ClassResistor {
		t.Errorf("Expected resistor class, got %v", r1.Class())
	}

	refs := sch.GetAllReferences()
	if len(refs) != 1 || refs[0] != "R1" {
		t.Errorf("Expected refs ['R1'], got %v", refs)
	}
}

func TestPinWorldPositions(t *testing.T) {
	sch, err := Parse(strings.NewReader(resistorSchematic))
	if err != nil {
		t.Fatalf("Failed to parse schematic: %v", err)
	}
	r1, _ := sch.GetComponent("R1")
	if len(r1.Pins) != 2 {
		t.Fatalf("Expected 2 pins, got %d", len(r1.Pins))
	}

	// Library Y points up, sheet Y points down
	want := map[string]Position{"1": {X: 100, Y: 46.19}, "2": {X: 100, Y: 53.81}}
	for _, p := range r1.Pins {
		w := want[p.Number]
		if math.Abs(p.Position.X-w.X) > 1e-6 || math.Abs(p.Position.Y-w.Y) > 1e-6 {
			t.Errorf("Pin %s at %+v, want %+v", p.Number, p.Position, w)
		}
		if !p.Located {
			t.Errorf("Pin %s should be located", p.Number)
		}
	}
	if p, _ := r1.Pin("1"); p.UUID != "pin-1" {
		t.Errorf("Expected pin uuid pin-1, got %s", p.UUID)
	}
}

func TestPinPositionTransforms(t *testing.T) {
	tests := []struct {
		name     string
		rotation float64
		mirror   string
		want     Position
	}{
		{"identity", 0, "", Position{X: 10, Y: 7}},
		{"rotate 90", 90, "", Position{X: 7, Y: 10}},
		{"rotate 180", 180, "", Position{X: 10, Y: 13}},
		{"mirror y", 0, "y", Position{X: 10, Y: 7}},
		{"mirror x", 0, "x", Position{X: 10, Y: 13}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Component{Position: Position{X: 10, Y: 10}, Rotation: tt.rotation, Mirror: tt.mirror}
			got := PinPosition(c, Position{X: 0, Y: 3})
			if math.Abs(got.X-tt.want.X) > 1e-9 || math.Abs(got.Y-tt.want.Y) > 1e-9 {
				t.Errorf("PinPosition() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPowerSymbolsSegregated(t *testing.T) {
	sch, err := Parse(strings.NewReader(resistorSchematic))
	if err != nil {
		t.Fatalf("Failed to parse schematic: %v", err)
	}
	if len(sch.PowerSymbols) != 1 {
		t.Fatalf("Expected 1 power symbol, got %d", len(sch.PowerSymbols))
	}
	if sch.PowerSymbols[0].Value != "GND" {
		t.Errorf("Expected GND power symbol, got %s", sch.PowerSymbols[0].Value)
	}
	if got := len(sch.AllComponents()); got != 2 {
		t.Errorf("Expected 2 components overall, got %d", got)
	}
}

func TestParseSchematicWithLabels(t *testing.T) {
	sch, err := Parse(strings.NewReader(resistorSchematic))
	if err != nil {
		t.Fatalf("Failed to parse schematic: %v", err)
	}

	if len(sch.Labels) != 3 {
		t.Fatalf("Expected 3 labels, got %d", len(sch.Labels))
	}
	kinds := []LabelKind{sch.Labels[0].Kind, sch.Labels[1].Kind, sch.Labels[2].Kind}
	want := []LabelKind{LabelLocal, LabelGlobal, LabelHierarchical}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("Expected kinds %v, got %v", want, kinds)
	}
	if sch.Labels[1].Text != "VCC" {
		t.Errorf("Expected global label text 'VCC', got '%s'", sch.Labels[1].Text)
	}
	if len(sch.Wires) != 1 || len(sch.Junctions) != 1 || len(sch.NoConnects) != 1 {
		t.Errorf("Unexpected counts wires=%d junctions=%d noconnects=%d",
			len(sch.Wires), len(sch.Junctions), len(sch.NoConnects))
	}
}

func TestParseIdempotent(t *testing.T) {
	a, err := Parse(strings.NewReader(resistorSchematic))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse(strings.NewReader(resistorSchematic))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Expected parsing twice to yield equal schematics")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong root", `(kicad_pcb (version 20231120))`},
		{"missing version", `(kicad_sch (generator "eeschema"))`},
		{"too old", `(kicad_sch (version 20200101))`},
		{"unterminated string", `(kicad_sch (version 20231120) (label "SDA`},
		{"unbalanced", `(kicad_sch (version 20231120) (wire (pts (xy 0 0) (xy 1 0))`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !errs.IsParse(err) {
				t.Errorf("Expected parse error, got %v", err)
			}
		})
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile("does/not/exist.kicad_sch")
	if !errs.IsIO(err) {
		t.Errorf("Expected IO error, got %v", err)
	}
	var ce *errs.ClassifiedError
	if !errors.As(err, &ce) || ce.Path != "does/not/exist.kicad_sch" {
		t.Errorf("Expected path on error, got %v", err)
	}
}

func TestClassOf(t *testing.T) {
	tests := map[string]ComponentClass{
		"R12": ClassResistor, "c3": ClassCapacitor, "L1": ClassInductor, "D4": ClassDiode,
		"U1": ClassIC, "J2": ClassConnector, "P1": ClassConnector, "Y1": ClassCrystal,
		"Q1": ClassTransistor, "TP1": ClassOther, "": ClassOther,
	}
	for ref, want := range tests {
		if got := ClassOf(ref); got != want {
			t.Errorf("ClassOf(%q) = %v, want %v", ref, got, want)
		}
	}
}
