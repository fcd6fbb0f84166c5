package netlist

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

func pt(x, y float64) sexp.Position { return sexp.Position{X: x, Y: y} }

func comp(ref string, pins ...schematic.Pin) schematic.Component {
	return schematic.Component{ID: "c-" + ref, Reference: ref, Value: ref, Pins: pins}
}

func pin(num string, x, y float64) schematic.Pin {
	return schematic.Pin{Number: num, Position: pt(x, y), Located: true}
}

func wire(id string, pts ...sexp.Position) schematic.Wire {
	return schematic.Wire{ID: id, Points: pts}
}

// testSchematic:
//
//	U1.1 --w1-- R1.1    R1.2 --w2--+--[SIG]-- C1.1    C1.2 = GND
//	                               |
//	                              w3 -- C2.1          C2.2 = GND
func testSchematic() *schematic.Schematic {
	return &schematic.Schematic{
		Format: "kicad_sch",
		Components: []schematic.Component{
			comp("U1", pin("1", 0, 0), pin("2", 0, 5)),
			comp("R1", pin("1", 10, 0), pin("2", 20, 0)),
			comp("C1", pin("1", 30, 0), pin("2", 40, 0)),
			comp("C2", pin("1", 25, 10), pin("2", 50, 0)),
		},
		PowerSymbols: []schematic.Component{
			comp("#PWR01", pin("1", 40, 0)),
			comp("#PWR02", pin("1", 50, 0)),
		},
		Wires: []schematic.Wire{
			wire("w1", pt(0, 0), pt(10, 0)),
			wire("w2", pt(20, 0), pt(30, 0)),
			wire("w3", pt(25, 0), pt(25, 10)),
		},
		Labels: []schematic.Label{
			{ID: "l1", Text: "SIG", Position: pt(27.5, 0), Kind: schematic.LabelLocal},
		},
	}
}

func gndSchematic() *schematic.Schematic {
	sch := testSchematic()
	for i := range sch.PowerSymbols {
		sch.PowerSymbols[i].Value = "GND"
	}
	return sch
}

func pinStrings(pins []PinRef) string {
	parts := make([]string, len(pins))
	for i, p := range pins {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

func TestBuild(t *testing.T) {
	nl := Build(gndSchematic())

	want := []struct {
		name   string
		global bool
		pins   string
	}{
		{"GND", true, "C1.2,C2.2"},
		{"Net-(SIG)", false, "C1.1,C2.1,R1.2"},
		{"Net-1", false, "R1.1,U1.1"},
	}
	if len(nl.Nets) != len(want) {
		t.Fatalf("got %d nets, want %d: %+v", len(nl.Nets), len(want), nl.Nets)
	}
	for i, w := range want {
		n := nl.Nets[i]
		if n.Name != w.name {
			t.Errorf("net %d name = %q, want %q", i, n.Name, w.name)
		}
		if n.Global != w.global {
			t.Errorf("net %s global = %v, want %v", n.Name, n.Global, w.global)
		}
		if got := pinStrings(n.Pins); got != w.pins {
			t.Errorf("net %s pins = %s, want %s", n.Name, got, w.pins)
		}
	}

	if _, ok := nl.NetOf("U1", "2"); ok {
		t.Error("unconnected pin U1.2 should not be on a net")
	}
	if name, _ := nl.NetOf("C2", "1"); name != "Net-(SIG)" {
		t.Errorf("C2.1 on %q, want Net-(SIG) via T-junction", name)
	}
}

func TestBuildNamePriority(t *testing.T) {
	tests := []struct {
		name   string
		labels []schematic.Label
		want   string
		global bool
	}{
		{"local only", []schematic.Label{{ID: "a", Text: "X", Kind: schematic.LabelLocal}}, "Net-(X)", false},
		{"hier beats local", []schematic.Label{
			{ID: "a", Text: "X", Kind: schematic.LabelLocal},
			{ID: "b", Text: "Y", Kind: schematic.LabelHierarchical},
		}, "Hier-Y", false},
		{"global beats hier", []schematic.Label{
			{ID: "a", Text: "Y", Kind: schematic.LabelHierarchical},
			{ID: "b", Text: "Z", Kind: schematic.LabelGlobal},
		}, "Z", true},
		{"alphabetical tie break", []schematic.Label{
			{ID: "a", Text: "BUS_B", Kind: schematic.LabelGlobal},
			{ID: "b", Text: "BUS_A", Kind: schematic.LabelGlobal},
		}, "BUS_A", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sch := &schematic.Schematic{
				Components: []schematic.Component{comp("R1", pin("1", 0, 0)), comp("R2", pin("1", 10, 0))},
				Wires:      []schematic.Wire{wire("w", pt(0, 0), pt(10, 0))},
			}
			for i, l := range tt.labels {
				l.Position = pt(float64(2+i), 0)
				sch.Labels = append(sch.Labels, l)
			}
			nl := Build(sch)
			if len(nl.Nets) != 1 {
				t.Fatalf("got %d nets, want 1", len(nl.Nets))
			}
			if nl.Nets[0].Name != tt.want || nl.Nets[0].Global != tt.global {
				t.Errorf("got %q global=%v, want %q global=%v", nl.Nets[0].Name, nl.Nets[0].Global, tt.want, tt.global)
			}
			for _, l := range tt.labels {
				if !nl.Nets[0].HasAlias(l.Text) {
					t.Errorf("alias %q missing from %v", l.Text, nl.Nets[0].Aliases)
				}
			}
		})
	}
}

func TestBuildGlobalLabelsJoinDisjointWires(t *testing.T) {
	sch := &schematic.Schematic{
		Components: []schematic.Component{
			comp("U1", pin("1", 0, 0)),
			comp("U2", pin("1", 100, 100)),
		},
		Labels: []schematic.Label{
			{ID: "a", Text: "SDA", Position: pt(0, 0), Kind: schematic.LabelGlobal},
			{ID: "b", Text: "SDA", Position: pt(100, 100), Kind: schematic.LabelGlobal},
		},
	}
	nl := Build(sch)
	if got := pinStrings(nl.Pins("SDA")); got != "U1.1,U2.1" {
		t.Errorf("SDA pins = %s, want U1.1,U2.1", got)
	}
}

func TestBuildExplicitNets(t *testing.T) {
	sch := &schematic.Schematic{
		Components: []schematic.Component{comp("U1"), comp("C3")},
		Nets: []schematic.Net{
			{Name: "VCC", Connections: []schematic.Connection{{Reference: "U1", Pin: "3"}, {Reference: "C3", Pin: "1"}, {Reference: "#PWR1", Pin: "1"}}},
		},
	}
	nl := Build(sch)
	n, ok := nl.Net("VCC")
	if !ok {
		t.Fatal("VCC net missing")
	}
	if !n.Global {
		t.Error("explicit net should be global")
	}
	if got := pinStrings(n.Pins); got != "C3.1,U1.3" {
		t.Errorf("VCC pins = %s, want C3.1,U1.3", got)
	}
}

func TestBuildEpsilon(t *testing.T) {
	sch := &schematic.Schematic{
		Components: []schematic.Component{comp("R1", pin("1", 0, 0)), comp("R2", pin("1", 10.005, 0))},
		Wires:      []schematic.Wire{wire("w", pt(0, 0), pt(10, 0))},
	}
	if nl := Build(sch); len(nl.Nets) != 1 {
		t.Errorf("pin within tolerance: got %d nets, want 1", len(nl.Nets))
	}
	if nl := Build(sch, WithEpsilon(0.001)); len(nl.Nets) != 0 {
		t.Errorf("pin outside tolerance: got %d nets, want 0", len(nl.Nets))
	}
}

func TestEpsilonFor(t *testing.T) {
	if got := EpsilonFor(&schematic.Schematic{Format: "kicad_sch"}); got != DefaultEpsilon {
		t.Errorf("modern epsilon = %v", got)
	}
	if got := EpsilonFor(&schematic.Schematic{Format: "eeschema-v4"}); got >= sexp.LegacySchematicUnit {
		t.Errorf("legacy epsilon = %v, must be below one legacy unit", got)
	}
}

func TestExport(t *testing.T) {
	out := Build(gndSchematic()).Export()
	for _, want := range []string{
		`(export (version "E")`,
		`(net (code "1") (name "GND") (node (ref "C1") (pin "2"))`,
		`(name "Net-(SIG)")`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %s\n%s", want, out)
		}
	}
}

// TestBuildOrderIndependent shuffles every input slice and checks the
// resulting connectivity and names are unchanged.
func TestBuildOrderIndependent(t *testing.T) {
	base := Build(gndSchematic())

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("input order does not change nets", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			sch := gndSchematic()
			rng.Shuffle(len(sch.Components), func(i, j int) {
				sch.Components[i], sch.Components[j] = sch.Components[j], sch.Components[i]
			})
			rng.Shuffle(len(sch.PowerSymbols), func(i, j int) {
				sch.PowerSymbols[i], sch.PowerSymbols[j] = sch.PowerSymbols[j], sch.PowerSymbols[i]
			})
			rng.Shuffle(len(sch.Wires), func(i, j int) {
				sch.Wires[i], sch.Wires[j] = sch.Wires[j], sch.Wires[i]
			})
			for _, w := range sch.Wires {
				if rng.Intn(2) == 0 {
					w.Points[0], w.Points[1] = w.Points[1], w.Points[0]
				}
			}

			nl := Build(sch)
			if !reflect.DeepEqual(nl.Partition(), base.Partition()) {
				return false
			}
			for i := range nl.Nets {
				if nl.Nets[i].Name != base.Nets[i].Name {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// flaggedRails has +3V3 and GND symbols on two wires, each also carrying a
// PWR_FLAG marker
func flaggedRails() *schematic.Schematic {
	power := func(id, ref, value string, x, y float64) schematic.Component {
		return schematic.Component{ID: id, Reference: ref, Value: value, LibID: "power:" + value, Pins: []schematic.Pin{pin("1", x, y)}}
	}
	return &schematic.Schematic{
		Components: []schematic.Component{
			comp("U1", pin("1", 0, 0), pin("2", 0, 10)),
			comp("C1", pin("1", 20, 0), pin("2", 20, 10)),
		},
		PowerSymbols: []schematic.Component{
			power("p1", "#PWR01", "+3V3", 5, 0),
			power("p2", "#PWR02", "GND", 5, 10),
			power("f1", "#FLG01", "PWR_FLAG", 15, 0),
			power("f2", "#FLG02", "PWR_FLAG", 15, 10),
		},
		Wires: []schematic.Wire{
			wire("w1", pt(0, 0), pt(20, 0)),
			wire("w2", pt(0, 10), pt(20, 10)),
		},
	}
}

func TestBuildPowerFlagsKeepRailsApart(t *testing.T) {
	nl := Build(flaggedRails())

	tests := []struct {
		ref, pin, want string
	}{
		{"U1", "1", "+3V3"},
		{"C1", "1", "+3V3"},
		{"U1", "2", "GND"},
		{"C1", "2", "GND"},
	}
	for _, tt := range tests {
		if got, _ := nl.NetOf(tt.ref, tt.pin); got != tt.want {
			t.Errorf("%s.%s on %q, want %q", tt.ref, tt.pin, got, tt.want)
		}
	}
	for _, n := range nl.Nets {
		if n.Name == "PWR_FLAG" || n.HasAlias("PWR_FLAG") {
			t.Errorf("power flag named net %s", n.Name)
		}
	}
}
