// Package schematic provides types and a parser for KiCad schematic files.
//
// A Schematic is an immutable snapshot: parsers build it once and every
// downstream stage reads it without mutation.
package schematic

import (
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

// Re-export common types from sexp package for convenience
type (
	Position      = sexp.Position
	PositionAngle = sexp.PositionAngle
	UUID          = sexp.UUID
)

// Schematic represents a complete KiCad schematic sheet
type Schematic struct {
	UUID         UUID
	Filename     string
	Version      int    // File format version (date code), 0 for legacy files
	Format       string // Format generation, e.g. "kicad_sch" or "eeschema-v5"
	Generator    string
	GeneratorVer string

	Components   []Component // Ordinary components
	PowerSymbols []Component // Components segregated by the power prefix rule
	Wires        []Wire
	Labels       []Label
	Nets         []Net // Explicit nets, when the source carries them
	Junctions    []Position
	NoConnects   []Position

	LibSymbols map[string]LibSymbol // Embedded library symbols by lib id
}

// ComponentClass is derived from the reference prefix
type ComponentClass int

const (
	ClassOther ComponentClass = iota
	ClassResistor
	ClassCapacitor
	ClassInductor
	ClassDiode
	ClassIC
	ClassConnector
	ClassCrystal
	ClassTransistor
)

func (c ComponentClass) String() string {
	switch c {
	case ClassResistor:
		return "resistor"
	case ClassCapacitor:
		return "capacitor"
	case ClassInductor:
		return "inductor"
	case ClassDiode:
		return "diode"
	case ClassIC:
		return "ic"
	case ClassConnector:
		return "connector"
	case ClassCrystal:
		return "crystal"
	case ClassTransistor:
		return "transistor"
	default:
		return "other"
	}
}

// ClassOf returns the component class for a reference designator
func ClassOf(ref string) ComponentClass {
	if ref == "" {
		return ClassOther
	}
	switch strings.ToUpper(ref[:1]) {
	case "R":
		return ClassResistor
	case "C":
		return ClassCapacitor
	case "L":
		return ClassInductor
	case "D":
		return ClassDiode
	case "U":
		return ClassIC
	case "J", "P":
		return ClassConnector
	case "Y", "X":
		return ClassCrystal
	case "Q":
		return ClassTransistor
	}
	return ClassOther
}

// Component is a placed symbol instance
type Component struct {
	ID         string
	Reference  string
	Value      string
	LibID      string
	Footprint  string
	Position   Position
	Rotation   float64 // Degrees
	Mirror     string  // "", "x" or "y"
	Unit       int
	Properties map[string]string
	Pins       []Pin
}

// Class returns the component class derived from its reference
func (c Component) Class() ComponentClass {
	return ClassOf(c.Reference)
}

// Property returns a property value or ""
func (c Component) Property(key string) string {
	return c.Properties[key]
}

// Pin returns the pin with the given number
func (c Component) Pin(number string) (Pin, bool) {
	for _, p := range c.Pins {
		if p.Number == number {
			return p, true
		}
	}
	return Pin{}, false
}

// Pin is a connection point on a placed component
type Pin struct {
	Number   string
	Name     string
	Type     string // Electrical type: power_in, passive, input, ...
	UUID     UUID
	Position Position // Absolute sheet position
	Located  bool     // Position derived from library pin geometry
}

// Wire is a polyline segment in the drawing
type Wire struct {
	ID     string
	Points []Position
}

// LabelKind distinguishes label scoping
type LabelKind int

const (
	LabelLocal LabelKind = iota
	LabelGlobal
	LabelHierarchical
)

func (k LabelKind) String() string {
	switch k {
	case LabelGlobal:
		return "global"
	case LabelHierarchical:
		return "hierarchical"
	default:
		return "local"
	}
}

// Label names a net at a position
type Label struct {
	ID       string
	Text     string
	Position Position
	Rotation float64
	Kind     LabelKind
}

// Connection is one component pin on a net
type Connection struct {
	Reference string
	Pin       string
}

// Net is a named set of electrically common pins
type Net struct {
	Name        string
	Connections []Connection
}

// LibSymbol is an embedded library definition used to place pins
type LibSymbol struct {
	Name  string
	Power bool
	Pins  []LibPin
}

// LibPin is a pin as drawn in the library, relative to the symbol origin
// with the Y axis pointing up.
type LibPin struct {
	Number   string
	Name     string
	Type     string
	Position Position
	Unit     int // 0 means common to all units
}

// AllComponents returns ordinary components followed by power symbols
func (s *Schematic) AllComponents() []Component {
	all := make([]Component, 0, len(s.Components)+len(s.PowerSymbols))
	all = append(all, s.Components...)
	return append(all, s.PowerSymbols...)
}

// GetComponent returns a component by reference
func (s *Schematic) GetComponent(ref string) (Component, bool) {
	for _, c := range s.Components {
		if c.Reference == ref {
			return c, true
		}
	}
	for _, c := range s.PowerSymbols {
		if c.Reference == ref {
			return c, true
		}
	}
	return Component{}, false
}

// GetAllReferences returns the references of ordinary components
func (s *Schematic) GetAllReferences() []string {
	refs := make([]string, 0, len(s.Components))
	for _, c := range s.Components {
		refs = append(refs, c.Reference)
	}
	return refs
}

// IsPowerFlag reports whether c is a PWR_FLAG marker. Flags sit on a rail
// for the electrical rule check and carry no net name of their own.
func IsPowerFlag(c Component) bool {
	return strings.HasPrefix(c.Reference, "#FLG") || strings.EqualFold(c.Value, "PWR_FLAG")
}

// IsPowerSymbol applies the power routing rule shared by the modern and
// legacy parsers: a reserved reference prefix or a power library.
func IsPowerSymbol(ref, libID string) bool {
	if strings.HasPrefix(ref, "#PWR") || strings.HasPrefix(ref, "#FLG") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(libID), "power:")
}
