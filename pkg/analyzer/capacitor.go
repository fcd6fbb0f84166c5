package analyzer

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
	"github.com/OpenTraceLab/designguard/pkg/netlist"
)

// CapacitorFunction is the inferred role of a capacitor
type CapacitorFunction int

const (
	FunctionUnknown CapacitorFunction = iota
	FunctionDecoupling
	FunctionBulk
	FunctionFiltering
	FunctionTiming
	FunctionSnubber
	FunctionCoupling
)

func (f CapacitorFunction) String() string {
	switch f {
	case FunctionDecoupling:
		return "decoupling"
	case FunctionBulk:
		return "bulk"
	case FunctionFiltering:
		return "filtering"
	case FunctionTiming:
		return "timing"
	case FunctionSnubber:
		return "snubber"
	case FunctionCoupling:
		return "coupling"
	default:
		return "unknown"
	}
}

func (f CapacitorFunction) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// Capacitance bands in farads
const (
	hfBypassMin = 10e-9
	hfBypassMax = 2.2e-6
	bulkMin     = 4.7e-6
	timingMin   = 1e-12
	timingMax   = 47e-12
	loadCapMin  = 10e-12
	loadCapMax  = 33e-12
)

// CapacitorClass is the classification of one capacitor
type CapacitorClass struct {
	Ref         string            `json:"ref"`
	Value       string            `json:"value"`
	Capacitance float64           `json:"capacitance"` // Farads, zero when unparsable
	Function    CapacitorFunction `json:"function"`
	Confidence  float64           `json:"confidence"`
	Reasoning   string            `json:"reasoning"`
	Nets        []string          `json:"nets"`
	// PowerNet and GroundNet are set for decoupling candidates
	PowerNet  string `json:"power_net,omitempty"`
	GroundNet string `json:"ground_net,omitempty"`
}

// IsDecouplingCandidate reports whether the capacitor bridges exactly one
// supply rail and one ground rail
func (c CapacitorClass) IsDecouplingCandidate() bool {
	return c.PowerNet != "" && c.GroundNet != ""
}

// IsHFBypass reports a decoupling candidate in the 10 nF to 2.2 µF band
func (c CapacitorClass) IsHFBypass() bool {
	return c.IsDecouplingCandidate() && c.Capacitance >= hfBypassMin && c.Capacitance <= hfBypassMax
}

// IsBulk reports a decoupling candidate of 4.7 µF or more
func (c CapacitorClass) IsBulk() bool {
	return c.IsDecouplingCandidate() && c.Capacitance >= bulkMin
}

type footprintSize int

const (
	sizeUnknown footprintSize = iota
	sizeSmall
	sizeMedium
	sizeLarge
	sizeThroughHole
)

func footprintSizeOf(fp string) footprintSize {
	upper := strings.ToUpper(fp)
	switch {
	case strings.Contains(upper, "0402"), strings.Contains(upper, "0201"):
		return sizeSmall
	case strings.Contains(upper, "0603"):
		return sizeMedium
	case strings.Contains(upper, "0805"), strings.Contains(upper, "1206"), strings.Contains(upper, "1210"):
		return sizeLarge
	case strings.Contains(upper, "THT"), strings.Contains(upper, "RADIAL"), strings.Contains(upper, "AXIAL"):
		return sizeThroughHole
	}
	return sizeUnknown
}

// ClassifyCapacitors classifies every capacitor connected to at least one
// net, in schematic order
func ClassifyCapacitors(sch *schematic.Schematic, nl *netlist.Netlist, reg *PowerRegistry) []CapacitorClass {
	var out []CapacitorClass
	for _, c := range sch.Components {
		if c.Class() != schematic.ClassCapacitor {
			continue
		}
		nets := nl.NetsOf(c.Reference)
		if len(nets) == 0 {
			continue
		}
		out = append(out, classifyCapacitor(sch, c, nets, reg))
	}
	return out
}

func classifyCapacitor(sch *schematic.Schematic, c schematic.Component, nets []string, reg *PowerRegistry) CapacitorClass {
	cc := CapacitorClass{Ref: c.Reference, Value: c.Value, Nets: nets}
	cc.Capacitance, _ = Capacitance(c.Value)

	var supplies, grounds, signals []string
	for _, n := range nets {
		switch {
		case reg.IsGround(n):
			grounds = append(grounds, n)
		case reg.IsSupply(n):
			supplies = append(supplies, n)
		default:
			signals = append(signals, n)
		}
	}
	if len(supplies) == 1 && len(grounds) == 1 {
		cc.PowerNet, cc.GroundNet = supplies[0], grounds[0]
	}

	for _, check := range []func(*CapacitorClass) bool{
		func(cc *CapacitorClass) bool { return checkTiming(sch, c, cc, signals, grounds) },
		func(cc *CapacitorClass) bool { return checkSnubber(sch, c, cc, signals, grounds) },
		func(cc *CapacitorClass) bool { return checkFiltering(cc, signals, grounds) },
		func(cc *CapacitorClass) bool { return checkBulk(c, cc) },
		func(cc *CapacitorClass) bool { return checkDecoupling(c, cc) },
	} {
		if check(&cc) {
			return cc
		}
	}
	cc.Reasoning = fmt.Sprintf("cannot determine function of %s (%s) on nets %s", c.Reference, c.Value, strings.Join(nets, ", "))
	return cc
}

func nearClass(sch *schematic.Schematic, c schematic.Component, radius float64, classes ...schematic.ComponentClass) bool {
	for _, other := range sch.Components {
		for _, class := range classes {
			if other.Class() == class && other.Position.Distance(c.Position) < radius {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	upper := strings.ToUpper(s)
	for _, sub := range subs {
		if strings.Contains(upper, sub) {
			return true
		}
	}
	return false
}

func netTokens(name string) []string {
	return strings.FieldsFunc(strings.ToUpper(name), func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

func checkTiming(sch *schematic.Schematic, c schematic.Component, cc *CapacitorClass, signals, grounds []string) bool {
	if cc.Capacitance < timingMin || cc.Capacitance > timingMax || len(grounds) == 0 {
		return false
	}
	xtalNet := false
	for _, n := range signals {
		if containsAny(n, "XTAL", "OSC", "CRYSTAL", "XIN", "XOUT") {
			xtalNet = true
		}
	}
	nearCrystal := nearClass(sch, c, 30, schematic.ClassCrystal)
	if !xtalNet && !(nearCrystal && cc.Capacitance >= loadCapMin && cc.Capacitance <= loadCapMax) {
		return false
	}
	cc.Function = FunctionTiming
	cc.Confidence = 0.7
	if xtalNet {
		cc.Confidence = 0.95
	}
	cc.Reasoning = fmt.Sprintf("crystal load capacitor: %s to ground", FormatCapacitance(cc.Capacitance))
	return true
}

func checkSnubber(sch *schematic.Schematic, c schematic.Component, cc *CapacitorClass, signals, grounds []string) bool {
	if len(grounds) == 0 {
		return false
	}
	switchNode := false
	for _, n := range signals {
		for _, tok := range netTokens(n) {
			if tok == "SW" || tok == "LX" || strings.Contains(tok, "SWITCH") {
				switchNode = true
			}
		}
	}
	if !switchNode {
		return false
	}
	cc.Function = FunctionSnubber
	cc.Confidence = 0.75
	if nearClass(sch, c, 20, schematic.ClassTransistor, schematic.ClassInductor) {
		cc.Confidence = 0.9
	}
	cc.Reasoning = "snubber: switch node to ground"
	return true
}

func checkFiltering(cc *CapacitorClass, signals, grounds []string) bool {
	switch {
	case len(signals) >= 2:
		cc.Function = FunctionCoupling
		cc.Confidence = 0.8
		cc.Reasoning = fmt.Sprintf("in-series between signal nets %s and %s", signals[0], signals[1])
		return true
	case len(signals) == 1 && len(grounds) >= 1:
		cc.Function = FunctionFiltering
		cc.Confidence = 0.65
		cc.Reasoning = fmt.Sprintf("low-pass filter: %s to ground", signals[0])
		return true
	}
	return false
}

func checkBulk(c schematic.Component, cc *CapacitorClass) bool {
	if !cc.IsBulk() {
		return false
	}
	cc.Function = FunctionBulk
	cc.Confidence = 0.8
	if s := footprintSizeOf(c.Footprint); s == sizeLarge || s == sizeThroughHole {
		cc.Confidence = 0.95
	}
	cc.Reasoning = fmt.Sprintf("bulk capacitor: %s across %s and %s", FormatCapacitance(cc.Capacitance), cc.PowerNet, cc.GroundNet)
	return true
}

func checkDecoupling(c schematic.Component, cc *CapacitorClass) bool {
	if !cc.IsHFBypass() {
		return false
	}
	cc.Function = FunctionDecoupling
	cc.Confidence = 0.75
	if s := footprintSizeOf(c.Footprint); s == sizeSmall || s == sizeMedium {
		cc.Confidence = 0.95
	}
	cc.Reasoning = fmt.Sprintf("decoupling capacitor: %s across %s and %s", FormatCapacitance(cc.Capacitance), cc.PowerNet, cc.GroundNet)
	return true
}
