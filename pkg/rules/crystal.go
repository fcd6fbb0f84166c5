package rules

import (
	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

const (
	loadCapMin       = 10e-12
	loadCapMax       = 33e-12
	loadCapProximity = 30.0 // mm
)

// CrystalLoadCapacitors reports crystals without a pair of load caps
type CrystalLoadCapacitors struct{}

func (CrystalLoadCapacitors) ID() string   { return "crystal_load_capacitors" }
func (CrystalLoadCapacitors) Name() string { return "Crystal Load Capacitor Check" }
func (CrystalLoadCapacitors) Description() string {
	return "Crystals need two 10-33pF load capacitors, one on each pin to ground"
}
func (CrystalLoadCapacitors) Severity() issue.Severity { return issue.Warning }

func isCrystal(c schematic.Component) bool {
	switch c.Class() {
	case schematic.ClassCrystal:
		return true
	case schematic.ClassIC, schematic.ClassCapacitor, schematic.ClassResistor:
		return false
	}
	return matchesAny(c.Value, "MHZ", "KHZ", "CRYSTAL")
}

func isLoadCap(cc analyzer.CapacitorClass) bool {
	return cc.Function == analyzer.FunctionTiming ||
		cc.Capacitance >= loadCapMin && cc.Capacitance <= loadCapMax
}

func (r CrystalLoadCapacitors) Check(ctx *analyzer.Context) []issue.Issue {
	var out []issue.Issue
	for _, xtal := range ctx.Schematic.Components {
		if !isCrystal(xtal) {
			continue
		}

		found := 0
		nets := ctx.Netlist.NetsOf(xtal.Reference)
		if len(nets) > 0 {
			for _, cc := range ctx.Capacitors {
				if isLoadCap(cc) && sharesNet(cc.Nets, nets) {
					found++
				}
			}
		} else {
			// Without connectivity fall back to drawing proximity
			for _, c := range ctx.Schematic.Components {
				f, ok := analyzer.Capacitance(c.Value)
				if c.Class() == schematic.ClassCapacitor && ok && f >= loadCapMin && f <= loadCapMax &&
					c.Position.Distance(xtal.Position) <= loadCapProximity {
					found++
				}
			}
		}

		if found >= 2 {
			continue
		}
		i := issue.Newf(r.ID(), issue.Warning, xtal.Reference,
			"Crystal %s (%s) should have two load capacitors (10-33pF), found %d", xtal.Reference, xtal.Value, found)
		out = append(out, locate(ctx, i.WithSuggestion("Add two load capacitors (typically 22pF) from each crystal pin to ground")))
	}
	return out
}

func sharesNet(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
