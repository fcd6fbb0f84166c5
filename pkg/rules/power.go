package rules

import (
	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

// PowerPins reports a missing ground reference and unconnected ICs
type PowerPins struct{}

func (PowerPins) ID() string   { return "power_pins" }
func (PowerPins) Name() string { return "Power Pin Check" }
func (PowerPins) Description() string {
	return "The schematic needs a ground net and every IC must be connected"
}
func (PowerPins) Severity() issue.Severity { return issue.Error }

func (r PowerPins) Check(ctx *analyzer.Context) []issue.Issue {
	var out []issue.Issue
	if !hasGround(ctx) {
		i := issue.New(r.ID(), issue.Error, "", "No GND net, power symbol or label found in schematic")
		out = append(out, i.WithSuggestion("Add a GND power symbol to the schematic"))
	}

	for _, ic := range ctx.Schematic.Components {
		if ic.Class() != schematic.ClassIC {
			continue
		}
		if len(ctx.Netlist.NetsOf(ic.Reference)) > 0 {
			continue
		}
		// Without pin data connectivity cannot be judged
		if len(ic.Pins) == 0 {
			continue
		}
		i := issue.Newf(r.ID(), issue.Warning, ic.Reference,
			"IC %s (%s) has no connected pins. Verify VDD/VCC and GND are connected", ic.Reference, ic.Value)
		out = append(out, locate(ctx, i.WithSuggestion("Ensure all power and ground pins are wired")))
	}
	return out
}

func hasGround(ctx *analyzer.Context) bool {
	if len(ctx.Power.Grounds()) > 0 {
		return true
	}
	for _, ps := range ctx.Schematic.PowerSymbols {
		if analyzer.IsGroundName(ps.Value) {
			return true
		}
	}
	for _, l := range ctx.Schematic.Labels {
		if analyzer.IsGroundName(l.Text) {
			return true
		}
	}
	return false
}
