package rules

import (
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
)

// Thresholds for decoupling findings
const (
	CriticalRailVoltage  = 1.8 // Volts
	MaxHFBypassDistance  = 5.0 // mm
	decouplingSuggestion = "Add a 100nF ceramic capacitor (0402 or 0603) within 5mm of the IC power pins"
)

// DecouplingCapacitor reports ICs without adequate decoupling
type DecouplingCapacitor struct{}

func (DecouplingCapacitor) ID() string   { return "decoupling_capacitor" }
func (DecouplingCapacitor) Name() string { return "Decoupling Capacitor Check" }
func (DecouplingCapacitor) Description() string {
	return "Every IC needs a high-frequency bypass capacitor between its supply and ground rails"
}
func (DecouplingCapacitor) Severity() issue.Severity { return issue.Warning }

func (r DecouplingCapacitor) Check(ctx *analyzer.Context) []issue.Issue {
	var out []issue.Issue
	for _, g := range ctx.Groups {
		rails := strings.Join(append(append([]string{}, g.PowerNets...), g.GroundNets...), "/")

		switch {
		case len(g.Capacitors) == 0:
			sev := issue.Warning
			if isCritical(ctx, g) {
				sev = issue.Error
			}
			i := issue.Newf(r.ID(), sev, g.IC,
				"Missing decoupling: IC %s (%s) has no decoupling capacitor on %s", g.IC, g.ICValue, rails)
			out = append(out, locate(ctx, i.WithSuggestion(decouplingSuggestion)))

		case !g.HasHFBypass():
			i := issue.Newf(r.ID(), issue.Warning, g.IC,
				"Missing high-frequency bypass: IC %s (%s) has %s but no 10nF-2.2µF bypass capacitor",
				g.IC, g.ICValue, describeCaps(g))
			out = append(out, locate(ctx, i.WithSuggestion(decouplingSuggestion)))

		case g.Physical:
			if d, ok := g.HFBypassDistance(); ok && d > MaxHFBypassDistance {
				i := issue.Newf(r.ID(), issue.Suggestion, g.IC,
					"Decoupling capacitor too far: IC %s has its closest bypass capacitor at %.1fmm (recommended <%.0fmm)",
					g.IC, d, MaxHFBypassDistance)
				out = append(out, locate(ctx, i.WithSuggestion("Move the bypass capacitor closer to the IC power pins")))
			}
		}
	}
	return out
}

// isCritical marks low-voltage rails and CPU-class parts
func isCritical(ctx *analyzer.Context, g analyzer.DecouplingGroup) bool {
	if analyzer.IsProcessor(g.ICValue) {
		return true
	}
	v, ok := g.MinVoltage(ctx.Power)
	return ok && v <= CriticalRailVoltage
}

func describeCaps(g analyzer.DecouplingGroup) string {
	parts := make([]string, 0, len(g.Capacitors))
	for _, c := range g.Capacitors {
		parts = append(parts, c.Ref+" "+c.Value)
	}
	return strings.Join(parts, ", ")
}
