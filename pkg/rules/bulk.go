package rules

import (
	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

// BulkCapacitor reports regulators and processors without bulk capacitance
type BulkCapacitor struct{}

func (BulkCapacitor) ID() string   { return "bulk_capacitor" }
func (BulkCapacitor) Name() string { return "Bulk Capacitor Check" }
func (BulkCapacitor) Description() string {
	return "Regulators and MCU/FPGA parts need a bulk capacitor of at least 4.7µF on their rails"
}
func (BulkCapacitor) Severity() issue.Severity { return issue.Warning }

func (r BulkCapacitor) Check(ctx *analyzer.Context) []issue.Issue {
	var out []issue.Issue
	for _, g := range ctx.Groups {
		ic, ok := ctx.Schematic.GetComponent(g.IC)
		if !ok || g.HasBulk() {
			continue
		}
		kind := ""
		switch {
		case analyzer.IsRegulator(ic):
			kind = "Voltage regulator"
		case analyzer.IsProcessor(ic.Value):
			kind = "IC"
		default:
			continue
		}
		i := issue.Newf(r.ID(), issue.Warning, g.IC,
			"Missing bulk capacitor: %s %s (%s) needs a bulk capacitor (>=4.7µF) on its supply rail", kind, g.IC, g.ICValue)
		out = append(out, locate(ctx, i.WithSuggestion(bulkSuggestion(ic))))
	}
	return out
}

func bulkSuggestion(ic schematic.Component) string {
	if analyzer.IsRegulator(ic) {
		return "Add a 10µF to 47µF capacitor on the regulator input and output"
	}
	return "Add a 10µF to 47µF capacitor (0805, 1206 or tantalum) on the supply rail"
}
