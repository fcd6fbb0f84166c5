package rules

import (
	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

// Acceptable I2C pull-up range in ohms
const (
	minPullUp = 1e3
	maxPullUp = 10e3
)

// I2CPullResistors reports SDA/SCL nets without a pull-up to a supply
type I2CPullResistors struct{}

func (I2CPullResistors) ID() string   { return "i2c_pull_resistors" }
func (I2CPullResistors) Name() string { return "I2C Pull-up Resistor Check" }
func (I2CPullResistors) Description() string {
	return "I2C SDA and SCL lines need a pull-up resistor to a supply rail"
}
func (I2CPullResistors) Severity() issue.Severity { return issue.Warning }

func (r I2CPullResistors) Check(ctx *analyzer.Context) []issue.Issue {
	var out []issue.Issue
	for _, n := range ctx.Netlist.Nets {
		signal := ""
		for _, name := range n.Names() {
			if signal = i2cSignal(name); signal != "" {
				break
			}
		}
		if signal == "" {
			continue
		}

		var pullUps []schematic.Component
		for _, res := range componentsOfClass(ctx, ctx.Netlist.Components(n.Name), schematic.ClassResistor) {
			for _, other := range otherNets(ctx, res.Reference, n.Name) {
				if ctx.Power.IsSupply(other) {
					pullUps = append(pullUps, res)
					break
				}
			}
		}

		if len(pullUps) == 0 {
			i := issue.Newf(r.ID(), issue.Warning, "",
				"I2C %s line on net %s has no pull-up resistor to a supply rail", signal, n.Name)
			out = append(out, i.WithSuggestion("Add a pull-up resistor (typically 4.7kΩ) from "+signal+" to the I/O supply"))
			continue
		}
		for _, res := range pullUps {
			ohms, ok := analyzer.Resistance(res.Value)
			if !ok || (ohms >= minPullUp && ohms <= maxPullUp) {
				continue
			}
			i := issue.Newf(r.ID(), issue.Suggestion, res.Reference,
				"I2C %s pull-up %s (%s) is outside the usual 1k-10k range", signal, res.Reference, res.Value)
			out = append(out, locate(ctx, i.WithSuggestion("Use 2.2kΩ for fast mode or 4.7kΩ for standard mode")))
		}
	}
	return out
}
