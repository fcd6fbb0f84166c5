package rules

import (
	"regexp"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

func matchesAny(s string, patterns ...string) bool {
	upper := strings.ToUpper(s)
	for _, p := range patterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}

func tokens(name string) []string {
	return strings.FieldsFunc(strings.ToUpper(name), func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

// locate attaches the component's schematic position to an issue
func locate(ctx *analyzer.Context, i issue.Issue) issue.Issue {
	if i.Component == "" {
		return i
	}
	if c, ok := ctx.Schematic.GetComponent(i.Component); ok {
		return i.At(c.Position)
	}
	return i
}

// otherNets returns the nets on c's pins other than net
func otherNets(ctx *analyzer.Context, ref, net string) []string {
	var out []string
	for _, n := range ctx.Netlist.NetsOf(ref) {
		if n != net {
			out = append(out, n)
		}
	}
	return out
}

func componentsOfClass(ctx *analyzer.Context, refs []string, class schematic.ComponentClass) []schematic.Component {
	var out []schematic.Component
	for _, ref := range refs {
		if c, ok := ctx.Schematic.GetComponent(ref); ok && c.Class() == class {
			out = append(out, c)
		}
	}
	return out
}

var i2cToken = regexp.MustCompile(`^(SDA|SCL)\d*$`)

// i2cSignal returns SDA or SCL when a net name carries that I2C token
func i2cSignal(name string) string {
	for _, tok := range tokens(name) {
		if m := i2cToken.FindStringSubmatch(tok); m != nil {
			return m[1]
		}
	}
	return ""
}
