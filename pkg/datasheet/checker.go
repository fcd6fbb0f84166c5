package datasheet

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/analyzer"
	"github.com/OpenTraceLab/designguard/pkg/issue"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
)

// Rule identifiers
const (
	RuleDecoupling = "datasheet_decoupling_capacitor"
	RuleExternal   = "datasheet_external_component"
	RulePin        = "datasheet_pin_configuration"
)

// Search radii around the IC in schematic millimetres
const (
	ExternalRadiusMM = 50.0
	PinRadiusMM      = 30.0
	PowerRadiusMM    = 20.0
)

// Checker verifies a schematic against the requirements database
type Checker struct {
	db     *Database
	logger *slog.Logger
}

// New creates a checker over the embedded requirements
func New(opts ...Option) (*Checker, error) {
	c := &Checker{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.db == nil {
		db, err := Builtin()
		if err != nil {
			return nil, err
		}
		c.db = db
	}
	return c, nil
}

// Database returns the requirements in use
func (c *Checker) Database() *Database { return c.db }

// Check returns a finding per unmet requirement of every matched component
func (c *Checker) Check(sch *schematic.Schematic) []issue.Issue {
	if sch == nil {
		return nil
	}
	all := make([]schematic.Component, 0, len(sch.Components)+len(sch.PowerSymbols))
	all = append(all, sch.Components...)
	all = append(all, sch.PowerSymbols...)

	var out []issue.Issue
	for _, comp := range sch.Components {
		req, ok := c.db.Match(comp)
		if !ok {
			continue
		}
		c.logger.Debug("datasheet matched", "ref", comp.Reference, "part", req.PartNumbers[0])
		out = append(out, c.checkDecoupling(comp, req, all)...)
		out = append(out, c.checkExternal(comp, req, all)...)
		out = append(out, c.checkPins(comp, req, all)...)
	}
	return out
}

func title(comp schematic.Component, what string) string {
	return fmt.Sprintf("%s (%s) - %s", comp.Reference, comp.Value, what)
}

func severityOf(s string) issue.Severity {
	if s == "" {
		return issue.Warning
	}
	sev, err := issue.ParseSeverity(s)
	if err != nil {
		return issue.Warning
	}
	return sev
}

func (c *Checker) checkDecoupling(comp schematic.Component, req *Requirements, all []schematic.Component) []issue.Issue {
	var out []issue.Issue
	for _, d := range req.Decoupling {
		lo, hi := d.Range()
		if hasNear(comp, all, schematic.ClassCapacitor, d.MaxDistanceMM, capacitanceIn(lo, hi)) {
			continue
		}
		fix := fmt.Sprintf("Add a %s capacitor within %gmm of the %s pin", d.Typical, d.MaxDistanceMM, d.PowerPin)
		if d.Dielectric != "" {
			fix = fmt.Sprintf("Add a %s %s capacitor within %gmm of the %s pin", d.Typical, d.Dielectric, d.MaxDistanceMM, d.PowerPin)
		}
		out = append(out, issue.New(RuleDecoupling, severityOf(d.Severity), comp.Reference,
			fmt.Sprintf("%s: Missing %s %s capacitor on %s pin",
				title(comp, d.PowerPin+" Decoupling"), d.Typical, d.Role, d.PowerPin)).
			At(comp.Position).
			WithSuggestion(withReason(fix, d.Reason, req.URL)))
	}
	return out
}

func (c *Checker) checkExternal(comp schematic.Component, req *Requirements, all []schematic.Component) []issue.Issue {
	var out []issue.Issue
	for _, e := range req.External {
		if !e.Required || hasExternal(comp, e, all) {
			continue
		}
		desc := e.Describe()
		pins := strings.Join(e.ConnectedPins, ", ")
		out = append(out, issue.New(RuleExternal, issue.Warning, comp.Reference,
			fmt.Sprintf("%s: Missing required %s on pins: %s", title(comp, "Missing "+desc), desc, pins)).
			At(comp.Position).
			WithSuggestion(withReason(fmt.Sprintf("Add %s connected to %s pins", desc, pins), e.Reason, req.URL)))
	}
	return out
}

func (c *Checker) checkPins(comp schematic.Component, req *Requirements, all []schematic.Component) []issue.Issue {
	var out []issue.Issue
	for _, p := range req.Pins {
		var what, fix, label string
		switch p.Type {
		case PinDefinedState:
			if definedState(comp, all) {
				continue
			}
			label = p.Pin + " Pin State"
			what = p.Pin + " pin may be floating (undefined state)"
			fix = fmt.Sprintf("Add a pull-up or pull-down resistor to %s pin, or connect directly to VCC/GND", p.Pin)
		case PinCapToGround:
			if hasNear(comp, all, schematic.ClassCapacitor, PinRadiusMM, capacitanceNear(float64(p.Capacitance))) {
				continue
			}
			label = p.Pin + " Capacitor"
			what = "Missing capacitor on " + p.Pin + " pin"
			fix = fmt.Sprintf("Add %s capacitor from %s pin to GND", p.Capacitance, p.Pin)
		case PinPullUp:
			r := float64(p.Resistance)
			if r == 0 {
				r = 10e3
			}
			if hasNear(comp, all, schematic.ClassResistor, PinRadiusMM, resistanceNear(r)) {
				continue
			}
			label = p.Pin + " Pull-up"
			what = "Missing pull-up resistor on " + p.Pin + " pin"
			fix = fmt.Sprintf("Add %gΩ pull-up resistor from %s pin to VCC", r, p.Pin)
		case PinRCDelay:
			hasR := hasNear(comp, all, schematic.ClassResistor, PinRadiusMM, resistanceNear(float64(p.Resistance)))
			hasC := hasNear(comp, all, schematic.ClassCapacitor, PinRadiusMM, capacitanceNear(float64(p.Capacitance)))
			if hasR && hasC {
				continue
			}
			label = p.Pin + " RC Delay"
			what = "Missing RC delay circuit on " + p.Pin + " pin"
			fix = fmt.Sprintf("Add RC delay: %gΩ resistor to VCC, %s capacitor to GND", float64(p.Resistance), p.Capacitance)
		default:
			continue
		}
		out = append(out, issue.New(RulePin, issue.Warning, comp.Reference,
			fmt.Sprintf("%s: %s", title(comp, label), what)).
			At(comp.Position).
			WithSuggestion(withReason(fix, p.Reason, req.URL)))
	}
	return out
}

func withReason(fix, reason, url string) string {
	if reason != "" {
		fix += ". " + reason
	}
	if url != "" {
		fix += " (" + url + ")"
	}
	return fix
}

func hasNear(ic schematic.Component, all []schematic.Component, class schematic.ComponentClass, radius float64, accept func(string) bool) bool {
	for _, c := range all {
		if c.Class() != class || c.Reference == ic.Reference {
			continue
		}
		if ic.Position.Distance(c.Position) <= radius && accept(c.Value) {
			return true
		}
	}
	return false
}

func capacitanceIn(lo, hi float64) func(string) bool {
	return func(v string) bool {
		f, ok := analyzer.Capacitance(v)
		return ok && f >= lo && f <= hi
	}
}

// within a factor of two
func capacitanceNear(target float64) func(string) bool {
	return capacitanceIn(target*0.5, target*2)
}

func resistanceNear(target float64) func(string) bool {
	return func(v string) bool {
		r, ok := analyzer.Resistance(v)
		return ok && r >= target*0.5 && r <= target*2
	}
}

func resistanceIn(lo, hi float64) func(string) bool {
	return func(v string) bool {
		r, ok := analyzer.Resistance(v)
		return ok && r >= lo && r <= hi
	}
}

func hasExternal(ic schematic.Component, e External, all []schematic.Component) bool {
	for _, c := range all {
		if c.Reference == ic.Reference || ic.Position.Distance(c.Position) > ExternalRadiusMM {
			continue
		}
		ref := strings.ToUpper(c.Reference)
		val := strings.ToLower(c.Value)
		switch e.Type {
		case ExternalCrystal:
			if strings.HasPrefix(ref, "Y") || strings.HasPrefix(ref, "X") ||
				strings.Contains(val, "mhz") || strings.Contains(val, "crystal") {
				return true
			}
		case ExternalPullUp, ExternalPullDown:
			if c.Class() == schematic.ClassResistor && resistanceIn(1e3, 100e3)(c.Value) {
				return true
			}
		case ExternalFilterCapacitor, ExternalBypassCapacitor:
			if c.Class() == schematic.ClassCapacitor {
				return true
			}
		case ExternalSeriesResistor:
			if c.Class() == schematic.ClassResistor && resistanceIn(20, 50)(c.Value) {
				return true
			}
		case ExternalProtection:
			if strings.HasPrefix(ref, "D") || strings.Contains(val, "tvs") || strings.Contains(val, "esd") {
				return true
			}
		}
	}
	return false
}

var powerValues = map[string]bool{"GND": true, "VCC": true, "VDD": true, "3V3": true, "+3V3": true, "+5V": true}

// definedState looks for a pull resistor or a nearby power symbol
func definedState(ic schematic.Component, all []schematic.Component) bool {
	if hasNear(ic, all, schematic.ClassResistor, PinRadiusMM, resistanceIn(1e3, 100e3)) {
		return true
	}
	for _, c := range all {
		if powerValues[strings.ToUpper(c.Value)] && ic.Position.Distance(c.Position) <= PowerRadiusMM {
			return true
		}
	}
	return false
}
