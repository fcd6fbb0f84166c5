// Package analyzer classifies nets and components of a resolved schematic:
// power rails, capacitor roles and per-IC decoupling groups.
package analyzer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
	"github.com/OpenTraceLab/designguard/pkg/netlist"
)

// RailSource records how a rail was identified
type RailSource int

const (
	SourceKeyword RailSource = iota
	SourceSymbol
	SourceRegulator
)

func (s RailSource) String() string {
	switch s {
	case SourceSymbol:
		return "power_symbol"
	case SourceRegulator:
		return "regulator_output"
	default:
		return "keyword"
	}
}

// Rail is a net carrying a fixed supply or ground potential
type Rail struct {
	Net     string
	Ground  bool
	Voltage float64 // Zero when unknown
	Source  RailSource
}

var supplyPatterns = []string{
	"VCC", "VDD", "VBAT", "VBUS", "VIN", "VOUT",
	"AVCC", "AVDD", "DVCC", "DVDD", "PVCC", "PVDD",
	"VCCA", "VCCD", "VCCIO", "VDDIO", "VCORE", "V_CORE", "VREF", "VDDA",
}

var groundNames = map[string]bool{
	"GND": true, "GROUND": true, "0V": true, "AGND": true, "DGND": true, "PGND": true, "GNDA": true, "GNDD": true,
}

var regulatorPatterns = []string{
	"LM7805", "LM7809", "LM7812", "LM7815", "LM1117", "AMS1117", "LD1117",
	"LM317", "LM2596", "MP1584", "TPS54", "TPS62", "TPS63", "LTC3", "LTC4", "LDO",
}

var (
	splitVoltage = regexp.MustCompile(`(\d+)V(\d+)`)
	plainVoltage = regexp.MustCompile(`(\d+(?:\.\d+)?)V`)
)

// IsGroundName reports whether a net name denotes a ground rail
func IsGroundName(name string) bool {
	upper := strings.ToUpper(strings.TrimPrefix(name, "/"))
	return groundNames[upper] || strings.HasPrefix(upper, "VSS") || strings.HasPrefix(upper, "GND_") || strings.HasSuffix(upper, "_GND")
}

// IsSupplyName reports whether a net name denotes a non-ground supply rail
func IsSupplyName(name string) bool {
	if IsGroundName(name) {
		return false
	}
	upper := strings.ToUpper(strings.TrimPrefix(name, "/"))
	if strings.HasPrefix(upper, "+") || strings.HasPrefix(upper, "V") {
		return true
	}
	for _, p := range supplyPatterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	v, ok := ExtractVoltage(name)
	return ok && v > 0 && v <= 50
}

// ExtractVoltage reads a nominal voltage from names such as 3V3, +5V,
// 1.8V or VCC_1V8
func ExtractVoltage(name string) (float64, bool) {
	upper := strings.ToUpper(name)
	if m := splitVoltage.FindStringSubmatch(upper); m != nil {
		v, err := strconv.ParseFloat(m[1]+"."+m[2], 64)
		return v, err == nil
	}
	if m := plainVoltage.FindStringSubmatch(upper); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		return v, err == nil
	}
	return 0, false
}

// IsRegulator reports whether a component looks like a voltage regulator
func IsRegulator(c schematic.Component) bool {
	value := strings.ToUpper(c.Value)
	for _, p := range regulatorPatterns {
		if strings.Contains(value, p) {
			return true
		}
	}
	lib := strings.ToUpper(c.LibID)
	if strings.Contains(lib, "REGULATOR") || strings.Contains(lib, "LDO") {
		return true
	}
	return c.Class() == schematic.ClassIC && strings.Contains(value, "REG")
}

// PowerRegistry identifies the supply and ground rails of a netlist
type PowerRegistry struct {
	rails map[string]Rail
}

// NewPowerRegistry classifies every net by name, then marks nets carrying
// power symbols and regulator outputs
func NewPowerRegistry(sch *schematic.Schematic, nl *netlist.Netlist) *PowerRegistry {
	r := &PowerRegistry{rails: make(map[string]Rail)}

	for _, n := range nl.Nets {
		for _, name := range n.Names() {
			if rail, ok := classifyName(name); ok {
				rail.Net = n.Name
				r.add(rail)
				break
			}
		}
	}

	for _, ps := range sch.PowerSymbols {
		if schematic.IsPowerFlag(ps) {
			continue
		}
		for _, n := range nl.Nets {
			if !n.HasAlias(ps.Value) {
				continue
			}
			if _, ok := r.rails[n.Name]; ok {
				continue
			}
			v, _ := ExtractVoltage(ps.Value)
			r.add(Rail{Net: n.Name, Ground: IsGroundName(ps.Value), Voltage: v, Source: SourceSymbol})
		}
	}

	for _, c := range sch.Components {
		if !IsRegulator(c) {
			continue
		}
		for _, pin := range regulatorOutputs(c) {
			net, ok := nl.NetOf(c.Reference, pin)
			if !ok {
				continue
			}
			if _, known := r.rails[net]; known {
				continue
			}
			r.add(Rail{Net: net, Source: SourceRegulator})
		}
	}
	return r
}

func classifyName(name string) (Rail, bool) {
	if IsGroundName(name) {
		return Rail{Ground: true, Source: SourceKeyword}, true
	}
	if IsSupplyName(name) {
		v, _ := ExtractVoltage(name)
		return Rail{Voltage: v, Source: SourceKeyword}, true
	}
	return Rail{}, false
}

// regulatorOutputs returns output pin numbers by pin name, falling back to
// the common three-terminal pinouts
func regulatorOutputs(c schematic.Component) []string {
	var out []string
	for _, p := range c.Pins {
		name := strings.ToUpper(p.Name)
		if strings.Contains(name, "OUT") {
			out = append(out, p.Number)
		}
	}
	if len(out) > 0 {
		return out
	}
	if len(c.Pins) >= 2 {
		out = append(out, "2")
	}
	if len(c.Pins) >= 3 {
		out = append(out, "3")
	}
	return out
}

func (r *PowerRegistry) add(rail Rail) { r.rails[rail.Net] = rail }

// Rail returns the rail entry for a net
func (r *PowerRegistry) Rail(net string) (Rail, bool) {
	rail, ok := r.rails[net]
	return rail, ok
}

// IsSupply reports whether net is a non-ground supply rail
func (r *PowerRegistry) IsSupply(net string) bool {
	rail, ok := r.rails[net]
	return ok && !rail.Ground
}

// IsGround reports whether net is a ground rail
func (r *PowerRegistry) IsGround(net string) bool {
	rail, ok := r.rails[net]
	return ok && rail.Ground
}

// IsRail reports whether net is any rail
func (r *PowerRegistry) IsRail(net string) bool {
	_, ok := r.rails[net]
	return ok
}

// Voltage returns the nominal voltage of a supply rail when known
func (r *PowerRegistry) Voltage(net string) (float64, bool) {
	rail, ok := r.rails[net]
	if !ok || rail.Voltage == 0 {
		return 0, false
	}
	return rail.Voltage, true
}

// Rails returns all rails sorted by net name
func (r *PowerRegistry) Rails() []Rail {
	out := make([]Rail, 0, len(r.rails))
	for _, rail := range r.rails {
		out = append(out, rail)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Net < out[j].Net })
	return out
}

// Supplies returns the sorted names of non-ground rails
func (r *PowerRegistry) Supplies() []string {
	var out []string
	for _, rail := range r.Rails() {
		if !rail.Ground {
			out = append(out, rail.Net)
		}
	}
	return out
}

// Grounds returns the sorted names of ground rails
func (r *PowerRegistry) Grounds() []string {
	var out []string
	for _, rail := range r.Rails() {
		if rail.Ground {
			out = append(out, rail.Net)
		}
	}
	return out
}
