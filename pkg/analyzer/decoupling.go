package analyzer

import (
	"math"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

// MaxDecouplingDistance bounds geometric group membership in mm
const MaxDecouplingDistance = 20.0

// Layout supplies component positions for geometric analysis
type Layout interface {
	Position(ref string) (sexp.Position, bool)
	// Physical reports positions measured on a board rather than a drawing
	Physical() bool
}

type schematicLayout struct{ sch *schematic.Schematic }

// SchematicLayout places components at their schematic symbol positions
func SchematicLayout(sch *schematic.Schematic) Layout { return schematicLayout{sch} }

func (l schematicLayout) Position(ref string) (sexp.Position, bool) {
	c, ok := l.sch.GetComponent(ref)
	return c.Position, ok
}

func (schematicLayout) Physical() bool { return false }

type boardLayout struct{ board *pcb.Board }

// BoardLayout places components at their footprint positions
func BoardLayout(board *pcb.Board) Layout { return boardLayout{board} }

func (l boardLayout) Position(ref string) (sexp.Position, bool) {
	fp, ok := l.board.GetFootprint(ref)
	if !ok {
		return sexp.Position{}, false
	}
	return fp.Position.Position, true
}

func (boardLayout) Physical() bool { return true }

// GroupCapacitor is a capacitor assigned to an IC's decoupling group
type GroupCapacitor struct {
	Ref         string            `json:"ref"`
	Value       string            `json:"value"`
	Capacitance float64           `json:"capacitance"`
	Function    CapacitorFunction `json:"function"`
	// Distance to the IC in mm, NaN when either position is unknown
	Distance float64 `json:"distance_mm"`
	HFBypass bool    `json:"hf_bypass"`
	Bulk     bool    `json:"bulk"`
}

// DecouplingGroup collects the decoupling capacitors serving one IC. An
// empty Capacitors slice means the IC has no decoupling at all.
type DecouplingGroup struct {
	IC         string           `json:"ic"`
	ICValue    string           `json:"ic_value"`
	PowerNets  []string         `json:"power_nets"`
	GroundNets []string         `json:"ground_nets"`
	Capacitors []GroupCapacitor `json:"capacitors"`
	// Physical is set when distances come from a board layout
	Physical bool `json:"physical"`
}

// HasHFBypass reports whether any member is a high-frequency bypass cap
func (g DecouplingGroup) HasHFBypass() bool {
	for _, c := range g.Capacitors {
		if c.HFBypass {
			return true
		}
	}
	return false
}

// HasBulk reports whether any member is a bulk cap
func (g DecouplingGroup) HasBulk() bool {
	for _, c := range g.Capacitors {
		if c.Bulk {
			return true
		}
	}
	return false
}

// HFBypassDistance returns the distance of the closest HF bypass cap
func (g DecouplingGroup) HFBypassDistance() (float64, bool) {
	best := math.Inf(1)
	for _, c := range g.Capacitors {
		if c.HFBypass && !math.IsNaN(c.Distance) && c.Distance < best {
			best = c.Distance
		}
	}
	return best, !math.IsInf(best, 1)
}

// MinVoltage returns the lowest known voltage among the group's supplies
func (g DecouplingGroup) MinVoltage(reg *PowerRegistry) (float64, bool) {
	best, found := math.Inf(1), false
	for _, n := range g.PowerNets {
		if v, ok := reg.Voltage(n); ok && v < best {
			best, found = v, true
		}
	}
	return best, found
}

// GroupStrategy builds decoupling groups one way. A strategy that cannot
// run returns nil.
type GroupStrategy interface {
	Name() string
	Groups(ctx *Context) []DecouplingGroup
}

// Geometric keeps only capacitors within MaxDecouplingDistance of the IC
// in the given layout
type Geometric struct {
	Layout Layout
}

func (g Geometric) Name() string {
	if g.Layout != nil && g.Layout.Physical() {
		return "geometric-board"
	}
	return "geometric-schematic"
}

func (g Geometric) Groups(ctx *Context) []DecouplingGroup {
	if g.Layout == nil {
		return nil
	}
	return buildGroups(ctx, g.Layout, MaxDecouplingDistance)
}

// Topological groups every capacitor sharing the IC's rails
type Topological struct{}

func (Topological) Name() string { return "topological" }

func (Topological) Groups(ctx *Context) []DecouplingGroup {
	return buildGroups(ctx, SchematicLayout(ctx.Schematic), math.Inf(1))
}

// DefaultStrategies returns the grouping fallback chain: board geometry
// when a board is present, then schematic geometry, then pure topology
func DefaultStrategies(board *pcb.Board, sch *schematic.Schematic) []GroupStrategy {
	var out []GroupStrategy
	if board != nil {
		out = append(out, Geometric{Layout: BoardLayout(board)})
	}
	return append(out, Geometric{Layout: SchematicLayout(sch)}, Topological{})
}

// BuildDecouplingGroups runs the strategies in order and returns the first
// result with at least one non-empty group. When none qualifies the last
// strategy's result is returned.
func BuildDecouplingGroups(ctx *Context, strategies []GroupStrategy) ([]DecouplingGroup, string) {
	var last []DecouplingGroup
	var name string
	for _, s := range strategies {
		groups := s.Groups(ctx)
		if groups == nil {
			continue
		}
		last, name = groups, s.Name()
		for _, g := range groups {
			if len(g.Capacitors) > 0 {
				return groups, name
			}
		}
	}
	return last, name
}

// buildGroups creates one group per IC with at least one rail pin
func buildGroups(ctx *Context, layout Layout, maxDist float64) []DecouplingGroup {
	groups := []DecouplingGroup{}
	for _, ic := range ctx.Schematic.Components {
		if ic.Class() != schematic.ClassIC {
			continue
		}
		g := DecouplingGroup{IC: ic.Reference, ICValue: ic.Value, Physical: layout.Physical()}
		for _, n := range ctx.Netlist.NetsOf(ic.Reference) {
			switch {
			case ctx.Power.IsSupply(n):
				g.PowerNets = append(g.PowerNets, n)
			case ctx.Power.IsGround(n):
				g.GroundNets = append(g.GroundNets, n)
			}
		}
		if len(g.PowerNets) == 0 && len(g.GroundNets) == 0 {
			continue
		}

		icPos, icOK := layout.Position(ic.Reference)
		for _, cc := range ctx.Capacitors {
			if !cc.IsDecouplingCandidate() || !contains(g.PowerNets, cc.PowerNet) || !contains(g.GroundNets, cc.GroundNet) {
				continue
			}
			dist := math.NaN()
			if capPos, ok := layout.Position(cc.Ref); ok && icOK {
				dist = capPos.Distance(icPos)
			}
			if !math.IsInf(maxDist, 1) && !(dist <= maxDist) {
				continue
			}
			g.Capacitors = append(g.Capacitors, GroupCapacitor{
				Ref:         cc.Ref,
				Value:       cc.Value,
				Capacitance: cc.Capacitance,
				Function:    cc.Function,
				Distance:    dist,
				HFBypass:    cc.IsHFBypass(),
				Bulk:        cc.IsBulk(),
			})
		}
		groups = append(groups, g)
	}
	return groups
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var processorPatterns = []string{"STM32", "ESP32", "RP2040", "ATMEGA", "ATSAM", "NRF52", "IMX", "FPGA", "CPU", "MCU", "XC7", "ICE40"}

// IsProcessor reports whether an IC value names a CPU-class part
func IsProcessor(value string) bool {
	upper := strings.ToUpper(value)
	for _, p := range processorPatterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}
