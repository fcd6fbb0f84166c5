package netlist

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/kicad/schematic"
	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

// DefaultEpsilon is the coincidence tolerance for modern schematics in mm
const DefaultEpsilon = 0.01

// Option configures Build
type Option func(*builder)

// WithEpsilon overrides the geometric coincidence tolerance
func WithEpsilon(eps float64) Option {
	return func(b *builder) { b.eps = eps }
}

// Name scopes, in naming priority order
const (
	scopeGlobal = "global"
	scopeHier   = "hier"
	scopeLocal  = "local"
)

type anchor struct {
	key string
	pos sexp.Position
}

type segment struct {
	key  string
	a, b sexp.Position
}

type builder struct {
	eps  float64
	uf   *unionFind
	pins map[string]PinRef

	wirePoints []anchor
	segments   []segment
	pinPoints  []anchor
	labels     []anchor
}

// EpsilonFor returns the coincidence tolerance suited to the schematic's
// coordinate scale
func EpsilonFor(sch *schematic.Schematic) float64 {
	if strings.HasPrefix(sch.Format, "eeschema") {
		// Legacy coordinates sit on an integer grid of LegacySchematicUnit
		return sexp.LegacySchematicUnit / 2
	}
	return DefaultEpsilon
}

// Build resolves the schematic's connectivity. Explicit nets, wire
// geometry, labels and power symbols are merged in a union-find, so the
// resulting partition does not depend on input order.
func Build(sch *schematic.Schematic, opts ...Option) *Netlist {
	b := &builder{
		eps:  EpsilonFor(sch),
		uf:   newUnionFind(),
		pins: make(map[string]PinRef),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.addComponents(sch)
	b.addExplicitNets(sch)
	b.addWires(sch)
	b.addLabels(sch)
	b.addPowerSymbols(sch)
	b.connectGeometry()

	return newNetlist(b.nets())
}

func pinKey(ref, pin string) string { return "p|" + ref + "|" + pin }

func nameKey(scope, text string) string { return "n|" + scope + "|" + text }

func (b *builder) addPin(ref, pin string) string {
	key := pinKey(ref, pin)
	b.pins[key] = PinRef{Ref: ref, Pin: pin}
	b.uf.add(key)
	return key
}

func (b *builder) addComponents(sch *schematic.Schematic) {
	for _, c := range sch.Components {
		for _, p := range c.Pins {
			key := b.addPin(c.Reference, p.Number)
			if p.Located {
				b.pinPoints = append(b.pinPoints, anchor{key: key, pos: p.Position})
			}
		}
	}
}

func (b *builder) addExplicitNets(sch *schematic.Schematic) {
	for _, n := range sch.Nets {
		name := nameKey(scopeGlobal, n.Name)
		b.uf.add(name)
		for _, c := range n.Connections {
			if schematic.IsPowerSymbol(c.Reference, "") {
				continue
			}
			b.uf.union(name, b.addPin(c.Reference, c.Pin))
		}
	}
}

func (b *builder) addWires(sch *schematic.Schematic) {
	for _, w := range sch.Wires {
		key := "w|" + w.ID
		b.uf.add(key)
		for i, p := range w.Points {
			b.wirePoints = append(b.wirePoints, anchor{key: key, pos: p})
			if i > 0 {
				b.segments = append(b.segments, segment{key: key, a: w.Points[i-1], b: p})
			}
		}
	}
}

func (b *builder) addLabels(sch *schematic.Schematic) {
	for _, l := range sch.Labels {
		scope := scopeLocal
		switch l.Kind {
		case schematic.LabelGlobal:
			scope = scopeGlobal
		case schematic.LabelHierarchical:
			scope = scopeHier
		}
		key := "l|" + l.ID
		b.uf.union(key, nameKey(scope, l.Text))
		b.labels = append(b.labels, anchor{key: key, pos: l.Position})
	}
}

// addPowerSymbols ties each power symbol's connection point to the global
// name given by its value. Power flags only join the wire they sit on.
func (b *builder) addPowerSymbols(sch *schematic.Schematic) {
	for _, ps := range sch.PowerSymbols {
		key := "s|" + ps.ID
		if !schematic.IsPowerFlag(ps) {
			b.uf.union(key, nameKey(scopeGlobal, ps.Value))
		}

		located := false
		for _, p := range ps.Pins {
			if p.Located {
				b.labels = append(b.labels, anchor{key: key, pos: p.Position})
				located = true
			}
		}
		if !located {
			b.labels = append(b.labels, anchor{key: key, pos: ps.Position})
		}
	}
}

// connectGeometry unions items whose connection points coincide
func (b *builder) connectGeometry() {
	// Wire ends joining other wires, including T-junctions mid-segment
	for _, p := range b.wirePoints {
		for _, s := range b.segments {
			if s.key != p.key && sexp.SegmentDistance(p.pos, s.a, s.b) <= b.eps {
				b.uf.union(p.key, s.key)
			}
		}
	}
	// Labels and power symbols attach anywhere along a wire
	for _, l := range b.labels {
		for _, s := range b.segments {
			if sexp.SegmentDistance(l.pos, s.a, s.b) <= b.eps {
				b.uf.union(l.key, s.key)
			}
		}
	}
	// Pins attach at wire vertices, to labels and to each other
	for i, p := range b.pinPoints {
		for _, w := range b.wirePoints {
			if p.pos.Near(w.pos, b.eps) {
				b.uf.union(p.key, w.key)
			}
		}
		for _, l := range b.labels {
			if p.pos.Near(l.pos, b.eps) {
				b.uf.union(p.key, l.key)
			}
		}
		for _, q := range b.pinPoints[i+1:] {
			if p.pos.Near(q.pos, b.eps) {
				b.uf.union(p.key, q.key)
			}
		}
	}
}

type candidate struct {
	rank int
	name string
}

var scopeRank = map[string]int{scopeGlobal: 0, scopeHier: 1, scopeLocal: 2}

func displayName(scope, text string) string {
	switch scope {
	case scopeHier:
		return "Hier-" + text
	case scopeLocal:
		return "Net-(" + text + ")"
	}
	return text
}

// nets turns union-find groups into named nets
func (b *builder) nets() []Net {
	var nets []Net
	unnamed := 0
	for _, group := range b.uf.groups() {
		var pins []PinRef
		var cands []candidate
		aliases := make(map[string]bool)
		for _, key := range group {
			if pin, ok := b.pins[key]; ok {
				pins = append(pins, pin)
				continue
			}
			if !strings.HasPrefix(key, "n|") {
				continue
			}
			parts := strings.SplitN(key, "|", 3)
			cands = append(cands, candidate{rank: scopeRank[parts[1]], name: displayName(parts[1], parts[2])})
			aliases[parts[2]] = true
		}

		if len(cands) == 0 && len(pins) < 2 {
			// Unconnected pin or bare wire
			continue
		}
		sort.Slice(pins, func(i, j int) bool {
			if pins[i].Ref != pins[j].Ref {
				return pins[i].Ref < pins[j].Ref
			}
			return pins[i].Pin < pins[j].Pin
		})

		net := Net{Pins: pins}
		if len(cands) == 0 {
			unnamed++
			net.Name = fmt.Sprintf("Net-%d", unnamed)
		} else {
			sort.Slice(cands, func(i, j int) bool {
				if cands[i].rank != cands[j].rank {
					return cands[i].rank < cands[j].rank
				}
				return cands[i].name < cands[j].name
			})
			net.Name = cands[0].name
			net.Global = cands[0].rank == 0
			for a := range aliases {
				net.Aliases = append(net.Aliases, a)
			}
			sort.Strings(net.Aliases)
		}
		nets = append(nets, net)
	}
	return nets
}
