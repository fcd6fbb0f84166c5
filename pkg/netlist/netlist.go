// Package netlist derives pin-to-net connectivity from a schematic and
// exposes it as a netlist and as a component/net graph.
package netlist

import (
	"sort"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp/kicadsexp"
)

// PinRef identifies one component pin
type PinRef struct {
	Ref string `json:"ref"`
	Pin string `json:"pin"`
}

func (p PinRef) String() string { return p.Ref + "." + p.Pin }

// Net is a set of electrically common pins
type Net struct {
	Name string `json:"name"`
	// Aliases holds every label text and power symbol value attached to the net
	Aliases []string `json:"aliases,omitempty"`
	// Global is set when the name comes from a global label, power symbol
	// or explicit netlist entry
	Global bool     `json:"global,omitempty"`
	Pins   []PinRef `json:"pins"`
}

// HasAlias reports whether the net carries the given name, case-insensitively
func (n Net) HasAlias(name string) bool {
	if strings.EqualFold(n.Name, name) {
		return true
	}
	for _, a := range n.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// Names returns the net name followed by its aliases
func (n Net) Names() []string {
	return append([]string{n.Name}, n.Aliases...)
}

// Netlist is the resolved connectivity of one schematic
type Netlist struct {
	Nets []Net `json:"nets"`

	pinNet map[PinRef]int
	byName map[string]int
}

func newNetlist(nets []Net) *Netlist {
	sort.Slice(nets, func(i, j int) bool { return nets[i].Name < nets[j].Name })
	nl := &Netlist{
		Nets:   nets,
		pinNet: make(map[PinRef]int),
		byName: make(map[string]int),
	}
	for i, n := range nets {
		nl.byName[n.Name] = i
		for _, p := range n.Pins {
			nl.pinNet[p] = i
		}
	}
	return nl
}

// NetOf returns the net name of a pin
func (nl *Netlist) NetOf(ref, pin string) (string, bool) {
	i, ok := nl.pinNet[PinRef{Ref: ref, Pin: pin}]
	if !ok {
		return "", false
	}
	return nl.Nets[i].Name, true
}

// Net returns a net by name
func (nl *Netlist) Net(name string) (Net, bool) {
	i, ok := nl.byName[name]
	if !ok {
		return Net{}, false
	}
	return nl.Nets[i], true
}

// NetsOf returns the sorted names of all nets touching ref
func (nl *Netlist) NetsOf(ref string) []string {
	seen := make(map[string]bool)
	var names []string
	for p, i := range nl.pinNet {
		if p.Ref != ref {
			continue
		}
		name := nl.Nets[i].Name
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Pins returns the pins on a net
func (nl *Netlist) Pins(net string) []PinRef {
	n, ok := nl.Net(net)
	if !ok {
		return nil
	}
	return n.Pins
}

// Components returns the sorted references of components on a net
func (nl *Netlist) Components(net string) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, p := range nl.Pins(net) {
		if !seen[p.Ref] {
			seen[p.Ref] = true
			refs = append(refs, p.Ref)
		}
	}
	sort.Strings(refs)
	return refs
}

// Partition returns the nets as sorted pin-key groups, independent of
// naming. Two netlists with equal partitions connect the same pins.
func (nl *Netlist) Partition() [][]string {
	var out [][]string
	for _, n := range nl.Nets {
		if len(n.Pins) == 0 {
			continue
		}
		group := make([]string, len(n.Pins))
		for i, p := range n.Pins {
			group[i] = p.String()
		}
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Export renders the netlist in the KiCad (export (nets ...)) form
func (nl *Netlist) Export() string {
	nets := []kicadsexp.Sexp{kicadsexp.Symbol("nets")}
	for i, n := range nl.Nets {
		net := []kicadsexp.Sexp{
			kicadsexp.Symbol("net"),
			kicadsexp.NewList(kicadsexp.Symbol("code"), kicadsexp.QuotedString(strconv.Itoa(i+1))),
			kicadsexp.NewList(kicadsexp.Symbol("name"), kicadsexp.QuotedString(n.Name)),
		}
		for _, p := range n.Pins {
			net = append(net, kicadsexp.NewList(
				kicadsexp.Symbol("node"),
				kicadsexp.NewList(kicadsexp.Symbol("ref"), kicadsexp.QuotedString(p.Ref)),
				kicadsexp.NewList(kicadsexp.Symbol("pin"), kicadsexp.QuotedString(p.Pin)),
			))
		}
		nets = append(nets, kicadsexp.NewList(net...))
	}
	root := kicadsexp.NewList(
		kicadsexp.Symbol("export"),
		kicadsexp.NewList(kicadsexp.Symbol("version"), kicadsexp.QuotedString("E")),
		kicadsexp.NewList(nets...),
	)
	return kicadsexp.Render(root)
}
