package pcb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

// Shared types (aliases to sexp package)
type Position = sexp.Position
type Angle = sexp.Angle
type PositionAngle = sexp.PositionAngle
type Size = sexp.Size
type BoundingBox = sexp.BoundingBox
type UUID = sexp.UUID

// Layer represents a PCB layer
type Layer struct {
	Number int    // Layer number (ordinal)
	Name   string // Layer name (e.g., "F.Cu", "B.Cu", "F.SilkS")
	Type   string // Layer type (e.g., "signal", "power", "user")
}

// IsCopper reports whether the layer carries copper
func (l Layer) IsCopper() bool {
	return IsCopperName(l.Name)
}

// IsCopperName reports whether a layer name denotes copper
func IsCopperName(name string) bool {
	return strings.HasSuffix(name, ".Cu")
}

// IsOuterName reports whether a layer name is an outer copper layer
func IsOuterName(name string) bool {
	return name == "F.Cu" || name == "B.Cu"
}

// InnerLayerName returns the canonical name of inner layer n (1-based)
func InnerLayerName(n int) string {
	return fmt.Sprintf("In%d.Cu", n)
}

// Net represents an electrical net
type Net struct {
	Number int    // Net number (ordinal), 0 is unconnected
	Name   string // Net name
}

// LayerSet represents a set of layers
type LayerSet []string

// Has reports whether the set contains layer, honouring *.Cu wildcards
func (ls LayerSet) Has(layer string) bool {
	for _, l := range ls {
		if l == layer {
			return true
		}
		if strings.HasPrefix(l, "*.") && strings.HasSuffix(layer, l[1:]) {
			return true
		}
		if l == "F&B.Cu" && IsOuterName(layer) {
			return true
		}
	}
	return false
}

// LayerByName finds a layer by canonical name
func LayerByName(layers []Layer, name string) (Layer, bool) {
	for _, l := range layers {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

// LayerByNumber finds a layer by ordinal
func LayerByNumber(layers []Layer, n int) (Layer, bool) {
	for _, l := range layers {
		if l.Number == n {
			return l, true
		}
	}
	return Layer{}, false
}

// netIndex resolves net references written by number or by name. Net 0
// is the unconnected net.
type netIndex struct {
	byNumber map[int]Net
	byName   map[string]Net
}

func indexNets(nets []Net) netIndex {
	ix := netIndex{byNumber: make(map[int]Net, len(nets)), byName: make(map[string]Net, len(nets))}
	for _, n := range nets {
		if _, dup := ix.byNumber[n.Number]; !dup {
			ix.byNumber[n.Number] = n
		}
		if _, dup := ix.byName[n.Name]; !dup && n.Name != "" {
			ix.byName[n.Name] = n
		}
	}
	return ix
}

// resolve maps the first argument of a (net ...) node to a declared net,
// keeping name as given when the net was never declared
func (ix netIndex) resolve(ref, name string) Net {
	if num, err := strconv.Atoi(ref); err == nil {
		if n, ok := ix.byNumber[num]; ok {
			return n
		}
		return Net{Number: num, Name: name}
	}
	return ix.byNameOnly(ref)
}

func (ix netIndex) byNameOnly(name string) Net {
	if n, ok := ix.byName[name]; ok {
		return n
	}
	return Net{Name: name}
}
