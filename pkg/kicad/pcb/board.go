package pcb

import (
	"math"

	"github.com/OpenTraceLab/designguard/pkg/kicad/sexp"
)

// Board represents a complete KiCad PCB
type Board struct {
	Filename   string
	Version    int    // File format version (date code), 0 for legacy files
	Format     string // Format generation, e.g. "kicad_pcb" or "pcbnew-legacy"
	Generator  string
	Layers     []Layer
	Setup      Setup
	Nets       []Net
	Footprints []Footprint
	Tracks     []Track
	Vias       []Via
	Zones      []Zone
	Outline    BoundingBox // Edge.Cuts extent, empty when the board has none
}

// Setup contains board setup and default values
type Setup struct {
	TraceMin           float64 // Minimum track width in mm
	ViaMinSize         float64
	ViaMinDrill        float64
	Clearance          float64
	PadToMaskClearance float64
	Thickness          float64 // Board thickness in mm
	CopperOuterOz      float64 // Outer copper weight in oz/ft²
	CopperInnerOz      float64 // Inner copper weight in oz/ft²
}

// DefaultSetup returns the setup assumed when a file carries none
func DefaultSetup() Setup {
	return Setup{
		TraceMin:      0.2,
		ViaMinSize:    0.6,
		ViaMinDrill:   0.3,
		Clearance:     0.2,
		Thickness:     1.6,
		CopperOuterOz: 1.0,
		CopperInnerOz: 0.5,
	}
}

// Footprint represents a placed component footprint
type Footprint struct {
	ID         string
	Library    string        // Full footprint id, e.g. "Capacitor_SMD:C_0402"
	Layer      string        // F.Cu or B.Cu
	Position   PositionAngle // Position and rotation
	Reference  string
	Value      string
	Properties map[string]string
	Pads       []Pad
}

// PadType is the fabrication type of a pad
type PadType int

const (
	PadThruHole PadType = iota
	PadSMD
	PadConnect
	PadNPThruHole
)

func (t PadType) String() string {
	switch t {
	case PadSMD:
		return "smd"
	case PadConnect:
		return "connect"
	case PadNPThruHole:
		return "np_thru_hole"
	default:
		return "thru_hole"
	}
}

// PadShape is the copper outline of a pad
type PadShape int

const (
	ShapeCircle PadShape = iota
	ShapeRect
	ShapeOval
	ShapeTrapezoid
	ShapeRoundRect
	ShapeCustom
)

func (s PadShape) String() string {
	switch s {
	case ShapeRect:
		return "rect"
	case ShapeOval:
		return "oval"
	case ShapeTrapezoid:
		return "trapezoid"
	case ShapeRoundRect:
		return "roundrect"
	case ShapeCustom:
		return "custom"
	default:
		return "circle"
	}
}

// Pad represents a footprint pad
type Pad struct {
	Number   string
	Type     PadType
	Shape    PadShape
	Local    PositionAngle // Position relative to the footprint
	Position Position      // Absolute board position
	Size     Size
	Drill    float64 // Drill diameter (0 for SMD)
	Layers   LayerSet
	Net      Net
}

// Track represents a copper track segment
type Track struct {
	ID     string
	Start  Position
	End    Position
	Width  float64 // Track width in mm
	Layer  string
	Net    Net
	Locked bool
}

// Length returns the Euclidean length of the track
func (t Track) Length() float64 {
	return t.Start.Distance(t.End)
}

// ViaType distinguishes via constructions
type ViaType int

const (
	ViaThrough ViaType = iota
	ViaBlind
	ViaBuried
	ViaMicro
)

func (v ViaType) String() string {
	switch v {
	case ViaBlind:
		return "blind"
	case ViaBuried:
		return "buried"
	case ViaMicro:
		return "micro"
	default:
		return "through"
	}
}

// Via represents a via
type Via struct {
	ID       string
	Position Position
	Size     float64 // Via diameter
	Drill    float64 // Drill diameter
	Layers   LayerSet
	Type     ViaType
	Net      Net
	Locked   bool
}

// Zone represents a copper zone or rule area
type Zone struct {
	ID           string
	Net          Net
	Layer        string
	Outline      []Position   // Zone outline polygon
	Fills        [][]Position // Filled polygon segments
	MinThickness float64
	Priority     int
	Keepout      Keepout
}

// Keepout holds rule area restrictions
type Keepout struct {
	Enabled bool
	Tracks  bool // Tracks not allowed
	Vias    bool // Vias not allowed
	Copper  bool // Copper pour not allowed
}

// OnLayer reports whether the zone covers layer
func (z Zone) OnLayer(layer string) bool {
	return z.Layer == layer
}

// Contains reports whether p lies in the zone copper, using fills when
// present and the outline otherwise.
func (z Zone) Contains(p Position) bool {
	if len(z.Fills) > 0 {
		for _, fill := range z.Fills {
			if sexp.PointInPolygon(p, fill) {
				return true
			}
		}
		return false
	}
	return sexp.PointInPolygon(p, z.Outline)
}

// GetNet returns a net by name
func (b *Board) GetNet(name string) (Net, bool) {
	for _, n := range b.Nets {
		if n.Name == name {
			return n, true
		}
	}
	return Net{}, false
}

// GetFootprint returns a footprint by reference
func (b *Board) GetFootprint(ref string) (*Footprint, bool) {
	for i := range b.Footprints {
		if b.Footprints[i].Reference == ref {
			return &b.Footprints[i], true
		}
	}
	return nil, false
}

// GetNetPads returns all pads connected to a specific net
func (b *Board) GetNetPads(netName string) []Pad {
	var pads []Pad
	for _, fp := range b.Footprints {
		for _, pad := range fp.Pads {
			if pad.Net.Name == netName {
				pads = append(pads, pad)
			}
		}
	}
	return pads
}

// GetNetTracks returns all tracks connected to a specific net
func (b *Board) GetNetTracks(netName string) []Track {
	var tracks []Track
	for _, track := range b.Tracks {
		if track.Net.Name == netName {
			tracks = append(tracks, track)
		}
	}
	return tracks
}

// GetNetVias returns all vias connected to a specific net
func (b *Board) GetNetVias(netName string) []Via {
	var vias []Via
	for _, via := range b.Vias {
		if via.Net.Name == netName {
			vias = append(vias, via)
		}
	}
	return vias
}

// GetNetZones returns all copper zones on a specific net
func (b *Board) GetNetZones(netName string) []Zone {
	var zones []Zone
	for _, z := range b.Zones {
		if z.Net.Name == netName && !z.Keepout.Enabled {
			zones = append(zones, z)
		}
	}
	return zones
}

// CopperLayers returns copper layer names in stack order
func (b *Board) CopperLayers() []string {
	var names []string
	for _, l := range b.Layers {
		if l.IsCopper() {
			names = append(names, l.Name)
		}
	}
	if len(names) == 0 {
		return []string{"F.Cu", "B.Cu"}
	}
	return names
}

// GetAllNetNames returns a list of all net names in the board
func (b *Board) GetAllNetNames() []string {
	names := make([]string, 0, len(b.Nets))
	for _, net := range b.Nets {
		if net.Name != "" {
			names = append(names, net.Name)
		}
	}
	return names
}

// TransformPosition transforms a relative position by footprint position and rotation
func (fp *Footprint) TransformPosition(rel Position) Position {
	return rel.Rotate(float64(fp.Position.Angle)).Add(fp.Position.Position)
}

// GetBoundingBox calculates the bounding box of a footprint from its pads
func (fp *Footprint) GetBoundingBox() BoundingBox {
	bbox := sexp.NewBoundingBox()
	for _, pad := range fp.Pads {
		half := math.Max(pad.Size.Width, pad.Size.Height) / 2.0
		bbox.Expand(Position{X: pad.Position.X - half, Y: pad.Position.Y - half})
		bbox.Expand(Position{X: pad.Position.X + half, Y: pad.Position.Y + half})
	}
	if len(fp.Pads) == 0 {
		bbox.Expand(fp.Position.Position)
	}
	return bbox
}
