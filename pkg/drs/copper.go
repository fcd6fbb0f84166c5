package drs

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/OpenTraceLab/designguard/pkg/kicad/pcb"
)

// Path tracing errors
var (
	ErrComponentNotFound = errors.New("component not found")
	ErrPadNotOnNet       = errors.New("no pad on net")
	ErrNoPath            = errors.New("no copper path")
)

// ViaLengthMM is the electrical length counted for a layer change
const ViaLengthMM = 0.1

// SegmentKind classifies one hop of a copper path
type SegmentKind int

const (
	SegmentPad SegmentKind = iota
	SegmentTrack
	SegmentVia
	SegmentZone
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentTrack:
		return "track"
	case SegmentVia:
		return "via"
	case SegmentZone:
		return "zone"
	default:
		return "pad"
	}
}

// PathSegment is one hop along the copper between two pads
type PathSegment struct {
	Kind     SegmentKind
	ID       string // track, via or zone id; "ref.pad" for pads
	Layer    string
	LengthMM float64
	WidthMM  float64 // track width, 0 for other kinds
}

// PathAnalysis is the routed connection from a capacitor pad to an IC pad
type PathAnalysis struct {
	Capacitor string
	IC        string
	Net       string
	LengthMM  float64
	Vias      int
	// MinWidthMM is the narrowest track on the path, 0 when no track is used
	MinWidthMM float64
	// Layer is the layer carrying most of the path length
	Layer    string
	Segments []PathSegment
}

type copperNode struct {
	kind   SegmentKind
	id     string
	layer  string
	layers pcb.LayerSet // pad layers
	pos    pcb.Position
}

func (n copperNode) on(layer string) bool {
	switch n.kind {
	case SegmentVia:
		return true
	case SegmentPad:
		if len(n.layers) == 0 {
			return n.layer == layer
		}
		return n.layers.Has(layer)
	default:
		return n.layer == layer
	}
}

type copperEdge struct {
	kind   SegmentKind
	id     string
	layer  string
	length float64
	width  float64
}

// copperGraph is the conductor graph of one net. Nodes are pads, track
// endpoints and via barrels; edge weights are lengths in mm.
type copperGraph struct {
	g     *simple.WeightedUndirectedGraph
	nodes []copperNode
	edges map[[2]int64]copperEdge
	ends  map[endKey]int64
	pads  map[string]int64
}

type endKey struct {
	layer string
	x, y  int64
}

func keyOf(layer string, p pcb.Position) endKey {
	return endKey{layer: layer, x: int64(math.Round(p.X * 100)), y: int64(math.Round(p.Y * 100))}
}

func newCopperGraph() *copperGraph {
	return &copperGraph{
		g:     simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		edges: make(map[[2]int64]copperEdge),
		ends:  make(map[endKey]int64),
		pads:  make(map[string]int64),
	}
}

func (cg *copperGraph) add(n copperNode) int64 {
	id := int64(len(cg.nodes))
	cg.nodes = append(cg.nodes, n)
	cg.g.AddNode(simple.Node(id))
	return id
}

// end returns the node at a track endpoint, merging coincident endpoints
// on the same layer
func (cg *copperGraph) end(layer string, p pcb.Position) int64 {
	k := keyOf(layer, p)
	if id, ok := cg.ends[k]; ok {
		return id
	}
	id := cg.add(copperNode{kind: SegmentTrack, layer: layer, pos: p})
	cg.ends[k] = id
	return id
}

func (cg *copperGraph) connect(a, b int64, e copperEdge) {
	if a == b {
		return
	}
	if old, ok := cg.edges[edgeKey(a, b)]; ok && old.length <= e.length {
		return
	}
	cg.edges[edgeKey(a, b)] = e
	cg.g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(a), T: simple.Node(b), W: e.length})
}

func edgeKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func padKey(ref, number string) string { return ref + "." + number }

// buildCopperGraph collects the copper of one net
func buildCopperGraph(board *pcb.Board, net string) *copperGraph {
	cg := newCopperGraph()

	for _, t := range board.Tracks {
		if t.Net.Name != net {
			continue
		}
		a := cg.end(t.Layer, t.Start)
		b := cg.end(t.Layer, t.End)
		cg.connect(a, b, copperEdge{kind: SegmentTrack, id: t.ID, layer: t.Layer, length: t.Length(), width: t.Width})
	}

	// endpoints are snapshotted so pads and vias only attach to track ends
	ends := make([]int64, 0, len(cg.ends))
	for _, id := range cg.ends {
		ends = append(ends, id)
	}
	sort.Slice(ends, func(i, j int) bool { return ends[i] < ends[j] })

	copper := board.CopperLayers()
	for _, v := range board.Vias {
		if v.Net.Name != net {
			continue
		}
		id := cg.add(copperNode{kind: SegmentVia, id: v.ID, pos: v.Position})
		reach := v.Size/2 + 0.1
		for _, e := range ends {
			n := cg.nodes[e]
			if viaSpans(v, n.layer, copper) && n.pos.Distance(v.Position) <= reach {
				cg.connect(id, e, copperEdge{kind: SegmentVia, id: v.ID, layer: n.layer, length: ViaLengthMM / 2})
			}
		}
	}

	for _, fp := range board.Footprints {
		for _, pad := range fp.Pads {
			if pad.Net.Name != net {
				continue
			}
			id := cg.add(copperNode{kind: SegmentPad, id: padKey(fp.Reference, pad.Number), layer: fp.Layer, layers: pad.Layers, pos: pad.Position})
			cg.pads[padKey(fp.Reference, pad.Number)] = id
			reach := math.Max(pad.Size.Width, pad.Size.Height)/2 + 0.01
			for _, e := range ends {
				n := cg.nodes[e]
				if cg.nodes[id].on(n.layer) && n.pos.Distance(pad.Position) <= reach {
					cg.connect(id, e, copperEdge{kind: SegmentPad, id: padKey(fp.Reference, pad.Number), layer: n.layer})
				}
			}
		}
	}

	cg.connectZones(board, net)
	return cg
}

// connectZones joins every node inside a filled zone to every other node in
// the same zone, weighted by straight-line distance across the pour
func (cg *copperGraph) connectZones(board *pcb.Board, net string) {
	for _, z := range board.GetNetZones(net) {
		var inside []int64
		for id, n := range cg.nodes {
			if n.on(z.Layer) && z.Contains(n.pos) {
				inside = append(inside, int64(id))
			}
		}
		for i := 0; i < len(inside); i++ {
			for j := i + 1; j < len(inside); j++ {
				a, b := cg.nodes[inside[i]], cg.nodes[inside[j]]
				cg.connect(inside[i], inside[j], copperEdge{kind: SegmentZone, id: z.ID, layer: z.Layer, length: a.pos.Distance(b.pos)})
			}
		}
	}
}

func viaSpans(v pcb.Via, layer string, copper []string) bool {
	if v.Type == pcb.ViaThrough || len(v.Layers) < 2 {
		return true
	}
	// blind and buried vias list their two end layers
	index := func(name string) int {
		for i, c := range copper {
			if c == name {
				return i
			}
		}
		return -1
	}
	from, to, at := index(v.Layers[0]), index(v.Layers[len(v.Layers)-1]), index(layer)
	if from < 0 || to < 0 || at < 0 {
		return true
	}
	if from > to {
		from, to = to, from
	}
	return at >= from && at <= to
}

// TracePath follows the copper of net from a capacitor pad to an IC pad
// and returns the shortest route
func TracePath(board *pcb.Board, capRef, icRef, net string) (PathAnalysis, error) {
	capFP, ok := board.GetFootprint(capRef)
	if !ok {
		return PathAnalysis{}, fmt.Errorf("capacitor %s: %w", capRef, ErrComponentNotFound)
	}
	icFP, ok := board.GetFootprint(icRef)
	if !ok {
		return PathAnalysis{}, fmt.Errorf("IC %s: %w", icRef, ErrComponentNotFound)
	}
	capPads := padsOn(capFP, net)
	icPads := padsOn(icFP, net)
	if len(capPads) == 0 || len(icPads) == 0 {
		return PathAnalysis{}, fmt.Errorf("%s/%s on %s: %w", capRef, icRef, net, ErrPadNotOnNet)
	}

	cg := buildCopperGraph(board, net)
	best := PathAnalysis{LengthMM: math.Inf(1)}
	for _, cp := range capPads {
		shortest := path.DijkstraFrom(simple.Node(cg.pads[padKey(capRef, cp.Number)]), cg.g)
		for _, ip := range icPads {
			nodes, weight := shortest.To(cg.pads[padKey(icRef, ip.Number)])
			if len(nodes) == 0 || weight >= best.LengthMM {
				continue
			}
			best = cg.analyse(nodes)
			best.LengthMM = weight
		}
	}
	if math.IsInf(best.LengthMM, 1) {
		return PathAnalysis{}, fmt.Errorf("%s to %s on %s: %w", capRef, icRef, net, ErrNoPath)
	}
	best.Capacitor, best.IC, best.Net = capRef, icRef, net
	return best, nil
}

func (cg *copperGraph) analyse(nodes []graph.Node) PathAnalysis {
	var pa PathAnalysis
	perLayer := make(map[string]float64)
	vias := make(map[string]bool)
	for i := 1; i < len(nodes); i++ {
		e := cg.edges[edgeKey(nodes[i-1].ID(), nodes[i].ID())]
		if e.kind == SegmentPad {
			continue
		}
		pa.Segments = append(pa.Segments, PathSegment{Kind: e.kind, ID: e.id, Layer: e.layer, LengthMM: e.length, WidthMM: e.width})
		switch e.kind {
		case SegmentVia:
			vias[e.id] = true
		case SegmentTrack:
			if pa.MinWidthMM == 0 || e.width < pa.MinWidthMM {
				pa.MinWidthMM = e.width
			}
		}
		perLayer[e.layer] += e.length
	}
	// entering and leaving a barrel are two edges of the same via
	pa.Vias = len(vias)

	layers := make([]string, 0, len(perLayer))
	for l := range perLayer {
		layers = append(layers, l)
	}
	sort.Strings(layers)
	for _, l := range layers {
		if pa.Layer == "" || perLayer[l] > perLayer[pa.Layer] {
			pa.Layer = l
		}
	}
	return pa
}

func padsOn(fp *pcb.Footprint, net string) []pcb.Pad {
	var pads []pcb.Pad
	for _, p := range fp.Pads {
		if p.Net.Name == net {
			pads = append(pads, p)
		}
	}
	return pads
}
