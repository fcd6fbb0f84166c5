package netlist

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// NodeKind distinguishes the two sides of the connectivity graph
type NodeKind int

const (
	ComponentNode NodeKind = iota
	NetNode
)

// Graph is a bipartite component/net graph. A component is adjacent to
// every net one of its pins sits on.
type Graph struct {
	g     *simple.UndirectedGraph
	ids   map[nodeName]int64
	names map[int64]nodeName
	// pin counts per component/net edge
	pins map[[2]int64]int
}

type nodeName struct {
	kind NodeKind
	name string
}

// Graph builds the component/net graph of the netlist
func (nl *Netlist) Graph() *Graph {
	gr := &Graph{
		g:     simple.NewUndirectedGraph(),
		ids:   make(map[nodeName]int64),
		names: make(map[int64]nodeName),
		pins:  make(map[[2]int64]int),
	}
	for _, n := range nl.Nets {
		netID := gr.node(NetNode, n.Name)
		for _, p := range n.Pins {
			compID := gr.node(ComponentNode, p.Ref)
			gr.pins[[2]int64{compID, netID}]++
			if !gr.g.HasEdgeBetween(compID, netID) {
				gr.g.SetEdge(simple.Edge{F: simple.Node(compID), T: simple.Node(netID)})
			}
		}
	}
	return gr
}

func (gr *Graph) node(kind NodeKind, name string) int64 {
	key := nodeName{kind: kind, name: name}
	if id, ok := gr.ids[key]; ok {
		return id
	}
	id := int64(len(gr.ids))
	gr.ids[key] = id
	gr.names[id] = key
	gr.g.AddNode(simple.Node(id))
	return id
}

func (gr *Graph) lookup(kind NodeKind, name string) (int64, bool) {
	id, ok := gr.ids[nodeName{kind: kind, name: name}]
	return id, ok
}

func (gr *Graph) neighbours(id int64) []string {
	var out []string
	it := gr.g.From(id)
	for it.Next() {
		out = append(out, gr.names[it.Node().ID()].name)
	}
	sort.Strings(out)
	return out
}

// NetsOf returns the sorted nets a component connects to
func (gr *Graph) NetsOf(ref string) []string {
	id, ok := gr.lookup(ComponentNode, ref)
	if !ok {
		return nil
	}
	return gr.neighbours(id)
}

// ComponentsOn returns the sorted components connected to a net
func (gr *Graph) ComponentsOn(net string) []string {
	id, ok := gr.lookup(NetNode, net)
	if !ok {
		return nil
	}
	return gr.neighbours(id)
}

// PinCount returns how many pins of ref sit on net
func (gr *Graph) PinCount(ref, net string) int {
	c, ok := gr.lookup(ComponentNode, ref)
	if !ok {
		return 0
	}
	n, ok := gr.lookup(NetNode, net)
	if !ok {
		return 0
	}
	return gr.pins[[2]int64{c, n}]
}

// Hop is one step on a component path
type Hop struct {
	Ref string
	Net string // Net crossed to reach Ref, empty for the first hop
}

// ShortestPath returns the fewest-nets route between two components,
// or nil when they are not connected
func (gr *Graph) ShortestPath(from, to string) []Hop {
	u, ok := gr.lookup(ComponentNode, from)
	if !ok {
		return nil
	}
	v, ok := gr.lookup(ComponentNode, to)
	if !ok {
		return nil
	}
	nodes, _ := path.DijkstraFrom(simple.Node(u), gr.g).To(v)
	if len(nodes) == 0 {
		return nil
	}

	hops := []Hop{{Ref: from}}
	var via string
	for _, n := range nodes[1:] {
		name := gr.names[n.ID()]
		if name.kind == NetNode {
			via = name.name
			continue
		}
		hops = append(hops, Hop{Ref: name.name, Net: via})
	}
	return hops
}

// Reachable returns the sorted components reachable from ref without
// crossing any of the excluded nets. Power rails are typically excluded
// so the walk stays within signal connectivity.
func (gr *Graph) Reachable(ref string, exclude ...string) []string {
	start, ok := gr.lookup(ComponentNode, ref)
	if !ok {
		return nil
	}
	skip := make(map[int64]bool)
	for _, net := range exclude {
		if id, ok := gr.lookup(NetNode, net); ok {
			skip[id] = true
		}
	}

	var out []string
	bf := traverse.BreadthFirst{
		Traverse: func(e graph.Edge) bool {
			return !skip[e.To().ID()] && !skip[e.From().ID()]
		},
		Visit: func(n graph.Node) {
			name := gr.names[n.ID()]
			if name.kind == ComponentNode && n.ID() != start {
				out = append(out, name.name)
			}
		},
	}
	bf.Walk(gr.g, simple.Node(start), nil)
	sort.Strings(out)
	return out
}
