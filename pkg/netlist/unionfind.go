package netlist

import "sort"

// unionFind tracks connectivity between string-keyed nodes using
// union-by-rank with path compression.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

// add registers key as its own singleton set
func (uf *unionFind) add(key string) {
	if _, ok := uf.parent[key]; !ok {
		uf.parent[key] = key
		uf.rank[key] = 0
	}
}

// find returns the representative of the set containing key
func (uf *unionFind) find(key string) string {
	uf.add(key)

	root := key
	for uf.parent[root] != root {
		root = uf.parent[root]
	}

	// Path compression: make all nodes on the path point directly to root
	current := key
	for current != root {
		next := uf.parent[current]
		uf.parent[current] = root
		current = next
	}
	return root
}

// union merges the sets containing a and b
func (uf *unionFind) union(a, b string) {
	rootA := uf.find(a)
	rootB := uf.find(b)
	if rootA == rootB {
		return
	}

	// Union by rank
	switch {
	case uf.rank[rootA] < uf.rank[rootB]:
		uf.parent[rootA] = rootB
	case uf.rank[rootA] > uf.rank[rootB]:
		uf.parent[rootB] = rootA
	default:
		uf.parent[rootB] = rootA
		uf.rank[rootA]++
	}
}

// groups returns every set as a sorted member list, ordered by first member.
// The result does not depend on the order of union calls.
func (uf *unionFind) groups() [][]string {
	byRoot := make(map[string][]string)
	for key := range uf.parent {
		root := uf.find(key)
		byRoot[root] = append(byRoot[root], key)
	}
	out := make([][]string, 0, len(byRoot))
	for _, members := range byRoot {
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
