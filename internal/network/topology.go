package network

import "slices"

// Parents returns the parents of i in declaration order.
func (n *Network) Parents(i int) []int { return append([]int(nil), n.parents[i]...) }

// Children returns the children of i in ascending id order.
func (n *Network) Children(i int) []int { return append([]int(nil), n.children[i]...) }

// TopologicalOrder lists every variable after all of its parents. Ties are
// broken by id so the order is stable across builds.
func (n *Network) TopologicalOrder() []int { return append([]int(nil), n.order...) }

// MarkovBlanket returns parents, children and the children's other parents
// of i, sorted by id.
func (n *Network) MarkovBlanket(i int) []int {
	set := make(map[int]bool)
	for _, p := range n.parents[i] {
		set[p] = true
	}
	for _, c := range n.children[i] {
		set[c] = true
		for _, p := range n.parents[c] {
			if p != i {
				set[p] = true
			}
		}
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Ancestors marks every variable in seeds together with all of its
// ancestors.
func (n *Network) Ancestors(seeds []int) []bool {
	marked := make([]bool, len(n.vars))
	stack := append([]int(nil), seeds...)
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if marked[v] {
			continue
		}
		marked[v] = true
		stack = append(stack, n.parents[v]...)
	}
	return marked
}

// Adjacency is the structure export: a square matrix over variable ids
// where [i][j] is true iff i is a parent of j.
func (n *Network) Adjacency() [][]bool {
	m := make([][]bool, len(n.vars))
	for i := range m {
		m[i] = make([]bool, len(n.vars))
	}
	for c, ps := range n.parents {
		for _, p := range ps {
			m[p][c] = true
		}
	}
	return m
}

// Moral returns the moral graph as adjacency sets: every parent-child edge
// plus an edge between every pair of co-parents, directions dropped.
// When keep is non-nil only marked variables and edges among them are
// included.
func (n *Network) Moral(keep []bool) []map[int]bool {
	adj := make([]map[int]bool, len(n.vars))
	for i := range adj {
		adj[i] = make(map[int]bool)
	}
	in := func(v int) bool { return keep == nil || keep[v] }
	link := func(a, b int) {
		adj[a][b] = true
		adj[b][a] = true
	}
	for c, ps := range n.parents {
		if !in(c) {
			continue
		}
		for i, p := range ps {
			if !in(p) {
				continue
			}
			link(p, c)
			for _, q := range ps[i+1:] {
				if in(q) {
					link(p, q)
				}
			}
		}
	}
	return adj
}
