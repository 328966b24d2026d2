// Package junction compiles a Bayesian network into a junction tree and
// answers exact posterior queries by two-pass message passing.
//
// A Tree is built once per network and never mutated. Each query calibrates
// its own copy of the clique potentials, so one Tree can serve concurrent
// callers.
package junction

import (
	"fmt"
	"slices"
	"sort"

	"github.com/rawblock/bayesnet-engine/internal/factor"
	"github.com/rawblock/bayesnet-engine/internal/network"
)

// Separator is a tree edge between cliques A and B.
type Separator struct {
	A, B int
	Vars []int
}

type link struct {
	to, edge int
}

// Tree is a compiled junction tree.
type Tree struct {
	net        *network.Network
	cliques    [][]int
	edges      []Separator
	adj        [][]link
	potentials []*factor.Factor
	assigned   [][]int

	root   int
	order  []int // cliques in BFS order from root
	parent []int // parent clique, -1 for root
	up     []int // edge to parent
}

// Compile moralizes the network, triangulates it by min-fill elimination,
// joins the maximal cliques into a maximum-weight spanning tree and assigns
// every CPT to the smallest clique holding its family.
func Compile(n *network.Network) (*Tree, error) {
	t := &Tree{net: n}
	t.cliques = maximal(eliminate(n.Moral(nil)))
	t.joinCliques()
	if err := t.assignPotentials(); err != nil {
		return nil, err
	}
	t.orient(0)
	return t, nil
}

// eliminate triangulates the graph given by adjacency sets and returns the
// clique formed at each elimination step. The next variable is the one
// needing the fewest fill edges; ties go to the smaller degree, then to the
// lower id.
func eliminate(moral []map[int]bool) [][]int {
	adj := make([]map[int]bool, len(moral))
	for v, nbrs := range moral {
		adj[v] = make(map[int]bool, len(nbrs))
		for u := range nbrs {
			adj[v][u] = true
		}
	}
	gone := make([]bool, len(adj))

	var cliques [][]int
	for range adj {
		best, bestFill, bestDeg := -1, 0, 0
		for v := range adj {
			if gone[v] {
				continue
			}
			fill, deg := fillIn(adj, v), len(adj[v])
			if best < 0 || fill < bestFill || (fill == bestFill && deg < bestDeg) {
				best, bestFill, bestDeg = v, fill, deg
			}
		}

		nbrs := sortedKeys(adj[best])
		for i, a := range nbrs {
			for _, b := range nbrs[i+1:] {
				adj[a][b] = true
				adj[b][a] = true
			}
		}
		clique := append(append([]int(nil), nbrs...), best)
		slices.Sort(clique)
		cliques = append(cliques, clique)

		for _, u := range nbrs {
			delete(adj[u], best)
		}
		adj[best] = nil
		gone[best] = true
	}
	return cliques
}

func fillIn(adj []map[int]bool, v int) int {
	nbrs := sortedKeys(adj[v])
	fill := 0
	for i, a := range nbrs {
		for _, b := range nbrs[i+1:] {
			if !adj[a][b] {
				fill++
			}
		}
	}
	return fill
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// maximal drops every clique contained in another, keeping the first copy
// of duplicates.
func maximal(cliques [][]int) [][]int {
	var out [][]int
	for i, c := range cliques {
		contained := false
		for j, d := range cliques {
			if i == j || len(d) < len(c) {
				continue
			}
			if subset(c, d) && (len(d) > len(c) || j < i) {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, c)
		}
	}
	return out
}

// subset reports whether sorted a is contained in sorted b.
func subset(a, b []int) bool {
	j := 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j == len(b) || b[j] != v {
			return false
		}
	}
	return true
}

func intersect(a, b []int) []int {
	var out []int
	for _, v := range a {
		if _, ok := slices.BinarySearch(b, v); ok {
			out = append(out, v)
		}
	}
	return out
}

// joinCliques runs Kruskal over every clique pair weighted by separator
// size. Empty separators are allowed, so disconnected components still end
// up in a single tree.
func (t *Tree) joinCliques() {
	k := len(t.cliques)
	var candidates []Separator
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			candidates = append(candidates, Separator{A: a, B: b, Vars: intersect(t.cliques[a], t.cliques[b])})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].Vars) > len(candidates[j].Vars)
	})

	root := make([]int, k)
	for i := range root {
		root[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for root[x] != x {
			root[x] = root[root[x]]
			x = root[x]
		}
		return x
	}

	t.adj = make([][]link, k)
	for _, s := range candidates {
		ra, rb := find(s.A), find(s.B)
		if ra == rb {
			continue
		}
		root[ra] = rb
		e := len(t.edges)
		t.edges = append(t.edges, s)
		t.adj[s.A] = append(t.adj[s.A], link{to: s.B, edge: e})
		t.adj[s.B] = append(t.adj[s.B], link{to: s.A, edge: e})
		if len(t.edges) == k-1 {
			break
		}
	}
}

// assignPotentials places each CPT in the smallest clique containing its
// family and multiplies it into that clique's identity potential.
func (t *Tree) assignPotentials() error {
	n := t.net
	t.assigned = make([][]int, len(t.cliques))
	for v := 0; v < n.NumVariables(); v++ {
		family := append(n.Parents(v), v)
		slices.Sort(family)
		home, size := -1, 0
		for i, c := range t.cliques {
			if !subset(family, c) {
				continue
			}
			if s := t.tableSize(c); home < 0 || s < size {
				home, size = i, s
			}
		}
		if home < 0 {
			return fmt.Errorf("junction: no clique holds the family of %s", n.VariableName(v))
		}
		t.assigned[home] = append(t.assigned[home], v)
	}

	t.potentials = make([]*factor.Factor, len(t.cliques))
	for i, c := range t.cliques {
		card := make([]int, len(c))
		for k, v := range c {
			card[k] = n.Card(v)
		}
		pot, err := factor.Ones(c, card)
		if err != nil {
			return err
		}
		for _, v := range t.assigned[i] {
			if pot, err = factor.Product(pot, n.CPT(v)); err != nil {
				return err
			}
		}
		t.potentials[i] = pot
	}
	return nil
}

func (t *Tree) tableSize(clique []int) int {
	size := 1
	for _, v := range clique {
		size *= t.net.Card(v)
	}
	return size
}

func (t *Tree) orient(root int) {
	k := len(t.cliques)
	t.root = root
	t.parent = make([]int, k)
	t.up = make([]int, k)
	t.order = t.order[:0]
	for i := range t.parent {
		t.parent[i] = -2
	}
	t.parent[root], t.up[root] = -1, -1
	queue := []int{root}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		t.order = append(t.order, c)
		for _, l := range t.adj[c] {
			if t.parent[l.to] != -2 {
				continue
			}
			t.parent[l.to], t.up[l.to] = c, l.edge
			queue = append(queue, l.to)
		}
	}
}

// Network returns the network the tree was compiled from.
func (t *Tree) Network() *network.Network { return t.net }

// Cliques returns copies of the clique variable sets, each sorted by id.
func (t *Tree) Cliques() [][]int {
	out := make([][]int, len(t.cliques))
	for i, c := range t.cliques {
		out[i] = append([]int(nil), c...)
	}
	return out
}

// Separators returns the tree edges.
func (t *Tree) Separators() []Separator {
	out := make([]Separator, len(t.edges))
	for i, s := range t.edges {
		out[i] = Separator{A: s.A, B: s.B, Vars: append([]int(nil), s.Vars...)}
	}
	return out
}

// Assigned returns the variables whose CPTs were placed in clique i.
func (t *Tree) Assigned(i int) []int { return append([]int(nil), t.assigned[i]...) }

// Treewidth is the size of the largest clique minus one.
func (t *Tree) Treewidth() int {
	w := 0
	for _, c := range t.cliques {
		w = max(w, len(c)-1)
	}
	return w
}

// Validate checks family preservation and the running intersection
// property.
func (t *Tree) Validate() error {
	n := t.net
	for i, vs := range t.assigned {
		for _, v := range vs {
			family := append(n.Parents(v), v)
			slices.Sort(family)
			if !subset(family, t.cliques[i]) {
				return fmt.Errorf("junction: clique %d does not hold the family of %s", i, n.VariableName(v))
			}
		}
	}
	if len(t.edges) != len(t.cliques)-1 {
		return fmt.Errorf("junction: %d cliques joined by %d edges", len(t.cliques), len(t.edges))
	}

	for v := 0; v < n.NumVariables(); v++ {
		holders := 0
		start := -1
		for i, c := range t.cliques {
			if _, ok := slices.BinarySearch(c, v); ok {
				holders++
				if start < 0 {
					start = i
				}
			}
		}
		if holders == 0 {
			return fmt.Errorf("junction: %s is in no clique", n.VariableName(v))
		}
		seen := map[int]bool{start: true}
		stack := []int{start}
		for len(stack) > 0 {
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, l := range t.adj[c] {
				if seen[l.to] {
					continue
				}
				if _, ok := slices.BinarySearch(t.edges[l.edge].Vars, v); ok {
					seen[l.to] = true
					stack = append(stack, l.to)
				}
			}
		}
		if len(seen) != holders {
			return fmt.Errorf("junction: cliques holding %s are not connected", n.VariableName(v))
		}
	}
	return nil
}
