// Package dsep answers structural independence queries on a Bayesian
// network.
//
// X and Y are d-separated by Z when every path between them is blocked: a
// chain or fork node in Z blocks, and a collider blocks unless it or one of
// its descendants is in Z. The test used here is the equivalent moral
// ancestral graph criterion: take the ancestral subgraph of X∪Y∪Z,
// moralize it, delete Z, and check whether X and Y are still connected.
package dsep

import (
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/rawblock/bayesnet-engine/internal/network"
)

// DSeparated reports whether X ⊥ Y | Z holds in every distribution that
// factorizes over n. Variables of X or Y that are also in Z are observed
// and therefore trivially independent of everything else.
func DSeparated(n *network.Network, x, y, z []string) (bool, error) {
	xs, err := n.Indices(x)
	if err != nil {
		return false, err
	}
	ys, err := n.Indices(y)
	if err != nil {
		return false, err
	}
	zs, err := n.Indices(z)
	if err != nil {
		return false, err
	}
	return Separated(n, xs, ys, zs), nil
}

// Separated is DSeparated over variable ids.
func Separated(n *network.Network, x, y, z []int) bool {
	observed := make(map[int]bool, len(z))
	for _, v := range z {
		observed[v] = true
	}
	x = unobserved(x, observed)
	y = unobserved(y, observed)
	if len(x) == 0 || len(y) == 0 {
		return true
	}
	inX := make(map[int]bool, len(x))
	for _, v := range x {
		inX[v] = true
	}
	for _, v := range y {
		if inX[v] {
			return false
		}
	}

	seeds := append(append(append([]int(nil), x...), y...), z...)
	keep := n.Ancestors(seeds)
	moral := n.Moral(keep)

	g := simple.NewUndirectedGraph()
	for v, in := range keep {
		if in && !observed[v] {
			g.AddNode(simple.Node(v))
		}
	}
	for a, nbrs := range moral {
		if !keep[a] || observed[a] {
			continue
		}
		for b := range nbrs {
			if a < b && !observed[b] {
				g.SetEdge(g.NewEdge(simple.Node(a), simple.Node(b)))
			}
		}
	}

	component := make(map[int64]int)
	for i, comp := range topo.ConnectedComponents(g) {
		for _, node := range comp {
			component[node.ID()] = i
		}
	}
	xComps := make(map[int]bool, len(x))
	for _, v := range x {
		xComps[component[int64(v)]] = true
	}
	for _, v := range y {
		if xComps[component[int64(v)]] {
			return false
		}
	}
	return true
}

func unobserved(vs []int, observed map[int]bool) []int {
	out := make([]int, 0, len(vs))
	for _, v := range vs {
		if !observed[v] {
			out = append(out, v)
		}
	}
	return out
}

// Pair is one unordered pair of variables found independent.
type Pair struct {
	A, B string
}

func (p Pair) String() string { return fmt.Sprintf("%s ⊥ %s", p.A, p.B) }

// Independencies lists every unordered pair of unobserved variables that z
// d-separates, in id order.
func Independencies(n *network.Network, z []string) ([]Pair, error) {
	zs, err := n.Indices(z)
	if err != nil {
		return nil, err
	}
	observed := make(map[int]bool, len(zs))
	for _, v := range zs {
		observed[v] = true
	}
	var out []Pair
	for a := 0; a < n.NumVariables(); a++ {
		if observed[a] {
			continue
		}
		for b := a + 1; b < n.NumVariables(); b++ {
			if observed[b] {
				continue
			}
			if Separated(n, []int{a}, []int{b}, zs) {
				out = append(out, Pair{A: n.VariableName(a), B: n.VariableName(b)})
			}
		}
	}
	return out, nil
}
