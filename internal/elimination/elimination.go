// Package elimination answers exact queries by summing variables out of the
// product of CPTs one at a time. It handles joint queries over variables
// that share no junction-tree clique.
package elimination

import (
	"fmt"
	"slices"

	"github.com/rawblock/bayesnet-engine/internal/factor"
	"github.com/rawblock/bayesnet-engine/internal/network"
)

// Query returns P(vars | evidence) laid out in the order of vars.
//
// Variables that are not ancestors of the query or the evidence are barren
// and dropped before any arithmetic. Hidden variables are eliminated in
// min-degree order over the current factor graph, ties by id.
func Query(n *network.Network, vars []int, evidence network.Assignment) (*factor.Factor, error) {
	seen := make(map[int]bool, len(vars))
	for _, v := range vars {
		if v < 0 || v >= n.NumVariables() {
			return nil, fmt.Errorf("elimination: variable id %d out of range", v)
		}
		if seen[v] {
			return nil, &factor.ScopeMismatchError{Variable: v, Name: n.VariableName(v), Reason: "variable listed twice"}
		}
		seen[v] = true
	}

	seeds := append([]int(nil), vars...)
	for v := range evidence {
		seeds = append(seeds, v)
	}
	relevant := n.Ancestors(seeds)

	var factors []*factor.Factor
	for v := 0; v < n.NumVariables(); v++ {
		if !relevant[v] {
			continue
		}
		f, err := factor.Restrict(n.CPT(v), evidence)
		if err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}

	hidden := make(map[int]bool)
	for v, in := range relevant {
		if _, observed := evidence[v]; in && !observed && !seen[v] {
			hidden[v] = true
		}
	}

	for len(hidden) > 0 {
		v := nextVariable(factors, hidden)
		delete(hidden, v)

		var touching, rest []*factor.Factor
		for _, f := range factors {
			if f.Contains(v) {
				touching = append(touching, f)
			} else {
				rest = append(rest, f)
			}
		}
		prod, err := factor.ProductAll(touching...)
		if err != nil {
			return nil, err
		}
		factors = append(rest, factor.SumOut(prod, v))
	}

	joint, err := factor.ProductAll(factors...)
	if err != nil {
		return nil, err
	}
	// Query variables fixed by evidence were restricted away; they come back
	// as point masses.
	for _, v := range vars {
		if joint.Contains(v) {
			continue
		}
		point, err := pointMass(n, v, evidence)
		if err != nil {
			return nil, err
		}
		if joint, err = factor.Product(joint, point); err != nil {
			return nil, err
		}
	}
	out, err := factor.Marginalize(joint, vars)
	if err != nil {
		return nil, err
	}
	return factor.Normalize(out)
}

func pointMass(n *network.Network, v int, evidence network.Assignment) (*factor.Factor, error) {
	s, ok := evidence[v]
	if !ok {
		return nil, fmt.Errorf("elimination: %s dropped from the query", n.VariableName(v))
	}
	values := make([]float64, n.Card(v))
	values[s] = 1
	return factor.New([]int{v}, []int{n.Card(v)}, values)
}

// nextVariable picks the hidden variable with the fewest distinct
// neighbours across the factors it appears in.
func nextVariable(factors []*factor.Factor, hidden map[int]bool) int {
	candidates := make([]int, 0, len(hidden))
	for v := range hidden {
		candidates = append(candidates, v)
	}
	slices.Sort(candidates)

	best, bestDeg := -1, 0
	for _, v := range candidates {
		nbrs := make(map[int]bool)
		for _, f := range factors {
			if !f.Contains(v) {
				continue
			}
			for _, u := range f.Scope() {
				if u != v {
					nbrs[u] = true
				}
			}
		}
		if best < 0 || len(nbrs) < bestDeg {
			best, bestDeg = v, len(nbrs)
		}
	}
	return best
}
