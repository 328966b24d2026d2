package junction

import (
	"fmt"
	"math"

	"github.com/rawblock/bayesnet-engine/internal/factor"
	"github.com/rawblock/bayesnet-engine/internal/network"
)

// NotCoveredError is returned by Marginal when no single clique contains
// every requested variable.
type NotCoveredError struct {
	Vars []int
}

func (e *NotCoveredError) Error() string {
	return fmt.Sprintf("junction: no clique covers variables %v", e.Vars)
}

// Calibration holds the result of propagating one evidence set through a
// tree. It owns its potentials and messages; the Tree is untouched.
type Calibration struct {
	tree       *Tree
	evidence   network.Assignment
	potentials []*factor.Factor
	messages   map[[2]int]*factor.Factor
	logZ       float64
}

// Calibrate enters evidence into copies of the clique potentials and runs
// a collect pass toward the root followed by a distribute pass away from
// it. Every message is normalized; the discarded mass is kept in log space
// so LogEvidence stays exact. Impossible evidence yields a
// *factor.ZeroMassError.
func (t *Tree) Calibrate(evidence network.Assignment) (*Calibration, error) {
	c := &Calibration{
		tree:       t,
		evidence:   evidence,
		potentials: make([]*factor.Factor, len(t.potentials)),
		messages:   make(map[[2]int]*factor.Factor, 2*len(t.edges)),
	}
	for i, p := range t.potentials {
		if !touches(t.cliques[i], evidence) {
			c.potentials[i] = p
			continue
		}
		reduced, err := factor.Reduce(p, evidence)
		if err != nil {
			return nil, err
		}
		c.potentials[i] = reduced
	}

	for k := len(t.order) - 1; k > 0; k-- {
		child := t.order[k]
		scale, err := c.send(child, t.parent[child], t.up[child])
		if err != nil {
			return nil, err
		}
		c.logZ += scale
	}

	rootBelief, err := c.belief(t.root)
	if err != nil {
		return nil, err
	}
	mass := rootBelief.Sum()
	if !(mass > factor.MinMass) {
		return nil, &factor.ZeroMassError{Mass: mass}
	}
	c.logZ += math.Log(mass)

	for _, child := range t.order[1:] {
		if _, err := c.send(t.parent[child], child, t.up[child]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func touches(clique []int, evidence network.Assignment) bool {
	for _, v := range clique {
		if _, ok := evidence[v]; ok {
			return true
		}
	}
	return false
}

// send computes the message from clique `from` to its neighbour `to` over
// edge e and returns the log of the mass removed by normalization.
func (c *Calibration) send(from, to, e int) (float64, error) {
	f := c.potentials[from]
	var err error
	for _, l := range c.tree.adj[from] {
		if l.to == to {
			continue
		}
		if f, err = factor.Product(f, c.messages[[2]int{l.to, from}]); err != nil {
			return 0, err
		}
	}
	m, err := factor.Marginalize(f, c.tree.edges[e].Vars)
	if err != nil {
		return 0, err
	}
	mass := m.Sum()
	if m, err = factor.Normalize(m); err != nil {
		return 0, err
	}
	c.messages[[2]int{from, to}] = m
	return math.Log(mass), nil
}

// belief is the clique potential times every incoming message, unnormalized.
func (c *Calibration) belief(i int) (*factor.Factor, error) {
	f := c.potentials[i]
	var err error
	for _, l := range c.tree.adj[i] {
		m, ok := c.messages[[2]int{l.to, i}]
		if !ok {
			return nil, fmt.Errorf("junction: message %d->%d not computed", l.to, i)
		}
		if f, err = factor.Product(f, m); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Belief returns the normalized posterior over clique i.
func (c *Calibration) Belief(i int) (*factor.Factor, error) {
	b, err := c.belief(i)
	if err != nil {
		return nil, err
	}
	return factor.Normalize(b)
}

// Marginal returns P(vars | evidence) laid out in the order of vars. The
// smallest clique containing all of vars is used; if there is none a
// *NotCoveredError is returned.
func (c *Calibration) Marginal(vars []int) (*factor.Factor, error) {
	best, size := -1, 0
	for i, clique := range c.tree.cliques {
		if !containsAll(clique, vars) {
			continue
		}
		if s := c.tree.tableSize(clique); best < 0 || s < size {
			best, size = i, s
		}
	}
	if best < 0 {
		return nil, &NotCoveredError{Vars: append([]int(nil), vars...)}
	}
	b, err := c.belief(best)
	if err != nil {
		return nil, err
	}
	m, err := factor.Marginalize(b, vars)
	if err != nil {
		return nil, err
	}
	return factor.Normalize(m)
}

func containsAll(clique, vars []int) bool {
	for _, v := range vars {
		found := false
		for _, u := range clique {
			if u == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// LogEvidence is the natural log of P(evidence). With no evidence it is 0
// up to rounding.
func (c *Calibration) LogEvidence() float64 { return c.logZ }

// Evidence returns the evidence this calibration was run with.
func (c *Calibration) Evidence() network.Assignment { return c.evidence }

// Tree returns the tree that was calibrated.
func (c *Calibration) Tree() *Tree { return c.tree }
