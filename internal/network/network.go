package network

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/rawblock/bayesnet-engine/internal/factor"
)

// DistributionTolerance bounds how far a CPT's conditional slice may drift
// from summing to exactly 1.
const DistributionTolerance = 1e-6

// Variable is a discrete random variable with an ordered domain. The
// position of a state in States is its index in every factor.
type Variable struct {
	Name   string
	States []string
}

// CPT is a conditional probability table as declared by the caller: a dense
// row-major table over Scope, which must be the variable plus its parents in
// any order.
type CPT struct {
	Scope  []string
	Values []float64
}

// Definition is everything Build needs: variables with domains, the parent
// function and one CPT per variable. A zero ID gets a fresh random one.
type Definition struct {
	ID        uuid.UUID
	Name      string
	Variables []Variable
	Parents   map[string][]string
	CPTs      map[string]CPT
}

// Network is a validated, immutable Bayesian network. Variable ids are the
// positions in Definition.Variables.
type Network struct {
	id         uuid.UUID
	name       string
	vars       []Variable
	index      map[string]int
	stateIndex []map[string]int
	parents    [][]int
	children   [][]int
	cpts       []*factor.Factor // scope (parents..., self)
	order      []int
}

// Build validates def and returns the network. Every construction problem
// is reported here, before any inference can run.
func Build(def Definition) (*Network, error) {
	n := &Network{
		id:    def.ID,
		name:  def.Name,
		index: make(map[string]int, len(def.Variables)),
	}
	if n.id == uuid.Nil {
		n.id = uuid.New()
	}
	if err := n.declare(def.Variables); err != nil {
		return nil, err
	}
	if err := n.link(def.Parents); err != nil {
		return nil, err
	}
	if err := n.sortTopologically(); err != nil {
		return nil, err
	}
	if err := n.loadCPTs(def.CPTs); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Network) declare(vars []Variable) error {
	if len(vars) == 0 {
		return &InvalidDefinitionError{Reason: "network declares no variables"}
	}
	n.vars = make([]Variable, len(vars))
	n.stateIndex = make([]map[string]int, len(vars))
	for i, v := range vars {
		if v.Name == "" {
			return &InvalidDefinitionError{Reason: fmt.Sprintf("variable %d has an empty name", i)}
		}
		if _, dup := n.index[v.Name]; dup {
			return &InvalidDefinitionError{Reason: fmt.Sprintf("variable %q declared twice", v.Name)}
		}
		if len(v.States) == 0 {
			return &InvalidDefinitionError{Reason: fmt.Sprintf("variable %q has an empty domain", v.Name)}
		}
		states := make(map[string]int, len(v.States))
		for j, s := range v.States {
			if _, dup := states[s]; dup {
				return &InvalidDefinitionError{Reason: fmt.Sprintf("variable %q lists state %q twice", v.Name, s)}
			}
			states[s] = j
		}
		n.index[v.Name] = i
		n.stateIndex[i] = states
		n.vars[i] = Variable{Name: v.Name, States: append([]string(nil), v.States...)}
	}
	return nil
}

func (n *Network) link(parents map[string][]string) error {
	n.parents = make([][]int, len(n.vars))
	n.children = make([][]int, len(n.vars))
	for child, ps := range parents {
		c, ok := n.index[child]
		if !ok {
			return &UnknownVariableError{Name: child}
		}
		seen := make(map[int]bool, len(ps))
		for _, p := range ps {
			pi, ok := n.index[p]
			if !ok {
				return &UnknownVariableError{Name: p}
			}
			if pi == c {
				return &CyclicGraphError{Cycle: []string{child, child}}
			}
			if seen[pi] {
				return &InvalidDefinitionError{Reason: fmt.Sprintf("%q lists parent %q twice", child, p)}
			}
			seen[pi] = true
			n.parents[c] = append(n.parents[c], pi)
			n.children[pi] = append(n.children[pi], c)
		}
	}
	for i := range n.children {
		slices.Sort(n.children[i])
	}
	return nil
}

func (n *Network) sortTopologically() error {
	g := n.directed()
	sorted, err := topo.SortStabilized(g, byID)
	if err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) && len(cycles) > 0 {
			comp := append([]graph.Node(nil), cycles[0]...)
			byID(comp)
			names := make([]string, 0, len(comp)+1)
			for _, node := range comp {
				names = append(names, n.vars[node.ID()].Name)
			}
			names = append(names, names[0])
			return &CyclicGraphError{Cycle: names}
		}
		return fmt.Errorf("topological sort: %w", err)
	}
	n.order = make([]int, len(sorted))
	for i, node := range sorted {
		n.order[i] = int(node.ID())
	}
	return nil
}

// directed returns the DAG as a gonum graph with node ids equal to
// variable ids.
func (n *Network) directed() *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	for i := range n.vars {
		g.AddNode(simple.Node(i))
	}
	for c, ps := range n.parents {
		for _, p := range ps {
			g.SetEdge(g.NewEdge(simple.Node(p), simple.Node(c)))
		}
	}
	return g
}

func byID(nodes []graph.Node) {
	slices.SortFunc(nodes, func(a, b graph.Node) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
}

func (n *Network) loadCPTs(cpts map[string]CPT) error {
	for name := range cpts {
		if _, ok := n.index[name]; !ok {
			return &UnknownVariableError{Name: name}
		}
	}
	n.cpts = make([]*factor.Factor, len(n.vars))
	for v, variable := range n.vars {
		cpt, ok := cpts[variable.Name]
		if !ok {
			return &factor.ScopeMismatchError{Variable: v, Name: variable.Name, Reason: "no CPT declared"}
		}
		f, err := n.canonicalCPT(v, cpt)
		if err != nil {
			return err
		}
		if err := checkDistribution(variable, f); err != nil {
			return err
		}
		n.cpts[v] = f
	}
	return nil
}

// canonicalCPT checks the declared scope against {v}∪parents(v) and lays
// the table out as (parents..., v).
func (n *Network) canonicalCPT(v int, cpt CPT) (*factor.Factor, error) {
	name := n.vars[v].Name
	want := make(map[int]bool, len(n.parents[v])+1)
	want[v] = true
	for _, p := range n.parents[v] {
		want[p] = true
	}

	scope := make([]int, 0, len(cpt.Scope))
	card := make([]int, 0, len(cpt.Scope))
	for _, s := range cpt.Scope {
		id, ok := n.index[s]
		if !ok {
			return nil, &UnknownVariableError{Name: s}
		}
		if !want[id] {
			return nil, &factor.ScopeMismatchError{
				Variable: v, Name: name,
				Reason: fmt.Sprintf("CPT scope contains %q which is neither the variable nor a parent", s),
			}
		}
		scope = append(scope, id)
		card = append(card, len(n.vars[id].States))
	}
	if len(scope) != len(want) {
		return nil, &factor.ScopeMismatchError{
			Variable: v, Name: name,
			Reason: fmt.Sprintf("CPT scope has %d variables, expected the variable plus %d parents", len(scope), len(n.parents[v])),
		}
	}

	f, err := factor.New(scope, card, cpt.Values)
	if err != nil {
		var sm *factor.ScopeMismatchError
		if errors.As(err, &sm) {
			sm.Name = name
		}
		return nil, err
	}
	canonical := append(append([]int(nil), n.parents[v]...), v)
	return factor.Reorder(f, canonical)
}

// checkDistribution expects f in canonical layout: every consecutive block
// of len(States) entries is one conditional distribution.
func checkDistribution(v Variable, f *factor.Factor) error {
	values := f.Values()
	k := len(v.States)
	for row := 0; row*k < len(values); row++ {
		sum := 0.0
		for _, p := range values[row*k : (row+1)*k] {
			if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
				return &InvalidDistributionError{Variable: v.Name, Row: row, Sum: p, Reason: "entries must be finite and non-negative"}
			}
			sum += p
		}
		if math.Abs(sum-1) > DistributionTolerance {
			return &InvalidDistributionError{Variable: v.Name, Row: row, Sum: sum, Reason: "conditional slice does not sum to 1"}
		}
	}
	return nil
}

// ID is the network's identity; compiled structures are cached under it.
func (n *Network) ID() uuid.UUID { return n.id }

// Name is the declared network name.
func (n *Network) Name() string { return n.name }

// NumVariables is the number of declared variables.
func (n *Network) NumVariables() int { return len(n.vars) }

// Variable returns the variable with id i.
func (n *Network) Variable(i int) Variable {
	v := n.vars[i]
	return Variable{Name: v.Name, States: append([]string(nil), v.States...)}
}

// VariableName returns the name of variable i without copying its domain.
func (n *Network) VariableName(i int) string { return n.vars[i].Name }

// Card is the domain size of variable i.
func (n *Network) Card(i int) int { return len(n.vars[i].States) }

// State returns the label of state s of variable i.
func (n *Network) State(i, s int) string { return n.vars[i].States[s] }

// Index resolves a variable name to its id.
func (n *Network) Index(name string) (int, error) {
	i, ok := n.index[name]
	if !ok {
		return 0, &UnknownVariableError{Name: name}
	}
	return i, nil
}

// Indices resolves several names at once.
func (n *Network) Indices(names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		id, err := n.Index(name)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// CPT returns variable i's table in canonical scope (parents..., i).
// Factors are immutable; the pointer is shared.
func (n *Network) CPT(i int) *factor.Factor { return n.cpts[i] }

// CPTs returns all tables indexed by variable id.
func (n *Network) CPTs() []*factor.Factor { return append([]*factor.Factor(nil), n.cpts...) }
