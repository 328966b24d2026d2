// Package networktest provides reference networks and a brute-force oracle
// for tests of the inference packages.
package networktest

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/rawblock/bayesnet-engine/internal/network"
)

var binary = []string{"False", "True"}

// AlarmDefinition is the classic burglary/earthquake alarm network with
// P(B)=0.001, P(E)=0.002 and the standard alarm table.
func AlarmDefinition() network.Definition {
	return network.Definition{
		Name: "alarm",
		Variables: []network.Variable{
			{Name: "Burglary", States: binary},
			{Name: "Earthquake", States: binary},
			{Name: "Alarm", States: binary},
			{Name: "JohnCalls", States: binary},
			{Name: "MaryCalls", States: binary},
		},
		Parents: map[string][]string{
			"Alarm":     {"Burglary", "Earthquake"},
			"JohnCalls": {"Alarm"},
			"MaryCalls": {"Alarm"},
		},
		CPTs: map[string]network.CPT{
			"Burglary":   {Scope: []string{"Burglary"}, Values: []float64{0.999, 0.001}},
			"Earthquake": {Scope: []string{"Earthquake"}, Values: []float64{0.998, 0.002}},
			"Alarm": {
				Scope: []string{"Burglary", "Earthquake", "Alarm"},
				Values: []float64{
					0.999, 0.001, // B=F E=F
					0.71, 0.29, // B=F E=T
					0.06, 0.94, // B=T E=F
					0.05, 0.95, // B=T E=T
				},
			},
			"JohnCalls": {Scope: []string{"Alarm", "JohnCalls"}, Values: []float64{0.95, 0.05, 0.1, 0.9}},
			"MaryCalls": {Scope: []string{"Alarm", "MaryCalls"}, Values: []float64{0.99, 0.01, 0.3, 0.7}},
		},
	}
}

// Alarm builds AlarmDefinition.
func Alarm(t testing.TB) *network.Network {
	t.Helper()
	return mustBuild(t, AlarmDefinition())
}

// Asia builds the chest-clinic network. "Either" is a deterministic OR of
// Tuberculosis and LungCancer, which makes some evidence sets impossible.
func Asia(t testing.TB) *network.Network {
	t.Helper()
	yn := []string{"no", "yes"}
	return mustBuild(t, network.Definition{
		Name: "asia",
		Variables: []network.Variable{
			{Name: "VisitAsia", States: yn},
			{Name: "Smoker", States: yn},
			{Name: "Tuberculosis", States: yn},
			{Name: "LungCancer", States: yn},
			{Name: "Bronchitis", States: yn},
			{Name: "Either", States: yn},
			{Name: "XRay", States: yn},
			{Name: "Dyspnea", States: yn},
		},
		Parents: map[string][]string{
			"Tuberculosis": {"VisitAsia"},
			"LungCancer":   {"Smoker"},
			"Bronchitis":   {"Smoker"},
			"Either":       {"Tuberculosis", "LungCancer"},
			"XRay":         {"Either"},
			"Dyspnea":      {"Bronchitis", "Either"},
		},
		CPTs: map[string]network.CPT{
			"VisitAsia":    {Scope: []string{"VisitAsia"}, Values: []float64{0.99, 0.01}},
			"Smoker":       {Scope: []string{"Smoker"}, Values: []float64{0.5, 0.5}},
			"Tuberculosis": {Scope: []string{"VisitAsia", "Tuberculosis"}, Values: []float64{0.99, 0.01, 0.95, 0.05}},
			"LungCancer":   {Scope: []string{"Smoker", "LungCancer"}, Values: []float64{0.99, 0.01, 0.9, 0.1}},
			"Bronchitis":   {Scope: []string{"Smoker", "Bronchitis"}, Values: []float64{0.7, 0.3, 0.4, 0.6}},
			"Either": {
				Scope:  []string{"Tuberculosis", "LungCancer", "Either"},
				Values: []float64{1, 0, 0, 1, 0, 1, 0, 1},
			},
			"XRay": {Scope: []string{"Either", "XRay"}, Values: []float64{0.95, 0.05, 0.02, 0.98}},
			"Dyspnea": {
				Scope:  []string{"Bronchitis", "Either", "Dyspnea"},
				Values: []float64{0.9, 0.1, 0.3, 0.7, 0.2, 0.8, 0.1, 0.9},
			},
		},
	})
}

// Random builds a network over the given parent structure with domain
// sizes cards and CPT entries drawn from a seeded source. Variables are
// named V0, V1, ...
func Random(t testing.TB, parents map[int][]int, cards []int, seed uint64) *network.Network {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	def := network.Definition{
		Name:    fmt.Sprintf("random-%d", seed),
		Parents: make(map[string][]string),
		CPTs:    make(map[string]network.CPT),
	}
	name := func(i int) string { return fmt.Sprintf("V%d", i) }
	for i, k := range cards {
		states := make([]string, k)
		for s := range states {
			states[s] = fmt.Sprintf("s%d", s)
		}
		def.Variables = append(def.Variables, network.Variable{Name: name(i), States: states})
	}
	for i, k := range cards {
		rows := 1
		var scope []string
		for _, p := range parents[i] {
			def.Parents[name(i)] = append(def.Parents[name(i)], name(p))
			scope = append(scope, name(p))
			rows *= cards[p]
		}
		scope = append(scope, name(i))
		values := make([]float64, 0, rows*k)
		for r := 0; r < rows; r++ {
			row := make([]float64, k)
			sum := 0.0
			for s := range row {
				row[s] = 0.05 + rng.Float64()
				sum += row[s]
			}
			for s := range row {
				row[s] /= sum
			}
			values = append(values, row...)
		}
		def.CPTs[name(i)] = network.CPT{Scope: scope, Values: values}
	}
	return mustBuild(t, def)
}

// Enumerate computes P(vars | evidence) by summing the full joint. The
// result is laid out row-major over vars (first slowest). ok is false when
// the evidence has zero probability.
func Enumerate(n *network.Network, vars []int, evidence network.Assignment) (dist []float64, ok bool) {
	size := 1
	for _, v := range vars {
		size *= n.Card(v)
	}
	dist = make([]float64, size)
	state := make([]int, n.NumVariables())
	total := 0.0
	for {
		if evidence.Consistent(state) {
			p := 1.0
			for i := 0; i < n.NumVariables(); i++ {
				p *= n.CPT(i).AtState(state)
			}
			idx := 0
			for _, v := range vars {
				idx = idx*n.Card(v) + state[v]
			}
			dist[idx] += p
			total += p
		}
		k := n.NumVariables() - 1
		for ; k >= 0; k-- {
			state[k]++
			if state[k] < n.Card(k) {
				break
			}
			state[k] = 0
		}
		if k < 0 {
			break
		}
	}
	if total == 0 {
		return nil, false
	}
	for i := range dist {
		dist[i] /= total
	}
	return dist, true
}

func mustBuild(t testing.TB, def network.Definition) *network.Network {
	t.Helper()
	n, err := network.Build(def)
	if err != nil {
		t.Fatalf("build %s: %v", def.Name, err)
	}
	return n
}
