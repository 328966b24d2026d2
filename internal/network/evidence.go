package network

import (
	"maps"
	"slices"
)

// Assignment maps variable ids to state indices. It is the validated form
// of evidence and events.
type Assignment map[int]int

// Evidence validates observations given by name and state label. Unknown
// variables and out-of-domain values are rejected here so no engine ever
// sees them.
func (n *Network) Evidence(obs map[string]string) (Assignment, error) {
	out := make(Assignment, len(obs))
	for _, name := range slices.Sorted(maps.Keys(obs)) {
		value := obs[name]
		i, ok := n.index[name]
		if !ok {
			return nil, &UnknownVariableError{Name: name}
		}
		s, ok := n.stateIndex[i][value]
		if !ok {
			return nil, &InvalidEvidenceError{Variable: name, Value: value, Domain: n.Variable(i).States}
		}
		out[i] = s
	}
	return out, nil
}

// Labels converts an assignment back to names and state labels.
func (n *Network) Labels(a Assignment) map[string]string {
	out := make(map[string]string, len(a))
	for i, s := range a {
		out[n.vars[i].Name] = n.vars[i].States[s]
	}
	return out
}

// Consistent reports whether a dense state vector agrees with a.
func (a Assignment) Consistent(state []int) bool {
	for v, s := range a {
		if state[v] != s {
			return false
		}
	}
	return true
}
