package network

import (
	"fmt"
	"strings"
)

// CyclicGraphError is returned by Build when the parent relation is not a
// DAG. Cycle lists the variables of one strongly connected component.
type CyclicGraphError struct {
	Cycle []string
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("network is not acyclic: cycle through %s", strings.Join(e.Cycle, " -> "))
}

// InvalidDistributionError is returned by Build when a CPT has a negative
// or non-finite entry, or a conditional slice that does not sum to 1.
type InvalidDistributionError struct {
	Variable string
	Row      int // parent configuration index, -1 for table-wide problems
	Sum      float64
	Reason   string
}

func (e *InvalidDistributionError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("invalid distribution for %q: %s", e.Variable, e.Reason)
	}
	return fmt.Sprintf("invalid distribution for %q at parent row %d (sum %.9f): %s", e.Variable, e.Row, e.Sum, e.Reason)
}

// InvalidDefinitionError covers malformed declarations that are neither
// cycles nor scope problems: empty names, duplicate variables or states.
type InvalidDefinitionError struct {
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	return "invalid network definition: " + e.Reason
}

// UnknownVariableError reports a reference to a variable the network does
// not declare.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

// InvalidEvidenceError reports an observation whose value is not in the
// variable's declared domain.
type InvalidEvidenceError struct {
	Variable string
	Value    string
	Domain   []string
}

func (e *InvalidEvidenceError) Error() string {
	return fmt.Sprintf("invalid evidence %s=%q: value not in domain [%s]", e.Variable, e.Value, strings.Join(e.Domain, ", "))
}
