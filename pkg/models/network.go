package models

import "time"

// NetworkDocument is the serialized form of a Bayesian network. It is the
// persistence and wire format: load(serialize(n)) reproduces an equivalent
// network.
type NetworkDocument struct {
	Name      string             `json:"name" yaml:"name"`
	Variables []VariableDocument `json:"variables" yaml:"variables"`
}

// VariableDocument declares one discrete variable, its parents and its CPT.
type VariableDocument struct {
	Name    string      `json:"name" yaml:"name"`
	States  []string    `json:"states" yaml:"states"`
	Parents []string    `json:"parents,omitempty" yaml:"parents,omitempty"`
	CPT     CPTDocument `json:"cpt" yaml:"cpt"`
}

// CPTDocument is a dense row-major table over Scope (first name slowest).
// Scope must be the variable plus its parents, in any order.
type CPTDocument struct {
	Scope  []string  `json:"scope" yaml:"scope"`
	Values []float64 `json:"values" yaml:"values"`
}

// NetworkSummary is the listing view of a stored network.
type NetworkSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Variables int       `json:"variables"`
	CreatedAt time.Time `json:"createdAt"`
}
