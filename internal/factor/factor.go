package factor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// MinMass is the total mass at or below which a factor is treated as
// carrying no probability at all.
const MinMass = 1e-300

// Factor is a dense table over a scope of discrete variables.
//
// Variables are identified by integer ids. Values are laid out row-major:
// the first variable in the scope varies slowest and the last fastest, so a
// CPT stored with scope (parents..., child) keeps every conditional slice
// contiguous.
type Factor struct {
	scope  []int
	card   []int
	stride []int
	values []float64
}

// New builds a factor over scope with the given cardinalities. The values
// slice is copied.
func New(scope, card []int, values []float64) (*Factor, error) {
	f, err := alloc(scope, card)
	if err != nil {
		return nil, err
	}
	if len(values) != len(f.values) {
		return nil, &ScopeMismatchError{
			Variable: -1,
			Reason:   fmt.Sprintf("expected %d values for the declared cardinalities, got %d", len(f.values), len(values)),
		}
	}
	copy(f.values, values)
	return f, nil
}

// Ones returns the identity potential over scope (every entry 1).
func Ones(scope, card []int) (*Factor, error) {
	f, err := alloc(scope, card)
	if err != nil {
		return nil, err
	}
	for i := range f.values {
		f.values[i] = 1
	}
	return f, nil
}

// Scalar returns a factor with an empty scope holding a single value.
func Scalar(v float64) *Factor {
	return &Factor{values: []float64{v}}
}

func alloc(scope, card []int) (*Factor, error) {
	if len(scope) != len(card) {
		return nil, &ScopeMismatchError{
			Variable: -1,
			Reason:   fmt.Sprintf("scope has %d variables but %d cardinalities", len(scope), len(card)),
		}
	}
	seen := make(map[int]bool, len(scope))
	size := 1
	for i, v := range scope {
		if seen[v] {
			return nil, &ScopeMismatchError{Variable: v, Reason: "variable appears twice in scope"}
		}
		seen[v] = true
		if card[i] <= 0 {
			return nil, &ScopeMismatchError{Variable: v, Reason: fmt.Sprintf("cardinality %d is not positive", card[i])}
		}
		size *= card[i]
	}

	f := &Factor{
		scope:  append([]int(nil), scope...),
		card:   append([]int(nil), card...),
		stride: make([]int, len(scope)),
		values: make([]float64, size),
	}
	step := 1
	for i := len(scope) - 1; i >= 0; i-- {
		f.stride[i] = step
		step *= card[i]
	}
	return f, nil
}

// Scope returns a copy of the factor's variable ids in layout order.
func (f *Factor) Scope() []int { return append([]int(nil), f.scope...) }

// Card returns a copy of the cardinalities aligned with Scope.
func (f *Factor) Card() []int { return append([]int(nil), f.card...) }

// Values returns a copy of the dense table.
func (f *Factor) Values() []float64 { return append([]float64(nil), f.values...) }

// Len is the number of table entries.
func (f *Factor) Len() int { return len(f.values) }

// Contains reports whether v is in the factor's scope.
func (f *Factor) Contains(v int) bool { return f.pos(v) >= 0 }

// Cardinality returns the domain size of v within this factor.
func (f *Factor) Cardinality(v int) (int, bool) {
	p := f.pos(v)
	if p < 0 {
		return 0, false
	}
	return f.card[p], true
}

// Sum is the total mass of the table.
func (f *Factor) Sum() float64 { return floats.Sum(f.values) }

// At returns the entry for a full assignment of the scope. Variables outside
// the scope are ignored.
func (f *Factor) At(assignment map[int]int) (float64, error) {
	idx := 0
	for i, v := range f.scope {
		val, ok := assignment[v]
		if !ok {
			return 0, fmt.Errorf("factor: assignment is missing variable %d", v)
		}
		if val < 0 || val >= f.card[i] {
			return 0, fmt.Errorf("factor: value %d out of range for variable %d", val, v)
		}
		idx += f.stride[i] * val
	}
	return f.values[idx], nil
}

// AtState returns the entry selected by a dense state vector indexed by
// variable id. It is the hot path of the Gibbs sampler and does no bounds
// checking beyond the slice access itself.
func (f *Factor) AtState(state []int) float64 {
	idx := 0
	for i, v := range f.scope {
		idx += f.stride[i] * state[v]
	}
	return f.values[idx]
}

// Clone returns a deep copy.
func (f *Factor) Clone() *Factor {
	return &Factor{
		scope:  append([]int(nil), f.scope...),
		card:   append([]int(nil), f.card...),
		stride: append([]int(nil), f.stride...),
		values: append([]float64(nil), f.values...),
	}
}

func (f *Factor) String() string {
	return fmt.Sprintf("Factor(scope=%v card=%v entries=%d)", f.scope, f.card, len(f.values))
}

func (f *Factor) pos(v int) int {
	for i, s := range f.scope {
		if s == v {
			return i
		}
	}
	return -1
}
