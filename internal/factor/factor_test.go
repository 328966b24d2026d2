package factor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-12

func mustNew(t *testing.T, scope, card []int, values []float64) *Factor {
	t.Helper()
	f, err := New(scope, card, values)
	require.NoError(t, err)
	return f
}

func TestNew_RejectsBadShapes(t *testing.T) {
	_, err := New([]int{0, 1}, []int{2, 2}, []float64{1, 2, 3})
	var sm *ScopeMismatchError
	require.ErrorAs(t, err, &sm)

	_, err = New([]int{0, 0}, []int{2, 2}, make([]float64, 4))
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, 0, sm.Variable)

	_, err = New([]int{0}, []int{0}, nil)
	require.ErrorAs(t, err, &sm)
}

func TestAt_RowMajorLayout(t *testing.T) {
	// scope (A, B), B fastest
	f := mustNew(t, []int{0, 1}, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	v, err := f.At(map[int]int{0: 1, 1: 2})
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	v, err = f.At(map[int]int{0: 0, 1: 1})
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	assert.Equal(t, 4.0, f.AtState([]int{1, 0}))

	_, err = f.At(map[int]int{0: 0})
	assert.Error(t, err)
}

func TestProduct_AlignsSharedVariables(t *testing.T) {
	// P(A) and P(B|A) with scope (A, B)
	pa := mustNew(t, []int{0}, []int{2}, []float64{0.3, 0.7})
	pba := mustNew(t, []int{0, 1}, []int{2, 2}, []float64{0.9, 0.1, 0.2, 0.8})

	joint, err := Product(pba, pa)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, joint.Scope())
	assert.InDeltaSlice(t, []float64{0.27, 0.03, 0.14, 0.56}, joint.Values(), tol)

	// Order of operands changes layout, not content.
	joint2, err := Product(pa, pba)
	require.NoError(t, err)
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			x, _ := joint.At(map[int]int{0: a, 1: b})
			y, _ := joint2.At(map[int]int{0: a, 1: b})
			assert.InDelta(t, x, y, tol)
		}
	}
}

func TestProduct_DisjointScopes(t *testing.T) {
	a := mustNew(t, []int{2}, []int{2}, []float64{1, 2})
	b := mustNew(t, []int{5}, []int{3}, []float64{10, 20, 30})

	p, err := Product(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, p.Scope())
	assert.Equal(t, []float64{10, 20, 30, 20, 40, 60}, p.Values())
}

func TestProduct_CardinalityMismatch(t *testing.T) {
	a := mustNew(t, []int{0}, []int{2}, []float64{1, 1})
	b := mustNew(t, []int{0}, []int{3}, []float64{1, 1, 1})

	_, err := Product(a, b)
	var sm *ScopeMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Equal(t, 0, sm.Variable)
}

func TestProduct_WithScalar(t *testing.T) {
	a := mustNew(t, []int{1}, []int{2}, []float64{0.25, 0.75})
	p, err := Product(Scalar(2), a)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5}, p.Values())
}

func TestSumOut(t *testing.T) {
	f := mustNew(t, []int{0, 1, 2}, []int{2, 2, 2}, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	g := SumOut(f, 1)
	assert.Equal(t, []int{0, 2}, g.Scope())
	assert.Equal(t, []float64{1 + 3, 2 + 4, 5 + 7, 6 + 8}, g.Values())

	h := SumOut(f, 9)
	assert.Equal(t, f.Values(), h.Values())

	all := SumOut(SumOut(g, 0), 2)
	assert.Empty(t, all.Scope())
	assert.InDelta(t, 36.0, all.Sum(), tol)
}

func TestMarginalize_ReordersToKeep(t *testing.T) {
	f := mustNew(t, []int{0, 1, 2}, []int{2, 3, 2}, []float64{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	})

	m, err := Marginalize(f, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, m.Scope())
	// (C=0,A=0) = 1+3+5, (C=0,A=1) = 7+9+11, (C=1,A=0) = 2+4+6, (C=1,A=1) = 8+10+12
	assert.Equal(t, []float64{9, 27, 12, 30}, m.Values())

	_, err = Marginalize(f, []int{7})
	var sm *ScopeMismatchError
	assert.ErrorAs(t, err, &sm)
}

func TestReorder_Transposes(t *testing.T) {
	f := mustNew(t, []int{0, 1}, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	r, err := Reorder(f, []int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, r.Card())
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, r.Values())

	_, err = Reorder(f, []int{1})
	assert.Error(t, err)
}

func TestRestrict(t *testing.T) {
	f := mustNew(t, []int{0, 1, 2}, []int{2, 2, 2}, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	r, err := Restrict(f, map[int]int{1: 1, 9: 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, r.Scope())
	assert.Equal(t, []float64{3, 4, 7, 8}, r.Values())

	all, err := Restrict(f, map[int]int{0: 1, 1: 0, 2: 1})
	require.NoError(t, err)
	assert.Empty(t, all.Scope())
	assert.Equal(t, []float64{6}, all.Values())

	_, err = Restrict(f, map[int]int{0: 5})
	assert.Error(t, err)
}

func TestReduce_ZeroesInconsistentEntries(t *testing.T) {
	f := mustNew(t, []int{0, 1}, []int{2, 2}, []float64{1, 2, 3, 4})

	r, err := Reduce(f, map[int]int{1: 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, r.Scope())
	assert.Equal(t, []float64{1, 0, 3, 0}, r.Values())

	// source untouched
	assert.Equal(t, []float64{1, 2, 3, 4}, f.Values())
}

func TestNormalize(t *testing.T) {
	f := mustNew(t, []int{0}, []int{4}, []float64{1, 1, 2, 4})
	n, err := Normalize(f)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.125, 0.125, 0.25, 0.5}, n.Values(), tol)
	assert.InDelta(t, 1.0, n.Sum(), tol)
}

func TestNormalize_ZeroMass(t *testing.T) {
	f := mustNew(t, []int{0}, []int{2}, []float64{0, 0})
	_, err := Normalize(f)
	var zm *ZeroMassError
	require.ErrorAs(t, err, &zm)

	nan := mustNew(t, []int{0}, []int{2}, []float64{math.NaN(), 1})
	_, err = Normalize(nan)
	assert.ErrorAs(t, err, &zm)
}

func TestProductAll(t *testing.T) {
	a := mustNew(t, []int{0}, []int{2}, []float64{0.5, 0.5})
	b := mustNew(t, []int{1}, []int{2}, []float64{0.1, 0.9})
	c := mustNew(t, []int{0, 1}, []int{2, 2}, []float64{1, 0, 0, 1})

	p, err := ProductAll(a, b, c)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.Sum(), tol)

	one, err := ProductAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, one.Values())
}

func TestLogOdds(t *testing.T) {
	tests := []struct {
		name     string
		prob     float64
		expected float64
	}{
		{"Certain", 1.0, 999.0},
		{"Impossible", 0.0, -999.0},
		{"Even", 0.5, 0.0},
		{"Likely", 0.99, math.Log10(0.99 / 0.01)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProbToLogOdds(tt.prob)
			assert.InDelta(t, tt.expected, got, 1e-9)
			assert.InDelta(t, tt.prob, LogOddsToProb(got), 1e-9)
		})
	}
}

func TestLogOddsToProb_Extremes(t *testing.T) {
	for _, l := range []float64{308.5, 400, 998.9} {
		assert.Equal(t, 1.0, LogOddsToProb(l), "l=%v", l)
		assert.Equal(t, 0.0, LogOddsToProb(-l), "l=%v", -l)
	}
	assert.InDelta(t, 0.9, LogOddsToProb(math.Log10(9)), 1e-12)
	assert.InDelta(t, 0.1, LogOddsToProb(-math.Log10(9)), 1e-12)
}
