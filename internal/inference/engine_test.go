package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/factor"
	"github.com/rawblock/bayesnet-engine/internal/gibbs"
	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/internal/network/networktest"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zap.NewNop(), 4)
	require.NoError(t, err)
	return e
}

var calls = map[string]string{"JohnCalls": "True", "MaryCalls": "True"}

func TestExactMarginal_CanonicalQuery(t *testing.T) {
	e := newEngine(t)
	n := networktest.Alarm(t)

	post, err := e.ExactMarginal(context.Background(), n, []string{"Burglary"}, calls)
	require.NoError(t, err)
	assert.Equal(t, MethodJunctionTree, post.Method)
	assert.InDelta(t, 0.2842, post.Marginal(0)[1], 1e-4)

	post, err = e.ExactMarginal(context.Background(), n, []string{"Alarm"}, calls)
	require.NoError(t, err)
	assert.InDelta(t, 0.7607, post.Marginal(0)[1], 1e-4)
	assert.True(t, e.Cached(n.ID()))
}

func TestExactMarginal_FallsBackToElimination(t *testing.T) {
	e := newEngine(t)
	n := networktest.Alarm(t)

	post, err := e.ExactMarginal(context.Background(), n, []string{"Burglary", "JohnCalls"}, map[string]string{"MaryCalls": "True"})
	require.NoError(t, err)
	assert.Equal(t, MethodVariableElimination, post.Method)

	ev, err := n.Evidence(map[string]string{"MaryCalls": "True"})
	require.NoError(t, err)
	want, ok := networktest.Enumerate(n, []int{0, 3}, ev)
	require.True(t, ok)
	assert.InDeltaSlice(t, want, post.Joint.Values(), 1e-9)

	res := ExactResult(post)
	require.Len(t, res.Marginals, 2)
	require.Len(t, res.Joint, 4)
	assert.Equal(t, map[string]string{"Burglary": "False", "JohnCalls": "True"}, res.Joint[1].Assignment)
	assert.InDelta(t, want[1], res.Joint[1].Probability, 1e-12)
}

func TestExactMarginal_BoundaryErrors(t *testing.T) {
	e := newEngine(t)
	n := networktest.Alarm(t)
	ctx := context.Background()

	_, err := e.ExactMarginal(ctx, n, []string{"Cat"}, nil)
	var unknown *network.UnknownVariableError
	assert.ErrorAs(t, err, &unknown)

	_, err = e.ExactMarginal(ctx, n, []string{"Burglary"}, map[string]string{"Alarm": "Loud"})
	var invalid *network.InvalidEvidenceError
	assert.ErrorAs(t, err, &invalid)

	_, err = e.ExactMarginal(ctx, n, nil, nil)
	assert.Error(t, err)

	asia := networktest.Asia(t)
	_, err = e.ExactMarginal(ctx, asia, []string{"Smoker"}, map[string]string{"Tuberculosis": "yes", "Either": "no"})
	var zero *factor.ZeroMassError
	assert.ErrorAs(t, err, &zero)
}

func TestCompile_CachesPerNetwork(t *testing.T) {
	e := newEngine(t)
	n := networktest.Asia(t)
	ctx := context.Background()

	a, err := e.Compile(ctx, n)
	require.NoError(t, err)
	b, err := e.Compile(ctx, n)
	require.NoError(t, err)
	assert.Same(t, a, b)

	e.Forget(n.ID())
	assert.False(t, e.Cached(n.ID()))
}

func TestApproximate_AgreesWithExact(t *testing.T) {
	e := newEngine(t)
	n := networktest.Alarm(t)
	ctx := context.Background()
	opts := gibbs.Options{Iterations: 20000, BurnIn: gibbs.DefaultBurnIn, Seed: 17, Chains: 2}

	est, err := e.ApproximateEventProbability(ctx, n, map[string]string{"Burglary": "True"}, calls, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0.2842, est.Probability, 0.08)

	marg, err := e.ApproximateMarginal(ctx, n, "Alarm", calls, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0.7607, marg.Distribution[1], 0.08)

	res := ApproximateResult(n, 2, marg, nil)
	require.NotNil(t, res.Distribution)
	assert.Nil(t, res.Probability)
	assert.Equal(t, "Alarm", res.Distribution.Variable)
}

func TestApproximate_ValidatesNames(t *testing.T) {
	e := newEngine(t)
	n := networktest.Alarm(t)
	opts := gibbs.Options{Iterations: 100}

	_, err := e.ApproximateEventProbability(context.Background(), n, map[string]string{"Burglary": "Maybe"}, nil, opts)
	var invalid *network.InvalidEvidenceError
	assert.ErrorAs(t, err, &invalid)

	_, err = e.ApproximateMarginal(context.Background(), n, "Dog", nil, opts)
	var unknown *network.UnknownVariableError
	assert.ErrorAs(t, err, &unknown)
}

func TestDSeparated(t *testing.T) {
	e := newEngine(t)
	n := networktest.Alarm(t)

	ok, err := e.DSeparated(context.Background(), n, []string{"Burglary"}, []string{"MaryCalls"}, []string{"Alarm"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSamplingOptions(t *testing.T) {
	burn := 50
	opts, err := SamplingOptions(models.SamplingOptions{Iterations: 500, BurnIn: &burn, Sweep: "random", Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, gibbs.Options{Iterations: 500, BurnIn: 50, Seed: 3, Sweep: gibbs.Random}, opts)

	opts, err = SamplingOptions(models.SamplingOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultIterations, opts.Iterations)
	assert.Equal(t, gibbs.DefaultBurnIn, opts.BurnIn)

	_, err = SamplingOptions(models.SamplingOptions{Iterations: MaxIterations + 1})
	assert.Error(t, err)
	_, err = SamplingOptions(models.SamplingOptions{Chains: MaxChains + 1})
	assert.Error(t, err)
	_, err = SamplingOptions(models.SamplingOptions{Sweep: "blocked"})
	assert.Error(t, err)
}

func TestApproximateResult_CarriesError(t *testing.T) {
	n := networktest.Alarm(t)
	est := &gibbs.Estimate{Probability: 0.25, Counted: 10, Iterations: 12, Chains: 1, Partial: true, StopReason: gibbs.StopCancelled}

	res := ApproximateResult(n, -1, est, errors.New("boom"))
	require.NotNil(t, res.Probability)
	assert.Equal(t, 0.25, *res.Probability)
	assert.True(t, res.Partial)
	assert.Equal(t, "boom", res.Error)
}

func TestCompile_RecompilesForNewNetworkValue(t *testing.T) {
	e := newEngine(t)
	id := uuid.New()

	def := networktest.AlarmDefinition()
	def.ID = id
	first, err := network.Build(def)
	require.NoError(t, err)

	def = networktest.AlarmDefinition()
	def.ID = id
	def.CPTs["Burglary"] = network.CPT{Scope: []string{"Burglary"}, Values: []float64{0.5, 0.5}}
	second, err := network.Build(def)
	require.NoError(t, err)

	post, err := e.ExactMarginal(context.Background(), first, []string{"Burglary"}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.999, 0.001}, post.Marginal(0), 1e-12)

	post, err = e.ExactMarginal(context.Background(), second, []string{"Burglary"}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, post.Marginal(0), 1e-12)

	tree, err := e.Compile(context.Background(), second)
	require.NoError(t, err)
	assert.Same(t, second, tree.Network())
}

func TestApproximateEventFunc_Disjunction(t *testing.T) {
	e := newEngine(t)
	n := networktest.Alarm(t)
	post, err := e.ExactMarginal(context.Background(), n, []string{"JohnCalls", "MaryCalls"}, map[string]string{"Alarm": "True"})
	require.NoError(t, err)
	require.Len(t, post.Marginals, 2)
	exact := 1 - post.Joint.Values()[0]

	either := func(state []int) bool { return state[3] == 1 || state[4] == 1 }
	est, err := e.ApproximateEventFunc(context.Background(), n, either, map[string]string{"Alarm": "True"},
		gibbs.Options{Iterations: 20000, BurnIn: gibbs.DefaultBurnIn, Seed: 8, Chains: 2})
	require.NoError(t, err)
	assert.InDelta(t, exact, est.Probability, 0.03)

	_, err = e.ApproximateEventFunc(context.Background(), n, either, map[string]string{"Alarm": "Loud"}, gibbs.Options{Iterations: 10})
	var invalid *network.InvalidEvidenceError
	assert.ErrorAs(t, err, &invalid)
}
