package gibbs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/internal/network/networktest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func alarmCalls(t *testing.T) (*network.Network, network.Assignment) {
	t.Helper()
	n := networktest.Alarm(t)
	ev, err := n.Evidence(map[string]string{"JohnCalls": "True", "MaryCalls": "True"})
	require.NoError(t, err)
	return n, ev
}

func TestEventProbability_ConvergesAcrossSeeds(t *testing.T) {
	n, ev := alarmCalls(t)
	exact, ok := networktest.Enumerate(n, []int{0}, ev)
	require.True(t, ok)

	burglary := network.Assignment{0: 1}
	sum := 0.0
	seeds := []uint64{1, 2, 3, 4, 5}
	for _, seed := range seeds {
		est, err := EventProbability(context.Background(), n, burglary, ev, Options{
			Iterations: 10000,
			BurnIn:     DefaultBurnIn,
			Seed:       seed,
		})
		require.NoError(t, err)
		assert.False(t, est.Partial)
		assert.EqualValues(t, 9000, est.Counted)
		assert.EqualValues(t, 10000, est.Iterations)
		assert.InDelta(t, exact[1], est.Probability, 0.1, "seed %d", seed)
		sum += est.Probability
	}
	assert.InDelta(t, exact[1], sum/float64(len(seeds)), 0.03)
}

func TestEventProbability_AlarmConvergesAcrossSeeds(t *testing.T) {
	n, ev := alarmCalls(t)
	exact, ok := networktest.Enumerate(n, []int{2}, ev)
	require.True(t, ok)

	sum := 0.0
	seeds := []uint64{11, 12, 13, 14, 15}
	for _, seed := range seeds {
		est, err := EventProbability(context.Background(), n, network.Assignment{2: 1}, ev, Options{
			Iterations: 10000,
			BurnIn:     DefaultBurnIn,
			Seed:       seed,
		})
		require.NoError(t, err)
		sum += est.Probability
	}
	assert.InDelta(t, exact[1], sum/float64(len(seeds)), 0.03)
}

func TestEventFunc_Disjunction(t *testing.T) {
	n := networktest.Alarm(t)
	ev, err := n.Evidence(map[string]string{"Burglary": "True"})
	require.NoError(t, err)
	calls, ok := networktest.Enumerate(n, []int{3, 4}, ev)
	require.True(t, ok)
	exact := 1 - calls[0]

	est, err := EventFunc(context.Background(), n, func(state []int) bool {
		return state[3] == 1 || state[4] == 1
	}, ev, Options{Iterations: 20000, BurnIn: DefaultBurnIn, Seed: 5, Chains: 2})
	require.NoError(t, err)
	assert.False(t, est.Partial)
	assert.InDelta(t, exact, est.Probability, 0.03)

	_, err = EventFunc(context.Background(), n, nil, ev, Options{Iterations: 10})
	assert.Error(t, err)
}

func TestEventProbability_DeterministicChain(t *testing.T) {
	// Relay repeats Switch and Lamp repeats Relay, so a lit lamp pins both.
	onOff := []string{"off", "on"}
	n, err := network.Build(network.Definition{
		Name: "relay",
		Variables: []network.Variable{
			{Name: "Switch", States: onOff},
			{Name: "Relay", States: onOff},
			{Name: "Lamp", States: onOff},
		},
		Parents: map[string][]string{"Relay": {"Switch"}, "Lamp": {"Relay"}},
		CPTs: map[string]network.CPT{
			"Switch": {Scope: []string{"Switch"}, Values: []float64{0.5, 0.5}},
			"Relay":  {Scope: []string{"Switch", "Relay"}, Values: []float64{1, 0, 0, 1}},
			"Lamp":   {Scope: []string{"Relay", "Lamp"}, Values: []float64{1, 0, 0, 1}},
		},
	})
	require.NoError(t, err)
	ev, err := n.Evidence(map[string]string{"Lamp": "on"})
	require.NoError(t, err)

	for _, seed := range []uint64{1, 2, 3, 4} {
		est, err := EventProbability(context.Background(), n, network.Assignment{0: 1}, ev, Options{
			Iterations: 200,
			BurnIn:     0,
			Seed:       seed,
			Sweep:      Random,
		})
		require.NoError(t, err, "seed %d", seed)
		assert.False(t, est.Partial)
		assert.Equal(t, 1.0, est.Probability)
	}
}

func TestEventProbability_ParallelChains(t *testing.T) {
	n, ev := alarmCalls(t)
	exact, ok := networktest.Enumerate(n, []int{2}, ev)
	require.True(t, ok)

	est, err := EventProbability(context.Background(), n, network.Assignment{2: 1}, ev, Options{
		Iterations: 10000,
		BurnIn:     1000,
		Seed:       42,
		Chains:     4,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, est.Chains)
	assert.EqualValues(t, 36000, est.Counted)
	assert.InDelta(t, exact[1], est.Probability, 0.05)
	assert.Greater(t, est.StdError, 0.0)
}

func TestEventProbability_Reproducible(t *testing.T) {
	n, ev := alarmCalls(t)
	opts := Options{Iterations: 3000, BurnIn: DefaultBurnIn, Seed: 9, Chains: 2}

	a, err := EventProbability(context.Background(), n, network.Assignment{0: 1}, ev, opts)
	require.NoError(t, err)
	b, err := EventProbability(context.Background(), n, network.Assignment{0: 1}, ev, opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarginal_LoopyNetwork(t *testing.T) {
	n := networktest.Random(t, map[int][]int{
		2: {0, 1},
		3: {1},
		4: {2, 3},
		5: {0, 4},
	}, []int{2, 3, 2, 2, 3, 2}, 5)
	ev, err := n.Evidence(map[string]string{"V5": "s1"})
	require.NoError(t, err)
	exact, ok := networktest.Enumerate(n, []int{4}, ev)
	require.True(t, ok)

	for _, sweep := range []Sweep{Cyclic, Random} {
		t.Run(sweep.String(), func(t *testing.T) {
			est, err := Marginal(context.Background(), n, 4, ev, Options{
				Iterations: 20000,
				BurnIn:     DefaultBurnIn,
				Seed:       3,
				Sweep:      sweep,
				Chains:     2,
			})
			require.NoError(t, err)
			require.Len(t, est.Distribution, 3)
			assert.InDeltaSlice(t, exact, est.Distribution, 0.05)

			total := 0.0
			for _, p := range est.Distribution {
				total += p
			}
			assert.InDelta(t, 1.0, total, 1e-9)
		})
	}
}

func TestEventProbability_NoFreeVariables(t *testing.T) {
	n := networktest.Alarm(t)
	ev, err := n.Evidence(map[string]string{
		"Burglary": "True", "Earthquake": "False", "Alarm": "True", "JohnCalls": "True", "MaryCalls": "False",
	})
	require.NoError(t, err)

	est, err := EventProbability(context.Background(), n, network.Assignment{0: 1}, ev, Options{Iterations: 500, BurnIn: 100})
	require.NoError(t, err)
	assert.Equal(t, 1.0, est.Probability)
	assert.EqualValues(t, 400, est.Counted)

	est, err = EventProbability(context.Background(), n, network.Assignment{4: 1}, ev, Options{Iterations: 500, BurnIn: 100})
	require.NoError(t, err)
	assert.Equal(t, 0.0, est.Probability)
}

func TestEventProbability_CancelledBeforeStart(t *testing.T) {
	n, ev := alarmCalls(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	est, err := EventProbability(ctx, n, network.Assignment{0: 1}, ev, Options{Iterations: 1000, BurnIn: DefaultBurnIn})
	require.NoError(t, err)
	assert.True(t, est.Partial)
	assert.Equal(t, StopCancelled, est.StopReason)
	assert.Zero(t, est.Iterations)
	assert.Zero(t, est.Probability)
}

func TestEventProbability_CancelledMidRun(t *testing.T) {
	n, ev := alarmCalls(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	est, err := EventProbability(ctx, n, network.Assignment{0: 1}, ev, Options{
		Iterations: 1_000_000,
		BurnIn:     0,
		Seed:       1,
		Progress: func(done, total int64) {
			assert.EqualValues(t, 1_000_000, total)
			cancel()
		},
	})
	require.NoError(t, err)
	assert.True(t, est.Partial)
	assert.Equal(t, StopCancelled, est.StopReason)
	assert.Less(t, est.Iterations, int64(1_000_000))
	assert.GreaterOrEqual(t, est.Iterations, int64(progressEvery))
	assert.Equal(t, est.Iterations, est.Counted)
}

func TestEventProbability_EmptyConditional(t *testing.T) {
	// Copy and Mirror both repeat Source exactly; observing them disagree
	// leaves Source with no state of positive mass.
	n, err := network.Build(network.Definition{
		Name: "contradiction",
		Variables: []network.Variable{
			{Name: "Source", States: []string{"off", "on"}},
			{Name: "Copy", States: []string{"off", "on"}},
			{Name: "Mirror", States: []string{"off", "on"}},
		},
		Parents: map[string][]string{"Copy": {"Source"}, "Mirror": {"Source"}},
		CPTs: map[string]network.CPT{
			"Source": {Scope: []string{"Source"}, Values: []float64{0.5, 0.5}},
			"Copy":   {Scope: []string{"Source", "Copy"}, Values: []float64{1, 0, 0, 1}},
			"Mirror": {Scope: []string{"Source", "Mirror"}, Values: []float64{1, 0, 0, 1}},
		},
	})
	require.NoError(t, err)
	ev, err := n.Evidence(map[string]string{"Copy": "on", "Mirror": "off"})
	require.NoError(t, err)

	est, err := EventProbability(context.Background(), n, network.Assignment{0: 1}, ev, Options{Iterations: 100, BurnIn: 0})
	var empty *EmptyConditionalError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "Source", empty.Variable)
	assert.Equal(t, 0, empty.Iteration)
	require.NotNil(t, est)
	assert.True(t, est.Partial)
	assert.Equal(t, StopEmptyConditional, est.StopReason)
}

func TestOptions_Validation(t *testing.T) {
	n, ev := alarmCalls(t)
	tests := []struct {
		name string
		opts Options
	}{
		{"NoIterations", Options{Iterations: 0}},
		{"BurnInTooLong", Options{Iterations: 100, BurnIn: 100}},
		{"NegativeBurnIn", Options{Iterations: 100, BurnIn: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EventProbability(context.Background(), n, network.Assignment{0: 1}, ev, tt.opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}

	_, err := EventProbability(context.Background(), n, nil, ev, Options{Iterations: 10})
	assert.Error(t, err)
}

func TestParseSweep(t *testing.T) {
	s, err := ParseSweep("Random")
	require.NoError(t, err)
	assert.Equal(t, Random, s)

	s, err = ParseSweep("")
	require.NoError(t, err)
	assert.Equal(t, Cyclic, s)

	_, err = ParseSweep("blocked")
	assert.ErrorIs(t, err, ErrInvalidOptions)
}
