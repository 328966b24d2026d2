// Package gibbs estimates posterior probabilities by Gibbs sampling.
//
// Each chain keeps one full assignment of the network. An iteration picks
// one unobserved variable and redraws it from its distribution given its
// Markov blanket. Evidence variables never change. After burn-in every
// iteration contributes one sample to the estimate.
package gibbs

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rawblock/bayesnet-engine/internal/factor"
	"github.com/rawblock/bayesnet-engine/internal/network"
)

// ErrInvalidOptions wraps every option validation failure.
var ErrInvalidOptions = errors.New("gibbs: invalid options")

// DefaultBurnIn asks for a burn-in of one tenth of the iterations.
const DefaultBurnIn = -1

// progressEvery is how many iterations a chain runs between progress
// reports.
const progressEvery = 1000

// initAttempts bounds the search for a starting state the evidence allows.
const initAttempts = 100

// Sweep selects which unobserved variable an iteration resamples.
type Sweep int

const (
	// Cyclic visits unobserved variables in topological order.
	Cyclic Sweep = iota
	// Random picks one uniformly with the chain's seeded source.
	Random
)

func (s Sweep) String() string {
	if s == Random {
		return "random"
	}
	return "cyclic"
}

// ParseSweep accepts "cyclic", "random" or "" (cyclic).
func ParseSweep(s string) (Sweep, error) {
	switch strings.ToLower(s) {
	case "", "cyclic":
		return Cyclic, nil
	case "random":
		return Random, nil
	}
	return Cyclic, fmt.Errorf("%w: unknown sweep %q", ErrInvalidOptions, s)
}

// Options configures a sampling run.
type Options struct {
	// Iterations per chain, including burn-in.
	Iterations int
	// BurnIn iterations discarded at the start of each chain.
	// DefaultBurnIn means Iterations/10.
	BurnIn int
	Seed   uint64
	Sweep  Sweep
	// Chains run in parallel and are pooled. Zero means one.
	Chains int
	// Progress, when set, is called from the chain goroutines with the
	// iterations completed so far across all chains. It must be safe for
	// concurrent use.
	Progress func(done, total int64)
}

func (o Options) normalized() (Options, error) {
	if o.Iterations <= 0 {
		return o, fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidOptions, o.Iterations)
	}
	if o.BurnIn == DefaultBurnIn {
		o.BurnIn = o.Iterations / 10
	}
	if o.BurnIn < 0 || o.BurnIn >= o.Iterations {
		return o, fmt.Errorf("%w: burn-in %d must be in [0, %d)", ErrInvalidOptions, o.BurnIn, o.Iterations)
	}
	if o.Chains <= 0 {
		o.Chains = 1
	}
	return o, nil
}

// EmptyConditionalError reports that no starting state of positive
// probability could be found for a chain: the evidence contradicts the
// model, or is too unlikely to reach by forward sampling. Variable names
// where the last attempt got stuck. Once a chain starts from a possible
// state its full conditionals always keep mass.
type EmptyConditionalError struct {
	Variable  string
	Chain     int
	Iteration int
}

func (e *EmptyConditionalError) Error() string {
	return fmt.Sprintf("gibbs: full conditional of %s is empty (chain %d, iteration %d)", e.Variable, e.Chain, e.Iteration)
}

// chainResult is what one chain hands back for pooling.
type chainResult struct {
	counts    []int64
	counted   int64
	performed int64
	stopped   bool
}

// sampler is the shared read-only setup of a run.
type sampler struct {
	net      *network.Network
	evidence network.Assignment
	free     []int
	// blanket[v] holds the CPT of v followed by the CPTs of its children.
	blanket [][]*factor.Factor
	opts    Options
	done    atomic.Int64
	total   int64
}

func newSampler(n *network.Network, evidence network.Assignment, opts Options) *sampler {
	s := &sampler{
		net:      n,
		evidence: evidence,
		blanket:  make([][]*factor.Factor, n.NumVariables()),
		opts:     opts,
		total:    int64(opts.Iterations) * int64(opts.Chains),
	}
	for _, v := range n.TopologicalOrder() {
		if _, observed := evidence[v]; observed {
			continue
		}
		s.free = append(s.free, v)
		fs := []*factor.Factor{n.CPT(v)}
		for _, c := range n.Children(v) {
			fs = append(fs, n.CPT(c))
		}
		s.blanket[v] = fs
	}
	return s
}

// initialState draws a starting state of positive probability. Free
// variables are sampled in topological order from their CPT, weighted by
// the CPTs of observed children whose parents are already set. A draw
// that gets stuck is retried up to initAttempts times.
func (s *sampler) initialState(rng *rand.Rand, chain int) ([]int, error) {
	n := s.net
	state := make([]int, n.NumVariables())
	set := make([]bool, n.NumVariables())
	weights := make([]float64, 0, 8)
	stuck := -1

	for attempt := 0; attempt < initAttempts; attempt++ {
		clear(set)
		for v, val := range s.evidence {
			state[v] = val
			set[v] = true
		}
		stuck = -1
		for _, v := range s.free {
			weights = weights[:0]
			total := 0.0
			for x := 0; x < n.Card(v); x++ {
				state[v] = x
				w := n.CPT(v).AtState(state)
				for _, c := range n.Children(v) {
					if _, observed := s.evidence[c]; observed && parentsSet(n, c, v, set) {
						w *= n.CPT(c).AtState(state)
					}
				}
				weights = append(weights, w)
				total += w
			}
			if !(total > 0) {
				stuck = v
				break
			}
			state[v] = int(distuv.NewCategorical(weights, rng).Rand())
			set[v] = true
		}
		if stuck < 0 {
			if stuck = impossible(n, state); stuck < 0 {
				return state, nil
			}
		}
	}
	return nil, &EmptyConditionalError{Variable: n.VariableName(stuck), Chain: chain}
}

// parentsSet reports whether every parent of c other than v has a value.
func parentsSet(n *network.Network, c, v int, set []bool) bool {
	for _, p := range n.Parents(c) {
		if p != v && !set[p] {
			return false
		}
	}
	return true
}

// impossible returns the first variable whose CPT gives state zero
// probability, or -1.
func impossible(n *network.Network, state []int) int {
	for v := 0; v < n.NumVariables(); v++ {
		if n.CPT(v).AtState(state) == 0 {
			return v
		}
	}
	return -1
}

// run executes every chain. bucket maps a state to the index it is counted
// under, or -1 to skip it.
func (s *sampler) run(ctx context.Context, buckets int, bucket func(state []int) int) ([]chainResult, error) {
	results := make([]chainResult, s.opts.Chains)
	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < s.opts.Chains; c++ {
		g.Go(func() error {
			res, err := s.chain(gctx, c, buckets, bucket)
			results[c] = res
			return err
		})
	}
	return results, g.Wait()
}

func (s *sampler) chain(ctx context.Context, index, buckets int, bucket func(state []int) int) (chainResult, error) {
	res := chainResult{counts: make([]int64, buckets)}
	seed := s.opts.Seed + uint64(index)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	state, err := s.initialState(rng, index)
	if err != nil {
		return res, err
	}
	weights := make([]float64, 0, 8)

	for it := 0; it < s.opts.Iterations; it++ {
		select {
		case <-ctx.Done():
			res.stopped = true
			return res, nil
		default:
		}

		if len(s.free) > 0 {
			var v int
			if s.opts.Sweep == Random {
				v = s.free[rng.IntN(len(s.free))]
			} else {
				v = s.free[it%len(s.free)]
			}
			weights = s.conditional(v, state, weights[:0])
			total := 0.0
			for _, w := range weights {
				total += w
			}
			if !(total > 0) {
				return res, &EmptyConditionalError{Variable: s.net.VariableName(v), Chain: index, Iteration: it}
			}
			state[v] = int(distuv.NewCategorical(weights, rng).Rand())
		}

		res.performed++
		if it >= s.opts.BurnIn {
			res.counted++
			if b := bucket(state); b >= 0 {
				res.counts[b]++
			}
		}
		if res.performed%progressEvery == 0 {
			s.report(progressEvery)
		}
	}
	s.report(res.performed % progressEvery)
	return res, nil
}

func (s *sampler) report(n int64) {
	done := s.done.Add(n)
	if s.opts.Progress != nil && n > 0 {
		s.opts.Progress(done, s.total)
	}
}

// conditional fills weights with the unnormalized P(v = x | blanket) for
// every state x, leaving state[v] as it found it.
func (s *sampler) conditional(v int, state []int, weights []float64) []float64 {
	current := state[v]
	for x := 0; x < s.net.Card(v); x++ {
		state[v] = x
		w := 1.0
		for _, f := range s.blanket[v] {
			w *= f.AtState(state)
			if w == 0 {
				break
			}
		}
		weights = append(weights, w)
	}
	state[v] = current
	return weights
}
