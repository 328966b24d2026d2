package gibbs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rawblock/bayesnet-engine/internal/metrics"
	"github.com/rawblock/bayesnet-engine/internal/network"
)

// Stop reasons reported on partial estimates.
const (
	StopCancelled        = "cancelled"
	StopEmptyConditional = "empty conditional"
)

// Estimate is the pooled result of a sampling run.
type Estimate struct {
	// Probability of the event, or of the most likely state for a
	// marginal.
	Probability float64
	// Distribution over the target's states; nil for event queries.
	Distribution []float64
	// Counted is the number of post-burn-in samples across chains.
	Counted int64
	// Iterations actually performed across chains.
	Iterations int64
	Chains     int
	// StdError is the binomial standard error of Probability, or the
	// largest per-state error for a marginal.
	StdError   float64
	Partial    bool
	StopReason string
}

// Predicate reports whether an event holds in a full state, indexed by
// variable id. It must not keep or modify the slice.
type Predicate func(state []int) bool

// EventProbability estimates P(event | evidence). The event is a partial
// assignment; it holds in a sample when every listed variable matches.
func EventProbability(ctx context.Context, n *network.Network, event, evidence network.Assignment, opts Options) (*Estimate, error) {
	if len(event) == 0 {
		return nil, errors.New("gibbs: event is empty")
	}
	return EventFunc(ctx, n, event.Consistent, evidence, opts)
}

// EventFunc estimates the probability that pred holds given evidence.
func EventFunc(ctx context.Context, n *network.Network, pred Predicate, evidence network.Assignment, opts Options) (*Estimate, error) {
	if pred == nil {
		return nil, errors.New("gibbs: event predicate is nil")
	}
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	s := newSampler(n, evidence, opts)
	results, runErr := s.run(ctx, 1, func(state []int) int {
		if pred(state) {
			return 0
		}
		return -1
	})

	est := pool(results, opts, runErr)
	if est.Counted > 0 {
		est.Probability = float64(est.hits[0]) / float64(est.Counted)
	}
	est.StdError = metrics.MonteCarloStdError(est.Probability, int(est.Counted))
	return &est.Estimate, runErr
}

// Marginal estimates P(target | evidence) over every state of target.
func Marginal(ctx context.Context, n *network.Network, target int, evidence network.Assignment, opts Options) (*Estimate, error) {
	if target < 0 || target >= n.NumVariables() {
		return nil, fmt.Errorf("gibbs: variable id %d out of range", target)
	}
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	s := newSampler(n, evidence, opts)
	results, runErr := s.run(ctx, n.Card(target), func(state []int) int { return state[target] })

	est := pool(results, opts, runErr)
	est.Distribution = make([]float64, n.Card(target))
	if est.Counted > 0 {
		for x, h := range est.hits {
			p := float64(h) / float64(est.Counted)
			est.Distribution[x] = p
			est.Probability = max(est.Probability, p)
			est.StdError = max(est.StdError, metrics.MonteCarloStdError(p, int(est.Counted)))
		}
	}
	return &est.Estimate, runErr
}

type pooled struct {
	Estimate
	hits []int64
}

func pool(results []chainResult, opts Options, runErr error) pooled {
	var p pooled
	p.Chains = opts.Chains
	for _, r := range results {
		if p.hits == nil {
			p.hits = make([]int64, len(r.counts))
		}
		for i, c := range r.counts {
			p.hits[i] += c
		}
		p.Counted += r.counted
		p.Iterations += r.performed
		if r.stopped {
			p.Partial = true
		}
	}

	var empty *EmptyConditionalError
	switch {
	case errors.As(runErr, &empty):
		p.Partial = true
		p.StopReason = StopEmptyConditional
	case p.Partial:
		p.StopReason = StopCancelled
	}
	return p
}
