package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/bayesnet-engine/internal/factor"
	"github.com/rawblock/bayesnet-engine/internal/gibbs"
	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// Sampling limits applied to options that arrive over the wire.
const (
	DefaultIterations = 10000
	MaxIterations     = 5_000_000
	MaxChains         = 16
)

// SamplingOptions converts wire options into sampler options, filling
// defaults and enforcing limits.
func SamplingOptions(in models.SamplingOptions) (gibbs.Options, error) {
	sweep, err := gibbs.ParseSweep(in.Sweep)
	if err != nil {
		return gibbs.Options{}, err
	}
	out := gibbs.Options{
		Iterations: in.Iterations,
		BurnIn:     gibbs.DefaultBurnIn,
		Seed:       in.Seed,
		Sweep:      sweep,
		Chains:     in.Chains,
	}
	if out.Iterations == 0 {
		out.Iterations = DefaultIterations
	}
	if out.Iterations < 0 || out.Iterations > MaxIterations {
		return out, fmt.Errorf("%w: iterations must be in [1, %d]", gibbs.ErrInvalidOptions, MaxIterations)
	}
	if out.Chains < 0 || out.Chains > MaxChains {
		return out, fmt.Errorf("%w: chains must be in [0, %d]", gibbs.ErrInvalidOptions, MaxChains)
	}
	if in.BurnIn != nil {
		out.BurnIn = *in.BurnIn
	}
	return out, nil
}

// SamplingContext applies the request timeout, if any.
func SamplingContext(ctx context.Context, in models.SamplingOptions) (context.Context, context.CancelFunc) {
	if in.TimeoutMs > 0 {
		return context.WithTimeout(ctx, time.Duration(in.TimeoutMs)*time.Millisecond)
	}
	return context.WithCancel(ctx)
}

// Distribution labels a distribution over variable v.
func Distribution(net *network.Network, v int, probs []float64) models.Distribution {
	d := models.Distribution{Variable: net.VariableName(v)}
	for s, p := range probs {
		d.States = append(d.States, models.StateProbability{
			State:       net.State(v, s),
			Probability: p,
			LogOdds:     factor.ProbToLogOdds(p),
		})
	}
	return d
}

// ExactResult renders a posterior for the wire.
func ExactResult(p *Posterior) models.ExactResult {
	net := p.Network
	out := models.ExactResult{
		NetworkID:   net.ID().String(),
		Method:      p.Method,
		LogEvidence: p.LogEvidence,
	}
	for i, v := range p.Vars {
		out.Marginals = append(out.Marginals, Distribution(net, v, p.Marginal(i)))
	}
	if len(p.Vars) < 2 {
		return out
	}

	values := p.Joint.Values()
	state := make([]int, len(p.Vars))
	for _, prob := range values {
		entry := models.JointEntry{Assignment: make(map[string]string, len(p.Vars)), Probability: prob}
		for k, v := range p.Vars {
			entry.Assignment[net.VariableName(v)] = net.State(v, state[k])
		}
		out.Joint = append(out.Joint, entry)
		for k := len(state) - 1; k >= 0; k-- {
			state[k]++
			if state[k] < net.Card(p.Vars[k]) {
				break
			}
			state[k] = 0
		}
	}
	return out
}

// ApproximateResult renders a Gibbs estimate. target is -1 for event
// queries.
func ApproximateResult(net *network.Network, target int, est *gibbs.Estimate, err error) models.ApproximateResult {
	out := models.ApproximateResult{NetworkID: net.ID().String()}
	if err != nil {
		out.Error = err.Error()
	}
	if est == nil {
		return out
	}
	out.StdError = est.StdError
	out.Counted = int(est.Counted)
	out.Iterations = int(est.Iterations)
	out.Chains = est.Chains
	out.Partial = est.Partial
	out.StopReason = est.StopReason
	if target >= 0 {
		d := Distribution(net, target, est.Distribution)
		out.Distribution = &d
	} else {
		p := est.Probability
		out.Probability = &p
	}
	return out
}
