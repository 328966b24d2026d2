// Package inference is the query surface over the exact and approximate
// engines. It validates names at the boundary, caches compiled junction
// trees per network, and traces every query.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/dsep"
	"github.com/rawblock/bayesnet-engine/internal/elimination"
	"github.com/rawblock/bayesnet-engine/internal/factor"
	"github.com/rawblock/bayesnet-engine/internal/gibbs"
	"github.com/rawblock/bayesnet-engine/internal/junction"
	"github.com/rawblock/bayesnet-engine/internal/network"
)

// Methods reported on a Posterior.
const (
	MethodJunctionTree        = "junction-tree"
	MethodVariableElimination = "variable-elimination"
)

// ErrEmptyQuery is returned when an exact query names no variables.
var ErrEmptyQuery = errors.New("inference: query names no variables")

// DefaultCacheSize is the number of compiled trees kept when none is
// configured.
const DefaultCacheSize = 64

// Engine answers queries against any number of networks. It is safe for
// concurrent use.
type Engine struct {
	logger *zap.Logger
	trees  *lru.Cache[uuid.UUID, *junction.Tree]
	tracer trace.Tracer
}

// NewEngine creates an engine keeping up to cacheSize compiled trees.
func NewEngine(logger *zap.Logger, cacheSize int) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	trees, err := lru.New[uuid.UUID, *junction.Tree](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create tree cache: %w", err)
	}
	return &Engine{
		logger: logger.Named("inference"),
		trees:  trees,
		tracer: otel.Tracer("github.com/rawblock/bayesnet-engine/internal/inference"),
	}, nil
}

// Compile returns the junction tree for net, compiling it on first use.
// A cached tree is only reused when it was compiled from this very
// network value; a different network sharing the id replaces it.
func (e *Engine) Compile(ctx context.Context, net *network.Network) (*junction.Tree, error) {
	if tree, ok := e.trees.Get(net.ID()); ok {
		if tree.Network() == net {
			return tree, nil
		}
		e.logger.Debug("cached tree belongs to another network value, recompiling", zap.Stringer("id", net.ID()))
	}
	_, span := e.tracer.Start(ctx, "inference.Compile", trace.WithAttributes(
		attribute.String("network.id", net.ID().String()),
		attribute.Int("network.variables", net.NumVariables()),
	))
	defer span.End()

	start := time.Now()
	tree, err := junction.Compile(net)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compile failed")
		return nil, err
	}
	e.trees.Add(net.ID(), tree)
	span.SetAttributes(
		attribute.Int("tree.cliques", len(tree.Cliques())),
		attribute.Int("tree.width", tree.Treewidth()),
	)
	e.logger.Info("compiled junction tree",
		zap.String("network", net.Name()),
		zap.Stringer("id", net.ID()),
		zap.Int("cliques", len(tree.Cliques())),
		zap.Int("treewidth", tree.Treewidth()),
		zap.Duration("took", time.Since(start)),
	)
	return tree, nil
}

// Forget drops the cached tree of a network, if any.
func (e *Engine) Forget(id uuid.UUID) {
	e.trees.Remove(id)
}

// Cached reports whether a compiled tree for id is held.
func (e *Engine) Cached(id uuid.UUID) bool {
	return e.trees.Contains(id)
}

// Posterior is an exact answer: the joint over Vars given the evidence.
type Posterior struct {
	Network *network.Network
	Vars    []int
	Joint   *factor.Factor
	// Marginals[i] is the distribution of Vars[i].
	Marginals   [][]float64
	Evidence    network.Assignment
	LogEvidence float64
	Method      string
}

// Marginal returns the distribution of the i-th query variable.
func (p *Posterior) Marginal(i int) []float64 {
	return p.Marginals[i]
}

func marginals(joint *factor.Factor, vars []int) ([][]float64, error) {
	out := make([][]float64, len(vars))
	for i, v := range vars {
		if len(vars) == 1 {
			out[i] = joint.Values()
			continue
		}
		m, err := factor.Marginalize(joint, []int{v})
		if err != nil {
			return nil, fmt.Errorf("marginal of variable %d: %w", v, err)
		}
		out[i] = m.Values()
	}
	return out, nil
}

// ExactMarginal computes P(query | evidence) with the junction tree. Joint
// queries that no clique covers are answered by variable elimination.
func (e *Engine) ExactMarginal(ctx context.Context, net *network.Network, query []string, evidence map[string]string) (*Posterior, error) {
	ctx, span := e.tracer.Start(ctx, "inference.ExactMarginal", trace.WithAttributes(
		attribute.String("network.id", net.ID().String()),
		attribute.StringSlice("query", query),
		attribute.Int("evidence.count", len(evidence)),
	))
	defer span.End()

	post, err := e.exact(ctx, net, query, evidence)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exact query failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("method", post.Method))
	return post, nil
}

func (e *Engine) exact(ctx context.Context, net *network.Network, query []string, evidence map[string]string) (*Posterior, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	vars, err := net.Indices(query)
	if err != nil {
		return nil, err
	}
	ev, err := net.Evidence(evidence)
	if err != nil {
		return nil, err
	}
	tree, err := e.Compile(ctx, net)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cal, err := tree.Calibrate(ev)
	if err != nil {
		return nil, err
	}
	post := &Posterior{
		Network:     net,
		Vars:        vars,
		Evidence:    ev,
		LogEvidence: cal.LogEvidence(),
		Method:      MethodJunctionTree,
	}

	joint, err := cal.Marginal(vars)
	var notCovered *junction.NotCoveredError
	if errors.As(err, &notCovered) {
		e.logger.Debug("no clique covers query, falling back to elimination", zap.Strings("query", query))
		joint, err = elimination.Query(net, vars, ev)
		post.Method = MethodVariableElimination
	}
	if err != nil {
		return nil, err
	}
	post.Joint = joint
	if post.Marginals, err = marginals(joint, vars); err != nil {
		return nil, err
	}

	e.logger.Debug("exact query answered",
		zap.String("network", net.Name()),
		zap.Strings("query", query),
		zap.Int("evidence", len(ev)),
		zap.String("method", post.Method),
		zap.Duration("took", time.Since(start)),
	)
	return post, nil
}

// ApproximateEventProbability estimates P(event | evidence) by Gibbs
// sampling, where the event is a conjunction of variable assignments. A
// cancelled context yields a partial estimate, not an error.
func (e *Engine) ApproximateEventProbability(ctx context.Context, net *network.Network, event, evidence map[string]string, opts gibbs.Options) (*gibbs.Estimate, error) {
	target, err := net.Evidence(event)
	if err != nil {
		return nil, err
	}
	if len(target) == 0 {
		return nil, errors.New("inference: event is empty")
	}
	return e.ApproximateEventFunc(ctx, net, target.Consistent, evidence, opts)
}

// ApproximateEventFunc estimates the probability, given evidence, that pred
// holds in a full state of the network. pred receives one value index per
// variable id and must not keep or modify the slice.
func (e *Engine) ApproximateEventFunc(ctx context.Context, net *network.Network, pred gibbs.Predicate, evidence map[string]string, opts gibbs.Options) (*gibbs.Estimate, error) {
	ctx, span := e.tracer.Start(ctx, "inference.ApproximateEventProbability", trace.WithAttributes(
		attribute.String("network.id", net.ID().String()),
		attribute.Int("iterations", opts.Iterations),
		attribute.Int("chains", opts.Chains),
	))
	defer span.End()

	ev, err := net.Evidence(evidence)
	if err != nil {
		return nil, err
	}
	est, err := gibbs.EventFunc(ctx, net, pred, ev, opts)
	e.finishSampling(span, net, est, err)
	return est, err
}

// ApproximateMarginal estimates P(variable | evidence) by Gibbs sampling.
func (e *Engine) ApproximateMarginal(ctx context.Context, net *network.Network, variable string, evidence map[string]string, opts gibbs.Options) (*gibbs.Estimate, error) {
	ctx, span := e.tracer.Start(ctx, "inference.ApproximateMarginal", trace.WithAttributes(
		attribute.String("network.id", net.ID().String()),
		attribute.String("target", variable),
		attribute.Int("iterations", opts.Iterations),
		attribute.Int("chains", opts.Chains),
	))
	defer span.End()

	v, err := net.Index(variable)
	if err != nil {
		return nil, err
	}
	ev, err := net.Evidence(evidence)
	if err != nil {
		return nil, err
	}
	est, err := gibbs.Marginal(ctx, net, v, ev, opts)
	e.finishSampling(span, net, est, err)
	return est, err
}

func (e *Engine) finishSampling(span trace.Span, net *network.Network, est *gibbs.Estimate, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sampling failed")
		e.logger.Warn("sampling stopped", zap.String("network", net.Name()), zap.Error(err))
	}
	if est == nil {
		return
	}
	span.SetAttributes(
		attribute.Int64("counted", est.Counted),
		attribute.Bool("partial", est.Partial),
	)
	if est.Partial {
		e.logger.Info("partial estimate",
			zap.String("network", net.Name()),
			zap.String("reason", est.StopReason),
			zap.Int64("counted", est.Counted),
		)
	}
}

// DSeparated reports whether x ⊥ y | z holds structurally.
func (e *Engine) DSeparated(ctx context.Context, net *network.Network, x, y, z []string) (bool, error) {
	_, span := e.tracer.Start(ctx, "inference.DSeparated", trace.WithAttributes(
		attribute.String("network.id", net.ID().String()),
	))
	defer span.End()

	ok, err := dsep.DSeparated(net, x, y, z)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "d-separation failed")
		return false, err
	}
	span.SetAttributes(attribute.Bool("separated", ok))
	return ok, nil
}
