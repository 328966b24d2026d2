// Package crosscheck runs the exact and the sampling engine side by side on
// the same query and records how far the sampled posterior drifts from the
// exact one.
package crosscheck

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rawblock/bayesnet-engine/internal/db"
	"github.com/rawblock/bayesnet-engine/internal/gibbs"
	"github.com/rawblock/bayesnet-engine/internal/inference"
	"github.com/rawblock/bayesnet-engine/internal/metrics"
	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// DefaultTolerance is the total variation distance under which a sampled
// posterior counts as agreeing with the exact one.
const DefaultTolerance = 0.05

// Runner compares engines. The store is optional; without one reports are
// only returned.
type Runner struct {
	engine *inference.Engine
	store  db.Store
	logger *zap.Logger
}

func NewRunner(engine *inference.Engine, store db.Store, logger *zap.Logger) *Runner {
	return &Runner{engine: engine, store: store, logger: logger.Named("crosscheck")}
}

// Run answers P(target | evidence) with both engines concurrently and
// persists the comparison.
func (r *Runner) Run(ctx context.Context, net *network.Network, req models.CrosscheckRequest) (*models.CrosscheckReport, error) {
	target, err := net.Index(req.Target)
	if err != nil {
		return nil, err
	}
	opts, err := inference.SamplingOptions(req.Options)
	if err != nil {
		return nil, err
	}
	tolerance := req.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var post *inference.Posterior
	var est *gibbs.Estimate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		post, err = r.engine.ExactMarginal(gctx, net, []string{req.Target}, req.Evidence)
		return err
	})
	g.Go(func() error {
		sctx, cancel := inference.SamplingContext(gctx, req.Options)
		defer cancel()
		var err error
		est, err = r.engine.ApproximateMarginal(sctx, net, req.Target, req.Evidence, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	exact := post.Marginal(0)
	report := &models.CrosscheckReport{
		ID:             uuid.NewString(),
		NetworkID:      net.ID().String(),
		Target:         req.Target,
		Evidence:       req.Evidence,
		Exact:          inference.Distribution(net, target, exact),
		Approximate:    inference.Distribution(net, target, est.Distribution),
		TotalVariation: metrics.TotalVariation(exact, est.Distribution),
		KLDivergence:   metrics.KLDivergence(exact, est.Distribution),
		Hellinger:      metrics.Hellinger(exact, est.Distribution),
		MaxAbsError:    metrics.MaxAbsError(exact, est.Distribution),
		StdError:       est.StdError,
		Tolerance:      tolerance,
		CreatedAt:      time.Now().UTC(),
	}
	report.WithinTolerance = report.TotalVariation <= tolerance

	if !report.WithinTolerance {
		r.logger.Warn("DIVERGENCE",
			zap.String("network", net.Name()),
			zap.String("target", req.Target),
			zap.Float64("tv", report.TotalVariation),
			zap.Float64("tolerance", tolerance),
			zap.Int64("counted", est.Counted),
			zap.Bool("partial", est.Partial),
		)
	}

	if r.store != nil {
		if err := r.store.SaveCrosscheckReport(ctx, *report); err != nil {
			return report, fmt.Errorf("persist crosscheck report: %w", err)
		}
	}
	return report, nil
}

// Drift summarizes the stored reports of a network.
type Drift struct {
	TotalRuns     int     `json:"totalRuns"`
	Divergences   int     `json:"divergences"`
	AvgTotalVar   float64 `json:"avgTotalVariation"`
	WorstTotalVar float64 `json:"worstTotalVariation"`
	WorstTarget   string  `json:"worstTarget,omitempty"`
}

// DriftReport aggregates up to the last limit stored reports.
func (r *Runner) DriftReport(ctx context.Context, networkID string, limit int) (Drift, error) {
	var d Drift
	if r.store == nil {
		return d, nil
	}
	reports, err := r.store.ListCrosscheckReports(ctx, networkID, limit)
	if err != nil {
		return d, err
	}
	sum := 0.0
	for _, rep := range reports {
		d.TotalRuns++
		if !rep.WithinTolerance {
			d.Divergences++
		}
		sum += rep.TotalVariation
		if rep.TotalVariation > d.WorstTotalVar {
			d.WorstTotalVar = rep.TotalVariation
			d.WorstTarget = rep.Target
		}
	}
	if d.TotalRuns > 0 {
		d.AvgTotalVar = sum / float64(d.TotalRuns)
	}
	return d, nil
}
