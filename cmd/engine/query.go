package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/dsep"
	"github.com/rawblock/bayesnet-engine/internal/inference"
	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// queryFlags are shared by the one-shot query commands.
type queryFlags struct {
	network  string
	evidence []string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&q.network, "network", "n", "", "network document (.json, .yaml)")
	cmd.Flags().StringArrayVarP(&q.evidence, "evidence", "e", nil, "observation Variable=State (repeatable)")
	_ = cmd.MarkFlagRequired("network")
}

func (q *queryFlags) load() (*network.Network, map[string]string, error) {
	n, err := network.LoadFile(q.network)
	if err != nil {
		return nil, nil, err
	}
	ev, err := parseAssignments(q.evidence)
	if err != nil {
		return nil, nil, err
	}
	return n, ev, nil
}

// parseAssignments reads Variable=State pairs.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, state, ok := strings.Cut(p, "=")
		if !ok || name == "" || state == "" {
			return nil, fmt.Errorf("expected Variable=State, got %q", p)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(state)
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// quietEngine builds an engine for one-shot commands; logs only show up
// with --debug.
func quietEngine(root *rootOptions) (*inference.Engine, error) {
	logger := zap.NewNop()
	if root.debug {
		var err error
		if logger, err = newLogger(true); err != nil {
			return nil, err
		}
	}
	return inference.NewEngine(logger, 1)
}

func newExactCmd(root *rootOptions) *cobra.Command {
	var q queryFlags
	var query []string
	cmd := &cobra.Command{
		Use:     "exact",
		Short:   "Exact posterior of one or more variables",
		Example: `  engine exact -n alarm.json -q Burglary -e JohnCalls=True -e MaryCalls=True`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, ev, err := q.load()
			if err != nil {
				return err
			}
			engine, err := quietEngine(root)
			if err != nil {
				return err
			}
			post, err := engine.ExactMarginal(cmd.Context(), n, query, ev)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), inference.ExactResult(post))
		},
	}
	q.register(cmd)
	cmd.Flags().StringSliceVarP(&query, "query", "q", nil, "query variables")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func newSampleCmd(root *rootOptions) *cobra.Command {
	var q queryFlags
	var target string
	var event []string
	var burnIn int
	var opts models.SamplingOptions
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Gibbs estimate of a marginal or an event probability",
		Example: `  engine sample -n alarm.json -t Alarm -e JohnCalls=True --iterations 50000 --chains 4
  engine sample -n alarm.json --event Burglary=True -e MaryCalls=True`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (target == "") == (len(event) == 0) {
				return fmt.Errorf("exactly one of --target or --event is required")
			}
			n, ev, err := q.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("burn-in") {
				opts.BurnIn = &burnIn
			}
			sampling, err := inference.SamplingOptions(opts)
			if err != nil {
				return err
			}
			engine, err := quietEngine(root)
			if err != nil {
				return err
			}
			ctx, cancel := inference.SamplingContext(cmd.Context(), opts)
			defer cancel()

			if target != "" {
				v, err := n.Index(target)
				if err != nil {
					return err
				}
				est, err := engine.ApproximateMarginal(ctx, n, target, ev, sampling)
				if est == nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), inference.ApproximateResult(n, v, est, err))
			}
			eventMap, err := parseAssignments(event)
			if err != nil {
				return err
			}
			est, err := engine.ApproximateEventProbability(ctx, n, eventMap, ev, sampling)
			if est == nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), inference.ApproximateResult(n, -1, est, err))
		},
	}
	q.register(cmd)
	cmd.Flags().StringVarP(&target, "target", "t", "", "variable whose marginal is estimated")
	cmd.Flags().StringArrayVar(&event, "event", nil, "event Variable=State (repeatable)")
	cmd.Flags().IntVar(&opts.Iterations, "iterations", inference.DefaultIterations, "iterations per chain")
	cmd.Flags().IntVar(&burnIn, "burn-in", 0, "iterations discarded per chain (default: a tenth)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "seed of the first chain")
	cmd.Flags().IntVar(&opts.Chains, "chains", 1, "parallel chains")
	cmd.Flags().StringVar(&opts.Sweep, "sweep", "cyclic", "cyclic or random")
	cmd.Flags().IntVar(&opts.TimeoutMs, "timeout-ms", 0, "stop early and report a partial estimate")
	return cmd
}

func newDSepCmd(root *rootOptions) *cobra.Command {
	var path string
	var x, y, z []string
	var list bool
	cmd := &cobra.Command{
		Use:   "dsep",
		Short: "Test X ⊥ Y | Z, or list every independent pair given Z",
		Example: `  engine dsep -n alarm.json -x Burglary -y Earthquake -z Alarm
  engine dsep -n alarm.json --list -z Alarm`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := network.LoadFile(path)
			if err != nil {
				return err
			}
			if list {
				pairs, err := dsep.Independencies(n, z)
				if err != nil {
					return err
				}
				out := make([]string, len(pairs))
				for i, p := range pairs {
					out[i] = p.String()
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"given": z, "independent": out})
			}
			engine, err := quietEngine(root)
			if err != nil {
				return err
			}
			ok, err := engine.DSeparated(cmd.Context(), n, x, y, z)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), models.DSeparationResult{X: x, Y: y, Z: z, Separated: ok})
		},
	}
	cmd.Flags().StringVarP(&path, "network", "n", "", "network document (.json, .yaml)")
	cmd.Flags().StringSliceVarP(&x, "x", "x", nil, "first variable set")
	cmd.Flags().StringSliceVarP(&y, "y", "y", nil, "second variable set")
	cmd.Flags().StringSliceVarP(&z, "z", "z", nil, "conditioning set")
	cmd.Flags().BoolVar(&list, "list", false, "list all d-separated pairs given --z")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}
