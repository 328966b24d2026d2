package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	debug bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "engine",
		Short: "Discrete Bayesian network inference engine",
		Long: `Exact (junction tree) and approximate (Gibbs sampling) inference over
discrete Bayesian networks, as an HTTP service or one-shot commands over
network documents (.json, .yaml).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newExactCmd(opts),
		newSampleCmd(opts),
		newDSepCmd(opts),
		newValidateCmd(opts),
		newAdjacencyCmd(opts),
		newStructureCmd(opts),
	)
	return root
}

// newLogger builds the production zap logger, at debug level on --debug.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
