package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rawblock/bayesnet-engine/internal/junction"
	"github.com/rawblock/bayesnet-engine/internal/network"
)

func newValidateCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check that network documents build",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				n, err := network.LoadFile(path)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s, %d variables)\n", path, n.Name(), n.NumVariables())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(args))
			}
			return nil
		},
	}
}

func newAdjacencyCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "adjacency file",
		Short: "Print the parent→child adjacency matrix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := network.LoadFile(args[0])
			if err != nil {
				return err
			}
			names := make([]string, n.NumVariables())
			for i := range names {
				names[i] = n.VariableName(i)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"variables": names,
				"adjacency": n.Adjacency(),
			})
		},
	}
}

func newStructureCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "structure file",
		Short: "Compile the junction tree and print its cliques",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := network.LoadFile(args[0])
			if err != nil {
				return err
			}
			tree, err := junction.Compile(n)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d cliques, treewidth %d\n", n.Name(), len(tree.Cliques()), tree.Treewidth())
			for i, cl := range tree.Cliques() {
				fmt.Fprintf(out, "  C%d {%s}\n", i, strings.Join(labels(n, cl), ", "))
			}
			for _, s := range tree.Separators() {
				fmt.Fprintf(out, "  C%d -- C%d [%s]\n", s.A, s.B, strings.Join(labels(n, s.Vars), ", "))
			}
			return nil
		},
	}
}

func labels(n *network.Network, vars []int) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = n.VariableName(v)
	}
	return out
}
