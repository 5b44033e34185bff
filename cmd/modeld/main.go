package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// buildRootCmd wires the modeld command tree the way the teacher's
// internal/testctl/cobra_root.go wires testctl's: one root with
// SilenceUsage/SilenceErrors and a handful of RunE subcommands, rather
// than the teacher's modeld itself, which only ever had a flat flag.Parse
// in main() — a single daemon binary now fronts two distinct modes
// (serve the Engine over HTTP, or run Engine::Benchmark standalone and
// print the result), which is exactly the grouping Cobra subcommands
// exist for.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "modeld",
		Short:         "HTTP daemon fronting one Engine's sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd())
	root.AddCommand(buildBenchCmd())
	return root
}
