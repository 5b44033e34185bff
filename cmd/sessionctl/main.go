package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"modeld/internal/sessionctl"
)

// cmd/sessionctl replaces cmd/testctl as the project's interactive dev
// tool: instead of orchestrating Go/Python/Cypress/CI test suites against
// a web app (cmd/testctl's whole purpose), it drives the Session API of
// an already-running `modeld serve` instance, the way a human embedder
// exploring the Engine/Session stack would. Command-tree shape
// (SilenceUsage/SilenceErrors root, flags bound via cmd.Flags().*Var) is
// grounded on the same internal/testctl/cobra_root.go this tool replaces.
func main() {
	var addr, spawnBin, spawnModelPath string
	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Interactive REPL over a running modeld serve instance's Session API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, spawnBin, spawnModelPath)
		},
	}
	root.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Base URL of the running modeld serve instance")
	root.Flags().StringVar(&spawnBin, "spawn-bin", "", "Path to a modeld binary to launch automatically instead of dialing --addr directly")
	root.Flags().StringVar(&spawnModelPath, "spawn-model-path", "", "Model path passed to the spawned modeld serve (required with --spawn-bin)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr, spawnBin, spawnModelPath string) error {
	ctx := context.Background()

	if spawnBin != "" {
		if spawnModelPath == "" {
			return fmt.Errorf("--spawn-model-path is required with --spawn-bin")
		}
		srv, err := sessionctl.SpawnServer(ctx, spawnBin, spawnModelPath)
		if err != nil {
			return fmt.Errorf("spawn modeld: %w", err)
		}
		defer srv.Stop()
		addr = srv.Addr
	}

	client := sessionctl.New(addr)

	sessionID, err := sessionctl.ConfigureSession(ctx, client)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer client.DeleteSession(ctx, sessionID)

	m := sessionctl.NewModel(ctx, client, sessionID)
	p := tea.NewProgram(m)
	_, err = p.Run()
	return err
}
