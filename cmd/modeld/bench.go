package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"modeld/pkg/engine"
	"modeld/pkg/types"
)

type benchFlags struct {
	modelPath string
	backend   string
	cacheDir  string
	prefillN  int
	decodeN   int
}

func buildBenchCmd() *cobra.Command {
	f := &benchFlags{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run Engine::Benchmark standalone and print the resulting BenchmarkInfo as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.modelPath, "model-path", envDefault("MODELD_MODEL_PATH", ""), "Path to the GGUF model file")
	fl.StringVar(&f.backend, "backend", string(types.BackendCPU), "Compute backend: cpu|gpu|gpu_artisan")
	fl.StringVar(&f.cacheDir, "cache-dir", "", "Directory for the Badger-backed checkpoint store (empty disables checkpointing)")
	fl.IntVar(&f.prefillN, "prefill-n", 32, "Number of dummy prefill tokens to time")
	fl.IntVar(&f.decodeN, "decode-n", 32, "Number of dummy decode steps to time")

	return cmd
}

// runBench needs a live *pkg/engine.Engine to call Benchmark on even though
// Benchmark builds its own independent executor/Resource-Manager/
// Execution-Manager stack internally and ignores the receiver's own
// settings (see pkg/engine/benchmark.go) — so it constructs a minimal
// Engine from the same model/backend/cache-dir flags purely to have
// something to call the method on, then discards it.
func runBench(f *benchFlags) error {
	if f.modelPath == "" {
		return fmt.Errorf("bench: --model-path is required")
	}

	eng, err := engine.Create(types.EngineSettings{
		Model:        types.ModelAssets{ModelPath: f.modelPath},
		MainExecutor: types.MainExecutorSettings{Backend: types.Backend(f.backend), MaxNumTokens: f.prefillN + f.decodeN},
		SamplerParams: &types.SamplerParams{Type: types.SamplerGreedy, Temperature: 0},
	})
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}
	defer eng.Close()

	info, err := eng.Benchmark(f.modelPath, types.Backend(f.backend), f.prefillN, f.decodeN, f.cacheDir)
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
