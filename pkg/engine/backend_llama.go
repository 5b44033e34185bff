//go:build llama

package engine

import (
	"runtime"

	"modeld/internal/executor"
	"modeld/internal/status"
	"modeld/pkg/types"
)

// defaultCtxSize is used when MainExecutorSettings.MaxNumTokens is unset.
const defaultCtxSize = 2048

// newMainExecutor builds the in-process go-llama.cpp executor for the
// `llama` build tag. GPU_ARTISAN is a distinct on-device compiled-graph
// backend the original runtime supports but go-llama.cpp has no
// equivalent of, so it surfaces Unimplemented here rather than silently
// falling back to CPU (spec §7 Unimplemented: "unsupported backend ...
// in this build").
func newMainExecutor(modelPath string, settings types.MainExecutorSettings) (executor.Backend, error) {
	if settings.Backend == types.BackendGPUArtisan {
		return nil, status.New(status.Unimplemented, "engine: GPU_ARTISAN backend is not implemented by the go-llama.cpp executor")
	}
	ctxSize := settings.MaxNumTokens
	if ctxSize <= 0 {
		ctxSize = defaultCtxSize
	}
	return executor.NewLlama(modelPath, ctxSize, runtime.NumCPU())
}
