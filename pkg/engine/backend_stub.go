//go:build !llama

package engine

import (
	"modeld/internal/executor"
	"modeld/pkg/types"
)

// newMainExecutor is the default (no-CGO) build's executor construction: a
// deterministic stub regardless of settings, so Engine::Create and
// Engine::Benchmark work end-to-end without the `llama` build tag.
// modelPath is accepted but unused, matching executor.NewStub's contract.
func newMainExecutor(modelPath string, settings types.MainExecutorSettings) (executor.Backend, error) {
	_ = modelPath
	_ = settings
	return executor.NewStub(), nil
}
