// Package executor defines the narrow ExecutorBackend capability set the
// resource manager drives (spec §9 DESIGN NOTES: "wrap them behind a narrow
// trait/interface ... never inheritance-style deep hierarchies") and its
// two realizations: an in-process go-llama.cpp adapter gated behind the
// `llama` build tag (grounded on the teacher's adapter_llama.go), and a
// deterministic no-CGO stub (grounded on adapter_llama_stub.go) used by
// default builds and tests.
package executor

import (
	"context"

	"modeld/internal/kvcache"
)

// Inputs bundles the tokenized contents of one Prefill call: text tokens
// plus optional pre-encoded vision/audio embeddings produced by the
// (out-of-scope) preprocessors.
type Inputs struct {
	Tokens          []int32
	VisionEmbedding []float32
	AudioEmbedding  []float32
}

// SampledToken is one token produced by DecodeLogits before the sampler
// has run, or by Decode after it has.
type SampledToken struct {
	ID    int32
	Score float64 // log-probability of ID, when available
}

// Backend is the capability set a neural executor exposes to the resource
// manager. It never grows a deep hierarchy: every concrete backend
// satisfies exactly this interface.
type Backend interface {
	// Prefill ingests tokens into the KV-cache without producing output.
	Prefill(ctx context.Context, in Inputs) error
	// Decode advances one step, returning the sampled-from logits for the
	// current position. Each call returns a single logits row, so only one
	// output candidate is decoded per call.
	Decode(ctx context.Context) ([]float32, error)
	// DecodeLogits is Decode without advancing RuntimeState (neither
	// CurrentStep nor RanDecode changes), used by text-scoring to read
	// logits for a known next token.
	DecodeLogits(ctx context.Context) ([]float32, error)

	// CloneContext duplicates the executor's currently-loaded KV-cache
	// into a fresh kvcache.KV the caller owns.
	CloneContext() (kvcache.KV, error)
	// RestoreContext loads kv as the executor's active KV-cache.
	RestoreContext(kv kvcache.KV) error

	GetRuntimeConfig() *kvcache.RuntimeConfig
	GetRuntimeState() *kvcache.RuntimeState
	UpdateRuntimeConfig(*kvcache.RuntimeConfig)
	UpdateRuntimeState(*kvcache.RuntimeState)

	GetVocabSize() int
	LoadLoRA(path string) (int, error)
	Reset() error
	Cancel()

	NewKV() kvcache.KV
}
