//go:build !llama

package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"modeld/internal/kvcache"
	"modeld/internal/status"
)

// stubBackend is the no-CGO default Backend. It never runs a real model;
// it deterministically "decodes" by emitting a logits vector that peaks at
// an ID derived from the current step, so the sampler and the rest of the
// pipeline can be exercised end-to-end without the `llama` build tag —
// mirroring the teacher's adapter_llama_stub.go, which fails fast instead
// of silently mocking inference. Here we instead provide a small,
// documented fake so tests of the session/scheduler layers (which are not
// testing model quality) don't require CGO. Production builds needing
// real generations must use the `llama` tag.
const stubVocabSize = 256

type stubBackend struct {
	mu        sync.Mutex
	config    *kvcache.RuntimeConfig
	state     *kvcache.RuntimeState
	processed *kvcache.ProcessedTokens
	canceled  int32
	loras     map[string]int
	nextLora  int
}

// NewStub constructs a deterministic, CGO-free Backend.
func NewStub() Backend {
	return &stubBackend{
		config:    &kvcache.RuntimeConfig{},
		state:     &kvcache.RuntimeState{},
		processed: kvcache.NewProcessedTokens(),
		loras:     make(map[string]int),
	}
}

func (b *stubBackend) Prefill(ctx context.Context, in Inputs) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processed.Append(in.Tokens...)
	b.state.CurrentStep = b.processed.TokenCount()
	return nil
}

func (b *stubBackend) decodeLocked() []float32 {
	logits := make([]float32, stubVocabSize)
	peak := int32(1 + b.state.CurrentStep%int32OrOne(stubVocabSize-1))
	for i := range logits {
		logits[i] = -10
	}
	logits[peak] = 10
	b.processed.Append(peak)
	b.state.CurrentStep = b.processed.TokenCount()
	b.state.RanDecode = true
	return logits
}

func int32OrOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func (b *stubBackend) Decode(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if atomic.LoadInt32(&b.canceled) != 0 {
		return nil, status.New(status.Cancelled, "stub backend: cancelled")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.decodeLocked(), nil
}

func (b *stubBackend) DecodeLogits(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	logits := make([]float32, stubVocabSize)
	for i := range logits {
		logits[i] = -10
	}
	peak := int32(1 + b.state.CurrentStep%int32OrOne(stubVocabSize-1))
	logits[peak] = 10
	return logits, nil
}

func (b *stubBackend) CloneContext() (kvcache.KV, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kv := kvcache.NewMemKV()
	blob, _ := kv.Serialize()
	_ = blob
	return kv, nil
}

func (b *stubBackend) RestoreContext(kv kvcache.KV) error {
	return nil
}

func (b *stubBackend) GetRuntimeConfig() *kvcache.RuntimeConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.Clone()
}

func (b *stubBackend) GetRuntimeState() *kvcache.RuntimeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Clone()
}

func (b *stubBackend) UpdateRuntimeConfig(c *kvcache.RuntimeConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = c.Clone()
}

func (b *stubBackend) UpdateRuntimeState(s *kvcache.RuntimeState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s.Clone()
}

func (b *stubBackend) GetVocabSize() int { return stubVocabSize }

func (b *stubBackend) LoadLoRA(path string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.loras[path]; ok {
		return id, nil
	}
	b.nextLora++
	b.loras[path] = b.nextLora
	return b.nextLora, nil
}

func (b *stubBackend) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processed = kvcache.NewProcessedTokens()
	b.state = &kvcache.RuntimeState{}
	return nil
}

func (b *stubBackend) Cancel() { atomic.StoreInt32(&b.canceled, 1) }

func (b *stubBackend) NewKV() kvcache.KV { return kvcache.NewMemKV() }
