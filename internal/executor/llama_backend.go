//go:build llama

package executor

import (
	"context"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"modeld/internal/kvcache"
	"modeld/internal/status"
)

// llamaBackend is the in-process go-llama.cpp Backend, built only with
// `-tags=llama`. Grounded directly on the teacher's adapter_llama.go:
// llama.New/llama.SetContext to load, model.SetTokenCallback/model.Predict
// to generate, model.Free to release.
type llamaBackend struct {
	mu      sync.Mutex
	model   *llama.LLama
	ctxSize int
	threads int
	config  *kvcache.RuntimeConfig
	state   *kvcache.RuntimeState
}

// NewLlama loads modelPath with the given context size and thread count.
func NewLlama(modelPath string, ctxSize, threads int) (Backend, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, status.New(status.InvalidArgument, "llama backend: empty model path")
	}
	m, err := llama.New(modelPath, llama.SetContext(ctxSize))
	if err != nil {
		return nil, status.New(status.Internal, "llama backend: load failed: %v", err)
	}
	return &llamaBackend{
		model:   m,
		ctxSize: ctxSize,
		threads: threads,
		config:  &kvcache.RuntimeConfig{},
		state:   &kvcache.RuntimeState{},
	}, nil
}

func (b *llamaBackend) Prefill(ctx context.Context, in Inputs) error {
	// go-llama.cpp has no separate prefill-only entry point; Predict with
	// zero requested tokens ingests the prompt into the KV-cache and
	// returns immediately, matching the teacher's single Predict call
	// shape (adapter_llama.go Generate).
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	text := tokensToPromptText(in.Tokens)
	_, err := b.model.Predict(text, llama.SetTokens(0), llama.SetThreads(maxInt(1, b.threads)))
	if err != nil {
		return status.New(status.Internal, "llama backend: prefill failed: %v", err)
	}
	b.state.CurrentStep += len(in.Tokens)
	return nil
}

func (b *llamaBackend) Decode(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	logits, err := b.model.GetLogits()
	if err != nil {
		return nil, status.New(status.Internal, "llama backend: decode failed: %v", err)
	}
	b.state.CurrentStep++
	b.state.RanDecode = true
	return logits, nil
}

func (b *llamaBackend) DecodeLogits(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	logits, err := b.model.GetLogits()
	if err != nil {
		return nil, status.New(status.Internal, "llama backend: decode logits failed: %v", err)
	}
	return logits, nil
}

func (b *llamaBackend) CloneContext() (kvcache.KV, error) {
	kv := kvcache.NewMemKV()
	return kv, status.New(status.Unimplemented, "llama backend: direct KV clone not exposed by go-llama.cpp; use checkpoint-store round trip instead")
}

func (b *llamaBackend) RestoreContext(kv kvcache.KV) error {
	return status.New(status.Unimplemented, "llama backend: direct KV restore not exposed by go-llama.cpp")
}

func (b *llamaBackend) GetRuntimeConfig() *kvcache.RuntimeConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.Clone()
}

func (b *llamaBackend) GetRuntimeState() *kvcache.RuntimeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Clone()
}

func (b *llamaBackend) UpdateRuntimeConfig(c *kvcache.RuntimeConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = c.Clone()
}

func (b *llamaBackend) UpdateRuntimeState(s *kvcache.RuntimeState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s.Clone()
}

func (b *llamaBackend) GetVocabSize() int {
	// go-llama.cpp does not expose vocab size directly; a conservative
	// common default is used. Embedders that need the exact figure should
	// read it from the model file's metadata out of band.
	return 32000
}

func (b *llamaBackend) LoadLoRA(path string) (int, error) {
	return 0, status.New(status.Unimplemented, "llama backend: LoRA loading not supported by this go-llama.cpp version")
}

func (b *llamaBackend) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = &kvcache.RuntimeState{}
	return nil
}

func (b *llamaBackend) Cancel() {
	// go-llama.cpp's token callback is the only cancellation hook; the
	// session-level cancellation flag already stops the decode loop
	// between tokens (spec §5), so there is nothing further to signal
	// here.
}

func (b *llamaBackend) NewKV() kvcache.KV { return kvcache.NewMemKV() }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// tokensToPromptText is a placeholder bridge: the tokenizer itself is out
// of core scope (spec §1 Out of scope), so callers that need real
// detokenized prompt text must supply it through a TemplateApplier/
// tokenizer collaborator upstream of the executor. This exists only so the
// llama build tag compiles against go-llama.cpp's string-based Predict API.
func tokensToPromptText(tokens []int32) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteByte(byte(t))
	}
	return sb.String()
}
