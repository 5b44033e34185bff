// Package types holds the wire and configuration shapes shared between the
// Engine, the Session facade, and embedder-facing surfaces (HTTP, CLI).
package types

import "time"

// Backend enumerates the compute backend an executor runs on.
type Backend string

const (
	BackendCPU         Backend = "cpu"
	BackendGPU         Backend = "gpu"
	BackendGPUArtisan  Backend = "gpu_artisan"
)

// ActivationDType enumerates the tensor dtype used by the vision adapter.
type ActivationDType string

const (
	DTypeFP32 ActivationDType = "fp32"
	DTypeFP16 ActivationDType = "fp16"
)

// SamplerType enumerates the supported sampling strategies.
type SamplerType string

const (
	SamplerGreedy SamplerType = "greedy"
	SamplerTopK   SamplerType = "topk"
	SamplerTopP   SamplerType = "topp"
)

// ModelAssets names the on-disk model either by an explicit path or by a
// scoped file handle resolved by the embedder's platform glue.
type ModelAssets struct {
	ModelPath string `json:"model_path,omitempty" yaml:"model_path,omitempty" toml:"model_path,omitempty" validate:"required_without=ScopedFile"`
	ScopedFile string `json:"scoped_file,omitempty" yaml:"scoped_file,omitempty" toml:"scoped_file,omitempty"`
}

// MainExecutorSettings configures the primary text executor.
type MainExecutorSettings struct {
	Backend      Backend `json:"backend" yaml:"backend" toml:"backend" validate:"required,oneof=cpu gpu gpu_artisan"`
	MaxNumTokens int     `json:"max_num_tokens" yaml:"max_num_tokens" toml:"max_num_tokens" validate:"gte=0"`
	CacheDir     string  `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty" toml:"cache_dir,omitempty"`
}

// VisionExecutorSettings configures the optional vision encoder/adapter pair.
type VisionExecutorSettings struct {
	EncoderBackend  Backend         `json:"encoder_backend" yaml:"encoder_backend" toml:"encoder_backend"`
	AdapterBackend  Backend         `json:"adapter_backend" yaml:"adapter_backend" toml:"adapter_backend"`
	ActivationDType ActivationDType `json:"activation_dtype,omitempty" yaml:"activation_dtype,omitempty" toml:"activation_dtype,omitempty"`
}

// AudioExecutorSettings configures the optional audio executor.
type AudioExecutorSettings struct {
	Backend            Backend `json:"backend" yaml:"backend" toml:"backend"`
	MaxSequenceLength  int     `json:"max_sequence_length" yaml:"max_sequence_length" toml:"max_sequence_length"`
	BundledWithMain    bool    `json:"bundled_with_main_model,omitempty" yaml:"bundled_with_main_model,omitempty" toml:"bundled_with_main_model,omitempty"`
}

// BenchmarkParams configures an Engine::Benchmark run.
type BenchmarkParams struct {
	NumPrefillTokens int `json:"num_prefill_tokens" yaml:"num_prefill_tokens" toml:"num_prefill_tokens"`
	NumDecodeTokens  int `json:"num_decode_tokens" yaml:"num_decode_tokens" toml:"num_decode_tokens"`
}

// SamplerParams configures the default sampler used by sessions that don't
// override it in their SessionConfig.
type SamplerParams struct {
	Type        SamplerType `json:"type" yaml:"type" toml:"type" validate:"required,oneof=greedy topk topp"`
	K           int         `json:"k,omitempty" yaml:"k,omitempty" toml:"k,omitempty"`
	P           float64     `json:"p,omitempty" yaml:"p,omitempty" toml:"p,omitempty"`
	Temperature float64     `json:"temperature" yaml:"temperature" toml:"temperature" validate:"gte=0"`
	Seed        int64       `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`
}

// EngineSettings is the top-level configuration accepted by Engine::Create.
type EngineSettings struct {
	Model           ModelAssets             `json:"model" yaml:"model" toml:"model" validate:"required"`
	MainExecutor    MainExecutorSettings    `json:"main_executor" yaml:"main_executor" toml:"main_executor" validate:"required"`
	VisionExecutor  *VisionExecutorSettings `json:"vision_executor,omitempty" yaml:"vision_executor,omitempty" toml:"vision_executor,omitempty"`
	AudioExecutor   *AudioExecutorSettings  `json:"audio_executor,omitempty" yaml:"audio_executor,omitempty" toml:"audio_executor,omitempty"`
	BenchmarkParams *BenchmarkParams        `json:"benchmark_params,omitempty" yaml:"benchmark_params,omitempty" toml:"benchmark_params,omitempty"`
	SamplerParams   *SamplerParams          `json:"sampler_params,omitempty" yaml:"sampler_params,omitempty" toml:"sampler_params,omitempty"`
}

// SessionConfig configures one Session created by Engine::CreateSession.
type SessionConfig struct {
	Sampler                SamplerParams     `json:"sampler" yaml:"sampler" toml:"sampler"`
	MaxOutputTokens        int               `json:"max_output_tokens" yaml:"max_output_tokens" toml:"max_output_tokens" validate:"gte=0"`
	ApplyTemplate          bool              `json:"apply_template" yaml:"apply_template" toml:"apply_template"`
	ApplyTemplateInSession bool              `json:"apply_template_in_session" yaml:"apply_template_in_session" toml:"apply_template_in_session"`
	NumOutputCandidates    int               `json:"num_output_candidates" yaml:"num_output_candidates" toml:"num_output_candidates" validate:"gte=0"`
	LoraPath               string            `json:"lora_path,omitempty" yaml:"lora_path,omitempty" toml:"lora_path,omitempty"`
	CheckpointEnabled      bool              `json:"checkpoint_enabled,omitempty" yaml:"checkpoint_enabled,omitempty" toml:"checkpoint_enabled,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty" toml:"metadata,omitempty"`
}

// BenchmarkInitPhase records one phase of Engine initialization.
type BenchmarkInitPhase struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ns"`
}

// BenchmarkTurn records one prefill or decode turn.
type BenchmarkTurn struct {
	NumTokens int           `json:"num_tokens"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// BenchmarkInfo is the instrumentation surface exposed to embedders.
type BenchmarkInfo struct {
	InitPhases        []BenchmarkInitPhase `json:"init_phases,omitempty"`
	PrefillTurns      []BenchmarkTurn      `json:"prefill_turns,omitempty"`
	DecodeTurns       []BenchmarkTurn      `json:"decode_turns,omitempty"`
	TimeToFirstToken  time.Duration        `json:"time_to_first_token_ns,omitempty"`
}
