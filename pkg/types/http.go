package types

// ErrorResponse is the JSON payload every HTTP error response carries,
// generalizing the teacher's ad hoc {"error":...,"code":...} map literal
// into a named wire type.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	Config SessionConfig `json:"config"`
}

// CreateSessionResponse is the body returned by POST /v1/sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// SessionInfoResponse is the body returned by GET /v1/sessions/{id}.
type SessionInfoResponse struct {
	SessionID   string  `json:"session_id"`
	State       string  `json:"state"`
	LastTaskIDs []int64 `json:"last_task_ids,omitempty"`
}

// PrefillRequest is the body of POST /v1/sessions/{id}/prefill.
type PrefillRequest struct {
	Tokens []int32 `json:"tokens" validate:"required"`
}

// DecodeRequest is the body of POST /v1/sessions/{id}/decode.
type DecodeRequest struct {
	ApplyTemplateInSession bool    `json:"apply_template_in_session,omitempty"`
	TemplateSuffix         []int32 `json:"template_suffix,omitempty"`
	MaxOutputTokens        int     `json:"max_output_tokens,omitempty"`
	StopTokenID            *int32  `json:"stop_token_id,omitempty"`
}

// MessageRequest is the body of POST /v1/sessions/{id}/messages.
type MessageRequest struct {
	Message                Message `json:"message" validate:"required"`
	ApplyTemplateInSession bool    `json:"apply_template_in_session,omitempty"`
	MaxOutputTokens        int     `json:"max_output_tokens,omitempty"`
	StopTokenID            *int32  `json:"stop_token_id,omitempty"`
}

// ScoreRequest is the body of POST /v1/sessions/{id}/score.
type ScoreRequest struct {
	TargetTokens      []int32 `json:"target_tokens" validate:"required"`
	StoreTokenLengths bool    `json:"store_token_lengths,omitempty"`
}

// CloneRequest is the body of POST /v1/sessions/{id}/clone.
type CloneRequest struct {
	DestSessionID string `json:"dest_session_id" validate:"required"`
}

// BenchmarkRequest is the body of POST /v1/benchmark.
type BenchmarkRequest struct {
	ModelPath string  `json:"model_path" validate:"required"`
	Backend   Backend `json:"backend" validate:"required,oneof=cpu gpu gpu_artisan"`
	PrefillN  int     `json:"prefill_n" validate:"gte=0"`
	DecodeN   int     `json:"decode_n" validate:"gte=0"`
	CacheDir  string  `json:"cache_dir,omitempty"`
}
