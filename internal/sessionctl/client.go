// Package sessionctl is the HTTP client and interactive TUI behind
// cmd/sessionctl — a Bubble Tea/Huh REPL that drives a running modeld
// serve instance's Session API the way a human embedder would, replacing
// cmd/testctl's role as the project's interactive dev tool with one
// scoped to this module's actual domain (sessions, not CI/web-test
// orchestration).
package sessionctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"modeld/pkg/types"
)

// Client is a thin wrapper over the internal/httpapi routes, mirroring
// the teacher's internal/testctl/executil.go pattern of a small struct
// holding an *http.Client plus a base URL, generalized from shelling out
// to subprocesses to issuing JSON requests against modeld's own API.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New builds a Client against baseURL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), hc: &http.Client{Timeout: 60 * time.Second}}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, errResp.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateSession calls POST /v1/sessions.
func (c *Client) CreateSession(ctx context.Context, cfg types.SessionConfig) (types.CreateSessionResponse, error) {
	var out types.CreateSessionResponse
	err := c.do(ctx, http.MethodPost, "/v1/sessions", types.CreateSessionRequest{Config: cfg}, &out)
	return out, err
}

// GetSession calls GET /v1/sessions/{id}.
func (c *Client) GetSession(ctx context.Context, id string) (types.SessionInfoResponse, error) {
	var out types.SessionInfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+id, nil, &out)
	return out, err
}

// DeleteSession calls DELETE /v1/sessions/{id}.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+id, nil, nil)
}

// Prefill calls POST /v1/sessions/{id}/prefill.
func (c *Client) Prefill(ctx context.Context, id string, tokens []int32) (types.Responses, error) {
	var out types.Responses
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/prefill", types.PrefillRequest{Tokens: tokens}, &out)
	return out, err
}

// Decode calls POST /v1/sessions/{id}/decode.
func (c *Client) Decode(ctx context.Context, id string, maxOutputTokens int) (types.Responses, error) {
	var out types.Responses
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/decode", types.DecodeRequest{MaxOutputTokens: maxOutputTokens}, &out)
	return out, err
}

// DecodeStream calls POST /v1/sessions/{id}/decode?stream=ndjson and
// invokes onChunk for every line of the NDJSON response as it arrives,
// the same progressive-delivery shape internal/httpapi/stream.go writes.
func (c *Client) DecodeStream(ctx context.Context, id string, maxOutputTokens int, onChunk func(types.Responses)) error {
	body, err := json.Marshal(types.DecodeRequest{MaxOutputTokens: maxOutputTokens})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions/"+id+"/decode?stream=ndjson", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("decode: %s (%d)", errResp.Error, resp.StatusCode)
		}
		return fmt.Errorf("decode: status %d", resp.StatusCode)
	}
	dec := json.NewDecoder(resp.Body)
	for {
		var chunk types.Responses
		if err := dec.Decode(&chunk); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		onChunk(chunk)
		if chunk.State.IsTerminal() {
			return nil
		}
	}
}

// Score calls POST /v1/sessions/{id}/score.
func (c *Client) Score(ctx context.Context, id string, targetTokens []int32) (types.Responses, error) {
	var out types.Responses
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/score", types.ScoreRequest{TargetTokens: targetTokens}, &out)
	return out, err
}

// Clone calls POST /v1/sessions/{id}/clone.
func (c *Client) Clone(ctx context.Context, id, destSessionID string) (types.Responses, error) {
	var out types.Responses
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/clone", types.CloneRequest{DestSessionID: destSessionID}, &out)
	return out, err
}

// Cancel calls POST /v1/sessions/{id}/cancel.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/cancel", nil, nil)
}

// Benchmark calls POST /v1/benchmark.
func (c *Client) Benchmark(ctx context.Context, req types.BenchmarkRequest) (types.BenchmarkInfo, error) {
	var out types.BenchmarkInfo
	err := c.do(ctx, http.MethodPost, "/v1/benchmark", req, &out)
	return out, err
}
