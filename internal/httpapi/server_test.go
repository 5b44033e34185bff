package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"modeld/internal/httpapi"
	"modeld/internal/session"
	"modeld/pkg/engine"
	"modeld/pkg/types"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.Create(types.EngineSettings{
		Model:         types.ModelAssets{ModelPath: "/tmp/does-not-need-to-exist.gguf"},
		MainExecutor:  types.MainExecutorSettings{Backend: types.BackendCPU, MaxNumTokens: 512},
		SamplerParams: &types.SamplerParams{Type: types.SamplerGreedy, K: 1, Temperature: 0},
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

// byteApplier is a test-only TemplateApplier: it is not a real tokenizer
// (spec §1 leaves tokenization out of scope), it just turns each byte of
// the message text into a token ID so /messages can be exercised
// end-to-end against the stub executor.
type byteApplier struct{}

func (byteApplier) ApplyPrompt(msg types.Message) ([]int32, error) {
	toks := make([]int32, len(msg.Text))
	for i, b := range []byte(msg.Text) {
		toks[i] = int32(b)
	}
	return toks, nil
}
func (byteApplier) TemplateSuffix() []int32 { return nil }

func newTestServer(t *testing.T, applier session.TemplateApplier) *httptest.Server {
	t.Helper()
	eng := newTestEngine(t)
	mux := httpapi.NewMux(eng, applier)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthzAndReadyz(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateGetDeleteSession(t *testing.T) {
	srv := newTestServer(t, nil)

	var created types.CreateSessionResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", types.CreateSessionRequest{
		Config: types.SessionConfig{Sampler: types.SamplerParams{Type: types.SamplerGreedy, Temperature: 0}, MaxOutputTokens: 4},
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, created.SessionID)

	var info types.SessionInfoResponse
	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/"+created.SessionID, nil, &info)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, created.SessionID, info.SessionID)
	require.Equal(t, "fresh", info.State)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/v1/sessions/"+created.SessionID, nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/"+created.SessionID, nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPrefillThenDecodeSync(t *testing.T) {
	srv := newTestServer(t, nil)

	var created types.CreateSessionResponse
	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", types.CreateSessionRequest{
		Config: types.SessionConfig{Sampler: types.SamplerParams{Type: types.SamplerGreedy, Temperature: 0}, MaxOutputTokens: 4},
	}, &created)

	var prefillResp types.Responses
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+created.SessionID+"/prefill", types.PrefillRequest{
		Tokens: []int32{1, 2, 3},
	}, &prefillResp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, types.TaskDone, prefillResp.State)

	var decodeResp types.Responses
	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+created.SessionID+"/decode", types.DecodeRequest{
		MaxOutputTokens: 4,
	}, &decodeResp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, types.TaskDone, decodeResp.State)
}

func TestDecodeStreamNDJSON(t *testing.T) {
	srv := newTestServer(t, nil)

	var created types.CreateSessionResponse
	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", types.CreateSessionRequest{
		Config: types.SessionConfig{Sampler: types.SamplerParams{Type: types.SamplerGreedy, Temperature: 0}, MaxOutputTokens: 4},
	}, &created)
	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+created.SessionID+"/prefill", types.PrefillRequest{Tokens: []int32{1}}, nil)

	body, err := json.Marshal(types.DecodeRequest{MaxOutputTokens: 3})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/sessions/"+created.SessionID+"/decode?stream=ndjson", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	dec := json.NewDecoder(resp.Body)
	var last types.Responses
	count := 0
	for {
		var chunk types.Responses
		if err := dec.Decode(&chunk); err != nil {
			break
		}
		last = chunk
		count++
	}
	require.Greater(t, count, 0)
	require.Equal(t, types.TaskDone, last.State)
}

func TestMessagesEndpointWithoutApplierReturns501(t *testing.T) {
	srv := newTestServer(t, nil)
	var created types.CreateSessionResponse
	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", types.CreateSessionRequest{
		Config: types.SessionConfig{Sampler: types.SamplerParams{Type: types.SamplerGreedy, Temperature: 0}, MaxOutputTokens: 4},
	}, &created)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+created.SessionID+"/messages", types.MessageRequest{
		Message: types.Message{Role: types.RoleUser, Text: "hi"},
	}, nil)
	require.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestMessagesEndpointWithApplier(t *testing.T) {
	srv := newTestServer(t, byteApplier{})
	var created types.CreateSessionResponse
	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", types.CreateSessionRequest{
		Config: types.SessionConfig{Sampler: types.SamplerParams{Type: types.SamplerGreedy, Temperature: 0}, MaxOutputTokens: 4},
	}, &created)

	var out types.Responses
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+created.SessionID+"/messages", types.MessageRequest{
		Message:         types.Message{Role: types.RoleUser, Text: "hi"},
		MaxOutputTokens: 4,
	}, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, types.TaskDone, out.State)
}

func TestCancelEndpointAccepted(t *testing.T) {
	srv := newTestServer(t, nil)
	var created types.CreateSessionResponse
	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", types.CreateSessionRequest{
		Config: types.SessionConfig{Sampler: types.SamplerParams{Type: types.SamplerGreedy, Temperature: 0}, MaxOutputTokens: 4},
	}, &created)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+created.SessionID+"/cancel", nil, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestBenchmarkEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	var info types.BenchmarkInfo
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/benchmark", types.BenchmarkRequest{
		ModelPath: "/tmp/does-not-need-to-exist.gguf",
		Backend:   types.BackendCPU,
		PrefillN:  4,
		DecodeN:   2,
	}, &info)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, info.DecodeTurns, 2)
}

func TestSessionNotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/does-not-exist", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
