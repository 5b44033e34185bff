package httpapi

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"info":  LevelInfo,
		"debug": LevelDebug,
		"weird": LevelInfo, // default
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("header override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	if got := requestLogLevel(r); got != defaultLogLevel {
		t.Fatalf("expected default level with no overrides, got %v", got)
	}
}

func TestLoggingMiddleware_LogsAtInfoOrAbove(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	defer log.SetOutput(orig)
	log.SetOutput(&buf)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := LoggingMiddleware(next)

	r := httptest.NewRequest("GET", "/x?log=info", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)
	if !bytes.Contains(buf.Bytes(), []byte("httpapi:")) {
		t.Fatalf("expected a log line, got %q", buf.String())
	}
}

func TestLoggingMiddleware_SkipsBelowInfo(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	defer log.SetOutput(orig)
	log.SetOutput(&buf)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := LoggingMiddleware(next)

	r := httptest.NewRequest("GET", "/x?log=off", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)
	if buf.Len() != 0 {
		t.Fatalf("expected no log output at LevelOff, got %q", buf.String())
	}
}
