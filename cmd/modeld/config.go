package main

import (
	"os"
	"strings"
)

// envDefault returns os.Getenv(key) when set, else def — the same
// flag-default-from-environment idiom the teacher's original main.go used
// for MODELD_ADDR, generalized into one helper reused by every flag below
// instead of repeated per-flag os.Getenv checks.
func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma-separated flag value into trimmed, non-empty
// tokens — used for --cors-origins/--cors-methods/--cors-headers, which
// accept the same comma-separated shape chi/cors.Options.AllowedOrigins
// etc. take as []string. Returns nil for an empty string so an unset flag
// produces a nil slice rather than a one-element slice holding "".
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
