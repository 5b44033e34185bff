// Package status defines the error taxonomy shared by every layer of the
// runtime: the registry, resource manager, scheduler, session facade, and
// the HTTP embedder surface all return *Status (or a plain error wrapping
// one) instead of ad hoc error structs, so callers can classify failures
// with a single switch.
package status

import (
	"fmt"
	"sort"
)

// Kind enumerates the error categories every core operation can return.
type Kind int

const (
	// OK is never returned as an error; it exists so the zero Kind is not
	// confused with a real failure category.
	OK Kind = iota
	InvalidArgument
	NotFound
	AlreadyExists
	FailedPrecondition
	Unimplemented
	Internal
	Cancelled
	DeadlineExceeded
	// Unavailable signals backpressure: the caller should retry later.
	// Grounded on the teacher's tooBusyError, which the HTTP layer maps to
	// 429 rather than 503 (despite the gRPC-style name) to match what
	// internal/httpapi/server.go already did for queue timeouts.
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case FailedPrecondition:
		return "FailedPrecondition"
	case Unimplemented:
		return "Unimplemented"
	case Internal:
		return "Internal"
	case Cancelled:
		return "Cancelled"
	case DeadlineExceeded:
		return "DeadlineExceeded"
	case Unavailable:
		return "Unavailable"
	default:
		return "OK"
	}
}

// Status is the runtime's error type. Fields is an optional bag of
// structured key=value context (used verbatim by cancellation reasons —
// see Session cancel errors).
type Status struct {
	Kind    Kind
	Message string
	Fields  map[string]string
}

func (s *Status) Error() string {
	if len(s.Fields) == 0 {
		return fmt.Sprintf("%s: %s", s.Kind, s.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", s.Kind, s.Message, formatFields(s.Fields))
}

func formatFields(fields map[string]string) string {
	// Deterministic order matters for the structured cancel-reason string
	// (spec §4.4), so keys are emitted in fieldOrder's fixed order instead
	// of map order.
	out := ""
	for _, k := range fieldOrder(fields) {
		if out != "" {
			out += ";"
		}
		out += k + "=" + fields[k]
	}
	return out
}

// fieldOrder returns keys in the stable order cancellation reasons are
// documented with: cancel_reason_code, origin_component, generation_id,
// session_id, is_prefill, is_decode, op_id, then anything else
// alphabetically never relied upon by tests.
func fieldOrder(fields map[string]string) []string {
	preferred := []string{"cancel_reason_code", "origin_component", "generation_id", "session_id", "is_prefill", "is_decode", "op_id"}
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, k := range preferred {
		if v, ok := fields[k]; ok {
			_ = v
			out = append(out, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// New constructs a *Status with no structured fields.
func New(kind Kind, format string, args ...any) *Status {
	return &Status{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithFields returns a copy of s carrying the given structured fields,
// merged over any existing ones.
func (s *Status) WithFields(fields map[string]string) *Status {
	merged := make(map[string]string, len(s.Fields)+len(fields))
	for k, v := range s.Fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Status{Kind: s.Kind, Message: s.Message, Fields: merged}
}

func kindOf(err error) (Kind, bool) {
	if err == nil {
		return OK, false
	}
	if s, ok := err.(*Status); ok {
		return s.Kind, true
	}
	return OK, false
}

// Is reports whether err is a *Status of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := kindOf(err)
	return ok && k == kind
}

func IsInvalidArgument(err error) bool    { return Is(err, InvalidArgument) }
func IsNotFound(err error) bool           { return Is(err, NotFound) }
func IsAlreadyExists(err error) bool      { return Is(err, AlreadyExists) }
func IsFailedPrecondition(err error) bool { return Is(err, FailedPrecondition) }
func IsUnimplemented(err error) bool      { return Is(err, Unimplemented) }
func IsInternal(err error) bool           { return Is(err, Internal) }
func IsCancelled(err error) bool          { return Is(err, Cancelled) }
func IsDeadlineExceeded(err error) bool   { return Is(err, DeadlineExceeded) }
func IsUnavailable(err error) bool        { return Is(err, Unavailable) }

// HTTPStatusCode maps a Status kind to the HTTP status the embedder surface
// should respond with, generalizing the teacher's
// IsModelNotFound->404 / IsTooBusy->429 switch in internal/httpapi/server.go
// into one table driven by Kind instead of one bespoke error type per code.
func HTTPStatusCode(err error) int {
	k, ok := kindOf(err)
	if !ok {
		return 500
	}
	switch k {
	case InvalidArgument:
		return 400
	case NotFound:
		return 404
	case AlreadyExists:
		return 409
	case FailedPrecondition:
		return 412
	case Unimplemented:
		return 501
	case Cancelled:
		return 499
	case DeadlineExceeded:
		return 504
	case Unavailable:
		return 429
	case Internal:
		return 500
	default:
		return 500
	}
}
