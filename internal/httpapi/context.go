package httpapi

import (
	"context"
	"net/http"
	"time"

	"modeld/internal/session"
)

// serverBaseCtx is a process-level context that can be canceled on shutdown.
// Defaults to Background if not set.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context that is canceled when either a or b is done.
// The returned cancel func must be called to release the goroutine when handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		}
	}()
	return ctx, cancel
}

// requestContext joins the process base context with r's own context and,
// when operationTimeout is set, a deadline on top of both.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if operationTimeout <= 0 {
		return ctx, cancel
	}
	timeoutCtx, timeoutCancel := context.WithTimeout(ctx, time.Duration(operationTimeout)*time.Second)
	return timeoutCtx, func() { timeoutCancel(); cancel() }
}

// watchCancellation calls sess.CancelProcess once ctx ends, so a client
// disconnect or an operationTimeout deadline reaches the in-flight task the
// same way Session.CancelProcess would if the embedder called it directly
// (spec §6 Session::CancelProcess). The returned stop func releases the
// watcher goroutine once the handler's own work is done.
func watchCancellation(ctx context.Context, sess *session.Session) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			sess.CancelProcess()
		case <-done:
		}
	}()
	return func() { close(done) }
}
