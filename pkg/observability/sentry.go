// Package observability wires error reporting to Sentry.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// SentryConfig configures the Sentry client.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// InitSentry initialises the global Sentry hub. An empty DSN disables
// reporting and is not an error.
func InitSentry(cfg SentryConfig) error {
	if cfg.DSN == "" {
		return nil
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1.0
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       rate,
		AttachStacktrace: true,
	})
}

// FlushSentry waits for buffered events to be delivered.
func FlushSentry() {
	sentry.Flush(flushTimeout)
}

func hubFor(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub().Clone()
}

// CaptureError reports err with the given tags. It is a no-op when Sentry
// has not been initialised or err is nil.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := hubFor(ctx)
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

// CaptureRequestError reports err together with the method and path of r.
func CaptureRequestError(r *http.Request, err error) {
	if err == nil {
		return
	}
	hub := hubFor(r.Context())
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(r)
		scope.SetTag("http.method", r.Method)
		scope.SetTag("http.path", r.URL.Path)
		hub.CaptureException(err)
	})
}

// CapturePanic reports a recovered panic value with its stack.
func CapturePanic(r *http.Request, recovered any, stack []byte) {
	hub := hubFor(r.Context())
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(r)
		scope.SetExtra("panic", recovered)
		scope.SetExtra("stack", string(stack))
		hub.CaptureMessage("panic in request")
	})
}
