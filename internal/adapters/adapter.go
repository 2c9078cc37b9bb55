// Package adapters wraps each model backend's wire protocol behind a
// uniform invocation interface so the dispatcher can treat every backend
// identically.
package adapters

import (
	"context"
	"encoding/json"

	"perfeval-api/internal/media"
	"perfeval-api/internal/shared"
)

// Adapter is a uniform invocation wrapper around one model family.
//
// Invoke makes exactly one outbound call to the backend and returns its
// raw response. The payload is opaque to the dispatcher; it is forwarded
// to the client as-is. Any transport, auth or backend-reported failure
// comes back as a *shared.AdapterError - never a panic and never a type
// the dispatcher has to special-case. Retries, if desired, belong to the
// caller's policy. Transport-level timeouts live inside each adapter's
// HTTP client or SDK config.
type Adapter interface {
	// Backend names the model family for logs and metrics.
	Backend() string

	// Invoke runs one inference call for the given model identifier.
	Invoke(ctx context.Context, model string, content *media.NormalizedContent, params shared.GenerationParams) (json.RawMessage, error)
}

func wrapErr(backend, model string, cause error) *shared.AdapterError {
	return &shared.AdapterError{Backend: backend, Model: model, Cause: cause}
}
