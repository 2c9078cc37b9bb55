package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific error message and StatusCode
// at the HTTP boundary. Sane defaults are listed below. Error codes should
// be bubbled where the RequestError msg is expected to be returned to the
// user; if the user should see a generic message but the log chain needs
// more detail, wrap before returning.
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

func (r *RequestError) Unwrap() error { return r.Err }

var (
	ErrInvalidRequest = &RequestError{Err: errors.New("invalid request body"), StatusCode: 400}
	ErrNoModels       = &RequestError{Err: errors.New("no models selected"), StatusCode: 400}

	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}

	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}
)

// MediaErrorKind enumerates normalizer failure classes.
type MediaErrorKind string

const (
	// NoMedia: the request claimed video but carried no blobs.
	NoMedia MediaErrorKind = "no_media"
	// ExtractionFailed: every keyframe extraction attempt failed.
	ExtractionFailed MediaErrorKind = "extraction_failed"
)

// MediaError aborts the whole request before any dispatch occurs.
type MediaError struct {
	Kind  MediaErrorKind
	Cause error
}

func (e *MediaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("media error (%s): %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("media error (%s)", e.Kind)
}

func (e *MediaError) Unwrap() error { return e.Cause }

// UnknownModelError marks an identifier no adapter claims. The dispatcher
// skips these silently; the registry still returns a typed error so
// callers that care (eg /api/models) can distinguish it.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model: %s", e.Model)
}

// AdapterError wraps any transport, auth or backend-reported failure from
// a single adapter invocation. It stays typed inside the gateway and
// serializes to its message string at the protocol boundary, so a failing
// backend never needs special-casing by the dispatcher.
type AdapterError struct {
	Backend string
	Model   string
	Cause   error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Backend, e.Model, e.Cause)
}

func (e *AdapterError) Unwrap() error { return e.Cause }
