package stream

import (
	"net/http"

	"perfeval-api/internal/setup"
	"perfeval-api/internal/shared"
)

// Responder decouples frame writes from the HTTP framework so the encoder
// can be driven against a buffer in tests.
type Responder interface {
	SendJSON(status int, v any) error
	SendChunk(data []byte) error
	SendError(err error) error
	SetHeader(key, value string)
	Flush() error
}

type EchoResponder struct {
	c *setup.Context
}

func NewEchoResponder(c *setup.Context) Responder {
	return &EchoResponder{c: c}
}

func (r *EchoResponder) SendJSON(status int, v any) error {
	return r.c.JSON(status, v)
}

func (r *EchoResponder) SendChunk(data []byte) error {
	_, err := r.c.Response().Write(data)
	return err
}

func (r *EchoResponder) Flush() error {
	r.c.Response().Flush()
	return nil
}

func (r *EchoResponder) SendError(err error) error {
	if reqErr, ok := err.(*shared.RequestError); ok {
		return r.c.JSON(reqErr.StatusCode, map[string]string{"error": reqErr.Err.Error()})
	}
	return r.c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (r *EchoResponder) SetHeader(key, value string) {
	r.c.Response().Header().Set(key, value)
}
