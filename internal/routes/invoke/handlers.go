package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"perfeval-api/internal/metrics"
	"perfeval-api/internal/setup"
	"perfeval-api/internal/shared"
	"perfeval-api/internal/stream"

	"github.com/labstack/echo/v4"
)

// InvokeRequest handles POST /api/invoke: normalize once, fan out to
// every selected model, stream results back as NDJSON frames.
func (im *InvokeManager) InvokeRequest(cc echo.Context) error {
	c := cc.(*setup.Context)
	resp := stream.NewEchoResponder(c)

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.Log.Errorw("Failed to read request body", "error", err.Error())
		return resp.SendError(shared.ErrInvalidRequest)
	}

	var req shared.InferenceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.Log.Warnw("Failed to unmarshal request body", "error", err.Error())
		return resp.SendError(shared.ErrInvalidRequest)
	}
	req.ApplyDefaults()

	if len(req.Models) == 0 {
		return resp.SendError(shared.ErrNoModels)
	}

	c.Log = c.Log.With("media_type", string(req.MediaType), "models", req.Models)

	// Normalizer failures abort the whole request before any dispatch
	// occurs - no partial stream.
	content, err := im.Normalizer.Normalize(c.Request().Context(), &req)
	if err != nil {
		metrics.RequestCount.WithLabelValues(string(req.MediaType), "media_error").Inc()
		var mediaErr *shared.MediaError
		if errors.As(err, &mediaErr) {
			c.Log.Warnw("Media normalization failed", "kind", string(mediaErr.Kind), "error", err)
			return resp.SendError(&shared.RequestError{StatusCode: http.StatusUnprocessableEntity, Err: err})
		}
		c.Log.Errorw("Media normalization failed", "error", err)
		return resp.SendError(shared.ErrInternalServerError)
	}

	resp.SetHeader("Content-Type", "application/x-ndjson")
	resp.SetHeader("Cache-Control", "no-cache")
	resp.SetHeader("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	// Workers deliberately outlive the client connection: a disconnect
	// stops the stream but never cancels in-flight backend calls.
	workerCtx := context.WithoutCancel(c.Request().Context())
	job := im.Dispatcher.Dispatch(workerCtx, content, shared.GenerationParams{
		MaxTokens:   req.MaxTokens,
		Temperature: *req.Temperature,
	}, req.Models)

	encoder := stream.NewEncoder(resp, c.Log)
	completed, err := encoder.Run(c.Request().Context(), job)
	if err != nil {
		metrics.RequestCount.WithLabelValues(string(req.MediaType), "disconnected").Inc()
		c.Log.Warnw("Stream ended early", "completed", completed, "error", err)
		return nil
	}

	metrics.RequestCount.WithLabelValues(string(req.MediaType), "completed").Inc()
	c.Log.Infow("Invoke completed", "dispatched", len(job.Dispatched()), "completed", completed)
	return nil
}

type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Backend string `json:"backend"`
}

type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ListModels handles GET /api/models.
func (im *InvokeManager) ListModels(cc echo.Context) error {
	c := cc.(*setup.Context)

	models := im.Registry.Models()
	data := make([]Model, 0, len(models))
	for _, id := range models {
		adapter, err := im.Registry.Resolve(id)
		if err != nil {
			continue
		}
		data = append(data, Model{ID: id, Object: "model", Backend: adapter.Backend()})
	}

	return c.JSON(http.StatusOK, ModelList{Object: "list", Data: data})
}
