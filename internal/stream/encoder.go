package stream

import (
	"context"
	"encoding/json"
	"time"

	"perfeval-api/internal/dispatch"
	"perfeval-api/internal/metrics"
	"perfeval-api/internal/shared"

	"go.uber.org/zap"
)

// Encoder drives one client connection. It is single-threaded per
// connection: its only suspension point is the bounded wait on the job's
// result channel, so heartbeats keep the client visibly alive no matter
// how slow the backends are.
type Encoder struct {
	Resp              Responder
	Log               *zap.SugaredLogger
	HeartbeatInterval time.Duration
}

func NewEncoder(resp Responder, log *zap.SugaredLogger) *Encoder {
	return &Encoder{
		Resp:              resp,
		Log:               log,
		HeartbeatInterval: shared.HeartbeatInterval,
	}
}

// Run emits the full event sequence for a job: start, one model_start per
// dispatched model (always ahead of that model's result), results in
// completion order interleaved with heartbeats, then complete once every
// worker is reaped.
//
// A hung worker means complete is never emitted and the connection stays
// open; heartbeats guarantee liveness, not total response time. If the
// client disconnects, the encoder stops writing and returns - in-flight
// workers run to completion and their buffered results are discarded.
func (e *Encoder) Run(ctx context.Context, job *dispatch.Job) (int, error) {
	models := job.Dispatched()

	if err := e.writeEvent(startEvent{Type: EventStart, Models: models}); err != nil {
		return 0, err
	}
	for _, model := range models {
		if err := e.writeEvent(modelStartEvent{Type: EventModelStart, Model: model}); err != nil {
			return 0, err
		}
	}

	completed := 0
	for completed < len(models) {
		select {
		case result := <-job.Results():
			if err := e.writeEvent(newResultEvent(result)); err != nil {
				e.Log.Warnw("Stopped emitting mid-stream", "completed", completed, "error", err)
				return completed, err
			}
			completed++

		case <-time.After(e.HeartbeatInterval):
			metrics.HeartbeatCount.Inc()
			if err := e.writeEvent(heartbeatEvent{Type: EventHeartbeat, Timestamp: time.Now().Unix()}); err != nil {
				e.Log.Warnw("Stopped emitting mid-stream", "completed", completed, "error", err)
				return completed, err
			}

		case <-ctx.Done():
			e.Log.Warnw("Client disconnected mid-stream, discarding remaining results",
				"completed", completed,
				"dispatched", len(models))
			return completed, ctx.Err()
		}
	}

	// Reap every worker before declaring done; their results are already
	// delivered but the goroutines must not leak across requests.
	job.Wait()

	if err := e.writeEvent(completeEvent{Type: EventComplete, Completed: completed}); err != nil {
		return completed, err
	}
	return completed, nil
}

func (e *Encoder) writeEvent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := e.Resp.SendChunk(append(data, '\n')); err != nil {
		return err
	}
	return e.Resp.Flush()
}
