// Package dispatch fans one normalized request out to N backend workers
// and funnels their results through a single channel.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"perfeval-api/internal/adapters"
	"perfeval-api/internal/media"
	"perfeval-api/internal/metrics"
	"perfeval-api/internal/shared"

	"go.uber.org/zap"
)

// Status tags a worker outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is exactly one worker's outcome, transferred by value over the
// job channel. Producer and consumer share no mutable state.
type Result struct {
	Model         string
	Status        Status
	Payload       json.RawMessage
	Error         string
	ElapsedMillis int64
}

// Job is a live fan-out. Results arrive in completion order, not dispatch
// order; the channel is buffered to the worker count so no worker ever
// blocks on a slow consumer.
type Job struct {
	results    chan Result
	dispatched []string
	wg         sync.WaitGroup
}

// Results is the single channel the consumer blocks on.
func (j *Job) Results() <-chan Result { return j.results }

// Dispatched returns the identifiers actually started, duplicates
// included, in dispatch order. Its length is the consumer's completion
// count.
func (j *Job) Dispatched() []string { return j.dispatched }

// Wait blocks until every worker has fully terminated, then closes the
// result channel. Workers whose results were already consumed still get
// reaped here so nothing leaks across requests.
func (j *Job) Wait() {
	j.wg.Wait()
	close(j.results)
}

// Recorder observes every worker result, delivered or not. Used for the
// usage stats pipeline.
type Recorder interface {
	Record(Result)
}

type Dispatcher struct {
	Registry *adapters.Registry
	Log      *zap.SugaredLogger
	Recorder Recorder
}

func NewDispatcher(registry *adapters.Registry, recorder Recorder, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{Registry: registry, Recorder: recorder, Log: log}
}

// Dispatch starts one worker per resolvable model identifier. Duplicates
// are dispatched independently; identifiers no adapter claims are skipped,
// not errored. Workers share only the read-only content; the dispatcher
// never retries or cancels a worker mid-flight, so a hung backend stalls
// only its own result.
func (d *Dispatcher) Dispatch(ctx context.Context, content *media.NormalizedContent, params shared.GenerationParams, models []string) *Job {
	type worker struct {
		model   string
		adapter adapters.Adapter
	}

	workers := make([]worker, 0, len(models))
	for _, model := range models {
		adapter, err := d.Registry.Resolve(model)
		if err != nil {
			var unknown *shared.UnknownModelError
			if errors.As(err, &unknown) {
				d.Log.Warnw("Skipping unknown model", "model", model)
				continue
			}
			d.Log.Errorw("Failed resolving model", "model", model, "error", err)
			continue
		}
		workers = append(workers, worker{model: model, adapter: adapter})
	}

	job := &Job{
		results:    make(chan Result, len(workers)),
		dispatched: make([]string, 0, len(workers)),
	}
	for _, w := range workers {
		job.dispatched = append(job.dispatched, w.model)
	}

	for _, w := range workers {
		job.wg.Add(1)
		go func(w worker) {
			defer job.wg.Done()
			metrics.InflightWorkers.Inc()
			defer metrics.InflightWorkers.Dec()

			start := time.Now()
			payload, err := w.adapter.Invoke(ctx, w.model, content, params)
			elapsed := time.Since(start)

			result := Result{
				Model:         w.model,
				ElapsedMillis: elapsed.Milliseconds(),
			}
			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()
				d.Log.Warnw("Backend invocation failed",
					"model", w.model,
					"backend", w.adapter.Backend(),
					"elapsed_ms", elapsed.Milliseconds(),
					"error", err)
			} else {
				result.Status = StatusSuccess
				result.Payload = payload
				d.Log.Infow("Backend invocation completed",
					"model", w.model,
					"backend", w.adapter.Backend(),
					"elapsed_ms", elapsed.Milliseconds())
			}

			metrics.DispatchDuration.WithLabelValues(w.model, w.adapter.Backend()).Observe(elapsed.Seconds())
			metrics.DispatchResults.WithLabelValues(w.model, w.adapter.Backend(), string(result.Status)).Inc()
			if d.Recorder != nil {
				d.Recorder.Record(result)
			}

			job.results <- result
		}(w)
	}

	return job
}
