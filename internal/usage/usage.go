// Package usage buckets per-model dispatch outcomes and flushes them to
// the stats table on an interval.
package usage

import (
	"database/sql"
	"sync"
	"time"

	"perfeval-api/internal/database"
	"perfeval-api/internal/dispatch"
	"perfeval-api/internal/shared"

	"go.uber.org/zap"
)

type Collector struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	timer   *time.Timer
	log     *zap.SugaredLogger
	db      *sql.DB
}

type bucket struct {
	model       string
	requests    uint64
	errors      uint64
	totalMillis int64
}

// NewCollector accepts a nil db; recording still aggregates in memory but
// flushes become no-ops, so the gateway runs fine without MySQL.
func NewCollector(log *zap.SugaredLogger, db *sql.DB) *Collector {
	return &Collector{
		log:     log,
		db:      db,
		buckets: map[string]*bucket{},
	}
}

// Record folds one worker result into its model's bucket. The first
// record after a flush arms the flush timer.
func (c *Collector) Record(r dispatch.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[r.Model]
	if !ok {
		b = &bucket{model: r.Model}
		c.buckets[r.Model] = b
	}
	b.requests++
	b.totalMillis += r.ElapsedMillis
	if r.Status == dispatch.StatusError {
		b.errors++
	}

	if c.timer == nil {
		c.timer = time.AfterFunc(shared.BucketFlushInterval, func() {
			for attempt := 0; attempt < shared.MaxFlushRetries; attempt++ {
				if err := c.Flush(); err == nil {
					return
				}
				c.log.Warnw("Flush failed, retrying", "attempt", attempt+1)
				time.Sleep(shared.BucketRetryDelay)
			}
			c.log.Errorw("Dropping dispatch stats after repeated flush failures")
			c.mu.Lock()
			c.buckets = map[string]*bucket{}
			c.mu.Unlock()
		})
	}
}

// Flush swaps the bucket map out under the lock and writes the drained
// buckets. On write failure the drained counts are merged back so the
// retry loop does not lose them.
func (c *Collector) Flush() error {
	c.mu.Lock()
	drained := c.buckets
	c.buckets = map[string]*bucket{}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	stats := make([]database.DispatchStat, 0, len(drained))
	for _, b := range drained {
		stats = append(stats, database.DispatchStat{
			Model:        b.model,
			RequestCount: b.requests,
			ErrorCount:   b.errors,
			TotalMillis:  b.totalMillis,
		})
	}

	if err := database.SaveDispatchStats(c.db, stats, c.log); err != nil {
		c.merge(drained)
		return err
	}
	return nil
}

func (c *Collector) merge(drained map[string]*bucket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for model, old := range drained {
		b, ok := c.buckets[model]
		if !ok {
			c.buckets[model] = old
			continue
		}
		b.requests += old.requests
		b.errors += old.errors
		b.totalMillis += old.totalMillis
	}
}

// Shutdown flushes whatever is buffered. Called once at process exit.
func (c *Collector) Shutdown() {
	c.log.Info("Shutting down usage collector")
	if err := c.Flush(); err != nil {
		c.log.Errorw("Final flush failed", "error", err)
	}
}
