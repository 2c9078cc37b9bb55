// Package database defines the insertions and transactions to the database
package database

import (
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// DispatchStat is one model's aggregated dispatch outcomes for a day.
type DispatchStat struct {
	Date         string
	Model        string
	RequestCount uint64
	ErrorCount   uint64
	TotalMillis  int64
}

// SaveDispatchStats upserts aggregated per-model dispatch stats. The
// table is append-mostly: one row per (date, model), counters accumulated
// across flushes.
func SaveDispatchStats(db *sql.DB, stats []DispatchStat, log *zap.SugaredLogger) error {
	if db == nil || len(stats) == 0 {
		return nil
	}

	sqlStr := `INSERT INTO dispatch_stats (
		date, model, request_count, error_count, total_millis
	) VALUES`

	vals := []any{}
	today := time.Now().Format("2006-01-02")
	for _, s := range stats {
		date := s.Date
		if date == "" {
			date = today
		}
		sqlStr += "(?, ?, ?, ?, ?),"
		vals = append(vals, date, s.Model, s.RequestCount, s.ErrorCount, s.TotalMillis)
	}
	sqlStr = sqlStr[:len(sqlStr)-1]
	sqlStr += ` ON DUPLICATE KEY UPDATE
		request_count = request_count + VALUES(request_count),
		error_count = error_count + VALUES(error_count),
		total_millis = total_millis + VALUES(total_millis)`

	if _, err := db.Exec(sqlStr, vals...); err != nil {
		log.Errorw("Failed saving dispatch stats", "error", err, "rows", len(stats))
		return err
	}
	log.Infow("Flushed dispatch stats", "rows", len(stats))
	return nil
}
