package sched

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"rag-chat/internal/infra/metrics"
)

// PoolStats is a snapshot of a connection pool.
type PoolStats struct {
	Total, Idle, InUse, Max int32
	Acquires                int64
}

// StatsSource reads the current pool state.
type StatsSource func() PoolStats

func PgxStats(pool *pgxpool.Pool) StatsSource {
	return func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			Total:    s.TotalConns(),
			Idle:     s.IdleConns(),
			InUse:    s.AcquiredConns(),
			Max:      s.MaxConns(),
			Acquires: s.AcquireCount(),
		}
	}
}

func SQLStats(db *sql.DB) StatsSource {
	return func() PoolStats {
		s := db.Stats()
		return PoolStats{
			Total: int32(s.OpenConnections),
			Idle:  int32(s.Idle),
			InUse: int32(s.InUse),
			Max:   int32(s.MaxOpenConnections),
			// database/sql has no acquire counter; WaitCount is the closest
			Acquires: s.WaitCount,
		}
	}
}

// PoolStatsWorker publishes pool gauges on a fixed interval.
type PoolStatsWorker struct {
	interval time.Duration
	source   StatsSource
	log      *zerolog.Logger
}

func NewPoolStatsWorker(interval time.Duration, source StatsSource, logger *zerolog.Logger) *PoolStatsWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	l := logger.With().Str("component", "PoolStatsWorker").Logger()
	return &PoolStatsWorker{interval: interval, source: source, log: &l}
}

// Run reports once immediately and then on every tick until ctx ends.
func (w *PoolStatsWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting pool stats worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.report()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping pool stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *PoolStatsWorker) report() {
	s := w.source()
	metrics.SetDBPoolStats(s.Total, s.Idle, s.InUse, s.Max)
	metrics.SetDBAcquireCount(s.Acquires)
	if s.Max > 0 && s.InUse == s.Max {
		w.log.Warn().Int32("in_use", s.InUse).Msg("connection pool saturated")
	}
}
