package trace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool создаёт пул соединений к Postgres для PGSink.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// PGSink журналирует события в таблицу trace_events.
//
// Схема:
//
//	CREATE TABLE trace_events (
//	    id        BIGSERIAL PRIMARY KEY,
//	    time      TIMESTAMPTZ NOT NULL,
//	    kind      TEXT NOT NULL,
//	    machine   TEXT NOT NULL,
//	    scope_id  TEXT NOT NULL DEFAULT '',
//	    method    TEXT NOT NULL DEFAULT '',
//	    detail    TEXT NOT NULL DEFAULT ''
//	);
//
// Ошибки записи логируются и не прерывают работу движка.
type PGSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGSink создаёт PGSink поверх готового пула.
func NewPGSink(pool *pgxpool.Pool, logger *slog.Logger) *PGSink {
	return &PGSink{pool: pool, logger: logger}
}

// Record реализует Sink.
func (s *PGSink) Record(ctx context.Context, ev Event) {
	ev = At(ev)

	query := `
		INSERT INTO trace_events (time, kind, machine, scope_id, method, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		ev.Time,
		string(ev.Kind),
		ev.Machine,
		ev.ScopeID,
		ev.Method,
		ev.Detail,
	)
	if err != nil {
		s.logger.Warn("failed to record trace event",
			"kind", ev.Kind,
			"scope_id", ev.ScopeID,
			"error", err,
		)
	}
}
