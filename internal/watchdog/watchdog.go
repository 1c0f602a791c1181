package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Machina/internal/wire"
)

// Reaper — источник зависших scope'ов.
// Реализуется протокольным менеджером.
type Reaper interface {
	ReapStale(ctx context.Context, ttl time.Duration) int
	Drain() []*wire.Message
}

// Emitter — получатель исходящих сообщений, порождённых чисткой.
// В узле это publisher транспорта; без транспорта сообщения
// отбрасываются с предупреждением в лог.
type Emitter func(ctx context.Context, msgs []*wire.Message) error

// Watchdog запускает чистку по cron-расписанию.
type Watchdog struct {
	reaper   Reaper
	emitter  Emitter
	logger   *slog.Logger
	schedule string
	ttl      time.Duration

	cron *cron.Cron
}

// Config — конфигурация Watchdog.
type Config struct {
	// Reaper — менеджер, выполняющий чистку.
	Reaper Reaper

	// Emitter — публикация порождённых сообщений (опционально).
	Emitter Emitter

	// Logger — логгер (default: slog.Default()).
	Logger *slog.Logger

	// Schedule — cron-выражение (default: "@every 1m").
	Schedule string

	// TTL — максимальное время неактивности scope'а (default: 30m).
	TTL time.Duration
}

// New создаёт Watchdog.
func New(cfg Config) *Watchdog {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	return &Watchdog{
		reaper:   cfg.Reaper,
		emitter:  cfg.Emitter,
		logger:   logger,
		schedule: schedule,
		ttl:      ttl,
	}
}

// Start регистрирует задачу чистки и запускает планировщик.
func (w *Watchdog) Start(ctx context.Context) error {
	w.cron = cron.New()

	_, err := w.cron.AddFunc(w.schedule, func() { w.Tick(ctx) })
	if err != nil {
		return fmt.Errorf("schedule watchdog %q: %w", w.schedule, err)
	}

	w.cron.Start()
	w.logger.Info("watchdog started", "schedule", w.schedule, "ttl", w.ttl)
	return nil
}

// Stop останавливает планировщик и дожидается завершения текущего тика.
func (w *Watchdog) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
	w.logger.Info("watchdog stopped")
}

// Tick выполняет один проход чистки.
//
// Ошибка публикации не фатальна: scope'ы уже отменены, а вызывающие
// стороны рано или поздно снимет их собственный watchdog.
func (w *Watchdog) Tick(ctx context.Context) {
	reaped := w.reaper.ReapStale(ctx, w.ttl)
	outbound := w.reaper.Drain()

	if reaped == 0 && len(outbound) == 0 {
		return
	}

	w.logger.Info("watchdog tick completed", "reaped", reaped, "outbound", len(outbound))

	if len(outbound) == 0 {
		return
	}
	if w.emitter == nil {
		w.logger.Warn("no transport, dropping watchdog messages", "count", len(outbound))
		return
	}
	if err := w.emitter(ctx, outbound); err != nil {
		w.logger.Warn("failed to publish watchdog messages", "error", err)
	}
}
