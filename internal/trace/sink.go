package trace

import (
	"context"
	"log/slog"
	"time"
)

// EventKind — вид события журнала.
type EventKind string

const (
	// EventScopeCreated — создан новый scope.
	EventScopeCreated EventKind = "SCOPE_CREATED"

	// EventScopeSuspended — scope приостановлен (ожидание ответа или события).
	EventScopeSuspended EventKind = "SCOPE_SUSPENDED"

	// EventScopeResumed — выполнение scope возобновлено.
	EventScopeResumed EventKind = "SCOPE_RESUMED"

	// EventScopeCompleted — scope успешно завершён.
	EventScopeCompleted EventKind = "SCOPE_COMPLETED"

	// EventScopeFailed — scope завершён с ошибкой.
	EventScopeFailed EventKind = "SCOPE_FAILED"

	// EventScopeCancelled — scope отменён (явно или watchdog'ом).
	EventScopeCancelled EventKind = "SCOPE_CANCELLED"

	// EventMessageIn — входящее сообщение принято к обработке.
	EventMessageIn EventKind = "MESSAGE_IN"

	// EventMessageOut — исходящее сообщение передано транспорту.
	EventMessageOut EventKind = "MESSAGE_OUT"
)

// Event — одна запись журнала.
type Event struct {
	// Time — время события.
	Time time.Time

	// Kind — вид события.
	Kind EventKind

	// Machine — идентификатор машины.
	Machine string

	// ScopeID — id scope'а, если событие относится к scope.
	ScopeID string

	// Method — имя composite method, если применимо.
	Method string

	// Detail — произвольное описание (имя сообщения, текст ошибки).
	Detail string
}

// Sink принимает события журнала.
//
// Record не должен блокировать движок надолго: реализация либо пишет
// синхронно в дешёвый приёмник, либо буферизует самостоятельно.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// NopSink отбрасывает все события.
type NopSink struct{}

// Record реализует Sink.
func (NopSink) Record(context.Context, Event) {}

// SlogSink пишет события в structured log на уровне Debug.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink создаёт SlogSink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Record реализует Sink.
func (s *SlogSink) Record(ctx context.Context, ev Event) {
	s.logger.DebugContext(ctx, "trace event",
		"kind", ev.Kind,
		"machine", ev.Machine,
		"scope_id", ev.ScopeID,
		"method", ev.Method,
		"detail", ev.Detail,
	)
}

// At проставляет время события, если оно не задано.
func At(ev Event) Event {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	return ev
}
