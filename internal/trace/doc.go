// Package trace — журнал событий движка.
//
// Sink — явная зависимость, передаваемая в конструкторы движка и
// протокольного менеджера; глобального состояния у пакета нет.
// Поставляются три реализации:
//   - NopSink  — отбрасывает события (тесты, минимальная сборка)
//   - SlogSink — пишет события в structured log
//   - PGSink   — журналирует события в таблицу trace_events (Postgres)
package trace
