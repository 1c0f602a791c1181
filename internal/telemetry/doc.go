// Package telemetry — structured logging и метрики.
//
// Логирование построено на log/slog: SetupLogger настраивает формат
// и уровень из окружения, With* добавляют сквозные идентификаторы
// (machine_id, scope_id, correlation_id). Метрики — Prometheus
// коллекторы, обновляемые протокольным менеджером и отдаваемые
// через /metrics в бинарнике узла.
package telemetry
