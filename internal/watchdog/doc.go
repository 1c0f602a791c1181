// Package watchdog — периодическая чистка зависших scope'ов.
//
// Watchdog по cron-расписанию вызывает ReapStale протокольного
// менеджера: scope'ы, не проявлявшие активности дольше TTL,
// отменяются, а их вызывающие стороны получают ERROR. Исходящие
// сообщения, порождённые чисткой, публикуются в транспорт.
package watchdog
