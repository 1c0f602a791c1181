// Package wire определяет сообщения протокола обмена между машинами.
//
// Включает:
//   - message.go — Message, Header, версия протокола, конструкторы
//   - payload.go — закрытое объединение полезных нагрузок по namespace
//   - codec.go   — JSON-кодек для транспорта
//
// Каждое сообщение имеет уникальный identifier и correlation_id,
// общий для запроса и всех его ответов. По correlation_id протокольный
// менеджер находит приостановленный scope и возобновляет его.
package wire
