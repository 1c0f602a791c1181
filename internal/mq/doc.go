// Package mq — транспорт протокольных сообщений поверх RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация wire-сообщений пирам
//   - consumer.go   — приём входящих сообщений этой машины
//
// Топология: общий direct exchange machina.peers, routing key —
// идентификатор машины-адресата. Каждая машина объявляет собственную
// входящую очередь и привязывает её своим идентификатором.
// Сообщения, которые не удалось разобрать, уходят в machina.dlq.
package mq
