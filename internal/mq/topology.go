package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// Exchanges.
const (
	// ExchangePeers — direct exchange межмашинного обмена.
	// Routing key — идентификатор машины-адресата.
	ExchangePeers Exchange = "machina.peers"

	// ExchangeDLQ — обменник для сообщений, которые не удалось разобрать.
	ExchangeDLQ Exchange = "machina.dlq"
)

// QueueDLQ — очередь нечитаемых сообщений, разбор вручную.
const QueueDLQ Queue = "dlq.messages"

// InboundQueue возвращает имя входящей очереди машины.
func InboundQueue(machine string) Queue {
	return Queue("machina." + machine + ".inbound")
}

// DeclareTopology объявляет обменники, входящую очередь машины и
// привязки. Идемпотентна: повторное объявление существующей топологии
// не является ошибкой.
func DeclareTopology(conn *Connection, machine string) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		exchanges := []Exchange{ExchangePeers, ExchangeDLQ}
		for _, ex := range exchanges {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"direct",   // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		// Нечитаемые сообщения из входящей очереди уходят в DLQ.
		inboundArgs := amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(QueueDLQ),
		}

		queues := []struct {
			name Queue
			args amqp.Table
		}{
			{InboundQueue(machine), inboundArgs},
			{QueueDLQ, nil},
		}
		for _, q := range queues {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		bindings := []struct {
			queue      Queue
			routingKey string
			exchange   Exchange
		}{
			{InboundQueue(machine), machine, ExchangePeers},
			{QueueDLQ, string(QueueDLQ), ExchangeDLQ},
		}
		for _, b := range bindings {
			err := ch.QueueBind(
				string(b.queue),    // queue name
				b.routingKey,       // routing key
				string(b.exchange), // exchange
				false,              // no-wait
				nil,                // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}
