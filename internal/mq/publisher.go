package mq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Machina/internal/wire"
)

// Publisher публикует wire-сообщения в exchange межмашинного обмена.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish отправляет сообщение машине msg.Target.
func (p *Publisher) Publish(ctx context.Context, msg *wire.Message) error {
	if msg.Target == "" {
		return fmt.Errorf("message %s has no target", msg.Identifier)
	}

	body, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangePeers), // exchange
			msg.Target,            // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				MessageId:     msg.Identifier,
				CorrelationId: msg.CorrelationID,
				Timestamp:     msg.Header.Timestamp,
				Body:          body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", msg.Target, err)
		}

		p.logger.Debug("published message",
			"target", msg.Target,
			"message_id", msg.Identifier,
			"name", msg.Header.Name,
		)

		return nil
	})
}

// PublishAll отправляет пакет сообщений; останавливается на первой ошибке.
func (p *Publisher) PublishAll(ctx context.Context, msgs []*wire.Message) error {
	for _, msg := range msgs {
		if err := p.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
