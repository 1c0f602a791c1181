package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Machina/internal/mq"
	"github.com/shaiso/Machina/internal/wire"
)

// Client — клиент запрос/ответ поверх RabbitMQ.
//
// Клиент выступает машиной с одноразовым идентификатором: объявляет
// себе эксклюзивную очередь, привязанную этим идентификатором к
// exchange межмашинного обмена, и ждёт ответ по correlation id.
type Client struct {
	conn      *mq.Connection
	publisher *mq.Publisher
	sender    string
	timeout   time.Duration
}

// NewClient подключается к RabbitMQ и готовит очередь ответов.
func NewClient(amqpURL string, timeout time.Duration) (*Client, error) {
	// CLI шумит в stderr только через вывод команд.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	conn, err := mq.Dial(amqpURL, logger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:      conn,
		publisher: mq.NewPublisher(conn, logger),
		sender:    "machina-cli-" + uuid.NewString(),
		timeout:   timeout,
	}

	if err := c.declareReplyQueue(); err != nil {
		conn.Close()
		return nil, err
	}

	return c, nil
}

// Close закрывает соединение.
func (c *Client) Close() error {
	return c.conn.Close()
}

// declareReplyQueue объявляет эксклюзивную очередь ответов клиента.
func (c *Client) declareReplyQueue() error {
	return c.conn.WithChannel(func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"machina.cli."+c.sender, // name
			false,                   // durable
			true,                    // delete when unused
			true,                    // exclusive
			false,                   // no-wait
			nil,                     // arguments
		)
		if err != nil {
			return fmt.Errorf("declare reply queue: %w", err)
		}

		err = ch.QueueBind(q.Name, c.sender, string(mq.ExchangePeers), false, nil)
		if err != nil {
			return fmt.Errorf("bind reply queue: %w", err)
		}

		return nil
	})
}

// Request публикует запрос и ждёт первый ответ с тем же correlation id.
func (c *Client) Request(ctx context.Context, target string, ns wire.Namespace, name string, payload wire.Payload) (*wire.Message, error) {
	correlationID := uuid.NewString()
	req := wire.NewRequest(c.sender, target, ns, name, payload, uuid.NewString(), correlationID)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var deliveries <-chan amqp.Delivery
	err := c.conn.WithChannel(func(ch *amqp.Channel) error {
		var err error
		deliveries, err = ch.Consume(
			"machina.cli."+c.sender, // queue
			"",                      // consumer tag
			true,                    // auto-ack: ответ одноразовый
			true,                    // exclusive
			false,                   // no-local
			false,                   // no-wait
			nil,                     // args
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("consume reply queue: %w", err)
	}

	if err := c.publisher.Publish(ctx, req); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no response from %s within %s", target, c.timeout)
		case raw, ok := <-deliveries:
			if !ok {
				return nil, fmt.Errorf("reply channel closed")
			}

			msg, err := wire.Decode(raw.Body)
			if err != nil {
				continue
			}
			if msg.CorrelationID != correlationID {
				continue
			}

			if msg.IsError() {
				p := msg.Payload.Error
				return msg, fmt.Errorf("%s: %s", p.Code, p.Message)
			}
			return msg, nil
		}
	}
}
