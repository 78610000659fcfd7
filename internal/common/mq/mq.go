package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"kitchen-sync/internal/common/config"
)

// SyncExchange carries snapshot change signals between processes sharing a
// durable snapshot key. Fanout: every process sees every write.
const SyncExchange = "pos.snapshot.changed"

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func Dial(cfg config.RabbitMQConfig) (*Client, error) {
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, vhost)
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{conn: conn, ch: ch}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

// DeclareSyncTopology declares the fanout exchange. Idempotent.
func (c *Client) DeclareSyncTopology() error {
	return c.ch.ExchangeDeclare(SyncExchange, "fanout", true, false, false, false, nil)
}

// PublishChange broadcasts a change signal. Signals are transient on
// purpose: a missed one is healed by the next successful sync, and stale
// signals after a restart would only cause redundant reloads.
func (c *Client) PublishChange(ctx context.Context, originID string, body []byte) error {
	return c.ch.PublishWithContext(ctx, SyncExchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"x-origin": originID},
		Body:         body,
	})
}

// ConsumeChanges binds a private auto-delete queue to the fanout exchange
// and returns its delivery stream.
func (c *Client) ConsumeChanges(consumer string) (<-chan amqp.Delivery, error) {
	q, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, err
	}
	if err := c.ch.QueueBind(q.Name, "", SyncExchange, false, nil); err != nil {
		return nil, err
	}
	return c.ch.Consume(q.Name, consumer, true, true, false, false, nil)
}
