package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tazhibayda/feed-service/internal/log"
)

// ErrPermanent marks a delivery that can never succeed, e.g. an undecodable
// body. Such deliveries are dropped instead of requeued.
var ErrPermanent = errors.New("queue: permanent failure")

// Handler processes one delivery body.
type Handler func(ctx context.Context, body []byte) error

// Consumer reads one durable queue bound to a topic exchange.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	q    string
}

func NewConsumer(url, exchange, queue string, keys ...string) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare %s: %w", exchange, err)
	}
	qd, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, k := range keys {
		if err := ch.QueueBind(qd.Name, k, exchange, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind %s to %s: %w", k, queue, err)
		}
	}
	return &Consumer{conn: conn, ch: ch, q: qd.Name}, nil
}

func (c *Consumer) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Consume runs handle on up to workers deliveries at once until ctx is done or
// the channel closes. Failed deliveries are requeued once; a redelivered
// failure or an ErrPermanent is dropped.
func (c *Consumer) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}
	if err := c.ch.Qos(workers*2, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	msgs, err := c.ch.ConsumeWithContext(ctx, c.q, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.q, err)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						return
					}
					settle(d, handle(ctx, d.Body))
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("consume %s: %w", c.q, amqp.ErrClosed)
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(d amqp.Delivery, err error) {
	settleWith(&d, d.RoutingKey, d.MessageId, d.Redelivered, err)
}

func settleWith(a acknowledger, key, id string, redelivered bool, err error) {
	if err == nil {
		_ = a.Ack(false)
		return
	}
	requeue := !redelivered && !errors.Is(err, ErrPermanent)
	log.L().Warn("delivery failed",
		zap.String("key", key),
		zap.String("message_id", id),
		zap.Bool("requeue", requeue),
		zap.Error(err),
	)
	_ = a.Nack(false, requeue)
}
