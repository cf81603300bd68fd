package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNacked is returned when the broker refuses a published event.
var ErrNacked = errors.New("queue: event nacked by broker")

const publishTimeout = 3 * time.Second

// RabbitPublisher publishes feed events on a topic exchange in confirm mode.
type RabbitPublisher struct {
	conn *amqp.Connection

	mu     sync.Mutex
	ch     *amqp.Channel
	closed chan *amqp.Error
}

func NewRabbit(url, exchange string) (Publisher, error) {
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
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	return &RabbitPublisher{
		conn:   conn,
		ch:     ch,
		closed: ch.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}

func (p *RabbitPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// Publish sends event as JSON and waits for the broker's confirm. Events go
// out after the write they describe has committed, so a caller's cancelled
// request does not cancel the publish.
func (p *RabbitPublisher) Publish(ctx context.Context, exchange, key string, event any, reqID string) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	p.mu.Lock()
	select {
	case e := <-p.closed:
		p.mu.Unlock()
		if e == nil {
			return amqp.ErrClosed
		}
		return e
	default:
	}
	conf, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         key,
		Headers:      amqp.Table{"X-Request-ID": reqID},
	})
	p.mu.Unlock()
	if err != nil {
		return err
	}

	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNacked)
	}
	return nil
}
