package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"novalyn/internal/domain"
	"novalyn/internal/infra/metrics"
)

// RabbitActivityQueue implements the activity event queue over AMQP.
type RabbitActivityQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

// NewRabbitActivityQueue connects and declares a durable queue.
func NewRabbitActivityQueue(amqpURL, queue string) (*RabbitActivityQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitActivityQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue publishes an event to the queue.
func (q *RabbitActivityQueue) Enqueue(ctx context.Context, event domain.ActivityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Pop blocks until an event is available. The delivery stays unsettled
// until the returned ack runs: ack(true) acknowledges it, ack(false)
// requeues it for another attempt.
func (q *RabbitActivityQueue) Pop(ctx context.Context) (domain.ActivityEvent, domain.AckFunc, error) {
	if q.deliveries == nil {
		deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.ActivityEvent{}, nil, fmt.Errorf("start consumer: %w", err)
		}
		q.deliveries = deliveries
	}
	select {
	case <-ctx.Done():
		return domain.ActivityEvent{}, nil, ctx.Err()
	case delivery, ok := <-q.deliveries:
		if !ok {
			return domain.ActivityEvent{}, nil, errors.New("amqp consumer channel closed")
		}
		ack := func(processed bool) error {
			if processed {
				return delivery.Ack(false)
			}
			return delivery.Nack(false, true)
		}
		var event domain.ActivityEvent
		if err := json.Unmarshal(delivery.Body, &event); err != nil {
			_ = delivery.Nack(false, false)
			return domain.ActivityEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}
		return event, ack, nil
	}
}

// Close releases the channel and connection.
func (q *RabbitActivityQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
