package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"novalyn/internal/domain"
)

// RedisActivityQueue implements the activity event queue on Redis lists.
type RedisActivityQueue struct {
	client *redis.Client
	key    string
}

// NewRedisActivityQueue creates a queue at the given key.
func NewRedisActivityQueue(client *redis.Client, key string) *RedisActivityQueue {
	return &RedisActivityQueue{client: client, key: key}
}

// Enqueue publishes an event to the queue.
func (q *RedisActivityQueue) Enqueue(ctx context.Context, event domain.ActivityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Pop blocks until an event is available. BRPOP removes the element up
// front, so failed processing pushes it back onto the list.
func (q *RedisActivityQueue) Pop(ctx context.Context) (domain.ActivityEvent, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ActivityEvent{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ActivityEvent{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.ActivityEvent{}, nil, err
		}
		if len(res) != 2 {
			return domain.ActivityEvent{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := res[1]
		var event domain.ActivityEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return domain.ActivityEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}
		ack := func(processed bool) error {
			if processed {
				return nil
			}
			return q.client.RPush(context.Background(), q.key, payload).Err()
		}
		return event, ack, nil
	}
}
