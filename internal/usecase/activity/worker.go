package activity

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"novalyn/internal/domain"
)

// Worker drains the activity queue into the persistent feed. Events are
// acknowledged only after a successful insert; a failed insert returns
// the event to the queue for redelivery.
type Worker struct {
	queue domain.ActivityQueue
	store domain.ActivityRepo
	log   zerolog.Logger
}

// NewWorker creates the worker.
func NewWorker(queue domain.ActivityQueue, store domain.ActivityRepo, logger zerolog.Logger) *Worker {
	return &Worker{queue: queue, store: store, log: logger}
}

// Run consumes events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		event, ack, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error().Err(err).Msg("worker: pop activity event")
			continue
		}
		if err := w.store.InsertActivity(ctx, event); err != nil {
			w.log.Error().Err(err).Str("event_id", event.ID).Msg("worker: persist activity")
			w.settle(ack, false, event.ID)
			continue
		}
		w.settle(ack, true, event.ID)
		w.log.Debug().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("worker: activity persisted")
	}
}

func (w *Worker) settle(ack domain.AckFunc, processed bool, eventID string) {
	if ack == nil {
		return
	}
	if err := ack(processed); err != nil {
		w.log.Error().Err(err).Str("event_id", eventID).Bool("processed", processed).Msg("worker: settle delivery")
	}
}
