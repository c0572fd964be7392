package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrWorkerClosed is returned by Submit after Close.
var ErrWorkerClosed = errors.New("voice worker closed")

type job struct {
	id      string
	at      time.Time
	event   *Event
	channel *Channel
}

// Worker serializes voice events onto a single goroutine so the reducer sees
// them in delivery order and every commit finishes before the next event.
type Worker struct {
	reducer *Reducer
	queue   chan job
	log     *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
}

func NewWorker(reducer *Reducer, size int, log *zap.SugaredLogger) *Worker {
	return &Worker{
		reducer: reducer,
		queue:   make(chan job, size),
		log:     log,
	}
}

// Submit queues ev observed at at and returns its correlation id. It blocks
// while the queue is full.
func (w *Worker) Submit(ev Event, at time.Time) (string, error) {
	return w.enqueue(job{at: at, event: &ev})
}

// SubmitSync queues a reconcile of ch observed at at.
func (w *Worker) SubmitSync(ch Channel, at time.Time) (string, error) {
	return w.enqueue(job{at: at, channel: &ch})
}

func (w *Worker) enqueue(j job) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return "", ErrWorkerClosed
	}
	j.id = uuid.NewString()
	w.queue <- j
	return j.id, nil
}

// Close stops accepting jobs. Run returns once the queued jobs are processed.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
}

// Run processes jobs until Close has been called and the queue is drained.
// A failing job is logged and does not stop the worker. Once ctx is done the
// remaining jobs are dropped.
func (w *Worker) Run(ctx context.Context) {
	for j := range w.queue {
		w.process(ctx, j)
	}
	w.log.Info("voice worker stopped")
}

func (w *Worker) process(ctx context.Context, j job) {
	if ctx.Err() != nil {
		w.log.Warnw("dropping voice event, worker cancelled", "event_id", j.id, "error", ctx.Err())
		return
	}

	var (
		effects []Effect
		err     error
	)
	if j.event != nil {
		w.log.Debugw("voice event",
			"event_id", j.id,
			"user_id", j.event.UserID,
			"old_channel_id", j.event.OldChannelID,
			"new_channel_id", j.event.NewChannelID,
			"old_self_mute", j.event.OldSelfMute,
			"new_self_mute", j.event.NewSelfMute,
		)
		effects, err = w.reducer.Handle(ctx, *j.event, j.at)
	} else {
		effects, err = w.reducer.Sync(ctx, j.channel, j.at)
	}

	if err != nil {
		w.log.Errorw("failed to process voice event", "event_id", j.id, "applied", len(effects), "error", err)
		return
	}
	if len(effects) > 0 {
		w.log.Debugw("voice event applied", "event_id", j.id, "effects", len(effects))
	}
}
