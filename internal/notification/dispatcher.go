// Package notification delivers offline notifications off the request path.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medchat/internal/domain"
)

const deliverTimeout = 5 * time.Second

// Sink is a delivery target. Every enqueued notification is handed to every sink.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *domain.Notification) error
}

// Dispatcher fans queued notifications out to its sinks from a fixed worker pool.
// Notify never blocks; when the queue is full the notification is dropped and logged.
type Dispatcher struct {
	log   zerolog.Logger
	sinks []Sink
	queue chan *domain.Notification
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// Clock is replaceable in tests.
	Clock func() time.Time
}

func NewDispatcher(log zerolog.Logger, workers, queueSize int, sinks ...Sink) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		log:   log.With().Str("component", "notification").Logger(),
		sinks: sinks,
		queue: make(chan *domain.Notification, queueSize),
		Clock: time.Now,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify enqueues a notification for userID and reports whether it was accepted.
func (d *Dispatcher) Notify(userID string, kind domain.NotificationKind, title, body string, metadata map[string]string) bool {
	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		Metadata:  metadata,
		CreatedAt: d.Clock().UTC().Truncate(time.Microsecond),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn().Str("user_id", userID).Msg("dispatcher closed, notification dropped")
		return false
	}
	select {
	case d.queue <- n:
		return true
	default:
		d.log.Warn().Str("user_id", userID).Str("kind", string(kind)).Msg("notification queue full, dropped")
		return false
	}
}

// Close stops accepting notifications and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
			if err := s.Deliver(ctx, n); err != nil {
				d.log.Error().Err(err).
					Str("sink", s.Name()).
					Str("notification_id", n.ID).
					Str("user_id", n.UserID).
					Msg("notification delivery failed")
			}
			cancel()
		}
	}
}
