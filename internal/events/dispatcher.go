package events

import (
	"context"
	"sync"
	"time"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
)

const defaultPublishTimeout = 5 * time.Second

// Dispatcher decouples emitters from the publisher with a bounded queue and a
// single background worker. A full queue drops the intent with a warning.
type Dispatcher struct {
	pub     Publisher
	queue   chan domain.Event
	done    chan struct{}
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

var _ Emitter = (*Dispatcher)(nil)

func NewDispatcher(pub Publisher, buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{
		pub:     pub,
		queue:   make(chan domain.Event, buffer),
		done:    make(chan struct{}),
		timeout: defaultPublishTimeout,
	}
	go d.run()
	return d
}

func (d *Dispatcher) Emit(e domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logger.Warn("dispatcher closed, dropping intent", "type", e.Type, "reservation_id", e.ReservationID)
		return
	}
	select {
	case d.queue <- e:
	default:
		logger.Warn("intent queue full, dropping intent", "type", e.Type, "reservation_id", e.ReservationID)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.pub.Publish(ctx, e); err != nil {
			logger.Warn("intent not delivered", "type", e.Type, "reservation_id", e.ReservationID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting intents and waits for queued ones to be published,
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
