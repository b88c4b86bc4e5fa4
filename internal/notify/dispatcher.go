package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/event-ticketing/internal/metrics"
)

// Dispatcher runs a Sink on background workers.  Enqueue never blocks:
// when the buffer is full the notification is dropped and logged.
type Dispatcher struct {
	sink    Sink
	log     *slog.Logger
	timeout time.Duration

	queue chan Notification
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines that drain a buffer of size
// buffer into sink.  Each delivery is bounded by timeout.
func NewDispatcher(sink Sink, log *slog.Logger, buffer, workers int, timeout time.Duration) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		sink:    sink,
		log:     log,
		timeout: timeout,
		queue:   make(chan Notification, buffer),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Enqueue hands n to the workers.
func (d *Dispatcher) Enqueue(n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.NotificationFailed("closed")
		d.log.Warn("notification dropped after shutdown", "user_id", n.UserID, "title", n.Title)
		return
	}
	select {
	case d.queue <- n:
	default:
		metrics.NotificationFailed("buffer_full")
		d.log.Warn("notification buffer full, dropping", "user_id", n.UserID, "title", n.Title)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.NotificationFailed("panic")
			d.log.Error("notification sink panicked", "panic", r, "user_id", n.UserID)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Notify(ctx, n); err != nil {
		metrics.NotificationFailed("sink_error")
		d.log.Warn("notification delivery failed", "err", err, "user_id", n.UserID, "title", n.Title)
	}
}

// Close stops accepting notifications and waits until the buffer is
// drained or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
