package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/logging"
)

type memSink struct {
	mu   sync.Mutex
	got  []Notification
	gate chan struct{}
	err  error
}

func (s *memSink) Notify(ctx context.Context, n Notification) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *memSink) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.got))
	for i, n := range s.got {
		out[i] = n.Title
	}
	return out
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &memSink{}
	d := NewDispatcher(sink, logging.Discard(), 16, 2, time.Second)

	for _, title := range []string{"Booking created", "Payment received", "Booking cancelled"} {
		d.Enqueue(Notification{UserID: 7, Title: title})
	}
	require.NoError(t, d.Close(context.Background()))

	assert.ElementsMatch(t, []string{"Booking created", "Payment received", "Booking cancelled"}, sink.titles())
	for _, n := range sink.got {
		assert.False(t, n.CreatedAt.IsZero())
	}

	// after Close notifications are dropped
	d.Enqueue(Notification{UserID: 7, Title: "late"})
	assert.Len(t, sink.titles(), 3)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcherDropsWhenBufferFull(t *testing.T) {
	sink := &memSink{gate: make(chan struct{})}
	d := NewDispatcher(sink, logging.Discard(), 1, 1, time.Second)

	d.Enqueue(Notification{UserID: 1, Title: "first"})
	// wait for the worker to pick the first one up so the buffer is empty
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)
	d.Enqueue(Notification{UserID: 1, Title: "second"})
	d.Enqueue(Notification{UserID: 1, Title: "dropped"})

	close(sink.gate)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"first", "second"}, sink.titles())
}

func TestDispatcherSurvivesSinkErrors(t *testing.T) {
	sink := &memSink{err: errors.New("smtp down")}
	d := NewDispatcher(sink, logging.Discard(), 4, 1, time.Second)
	d.Enqueue(Notification{UserID: 1, Title: "a"})
	d.Enqueue(Notification{UserID: 1, Title: "b"})
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"a", "b"}, sink.titles())
}

func TestDispatcherCloseHonoursContext(t *testing.T) {
	sink := &memSink{gate: make(chan struct{})}
	d := NewDispatcher(sink, logging.Discard(), 4, 1, time.Minute)
	d.Enqueue(Notification{UserID: 1, Title: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(sink.gate)
}

func TestFileSinkAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "notifications.log")
	sink := &FileSink{Path: path}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Notify(context.Background(), Notification{
		UserID: 7, OrderID: 3, Title: "Payment received", Category: CategoryPayment, Message: "Order 3 is paid", CreatedAt: at,
	}))
	require.NoError(t, sink.Notify(context.Background(), Notification{UserID: 7, Title: "Booking expired", Category: CategoryBooking}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `[2026-03-01T12:00:00Z] Payment received | category=PAYMENT | user_id=7 | order_id=3 | "Order 3 is paid"`, lines[0])
	assert.Contains(t, lines[1], "Booking expired | category=BOOKING")
}

func TestEncodeDecode(t *testing.T) {
	body, err := encode(Notification{UserID: 7, OrderID: 2, Title: "Booking created", Category: CategoryBooking})
	require.NoError(t, err)

	n, err := decode(body)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n.UserID)
	assert.Equal(t, "Booking created", n.Title)
	assert.False(t, n.CreatedAt.IsZero())

	_, err = decode([]byte(`{"title":"orphan"}`))
	assert.Error(t, err)
	_, err = decode([]byte(`{"user_id":3}`))
	assert.Error(t, err)
	_, err = decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestConsumerHandleForwardsToSink(t *testing.T) {
	sink := &memSink{}
	c := &Consumer{Sink: sink, Log: logging.Discard()}
	require.NoError(t, c.handle(context.Background(), []byte(`{"user_id":7,"title":"Payment received"}`)))
	assert.Error(t, c.handle(context.Background(), []byte(`{}`)))
	assert.Equal(t, []string{"Payment received"}, sink.titles())
}
