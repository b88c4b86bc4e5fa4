package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogSink writes notifications to the structured logger.  It is the sink
// used when no broker is configured.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Notify(_ context.Context, n Notification) error {
	s.Log.Info("notification",
		"user_id", n.UserID,
		"order_id", n.OrderID,
		"category", n.Category,
		"title", n.Title,
		"message", n.Message,
	)
	return nil
}

// FileSink appends one human-readable line per notification to a file.
// The broker consumer uses it to keep an audit trail of what was sent.
type FileSink struct {
	Path string

	mu sync.Mutex
}

func (s *FileSink) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	return writeLine(f, n)
}

func writeLine(w io.Writer, n Notification) error {
	at := n.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	line := fmt.Sprintf("[%s] %s | category=%s | user_id=%d | order_id=%d | %q\n",
		at.Format(time.RFC3339), n.Title, n.Category, n.UserID, n.OrderID, n.Message)
	if _, err := io.WriteString(w, line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
