// Package chatlog writes an NDJSON transcript of chat traffic.
package chatlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one transcript line.
type Event struct {
	Timestamp string         `json:"ts"`
	RequestID string         `json:"request_id,omitempty"`
	Channel   string         `json:"channel"`
	Direction string         `json:"direction"`
	EventType string         `json:"event_type"`
	Sender    string         `json:"sender,omitempty"`
	Content   string         `json:"content"`
	ImageURL  string         `json:"image_url,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Logger records chat events.
type Logger interface {
	Log(event Event)
	Close() error
}

// Config controls the transcript writer.
type Config struct {
	Enabled   bool
	Path      string
	QueueSize int
}

// Nop discards every event.
type Nop struct{}

// Log implements Logger.
func (Nop) Log(Event) {}

// Close implements Logger.
func (Nop) Close() error { return nil }

// FileLogger appends events to a file from a background goroutine. Log
// never blocks; events are dropped when the queue is full.
type FileLogger struct {
	mu     sync.RWMutex
	closed bool
	queue  chan Event
	file   *os.File
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New returns a FileLogger, or Nop when logging is disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("conversation log path is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create conversation log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}

	l := &FileLogger{
		queue:  make(chan Event, cfg.QueueSize),
		file:   f,
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log queues an event.
func (l *FileLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event", "event_type", event.EventType)
	}
}

// Close drains queued events and closes the file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
	return l.file.Close()
}

func (l *FileLogger) run() {
	defer l.wg.Done()
	enc := json.NewEncoder(l.file)
	enc.SetEscapeHTML(false)
	for event := range l.queue {
		if err := enc.Encode(event); err != nil {
			l.logger.Warn("failed to write conversation log event", "error", err)
		}
	}
}
