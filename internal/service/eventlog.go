package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/playful-minds/progression/internal/domain"
)

// ActivityStore persists activity log rows.
type ActivityStore interface {
	InsertActivityEvent(ctx context.Context, event domain.ActivityEvent) error
}

// ActivityLogger is the fire-and-forget activity log sink. Events are
// buffered on a channel and written by a single background goroutine;
// a full buffer drops the event with a warning rather than blocking the
// caller. Storage failures are logged and never surface to gameplay.
type ActivityLogger struct {
	store  ActivityStore
	logger *slog.Logger
	ch     chan domain.ActivityEvent
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewActivityLogger creates a new activity logger with the given buffer size
func NewActivityLogger(store ActivityStore, bufferSize int, logger *slog.Logger) *ActivityLogger {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ActivityLogger{
		store:  store,
		logger: logger,
		ch:     make(chan domain.ActivityEvent, bufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the background writer
func (l *ActivityLogger) Start() {
	go l.run()
}

// Stop drains buffered events and stops the writer
func (l *ActivityLogger) Stop() {
	l.once.Do(func() {
		close(l.stopCh)
	})
	<-l.doneCh
}

// Record queues one event. It never blocks: when the buffer is full the
// event is dropped and a warning logged.
func (l *ActivityLogger) Record(event domain.ActivityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case l.ch <- event:
	default:
		l.logger.Warn("activity log buffer full, dropping event",
			"player_id", event.PlayerID,
			"action", event.Action,
		)
	}
}

func (l *ActivityLogger) run() {
	defer close(l.doneCh)
	for {
		select {
		case event := <-l.ch:
			l.write(event)
		case <-l.stopCh:
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case event := <-l.ch:
					l.write(event)
				default:
					return
				}
			}
		}
	}
}

func (l *ActivityLogger) write(event domain.ActivityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.InsertActivityEvent(ctx, event); err != nil {
		l.logger.Warn("failed to record activity event",
			"player_id", event.PlayerID,
			"action", event.Action,
			"error", err,
		)
	}
}
