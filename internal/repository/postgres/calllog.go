package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/seatline/seatline/internal/callctrl"
	"github.com/seatline/seatline/internal/domain"
)

// callStore is the slice of the call-record repo the logger writes.
type callStore interface {
	Start(ctx context.Context, rec domain.CallRecord) error
	Finish(ctx context.Context, callID, reason string, endedAt time.Time) error
}

// CallLogger subscribes to call lifecycle notifications and persists them
// as call records. Writes happen on a background goroutine fed by a
// buffered queue: the webhook path that emits notifications must never
// block on the store, and failures are logged and dropped. The queue is
// FIFO, so a call's start row is always written before its finish.
type CallLogger struct {
	store  callStore
	logger *slog.Logger
	queue  chan callLogEntry
}

type callLogEntry struct {
	ended bool
	ev    callctrl.Event
}

func NewCallLogger(store callStore, logger *slog.Logger) *CallLogger {
	l := &CallLogger{
		store:  store,
		logger: logger,
		queue:  make(chan callLogEntry, 256),
	}
	go l.drain()
	return l
}

func (l *CallLogger) CallStarted(_ context.Context, ev callctrl.Event) {
	l.enqueue(callLogEntry{ev: ev})
}

func (l *CallLogger) CallEnded(_ context.Context, ev callctrl.Event) {
	l.enqueue(callLogEntry{ended: true, ev: ev})
}

func (l *CallLogger) enqueue(e callLogEntry) {
	select {
	case l.queue <- e:
	default:
		// Telemetry; dropping beats stalling call admission.
		if l.logger != nil {
			l.logger.Warn("call log queue full, dropping entry", "call_id", e.ev.CallID)
		}
	}
}

func (l *CallLogger) drain() {
	for e := range l.queue {
		if e.ended {
			err := l.store.Finish(context.Background(), e.ev.CallID, e.ev.Reason, e.ev.At)
			if err != nil && l.logger != nil {
				l.logger.Warn("failed to close call record", "call_id", e.ev.CallID, "error", err)
			}
			continue
		}

		err := l.store.Start(context.Background(), domain.CallRecord{
			ID:             uuid.New(),
			CallID:         e.ev.CallID,
			ProviderCallID: e.ev.ProviderCallID,
			StartedAt:      e.ev.At,
		})
		if err != nil && l.logger != nil {
			l.logger.Warn("failed to write call record", "call_id", e.ev.CallID, "error", err)
		}
	}
}
