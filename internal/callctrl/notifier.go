package callctrl

import (
	"context"
	"time"
)

// Event describes a call lifecycle notification.
type Event struct {
	CallID         string    `json:"call_id"`
	ProviderCallID string    `json:"provider_call_id"`
	Reason         string    `json:"reason,omitempty"`
	At             time.Time `json:"at"`
}

// Notifier receives call lifecycle notifications. Implementations run
// outside the controller's lock and must not call back into it.
type Notifier interface {
	CallStarted(ctx context.Context, ev Event)
	CallEnded(ctx context.Context, ev Event)
}

// MultiNotifier fans a notification out to each member in order.
type MultiNotifier []Notifier

func (m MultiNotifier) CallStarted(ctx context.Context, ev Event) {
	for _, n := range m {
		n.CallStarted(ctx, ev)
	}
}

func (m MultiNotifier) CallEnded(ctx context.Context, ev Event) {
	for _, n := range m {
		n.CallEnded(ctx, ev)
	}
}
