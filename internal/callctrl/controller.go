// Package callctrl bounds the number of concurrently active phone calls.
// It owns the in-memory active-call table and the two admission counters;
// everything mutating them runs inside a single critical section so that
// active + pending never exceeds the configured ceiling.
package callctrl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/seatline/seatline/internal/domain"
)

type Config struct {
	// MaxConcurrent is the ceiling on active + pending calls.
	MaxConcurrent int
	// CleanupInterval drives the background sweep; calls silent for longer
	// than this are force-ended.
	CleanupInterval time.Duration
	// EndedRetention keeps ended entries visible to late status queries
	// before the table entry is removed.
	EndedRetention time.Duration
}

// ActiveCall is a live entry in the call table. Process-local, lost on
// restart.
type ActiveCall struct {
	CallID         string
	ProviderCallID string
	Status         domain.CallStatus
	LastActivity   time.Time

	endedAt time.Time
}

type Controller struct {
	mu      sync.Mutex
	calls   map[string]*ActiveCall
	active  int
	pending int

	cfg      Config
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config, notifier Notifier, logger *slog.Logger) *Controller {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.EndedRetention <= 0 {
		cfg.EndedRetention = 30 * time.Second
	}
	if notifier == nil {
		notifier = MultiNotifier{}
	}

	return &Controller{
		calls:    make(map[string]*ActiveCall),
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// ReserveSlot claims capacity for a call that is not yet connected. The
// check and the increment share one critical section; under concurrent
// webhooks only as many reservations succeed as there is capacity.
func (c *Controller) ReserveSlot() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active+c.pending >= c.cfg.MaxConcurrent {
		return false
	}
	c.pending++
	return true
}

// ReleaseSlot returns an unspent reservation. Calling it with nothing
// outstanding is a no-op; the counter never goes negative.
func (c *Controller) ReleaseSlot() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending > 0 {
		c.pending--
	}
}

// RegisterCall moves a reserved slot into the active table. Callers must
// have reserved first; registering without a reservation is tolerated but
// eats into capacity the reservation would have covered.
func (c *Controller) RegisterCall(callID, providerCallID string) {
	now := c.now()

	c.mu.Lock()
	c.calls[callID] = &ActiveCall{
		CallID:         callID,
		ProviderCallID: providerCallID,
		Status:         domain.CallConnecting,
		LastActivity:   now,
	}
	c.active++
	if c.pending > 0 {
		c.pending--
	}
	c.mu.Unlock()

	c.notifier.CallStarted(context.Background(), Event{
		CallID:         callID,
		ProviderCallID: providerCallID,
		At:             now,
	})
}

// UpdateStatus touches a call's status and activity timestamp. Unknown
// calls are ignored; late and duplicate webhook delivery is expected.
func (c *Controller) UpdateStatus(callID string, status domain.CallStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.calls[callID]
	if !ok || call.Status == domain.CallEnded {
		return
	}
	call.Status = status
	call.LastActivity = c.now()
}

// EndCall terminates a call. Idempotent: repeated calls for the same id, or
// calls for ids already swept away, do nothing and never double-decrement.
// The table entry lingers for the retention window so a near-simultaneous
// status query still sees "ended" rather than "unknown".
func (c *Controller) EndCall(callID, reason string) {
	now := c.now()

	c.mu.Lock()
	call, ok := c.calls[callID]
	if !ok || call.Status == domain.CallEnded {
		c.mu.Unlock()
		return
	}
	call.Status = domain.CallEnded
	call.LastActivity = now
	call.endedAt = now
	c.active--
	providerID := call.ProviderCallID
	c.mu.Unlock()

	c.notifier.CallEnded(context.Background(), Event{
		CallID:         callID,
		ProviderCallID: providerID,
		Reason:         reason,
		At:             now,
	})

	time.AfterFunc(c.cfg.EndedRetention, func() {
		c.removeIfEnded(callID)
	})
}

func (c *Controller) removeIfEnded(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if call, ok := c.calls[callID]; ok && call.Status == domain.CallEnded {
		delete(c.calls, callID)
	}
}

// Call returns a snapshot of the table entry for callID.
func (c *Controller) Call(callID string) (ActiveCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.calls[callID]
	if !ok {
		return ActiveCall{}, false
	}
	return *call, true
}

func (c *Controller) ActiveCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) CanAccept() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active+c.pending < c.cfg.MaxConcurrent
}

// Counts reports (active, pending) as one atomic snapshot.
func (c *Controller) Counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.pending
}

func (c *Controller) MaxConcurrent() int {
	return c.cfg.MaxConcurrent
}

// Run drives the periodic stale-call sweep until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweep(c.now())
		}
	}
}

// sweep force-ends calls silent for longer than the cleanup interval and
// reaps ended entries whose retention window has passed.
func (c *Controller) sweep(now time.Time) {
	var stale []string

	c.mu.Lock()
	for id, call := range c.calls {
		if call.Status == domain.CallEnded {
			if now.Sub(call.endedAt) >= c.cfg.EndedRetention {
				delete(c.calls, id)
			}
			continue
		}
		if now.Sub(call.LastActivity) > c.cfg.CleanupInterval {
			stale = append(stale, id)
		}
	}
	c.mu.Unlock()

	for _, id := range stale {
		if c.logger != nil {
			c.logger.Warn("force-ending stale call", "call_id", id)
		}
		c.EndCall(id, "stale_cleanup")
	}
}
