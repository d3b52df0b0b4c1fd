// Package availability computes remaining per-slot capacity for a date
// from the calendar and the confirmed reservations on record.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/seatline/seatline/internal/domain"
	redisx "github.com/seatline/seatline/internal/redis"
	redisrepo "github.com/seatline/seatline/internal/repository/redis"
)

// Store is the slice of the record store this service reads.
type Store interface {
	ConfirmedByDate(ctx context.Context, date string) ([]domain.Reservation, error)
}

type Config struct {
	// CacheTTL bounds staleness of the cached per-date booked sums. The
	// admit transaction re-checks capacity, so a stale read only costs a
	// friendlier error, never an overbooked slot.
	CacheTTL time.Duration
}

type Service struct {
	store Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Second
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// CheckAvailability returns, in calendar order, the slots on date that can
// still seat a party of partySize. Slots that cannot fit the party are
// omitted entirely; callers treat absence as unavailable.
func (s *Service) CheckAvailability(
	ctx context.Context,
	date string,
	partySize int,
) ([]domain.AvailabilitySlot, error) {
	const op = "service.availability.CheckAvailability"

	sums, err := s.bookedSums(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return Compute(domain.SlotCalendar, date, sums, partySize), nil
}

func (s *Service) bookedSums(ctx context.Context, date string) (map[string]int, error) {
	loader := func(ctx context.Context) (map[string]int, error) {
		reservations, err := s.store.ConfirmedByDate(ctx, date)
		if err != nil {
			return nil, err
		}
		return BookedSums(reservations), nil
	}

	if s.cache == nil {
		return loader(ctx)
	}

	return redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisx.KeyAvailability(date),
		s.cfg.CacheTTL,
		loader,
	)
}

// BookedSums totals confirmed party sizes per slot label.
func BookedSums(reservations []domain.Reservation) map[string]int {
	sums := make(map[string]int, len(reservations))
	for _, r := range reservations {
		if r.Status != domain.ReservationConfirmed {
			continue
		}
		sums[r.Time] += r.PartySize
	}
	return sums
}

// Compute derives the availability view from a booked-sums snapshot. Pure;
// the concurrency contract around the snapshot lives with the callers.
func Compute(
	slots []domain.Slot,
	date string,
	sums map[string]int,
	partySize int,
) []domain.AvailabilitySlot {
	out := make([]domain.AvailabilitySlot, 0, len(slots))
	for _, slot := range slots {
		remaining := slot.MaxCapacity - sums[slot.Time]
		if remaining < partySize {
			continue
		}
		out = append(out, domain.AvailabilitySlot{
			Date:              date,
			Time:              slot.Time,
			RemainingCapacity: remaining,
		})
	}
	return out
}
