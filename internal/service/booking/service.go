// Package booking admits, looks up and cancels reservations. Admission is
// the delicate path: the availability check here is a snapshot, and the
// final word belongs to the store's serializable admit transaction.
package booking

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/seatline/seatline/internal/dates"
	"github.com/seatline/seatline/internal/domain"
	"github.com/seatline/seatline/internal/phonetic"
	"github.com/seatline/seatline/internal/repository"
	redisrepo "github.com/seatline/seatline/internal/repository/redis"
	"github.com/seatline/seatline/internal/service/availability"
)

const (
	minPartySize           = 1
	maxPartySize           = 12
	maxSpecialRequirements = 500
)

// Store is the slice of the record store this service writes.
type Store interface {
	Admit(ctx context.Context, res domain.Reservation, maxCapacity int) (domain.Reservation, error)
	FindByCode(ctx context.Context, code string) (*domain.Reservation, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ActiveDuplicateExists(ctx context.Context, customerName, date, timeLabel string) (bool, error)
	UpdateStatus(ctx context.Context, code string, status domain.ReservationStatus) (*domain.Reservation, error)
}

// Publisher fans reservation changes out to other instances.
type Publisher interface {
	PublishReservationsChanged(ctx context.Context, date string) error
}

// RateLimiter gates booking creation per caller key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

type Config struct {
	// MaxCodeAttempts caps confirmation-code generation. 26^3 codes make
	// exhaustion essentially impossible; the cap bounds worst-case latency.
	MaxCodeAttempts int
}

type Service struct {
	store    Store
	avail    *availability.Service
	resolver dates.Resolver
	cache    *redisrepo.Cache
	pubsub   Publisher
	limiter  RateLimiter
	cfg      Config

	now func() time.Time
}

func New(
	store Store,
	avail *availability.Service,
	resolver dates.Resolver,
	cache *redisrepo.Cache,
	pubsub Publisher,
	limiter RateLimiter,
	cfg Config,
) *Service {
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = 10
	}

	return &Service{
		store:    store,
		avail:    avail,
		resolver: resolver,
		cache:    cache,
		pubsub:   pubsub,
		limiter:  limiter,
		cfg:      cfg,
		now:      time.Now,
	}
}

type CreateParams struct {
	CustomerName        string
	Date                string
	Time                string
	PartySize           int
	SpecialRequirements string
	Phone               string
}

// Create books a table.
//
// Returns:
//   - *ValidationError for malformed input or an unresolvable/past date.
//   - *ConflictError when the slot cannot fit the party or the customer
//     already holds it.
//   - *RateLimitedError when the caller key exceeded the creation limit.
//   - *FatalError when no unique confirmation code could be allocated
//     within the attempt budget.
func (s *Service) Create(ctx context.Context, p CreateParams, rlKey string) (domain.Reservation, error) {
	const op = "service.booking.Create"

	p.CustomerName = strings.TrimSpace(p.CustomerName)
	if p.CustomerName == "" {
		return domain.Reservation{}, &ValidationError{Reason: "customer name is required"}
	}
	if p.PartySize < minPartySize || p.PartySize > maxPartySize {
		return domain.Reservation{}, &ValidationError{
			Reason: fmt.Sprintf("party size must be between %d and %d", minPartySize, maxPartySize),
		}
	}
	if len(p.SpecialRequirements) > maxSpecialRequirements {
		return domain.Reservation{}, &ValidationError{Reason: "special requirements too long"}
	}

	slot, ok := domain.SlotByTime(p.Time)
	if !ok {
		return domain.Reservation{}, &ValidationError{
			Reason: fmt.Sprintf("%q is not a bookable time", p.Time),
		}
	}

	now := s.now()
	isoDate, err := s.resolver.Resolve(p.Date, now)
	if err != nil {
		return domain.Reservation{}, &ValidationError{
			Reason: fmt.Sprintf("could not understand date %q", p.Date),
		}
	}
	if isoDate < now.Format(dates.ISODate) {
		return domain.Reservation{}, &ValidationError{Reason: "date is in the past"}
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return domain.Reservation{}, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return domain.Reservation{}, &RateLimitedError{RetryAfter: retry}
		}
	}

	// Fast-path checks for friendly errors. Both are re-run inside the
	// admit transaction; losing the race there surfaces the same
	// ConflictError.
	slots, err := s.avail.CheckAvailability(ctx, isoDate, p.PartySize)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("%s:%w", op, err)
	}
	if !slotOffered(slots, p.Time) {
		return domain.Reservation{}, &ConflictError{
			Reason: fmt.Sprintf("%s on %s cannot seat a party of %d", p.Time, isoDate, p.PartySize),
		}
	}

	dup, err := s.store.ActiveDuplicateExists(ctx, p.CustomerName, isoDate, p.Time)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("%s:%w", op, err)
	}
	if dup {
		return domain.Reservation{}, &ConflictError{
			Reason: fmt.Sprintf("%s already has a reservation for %s at %s", p.CustomerName, isoDate, p.Time),
		}
	}

	for attempt := 0; attempt < s.cfg.MaxCodeAttempts; attempt++ {
		code := randomCode()

		exists, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return domain.Reservation{}, fmt.Errorf("%s:%w", op, err)
		}
		if exists {
			continue
		}

		res, err := s.store.Admit(ctx, domain.Reservation{
			ID:                  uuid.New(),
			ConfirmationCode:    code,
			CustomerName:        p.CustomerName,
			Phone:               p.Phone,
			Date:                isoDate,
			Time:                p.Time,
			PartySize:           p.PartySize,
			SpecialRequirements: p.SpecialRequirements,
			Status:              domain.ReservationConfirmed,
		}, slot.MaxCapacity)
		if err != nil {
			// Another booking took this code between probe and insert;
			// burn the attempt and regenerate.
			if errors.Is(err, repository.ErrCodeTaken) {
				continue
			}
			if errors.Is(err, repository.ErrSlotFull) {
				return domain.Reservation{}, &ConflictError{
					Reason: fmt.Sprintf("%s on %s cannot seat a party of %d", p.Time, isoDate, p.PartySize),
				}
			}
			if errors.Is(err, repository.ErrDuplicate) {
				return domain.Reservation{}, &ConflictError{
					Reason: fmt.Sprintf("%s already has a reservation for %s at %s", p.CustomerName, isoDate, p.Time),
				}
			}
			return domain.Reservation{}, fmt.Errorf("%s:%w", op, err)
		}

		s.reservationsChanged(ctx, isoDate)
		return res, nil
	}

	return domain.Reservation{}, &FatalError{
		Reason: fmt.Sprintf("no unique confirmation code after %d attempts", s.cfg.MaxCodeAttempts),
	}
}

// Find looks a reservation up by raw code or phonetic transcription.
// A miss returns (nil, nil): lookup tools report "not found" gracefully,
// unlike Cancel which treats it as an error.
func (s *Service) Find(ctx context.Context, codeOrPhonetic string) (*domain.Reservation, error) {
	const op = "service.booking.Find"

	code := phonetic.Decode(codeOrPhonetic)

	res, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

// Cancel transitions a reservation to CANCELLED.
//
// Returns *NotFoundError when no reservation carries the normalized code.
func (s *Service) Cancel(ctx context.Context, codeOrPhonetic string) (domain.Reservation, error) {
	const op = "service.booking.Cancel"

	code := phonetic.Decode(codeOrPhonetic)

	res, err := s.store.UpdateStatus(ctx, code, domain.ReservationCancelled)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Reservation{}, &NotFoundError{Code: code}
		}
		return domain.Reservation{}, fmt.Errorf("%s:%w", op, err)
	}

	s.reservationsChanged(ctx, res.Date)
	return *res, nil
}

func (s *Service) reservationsChanged(ctx context.Context, date string) {
	if s.cache != nil {
		_ = s.cache.InvalidateDate(ctx, date)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishReservationsChanged(ctx, date)
	}
}

func slotOffered(slots []domain.AvailabilitySlot, timeLabel string) bool {
	for _, s := range slots {
		if s.Time == timeLabel {
			return true
		}
	}
	return false
}

const codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomCode() string {
	b := make([]byte, 3)
	for i := range b {
		b[i] = codeLetters[rand.Intn(len(codeLetters))]
	}
	return string(b)
}
