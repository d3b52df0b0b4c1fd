package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seatline/seatline/internal/dates"
	"github.com/seatline/seatline/internal/domain"
	"github.com/seatline/seatline/internal/phonetic"
	"github.com/seatline/seatline/internal/repository"
	"github.com/seatline/seatline/internal/service/availability"
)

// fakeStore mirrors the record store's admission semantics in memory. It
// backs both the booking and availability services in these tests.
type fakeStore struct {
	mu              sync.Mutex
	rows            []domain.Reservation
	everyCodeExists bool
}

func (f *fakeStore) Admit(_ context.Context, res domain.Reservation, maxCapacity int) (domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booked := 0
	for _, r := range f.rows {
		if r.Status != domain.ReservationConfirmed {
			continue
		}
		if r.Date == res.Date && r.Time == res.Time {
			booked += r.PartySize
			if strings.EqualFold(r.CustomerName, res.CustomerName) {
				return domain.Reservation{}, repository.ErrDuplicate
			}
		}
	}
	if booked+res.PartySize > maxCapacity {
		return domain.Reservation{}, repository.ErrSlotFull
	}
	for _, r := range f.rows {
		if r.ConfirmationCode == res.ConfirmationCode {
			return domain.Reservation{}, repository.ErrCodeTaken
		}
	}

	res.Status = domain.ReservationConfirmed
	res.CreatedAt = time.Now()
	res.UpdatedAt = res.CreatedAt
	f.rows = append(f.rows, res)
	return res, nil
}

func (f *fakeStore) FindByCode(_ context.Context, code string) (*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.rows {
		if f.rows[i].ConfirmationCode == code {
			out := f.rows[i]
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CodeExists(_ context.Context, code string) (bool, error) {
	if f.everyCodeExists {
		return true, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rows {
		if r.ConfirmationCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ActiveDuplicateExists(_ context.Context, name, date, timeLabel string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rows {
		if r.Status == domain.ReservationConfirmed &&
			strings.EqualFold(r.CustomerName, name) &&
			r.Date == date && r.Time == timeLabel {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, code string, status domain.ReservationStatus) (*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.rows {
		if f.rows[i].ConfirmationCode == code {
			f.rows[i].Status = status
			f.rows[i].UpdatedAt = time.Now()
			out := f.rows[i]
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) ConfirmedByDate(_ context.Context, date string) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Reservation
	for _, r := range f.rows {
		if r.Date == date && r.Status == domain.ReservationConfirmed {
			out = append(out, r)
		}
	}
	return out, nil
}

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestService(store *fakeStore) *Service {
	avail := availability.New(store, nil, availability.Config{})
	svc := New(store, avail, dates.NewResolver(), nil, nil, nil, Config{})
	svc.now = func() time.Time { return testNow }
	return svc
}

func validParams() CreateParams {
	return CreateParams{
		CustomerName: "Ada Lovelace",
		Date:         "2026-09-12",
		Time:         "7:00 PM",
		PartySize:    4,
	}
}

func TestCreateBooking(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	svc := newTestService(store)

	res, err := svc.Create(context.Background(), validParams(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Status != domain.ReservationConfirmed {
		t.Errorf("status: got %q, want CONFIRMED", res.Status)
	}
	if len(res.ConfirmationCode) != 3 || strings.ToUpper(res.ConfirmationCode) != res.ConfirmationCode {
		t.Errorf("confirmation code: got %q, want 3 uppercase letters", res.ConfirmationCode)
	}
	if res.Date != "2026-09-12" {
		t.Errorf("date: got %q", res.Date)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	svc := newTestService(&fakeStore{})
	ctx := context.Background()

	cases := map[string]CreateParams{
		"empty name":    {Date: "2026-09-12", Time: "7:00 PM", PartySize: 2},
		"party of zero": {CustomerName: "Ada", Date: "2026-09-12", Time: "7:00 PM", PartySize: 0},
		"party of 13":   {CustomerName: "Ada", Date: "2026-09-12", Time: "7:00 PM", PartySize: 13},
		"unknown slot":  {CustomerName: "Ada", Date: "2026-09-12", Time: "4:00 PM", PartySize: 2},
		"garbage date":  {CustomerName: "Ada", Date: "whenever works", Time: "7:00 PM", PartySize: 2},
		"past date":     {CustomerName: "Ada", Date: "2026-08-30", Time: "7:00 PM", PartySize: 2},
		"long requirements": {
			CustomerName: "Ada", Date: "2026-09-12", Time: "7:00 PM", PartySize: 2,
			SpecialRequirements: strings.Repeat("x", 501),
		},
	}

	for name, p := range cases {
		var verr *ValidationError
		if _, err := svc.Create(ctx, p, ""); !errors.As(err, &verr) {
			t.Errorf("%s: got %v, want ValidationError", name, err)
		}
	}
}

func TestCreateNaturalLanguageDate(t *testing.T) {
	t.Parallel()
	svc := newTestService(&fakeStore{})

	p := validParams()
	p.Date = "tomorrow"
	res, err := svc.Create(context.Background(), p, "")
	if err != nil {
		t.Fatalf("Create(tomorrow): %v", err)
	}
	if res.Date != "2026-09-01" {
		t.Errorf("resolved date: got %q, want 2026-09-01", res.Date)
	}
}

func TestCreateDuplicateCustomerConflicts(t *testing.T) {
	t.Parallel()
	svc := newTestService(&fakeStore{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, validParams(), ""); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	p := validParams()
	p.CustomerName = "ADA LOVELACE"
	p.PartySize = 2
	var cerr *ConflictError
	if _, err := svc.Create(ctx, p, ""); !errors.As(err, &cerr) {
		t.Fatalf("duplicate (case-insensitive): got %v, want ConflictError", err)
	}

	// Same customer, same date, different slot is fine.
	p.Time = "8:00 PM"
	if _, err := svc.Create(ctx, p, ""); err != nil {
		t.Errorf("different slot: %v", err)
	}
}

func TestCreateSlotFullConflicts(t *testing.T) {
	t.Parallel()
	svc := newTestService(&fakeStore{})
	ctx := context.Background()

	// 7:00 PM seats 8: two parties of 4 fill it.
	p := validParams()
	if _, err := svc.Create(ctx, p, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	p.CustomerName = "Grace Hopper"
	if _, err := svc.Create(ctx, p, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	p.CustomerName = "Edsger Dijkstra"
	p.PartySize = 1
	var cerr *ConflictError
	if _, err := svc.Create(ctx, p, ""); !errors.As(err, &cerr) {
		t.Errorf("full slot: got %v, want ConflictError", err)
	}
}

type denyLimiter struct {
	retry time.Duration
}

func (d denyLimiter) Allow(context.Context, string) (bool, int64, time.Duration, error) {
	return false, 0, d.retry, nil
}

func TestCreateRateLimited(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	avail := availability.New(store, nil, availability.Config{})
	svc := New(store, avail, dates.NewResolver(), nil, nil, denyLimiter{retry: 30 * time.Second}, Config{})
	svc.now = func() time.Time { return testNow }
	ctx := context.Background()

	var rle *RateLimitedError
	if _, err := svc.Create(ctx, validParams(), "ip:10.0.0.1"); !errors.As(err, &rle) {
		t.Fatalf("limited create: got %v, want RateLimitedError", err)
	} else if rle.RetryAfter != 30*time.Second {
		t.Errorf("retry after: got %s, want 30s", rle.RetryAfter)
	}

	// No limiter key, no limiting.
	if _, err := svc.Create(ctx, validParams(), ""); err != nil {
		t.Errorf("Create without limiter key: %v", err)
	}
}

func TestCreateCodeExhaustion(t *testing.T) {
	t.Parallel()
	svc := newTestService(&fakeStore{everyCodeExists: true})

	var ferr *FatalError
	if _, err := svc.Create(context.Background(), validParams(), ""); !errors.As(err, &ferr) {
		t.Errorf("code exhaustion: got %v, want FatalError", err)
	}
}

func TestFindByPhoneticAndMiss(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	svc := newTestService(store)
	ctx := context.Background()

	res, err := svc.Create(ctx, validParams(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := svc.Find(ctx, phonetic.Encode(res.ConfirmationCode))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found == nil || found.ConfirmationCode != res.ConfirmationCode {
		t.Errorf("Find: got %+v", found)
	}

	// Lookup miss is a graceful nil, not an error.
	missing, err := svc.Find(ctx, "ZZQ")
	if err != nil {
		t.Fatalf("Find(miss): %v", err)
	}
	if missing != nil {
		t.Errorf("Find(miss): got %+v, want nil", missing)
	}
}

func TestCancelRestoresCapacityAndErrsOnMiss(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	svc := newTestService(store)
	ctx := context.Background()

	res, err := svc.Create(ctx, validParams(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, res.ConfirmationCode)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.ReservationCancelled {
		t.Errorf("status after cancel: got %q", cancelled.Status)
	}

	slots, err := svc.avail.CheckAvailability(ctx, res.Date, 2)
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	for _, slot := range slots {
		if slot.Time == "7:00 PM" && slot.RemainingCapacity != 8 {
			t.Errorf("capacity not restored: got %d, want 8", slot.RemainingCapacity)
		}
	}

	var nerr *NotFoundError
	if _, err := svc.Cancel(ctx, "QQQ"); !errors.As(err, &nerr) {
		t.Errorf("Cancel(miss): got %v, want NotFoundError", err)
	}
}
