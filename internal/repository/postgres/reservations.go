package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/seatline/seatline/internal/domain"
	"github.com/seatline/seatline/internal/repository"
)

type ReservationRepo struct {
	store *Store
}

func (r *ReservationRepo) handle() DB {
	return r.store.pool
}

// Admit inserts a CONFIRMED reservation after re-running the capacity sum
// and the duplicate-customer check inside one serializable transaction.
// The availability check the service ran beforehand is only a snapshot;
// this is where the race between two bookings for the last seats is
// actually decided.
//
// Returns:
//   - repository.ErrSlotFull when the slot cannot fit the party.
//   - repository.ErrDuplicate when the customer already holds the slot.
//   - repository.ErrCodeTaken when the confirmation code lost the
//     uniqueness race; callers regenerate and retry.
func (r *ReservationRepo) Admit(
	ctx context.Context,
	res domain.Reservation,
	maxCapacity int,
) (domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Admit"
	const maxTxAttempts = 3

	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		var out domain.Reservation
		err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
			var coreErr error
			out, coreErr = r.admitCore(ctx, tx, res, maxCapacity)
			return coreErr
		})
		if err == nil {
			return out, nil
		}

		// Serialization failures surface from the core reads or from
		// commit; both are worth another attempt.
		if IsRetryable(err) {
			lastErr = err
			continue
		}
		return domain.Reservation{}, fmt.Errorf("%s:%w", op, err)
	}

	return domain.Reservation{}, fmt.Errorf("%s:%w", op, translateDBErr(lastErr))
}

func (r *ReservationRepo) admitCore(
	ctx context.Context,
	db DB,
	res domain.Reservation,
	maxCapacity int,
) (domain.Reservation, error) {
	var booked int
	if err := db.QueryRow(ctx,
		`SELECT COALESCE(SUM(party_size), 0)
       	 FROM reservations
      	 WHERE date = $1 AND time = $2 AND status = 'CONFIRMED'`,
		res.Date, res.Time,
	).Scan(&booked); err != nil {
		return domain.Reservation{}, translateDBErr(err)
	}

	if booked+res.PartySize > maxCapacity {
		return domain.Reservation{}, repository.ErrSlotFull
	}

	var dup bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS(
        	SELECT 1 FROM reservations
       	 WHERE LOWER(customer_name) = LOWER($1)
         	AND date = $2 AND time = $3 AND status = 'CONFIRMED')`,
		res.CustomerName, res.Date, res.Time,
	).Scan(&dup); err != nil {
		return domain.Reservation{}, translateDBErr(err)
	}

	if dup {
		return domain.Reservation{}, repository.ErrDuplicate
	}

	if err := db.QueryRow(ctx,
		`INSERT INTO reservations
        	(id, confirmation_code, customer_name, phone, date, time,
         	 party_size, special_requirements, status, created_at, updated_at)
      	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'CONFIRMED', now(), now())
      	 RETURNING created_at, updated_at`,
		res.ID, res.ConfirmationCode, res.CustomerName, res.Phone,
		res.Date, res.Time, res.PartySize, res.SpecialRequirements,
	).Scan(&res.CreatedAt, &res.UpdatedAt); err != nil {
		var pge *pgconn.PgError
		if errors.As(err, &pge) && pge.Code == "23505" {
			// The unique index on confirmation_code is the backstop for
			// the generate-probe-insert race in code allocation.
			return domain.Reservation{}, repository.ErrCodeTaken
		}
		return domain.Reservation{}, translateDBErr(err)
	}

	res.Status = domain.ReservationConfirmed
	return res, nil
}

// ConfirmedByDate returns the CONFIRMED reservations for a date in slot
// label order as stored.
func (r *ReservationRepo) ConfirmedByDate(ctx context.Context, date string) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.ConfirmedByDate"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, confirmation_code, customer_name, phone, date, time,
            	party_size, special_requirements, status, created_at, updated_at
       	 FROM reservations
      	 WHERE date = $1 AND status = 'CONFIRMED'
      	 ORDER BY time, created_at`,
		date,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(
			&res.ID, &res.ConfirmationCode, &res.CustomerName, &res.Phone,
			&res.Date, &res.Time, &res.PartySize, &res.SpecialRequirements,
			&res.Status, &res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// FindByCode looks a reservation up by its normalized confirmation code.
func (r *ReservationRepo) FindByCode(ctx context.Context, code string) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.FindByCode"

	db := r.handle()

	var res domain.Reservation
	err := db.QueryRow(ctx,
		`SELECT id, confirmation_code, customer_name, phone, date, time,
            	party_size, special_requirements, status, created_at, updated_at
       	 FROM reservations
      	 WHERE confirmation_code = $1`,
		code,
	).Scan(
		&res.ID, &res.ConfirmationCode, &res.CustomerName, &res.Phone,
		&res.Date, &res.Time, &res.PartySize, &res.SpecialRequirements,
		&res.Status, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &res, nil
}

// CodeExists probes the code space during allocation. Codes are never
// reused, cancelled reservations included, so the probe spans all rows.
func (r *ReservationRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	const op = "postgres.ReservationRepo.CodeExists"

	db := r.handle()

	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM reservations WHERE confirmation_code = $1)`,
		code,
	).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

// ActiveDuplicateExists reports whether the customer already holds a
// CONFIRMED reservation for the slot. Name matching is case-insensitive.
func (r *ReservationRepo) ActiveDuplicateExists(
	ctx context.Context,
	customerName, date, timeLabel string,
) (bool, error) {
	const op = "postgres.ReservationRepo.ActiveDuplicateExists"

	db := r.handle()

	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS(
        	SELECT 1 FROM reservations
       	 WHERE LOWER(customer_name) = LOWER($1)
         	AND date = $2 AND time = $3 AND status = 'CONFIRMED')`,
		customerName, date, timeLabel,
	).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

// UpdateStatus transitions a reservation and returns the updated row.
func (r *ReservationRepo) UpdateStatus(
	ctx context.Context,
	code string,
	status domain.ReservationStatus,
) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.UpdateStatus"

	db := r.handle()

	var res domain.Reservation
	err := db.QueryRow(ctx,
		`UPDATE reservations
        	SET status = $2, updated_at = now()
      	 WHERE confirmation_code = $1
      	 RETURNING id, confirmation_code, customer_name, phone, date, time,
                	 party_size, special_requirements, status, created_at, updated_at`,
		code, status,
	).Scan(
		&res.ID, &res.ConfirmationCode, &res.CustomerName, &res.Phone,
		&res.Date, &res.Time, &res.PartySize, &res.SpecialRequirements,
		&res.Status, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &res, nil
}
