package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seatline/seatline/internal/domain"
)

// CallRecordRepo persists the call log written from lifecycle
// notifications. Rows are append-then-close; nothing in the admission path
// reads them back.
type CallRecordRepo struct {
	pool *pgxpool.Pool
}

func (r *CallRecordRepo) handle() DB {
	return r.pool
}

func (r *CallRecordRepo) Start(ctx context.Context, rec domain.CallRecord) error {
	const op = "postgres.CallRecordRepo.Start"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO call_records (id, call_id, provider_call_id, started_at)
       	 VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.CallID, rec.ProviderCallID, rec.StartedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *CallRecordRepo) Finish(ctx context.Context, callID, reason string, endedAt time.Time) error {
	const op = "postgres.CallRecordRepo.Finish"

	db := r.handle()

	_, err := db.Exec(ctx,
		`UPDATE call_records
        	SET ended_at = $2, end_reason = $3
      	 WHERE call_id = $1 AND ended_at IS NULL`,
		callID, endedAt, reason,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Recent returns the newest call records, most recent first.
func (r *CallRecordRepo) Recent(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	const op = "postgres.CallRecordRepo.Recent"

	if limit <= 0 {
		limit = 50
	}

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, call_id, provider_call_id, started_at, ended_at, COALESCE(end_reason, '')
       	 FROM call_records
      	 ORDER BY started_at DESC
      	 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.CallRecord
	for rows.Next() {
		var rec domain.CallRecord
		if err := rows.Scan(
			&rec.ID, &rec.CallID, &rec.ProviderCallID,
			&rec.StartedAt, &rec.EndedAt, &rec.EndReason,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
