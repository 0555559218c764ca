package joblog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trubo/mail-gateway/internal/core"
)

type Postgres struct{ DB *pgxpool.Pool }

func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{DB: pool} }

func (s *Postgres) RecordEnqueue(ctx context.Context, jobID, name, priority string, providerKeyUsed bool, payload any) error {
	event, err := json.Marshal(Event{Status: StatusEnqueued, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO jobs (job_id, name, priority, provider_key_used, payload, status, events)
		VALUES ($1, $2, $3, $4, $5, 'enqueued', jsonb_build_array($6::jsonb))
		ON CONFLICT (job_id) DO UPDATE SET
			name = EXCLUDED.name,
			priority = EXCLUDED.priority,
			provider_key_used = EXCLUDED.provider_key_used,
			payload = EXCLUDED.payload,
			events = jobs.events || $6::jsonb,
			updated_at = now()
	`, jobID, name, priority, providerKeyUsed, marshalOrNull(payload), event)
	return err
}

func (s *Postgres) RecordStatus(ctx context.Context, jobID, status string, result, errVal any) error {
	event, err := json.Marshal(Event{
		Status: status,
		At:     time.Now().UTC(),
		Result: marshalOrNull(result),
		Error:  marshalOrNull(errVal),
	})
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO jobs (job_id, status, result, error, events)
		VALUES ($1, $2, $3, $4, jsonb_build_array($5::jsonb))
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			events = jobs.events || $5::jsonb,
			updated_at = now()
	`, jobID, status, marshalOrNull(result), marshalOrNull(errVal), event)
	return err
}

const recordColumns = `job_id, COALESCE(name,''), COALESCE(priority,''), provider_key_used,
	payload, COALESCE(status,''), result, error, events, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var events []byte
	if err := row.Scan(&r.JobID, &r.Name, &r.Priority, &r.ProviderKeyUsed,
		&r.Payload, &r.Status, &r.Result, &r.Error, &events, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &r.Events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
	}
	return &r, nil
}

func (s *Postgres) Get(ctx context.Context, jobID string) (*Record, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+recordColumns+` FROM jobs WHERE job_id = $1`, jobID)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	return r, err
}

func (s *Postgres) List(ctx context.Context, status string, limit, page int) ([]Record, error) {
	q := `SELECT ` + recordColumns + ` FROM jobs`
	args := []any{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Postgres) Events(ctx context.Context, jobID string) ([]Event, error) {
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT events FROM jobs WHERE job_id = $1`, jobID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var events []Event
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
	}
	return events, nil
}

func (s *Postgres) Delete(ctx context.Context, jobID string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM jobs WHERE job_id = $1`, jobID)
	return err
}

func (s *Postgres) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.Query(ctx, `SELECT status, COUNT(*) FROM jobs WHERE status IS NOT NULL GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
