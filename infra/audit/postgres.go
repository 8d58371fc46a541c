// Package audit provides the Postgres-backed audit store.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	coreaudit "github.com/fieldserv/matchd/core/audit"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS assignment_audit (
	id BIGSERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	request_id TEXT NOT NULL,
	provider_id TEXT,
	service_type TEXT NOT NULL,
	priority TEXT NOT NULL,
	status TEXT NOT NULL,
	escalated BOOLEAN NOT NULL DEFAULT FALSE,
	attempt JSONB
);
CREATE INDEX IF NOT EXISTS assignment_audit_request_idx ON assignment_audit (request_id);
CREATE INDEX IF NOT EXISTS assignment_audit_ts_idx ON assignment_audit (ts);
`

// PostgresStore persists audit records in Postgres via a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database, verifies connectivity and
// creates the audit table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Append(ctx context.Context, rec coreaudit.Record) error {
	var attempt []byte
	var providerID *string
	if rec.Attempt != nil {
		b, err := json.Marshal(rec.Attempt)
		if err != nil {
			return err
		}
		attempt = b
		providerID = &rec.Attempt.ProviderID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assignment_audit (ts, request_id, provider_id, service_type, priority, status, escalated, attempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Timestamp, rec.RequestID, providerID, rec.ServiceType, rec.Priority, rec.Status, rec.Escalated, attempt)
	return err
}

func (s *PostgresStore) Query(ctx context.Context, q coreaudit.Query) ([]coreaudit.Record, error) {
	sql := `SELECT ts, request_id, service_type, priority, status, escalated, attempt
		FROM assignment_audit WHERE TRUE`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		sql += fmt.Sprintf(" AND %s $%d", clause, n)
		args = append(args, v)
	}
	if !q.Start.IsZero() {
		add("ts >=", q.Start)
	}
	if !q.End.IsZero() {
		add("ts <=", q.End)
	}
	if q.RequestID != "" {
		add("request_id =", q.RequestID)
	}
	if q.ProviderID != "" {
		add("provider_id =", q.ProviderID)
	}
	sql += " ORDER BY ts"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []coreaudit.Record
	for rows.Next() {
		var rec coreaudit.Record
		var ts time.Time
		var attempt []byte
		if err := rows.Scan(&ts, &rec.RequestID, &rec.ServiceType, &rec.Priority, &rec.Status, &rec.Escalated, &attempt); err != nil {
			return nil, err
		}
		rec.Timestamp = ts
		if len(attempt) > 0 {
			if err := json.Unmarshal(attempt, &rec.Attempt); err != nil {
				return nil, err
			}
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
