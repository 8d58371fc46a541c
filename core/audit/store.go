// Package audit persists assignment decisions for later inspection. Records
// are append-only; backends include a JSONL file and Postgres.
package audit

import (
	"context"
	"time"

	"github.com/fieldserv/matchd/core/model"
)

// Record captures one resolved contact attempt with its context.
type Record struct {
	Timestamp   time.Time                `json:"timestamp"`
	RequestID   string                   `json:"request_id"`
	ServiceType string                   `json:"service_type"`
	Priority    string                   `json:"priority"`
	Status      string                   `json:"status"`
	Escalated   bool                     `json:"escalated"`
	Attempt     *model.AssignmentAttempt `json:"attempt,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start      time.Time
	End        time.Time
	RequestID  string
	ProviderID string
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
