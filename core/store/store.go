// Package store defines the request store port. Transitions go through
// Update, a compare-and-swap keyed on the request's optimistic version, so a
// late timeout can never clobber a state that already moved.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fieldserv/matchd/core/model"
)

// ErrNotFound is returned when the request id is unknown.
var ErrNotFound = errors.New("request not found")

// ErrVersionMismatch is returned when the expected version is stale.
var ErrVersionMismatch = errors.New("request version mismatch")

// RequestStore persists requests and their assignment attempts.
type RequestStore interface {
	// Create persists a new request. The id must not exist yet.
	Create(ctx context.Context, req model.Request) error
	// Get returns a copy of the request.
	Get(ctx context.Context, id string) (model.Request, error)
	// List returns all requests matching the filter.
	List(ctx context.Context, f Filter) ([]model.Request, error)
	// Update applies mutate to the stored request if its version still
	// equals expectVersion, bumps the version and persists the result.
	// It returns the updated request or ErrVersionMismatch.
	Update(ctx context.Context, id string, expectVersion int64, mutate func(*model.Request)) (model.Request, error)
	// AppendAttempt records a contact attempt for the request.
	AppendAttempt(ctx context.Context, att model.AssignmentAttempt) error
	// Attempts returns the attempts of a request in contact order.
	Attempts(ctx context.Context, requestID string) ([]model.AssignmentAttempt, error)
	// SetAttemptOutcome resolves the pending attempt for the provider.
	SetAttemptOutcome(ctx context.Context, requestID, providerID string, outcome model.AttemptOutcome, respondedAt time.Time) error
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status *model.RequestStatus
	Open   bool // only non-terminal requests
}
