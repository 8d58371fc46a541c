// Package notify defines the notification dispatch port. Delivery transport
// (SMS, push, MQTT) lives behind the Dispatcher interface; retry of
// transient failures is bounded here so the orchestrator can treat a
// persistently unreachable provider as an implicit rejection.
package notify

import (
	"context"
	"time"

	"github.com/fieldserv/matchd/core/logger"
)

// Dispatcher delivers engine notifications to the outside world.
type Dispatcher interface {
	NotifyProvider(ctx context.Context, providerID, requestID string) error
	NotifyClient(ctx context.Context, requestID, event string) error
	NotifyAdmin(ctx context.Context, requestID, reason string) error
}

// Retrying wraps a Dispatcher with a bounded retry policy.
type Retrying struct {
	next     Dispatcher
	attempts int
	backoff  time.Duration
	log      logger.Logger
}

// WithRetry returns a Dispatcher retrying each call up to attempts times
// with a fixed backoff between tries.
func WithRetry(next Dispatcher, attempts int, backoff time.Duration, log logger.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{next: next, attempts: attempts, backoff: backoff, log: log}
}

func (r *Retrying) NotifyProvider(ctx context.Context, providerID, requestID string) error {
	return r.retry(ctx, "provider", func() error { return r.next.NotifyProvider(ctx, providerID, requestID) })
}

func (r *Retrying) NotifyClient(ctx context.Context, requestID, event string) error {
	return r.retry(ctx, "client", func() error { return r.next.NotifyClient(ctx, requestID, event) })
}

func (r *Retrying) NotifyAdmin(ctx context.Context, requestID, reason string) error {
	return r.retry(ctx, "admin", func() error { return r.next.NotifyAdmin(ctx, requestID, reason) })
}

func (r *Retrying) retry(ctx context.Context, kind string, call func() error) error {
	var err error
	for i := 0; i < r.attempts; i++ {
		if err = call(); err == nil {
			return nil
		}
		r.log.Warnf("%s notification failed (try %d/%d): %v", kind, i+1, r.attempts, err)
		if i == r.attempts-1 {
			break
		}
		select {
		case <-time.After(r.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
