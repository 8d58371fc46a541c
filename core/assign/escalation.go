package assign

import (
	"context"
	"errors"
	"time"

	"github.com/fieldserv/matchd/core/events"
	"github.com/fieldserv/matchd/core/metrics"
	"github.com/fieldserv/matchd/core/model"
	"github.com/fieldserv/matchd/core/store"
)

// EscalationController reacts to exhausted contact attempts and elapsed
// deadlines. Escalation flags a request for admin attention without forcing
// a terminal state; auto-cancellation always wins over waiting for the
// admin and forces Pending requests to Failed.
type EscalationController struct {
	mgr *Manager
}

// EscalationDeadline returns the instant after which an untouched request is
// flagged for admin attention.
func (e *EscalationController) EscalationDeadline(req model.Request) time.Time {
	return req.CreatedAt.Add(e.mgr.opts.AdminEscalationTimeout)
}

// AutoCancelDeadline returns the instant after which a Pending request is
// forced to Failed.
func (e *EscalationController) AutoCancelDeadline(req model.Request) time.Time {
	return req.CreatedAt.Add(e.mgr.opts.AutoCancelTimeout)
}

// Escalate marks the request for admin attention. The request keeps status
// Pending and stays eligible for manual assignment. Escalating twice is a
// no-op.
func (e *EscalationController) Escalate(ctx context.Context, requestID, reason string) error {
	for {
		req, err := e.mgr.store.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Escalated || req.Status != model.StatusPending {
			return nil
		}
		now := e.mgr.clock()
		_, err = e.mgr.store.Update(ctx, requestID, req.Version, func(r *model.Request) {
			r.Escalated = true
			r.Record("escalated:"+reason, now)
		})
		if errors.Is(err, store.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return err
		}
		escalationsTotal.Inc()
		if rec, ok := e.mgr.sink.(metrics.EscalationRecorder); ok {
			if err := rec.RecordEscalation(metrics.EscalationEvent{RequestID: requestID, Reason: reason, Time: now}); err != nil {
				e.mgr.log.Errorf("escalation metrics error: %v", err)
			}
		}
		e.mgr.bus.Publish(events.EscalationEvent{RequestID: requestID, Reason: reason, At: now})
		if err := e.mgr.notifier.NotifyAdmin(ctx, requestID, reason); err != nil {
			e.mgr.log.Errorf("admin notification failed for %s: %v", requestID, err)
		}
		e.mgr.log.Warnf("request %s escalated: %s", requestID, reason)
		return nil
	}
}

// ForceFail moves a Pending request to Failed once its auto-cancel deadline
// elapsed. A request that already moved on is left untouched.
func (e *EscalationController) ForceFail(ctx context.Context, requestID, reason string) error {
	for {
		req, err := e.mgr.store.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != model.StatusPending {
			return nil
		}
		now := e.mgr.clock()
		_, err = e.mgr.store.Update(ctx, requestID, req.Version, func(r *model.Request) {
			r.Status = model.StatusFailed
			r.ResponseDeadline = nil
			r.Record("failed:"+reason, now)
		})
		if errors.Is(err, store.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return err
		}
		autoCancelTotal.Inc()
		activeRequests.Dec()
		e.mgr.bus.Publish(events.TransitionEvent{
			RequestID: requestID,
			From:      model.StatusPending,
			To:        model.StatusFailed,
			Reason:    reason,
			At:        now,
		})
		if err := e.mgr.notifier.NotifyClient(ctx, requestID, "request_failed"); err != nil {
			e.mgr.log.Errorf("client notification failed for %s: %v", requestID, err)
		}
		e.mgr.log.Warnf("request %s failed: %s", requestID, reason)
		return nil
	}
}

// Sweep re-checks deadlines for every open request. It backs the request
// workers after a process restart: deadlines are recomputed from stored
// timestamps, so anything overdue fires immediately.
func (e *EscalationController) Sweep(ctx context.Context) error {
	open, err := e.mgr.store.List(ctx, store.Filter{Open: true})
	if err != nil {
		return err
	}
	now := e.mgr.clock()
	for _, req := range open {
		if req.Status != model.StatusPending {
			continue
		}
		switch {
		case !now.Before(e.AutoCancelDeadline(req)):
			if err := e.ForceFail(ctx, req.ID, "auto_cancel_timeout"); err != nil {
				e.mgr.log.Errorf("sweep: force fail %s: %v", req.ID, err)
			}
		case !req.Escalated && !now.Before(e.EscalationDeadline(req)):
			if err := e.Escalate(ctx, req.ID, "admin_escalation_timeout"); err != nil {
				e.mgr.log.Errorf("sweep: escalate %s: %v", req.ID, err)
			}
		}
	}
	return nil
}
