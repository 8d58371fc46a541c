package assign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldserv/matchd/core/match"
	"github.com/fieldserv/matchd/core/model"
	"github.com/fieldserv/matchd/core/store"
)

type commandKind int

const (
	cmdAccept commandKind = iota
	cmdReject
	cmdCancel
)

// command is an external event routed to the request worker that owns the
// timers for the request.
type command struct {
	kind       commandKind
	providerID string
	reason     string
	reply      chan error
}

// worker drives one request through the state machine. It is the only writer
// for its request while alive; every transition is still a compare-and-swap
// on the request version so that late timers stay no-ops.
type worker struct {
	mgr       *Manager
	requestID string
	events    chan command
	done      chan struct{}
}

func newWorker(mgr *Manager, requestID string) *worker {
	return &worker{
		mgr:       mgr,
		requestID: requestID,
		events:    make(chan command),
		done:      make(chan struct{}),
	}
}

func (w *worker) run(ctx context.Context) {
	defer w.mgr.wg.Done()
	defer close(w.done)
	defer w.mgr.forget(w.requestID)
	for {
		req, err := w.mgr.store.Get(ctx, w.requestID)
		if err != nil {
			if ctx.Err() == nil {
				w.mgr.log.Errorf("worker %s: load request: %v", w.requestID, err)
			}
			return
		}
		if req.Status.Terminal() || req.Status == model.StatusAssigned || req.Status == model.StatusInProgress {
			return
		}
		var again bool
		switch req.Status {
		case model.StatusPending:
			again = w.nextRound(ctx, req)
		case model.StatusProviderNotified:
			again = w.awaitResponse(ctx, req)
		}
		if !again {
			return
		}
	}
}

// nextRound selects, scores and contacts the best uncontacted candidate.
// It returns false when the worker should exit.
func (w *worker) nextRound(ctx context.Context, req model.Request) bool {
	if req.Escalated || len(req.ContactedProviderIDs) >= w.mgr.opts.MaxProvidersContacted {
		return w.holdForDeadlines(ctx, req)
	}

	now := w.mgr.clock()
	// The automatic assignment window is bounded: once it elapsed the
	// request goes to the admin instead of another contact round.
	if w.mgr.opts.AssignmentTimeout > 0 && !now.Before(req.CreatedAt.Add(w.mgr.opts.AssignmentTimeout)) {
		if err := w.mgr.escalation.Escalate(ctx, req.ID, "assignment_timeout"); err != nil && ctx.Err() == nil {
			w.mgr.log.Errorf("worker %s: escalate: %v", req.ID, err)
		}
		return true
	}

	firstRound := len(req.ContactedProviderIDs) == 0
	exclude := make(map[string]struct{}, len(req.ContactedProviderIDs))
	for _, id := range req.ContactedProviderIDs {
		exclude[id] = struct{}{}
	}
	// Availability may have changed since the last round, so the eligible
	// set is always recomputed from a fresh snapshot.
	candidates := w.mgr.selector.Candidates(w.mgr.directory.Snapshot(), req, exclude)
	if len(candidates) == 0 {
		reason := "no_further_candidates"
		if firstRound {
			reason = "no_candidate_available"
			w.mgr.log.Warnf("request %s: %v", req.ID, ErrNoCandidateAvailable)
		}
		if err := w.mgr.escalation.Escalate(ctx, req.ID, reason); err != nil && ctx.Err() == nil {
			w.mgr.log.Errorf("worker %s: escalate: %v", req.ID, err)
		}
		return true
	}

	ranked := match.Rank(candidates, req, w.mgr.weights, now)
	top := ranked[0]
	deadline := now.Add(w.mgr.opts.ProviderResponseTimeout)

	_, err := w.mgr.store.Update(ctx, req.ID, req.Version, func(r *model.Request) {
		r.Status = model.StatusProviderNotified
		r.ContactedProviderIDs = append(r.ContactedProviderIDs, top.Provider.ID)
		r.ResponseDeadline = &deadline
		r.Record("provider_contacted:"+top.Provider.ID, now)
	})
	if errors.Is(err, store.ErrVersionMismatch) {
		return true
	}
	if err != nil {
		w.mgr.log.Errorf("worker %s: contact transition: %v", req.ID, err)
		return false
	}
	w.mgr.publishTransition(req.ID, model.StatusPending, model.StatusProviderNotified, "provider_contacted", now)
	if err := w.mgr.store.AppendAttempt(ctx, model.AssignmentAttempt{
		RequestID:   req.ID,
		ProviderID:  top.Provider.ID,
		ContactedAt: now,
		Outcome:     model.AttemptPending,
		Score:       top.Score,
	}); err != nil {
		w.mgr.log.Errorf("worker %s: record attempt: %v", req.ID, err)
	}

	if err := w.mgr.notifier.NotifyProvider(ctx, top.Provider.ID, req.ID); err != nil {
		notifyFailure.Inc()
		w.mgr.log.Warnf("request %s: provider %s unreachable, treating as rejection: %v", req.ID, top.Provider.ID, err)
		w.resolveAttempt(ctx, req.ID, top.Provider.ID, model.AttemptRejected, "provider_unreachable")
		return true
	}
	notifySuccess.Inc()
	return true
}

// awaitResponse blocks until the contacted provider answers, the response
// timer fires or the request is cancelled. It returns false when the worker
// should exit.
func (w *worker) awaitResponse(ctx context.Context, req model.Request) bool {
	providerID := req.ContactedProviderIDs[len(req.ContactedProviderIDs)-1]
	deadline := w.mgr.clock()
	if req.ResponseDeadline != nil {
		deadline = *req.ResponseDeadline
	}
	// A deadline already in the past (restart recovery) fires immediately.
	timer := time.NewTimer(deadline.Sub(w.mgr.clock()))
	defer timer.Stop()

	for {
		select {
		case cmd := <-w.events:
			switch cmd.kind {
			case cmdCancel:
				err := w.cancel(ctx, cmd.reason)
				cmd.reply <- err
				return err != nil
			case cmdReject:
				if cmd.providerID != providerID {
					cmd.reply <- fmt.Errorf("provider %s was not contacted for request %s: %w", cmd.providerID, req.ID, ErrConflict)
					continue
				}
				w.resolveAttempt(ctx, req.ID, providerID, model.AttemptRejected, "provider_rejected")
				cmd.reply <- nil
				return true
			case cmdAccept:
				if cmd.providerID != providerID {
					cmd.reply <- fmt.Errorf("provider %s was not contacted for request %s: %w", cmd.providerID, req.ID, ErrConflict)
					continue
				}
				return w.accept(ctx, req, providerID, cmd)
			}
		case <-timer.C:
			w.resolveAttempt(ctx, req.ID, providerID, model.AttemptTimedOut, "response_timeout")
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// accept applies the guarded capacity reservation and the Assigned
// transition. A lost reservation race is reported as a Conflict and treated
// like a rejection so the orchestrator falls back to the next candidate.
func (w *worker) accept(ctx context.Context, req model.Request, providerID string, cmd command) bool {
	if !w.mgr.directory.Reserve(providerID) {
		cmd.reply <- fmt.Errorf("provider %s is at capacity: %w", providerID, ErrConflict)
		w.resolveAttempt(ctx, req.ID, providerID, model.AttemptRejected, "capacity_conflict")
		return true
	}
	now := w.mgr.clock()
	_, err := w.mgr.store.Update(ctx, req.ID, req.Version, func(r *model.Request) {
		r.Status = model.StatusAssigned
		r.AssignedProviderID = &providerID
		r.ResponseDeadline = nil
		r.Record("provider_accepted:"+providerID, now)
	})
	if err != nil {
		w.mgr.directory.Release(providerID)
		cmd.reply <- fmt.Errorf("request %s already moved on: %w", req.ID, ErrConflict)
		return true
	}
	cmd.reply <- nil
	w.mgr.publishTransition(req.ID, model.StatusProviderNotified, model.StatusAssigned, "provider_accepted", now)
	w.recordOutcome(ctx, req.ID, providerID, model.AttemptAccepted, now)
	if err := w.mgr.notifier.NotifyClient(ctx, req.ID, "provider_assigned"); err != nil {
		w.mgr.log.Errorf("client notification failed for %s: %v", req.ID, err)
	}
	return false
}

// holdForDeadlines parks an exhausted or escalated Pending request until its
// auto-cancel deadline, while still accepting an explicit cancellation.
// Escalation happens first if it has not yet.
func (w *worker) holdForDeadlines(ctx context.Context, req model.Request) bool {
	if !req.Escalated {
		if err := w.mgr.escalation.Escalate(ctx, req.ID, "providers_exhausted"); err != nil && ctx.Err() == nil {
			w.mgr.log.Errorf("worker %s: escalate: %v", req.ID, err)
		}
		return true
	}
	timer := time.NewTimer(w.mgr.escalation.AutoCancelDeadline(req).Sub(w.mgr.clock()))
	defer timer.Stop()
	for {
		select {
		case cmd := <-w.events:
			switch cmd.kind {
			case cmdCancel:
				err := w.cancel(ctx, cmd.reason)
				cmd.reply <- err
				return err != nil
			default:
				cmd.reply <- fmt.Errorf("request %s has no outstanding contact attempt: %w", req.ID, ErrConflict)
			}
		case <-timer.C:
			if err := w.mgr.escalation.ForceFail(ctx, req.ID, "auto_cancel_timeout"); err != nil && ctx.Err() == nil {
				w.mgr.log.Errorf("worker %s: auto cancel: %v", req.ID, err)
			}
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// cancel applies the explicit cancellation edge. It is final: outstanding
// timers die with the worker.
func (w *worker) cancel(ctx context.Context, reason string) error {
	for {
		req, err := w.mgr.store.Get(ctx, w.requestID)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return transitionError(req.Status, model.StatusCancelled)
		}
		now := w.mgr.clock()
		from := req.Status
		_, err = w.mgr.store.Update(ctx, req.ID, req.Version, func(r *model.Request) {
			r.Status = model.StatusCancelled
			r.ResponseDeadline = nil
			r.Record("cancelled:"+reason, now)
		})
		if errors.Is(err, store.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return err
		}
		w.mgr.publishTransition(req.ID, from, model.StatusCancelled, reason, now)
		if err := w.mgr.notifier.NotifyClient(ctx, req.ID, "request_cancelled"); err != nil {
			w.mgr.log.Errorf("client notification failed for %s: %v", req.ID, err)
		}
		return nil
	}
}

// resolveAttempt closes the outstanding contact attempt and moves the
// request back to Pending for the next fallback round. A stale version is a
// silent no-op: the state already advanced past the timer.
func (w *worker) resolveAttempt(ctx context.Context, requestID, providerID string, outcome model.AttemptOutcome, reason string) {
	for {
		req, err := w.mgr.store.Get(ctx, requestID)
		if err != nil {
			return
		}
		if req.Status != model.StatusProviderNotified {
			return
		}
		now := w.mgr.clock()
		_, err = w.mgr.store.Update(ctx, requestID, req.Version, func(r *model.Request) {
			r.Status = model.StatusPending
			r.ResponseDeadline = nil
			r.Record(fmt.Sprintf("%s:%s", reason, providerID), now)
		})
		if errors.Is(err, store.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			w.mgr.log.Errorf("worker %s: resolve attempt: %v", requestID, err)
			return
		}
		w.mgr.publishTransition(requestID, model.StatusProviderNotified, model.StatusPending, reason, now)
		w.recordOutcome(ctx, requestID, providerID, outcome, now)
		return
	}
}

// recordOutcome persists the attempt outcome and feeds metrics and the bus.
func (w *worker) recordOutcome(ctx context.Context, requestID, providerID string, outcome model.AttemptOutcome, now time.Time) {
	if err := w.mgr.store.SetAttemptOutcome(ctx, requestID, providerID, outcome, now); err != nil {
		w.mgr.log.Errorf("worker %s: attempt outcome: %v", requestID, err)
	}
	atts, err := w.mgr.store.Attempts(ctx, requestID)
	if err != nil {
		w.mgr.log.Errorf("worker %s: load attempts: %v", requestID, err)
		return
	}
	for i := len(atts) - 1; i >= 0; i-- {
		if atts[i].ProviderID != providerID || atts[i].Outcome != outcome {
			continue
		}
		w.mgr.recordAttempt(atts[i], i+1)
		return
	}
}
