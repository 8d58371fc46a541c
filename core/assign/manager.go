package assign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserv/matchd/core/audit"
	"github.com/fieldserv/matchd/core/directory"
	"github.com/fieldserv/matchd/core/events"
	"github.com/fieldserv/matchd/core/logger"
	"github.com/fieldserv/matchd/core/match"
	"github.com/fieldserv/matchd/core/metrics"
	"github.com/fieldserv/matchd/core/model"
	"github.com/fieldserv/matchd/core/notify"
	"github.com/fieldserv/matchd/core/store"
	"github.com/fieldserv/matchd/internal/eventbus"
)

// Manager is the assignment orchestrator. It owns one worker goroutine per
// open request; workers are fully parallel and never block on each other.
// The only shared resource is provider capacity, guarded by the directory's
// atomic reservation.
type Manager struct {
	opts      Options
	weights   match.ScoringWeights
	selector  match.Selector
	store     store.RequestStore
	directory directory.Directory
	notifier  notify.Dispatcher
	sink      metrics.MetricsSink
	bus       *eventbus.Bus[events.Event]
	log       logger.Logger
	clock     func() time.Time

	escalation *EscalationController

	auditMu    sync.Mutex
	auditStore audit.Store

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRequest is the intake payload for a new service request.
type NewRequest struct {
	ServiceType   string
	Location      model.Location
	Priority      model.Priority
	ClientContact string
}

// NewManager creates an orchestrator bound to an immutable configuration
// snapshot. Weights must already be validated; configuration changes require
// a new Manager and only apply to requests created through it.
func NewManager(opts Options, weights match.ScoringWeights, st store.RequestStore, dir directory.Directory, disp notify.Dispatcher, sink metrics.MetricsSink, bus *eventbus.Bus[events.Event], log logger.Logger) (*Manager, error) {
	if st == nil || dir == nil || disp == nil || log == nil {
		return nil, fmt.Errorf("assign: nil parameter provided to NewManager")
	}
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("assign: %w", err)
	}
	if opts.MaxProvidersContacted < 1 {
		return nil, fmt.Errorf("assign: max providers contacted must be positive")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if bus == nil {
		bus = eventbus.New[events.Event]()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:      opts,
		weights:   weights,
		store:     st,
		directory: dir,
		notifier:  disp,
		sink:      sink,
		bus:       bus,
		log:       log,
		clock:     time.Now,
		workers:   make(map[string]*worker),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.escalation = &EscalationController{mgr: m}
	return m, nil
}

// Escalation exposes the escalation controller for deadline sweeps.
func (m *Manager) Escalation() *EscalationController { return m.escalation }

// SetAuditStore configures the store used to persist assignment decisions.
func (m *Manager) SetAuditStore(store audit.Store) {
	m.auditMu.Lock()
	m.auditStore = store
	m.auditMu.Unlock()
}

// Submit creates a Pending request and starts its worker.
func (m *Manager) Submit(ctx context.Context, in NewRequest) (model.Request, error) {
	now := m.clock()
	req := model.Request{
		ID:            uuid.NewString(),
		ServiceType:   in.ServiceType,
		Location:      in.Location,
		Priority:      in.Priority,
		ClientContact: in.ClientContact,
		Status:        model.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	req.Record("created", now)
	if err := req.Validate(); err != nil {
		return model.Request{}, err
	}
	if err := m.store.Create(ctx, req); err != nil {
		return model.Request{}, err
	}
	activeRequests.Inc()
	m.log.Infof("request %s created (%s, %s)", req.ID, req.ServiceType, req.Priority)
	m.spawn(req.ID)
	return req, nil
}

// Get returns the request including its timeline.
func (m *Manager) Get(ctx context.Context, id string) (model.Request, error) {
	return m.store.Get(ctx, id)
}

// Attempts returns the contact attempts of a request in order.
func (m *Manager) Attempts(ctx context.Context, id string) ([]model.AssignmentAttempt, error) {
	return m.store.Attempts(ctx, id)
}

// Accept records that the contacted provider accepted the request.
func (m *Manager) Accept(ctx context.Context, requestID, providerID string) error {
	return m.deliver(ctx, requestID, command{kind: cmdAccept, providerID: providerID})
}

// Reject records that the contacted provider declined the request.
func (m *Manager) Reject(ctx context.Context, requestID, providerID string) error {
	return m.deliver(ctx, requestID, command{kind: cmdReject, providerID: providerID})
}

// Cancel applies a client or admin initiated cancellation. It is final.
func (m *Manager) Cancel(ctx context.Context, requestID, reason string) error {
	if reason == "" {
		reason = "cancelled"
	}
	return m.deliver(ctx, requestID, command{kind: cmdCancel, reason: reason})
}

// Start records the external confirmation that the provider began work.
func (m *Manager) Start(ctx context.Context, requestID string) error {
	_, err := m.applyDirect(ctx, requestID, model.StatusInProgress, "work_started", nil)
	return err
}

// Complete records the external completion confirmation and releases the
// provider's capacity slot.
func (m *Manager) Complete(ctx context.Context, requestID string) error {
	req, err := m.applyDirect(ctx, requestID, model.StatusCompleted, "work_completed", nil)
	if err != nil {
		return err
	}
	if req.AssignedProviderID != nil {
		m.directory.Release(*req.AssignedProviderID)
	}
	if err := m.notifier.NotifyClient(ctx, requestID, "request_completed"); err != nil {
		m.log.Errorf("client notification failed for %s: %v", requestID, err)
	}
	return nil
}

// Recover restarts workers for every open request, typically after a process
// restart. Deadlines are recomputed from the stored timestamps, so overdue
// timers fire immediately.
func (m *Manager) Recover(ctx context.Context) error {
	open, err := m.store.List(ctx, store.Filter{Open: true})
	if err != nil {
		return err
	}
	n := 0
	for _, req := range open {
		if req.Status == model.StatusPending || req.Status == model.StatusProviderNotified {
			m.spawn(req.ID)
			n++
		}
	}
	activeRequests.Set(float64(len(open)))
	if n > 0 {
		m.log.Infof("recovered %d open requests", n)
	}
	return nil
}

// Close stops all workers and waits for them to drain.
func (m *Manager) Close() error {
	m.cancel()
	m.wg.Wait()
	return nil
}

func (m *Manager) spawn(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return
	}
	if _, ok := m.workers[id]; ok {
		return
	}
	w := newWorker(m, id)
	m.workers[id] = w
	m.wg.Add(1)
	go w.run(m.ctx)
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.workers, id)
	m.mu.Unlock()
}

// deliver routes an external event to the request worker. When no worker is
// alive (the request advanced past the contact phase or the engine just
// restarted) the event is resolved against the store directly.
func (m *Manager) deliver(ctx context.Context, requestID string, cmd command) error {
	m.mu.Lock()
	wk := m.workers[requestID]
	m.mu.Unlock()
	if wk != nil {
		cmd.reply = make(chan error, 1)
		select {
		case wk.events <- cmd:
			select {
			case err := <-cmd.reply:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-wk.done:
			// Worker exited between lookup and send; fall through.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.direct(ctx, requestID, cmd)
}

// direct resolves an external event without a worker.
func (m *Manager) direct(ctx context.Context, requestID string, cmd command) error {
	switch cmd.kind {
	case cmdCancel:
		req, err := m.applyDirect(ctx, requestID, model.StatusCancelled, "cancelled:"+cmd.reason, func(r *model.Request) {
			r.ResponseDeadline = nil
		})
		if err != nil {
			return err
		}
		if req.AssignedProviderID != nil {
			m.directory.Release(*req.AssignedProviderID)
		}
		if err := m.notifier.NotifyClient(ctx, requestID, "request_cancelled"); err != nil {
			m.log.Errorf("client notification failed for %s: %v", requestID, err)
		}
		return nil
	default:
		req, err := m.store.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return transitionError(req.Status, model.StatusAssigned)
		}
		// Accept or reject after the request left ProviderNotified: the
		// response lost the race against a timeout or another provider.
		return fmt.Errorf("request %s is %s: %w", requestID, req.Status, ErrConflict)
	}
}

// applyDirect performs a CAS transition outside a worker. The mutation is
// retried on version mismatches; an illegal edge fails without modifying the
// request.
func (m *Manager) applyDirect(ctx context.Context, requestID string, to model.RequestStatus, event string, extra func(*model.Request)) (model.Request, error) {
	for {
		req, err := m.store.Get(ctx, requestID)
		if err != nil {
			return model.Request{}, err
		}
		if !legalTransition(req.Status, to) {
			return model.Request{}, transitionError(req.Status, to)
		}
		now := m.clock()
		from := req.Status
		updated, err := m.store.Update(ctx, requestID, req.Version, func(r *model.Request) {
			r.Status = to
			r.Record(event, now)
			if extra != nil {
				extra(r)
			}
		})
		if errors.Is(err, store.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return model.Request{}, err
		}
		m.publishTransition(requestID, from, to, event, now)
		return updated, nil
	}
}

// publishTransition emits the transition on the bus and maintains the open
// request gauge.
func (m *Manager) publishTransition(requestID string, from, to model.RequestStatus, reason string, at time.Time) {
	if to.Terminal() {
		activeRequests.Dec()
	}
	m.log.Debugf("request %s: %s -> %s (%s)", requestID, from, to, reason)
	m.bus.Publish(events.TransitionEvent{RequestID: requestID, From: from, To: to, Reason: reason, At: at})
}

// recordAttempt feeds a resolved contact attempt into metrics and the bus.
func (m *Manager) recordAttempt(att model.AssignmentAttempt, round int) {
	req, err := m.store.Get(context.Background(), att.RequestID)
	if err != nil {
		m.log.Errorf("attempt metrics: load request %s: %v", att.RequestID, err)
		return
	}
	attemptsTotal.WithLabelValues(att.Outcome.String(), req.ServiceType).Inc()
	var latency time.Duration
	if att.RespondedAt != nil {
		latency = att.RespondedAt.Sub(att.ContactedAt)
	}
	responseLatency.WithLabelValues(att.Outcome.String()).Observe(latency.Seconds())
	rec := metrics.AssignmentRecord{
		RequestID:   att.RequestID,
		ProviderID:  att.ProviderID,
		ServiceType: req.ServiceType,
		Priority:    req.Priority,
		Outcome:     att.Outcome,
		Score:       att.Score,
		Round:       round,
		Time:        m.clock(),
	}
	if err := m.sink.RecordAssignment([]metrics.AssignmentRecord{rec}); err != nil {
		m.log.Errorf("assignment metrics error: %v", err)
	}
	if lr, ok := m.sink.(metrics.LatencyRecorder); ok && att.RespondedAt != nil {
		if err := lr.RecordResponseLatency([]metrics.ResponseLatency{{
			RequestID:  att.RequestID,
			ProviderID: att.ProviderID,
			Outcome:    att.Outcome,
			Latency:    latency,
		}}); err != nil {
			m.log.Errorf("latency metrics error: %v", err)
		}
	}
	m.bus.Publish(events.AttemptEvent{
		RequestID:  att.RequestID,
		ProviderID: att.ProviderID,
		Outcome:    att.Outcome,
		Score:      att.Score,
		Latency:    latency,
	})
	m.auditMu.Lock()
	as := m.auditStore
	m.auditMu.Unlock()
	if as != nil {
		a := att
		if err := as.Append(context.Background(), audit.Record{
			Timestamp:   m.clock(),
			RequestID:   req.ID,
			ServiceType: req.ServiceType,
			Priority:    req.Priority.String(),
			Status:      req.Status.String(),
			Escalated:   req.Escalated,
			Attempt:     &a,
		}); err != nil {
			m.log.Errorf("audit append error: %v", err)
		}
	}
}
