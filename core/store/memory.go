package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fieldserv/matchd/core/model"
)

// MemoryStore is the in-memory RequestStore used by tests and single-node
// deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]model.Request
	attempts map[string][]model.AssignmentAttempt
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]model.Request),
		attempts: make(map[string][]model.AssignmentAttempt),
	}
}

func (s *MemoryStore) Create(ctx context.Context, req model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; ok {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return model.Request{}, ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Request
	for _, req := range s.requests {
		if f.Status != nil && req.Status != *f.Status {
			continue
		}
		if f.Open && req.Status.Terminal() {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, expectVersion int64, mutate func(*model.Request)) (model.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return model.Request{}, ErrNotFound
	}
	if req.Version != expectVersion {
		return model.Request{}, ErrVersionMismatch
	}
	next := cloneRequest(req)
	mutate(&next)
	next.Version = req.Version + 1
	s.requests[id] = next
	return cloneRequest(next), nil
}

func (s *MemoryStore) AppendAttempt(ctx context.Context, att model.AssignmentAttempt) error {
	s.mu.Lock()
	s.attempts[att.RequestID] = append(s.attempts[att.RequestID], att)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Attempts(ctx context.Context, requestID string) ([]model.AssignmentAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AssignmentAttempt(nil), s.attempts[requestID]...), nil
}

func (s *MemoryStore) SetAttemptOutcome(ctx context.Context, requestID, providerID string, outcome model.AttemptOutcome, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	atts := s.attempts[requestID]
	for i := len(atts) - 1; i >= 0; i-- {
		if atts[i].ProviderID == providerID && atts[i].Outcome == model.AttemptPending {
			atts[i].Outcome = outcome
			at := respondedAt
			atts[i].RespondedAt = &at
			return nil
		}
	}
	return fmt.Errorf("no pending attempt for request %s provider %s", requestID, providerID)
}

func cloneRequest(req model.Request) model.Request {
	cp := req
	cp.ContactedProviderIDs = append([]string(nil), req.ContactedProviderIDs...)
	cp.Timeline = append([]model.TimelineEvent(nil), req.Timeline...)
	if req.AssignedProviderID != nil {
		id := *req.AssignedProviderID
		cp.AssignedProviderID = &id
	}
	if req.ResponseDeadline != nil {
		t := *req.ResponseDeadline
		cp.ResponseDeadline = &t
	}
	return cp
}
