package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserv/matchd/core/model"
)

func TestMemoryStoreVersionCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, model.Request{ID: "r1", ServiceType: "plumbing"}))

	updated, err := s.Update(ctx, "r1", 0, func(r *model.Request) {
		r.Status = model.StatusProviderNotified
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)
	assert.Equal(t, model.StatusProviderNotified, updated.Status)

	// A second writer holding the old version loses.
	_, err = s.Update(ctx, "r1", 0, func(r *model.Request) {
		r.Status = model.StatusCancelled
	})
	assert.ErrorIs(t, err, ErrVersionMismatch)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProviderNotified, got.Status)
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, model.Request{ID: "r1"}))
	assert.Error(t, s.Create(ctx, model.Request{ID: "r1"}))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, model.Request{ID: "r1", ContactedProviderIDs: []string{"p1"}}))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	got.ContactedProviderIDs[0] = "mutated"
	got.Status = model.StatusFailed

	again, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, again.ContactedProviderIDs)
	assert.Equal(t, model.StatusPending, again.Status)
}

func TestMemoryStoreListFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now()
	require.NoError(t, s.Create(ctx, model.Request{ID: "open", CreatedAt: base}))
	require.NoError(t, s.Create(ctx, model.Request{ID: "done", Status: model.StatusCompleted, CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.Create(ctx, model.Request{ID: "late", CreatedAt: base.Add(2 * time.Second)}))

	open, err := s.List(ctx, Filter{Open: true})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "open", open[0].ID)
	assert.Equal(t, "late", open[1].ID)

	done := model.StatusCompleted
	completed, err := s.List(ctx, Filter{Status: &done})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "done", completed[0].ID)
}

func TestMemoryStoreAttemptOutcome(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	require.NoError(t, s.AppendAttempt(ctx, model.AssignmentAttempt{RequestID: "r1", ProviderID: "p1", ContactedAt: now}))
	require.NoError(t, s.AppendAttempt(ctx, model.AssignmentAttempt{RequestID: "r1", ProviderID: "p2", ContactedAt: now}))

	responded := now.Add(time.Minute)
	require.NoError(t, s.SetAttemptOutcome(ctx, "r1", "p2", model.AttemptAccepted, responded))

	atts, err := s.Attempts(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, atts, 2)
	assert.Equal(t, model.AttemptPending, atts[0].Outcome)
	assert.Equal(t, model.AttemptAccepted, atts[1].Outcome)
	require.NotNil(t, atts[1].RespondedAt)
	assert.True(t, atts[1].RespondedAt.Equal(responded))

	// No second pending attempt for p2 remains.
	assert.Error(t, s.SetAttemptOutcome(ctx, "r1", "p2", model.AttemptRejected, responded))
}
