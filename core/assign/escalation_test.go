package assign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserv/matchd/core/directory"
	"github.com/fieldserv/matchd/core/match"
	"github.com/fieldserv/matchd/core/model"
	"github.com/fieldserv/matchd/core/notify"
	"github.com/fieldserv/matchd/core/store"
	"github.com/fieldserv/matchd/infra/logger"
)

// newSweepEngine builds a manager without spawning workers, so deadline
// handling can be exercised through the sweeper alone.
func newSweepEngine(t *testing.T, opts Options) (*Manager, *store.MemoryStore, *notify.Mock) {
	t.Helper()
	st := store.NewMemoryStore()
	disp := notify.NewMock()
	mgr, err := NewManager(opts, match.DefaultWeights(), st, directory.NewMemoryDirectory(), disp, nil, nil, logger.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, st, disp
}

func seedPending(t *testing.T, st *store.MemoryStore, id string, age time.Duration) {
	t.Helper()
	created := time.Now().Add(-age)
	require.NoError(t, st.Create(context.Background(), model.Request{
		ID:          id,
		ServiceType: "plumbing",
		Location:    model.Location{Zone: "zone-1"},
		Status:      model.StatusPending,
		CreatedAt:   created,
		UpdatedAt:   created,
	}))
}

func TestSweepEscalatesOverdueRequests(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.AdminEscalationTimeout = time.Hour
	opts.AutoCancelTimeout = 4 * time.Hour
	mgr, st, disp := newSweepEngine(t, opts)

	seedPending(t, st, "young", 10*time.Minute)
	seedPending(t, st, "overdue", 2*time.Hour)
	seedPending(t, st, "ancient", 5*time.Hour)

	require.NoError(t, mgr.Escalation().Sweep(ctx))

	young, _ := st.Get(ctx, "young")
	assert.False(t, young.Escalated)
	assert.Equal(t, model.StatusPending, young.Status)

	overdue, _ := st.Get(ctx, "overdue")
	assert.True(t, overdue.Escalated)
	assert.Equal(t, model.StatusPending, overdue.Status)

	// Past the auto-cancel deadline the request fails outright; the
	// auto-cancel always wins over waiting for the admin.
	ancient, _ := st.Get(ctx, "ancient")
	assert.Equal(t, model.StatusFailed, ancient.Status)

	var adminNotified, clientNotified bool
	for _, c := range disp.Calls() {
		if c.Kind == "admin" && c.RequestID == "overdue" {
			adminNotified = true
		}
		if c.Kind == "client" && c.RequestID == "ancient" && c.Detail == "request_failed" {
			clientNotified = true
		}
	}
	assert.True(t, adminNotified)
	assert.True(t, clientNotified)
}

func TestEscalateTwiceIsNoOp(t *testing.T) {
	ctx := context.Background()
	mgr, st, disp := newSweepEngine(t, testOptions())
	seedPending(t, st, "r1", time.Minute)

	require.NoError(t, mgr.Escalation().Escalate(ctx, "r1", "providers_exhausted"))
	require.NoError(t, mgr.Escalation().Escalate(ctx, "r1", "providers_exhausted"))

	admin := 0
	for _, c := range disp.Calls() {
		if c.Kind == "admin" {
			admin++
		}
	}
	assert.Equal(t, 1, admin)

	got, _ := st.Get(ctx, "r1")
	assert.True(t, got.Escalated)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestForceFailOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	mgr, st, _ := newSweepEngine(t, testOptions())

	created := time.Now().Add(-time.Hour)
	assigned := "p1"
	require.NoError(t, st.Create(ctx, model.Request{
		ID:                 "busy",
		ServiceType:        "plumbing",
		Location:           model.Location{Zone: "zone-1"},
		Status:             model.StatusAssigned,
		AssignedProviderID: &assigned,
		CreatedAt:          created,
	}))

	require.NoError(t, mgr.Escalation().ForceFail(ctx, "busy", "auto_cancel_timeout"))
	got, _ := st.Get(ctx, "busy")
	assert.Equal(t, model.StatusAssigned, got.Status)
}
