package requests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserv/matchd/core/assign"
	"github.com/fieldserv/matchd/core/directory"
	"github.com/fieldserv/matchd/core/match"
	"github.com/fieldserv/matchd/core/model"
	"github.com/fieldserv/matchd/core/notify"
	"github.com/fieldserv/matchd/core/store"
	"github.com/fieldserv/matchd/infra/logger"
)

func newTestServer(t *testing.T) (*httptest.Server, *assign.Manager, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	dir := directory.NewMemoryDirectory()
	dir.Upsert(model.Provider{
		ID:                  "p1",
		Specialties:         []string{"plumbing"},
		CoverageZones:       []string{"zone-1"},
		Rating:              4,
		Status:              model.ProviderActive,
		Availability:        model.Available,
		MaxSimultaneousJobs: 2,
		JoinedAt:            time.Now().Add(-365 * 24 * time.Hour),
	})
	opts := assign.Options{
		ProviderResponseTimeout: 5 * time.Second,
		AdminEscalationTimeout:  time.Minute,
		AutoCancelTimeout:       2 * time.Minute,
		MaxProvidersContacted:   3,
	}
	mgr, err := assign.NewManager(opts, match.DefaultWeights(), st, dir, notify.NewMock(), nil, nil, logger.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	mux := http.NewServeMux()
	NewHandler(mgr).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mgr, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func waitContacted(t *testing.T, st *store.MemoryStore, id string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		req, err := st.Get(context.Background(), id)
		require.NoError(t, err)
		if req.Status == model.StatusProviderNotified {
			return
		}
		time.Sleep(3 * time.Millisecond)
	}
	t.Fatal("request was never offered to a provider")
}

func TestCreateAndGetRequest(t *testing.T) {
	srv, _, st := newTestServer(t)

	resp := postJSON(t, srv.URL+"/requests", map[string]any{
		"service_type": "plumbing",
		"location":     map[string]any{"zone": "zone-1"},
		"priority":     "high",
	})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.Request
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.PriorityHigh, created.Priority)

	waitContacted(t, st, created.ID)

	getResp, err := http.Get(srv.URL + "/requests/" + created.ID)
	require.NoError(t, err)
	defer func() { _ = getResp.Body.Close() }()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var view struct {
		model.Request
		Attempts []model.AssignmentAttempt `json:"attempts"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&view))
	assert.Equal(t, model.StatusProviderNotified, view.Status)
	assert.Equal(t, []string{"p1"}, view.ContactedProviderIDs)
	require.Len(t, view.Attempts, 1)
	assert.Equal(t, "p1", view.Attempts[0].ProviderID)
}

func TestCreateRequestValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/requests", map[string]any{"service_type": "plumbing"})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/requests", map[string]any{
		"service_type": "plumbing",
		"location":     map[string]any{"zone": "zone-1"},
		"priority":     "asap",
	})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/requests/nope")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAcceptLifecycleOverHTTP(t *testing.T) {
	srv, _, st := newTestServer(t)

	resp := postJSON(t, srv.URL+"/requests", map[string]any{
		"service_type": "plumbing",
		"location":     map[string]any{"zone": "zone-1"},
	})
	var created model.Request
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_ = resp.Body.Close()
	waitContacted(t, st, created.ID)

	resp = postJSON(t, srv.URL+"/requests/"+created.ID+"/accept", map[string]string{"provider_id": "p1"})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/requests/"+created.ID+"/start", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/requests/"+created.ID+"/complete", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := st.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestConflictAndInvalidTransitionMapping(t *testing.T) {
	srv, _, st := newTestServer(t)

	resp := postJSON(t, srv.URL+"/requests", map[string]any{
		"service_type": "plumbing",
		"location":     map[string]any{"zone": "zone-1"},
	})
	var created model.Request
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_ = resp.Body.Close()
	waitContacted(t, st, created.ID)

	// Response from a provider that was never contacted.
	resp = postJSON(t, srv.URL+"/requests/"+created.ID+"/accept", map[string]string{"provider_id": "ghost"})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing provider id.
	resp = postJSON(t, srv.URL+"/requests/"+created.ID+"/reject", map[string]string{})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Cancel, then any further action is an illegal transition.
	resp = postJSON(t, srv.URL+"/requests/"+created.ID+"/cancel", map[string]string{"reason": "test"})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/requests/"+created.ID+"/accept", map[string]string{"provider_id": "p1"})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
