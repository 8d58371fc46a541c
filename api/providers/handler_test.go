package providers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserv/matchd/core/directory"
	"github.com/fieldserv/matchd/core/model"
)

func newServer(t *testing.T) (*httptest.Server, *directory.MemoryDirectory) {
	t.Helper()
	dir := directory.NewMemoryDirectory()
	mux := http.NewServeMux()
	NewHandler(dir).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, dir
}

func putProvider(t *testing.T, url, id string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, url+"/providers/"+id, bytes.NewReader(b))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestUpsertAndListProviders(t *testing.T) {
	srv, dir := newServer(t)

	resp := putProvider(t, srv.URL, "p1", map[string]any{
		"specialties":           []string{"plumbing"},
		"coverage_zones":        []string{"zone-1"},
		"rating":                4.5,
		"status":                "active",
		"availability":          "available",
		"max_simultaneous_jobs": 2,
	})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, ok := dir.Get("p1")
	require.True(t, ok)
	assert.Equal(t, model.ProviderActive, got.Status)
	assert.Equal(t, 2, got.MaxSimultaneousJobs)

	listResp, err := http.Get(srv.URL + "/providers")
	require.NoError(t, err)
	defer func() { _ = listResp.Body.Close() }()
	var listed []model.Provider
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "p1", listed[0].ID)
}

func TestUpsertValidation(t *testing.T) {
	srv, _ := newServer(t)

	resp := putProvider(t, srv.URL, "p1", map[string]any{"max_simultaneous_jobs": 0})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpsertPreservesActiveAssignments(t *testing.T) {
	srv, dir := newServer(t)

	dir.Upsert(model.Provider{ID: "p1", MaxSimultaneousJobs: 2, Status: model.ProviderActive})
	require.True(t, dir.Reserve("p1"))

	resp := putProvider(t, srv.URL, "p1", map[string]any{
		"availability":          "busy",
		"max_simultaneous_jobs": 3,
	})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, ok := dir.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 1, got.ActiveAssignments)
	assert.Equal(t, model.Busy, got.Availability)
	assert.Equal(t, 3, got.MaxSimultaneousJobs)
}
