package audit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreaudit "github.com/fieldserv/matchd/core/audit"
	"github.com/fieldserv/matchd/core/model"
)

func seededStore(t *testing.T) coreaudit.Store {
	t.Helper()
	s, err := coreaudit.NewJSONLStore(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	rec := coreaudit.Record{
		Timestamp:   time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		RequestID:   "r1",
		ServiceType: "plumbing",
		Priority:    "normal",
		Status:      "pending",
		Attempt: &model.AssignmentAttempt{
			RequestID:  "r1",
			ProviderID: "p1",
			Outcome:    model.AttemptTimedOut,
			Score:      66,
		},
	}
	require.NoError(t, s.Append(context.Background(), rec))
	return s
}

func TestAuditEndpointRequiresToken(t *testing.T) {
	srv := httptest.NewServer(NewHandler(seededStore(t), "secret"))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var recs []coreaudit.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "r1", recs[0].RequestID)
}

func TestAuditEndpointFilters(t *testing.T) {
	srv := httptest.NewServer(NewHandler(seededStore(t), ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?provider_id=p1")
	require.NoError(t, err)
	var recs []coreaudit.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	_ = resp.Body.Close()
	assert.Len(t, recs, 1)

	resp, err = http.Get(srv.URL + "?provider_id=someone-else")
	require.NoError(t, err)
	recs = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	_ = resp.Body.Close()
	assert.Empty(t, recs)
}

func TestAuditEndpointCSV(t *testing.T) {
	srv := httptest.NewServer(NewHandler(seededStore(t), ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?format=csv")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "request_id")
	assert.Contains(t, lines[1], "p1")
	assert.Contains(t, lines[1], "timed_out")
}
