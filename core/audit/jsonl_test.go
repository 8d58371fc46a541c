package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserv/matchd/core/model"
)

func testRecord(requestID, providerID string, ts time.Time) Record {
	return Record{
		Timestamp:   ts,
		RequestID:   requestID,
		ServiceType: "plumbing",
		Priority:    "normal",
		Status:      "pending",
		Attempt: &model.AssignmentAttempt{
			RequestID:   requestID,
			ProviderID:  providerID,
			ContactedAt: ts,
			Outcome:     model.AttemptRejected,
			Score:       72.5,
		},
	}
}

func TestJSONLStoreAppendQuery(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, testRecord("r1", "p1", base)))
	require.NoError(t, s.Append(ctx, testRecord("r1", "p2", base.Add(time.Minute))))
	require.NoError(t, s.Append(ctx, testRecord("r2", "p1", base.Add(2*time.Minute))))

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].RequestID)
	require.NotNil(t, all[0].Attempt)
	assert.Equal(t, model.AttemptRejected, all[0].Attempt.Outcome)
	assert.Equal(t, 72.5, all[0].Attempt.Score)

	byRequest, err := s.Query(ctx, Query{RequestID: "r1"})
	require.NoError(t, err)
	assert.Len(t, byRequest, 2)

	byProvider, err := s.Query(ctx, Query{ProviderID: "p1"})
	require.NoError(t, err)
	assert.Len(t, byProvider, 2)

	windowed, err := s.Query(ctx, Query{Start: base.Add(30 * time.Second), End: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "p2", windowed[0].Attempt.ProviderID)
}

func TestJSONLStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, testRecord("r1", "p1", time.Now())))
	require.NoError(t, s.Close())

	s2, err := NewJSONLStore(path)
	require.NoError(t, err)
	got, err := s2.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
