package joblog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/db"
	"github.com/trubo/mail-gateway/internal/joblog"
)

func newStore(t *testing.T) *joblog.Postgres {
	if testing.Short() {
		t.Skip("container test")
	}
	return &joblog.Postgres{DB: db.StartTestPostgres(t)}
}

func TestPostgres_Lifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	payload := core.MailJob{To: core.Recipients{"a@b.com"}, Subject: "s", Text: "t", Priority: core.PriorityHigh}
	require.NoError(t, s.RecordEnqueue(ctx, "j1", core.JobName, "high", false, payload))
	require.NoError(t, s.RecordStatus(ctx, "j1", joblog.StatusActive, nil, nil))
	require.NoError(t, s.RecordStatus(ctx, "j1", joblog.StatusCompleted, map[string]string{"id": "prov-1"}, nil))

	rec, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, joblog.StatusCompleted, rec.Status)
	require.Equal(t, "high", rec.Priority)
	require.JSONEq(t, `{"id":"prov-1"}`, string(rec.Result))

	events, err := s.Events(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, joblog.StatusEnqueued, events[0].Status)
	require.Equal(t, joblog.StatusCompleted, events[2].Status)
}

func TestPostgres_StatusBeforeEnqueue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// Out-of-band status reports may land before the enqueue mirror.
	require.NoError(t, s.RecordStatus(ctx, "j2", joblog.StatusActive, nil, nil))
	require.NoError(t, s.RecordEnqueue(ctx, "j2", core.JobName, "medium", true, nil))

	events, err := s.Events(ctx, "j2")
	require.NoError(t, err)
	require.Len(t, events, 2)

	rec, err := s.Get(ctx, "j2")
	require.NoError(t, err)
	require.True(t, rec.ProviderKeyUsed)
}

func TestPostgres_ListAndCounts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordEnqueue(ctx, id, core.JobName, "medium", false, nil))
	}
	require.NoError(t, s.RecordStatus(ctx, "c", joblog.StatusFailed, nil, map[string]string{"message": "boom"}))

	all, err := s.List(ctx, "", 10, 1)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// newest update first
	require.Equal(t, "c", all[0].JobID)

	failed, err := s.List(ctx, joblog.StatusFailed, 10, 1)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts[joblog.StatusEnqueued])
	require.Equal(t, 1, counts[joblog.StatusFailed])
}

func TestPostgres_DeleteAndNotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordEnqueue(ctx, "gone", core.JobName, "low", false, nil))
	require.NoError(t, s.Delete(ctx, "gone"))

	_, err := s.Get(ctx, "gone")
	require.ErrorIs(t, err, core.ErrNotFound)
}
