package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
)

type fakeHeartbeatReader struct {
	beats map[domain.JobName]*domain.JobHeartbeat
}

func (f *fakeHeartbeatReader) All(_ context.Context) (map[domain.JobName]*domain.JobHeartbeat, error) {
	return f.beats, nil
}

func TestHealthServiceCheckAll(t *testing.T) {
	now := date("2026-08-27").Add(9 * time.Hour)
	fresh := now.Add(-2 * time.Hour)
	stale := now.Add(-30 * time.Hour)

	reader := &fakeHeartbeatReader{beats: map[domain.JobName]*domain.JobHeartbeat{
		domain.JobDailyQuotes: {
			JobName: domain.JobDailyQuotes, LastStatus: domain.RunStatusSuccess, LastSeenAt: fresh,
		},
		domain.JobEarningsCalendar: {
			JobName: domain.JobEarningsCalendar, LastStatus: domain.RunStatusSuccess, LastSeenAt: stale,
		},
		domain.JobTradeFlows: {
			JobName: domain.JobTradeFlows, LastStatus: domain.RunStatusFailed, LastSeenAt: fresh,
			LastError: strPtr("upstream api returned 503"),
		},
		// calendar_refresh はハートビートなし
	}}

	svc := NewHealthService(reader, domain.DefaultStaleThreshold)
	svc.now = func() time.Time { return now }

	results, err := svc.CheckAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, len(domain.KnownJobs()))

	byJob := make(map[domain.JobName]domain.JobHealth, len(results))
	for _, r := range results {
		byJob[r.JobName] = r
	}

	assert.True(t, byJob[domain.JobDailyQuotes].Healthy)
	assert.False(t, byJob[domain.JobEarningsCalendar].Healthy)
	assert.Contains(t, byJob[domain.JobEarningsCalendar].Reason, "stale")
	assert.False(t, byJob[domain.JobTradeFlows].Healthy)
	assert.Contains(t, byJob[domain.JobTradeFlows].Reason, "503")
	assert.False(t, byJob[domain.JobCalendarRefresh].Healthy)
	assert.Contains(t, byJob[domain.JobCalendarRefresh].Reason, "No heartbeat record")

	assert.False(t, Healthy(results))
}

func strPtr(s string) *string { return &s }
