package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harigane/jpxsync/internal/module/ingest/application"
	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/module/notify"
)

type stubLocker struct {
	held bool
}

func (s *stubLocker) Acquire(context.Context, domain.JobName, time.Duration) (string, error) {
	if s.held {
		return "", domain.ErrLockHeld
	}
	return "token", nil
}

func (s *stubLocker) Release(context.Context, domain.JobName, string) {}

type stubLedger struct{}

func (stubLedger) StartRun(_ context.Context, job domain.JobName, targetDate *time.Time, _ map[string]any) (*domain.JobRun, error) {
	return &domain.JobRun{ID: uuid.New(), JobName: job, TargetDate: targetDate, Status: domain.RunStatusRunning}, nil
}
func (stubLedger) CompleteRun(context.Context, uuid.UUID, domain.RunStatus, string) {}
func (stubLedger) StartRunItem(context.Context, uuid.UUID, string) error            { return nil }
func (stubLedger) CompleteRunItem(context.Context, uuid.UUID, string, domain.RunStatus, int, int, string) {
}

type stubHeartbeats struct {
	beats map[domain.JobName]*domain.JobHeartbeat
}

func (s *stubHeartbeats) Update(context.Context, domain.JobName, domain.HeartbeatUpdate) {}

func (s *stubHeartbeats) All(context.Context) (map[domain.JobName]*domain.JobHeartbeat, error) {
	return s.beats, nil
}

type stubPlannerDeps struct{}

func (stubPlannerDeps) HasRunForDate(context.Context, domain.JobName, time.Time, *domain.RunStatus) (bool, error) {
	return false, nil
}

func (stubPlannerDeps) BusinessDayOnOrBefore(_ context.Context, d time.Time) (*time.Time, error) {
	return &d, nil
}

func (stubPlannerDeps) PreviousBusinessDay(context.Context, time.Time) (*time.Time, error) {
	return nil, nil
}

func (stubPlannerDeps) NextBusinessDay(_ context.Context, d time.Time) (*time.Time, error) {
	next := d.AddDate(0, 0, 1)
	return &next, nil
}

type stubHandler struct{}

func (stubHandler) Name() domain.JobName            { return domain.JobDailyQuotes }
func (stubHandler) Direction() application.Direction { return application.DirectionBackward }
func (stubHandler) Datasets() []string              { return []string{"daily_quotes"} }

func (stubHandler) Run(context.Context, time.Time) (application.Result, error) {
	var r application.Result
	return r, nil
}

func newTestServer(t *testing.T, locker *stubLocker, opts ...Option) *Server {
	t.Helper()
	deps := stubPlannerDeps{}
	planner := application.NewPlanner(deps, deps, 5)
	hearts := &stubHeartbeats{}
	runner := application.NewRunner(locker, stubLedger{}, hearts, planner, notify.New(""), time.Minute, stubHandler{})
	health := application.NewHealthService(hearts, domain.DefaultStaleThreshold)
	return NewServer(runner, health, ":0", opts...)
}

func TestRunJobEndpoint(t *testing.T) {
	t.Run("runs an explicit date", func(t *testing.T) {
		srv := newTestServer(t, &stubLocker{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs/daily_quotes/run", strings.NewReader(`{"date":"2026-08-27"}`))
		req.Header.Set("Content-Type", "application/json")
		srv.engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"outcome":"success"`)
		assert.Contains(t, w.Body.String(), `"target_date":"2026-08-27"`)
	})

	t.Run("conflict when lock is held", func(t *testing.T) {
		srv := newTestServer(t, &stubLocker{held: true})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs/daily_quotes/run", nil)
		srv.engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), `"skipped_lock":true`)
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		srv := newTestServer(t, &stubLocker{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs/nonexistent/run", nil)
		srv.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid date is 400", func(t *testing.T) {
		srv := newTestServer(t, &stubLocker{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs/daily_quotes/run", strings.NewReader(`{"date":"27-08-2026"}`))
		req.Header.Set("Content-Type", "application/json")
		srv.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t, &stubLocker{}, WithAuthToken("secret"))

	t.Run("rejects missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs/daily_quotes/run", nil)
		srv.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs/daily_quotes/run", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		srv.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("accepts the configured token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs/daily_quotes/run", strings.NewReader(`{"date":"2026-08-27"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer secret")
		srv.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("healthz does not require auth", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		srv.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestJobHealthEndpoint(t *testing.T) {
	// ハートビートのないジョブがあるため全体は503になる
	srv := newTestServer(t, &stubLocker{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/jobs", nil)
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "No heartbeat record found")
}
