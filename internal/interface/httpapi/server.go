// Package httpapi はジョブの手動起動とヘルス確認のためのHTTPサーフェスです
// 定常運用はスケジューラーが担い、ここは運用者向けの補助的な入口
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harigane/jpxsync/internal/module/ingest/application"
	"github.com/harigane/jpxsync/internal/module/ingest/domain"
)

// Server はHTTP APIサーバーです
type Server struct {
	runner *application.Runner
	health *application.HealthService
	addr   string
	token  string
	debug  bool
	engine *gin.Engine
}

// Option はServerの設定オプションです
type Option func(*Server)

// WithAuthToken はBearerトークン認証を有効にします
func WithAuthToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithDebug はエラー詳細をレスポンスに含めるデバッグモードを有効にします
func WithDebug(debug bool) Option {
	return func(s *Server) { s.debug = debug }
}

// NewServer は新しいServerを作成します
func NewServer(runner *application.Runner, health *application.HealthService, addr string, opts ...Option) *Server {
	s := &Server{
		runner: runner,
		health: health,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET("/healthz", s.handleHealthz)

	authed := engine.Group("/", s.authMiddleware())
	authed.POST("/jobs/:name/run", s.handleRunJob)
	authed.GET("/health/jobs", s.handleJobHealth)

	s.engine = engine
	return s
}

// Run はサーバーを起動し、ctxのキャンセルでグレースフルに停止します
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+s.token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

type runRequest struct {
	// Date を指定するとキャッチアップ計画を使わずその日だけを処理する
	Date string `json:"date"`
}

type dateResponse struct {
	TargetDate *string `json:"target_date"`
	Outcome    string  `json:"outcome"`
	RunID      *string `json:"run_id,omitempty"`
	Fetched    int     `json:"fetched"`
	Inserted   int64   `json:"inserted"`
	Error      string  `json:"error,omitempty"`
}

type runResponse struct {
	Job         string         `json:"job"`
	SkippedLock bool           `json:"skipped_lock"`
	Dates       []dateResponse `json:"dates"`
	Fetched     int            `json:"fetched"`
	Inserted    int64          `json:"inserted"`
}

func (s *Server) handleRunJob(c *gin.Context) {
	job := domain.JobName(c.Param("name"))
	if !knownJob(job) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job: " + string(job)})
		return
	}

	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	var explicitDate *time.Time
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		explicitDate = &d
	}

	report, err := s.runner.RunJob(c.Request.Context(), job, explicitDate)
	if err != nil {
		slog.Error("job run failed", "job", job, "error", err)
		msg := "internal error"
		if s.debug {
			msg = err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}

	resp := toRunResponse(report)
	if report.SkippedLock {
		// 他プロセスが実行中。リトライ可能であることを409で伝える
		c.JSON(http.StatusConflict, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func toRunResponse(report *application.Report) runResponse {
	resp := runResponse{
		Job:         string(report.Job),
		SkippedLock: report.SkippedLock,
		Dates:       make([]dateResponse, 0, len(report.Dates)),
		Fetched:     report.Fetched,
		Inserted:    report.Inserted,
	}
	for _, d := range report.Dates {
		dr := dateResponse{
			Outcome:  string(d.Outcome),
			Fetched:  d.Fetched,
			Inserted: d.Inserted,
		}
		if d.TargetDate != nil {
			s := d.TargetDate.Format("2006-01-02")
			dr.TargetDate = &s
		}
		if d.RunID != nil {
			id := d.RunID.String()
			dr.RunID = &id
		}
		if d.Err != nil {
			dr.Error = d.Err.Error()
		}
		resp.Dates = append(resp.Dates, dr)
	}
	return resp
}

type jobHealthResponse struct {
	Job     string `json:"job"`
	Healthy bool   `json:"healthy"`
	Reason  string `json:"reason"`
}

func (s *Server) handleJobHealth(c *gin.Context) {
	results, err := s.health.CheckAll(c.Request.Context())
	if err != nil {
		slog.Error("health check failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := make([]jobHealthResponse, 0, len(results))
	for _, r := range results {
		resp = append(resp, jobHealthResponse{Job: string(r.JobName), Healthy: r.Healthy, Reason: r.Reason})
	}

	status := http.StatusOK
	if !application.Healthy(results) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"jobs": resp})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func knownJob(job domain.JobName) bool {
	for _, j := range domain.KnownJobs() {
		if j == job {
			return true
		}
	}
	return false
}
