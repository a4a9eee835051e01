package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/module/notify"
)

// Locker はジョブの多重起動防止に必要なロック操作です
type Locker interface {
	Acquire(ctx context.Context, job domain.JobName, ttl time.Duration) (string, error)
	Release(ctx context.Context, job domain.JobName, token string)
}

// Ledger はジョブ実行の台帳操作です
type Ledger interface {
	StartRun(ctx context.Context, job domain.JobName, targetDate *time.Time, meta map[string]any) (*domain.JobRun, error)
	CompleteRun(ctx context.Context, runID uuid.UUID, status domain.RunStatus, errMsg string)
	StartRunItem(ctx context.Context, runID uuid.UUID, dataset string) error
	CompleteRunItem(ctx context.Context, runID uuid.UUID, dataset string, status domain.RunStatus, rowCount, pageCount int, errMsg string)
}

// Heartbeats はジョブ単位の最新状態の記録です
type Heartbeats interface {
	Update(ctx context.Context, job domain.JobName, upd domain.HeartbeatUpdate)
}

// Outcome は対象日1件分の実行結果の区分です
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	// OutcomeSkipped は冪等性ガードにより既に実行済みだった対象日
	OutcomeSkipped Outcome = "skipped"
)

// DateReport は対象日1件分の実行レポートです
type DateReport struct {
	TargetDate *time.Time
	Outcome    Outcome
	RunID      *uuid.UUID
	Fetched    int
	Inserted   int64
	Pages      int
	Err        error
}

// Report はジョブ1回分の起動レポートです
type Report struct {
	Job domain.JobName
	// SkippedLock はロックが取れず何もしなかったことを示す
	SkippedLock bool
	Dates       []DateReport
	Fetched     int
	Inserted    int64
	Pages       int
}

// Failed は1件でも失敗した対象日があるかを返します
func (r *Report) Failed() bool {
	for _, d := range r.Dates {
		if d.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// Runner はジョブ実行の入口です
// ロック取得から台帳記録、対象日の決定、ハンドラー呼び出し、
// ハートビート更新、失敗通知までをここで合成する。
// ハンドラー自身はロックも台帳も知らない
type Runner struct {
	locker   Locker
	ledger   Ledger
	hearts   Heartbeats
	planner  *Planner
	notifier notify.Notifier
	handlers map[domain.JobName]Handler
	lockTTL  time.Duration
	// now はテストで時刻を固定するための差し替え点
	now func() time.Time
}

// NewRunner は新しいRunnerを作成します
func NewRunner(locker Locker, ledger Ledger, hearts Heartbeats, planner *Planner, notifier notify.Notifier, lockTTL time.Duration, handlers ...Handler) *Runner {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	m := make(map[domain.JobName]Handler, len(handlers))
	for _, h := range handlers {
		m[h.Name()] = h
	}
	return &Runner{
		locker:   locker,
		ledger:   ledger,
		hearts:   hearts,
		planner:  planner,
		notifier: notifier,
		handlers: m,
		lockTTL:  lockTTL,
		now:      time.Now,
	}
}

// ErrUnknownJob は登録されていないジョブ名が指定された場合のエラーです
var ErrUnknownJob = errors.New("unknown job")

// RunJob はジョブを1回起動します
// explicitDateを渡すとキャッチアップ計画を使わずその日だけを処理する。
// ロックが取れなかった場合はエラーにせずSkippedLock付きのレポートを返す
func (r *Runner) RunJob(ctx context.Context, job domain.JobName, explicitDate *time.Time) (*Report, error) {
	handler, ok := r.handlers[job]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, job)
	}

	report := &Report{Job: job}

	token, err := r.locker.Acquire(ctx, job, r.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) || errors.Is(err, domain.ErrLockRace) {
			slog.Info("job lock not acquired, skipping", "job", job, "reason", err)
			report.SkippedLock = true
			return report, nil
		}
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", job, err)
	}
	defer r.locker.Release(context.WithoutCancel(ctx), job, token)

	dates, err := r.resolveDates(ctx, handler, explicitDate)
	if err != nil {
		return nil, err
	}

	if len(dates) == 0 {
		slog.Info("job is up to date, nothing to do", "job", job)
		r.hearts.Update(ctx, job, domain.HeartbeatUpdate{Status: domain.RunStatusSuccess})
		return report, nil
	}

	for _, target := range dates {
		dr := r.runOne(ctx, handler, target)
		report.Dates = append(report.Dates, dr)
		report.Fetched += dr.Fetched
		report.Inserted += dr.Inserted
		report.Pages += dr.Pages

		// 失敗した日より先には進まない。古い日の欠損を残したまま
		// 新しい日だけ埋まると、次回のキャッチアップ遡行が成功日で
		// 止まって欠損を見逃すため
		if dr.Outcome == OutcomeFailed {
			break
		}
	}

	return report, nil
}

// resolveDates は今回処理する対象日の一覧を決めます
// 対象日を持たないジョブはnil1件として扱い、台帳にはtarget_dateなしで記録する
func (r *Runner) resolveDates(ctx context.Context, handler Handler, explicitDate *time.Time) ([]*time.Time, error) {
	if explicitDate != nil {
		d := domain.DateOnly(*explicitDate)
		return []*time.Time{&d}, nil
	}

	if handler.Direction() == DirectionNone {
		return []*time.Time{nil}, nil
	}

	planned, err := r.planner.TargetDates(ctx, handler.Name(), handler.Direction(), r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to plan target dates for %s: %w", handler.Name(), err)
	}
	dates := make([]*time.Time, 0, len(planned))
	for i := range planned {
		dates = append(dates, &planned[i])
	}
	return dates, nil
}

// runOne は対象日1件を台帳に記録しながら実行します
func (r *Runner) runOne(ctx context.Context, handler Handler, target *time.Time) DateReport {
	job := handler.Name()
	dr := DateReport{TargetDate: target}

	run, err := r.ledger.StartRun(ctx, job, target, nil)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExecuted) {
			slog.Info("target date already executed, skipping", "job", job, "target_date", formatDate(target))
			dr.Outcome = OutcomeSkipped
			return dr
		}
		dr.Outcome = OutcomeFailed
		dr.Err = fmt.Errorf("failed to start run for %s: %w", job, err)
		return dr
	}
	dr.RunID = &run.ID

	r.hearts.Update(ctx, job, domain.HeartbeatUpdate{
		Status:     domain.RunStatusRunning,
		RunID:      &run.ID,
		TargetDate: target,
	})

	for _, ds := range handler.Datasets() {
		if err := r.ledger.StartRunItem(ctx, run.ID, ds); err != nil {
			slog.Warn("failed to start run item", "job", job, "dataset", ds, "error", err)
		}
	}

	date := r.now()
	if target != nil {
		date = *target
	}

	slog.Info("running job", "job", job, "run_id", run.ID, "target_date", formatDate(target))
	result, runErr := handler.Run(ctx, date)

	reported := make(map[string]bool, len(result.Datasets))
	for _, ds := range result.Datasets {
		reported[ds.Dataset] = true
		status := domain.RunStatusSuccess
		errMsg := ""
		if ds.Err != nil {
			status = domain.RunStatusFailed
			errMsg = ds.Err.Error()
		}
		r.ledger.CompleteRunItem(ctx, run.ID, ds.Dataset, status, int(ds.Inserted), ds.Pages, errMsg)
	}

	// ハンドラーが途中で打ち切った場合、後続データセットの行が
	// running のまま残らないよう失敗として終端させる
	if runErr != nil {
		for _, ds := range handler.Datasets() {
			if !reported[ds] {
				r.ledger.CompleteRunItem(ctx, run.ID, ds, domain.RunStatusFailed, 0, 0, "not executed: aborted by earlier dataset failure")
			}
		}
	}

	dr.Fetched = result.Fetched
	dr.Inserted = result.Inserted
	dr.Pages = result.Pages

	if runErr != nil {
		dr.Outcome = OutcomeFailed
		dr.Err = runErr
		r.ledger.CompleteRun(ctx, run.ID, domain.RunStatusFailed, runErr.Error())
		r.hearts.Update(ctx, job, domain.HeartbeatUpdate{
			Status:     domain.RunStatusFailed,
			RunID:      &run.ID,
			TargetDate: target,
			Error:      runErr.Error(),
		})
		r.notifier.NotifyFailure(ctx, notify.Event{
			Job:        job,
			RunID:      &run.ID,
			TargetDate: target,
			Error:      runErr.Error(),
			OccurredAt: r.now(),
		})
		return dr
	}

	dr.Outcome = OutcomeSuccess
	r.ledger.CompleteRun(ctx, run.ID, domain.RunStatusSuccess, "")
	r.hearts.Update(ctx, job, domain.HeartbeatUpdate{
		Status:     domain.RunStatusSuccess,
		RunID:      &run.ID,
		TargetDate: target,
		Metadata: map[string]any{
			"fetched":  result.Fetched,
			"inserted": result.Inserted,
			"pages":    result.Pages,
		},
	})
	slog.Info("job run completed",
		"job", job,
		"run_id", run.ID,
		"target_date", formatDate(target),
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"pages", result.Pages,
	)
	return dr
}

func formatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format("2006-01-02")
}
