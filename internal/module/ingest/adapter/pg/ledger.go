package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/platform/database"
)

// LedgerRepository はJobRun / JobRunItemの台帳です
type LedgerRepository struct {
	db database.DBTX
}

// NewLedgerRepository は新しいLedgerRepositoryを作成します
func NewLedgerRepository(db database.DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// StartRun はrunning状態のJobRun行を挿入します
// (job_name, target_date) の一意制約違反はdomain.ErrAlreadyExecutedに変換する。
// これが冪等ゲートで、処理済みの日への再実行は行を増やさず即座に弾かれる
func (r *LedgerRepository) StartRun(ctx context.Context, job domain.JobName, targetDate *time.Time, meta map[string]any) (*domain.JobRun, error) {
	run := &domain.JobRun{
		ID:         uuid.New(),
		JobName:    job,
		TargetDate: targetDate,
		Status:     domain.RunStatusRunning,
		StartedAt:  time.Now(),
		Metadata:   meta,
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO job_runs (id, job_name, target_date, status, started_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, string(run.JobName), run.TargetDate, string(run.Status), run.StartedAt, run.Metadata,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, domain.ErrAlreadyExecuted
		}
		return nil, fmt.Errorf("failed to insert job run: %w", err)
	}

	return run, nil
}

// CompleteRun はJobRunを終端状態に更新します
// エラーメッセージは上限で切り詰める。台帳の更新失敗が呼び出し側の
// 本来の結果報告を妨げてはならないため、自身のDBエラーはログに留める
func (r *LedgerRepository) CompleteRun(ctx context.Context, runID uuid.UUID, status domain.RunStatus, errMsg string) {
	var msg *string
	if errMsg != "" {
		truncated := domain.Truncate(errMsg, domain.MaxRunErrorLen)
		msg = &truncated
	}

	_, err := r.db.Exec(ctx,
		`UPDATE job_runs SET status = $1, finished_at = $2, error_message = $3 WHERE id = $4`,
		string(status), time.Now(), msg, runID,
	)
	if err != nil {
		slog.Error("failed to complete job run", "run_id", runID, "status", status, "error", err)
	}
}

// StartRunItem はデータセット単位の実行記録を開始します
func (r *LedgerRepository) StartRunItem(ctx context.Context, runID uuid.UUID, dataset string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO job_run_items (run_id, dataset, status, started_at)
		 VALUES ($1, $2, $3, $4)`,
		runID, dataset, string(domain.RunStatusRunning), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job run item: %w", err)
	}
	return nil
}

// CompleteRunItem はデータセット単位の実行記録を終端状態に更新します
// CompleteRunと同じく、自身の失敗はログに留める
func (r *LedgerRepository) CompleteRunItem(ctx context.Context, runID uuid.UUID, dataset string, status domain.RunStatus, rowCount, pageCount int, errMsg string) {
	var msg *string
	if errMsg != "" {
		truncated := domain.Truncate(errMsg, domain.MaxRunErrorLen)
		msg = &truncated
	}

	_, err := r.db.Exec(ctx,
		`UPDATE job_run_items
		 SET status = $1, row_count = $2, page_count = $3, error_message = $4, finished_at = $5
		 WHERE run_id = $6 AND dataset = $7`,
		string(status), rowCount, pageCount, msg, time.Now(), runID, dataset,
	)
	if err != nil {
		slog.Error("failed to complete job run item", "run_id", runID, "dataset", dataset, "error", err)
	}
}

const runColumns = `id, job_name, target_date, status, started_at, finished_at, error_message, metadata`

// LatestRun は最新のJobRunを返します。statusで絞り込み可能。
// 見つからない場合はエラーではなくnilを返す
func (r *LedgerRepository) LatestRun(ctx context.Context, job domain.JobName, status *domain.RunStatus) (*domain.JobRun, error) {
	query := `SELECT ` + runColumns + ` FROM job_runs WHERE job_name = $1`
	args := []any{string(job)}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	run, err := scanRun(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest job run: %w", err)
	}
	return run, nil
}

// HasRunForDate は指定の対象日のJobRunが存在するかを返します
func (r *LedgerRepository) HasRunForDate(ctx context.Context, job domain.JobName, date time.Time, status *domain.RunStatus) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM job_runs WHERE job_name = $1 AND target_date = $2`
	args := []any{string(job), domain.DateOnly(date)}
	if status != nil {
		query += ` AND status = $3`
		args = append(args, string(*status))
	}
	query += `)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check job run existence: %w", err)
	}
	return exists, nil
}

// FailedRuns は失敗したJobRunを新しい順に返します
func (r *LedgerRepository) FailedRuns(ctx context.Context, job domain.JobName, limit int) ([]*domain.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+runColumns+` FROM job_runs
		 WHERE job_name = $1 AND status = $2
		 ORDER BY started_at DESC LIMIT $3`,
		string(job), string(domain.RunStatusFailed), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed job runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.JobRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job runs: %w", err)
	}
	return runs, nil
}

// DeleteFailedRuns は失敗行を削除して再実行可能にします（オペレーター手動掃除用）
func (r *LedgerRepository) DeleteFailedRuns(ctx context.Context, job domain.JobName) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM job_runs WHERE job_name = $1 AND status = $2`,
		string(job), string(domain.RunStatusFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete failed job runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanRun は1行分のJobRunを読み取る
func scanRun(row pgx.Row) (*domain.JobRun, error) {
	var run domain.JobRun
	var jobName, status string
	if err := row.Scan(
		&run.ID, &jobName, &run.TargetDate, &status,
		&run.StartedAt, &run.FinishedAt, &run.ErrorMessage, &run.Metadata,
	); err != nil {
		return nil, err
	}
	run.JobName = domain.JobName(jobName)
	run.Status = domain.RunStatus(status)
	return &run, nil
}
