package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/platform/database"
)

// HeartbeatRepository はジョブ名ごとの最終観測記録です
// 外部からの死活監視専用で、ジョブの正しさには一切関与しない
type HeartbeatRepository struct {
	db database.DBTX
}

// NewHeartbeatRepository は新しいHeartbeatRepositoryを作成します
func NewHeartbeatRepository(db database.DBTX) *HeartbeatRepository {
	return &HeartbeatRepository{db: db}
}

// Update はジョブのハートビート行をupsertします
// 可観測性のための書き込みなので、失敗はログに残すだけで伝播させない。
// 実行情報（run_id・対象日・メタデータ）を持たない更新は既存値を保持し、
// 「処理対象なし」の生存報告が最後の実行の記録を消さないようにする
func (r *HeartbeatRepository) Update(ctx context.Context, job domain.JobName, upd domain.HeartbeatUpdate) {
	var msg *string
	if upd.Error != "" {
		truncated := domain.Truncate(upd.Error, domain.MaxHeartbeatErrorLen)
		msg = &truncated
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO job_heartbeats (job_name, last_seen_at, last_status, last_run_id, last_target_date, last_error, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (job_name) DO UPDATE SET
		   last_seen_at = EXCLUDED.last_seen_at,
		   last_status = EXCLUDED.last_status,
		   last_run_id = COALESCE(EXCLUDED.last_run_id, job_heartbeats.last_run_id),
		   last_target_date = COALESCE(EXCLUDED.last_target_date, job_heartbeats.last_target_date),
		   last_error = EXCLUDED.last_error,
		   metadata = COALESCE(EXCLUDED.metadata, job_heartbeats.metadata)`,
		string(job), time.Now(), string(upd.Status), upd.RunID, upd.TargetDate, msg, upd.Metadata,
	)
	if err != nil {
		slog.Error("failed to update job heartbeat", "job", job, "error", err)
	}
}

const heartbeatColumns = `job_name, last_seen_at, last_status, last_run_id, last_target_date, last_error, metadata`

// Get はジョブのハートビートを返します。記録がなければnil
func (r *HeartbeatRepository) Get(ctx context.Context, job domain.JobName) (*domain.JobHeartbeat, error) {
	hb, err := scanHeartbeat(r.db.QueryRow(ctx,
		`SELECT `+heartbeatColumns+` FROM job_heartbeats WHERE job_name = $1`,
		string(job),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job heartbeat: %w", err)
	}
	return hb, nil
}

// All は全ハートビートをジョブ名をキーに返します
func (r *HeartbeatRepository) All(ctx context.Context) (map[domain.JobName]*domain.JobHeartbeat, error) {
	rows, err := r.db.Query(ctx, `SELECT `+heartbeatColumns+` FROM job_heartbeats`)
	if err != nil {
		return nil, fmt.Errorf("failed to list job heartbeats: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.JobName]*domain.JobHeartbeat)
	for rows.Next() {
		hb, err := scanHeartbeat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job heartbeat: %w", err)
		}
		result[hb.JobName] = hb
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job heartbeats: %w", err)
	}
	return result, nil
}

func scanHeartbeat(row pgx.Row) (*domain.JobHeartbeat, error) {
	var hb domain.JobHeartbeat
	var jobName, status string
	if err := row.Scan(
		&jobName, &hb.LastSeenAt, &status,
		&hb.LastRunID, &hb.LastTargetDate, &hb.LastError, &hb.Metadata,
	); err != nil {
		return nil, err
	}
	hb.JobName = domain.JobName(jobName)
	hb.LastStatus = domain.RunStatus(status)
	return &hb, nil
}
