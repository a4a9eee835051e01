// Package pg はingestモジュールのPostgres永続化アダプターです
package pg

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/platform/database"
)

// LockRepository はジョブ名ごとのリース式分散ロックです
// ロック行のlocked_untilが未来である間のみ保持とみなすため、
// 保持者がクラッシュしてもTTL経過で自然に解放される
type LockRepository struct {
	db database.DBTX
}

// NewLockRepository は新しいLockRepositoryを作成します
func NewLockRepository(db database.DBTX) *LockRepository {
	return &LockRepository{db: db}
}

// Acquire はジョブのロック取得を試みます
// 成功時は解放・延長に必要なトークンを返す。他プロセスが保持中なら
// domain.ErrLockHeld、期限切れ行の奪取競争に負けたらdomain.ErrLockRaceを返す
func (r *LockRepository) Acquire(ctx context.Context, job domain.JobName, ttl time.Duration) (string, error) {
	now := time.Now()
	token := uuid.NewString()

	var lockedUntil time.Time
	err := r.db.QueryRow(ctx,
		`SELECT locked_until FROM job_locks WHERE job_name = $1`,
		string(job),
	).Scan(&lockedUntil)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// 行がない: 新規挿入。同時取得者がいた場合は一意制約違反になるが、
		// それは「既に保持されている」であってクラッシュではない
		_, insErr := r.db.Exec(ctx,
			`INSERT INTO job_locks (job_name, token, locked_until, updated_at)
			 VALUES ($1, $2, $3, $4)`,
			string(job), token, now.Add(ttl), now,
		)
		if insErr != nil {
			if database.IsUniqueViolation(insErr) {
				return "", domain.ErrLockHeld
			}
			return "", fmt.Errorf("failed to insert job lock: %w", insErr)
		}
		return token, nil

	case err != nil:
		return "", fmt.Errorf("failed to read job lock: %w", err)

	case lockedUntil.After(now):
		return "", domain.ErrLockHeld

	default:
		// 期限切れ行: 読み取ったlocked_untilを楽観ガードにした条件付き更新。
		// 0行更新は読み取りと書き込みの間に他者が奪ったことを意味する
		tag, updErr := r.db.Exec(ctx,
			`UPDATE job_locks
			 SET token = $1, locked_until = $2, updated_at = $3
			 WHERE job_name = $4 AND locked_until = $5`,
			token, now.Add(ttl), now, string(job), lockedUntil,
		)
		if updErr != nil {
			return "", fmt.Errorf("failed to update expired job lock: %w", updErr)
		}
		if tag.RowsAffected() == 0 {
			return "", domain.ErrLockRace
		}
		return token, nil
	}
}

// Release はロックを解放します
// job名とトークンの両方が一致する行のみ削除するため、期限切れ後に
// 他プロセスが取得したロックを誤って消すことはない。
// TTLが暴走ロックの影響範囲を抑えるので、解放はベストエフォートとして
// 失敗してもログに残すだけで呼び出し側には伝播させない
func (r *LockRepository) Release(ctx context.Context, job domain.JobName, token string) {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE job_name = $1 AND token = $2`,
		string(job), token,
	)
	if err != nil {
		slog.Error("failed to release job lock", "job", job, "error", err)
	}
}

// Extend はロックのリース期間を延長します
// トークン不一致（期限切れ後に他者へ渡った等）ならfalseを返す
func (r *LockRepository) Extend(ctx context.Context, job domain.JobName, token string, ttl time.Duration) (bool, error) {
	now := time.Now()
	tag, err := r.db.Exec(ctx,
		`UPDATE job_locks
		 SET locked_until = $1, updated_at = $2
		 WHERE job_name = $3 AND token = $4`,
		now.Add(ttl), now, string(job), token,
	)
	if err != nil {
		return false, fmt.Errorf("failed to extend job lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CleanupExpired は期限切れのロック行を一括削除し、削除数を返します
// 期限判定は取得側で自律的に行われるため、これは正しさではなく掃除のための操作
func (r *LockRepository) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE locked_until < $1`, time.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired locks: %w", err)
	}
	return tag.RowsAffected(), nil
}
