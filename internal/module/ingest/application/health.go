package application

import (
	"context"
	"fmt"
	"time"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
)

// HeartbeatReader はヘルス判定に必要なハートビート参照です
type HeartbeatReader interface {
	All(ctx context.Context) (map[domain.JobName]*domain.JobHeartbeat, error)
}

// HealthService は全ジョブのヘルス状態を評価します
type HealthService struct {
	hearts     HeartbeatReader
	staleAfter time.Duration
	now        func() time.Time
}

// NewHealthService は新しいHealthServiceを作成します
func NewHealthService(hearts HeartbeatReader, staleAfter time.Duration) *HealthService {
	if staleAfter <= 0 {
		staleAfter = domain.DefaultStaleThreshold
	}
	return &HealthService{hearts: hearts, staleAfter: staleAfter, now: time.Now}
}

// CheckAll は既知の全ジョブについてヘルス状態を返します
// ハートビート記録がないジョブも一度も動いていない異常として報告する
func (s *HealthService) CheckAll(ctx context.Context) ([]domain.JobHealth, error) {
	beats, err := s.hearts.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load heartbeats: %w", err)
	}

	now := s.now()
	jobs := domain.KnownJobs()
	results := make([]domain.JobHealth, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, domain.EvaluateHealth(job, beats[job], now, s.staleAfter))
	}
	return results, nil
}

// Healthy は全ジョブが健全な場合にtrueを返します
func Healthy(results []domain.JobHealth) bool {
	for _, r := range results {
		if !r.Healthy {
			return false
		}
	}
	return true
}
