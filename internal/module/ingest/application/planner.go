// Package application はジョブのオーケストレーション層です
// ロック取得 → 台帳記録 → 対象日決定 → 取得・書き込み → 完了記録の
// 一連の流れをここで合成する
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
)

// Direction はジョブが処理する対象日の向きです
type Direction int

const (
	// DirectionBackward は過去の営業日データを処理するジョブ（株価、売買状況）
	DirectionBackward Direction = iota
	// DirectionForward は未来の営業日データを処理するジョブ（決算発表予定）
	DirectionForward
	// DirectionNone は対象日を持たないジョブ（カレンダー更新）
	DirectionNone
)

// RunChecker は対象日の処理済み判定に必要な台帳参照です
type RunChecker interface {
	HasRunForDate(ctx context.Context, job domain.JobName, date time.Time, status *domain.RunStatus) (bool, error)
}

// Calendar は対象日決定に必要な営業日参照です
type Calendar interface {
	BusinessDayOnOrBefore(ctx context.Context, date time.Time) (*time.Time, error)
	PreviousBusinessDay(ctx context.Context, date time.Time) (*time.Time, error)
	NextBusinessDay(ctx context.Context, date time.Time) (*time.Time, error)
}

// Planner は台帳とカレンダーから未処理の対象日を計算するキャッチアップ計画器です
// デプロイ停止や一時障害で飛んだ実行を、次の起動が自然に埋め戻す
type Planner struct {
	ledger   RunChecker
	calendar Calendar
	window   int
}

// NewPlanner は新しいPlannerを作成します
// windowは1回の実行で埋め戻す日数の上限
func NewPlanner(ledger RunChecker, calendar Calendar, window int) *Planner {
	if window <= 0 {
		window = 5
	}
	return &Planner{ledger: ledger, calendar: calendar, window: window}
}

// TargetDates はジョブがまだ成功していない営業日を返します
// Backward: 直近の対象営業日から過去へ、連続して成功済みの日に当たるか
// ウィンドウ上限に達するまで遡り、古い順に返す。
// Forward: 次の営業日1日のみ（成功済みなら空）。
// DirectionNoneのジョブは対象日を持たないため常に空
func (p *Planner) TargetDates(ctx context.Context, job domain.JobName, dir Direction, now time.Time) ([]time.Time, error) {
	switch dir {
	case DirectionBackward:
		return p.backwardDates(ctx, job, now)
	case DirectionForward:
		return p.forwardDates(ctx, job, now)
	default:
		return nil, nil
	}
}

func (p *Planner) backwardDates(ctx context.Context, job domain.JobName, now time.Time) ([]time.Time, error) {
	latest, err := p.calendar.BusinessDayOnOrBefore(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest business day: %w", err)
	}
	if latest == nil {
		return nil, fmt.Errorf("no business day found on or before %s (calendar coverage?)", now.Format("2006-01-02"))
	}

	success := domain.RunStatusSuccess
	var dates []time.Time
	cur := *latest

	for len(dates) < p.window {
		done, err := p.ledger.HasRunForDate(ctx, job, cur, &success)
		if err != nil {
			return nil, fmt.Errorf("failed to check job run for %s: %w", cur.Format("2006-01-02"), err)
		}
		if done {
			// 連続して処理済みの領域に到達したら打ち切る
			break
		}

		// 古い順を保つため先頭に積む
		dates = append([]time.Time{cur}, dates...)

		prev, err := p.calendar.PreviousBusinessDay(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve previous business day: %w", err)
		}
		if prev == nil {
			break
		}
		cur = *prev
	}

	return dates, nil
}

func (p *Planner) forwardDates(ctx context.Context, job domain.JobName, now time.Time) ([]time.Time, error) {
	next, err := p.calendar.NextBusinessDay(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve next business day: %w", err)
	}
	if next == nil {
		return nil, fmt.Errorf("no business day found after %s (calendar coverage?)", now.Format("2006-01-02"))
	}

	success := domain.RunStatusSuccess
	done, err := p.ledger.HasRunForDate(ctx, job, *next, &success)
	if err != nil {
		return nil, fmt.Errorf("failed to check job run for %s: %w", next.Format("2006-01-02"), err)
	}
	if done {
		return nil, nil
	}
	return []time.Time{*next}, nil
}
