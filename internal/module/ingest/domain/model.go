package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobName は同期ジョブの識別名
type JobName string

const (
	// JobDailyQuotes は日次株価の同期ジョブ
	JobDailyQuotes JobName = "daily_quotes"
	// JobEarningsCalendar は翌営業日の決算発表予定の同期ジョブ
	JobEarningsCalendar JobName = "earnings_calendar"
	// JobTradeFlows は投資部門別売買状況の同期ジョブ
	JobTradeFlows JobName = "trade_flows"
	// JobCalendarRefresh は営業日カレンダーの更新ジョブ
	JobCalendarRefresh JobName = "calendar_refresh"
)

// KnownJobs は全ジョブ名を返す（ヘルスチェックの対象一覧）
func KnownJobs() []JobName {
	return []JobName{
		JobDailyQuotes,
		JobEarningsCalendar,
		JobTradeFlows,
		JobCalendarRefresh,
	}
}

// RunStatus はジョブ実行の状態
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// JobRun は1ジョブの1回の実行記録です
// (job_name, target_date) の一意制約が冪等性の基盤になる:
// 同じ対象日への2回目の実行開始は制約違反で即座に弾かれる
type JobRun struct {
	ID           uuid.UUID
	JobName      JobName
	TargetDate   *time.Time
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorMessage *string
	Metadata     map[string]any
}

// JobRunItem はJobRun内のデータセット単位の実行記録です
type JobRunItem struct {
	RunID        uuid.UUID
	Dataset      string
	Status       RunStatus
	RowCount     int
	PageCount    int
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// JobLock はジョブ名ごとのリース式ロック行です
// locked_until が未来である間のみ保持されているとみなす
type JobLock struct {
	JobName     JobName
	Token       string
	LockedUntil time.Time
	UpdatedAt   time.Time
}

// Held はロックが現在保持されているかを返す
func (l *JobLock) Held(now time.Time) bool {
	return l.LockedUntil.After(now)
}

// JobHeartbeat はジョブ名ごとの最終観測記録です
// 可観測性専用で、正しさの判断には使わない
type JobHeartbeat struct {
	JobName        JobName
	LastSeenAt     time.Time
	LastStatus     RunStatus
	LastRunID      *uuid.UUID
	LastTargetDate *time.Time
	LastError      *string
	Metadata       map[string]any
}

// HeartbeatUpdate はハートビートの更新内容です
type HeartbeatUpdate struct {
	Status     RunStatus
	RunID      *uuid.UUID
	TargetDate *time.Time
	Error      string
	Metadata   map[string]any
}

const (
	// MaxRunErrorLen はJobRunに保存するエラーメッセージの上限
	MaxRunErrorLen = 10000
	// MaxHeartbeatErrorLen はハートビートに保存するエラーメッセージの上限
	MaxHeartbeatErrorLen = 1000
)
