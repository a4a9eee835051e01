package domain

import (
	"fmt"
	"time"
)

// DefaultStaleThreshold はハートビートが陳腐化したとみなすまでの時間
// 日次cronの1周期 + 猶予1時間
const DefaultStaleThreshold = 25 * time.Hour

// JobHealth は1ジョブのヘルス判定結果です
type JobHealth struct {
	JobName JobName
	Healthy bool
	Reason  string
}

// EvaluateHealth はハートビート記録からヘルス状態を純粋に判定する
// hbがnil（記録なし）、閾値超過、最終ステータスfailedのいずれかで不健全。
// runningは実行中というだけなので健全として扱う
func EvaluateHealth(job JobName, hb *JobHeartbeat, now time.Time, staleAfter time.Duration) JobHealth {
	if hb == nil {
		return JobHealth{JobName: job, Healthy: false, Reason: "No heartbeat record found"}
	}

	age := now.Sub(hb.LastSeenAt)
	if age > staleAfter {
		return JobHealth{
			JobName: job,
			Healthy: false,
			Reason:  fmt.Sprintf("stale heartbeat, last seen %.1f hours ago", age.Hours()),
		}
	}

	if hb.LastStatus == RunStatusFailed {
		reason := "last run failed"
		if hb.LastError != nil {
			reason = fmt.Sprintf("last run failed: %s", *hb.LastError)
		}
		return JobHealth{JobName: job, Healthy: false, Reason: reason}
	}

	return JobHealth{JobName: job, Healthy: true, Reason: "ok"}
}
