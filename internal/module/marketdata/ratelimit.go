package marketdata

import (
	"context"
	"sync"
	"time"
)

// RateLimiter はAPI呼び出しのレート制限を管理する
// トークンバケット方式で、経過時間に比例して連続的に補充する。
// プロセス内で1インスタンスを共有し、全呼び出しを単一の予算で直列化する
type RateLimiter struct {
	mu sync.Mutex

	// capacity はwindowあたりの最大リクエスト数（バケット容量）
	capacity float64

	// window は補充の基準ウィンドウ
	window time.Duration

	// tokens は現在のトークン残高（端数を保持する）
	tokens float64

	// lastRefill は最後にトークンを補充した時刻
	lastRefill time.Time
}

// NewRateLimiter は新しいRateLimiterを作成する
func NewRateLimiter(capacity int, window time.Duration) *RateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		capacity:   float64(capacity),
		window:     window,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// Wait はトークンが利用可能になるまで待機し、1トークンを消費する
// 拒否はせず遅延のみ。contextがキャンセルされた場合はエラーを返す
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		// 次のトークンが貯まるまでの時間を計算して待つ
		deficit := 1 - rl.tokens
		wait := time.Duration(deficit / rl.capacity * float64(rl.window))
		rl.mu.Unlock()

		select {
		case <-time.After(wait):
			// 補充後に再試行
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// refill は経過時間に応じてトークンを補充する（呼び出し側がロックを保持していること）
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	if elapsed <= 0 {
		return
	}

	rl.tokens += float64(elapsed) / float64(rl.window) * rl.capacity
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now
}

// Available は現在のトークン残高を返す（監視・テスト用）
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}
