package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	// DefaultMaxRetries はリトライ可能エラー時の最大リトライ回数
	DefaultMaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// APIError は上流APIの非2xxレスポンスを表す
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d body=%s", e.StatusCode, e.Body)
}

// Retryable はこのエラーがリトライで解消しうるかを返す
// 429と5xxはリトライ対象。それ以外の4xxはリクエスト自体の欠陥
// （認証・パラメータ不正）なのでリトライしても無駄
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// retryable はエラーの分類: トランスポートエラーはリトライ対象、
// APIErrorは自身の判定に従う
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// HTTPステータス以前の失敗（接続断、タイムアウト等）はリトライ対象
	return true
}

// Retrier は分類駆動のリトライ付きで単一のHTTP呼び出しを実行する
type Retrier struct {
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewRetrier は新しいRetrierを作成する
func NewRetrier(maxRetries int) *Retrier {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Retrier{
		maxRetries:  maxRetries,
		baseBackoff: BaseBackoff,
		maxBackoff:  MaxBackoff,
	}
}

// Do はfnを実行し、リトライ可能な失敗に対してExponential Backoff+ジッターで再試行する
// リトライ不能な失敗は即座に返し、回数超過時は最後のエラーを
// ErrMaxRetriesExceededでラップして返す
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential Backoff + ジッター（リトライの同時集中を避ける）
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * r.baseBackoff
			if backoff > r.maxBackoff {
				backoff = r.maxBackoff
			}
			if jitterRange := backoff / 2; jitterRange > 0 {
				backoff += rand.N(jitterRange)
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				// バックオフ後、再試行
			}
		}

		body, err := fn(ctx)
		if err == nil {
			return body, nil
		}

		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}
