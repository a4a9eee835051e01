package domain

import "errors"

var (
	// ErrLockHeld は他のプロセスがロックを保持している場合のエラー
	ErrLockHeld = errors.New("job lock already held")

	// ErrLockRace はロック再取得の条件付き更新が競合に負けた場合のエラー
	ErrLockRace = errors.New("job lock lost acquisition race")

	// ErrAlreadyExecuted は同一ジョブ・同一対象日の実行が既に存在する場合のエラー
	// 冪等ゲートとして期待される結果であり、呼び出し側は失敗扱いにしない
	ErrAlreadyExecuted = errors.New("job already executed for target date")
)
