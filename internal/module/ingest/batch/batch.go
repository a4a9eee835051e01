// Package batch はバッチ書き込み・並列処理の共通ユーティリティです
package batch

import (
	"context"
	"fmt"
	"sync"
)

// UpsertOptions はバッチupsertの挙動の調整です
type UpsertOptions struct {
	// ContinueOnError が真の場合、チャンク失敗で中断せずエラーを収集して続行する
	ContinueOnError bool
	// OnChunk はチャンク完了ごとに呼ばれる進捗コールバック（chunk番号, 累積件数, 総チャンク数）
	OnChunk func(chunkIndex, cumulative, totalChunks int)
}

// ChunkError は失敗したチャンクの情報です
type ChunkError struct {
	ChunkIndex int
	Err        error
}

func (e ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.ChunkIndex, e.Err)
}

// UpsertResult はバッチupsertの集計結果です
type UpsertResult struct {
	Affected int64
	Errors   []ChunkError
}

// Filter はバッチselectの単一カラム・単一演算子の絞り込みです
type Filter struct {
	Column string
	Op     string // "=", "<", "<=", ">", ">=", "<>"
	Value  any
}

// SelectOptions はバッチselectの問い合わせ条件です
type SelectOptions struct {
	Table    string
	Columns  []string
	OrderBy  string
	PageSize int
	// MaxPages が正の場合、そのページ数で打ち切る
	MaxPages int
	Filter   *Filter
}

// Chunk はスライスをsize件ごとの部分スライスに分割する
// 空入力は空の結果、端数は最後のチャンクに入る
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Process は全itemsにfnを適用し、同時実行数をconcurrencyに制限する
// チャンク単位で全完了を待ってから次チャンクへ進む方式。
// 出力は入力順を保持し、最初に観測したエラーで以降のチャンクを中断する
// （同一チャンク内の実行中の呼び出しは完了まで待つ）
func Process[T, R any](ctx context.Context, items []T, concurrency int, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]R, len(items))

	for chunkIdx, chunk := range Chunk(items, concurrency) {
		var wg sync.WaitGroup
		errs := make([]error, len(chunk))
		base := chunkIdx * concurrency

		for i, item := range chunk {
			wg.Add(1)
			go func(i int, item T) {
				defer wg.Done()
				r, err := fn(ctx, item)
				if err != nil {
					errs[i] = err
					return
				}
				results[base+i] = r
			}(i, item)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("batch process failed at item %d: %w", base+i, err)
			}
		}
	}

	return results, nil
}
