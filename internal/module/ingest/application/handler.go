package application

import (
	"context"
	"time"

	"github.com/harigane/jpxsync/internal/module/ingest/batch"
	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/module/marketdata"
)

// MarketData はハンドラーが消費する上流APIの型付きインターフェースです
type MarketData interface {
	DailyQuotes(ctx context.Context, date time.Time) ([]marketdata.DailyQuote, int, error)
	EarningsAnnouncements(ctx context.Context, date time.Time) ([]marketdata.Announcement, int, error)
	TradesSpec(ctx context.Context, from, to time.Time) ([]marketdata.TradeSpec, int, error)
	TradingCalendar(ctx context.Context, from, to time.Time) ([]marketdata.CalendarDay, int, error)
}

// Store はハンドラーが消費するバッチストレージのインターフェースです
type Store interface {
	Upsert(ctx context.Context, table string, cols []string, rows [][]any, conflictCols []string, opts *batch.UpsertOptions) (batch.UpsertResult, error)
	SelectAll(ctx context.Context, opts batch.SelectOptions) ([][]any, error)
}

// DatasetResult はデータセット1つ分の処理結果です
type DatasetResult struct {
	Dataset    string
	Fetched    int
	Inserted   int64
	Pages      int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Result はハンドラー1回分（1対象日）の処理結果です
type Result struct {
	Fetched  int
	Inserted int64
	Pages    int
	Datasets []DatasetResult
}

// merge はデータセット結果を合計に積み上げる
func (r *Result) merge(ds DatasetResult) {
	r.Datasets = append(r.Datasets, ds)
	r.Fetched += ds.Fetched
	r.Inserted += ds.Inserted
	r.Pages += ds.Pages
}

// Handler は1ジョブの1対象日分の同期処理です
// ロック・台帳・リトライはここでは扱わない: リトライはフェッチ層、
// ロックと台帳はRunnerの責務で、ハンドラーは「何をどの順で取得し
// どう書くか」の合成に徹する
type Handler interface {
	Name() domain.JobName
	Direction() Direction
	// Datasets はこのハンドラーが処理するデータセット名の一覧
	Datasets() []string
	Run(ctx context.Context, date time.Time) (Result, error)
}
