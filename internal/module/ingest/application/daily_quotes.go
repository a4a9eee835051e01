package application

import (
	"context"
	"fmt"
	"time"

	"github.com/harigane/jpxsync/internal/module/ingest/batch"
	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/module/marketdata"
)

const datasetDailyQuotes = "daily_quotes"

var dailyQuoteColumns = []string{
	"code", "trade_date", "open", "high", "low", "close",
	"volume", "turnover_value", "adjustment_factor", "adjustment_close",
}

// DailyQuotesHandler は日次株価の同期ハンドラーです（前営業日方向）
type DailyQuotesHandler struct {
	api   MarketData
	store Store
}

// NewDailyQuotesHandler は新しいDailyQuotesHandlerを作成します
func NewDailyQuotesHandler(api MarketData, store Store) *DailyQuotesHandler {
	return &DailyQuotesHandler{api: api, store: store}
}

var _ Handler = (*DailyQuotesHandler)(nil)

func (h *DailyQuotesHandler) Name() domain.JobName { return domain.JobDailyQuotes }

func (h *DailyQuotesHandler) Direction() Direction { return DirectionBackward }

func (h *DailyQuotesHandler) Datasets() []string { return []string{datasetDailyQuotes} }

// Run は指定営業日の全銘柄株価を取得してupsertします
func (h *DailyQuotesHandler) Run(ctx context.Context, date time.Time) (Result, error) {
	var result Result
	ds := DatasetResult{Dataset: datasetDailyQuotes, StartedAt: time.Now()}

	quotes, pages, err := h.api.DailyQuotes(ctx, date)
	ds.Pages = pages
	if err != nil {
		ds.Err = err
		ds.FinishedAt = time.Now()
		result.merge(ds)
		return result, fmt.Errorf("fetch daily quotes for %s: %w", date.Format("2006-01-02"), err)
	}
	ds.Fetched = len(quotes)

	// API行 → ストレージ行への変換は純粋なので並列化できる
	rows, err := batch.Process(ctx, quotes, 8, func(_ context.Context, q marketdata.DailyQuote) ([]any, error) {
		return mapDailyQuoteRow(q)
	})
	if err != nil {
		ds.Err = err
		ds.FinishedAt = time.Now()
		result.merge(ds)
		return result, fmt.Errorf("map daily quotes for %s: %w", date.Format("2006-01-02"), err)
	}

	upserted, err := h.store.Upsert(ctx, "daily_quotes", dailyQuoteColumns, rows, []string{"code", "trade_date"}, nil)
	if err != nil {
		ds.Err = err
		ds.FinishedAt = time.Now()
		result.merge(ds)
		return result, fmt.Errorf("upsert daily quotes for %s: %w", date.Format("2006-01-02"), err)
	}

	ds.Inserted = upserted.Affected
	ds.FinishedAt = time.Now()
	result.merge(ds)
	return result, nil
}

func mapDailyQuoteRow(q marketdata.DailyQuote) ([]any, error) {
	tradeDate, err := time.Parse("2006-01-02", q.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid quote date %q for code %s: %w", q.Date, q.Code, err)
	}
	return []any{
		q.Code, tradeDate, q.Open, q.High, q.Low, q.Close,
		q.Volume, q.TurnoverValue, q.AdjustmentFactor, q.AdjustmentClose,
	}, nil
}
