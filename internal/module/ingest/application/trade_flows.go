package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harigane/jpxsync/internal/module/ingest/batch"
	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/module/marketdata"
)

const (
	datasetTradeFlows    = "trade_flows"
	datasetFlowIntegrity = "flow_integrity"

	// tradeFlowWeekSpan は対象日から遡って取得する日数（1週間分）
	tradeFlowWeekSpan = 6
)

var tradeFlowColumns = []string{
	"section", "start_date", "end_date",
	"proprietary_sales", "proprietary_purchases",
	"individuals_sales", "individuals_purchases",
	"foreigners_sales", "foreigners_purchases",
	"total_sales", "total_purchases",
}

// TradeFlowsHandler は投資部門別売買状況の同期ハンドラーです
// upsert後に格納行数の整合性チェックを行う点が他のハンドラーと異なる
type TradeFlowsHandler struct {
	api   MarketData
	store Store
}

// NewTradeFlowsHandler は新しいTradeFlowsHandlerを作成します
func NewTradeFlowsHandler(api MarketData, store Store) *TradeFlowsHandler {
	return &TradeFlowsHandler{api: api, store: store}
}

var _ Handler = (*TradeFlowsHandler)(nil)

func (h *TradeFlowsHandler) Name() domain.JobName { return domain.JobTradeFlows }

func (h *TradeFlowsHandler) Direction() Direction { return DirectionBackward }

func (h *TradeFlowsHandler) Datasets() []string {
	return []string{datasetTradeFlows, datasetFlowIntegrity}
}

// Run は対象日を末尾とする1週間分の売買状況を取得・upsertし、
// 格納結果を読み戻して取得件数との整合を検査します
func (h *TradeFlowsHandler) Run(ctx context.Context, date time.Time) (Result, error) {
	var result Result
	from := domain.DateOnly(date).AddDate(0, 0, -tradeFlowWeekSpan)
	to := domain.DateOnly(date)

	ds := DatasetResult{Dataset: datasetTradeFlows, StartedAt: time.Now()}

	specs, pages, err := h.api.TradesSpec(ctx, from, to)
	ds.Pages = pages
	if err != nil {
		ds.Err = err
		ds.FinishedAt = time.Now()
		result.merge(ds)
		return result, fmt.Errorf("fetch trades spec %s..%s: %w", from.Format("2006-01-02"), to.Format("2006-01-02"), err)
	}
	ds.Fetched = len(specs)

	rows := make([][]any, 0, len(specs))
	for _, s := range specs {
		row, err := mapTradeSpecRow(s)
		if err != nil {
			ds.Err = err
			ds.FinishedAt = time.Now()
			result.merge(ds)
			return result, err
		}
		rows = append(rows, row)
	}

	upserted, err := h.store.Upsert(ctx, "investor_flows", tradeFlowColumns, rows, []string{"section", "start_date"}, nil)
	if err != nil {
		ds.Err = err
		ds.FinishedAt = time.Now()
		result.merge(ds)
		return result, fmt.Errorf("upsert investor flows: %w", err)
	}
	ds.Inserted = upserted.Affected
	ds.FinishedAt = time.Now()
	result.merge(ds)

	// 整合性チェック: 取得した週の行が実際に格納されているかを読み戻して数える
	check := DatasetResult{Dataset: datasetFlowIntegrity, StartedAt: time.Now()}
	stored, err := h.store.SelectAll(ctx, batch.SelectOptions{
		Table:   "investor_flows",
		Columns: []string{"section", "start_date"},
		Filter:  &batch.Filter{Column: "start_date", Op: ">=", Value: from},
		OrderBy: "start_date, section",
	})
	if err != nil {
		check.Err = err
		check.FinishedAt = time.Now()
		result.merge(check)
		return result, fmt.Errorf("flow integrity read-back: %w", err)
	}
	check.Fetched = len(stored)
	check.FinishedAt = time.Now()

	if len(stored) < len(rows) {
		check.Err = fmt.Errorf("stored %d flow rows, expected at least %d", len(stored), len(rows))
		result.merge(check)
		return result, fmt.Errorf("flow integrity check failed: %w", check.Err)
	}
	if len(stored) > len(rows) {
		// 過去週の行が残っているだけなので異常ではない
		slog.Debug("flow integrity read-back includes rows beyond fetched week",
			"stored", len(stored), "fetched", len(rows))
	}

	result.merge(check)
	return result, nil
}

func mapTradeSpecRow(s marketdata.TradeSpec) ([]any, error) {
	start, err := time.Parse("2006-01-02", s.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid trade spec start date %q: %w", s.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", s.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid trade spec end date %q: %w", s.EndDate, err)
	}
	return []any{
		s.Section, start, end,
		s.ProprietarySales, s.ProprietaryPurchases,
		s.IndividualsSales, s.IndividualsPurchases,
		s.ForeignersSales, s.ForeignersPurchases,
		s.TotalSales, s.TotalPurchases,
	}, nil
}
