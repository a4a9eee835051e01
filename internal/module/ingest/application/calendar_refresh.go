package application

import (
	"context"
	"fmt"
	"time"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/module/marketdata"
)

const datasetCalendar = "trading_calendar"

var calendarColumns = []string{"date", "holiday_division"}

// CalendarRefreshHandler は営業日カレンダーの更新ハンドラーです
// 対象日を持たず、実行のたびに基準日前後の範囲を取得し直す。
// 他のジョブが依存する参照データなので十分な先読み幅を持たせる
type CalendarRefreshHandler struct {
	api       MarketData
	store     Store
	lookBack  int
	lookAhead int
}

// NewCalendarRefreshHandler は新しいCalendarRefreshHandlerを作成します
func NewCalendarRefreshHandler(api MarketData, store Store, lookBackDays, lookAheadDays int) *CalendarRefreshHandler {
	if lookBackDays <= 0 {
		lookBackDays = 30
	}
	if lookAheadDays <= 0 {
		lookAheadDays = 90
	}
	return &CalendarRefreshHandler{api: api, store: store, lookBack: lookBackDays, lookAhead: lookAheadDays}
}

var _ Handler = (*CalendarRefreshHandler)(nil)

func (h *CalendarRefreshHandler) Name() domain.JobName { return domain.JobCalendarRefresh }

func (h *CalendarRefreshHandler) Direction() Direction { return DirectionNone }

func (h *CalendarRefreshHandler) Datasets() []string { return []string{datasetCalendar} }

// Run は基準日の前後lookBack/lookAhead日分のカレンダーを取得してupsertします
func (h *CalendarRefreshHandler) Run(ctx context.Context, date time.Time) (Result, error) {
	var result Result
	base := domain.DateOnly(date)
	from := base.AddDate(0, 0, -h.lookBack)
	to := base.AddDate(0, 0, h.lookAhead)

	ds := DatasetResult{Dataset: datasetCalendar, StartedAt: time.Now()}

	days, pages, err := h.api.TradingCalendar(ctx, from, to)
	ds.Pages = pages
	if err != nil {
		ds.Err = err
		ds.FinishedAt = time.Now()
		result.merge(ds)
		return result, fmt.Errorf("fetch trading calendar %s..%s: %w", from.Format("2006-01-02"), to.Format("2006-01-02"), err)
	}
	ds.Fetched = len(days)

	rows := make([][]any, 0, len(days))
	for _, d := range days {
		row, err := mapCalendarRow(d)
		if err != nil {
			ds.Err = err
			ds.FinishedAt = time.Now()
			result.merge(ds)
			return result, err
		}
		rows = append(rows, row)
	}

	upserted, err := h.store.Upsert(ctx, "trading_calendar", calendarColumns, rows, []string{"date"}, nil)
	if err != nil {
		ds.Err = err
		ds.FinishedAt = time.Now()
		result.merge(ds)
		return result, fmt.Errorf("upsert trading calendar: %w", err)
	}

	ds.Inserted = upserted.Affected
	ds.FinishedAt = time.Now()
	result.merge(ds)
	return result, nil
}

func mapCalendarRow(d marketdata.CalendarDay) ([]any, error) {
	date, err := time.Parse("2006-01-02", d.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar date %q: %w", d.Date, err)
	}
	return []any{date, d.HolidayDivision}, nil
}
