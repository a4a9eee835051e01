package application

import (
	"context"
	"fmt"
	"time"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/module/marketdata"
)

const datasetEarnings = "earnings_announcements"

var announcementColumns = []string{
	"code", "announcement_date", "company_name", "fiscal_year", "fiscal_quarter", "section",
}

// EarningsCalendarHandler は翌営業日の決算発表予定の同期ハンドラーです
// 対象が未来方向である以外はDailyQuotesHandlerと同じ形
type EarningsCalendarHandler struct {
	api   MarketData
	store Store
}

// NewEarningsCalendarHandler は新しいEarningsCalendarHandlerを作成します
func NewEarningsCalendarHandler(api MarketData, store Store) *EarningsCalendarHandler {
	return &EarningsCalendarHandler{api: api, store: store}
}

var _ Handler = (*EarningsCalendarHandler)(nil)

func (h *EarningsCalendarHandler) Name() domain.JobName { return domain.JobEarningsCalendar }

func (h *EarningsCalendarHandler) Direction() Direction { return DirectionForward }

func (h *EarningsCalendarHandler) Datasets() []string { return []string{datasetEarnings} }

// Run は指定営業日（翌営業日）の決算発表予定を取得してupsertします
func (h *EarningsCalendarHandler) Run(ctx context.Context, date time.Time) (Result, error) {
	var result Result
	ds := DatasetResult{Dataset: datasetEarnings, StartedAt: time.Now()}

	announcements, pages, err := h.api.EarningsAnnouncements(ctx, date)
	ds.Pages = pages
	if err != nil {
		ds.Err = err
		ds.FinishedAt = time.Now()
		result.merge(ds)
		return result, fmt.Errorf("fetch earnings announcements for %s: %w", date.Format("2006-01-02"), err)
	}
	ds.Fetched = len(announcements)

	rows := make([][]any, 0, len(announcements))
	for _, a := range announcements {
		row, err := mapAnnouncementRow(a)
		if err != nil {
			ds.Err = err
			ds.FinishedAt = time.Now()
			result.merge(ds)
			return result, err
		}
		rows = append(rows, row)
	}

	upserted, err := h.store.Upsert(ctx, "earnings_announcements", announcementColumns, rows, []string{"code", "announcement_date"}, nil)
	if err != nil {
		ds.Err = err
		ds.FinishedAt = time.Now()
		result.merge(ds)
		return result, fmt.Errorf("upsert earnings announcements for %s: %w", date.Format("2006-01-02"), err)
	}

	ds.Inserted = upserted.Affected
	ds.FinishedAt = time.Now()
	result.merge(ds)
	return result, nil
}

func mapAnnouncementRow(a marketdata.Announcement) ([]any, error) {
	announcementDate, err := time.Parse("2006-01-02", a.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid announcement date %q for code %s: %w", a.Date, a.Code, err)
	}
	return []any{
		a.Code, announcementDate, a.CompanyName, a.FiscalYear, a.FiscalQuarter, a.Section,
	}, nil
}
