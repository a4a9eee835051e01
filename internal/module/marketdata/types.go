package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// apiDateFormat は上流APIの日付表現
const apiDateFormat = "2006-01-02"

// DailyQuote は日次株価の1銘柄分です
type DailyQuote struct {
	Code             string   `json:"Code"`
	Date             string   `json:"Date"`
	Open             *float64 `json:"Open"`
	High             *float64 `json:"High"`
	Low              *float64 `json:"Low"`
	Close            *float64 `json:"Close"`
	Volume           *float64 `json:"Volume"`
	TurnoverValue    *float64 `json:"TurnoverValue"`
	AdjustmentFactor float64  `json:"AdjustmentFactor"`
	AdjustmentClose  *float64 `json:"AdjustmentClose"`
}

// Announcement は決算発表予定の1件分です
type Announcement struct {
	Code          string `json:"Code"`
	Date          string `json:"Date"`
	CompanyName   string `json:"CompanyName"`
	FiscalYear    string `json:"FiscalYear"`
	FiscalQuarter string `json:"FiscalQuarter"`
	Section       string `json:"Section"`
}

// TradeSpec は投資部門別売買状況の1週・1市場分です
type TradeSpec struct {
	Section              string   `json:"Section"`
	StartDate            string   `json:"StartDate"`
	EndDate              string   `json:"EndDate"`
	ProprietarySales     *float64 `json:"ProprietarySales"`
	ProprietaryPurchases *float64 `json:"ProprietaryPurchases"`
	IndividualsSales     *float64 `json:"IndividualsSales"`
	IndividualsPurchases *float64 `json:"IndividualsPurchases"`
	ForeignersSales      *float64 `json:"ForeignersSales"`
	ForeignersPurchases  *float64 `json:"ForeignersPurchases"`
	TotalSales           *float64 `json:"TotalSales"`
	TotalPurchases       *float64 `json:"TotalPurchases"`
}

// CalendarDay は営業日カレンダーの1日分です
type CalendarDay struct {
	Date            string `json:"Date"`
	HolidayDivision string `json:"HolidayDivision"`
}

// DailyQuotes は指定日の全銘柄の日次株価を取得する（全ページを読み切る）
// 戻り値はアイテム一覧と取得ページ数
func (c *Client) DailyQuotes(ctx context.Context, date time.Time) ([]DailyQuote, int, error) {
	params := url.Values{"date": {date.Format(apiDateFormat)}}
	return drain[DailyQuote](ctx, c, "/prices/daily_quotes", "daily_quotes", params)
}

// EarningsAnnouncements は指定日の決算発表予定を取得する
func (c *Client) EarningsAnnouncements(ctx context.Context, date time.Time) ([]Announcement, int, error) {
	params := url.Values{"date": {date.Format(apiDateFormat)}}
	return drain[Announcement](ctx, c, "/fins/announcement", "announcement", params)
}

// TradesSpec は指定期間の投資部門別売買状況を取得する
func (c *Client) TradesSpec(ctx context.Context, from, to time.Time) ([]TradeSpec, int, error) {
	params := url.Values{
		"from": {from.Format(apiDateFormat)},
		"to":   {to.Format(apiDateFormat)},
	}
	return drain[TradeSpec](ctx, c, "/markets/trades_spec", "trades_spec", params)
}

// TradingCalendar は指定期間の営業日カレンダーを取得する
func (c *Client) TradingCalendar(ctx context.Context, from, to time.Time) ([]CalendarDay, int, error) {
	params := url.Values{
		"from": {from.Format(apiDateFormat)},
		"to":   {to.Format(apiDateFormat)},
	}
	return drain[CalendarDay](ctx, c, "/markets/trading_calendar", "trading_calendar", params)
}

// drain はPaginateを最後まで読み切って型付きアイテムに変換する
func drain[T any](ctx context.Context, c *Client, path, dataKey string, params url.Values) ([]T, int, error) {
	var items []T
	pages := 0

	for page, err := range c.Paginate(ctx, path, dataKey, params) {
		if err != nil {
			return nil, pages, fmt.Errorf("fetch %s failed at page %d: %w", path, pages+1, err)
		}
		pages++
		for _, raw := range page.Items {
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				return nil, pages, fmt.Errorf("failed to decode %s item: %w", dataKey, err)
			}
			items = append(items, item)
		}
	}

	return items, pages, nil
}
