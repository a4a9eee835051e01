package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/platform/database"
)

// CalendarRepository は営業日カレンダーの参照アダプターです
// カレンダー行は外部の取り込み（calendar_refreshジョブ）で更新され、
// ここでは読み取りのみを行う
type CalendarRepository struct {
	db database.DBTX
}

// NewCalendarRepository は新しいCalendarRepositoryを作成します
func NewCalendarRepository(db database.DBTX) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// businessDayCondition は営業日（"1"=営業日, "2"=半日立会）の絞り込み条件
const businessDayCondition = `holiday_division IN ('1', '2')`

// BusinessDayOnOrBefore は指定日以前で最も近い営業日を返します。なければnil
func (r *CalendarRepository) BusinessDayOnOrBefore(ctx context.Context, date time.Time) (*time.Time, error) {
	return r.queryOne(ctx,
		`SELECT date FROM trading_calendar
		 WHERE date <= $1 AND `+businessDayCondition+`
		 ORDER BY date DESC LIMIT 1`,
		domain.DateOnly(date),
	)
}

// PreviousBusinessDay は指定日より前の直近営業日を返します。なければnil
func (r *CalendarRepository) PreviousBusinessDay(ctx context.Context, date time.Time) (*time.Time, error) {
	return r.queryOne(ctx,
		`SELECT date FROM trading_calendar
		 WHERE date < $1 AND `+businessDayCondition+`
		 ORDER BY date DESC LIMIT 1`,
		domain.DateOnly(date),
	)
}

// NextBusinessDay は指定日より後の直近営業日を返します。なければnil
func (r *CalendarRepository) NextBusinessDay(ctx context.Context, date time.Time) (*time.Time, error) {
	return r.queryOne(ctx,
		`SELECT date FROM trading_calendar
		 WHERE date > $1 AND `+businessDayCondition+`
		 ORDER BY date ASC LIMIT 1`,
		domain.DateOnly(date),
	)
}

// BusinessDays は期間内の営業日を昇順で返します
func (r *CalendarRepository) BusinessDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.Query(ctx,
		`SELECT date FROM trading_calendar
		 WHERE date >= $1 AND date <= $2 AND `+businessDayCondition+`
		 ORDER BY date ASC`,
		domain.DateOnly(from), domain.DateOnly(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list business days: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan business day: %w", err)
		}
		dates = append(dates, domain.DateOnly(d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate business days: %w", err)
	}
	return dates, nil
}

// BusinessDayNDaysAgo は基準日からN営業日前の日付を返します
// N=0は問い合わせせずに基準日をそのまま返す
func (r *CalendarRepository) BusinessDayNDaysAgo(ctx context.Context, base time.Time, n int) (*time.Time, error) {
	if n == 0 {
		d := domain.DateOnly(base)
		return &d, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("n must be non-negative, got %d", n)
	}

	return r.queryOne(ctx,
		`SELECT date FROM trading_calendar
		 WHERE date < $1 AND `+businessDayCondition+`
		 ORDER BY date DESC OFFSET $2 LIMIT 1`,
		domain.DateOnly(base), n-1,
	)
}

// Coverage はカレンダーの収録範囲チェックの結果です
type Coverage struct {
	OK      bool
	MinDate *time.Time
	MaxDate *time.Time
	Reason  string
}

// CheckCoverage は収録済みカレンダーがtodayからの遡り・先読みの
// 要求範囲を満たしているかを検査します
// カレンダーが足りないままキャッチアップが静かに空振りするのを防ぐガード
func (r *CalendarRepository) CheckCoverage(ctx context.Context, today time.Time, lookBackDays, lookAheadDays int) (Coverage, error) {
	var minDate, maxDate *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT min(date), max(date) FROM trading_calendar`,
	).Scan(&minDate, &maxDate)
	if err != nil {
		return Coverage{}, fmt.Errorf("failed to check calendar coverage: %w", err)
	}

	cov := Coverage{MinDate: minDate, MaxDate: maxDate}
	if minDate == nil || maxDate == nil {
		cov.Reason = "calendar is empty"
		return cov, nil
	}

	base := domain.DateOnly(today)
	requiredMin := base.AddDate(0, 0, -lookBackDays)
	requiredMax := base.AddDate(0, 0, lookAheadDays)

	switch {
	case minDate.After(requiredMin):
		cov.Reason = fmt.Sprintf("calendar starts %s, need %s", minDate.Format("2006-01-02"), requiredMin.Format("2006-01-02"))
	case maxDate.Before(requiredMax):
		cov.Reason = fmt.Sprintf("calendar ends %s, need %s", maxDate.Format("2006-01-02"), requiredMax.Format("2006-01-02"))
	default:
		cov.OK = true
	}
	return cov, nil
}

func (r *CalendarRepository) queryOne(ctx context.Context, query string, args ...any) (*time.Time, error) {
	var d time.Time
	err := r.db.QueryRow(ctx, query, args...).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	normalized := domain.DateOnly(d)
	return &normalized, nil
}
