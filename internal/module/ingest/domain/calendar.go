package domain

import "time"

// HolidayDivision は営業日カレンダーの休日区分コード
type HolidayDivision = string

const (
	// DivisionNonTrading は非営業日
	DivisionNonTrading HolidayDivision = "0"
	// DivisionTrading は通常の営業日
	DivisionTrading HolidayDivision = "1"
	// DivisionHalfDay は半日立会日
	DivisionHalfDay HolidayDivision = "2"
)

// CalendarEntry は営業日カレンダーの1日分です
type CalendarEntry struct {
	Date            time.Time
	HolidayDivision string
}

// IsBusinessDay はこの日が営業日（通常または半日）かを返す
func (e CalendarEntry) IsBusinessDay() bool {
	return IsBusinessDay(e.HolidayDivision)
}

// IsBusinessDay は休日区分コードの営業日判定です
// "1"（営業日）と"2"（半日立会）のみ営業日。未知のコードは非営業日に倒す
func IsBusinessDay(division string) bool {
	return division == DivisionTrading || division == DivisionHalfDay
}

// DateOnly は時刻成分を落としてUTC深夜0時に正規化する
// カレンダー・対象日の比較はすべてこの正規化後の値で行う
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate は2つの時刻が同じ日付かを返す
func SameDate(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}
