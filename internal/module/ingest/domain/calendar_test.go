package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsBusinessDay(t *testing.T) {
	tests := []struct {
		division string
		want     bool
	}{
		{"1", true},  // 営業日
		{"2", true},  // 半日立会
		{"0", false}, // 休日
		{"", false},
		{"3", false}, // 未知のコードは非営業日に倒す
		{"x", false},
	}

	for _, tt := range tests {
		t.Run("division="+tt.division, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBusinessDay(tt.division))
		})
	}
}

func TestCalendarEntry_IsBusinessDay(t *testing.T) {
	entry := CalendarEntry{
		Date:            time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		HolidayDivision: DivisionTrading,
	}
	assert.True(t, entry.IsBusinessDay())

	entry.HolidayDivision = DivisionNonTrading
	assert.False(t, entry.IsBusinessDay())
}

func TestDateOnly(t *testing.T) {
	ts := time.Date(2024, 6, 3, 15, 4, 5, 123, time.Local)
	got := DateOnly(ts)

	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), got)
}

func TestSameDate(t *testing.T) {
	a := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	b := time.Date(2024, 6, 3, 23, 59, 0, 0, time.UTC)
	c := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDate(a, b))
	assert.False(t, SameDate(a, c))
}
