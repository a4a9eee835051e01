package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
)

func TestPlannerBackwardDates(t *testing.T) {
	// 月〜金が営業日の週。木曜の朝に起動したとき火・水が未処理の状況
	calendar := newFakeCalendar(
		"2026-08-24", "2026-08-25", "2026-08-26", "2026-08-27", "2026-08-28",
	)
	now := date("2026-08-27").Add(6 * time.Hour)

	t.Run("fills missing days oldest first", func(t *testing.T) {
		ledger := newFakeRunChecker("2026-08-24", "2026-08-25")
		planner := NewPlanner(ledger, calendar, 5)

		dates, err := planner.TargetDates(context.Background(), domain.JobDailyQuotes, DirectionBackward, now)
		require.NoError(t, err)

		require.Len(t, dates, 2)
		assert.Equal(t, date("2026-08-26"), dates[0])
		assert.Equal(t, date("2026-08-27"), dates[1])
	})

	t.Run("stops at first already succeeded day", func(t *testing.T) {
		// 火曜は成功済みだが月曜は未処理。遡行は火曜で打ち切られ月曜は拾わない
		ledger := newFakeRunChecker("2026-08-25", "2026-08-26")
		planner := NewPlanner(ledger, calendar, 5)

		dates, err := planner.TargetDates(context.Background(), domain.JobDailyQuotes, DirectionBackward, now)
		require.NoError(t, err)

		require.Len(t, dates, 1)
		assert.Equal(t, date("2026-08-27"), dates[0])
	})

	t.Run("respects catch-up window", func(t *testing.T) {
		ledger := newFakeRunChecker()
		planner := NewPlanner(ledger, calendar, 2)

		dates, err := planner.TargetDates(context.Background(), domain.JobDailyQuotes, DirectionBackward, now)
		require.NoError(t, err)

		require.Len(t, dates, 2)
		assert.Equal(t, date("2026-08-26"), dates[0])
		assert.Equal(t, date("2026-08-27"), dates[1])
	})

	t.Run("returns empty when up to date", func(t *testing.T) {
		ledger := newFakeRunChecker("2026-08-27")
		planner := NewPlanner(ledger, calendar, 5)

		dates, err := planner.TargetDates(context.Background(), domain.JobDailyQuotes, DirectionBackward, now)
		require.NoError(t, err)
		assert.Empty(t, dates)
	})

	t.Run("weekend resolves to friday", func(t *testing.T) {
		ledger := newFakeRunChecker()
		planner := NewPlanner(ledger, calendar, 1)

		// 土曜に起動しても対象は金曜
		dates, err := planner.TargetDates(context.Background(), domain.JobDailyQuotes, DirectionBackward, date("2026-08-29"))
		require.NoError(t, err)

		require.Len(t, dates, 1)
		assert.Equal(t, date("2026-08-28"), dates[0])
	})

	t.Run("errors without calendar coverage", func(t *testing.T) {
		ledger := newFakeRunChecker()
		planner := NewPlanner(ledger, newFakeCalendar(), 5)

		_, err := planner.TargetDates(context.Background(), domain.JobDailyQuotes, DirectionBackward, now)
		assert.Error(t, err)
	})
}

func TestPlannerForwardDates(t *testing.T) {
	calendar := newFakeCalendar(
		"2026-08-27", "2026-08-28", "2026-08-31",
	)
	now := date("2026-08-28").Add(6 * time.Hour)

	t.Run("returns next business day", func(t *testing.T) {
		ledger := newFakeRunChecker()
		planner := NewPlanner(ledger, calendar, 5)

		dates, err := planner.TargetDates(context.Background(), domain.JobEarningsCalendar, DirectionForward, now)
		require.NoError(t, err)

		require.Len(t, dates, 1)
		assert.Equal(t, date("2026-08-31"), dates[0])
	})

	t.Run("empty when next day already succeeded", func(t *testing.T) {
		ledger := newFakeRunChecker("2026-08-31")
		planner := NewPlanner(ledger, calendar, 5)

		dates, err := planner.TargetDates(context.Background(), domain.JobEarningsCalendar, DirectionForward, now)
		require.NoError(t, err)
		assert.Empty(t, dates)
	})
}

func TestPlannerDirectionNone(t *testing.T) {
	planner := NewPlanner(newFakeRunChecker(), newFakeCalendar(), 5)

	dates, err := planner.TargetDates(context.Background(), domain.JobCalendarRefresh, DirectionNone, time.Now())
	require.NoError(t, err)
	assert.Empty(t, dates)
}
