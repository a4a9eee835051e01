package application

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harigane/jpxsync/internal/module/ingest/batch"
	"github.com/harigane/jpxsync/internal/module/ingest/domain"
	"github.com/harigane/jpxsync/internal/module/marketdata"
	"github.com/harigane/jpxsync/internal/module/notify"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *time.Time {
	d := date(s)
	return &d
}

// fakeCalendar は固定の営業日リストから前後の営業日を引きます
type fakeCalendar struct {
	businessDays []time.Time
}

func newFakeCalendar(days ...string) *fakeCalendar {
	c := &fakeCalendar{}
	for _, d := range days {
		c.businessDays = append(c.businessDays, date(d))
	}
	return c
}

func (c *fakeCalendar) BusinessDayOnOrBefore(_ context.Context, d time.Time) (*time.Time, error) {
	for i := len(c.businessDays) - 1; i >= 0; i-- {
		if !c.businessDays[i].After(d) {
			bd := c.businessDays[i]
			return &bd, nil
		}
	}
	return nil, nil
}

func (c *fakeCalendar) PreviousBusinessDay(_ context.Context, d time.Time) (*time.Time, error) {
	for i := len(c.businessDays) - 1; i >= 0; i-- {
		if c.businessDays[i].Before(d) {
			bd := c.businessDays[i]
			return &bd, nil
		}
	}
	return nil, nil
}

func (c *fakeCalendar) NextBusinessDay(_ context.Context, d time.Time) (*time.Time, error) {
	for _, bd := range c.businessDays {
		if bd.After(d) {
			out := bd
			return &out, nil
		}
	}
	return nil, nil
}

// fakeRunChecker は成功済みの対象日を集合として持ちます
type fakeRunChecker struct {
	succeeded map[string]bool
}

func newFakeRunChecker(succeededDates ...string) *fakeRunChecker {
	m := make(map[string]bool, len(succeededDates))
	for _, d := range succeededDates {
		m[d] = true
	}
	return &fakeRunChecker{succeeded: m}
}

func (f *fakeRunChecker) HasRunForDate(_ context.Context, _ domain.JobName, d time.Time, _ *domain.RunStatus) (bool, error) {
	return f.succeeded[d.Format("2006-01-02")], nil
}

// fakeLocker はロック取得の成否を注入できます
type fakeLocker struct {
	acquireErr error
	acquired   int
	released   int
}

func (f *fakeLocker) Acquire(_ context.Context, _ domain.JobName, _ time.Duration) (string, error) {
	if f.acquireErr != nil {
		return "", f.acquireErr
	}
	f.acquired++
	return "test-token", nil
}

func (f *fakeLocker) Release(_ context.Context, _ domain.JobName, _ string) {
	f.released++
}

type completedRun struct {
	runID  uuid.UUID
	status domain.RunStatus
	errMsg string
}

type completedItem struct {
	runID    uuid.UUID
	dataset  string
	status   domain.RunStatus
	rowCount int
	errMsg   string
}

// fakeLedger は台帳呼び出しを記録します
type fakeLedger struct {
	mu sync.Mutex
	// alreadyExecuted に入っている日付はStartRunがErrAlreadyExecutedを返す
	alreadyExecuted map[string]bool
	startErr        error

	started        []*domain.JobRun
	completedRuns  []completedRun
	startedItems   []string
	completedItems []completedItem
}

func (f *fakeLedger) StartRun(_ context.Context, job domain.JobName, targetDate *time.Time, _ map[string]any) (*domain.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	if targetDate != nil && f.alreadyExecuted[targetDate.Format("2006-01-02")] {
		return nil, domain.ErrAlreadyExecuted
	}
	run := &domain.JobRun{
		ID:         uuid.New(),
		JobName:    job,
		TargetDate: targetDate,
		Status:     domain.RunStatusRunning,
		StartedAt:  time.Now(),
	}
	f.started = append(f.started, run)
	return run, nil
}

func (f *fakeLedger) CompleteRun(_ context.Context, runID uuid.UUID, status domain.RunStatus, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedRuns = append(f.completedRuns, completedRun{runID: runID, status: status, errMsg: errMsg})
}

func (f *fakeLedger) StartRunItem(_ context.Context, _ uuid.UUID, dataset string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startedItems = append(f.startedItems, dataset)
	return nil
}

func (f *fakeLedger) CompleteRunItem(_ context.Context, runID uuid.UUID, dataset string, status domain.RunStatus, rowCount, _ int, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedItems = append(f.completedItems, completedItem{
		runID: runID, dataset: dataset, status: status, rowCount: rowCount, errMsg: errMsg,
	})
}

// fakeHeartbeats はハートビート更新を記録します
type fakeHeartbeats struct {
	updates []domain.HeartbeatUpdate
}

func (f *fakeHeartbeats) Update(_ context.Context, _ domain.JobName, upd domain.HeartbeatUpdate) {
	f.updates = append(f.updates, upd)
}

func (f *fakeHeartbeats) lastStatus() domain.RunStatus {
	if len(f.updates) == 0 {
		return ""
	}
	return f.updates[len(f.updates)-1].Status
}

// fakeNotifier は通知イベントを記録します
type fakeNotifier struct {
	events []notify.Event
}

func (f *fakeNotifier) NotifyFailure(_ context.Context, event notify.Event) {
	f.events = append(f.events, event)
}

// fakeHandler は対象日ごとに成否を注入できるハンドラーです
type fakeHandler struct {
	name      domain.JobName
	direction Direction
	datasets  []string
	// failOn の日付でRunがエラーを返す
	failOn map[string]error
	ran    []string
	result Result
}

func (f *fakeHandler) Name() domain.JobName { return f.name }
func (f *fakeHandler) Direction() Direction { return f.direction }
func (f *fakeHandler) Datasets() []string   { return f.datasets }

func (f *fakeHandler) Run(_ context.Context, d time.Time) (Result, error) {
	key := d.Format("2006-01-02")
	f.ran = append(f.ran, key)
	if err := f.failOn[key]; err != nil {
		res := f.result
		if len(res.Datasets) == 0 && len(f.datasets) > 0 {
			res.merge(DatasetResult{Dataset: f.datasets[0], Err: err})
		}
		return res, err
	}
	return f.result, nil
}

// fakeMarketData は各エンドポイントの応答を注入できます
type fakeMarketData struct {
	quotes        []marketdata.DailyQuote
	quotesErr     error
	announcements []marketdata.Announcement
	specs         []marketdata.TradeSpec
	calendarDays  []marketdata.CalendarDay

	quotesCalls   []time.Time
	specCalls     [][2]time.Time
	calendarCalls [][2]time.Time
}

func (f *fakeMarketData) DailyQuotes(_ context.Context, d time.Time) ([]marketdata.DailyQuote, int, error) {
	f.quotesCalls = append(f.quotesCalls, d)
	if f.quotesErr != nil {
		return nil, 0, f.quotesErr
	}
	return f.quotes, 1, nil
}

func (f *fakeMarketData) EarningsAnnouncements(_ context.Context, _ time.Time) ([]marketdata.Announcement, int, error) {
	return f.announcements, 1, nil
}

func (f *fakeMarketData) TradesSpec(_ context.Context, from, to time.Time) ([]marketdata.TradeSpec, int, error) {
	f.specCalls = append(f.specCalls, [2]time.Time{from, to})
	return f.specs, 1, nil
}

func (f *fakeMarketData) TradingCalendar(_ context.Context, from, to time.Time) ([]marketdata.CalendarDay, int, error) {
	f.calendarCalls = append(f.calendarCalls, [2]time.Time{from, to})
	return f.calendarDays, 1, nil
}

type upsertCall struct {
	table        string
	cols         []string
	rows         [][]any
	conflictCols []string
}

// fakeStore はUpsert/SelectAllの呼び出しを記録します
type fakeStore struct {
	upserts    []upsertCall
	upsertErr  error
	selectRows [][]any
	selectErr  error
}

func (f *fakeStore) Upsert(_ context.Context, table string, cols []string, rows [][]any, conflictCols []string, _ *batch.UpsertOptions) (batch.UpsertResult, error) {
	f.upserts = append(f.upserts, upsertCall{table: table, cols: cols, rows: rows, conflictCols: conflictCols})
	if f.upsertErr != nil {
		return batch.UpsertResult{}, f.upsertErr
	}
	return batch.UpsertResult{Affected: int64(len(rows))}, nil
}

func (f *fakeStore) SelectAll(_ context.Context, _ batch.SelectOptions) ([][]any, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.selectRows, nil
}
