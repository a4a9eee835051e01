package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		RateLimit:  1000,
		RateWindow: time.Minute,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	// テストを速くするためバックオフを縮める
	c.retrier.baseBackoff = time.Millisecond
	c.retrier.maxBackoff = 5 * time.Millisecond
	return c
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: "http://example.com"})
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestClient_Request(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"daily_quotes": [{"Code": "7203"}, {"Code": "6758"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	page, err := c.Request(context.Background(), "/prices/daily_quotes", "daily_quotes", nil)

	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Empty(t, page.PaginationKey)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestClient_Paginate_TwoPages(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("pagination_key") == "" {
			fmt.Fprint(w, `{"daily_quotes": [{"Code": "1"}, {"Code": "2"}], "pagination_key": "next"}`)
			return
		}
		fmt.Fprint(w, `{"daily_quotes": [{"Code": "3"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var items int
	for page, err := range c.Paginate(context.Background(), "/prices/daily_quotes", "daily_quotes", nil) {
		require.NoError(t, err)
		items += len(page.Items)
	}

	// 2ページの連結がちょうど得られ、HTTP呼び出しはちょうど2回
	assert.Equal(t, 3, items)
	assert.Equal(t, 2, calls)
}

func TestClient_Paginate_EarlyBreakStopsFetching(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprint(w, `{"daily_quotes": [{"Code": "1"}], "pagination_key": "more"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	for _, err := range c.Paginate(context.Background(), "/prices/daily_quotes", "daily_quotes", nil) {
		require.NoError(t, err)
		break // 最初のページで打ち切り
	}

	assert.Equal(t, 1, calls)
}

func TestClient_Paginate_ErrorAbortsSequence(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, `{"daily_quotes": [{"Code": "1"}], "pagination_key": "next"}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var pages int
	var lastErr error
	for page, err := range c.Paginate(context.Background(), "/prices/daily_quotes", "daily_quotes", nil) {
		if err != nil {
			lastErr = err
			break
		}
		pages += len(page.Items)
	}

	// 1ページ目は得られたまま、2ページ目のエラーで列挙が終わる
	assert.Equal(t, 1, pages)
	require.Error(t, lastErr)
}

func TestClient_RetriesServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"daily_quotes": []}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Request(context.Background(), "/prices/daily_quotes", "daily_quotes", nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestClient_DailyQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-06-03", r.URL.Query().Get("date"))
		fmt.Fprint(w, `{"daily_quotes": [
			{"Code": "7203", "Date": "2024-06-03", "Close": 3456.5, "Volume": 1000, "AdjustmentFactor": 1},
			{"Code": "6758", "Date": "2024-06-03", "Close": null, "Volume": null, "AdjustmentFactor": 1}
		]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	quotes, pages, err := c.DailyQuotes(context.Background(), time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 1, pages)
	require.Len(t, quotes, 2)
	assert.Equal(t, "7203", quotes[0].Code)
	require.NotNil(t, quotes[0].Close)
	assert.InDelta(t, 3456.5, *quotes[0].Close, 0.001)
	// 売買停止などで欠損した値はnilのまま保持される
	assert.Nil(t, quotes[1].Close)
}

func TestClient_TradingCalendar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("from"))
		assert.Equal(t, "2024-06-07", r.URL.Query().Get("to"))
		fmt.Fprint(w, `{"trading_calendar": [
			{"Date": "2024-06-01", "HolidayDivision": "0"},
			{"Date": "2024-06-03", "HolidayDivision": "1"}
		]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	days, _, err := c.TradingCalendar(
		context.Background(),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC),
	)

	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "1", days[1].HolidayDivision)
}
