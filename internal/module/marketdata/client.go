// Package marketdata は上流マーケットデータAPIのクライアントです
// レート制限・リトライ・ページネーションをこの層で吸収し、
// 呼び出し側にはデータセットごとの型付きメソッドを公開する
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"time"
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("market API key not set")

// maxErrorBodyLen はエラーメッセージに含めるレスポンスボディの上限
const maxErrorBodyLen = 500

// ClientConfig はClientの構築パラメータ
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	RateLimit  int
	RateWindow time.Duration
	MaxRetries int
	Timeout    time.Duration
}

// Client は認証・レート制限・リトライ付きのAPIクライアントです
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *RateLimiter
	retrier    *Retrier
}

// NewClient は新しいClientを作成する。APIキー未設定は構築時点で失敗させる
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 60
	}
	rateWindow := cfg.RateWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		limiter:    NewRateLimiter(rateLimit, rateWindow),
		retrier:    NewRetrier(cfg.MaxRetries),
	}, nil
}

// Page は1ページ分のレスポンスです
type Page struct {
	Items         []json.RawMessage
	PaginationKey string
}

// Request は単一リクエストを実行する
// レート制限トークンを1つ消費してからリトライ付きフェッチを行い、
// `{<dataKey>: [...], "pagination_key": "..."}` 形式のボディを解析する
func (c *Client) Request(ctx context.Context, path, dataKey string, params url.Values) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	body, err := c.retrier.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, path, params)
	})
	if err != nil {
		return nil, err
	}

	return parsePage(body, dataKey)
}

// fetch は1回のHTTP GETを実行する。非2xxはAPIErrorとして返す
func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBodyLen {
			snippet = snippet[:maxErrorBodyLen]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: snippet}
	}

	return body, nil
}

// parsePage はレスポンスボディからデータ配列とページネーションキーを取り出す
func parsePage(body []byte, dataKey string) (*Page, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	page := &Page{}

	if raw, ok := envelope["pagination_key"]; ok {
		if err := json.Unmarshal(raw, &page.PaginationKey); err != nil {
			return nil, fmt.Errorf("failed to parse pagination_key: %w", err)
		}
	}

	raw, ok := envelope[dataKey]
	if !ok {
		return nil, fmt.Errorf("response missing %q field", dataKey)
	}
	if err := json.Unmarshal(raw, &page.Items); err != nil {
		return nil, fmt.Errorf("failed to parse %q items: %w", dataKey, err)
	}

	return page, nil
}

// Paginate は複数ページにわたるレスポンスを遅延列挙する
// 各ページのフェッチは消費側が次の要素を要求したときに行われるため、
// 途中でbreakすれば以降のページは取得されない。エラーが出た時点で列挙は終了する
func (c *Client) Paginate(ctx context.Context, path, dataKey string, params url.Values) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		// 元のparamsを壊さないようにコピーして回す
		p := url.Values{}
		for k, v := range params {
			p[k] = v
		}

		for {
			page, err := c.Request(ctx, path, dataKey, p)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			if page.PaginationKey == "" {
				return
			}
			p.Set("pagination_key", page.PaginationKey)
		}
	}
}
