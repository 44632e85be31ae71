// Package fetch は外部プロバイダ呼び出しの共通プリミティブを提供する。
// HTTP 429 のみを指数バックオフでリトライし、それ以外の失敗は即座に呼び出し元へ返す。
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"github.com/hitoshi/metachan/internal/metrics"
	"github.com/hitoshi/metachan/internal/model"
)

const (
	// defaultMaxAttempts は初回を含む最大試行回数。
	defaultMaxAttempts = 10
	// defaultInitialDelay は初回リトライまでの待機時間。
	defaultInitialDelay = 350 * time.Millisecond
	// defaultMaxBodySize はレスポンスボディの最大サイズ（64MB）。
	defaultMaxBodySize = 64 << 20
	// defaultUserAgent は既定のUser-Agent。
	defaultUserAgent = "metachan/1.0"
)

// Config はプロバイダ単位のフェッチ設定。
type Config struct {
	Provider     string        // メトリクス・ログ用のプロバイダ名
	MaxAttempts  int           // 初回を含む最大試行回数
	InitialDelay time.Duration // 初回リトライまでの待機時間。以降は2倍ずつ増加する
	Limiter      *rate.Limiter // 各試行前に待機するトークンバケット（nil可）
	UserAgent    string
	MaxBodySize  int64
	Header       http.Header // 全リクエストに付与するヘッダー
}

// Request は1回の論理的なHTTP呼び出し。
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response は成功したHTTP呼び出しの結果。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
}

// StatusError はプロバイダが2xx以外を返した場合のエラー。
type StatusError struct {
	Provider   string
	URL        string
	StatusCode int
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d for %s", e.Provider, e.StatusCode, e.URL)
}

// Unwrap はErrUpstreamUnavailableとして判別できるようにする。
func (e *StatusError) Unwrap() error {
	return model.ErrUpstreamUnavailable
}

// IsNotFound はエラーがHTTP 404由来かどうかを返す。
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized はエラーがHTTP 401由来かどうかを返す。
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

func isRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

func hasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client はレート制限リトライ付きのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	cfg        Config
	timer      retry.Timer // テスト用に差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// 未設定の項目にはデフォルト値を使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, m metrics.MetricsCollector, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger.With(slog.String("provider", cfg.Provider)),
		metrics:    m,
		cfg:        cfg,
		timer:      realTimer{},
	}
}

// Provider はプロバイダ名を返す。
func (c *Client) Provider() string {
	return c.cfg.Provider
}

// BackoffDelay は attempt 回目の試行が429で失敗した後の待機時間を返す。
// attempt は1始まりで、1回目の失敗後は InitialDelay、以降2倍ずつ増加する。
func BackoffDelay(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return initial << (attempt - 1)
}

// Do はリクエストを実行する。
// 429の場合のみ指数バックオフでリトライし、試行回数を使い切った場合は
// model.ErrUpstreamExhausted をラップしたエラーを返す。
// ネットワークエラー・その他の非2xxは model.ErrUpstreamUnavailable をラップして即座に返す。
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	attempt := 0

	resp, err := retry.DoWithData(
		func() (*Response, error) {
			attempt++
			if attempt > 1 {
				c.metrics.RecordProviderRetry(c.cfg.Provider)
				c.logger.Debug("retrying rate limited request",
					slog.String("url", req.URL),
					slog.Int("attempt", attempt),
				)
			}
			return c.attempt(ctx, req)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.MaxAttempts)),
		retry.RetryIf(isRateLimited),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			return BackoffDelay(c.cfg.InitialDelay, attempt)
		}),
		retry.LastErrorOnly(true),
		retry.WithTimer(c.timer),
	)
	if err == nil {
		return resp, nil
	}

	if isRateLimited(err) {
		c.logger.Warn("rate limit retry budget exhausted",
			slog.String("url", req.URL),
			slog.Int("attempts", attempt),
		)
		return nil, fmt.Errorf("%s %s: %w after %d attempts", c.cfg.Provider, req.URL, model.ErrUpstreamExhausted, attempt)
	}
	return nil, err
}

// attempt はHTTPリクエストを1回だけ実行する。
func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limiter: %w", c.cfg.Provider, err)
		}
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	c.metrics.RecordProviderLatency(c.cfg.Provider, time.Since(start))
	if err != nil {
		c.metrics.RecordProviderError(c.cfg.Provider)
		return nil, fmt.Errorf("%s request to %s failed: %w: %w", c.cfg.Provider, req.URL, model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordProviderResponse(c.cfg.Provider, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// コネクション再利用のためボディを読み捨てる
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Provider: c.cfg.Provider, URL: req.URL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%s response body read failed: %w: %w", c.cfg.Provider, model.ErrUpstreamUnavailable, err)
	}
	if int64(len(body)) > c.cfg.MaxBodySize {
		return nil, fmt.Errorf("%s response exceeds %d bytes: %w", c.cfg.Provider, c.cfg.MaxBodySize, model.ErrUpstreamUnavailable)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   finalURL,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", req.URL, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	for k, vs := range c.cfg.Header {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

// GetJSON はGETリクエストを実行し、レスポンスJSONをoutへデコードする。
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error {
	resp, err := c.Do(ctx, Request{
		Method: http.MethodGet,
		URL:    rawURL,
		Query:  query,
		Header: header,
	})
	if err != nil {
		return err
	}
	return c.decode(resp, out)
}

// PostJSON はpayloadをJSONとしてPOSTし、レスポンスJSONをoutへデコードする。
func (c *Client) PostJSON(ctx context.Context, rawURL string, header http.Header, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		URL:    rawURL,
		Header: header,
		Body:   raw,
	})
	if err != nil {
		return err
	}
	return c.decode(resp, out)
}

func (c *Client) decode(resp *Response, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s response decode failed: %w: %w", c.cfg.Provider, model.ErrUpstreamUnavailable, err)
	}
	return nil
}

// realTimer は実時間で待機するretry.Timer。
type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
