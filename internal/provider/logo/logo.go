// Package logo は配信サイトのシリーズページからタイトルロゴ画像のURLを導出する。
package logo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/metachan/internal/fetch"
	"github.com/hitoshi/metachan/internal/model"
	"github.com/hitoshi/metachan/internal/security"
)

const (
	// serviceName はストリーミングリンク一覧で対象とするサービス名。
	serviceName = "Crunchyroll"

	sizedTemplate    = "https://imgsrv.crunchyroll.com/cdn-cgi/image/fit=contain,format=png,quality=85,width=%d/keyart/%s-title_logo-en-us"
	originalTemplate = "https://imgsrv.crunchyroll.com/cdn-cgi/image/fit=contain,format=png,quality=100/keyart/%s-title_logo-en-us"
)

// seriesPattern はシリーズページURLからシリーズIDを抽出する。
var seriesPattern = regexp.MustCompile(`/series/([A-Z0-9]+)`)

// Link はストリーミングサービスへのリンク。
type Link struct {
	Name string
	URL  string
}

// Client はロゴURLの導出を行う。
type Client struct {
	fetch  *fetch.Client
	guard  security.URLGuard
	logger *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// fはリダイレクト追跡に使うため、SSRF対策済みのHTTPクライアントで構築すること。
func NewClient(f *fetch.Client, guard security.URLGuard, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		fetch:  f,
		guard:  guard,
		logger: logger.With(slog.String("component", "logo")),
	}
}

// Derive はストリーミングリンクからロゴURL群を導出する。
// 導出できない場合はnilを返し、失敗はログに残すのみとする。
func (c *Client) Derive(ctx context.Context, links []Link) *model.Logos {
	pageURL := findServiceURL(links)
	if pageURL == "" {
		return nil
	}

	// 1. URL自体にシリーズIDが含まれていればそのまま使う
	if id := SeriesID(pageURL); id != "" {
		return Templates(id)
	}

	// 2. リダイレクト先・canonicalリンクから取得する
	id, err := c.resolveSeriesID(ctx, pageURL)
	if err != nil {
		c.logger.Warn("logo derivation failed",
			slog.String("url", pageURL),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if id == "" {
		c.logger.Debug("no series id found", slog.String("url", pageURL))
		return nil
	}
	return Templates(id)
}

func findServiceURL(links []Link) string {
	for _, l := range links {
		if strings.EqualFold(l.Name, serviceName) && l.URL != "" {
			return l.URL
		}
	}
	return ""
}

func (c *Client) resolveSeriesID(ctx context.Context, pageURL string) (string, error) {
	if err := c.guard.ValidateURL(pageURL); err != nil {
		return "", fmt.Errorf("unsafe logo page url: %w", err)
	}

	resp, err := c.fetch.Do(ctx, fetch.Request{
		Method: http.MethodGet,
		URL:    pageURL,
		Header: http.Header{"Accept": []string{"text/html"}},
	})
	if err != nil {
		return "", err
	}

	if id := SeriesID(resp.FinalURL); id != "" {
		return id, nil
	}

	canonical, err := CanonicalURL(resp.Body, resp.FinalURL)
	if err != nil {
		return "", err
	}
	return SeriesID(canonical), nil
}

// CanonicalURL はHTMLから <link rel="canonical"> または og:url を取り出し、絶対URLで返す。
func CanonicalURL(body []byte, baseURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok || href == "" {
		href, _ = doc.Find(`meta[property="og:url"]`).First().Attr("content")
	}
	if href == "" {
		return "", nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return href, nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", nil
	}
	return base.ResolveReference(ref).String(), nil
}

// SeriesID はURLからシリーズIDを抽出する。含まれない場合は空文字列を返す。
func SeriesID(rawURL string) string {
	m := seriesPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// Templates はシリーズIDを幅別のロゴURLに展開する。
func Templates(seriesID string) *model.Logos {
	return &model.Logos{
		Small:    fmt.Sprintf(sizedTemplate, 320, seriesID),
		Medium:   fmt.Sprintf(sizedTemplate, 480, seriesID),
		Large:    fmt.Sprintf(sizedTemplate, 600, seriesID),
		XLarge:   fmt.Sprintf(sizedTemplate, 800, seriesID),
		Original: fmt.Sprintf(originalTemplate, seriesID),
	}
}
