// Package tvdb はTheTVDB v4 APIクライアントを提供する。
// シリーズ情報と公式順エピソード一覧（英語・日本語訳付き）を取得する。
package tvdb

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/hitoshi/metachan/internal/fetch"
)

const (
	// DefaultBaseURL はTheTVDB v4のベースURL。
	DefaultBaseURL = "https://api4.thetvdb.com/v4"

	// tokenTTL はログイントークンを使い回す期間。発行から1か月有効なので余裕を持たせる。
	tokenTTL = 28 * 24 * time.Hour

	maxEpisodePages    = 50
	translationWorkers = 8
	languageEnglish    = "eng"
	languageJapanese   = "jpn"
)

// SeasonType はシーズンの並び順種別。
type SeasonType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Season はシリーズに属するシーズン。
type Season struct {
	ID     int        `json:"id"`
	Number int        `json:"number"`
	Type   SeasonType `json:"type"`
}

// Series は /series/{id}/extended のdata部分。
type Series struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	Image          string   `json:"image"`
	FirstAired     string   `json:"firstAired"`
	Overview       string   `json:"overview"`
	AverageRuntime int      `json:"averageRuntime"`
	Seasons        []Season `json:"seasons"`
}

// HasSeasons はシーズン情報を持つかどうかを返す。
func (s *Series) HasSeasons() bool {
	return s != nil && len(s.Seasons) > 0
}

// Episode は公式順エピソードの1件。
// EnglishOverviewとJapaneseOverviewは翻訳APIから補完する。
type Episode struct {
	ID               int    `json:"id"`
	SeriesID         int    `json:"seriesId"`
	Name             string `json:"name"`
	Aired            string `json:"aired"`
	Runtime          *int   `json:"runtime"`
	Overview         string `json:"overview"`
	Image            string `json:"image"`
	SeasonNumber     int    `json:"seasonNumber"`
	Number           int    `json:"number"`
	EnglishOverview  string `json:"-"`
	JapaneseOverview string `json:"-"`
}

type loginResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

type seriesResponse struct {
	Data *Series `json:"data"`
}

type episodesResponse struct {
	Data struct {
		Episodes []Episode `json:"episodes"`
	} `json:"data"`
	Links struct {
		Next *string `json:"next"`
	} `json:"links"`
}

type translationResponse struct {
	Data struct {
		Name     string `json:"name"`
		Overview string `json:"overview"`
		Language string `json:"language"`
	} `json:"data"`
}

// Client はTheTVDB APIクライアント。
type Client struct {
	fetch   *fetch.Client
	logger  *slog.Logger
	apiKey  string
	tokens  *TokenCache
	baseURL string
}

// NewClient はClientの新しいインスタンスを生成する。
// apiKeyが空の場合、Enabledはfalseを返す。
func NewClient(f *fetch.Client, logger *slog.Logger, apiKey string, tokens *TokenCache) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = NewTokenCache()
	}
	return &Client{
		fetch:   f,
		logger:  logger.With(slog.String("component", "tvdb")),
		apiKey:  apiKey,
		tokens:  tokens,
		baseURL: DefaultBaseURL,
	}
}

// Enabled はAPIキーが設定されているかどうかを返す。
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// login はAPIキーでトークンを取得し、キャッシュに保存する。
func (c *Client) login(ctx context.Context) (string, error) {
	var resp loginResponse
	if err := c.fetch.PostJSON(ctx, c.baseURL+"/login", nil, map[string]string{"apikey": c.apiKey}, &resp); err != nil {
		return "", fmt.Errorf("tvdb login: %w", err)
	}
	if resp.Data.Token == "" {
		return "", fmt.Errorf("tvdb login returned empty token")
	}

	c.tokens.Set(resp.Data.Token, time.Now().Add(tokenTTL))
	c.logger.Debug("tvdb authenticated")
	return resp.Data.Token, nil
}

// getJSON は認証付きGETを行う。401の場合はトークンを破棄して再ログインし、1回だけ再試行する。
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	token, ok := c.tokens.Get()
	if !ok {
		var err error
		if token, err = c.login(ctx); err != nil {
			return err
		}
	}

	err := c.fetch.GetJSON(ctx, c.baseURL+path, query, bearer(token), out)
	if !fetch.IsUnauthorized(err) {
		return err
	}

	c.logger.Warn("tvdb token rejected, re-authenticating", slog.String("path", path))
	c.tokens.Invalidate()
	if token, err = c.login(ctx); err != nil {
		return err
	}
	return c.fetch.GetJSON(ctx, c.baseURL+path, query, bearer(token), out)
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// GetSeries は /series/{id}/extended を取得する。
func (c *Client) GetSeries(ctx context.Context, seriesID int) (*Series, error) {
	var resp seriesResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/series/%d/extended", seriesID), nil, &resp); err != nil {
		return nil, fmt.Errorf("tvdb series %d: %w", seriesID, err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("tvdb series %d returned no data", seriesID)
	}
	return resp.Data, nil
}

// GetEpisodes は公式順のエピソードのうち指定シーズンのものを返し、英語・日本語のあらすじを並行して補完する。
// 翻訳の取得失敗は無視し、該当エピソードのあらすじを空のままにする。
func (c *Client) GetEpisodes(ctx context.Context, seriesID, season int) ([]Episode, error) {
	path := fmt.Sprintf("/series/%d/episodes/official", seriesID)
	var episodes []Episode

	for page := 0; page < maxEpisodePages; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))

		var resp episodesResponse
		if err := c.getJSON(ctx, path, query, &resp); err != nil {
			return nil, fmt.Errorf("tvdb episodes %d page %d: %w", seriesID, page, err)
		}
		for _, ep := range resp.Data.Episodes {
			if ep.SeasonNumber == season {
				episodes = append(episodes, ep)
			}
		}

		if resp.Links.Next == nil || *resp.Links.Next == "" || len(resp.Data.Episodes) == 0 {
			break
		}
	}

	c.fillTranslations(ctx, episodes)
	return episodes, nil
}

func (c *Client) fillTranslations(ctx context.Context, episodes []Episode) {
	p := pool.New().WithMaxGoroutines(translationWorkers)
	for i := range episodes {
		ep := &episodes[i]
		p.Go(func() {
			ep.EnglishOverview = c.translation(ctx, ep.ID, languageEnglish)
			ep.JapaneseOverview = c.translation(ctx, ep.ID, languageJapanese)
		})
	}
	p.Wait()
}

func (c *Client) translation(ctx context.Context, episodeID int, language string) string {
	var resp translationResponse
	err := c.getJSON(ctx, fmt.Sprintf("/episodes/%d/translations/%s", episodeID, language), nil, &resp)
	if err != nil {
		c.logger.Debug("tvdb translation unavailable",
			slog.Int("episode_id", episodeID),
			slog.String("language", language),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return resp.Data.Overview
}
