// Package tmdb はTMDB v3 APIを使ったエピソード補完を提供する。
// TVDBのエピソード一覧が得られない場合の代替として、タイトル検索とシーズン照合を行う。
package tmdb

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/metachan/internal/fetch"
)

const (
	// DefaultBaseURL はTMDB v3のベースURL。
	DefaultBaseURL = "https://api.themoviedb.org/3"
	// ImageBaseURL はスチル画像のベースURL。
	ImageBaseURL = "https://image.tmdb.org/t/p/original"

	// minSeasonScore はシーズン一致とみなす最低スコア（3項目中）。
	minSeasonScore = 2
	// countryPriority は検索結果で優先する制作国。
	countryPriority = "JP"
)

// Show は /search/tv の1件。
type Show struct {
	ID            int      `json:"id"`
	Name          string   `json:"name"`
	FirstAirDate  string   `json:"first_air_date"`
	OriginCountry []string `json:"origin_country"`
	Adult         bool     `json:"adult"`
}

// SeasonInfo は /tv/{id} のシーズン概要。
type SeasonInfo struct {
	SeasonNumber int    `json:"season_number"`
	AirDate      string `json:"air_date"`
	EpisodeCount int    `json:"episode_count"`
}

// Episode は /tv/{id}/season/{n} のエピソード。
type Episode struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Overview      string `json:"overview"`
	StillPath     string `json:"still_path"`
	AirDate       string `json:"air_date"`
	EpisodeNumber int    `json:"episode_number"`
	SeasonNumber  int    `json:"season_number"`
}

// StillURL はスチル画像のURLを返す。画像がない場合は空文字列を返す。
func (e *Episode) StillURL() string {
	if e.StillPath == "" {
		return ""
	}
	return ImageBaseURL + e.StillPath
}

// Query はシーズン照合の条件。
type Query struct {
	Title            string
	AlternativeTitle string
	SeasonNumber     int
	AirDate          string
	EpisodeCount     int
	MaxYear          int
}

type searchResponse struct {
	Results []Show `json:"results"`
}

type showResponse struct {
	Seasons []SeasonInfo `json:"seasons"`
}

type seasonResponse struct {
	Episodes []Episode `json:"episodes"`
}

// Client はTMDB APIクライアント。
type Client struct {
	fetch   *fetch.Client
	logger  *slog.Logger
	token   string
	baseURL string
}

// NewClient はClientの新しいインスタンスを生成する。
// tokenはv4形式のRead Access Token。空の場合Enabledはfalseを返す。
func NewClient(f *fetch.Client, logger *slog.Logger, token string) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		fetch:   f,
		logger:  logger.With(slog.String("component", "tmdb")),
		token:   token,
		baseURL: DefaultBaseURL,
	}
}

// Enabled はアクセストークンが設定されているかどうかを返す。
func (c *Client) Enabled() bool {
	return c.token != ""
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

// FindSeasonEpisodes はタイトルからTMDBのシーズンを特定し、そのエピソード一覧を返す。
// 一致するシーズンが見つからない場合は(nil, nil)を返す。
func (c *Client) FindSeasonEpisodes(ctx context.Context, q Query) ([]Episode, error) {
	title := NormalizeTitle(q.Title)
	alt := ""
	if q.AlternativeTitle != "" {
		alt = NormalizeTitle(q.AlternativeTitle)
	}

	c.logger.Debug("searching tmdb",
		slog.String("title", title),
		slog.String("alternative_title", alt),
	)

	shows, err := c.searchShows(ctx, title, alt, q.MaxYear)
	if err != nil {
		return nil, err
	}
	if len(shows) == 0 {
		c.logger.Info("no tmdb show matched", slog.String("title", title))
		return nil, nil
	}

	showID, season, ok := c.findSeason(ctx, shows, q)
	if !ok {
		c.logger.Info("no tmdb season matched", slog.String("title", title))
		return nil, nil
	}

	var resp seasonResponse
	endpoint := fmt.Sprintf("%s/tv/%d/season/%d", c.baseURL, showID, season)
	if err := c.fetch.GetJSON(ctx, endpoint, nil, c.header(), &resp); err != nil {
		return nil, fmt.Errorf("tmdb season %d/%d: %w", showID, season, err)
	}

	c.logger.Info("tmdb season matched",
		slog.String("title", title),
		slog.Int("show_id", showID),
		slog.Int("season", season),
		slog.Int("episodes", len(resp.Episodes)),
	)
	return resp.Episodes, nil
}

// searchShows は主タイトル→元タイトル→種別表記除去の順で検索し、結果を絞り込む。
func (c *Client) searchShows(ctx context.Context, title, alt string, maxYear int) ([]Show, error) {
	query := strings.TrimSpace(strings.SplitN(title, ":", 2)[0])
	if !strings.Contains(query, " ") && alt != "" {
		query += " " + alt
	}

	results, err := c.search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && query != title {
		if results, err = c.search(ctx, title); err != nil {
			return nil, err
		}
	}
	if len(results) == 0 && typeQualifier.MatchString(title) {
		if results, err = c.search(ctx, strings.TrimSpace(typeQualifier.ReplaceAllString(title, ""))); err != nil {
			return nil, err
		}
	}

	return filterShows(results, maxYear), nil
}

func (c *Client) search(ctx context.Context, query string) ([]Show, error) {
	q := url.Values{}
	q.Set("query", query)

	var resp searchResponse
	if err := c.fetch.GetJSON(ctx, c.baseURL+"/search/tv", q, c.header(), &resp); err != nil {
		return nil, fmt.Errorf("tmdb search %q: %w", query, err)
	}
	return resp.Results, nil
}

// filterShows は成人向けを除外し、日本制作を先頭に並べ、maxYearより後の作品を除外する。
func filterShows(shows []Show, maxYear int) []Show {
	filtered := make([]Show, 0, len(shows))
	for _, s := range shows {
		if s.Adult {
			continue
		}
		if maxYear > 0 && s.FirstAirDate != "" {
			year, err := strconv.Atoi(strings.SplitN(s.FirstAirDate, "-", 2)[0])
			if err != nil || year > maxYear {
				continue
			}
		}
		filtered = append(filtered, s)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return hasCountry(filtered[i], countryPriority) && !hasCountry(filtered[j], countryPriority)
	})
	return filtered
}

func hasCountry(s Show, country string) bool {
	for _, c := range s.OriginCountry {
		if c == country {
			return true
		}
	}
	return false
}

// findSeason は候補作品のシーズンを順に照合し、最初にスコア2以上となったものを返す。
func (c *Client) findSeason(ctx context.Context, shows []Show, q Query) (int, int, bool) {
	for _, show := range shows {
		var resp showResponse
		endpoint := fmt.Sprintf("%s/tv/%d", c.baseURL, show.ID)
		if err := c.fetch.GetJSON(ctx, endpoint, nil, c.header(), &resp); err != nil {
			c.logger.Warn("failed to load tmdb show seasons",
				slog.Int("show_id", show.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, season := range resp.Seasons {
			if SeasonScore(season, q) >= minSeasonScore {
				return show.ID, season.SeasonNumber, true
			}
		}
	}
	return 0, 0, false
}

// SeasonScore はシーズン番号・放送年・話数のうち一致した項目数を返す。
func SeasonScore(season SeasonInfo, q Query) int {
	score := 0
	if q.SeasonNumber > 0 && season.SeasonNumber == q.SeasonNumber {
		score++
	}
	if q.AirDate != "" && season.AirDate != "" {
		if sy, ok := yearOf(season.AirDate); ok {
			if ty, ok := yearOf(q.AirDate); ok && sy == ty {
				score++
			}
		}
	}
	if q.EpisodeCount > 0 && season.EpisodeCount == q.EpisodeCount {
		score++
	}
	return score
}

var leadingYear = regexp.MustCompile(`^(\d{4})`)

// yearOf はISO 8601形式の日付から年を取り出す。
func yearOf(date string) (int, bool) {
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.Year(), true
	}
	m := leadingYear.FindStringSubmatch(date)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	return y, err == nil
}
