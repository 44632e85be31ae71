// Package stream は非公式の配信可用性API（AllAnime GraphQL）クライアントを提供する。
// タイトルのあいまい検索、字幕・吹替エピソード一覧、エピソード単位の配信ソース解決を行う。
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/hitoshi/metachan/internal/fetch"
	"github.com/hitoshi/metachan/internal/model"
	"github.com/hitoshi/metachan/internal/security"
)

const (
	// DefaultAPIURL はGraphQLエンドポイント。
	DefaultAPIURL = "https://api.allanime.day/api"
	// DefaultSiteURL は相対URLとclockリンクの解決に使うベースURL。
	DefaultSiteURL = "https://allanime.day"
	// Referer はAPIが要求するリファラ。
	Referer = "https://allmanga.to"
	// UserAgent はAPIが要求するブラウザのUser-Agent。
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0"

	searchLimit = 40
	clockPath   = "/apivtwo/clock"
)

const showsQuery = `query($search: SearchInput $limit: Int $page: Int $countryOrigin: VaildCountryOriginEnumType) {
  shows(search: $search limit: $limit page: $page countryOrigin: $countryOrigin) {
    edges { _id name availableEpisodes __typename }
  }
}`

const showDetailQuery = `query ($showId: String!) {
  show(_id: $showId) { _id availableEpisodesDetail }
}`

const episodeQuery = `query ($showId: String!, $translationType: VaildTranslationTypeEnumType!, $episodeString: String!) {
  episode(showId: $showId translationType: $translationType episodeString: $episodeString) {
    episodeString sourceUrls
  }
}`

type searchInput struct {
	AllowAdult   bool   `json:"allowAdult"`
	AllowUnknown bool   `json:"allowUnknown"`
	Query        string `json:"query"`
}

type showsVariables struct {
	Search        searchInput `json:"search"`
	Limit         int         `json:"limit"`
	Page          int         `json:"page"`
	CountryOrigin string      `json:"countryOrigin"`
}

// Show は検索結果の作品。
type Show struct {
	ID                string `json:"_id"`
	Name              string `json:"name"`
	AvailableEpisodes struct {
		Sub int `json:"sub"`
		Dub int `json:"dub"`
	} `json:"availableEpisodes"`
}

type showsResponse struct {
	Data struct {
		Shows struct {
			Edges []Show `json:"edges"`
		} `json:"shows"`
	} `json:"data"`
}

type showDetailResponse struct {
	Data struct {
		Show struct {
			ID                      string `json:"_id"`
			AvailableEpisodesDetail struct {
				Sub []string `json:"sub"`
				Dub []string `json:"dub"`
			} `json:"availableEpisodesDetail"`
		} `json:"show"`
	} `json:"data"`
}

type sourceURL struct {
	SourceURL  string `json:"sourceUrl"`
	SourceName string `json:"sourceName"`
}

type episodeResponse struct {
	Data struct {
		Episode *struct {
			EpisodeString string      `json:"episodeString"`
			SourceURLs    []sourceURL `json:"sourceUrls"`
		} `json:"episode"`
	} `json:"data"`
}

type clockResponse struct {
	Links []struct {
		Link string `json:"link"`
	} `json:"links"`
}

// Client は配信可用性APIクライアント。
// apiはGraphQL用、clockはプロバイダ応答由来のURLを辿る用でSSRF対策済みのクライアントを渡す。
type Client struct {
	api     *fetch.Client
	clock   *fetch.Client
	guard   security.URLGuard
	logger  *slog.Logger
	apiURL  string
	siteURL string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(api, clock *fetch.Client, guard security.URLGuard, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:     api,
		clock:   clock,
		guard:   guard,
		logger:  logger.With(slog.String("component", "stream")),
		apiURL:  DefaultAPIURL,
		siteURL: DefaultSiteURL,
	}
}

// Headers は配信APIが要求する共通ヘッダーを返す。
func Headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", UserAgent)
	h.Set("Referer", Referer)
	return h
}

func (c *Client) graphQL(ctx context.Context, query string, variables any, out any) error {
	raw, err := json.Marshal(variables)
	if err != nil {
		return fmt.Errorf("failed to encode graphql variables: %w", err)
	}
	q := url.Values{}
	q.Set("variables", string(raw))
	q.Set("query", query)
	return c.api.GetJSON(ctx, c.apiURL, q, nil, out)
}

// FindShow はタイトルに最も類似する作品を返す。該当がない場合はnilを返す。
func (c *Client) FindShow(ctx context.Context, title string) (*Show, error) {
	vars := showsVariables{
		Search:        searchInput{Query: title},
		Limit:         searchLimit,
		Page:          1,
		CountryOrigin: "ALL",
	}

	var resp showsResponse
	if err := c.graphQL(ctx, showsQuery, vars, &resp); err != nil {
		return nil, fmt.Errorf("stream show search %q: %w", title, err)
	}

	shows := resp.Data.Shows.Edges
	if len(shows) == 0 {
		c.logger.Info("no stream show matched", slog.String("title", title))
		return nil, nil
	}

	best := 0
	bestScore := Similarity(title, shows[0].Name)
	for i := 1; i < len(shows); i++ {
		if s := Similarity(title, shows[i].Name); s > bestScore {
			best, bestScore = i, s
		}
	}
	return &shows[best], nil
}

// GetAvailability は字幕版・吹替版で視聴可能なエピソード番号を昇順で返す。
// 作品が見つからない場合は空のAvailabilityを返す。
func (c *Client) GetAvailability(ctx context.Context, title string) (model.Availability, error) {
	empty := model.Availability{Sub: []string{}, Dub: []string{}}

	show, err := c.FindShow(ctx, title)
	if err != nil || show == nil {
		return empty, err
	}

	var resp showDetailResponse
	if err := c.graphQL(ctx, showDetailQuery, map[string]string{"showId": show.ID}, &resp); err != nil {
		return empty, fmt.Errorf("stream show detail %s: %w", show.ID, err)
	}

	detail := resp.Data.Show.AvailableEpisodesDetail
	return model.Availability{
		Sub: sortEpisodeStrings(detail.Sub),
		Dub: sortEpisodeStrings(detail.Dub),
	}, nil
}

// sortEpisodeStrings はエピソード番号文字列を数値順に並べる。数値でないものは末尾に置く。
func sortEpisodeStrings(episodes []string) []string {
	out := append([]string{}, episodes...)
	sort.SliceStable(out, func(i, j int) bool {
		a, errA := strconv.ParseFloat(out[i], 64)
		b, errB := strconv.ParseFloat(out[j], 64)
		switch {
		case errA != nil:
			return false
		case errB != nil:
			return true
		default:
			return a < b
		}
	})
	return out
}

// GetEpisodeLinks はエピソードの字幕版・吹替版の配信ソースを返す。
// 作品の字幕数・吹替数が0の言語は問い合わせない。
func (c *Client) GetEpisodeLinks(ctx context.Context, title string, episode int) (*model.StreamLinks, error) {
	links := &model.StreamLinks{Sub: []model.StreamLink{}, Dub: []model.StreamLink{}}

	show, err := c.FindShow(ctx, title)
	if err != nil || show == nil {
		return links, err
	}

	if show.AvailableEpisodes.Sub > 0 {
		if links.Sub, err = c.fetchLinks(ctx, show.ID, "sub", episode); err != nil {
			return nil, err
		}
	}
	if show.AvailableEpisodes.Dub > 0 {
		if links.Dub, err = c.fetchLinks(ctx, show.ID, "dub", episode); err != nil {
			return nil, err
		}
	}

	c.logger.Info("stream links resolved",
		slog.String("title", title),
		slog.Int("episode", episode),
		slog.Int("sub", len(links.Sub)),
		slog.Int("dub", len(links.Dub)),
	)
	return links, nil
}

func (c *Client) fetchLinks(ctx context.Context, showID, mode string, episode int) ([]model.StreamLink, error) {
	vars := map[string]string{
		"showId":          showID,
		"translationType": mode,
		"episodeString":   strconv.Itoa(episode),
	}

	var resp episodeResponse
	if err := c.graphQL(ctx, episodeQuery, vars, &resp); err != nil {
		return nil, fmt.Errorf("stream episode %s/%s/%d: %w", showID, mode, episode, err)
	}

	links := []model.StreamLink{}
	if resp.Data.Episode == nil {
		return links, nil
	}

	for _, src := range resp.Data.Episode.SourceURLs {
		if src.SourceURL == "" {
			continue
		}

		link := model.StreamLink{
			URL:    c.resolveURL(DecodeSourceURL(src.SourceURL)),
			Server: ServerName(src.SourceName),
		}

		if strings.Contains(link.URL, clockPath) {
			resolved, ok := c.resolveClock(ctx, link.URL)
			if !ok {
				continue
			}
			link.URL = resolved
		}

		if IsAllowedLink(link.URL) {
			links = append(links, link)
		}
	}
	return links, nil
}

// resolveURL は相対URLをサイトURLで補い、clockエンドポイントをJSON版に置き換える。
func (c *Client) resolveURL(raw string) string {
	if !strings.HasPrefix(raw, "/") {
		return raw
	}
	return c.siteURL + strings.Replace(raw, clockPath, clockPath+".json", 1)
}

// resolveClock はclockリンクから再生用URLを取得する。失敗は警告ログのみでfalseを返す。
func (c *Client) resolveClock(ctx context.Context, clockURL string) (string, bool) {
	if err := c.guard.ValidateURL(clockURL); err != nil {
		c.logger.Warn("rejected clock link", slog.String("url", clockURL), slog.String("error", err.Error()))
		return "", false
	}

	var resp clockResponse
	if err := c.clock.GetJSON(ctx, clockURL, nil, nil, &resp); err != nil {
		c.logger.Warn("clock link fetch failed", slog.String("url", clockURL), slog.String("error", err.Error()))
		return "", false
	}
	if len(resp.Links) == 0 || resp.Links[0].Link == "" {
		c.logger.Warn("clock link returned no links", slog.String("url", clockURL))
		return "", false
	}
	return resp.Links[0].Link, true
}
