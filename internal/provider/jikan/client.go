// Package jikan はMyAnimeListの非公式API（Jikan v4）クライアントを提供する。
// 統合レコードの主たるメタデータとエピソード一覧の取得元となる。
package jikan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/hitoshi/metachan/internal/fetch"
	"github.com/hitoshi/metachan/internal/model"
)

const (
	// DefaultBaseURL はJikan v4のベースURL。
	DefaultBaseURL = "https://api.jikan.moe/v4"

	episodesPageLimit = 100
	// maxEpisodePages はエピソード一覧の最大取得ページ数。
	maxEpisodePages = 500
)

// Client はJikan APIクライアント。
type Client struct {
	fetch   *fetch.Client
	logger  *slog.Logger
	baseURL string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(f *fetch.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		fetch:   f,
		logger:  logger.With(slog.String("component", "jikan")),
		baseURL: DefaultBaseURL,
	}
}

// GetFull は /anime/{id}/full を取得する。
// 404またはdataが空の場合はmodel.ErrNotFoundを返す。
func (c *Client) GetFull(ctx context.Context, malID int) (*Anime, error) {
	return c.getAnime(ctx, fmt.Sprintf("%s/anime/%d/full", c.baseURL, malID), malID)
}

// GetAnime は /anime/{id} を取得する。シーズン要約に使用する。
func (c *Client) GetAnime(ctx context.Context, malID int) (*Anime, error) {
	return c.getAnime(ctx, fmt.Sprintf("%s/anime/%d", c.baseURL, malID), malID)
}

func (c *Client) getAnime(ctx context.Context, endpoint string, malID int) (*Anime, error) {
	var resp animeResponse
	if err := c.fetch.GetJSON(ctx, endpoint, nil, nil, &resp); err != nil {
		if fetch.IsNotFound(err) {
			return nil, fmt.Errorf("jikan anime %d: %w", malID, model.ErrNotFound)
		}
		return nil, err
	}
	if resp.Data == nil || resp.Data.MalID == 0 {
		return nil, fmt.Errorf("jikan anime %d returned no data: %w", malID, model.ErrNotFound)
	}
	return resp.Data, nil
}

// GetEpisodes は全ページのエピソード一覧を取得する。
// has_next_pageがfalseになるか上限ページに達するまでループする。
func (c *Client) GetEpisodes(ctx context.Context, malID int) ([]Episode, error) {
	endpoint := fmt.Sprintf("%s/anime/%d/episodes", c.baseURL, malID)
	var episodes []Episode

	for page := 1; page <= maxEpisodePages; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("limit", strconv.Itoa(episodesPageLimit))

		var resp episodesResponse
		if err := c.fetch.GetJSON(ctx, endpoint, query, nil, &resp); err != nil {
			if fetch.IsNotFound(err) {
				return episodes, nil
			}
			return nil, fmt.Errorf("jikan episodes %d page %d: %w", malID, page, err)
		}

		episodes = append(episodes, resp.Data...)
		if !resp.Pagination.HasNextPage || len(resp.Data) == 0 {
			return episodes, nil
		}
	}

	c.logger.Warn("episode pagination limit reached",
		slog.Int("mal_id", malID),
		slog.Int("pages", maxEpisodePages),
	)
	return episodes, nil
}

// GetCharacters はキャラクター一覧を取得する。
func (c *Client) GetCharacters(ctx context.Context, malID int) ([]Character, error) {
	var resp charactersResponse
	endpoint := fmt.Sprintf("%s/anime/%d/characters", c.baseURL, malID)
	if err := c.fetch.GetJSON(ctx, endpoint, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("jikan characters %d: %w", malID, err)
	}
	return resp.Data, nil
}

// Search は /anime の全文検索を行う。
func (c *Client) Search(ctx context.Context, params model.SearchParams) (*model.SearchResult, error) {
	query, err := searchQuery(params)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := c.fetch.GetJSON(ctx, c.baseURL+"/anime", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("jikan search: %w", err)
	}

	result := &model.SearchResult{
		Results: make([]model.SearchEntry, 0, len(resp.Data)),
		Pagination: model.Pagination{
			CurrentPage:  resp.Pagination.CurrentPage,
			LastPage:     resp.Pagination.LastVisiblePage,
			HasNextPage:  resp.Pagination.HasNextPage,
			PerPage:      resp.Pagination.Items.PerPage,
			TotalResults: resp.Pagination.Items.Total,
		},
	}
	for i := range resp.Data {
		result.Results = append(result.Results, resp.Data[i].SearchEntry())
	}
	return result, nil
}

// errInvalidSearch は検索条件の検証エラー。
var errInvalidSearch = errors.New("invalid search parameters")

// searchQuery は検索条件をJikanのクエリパラメータに変換する。
func searchQuery(params model.SearchParams) (url.Values, error) {
	if params.Page < 0 || params.Limit < 0 || params.Limit > 25 {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidArgument, errInvalidSearch)
	}

	q := url.Values{}
	if params.Query != "" {
		q.Set("q", params.Query)
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Type != "" {
		q.Set("type", params.Type)
	}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	if params.OrderBy != "" {
		q.Set("order_by", params.OrderBy)
	}
	if params.Sort != "" {
		q.Set("sort", params.Sort)
	}
	if params.SFW {
		q.Set("sfw", "true")
	}
	return q, nil
}
