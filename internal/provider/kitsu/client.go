// Package kitsu はKitsu edge APIクライアントを提供する。
// 統合レコードのタイトルとポスター・カバー画像の取得元となる。
package kitsu

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/metachan/internal/fetch"
	"github.com/hitoshi/metachan/internal/model"
)

// DefaultBaseURL はKitsu edge APIのベースURL。
const DefaultBaseURL = "https://kitsu.io/api/edge"

// Titles は言語別タイトル。
type Titles struct {
	En   string `json:"en"`
	EnJp string `json:"en_jp"`
	JaJp string `json:"ja_jp"`
}

// PosterImage はポスター画像のサイズ別URL。
type PosterImage struct {
	Tiny     string `json:"tiny"`
	Small    string `json:"small"`
	Medium   string `json:"medium"`
	Large    string `json:"large"`
	Original string `json:"original"`
}

// CoverImage はカバー画像のサイズ別URL。
type CoverImage struct {
	Tiny     string `json:"tiny"`
	Small    string `json:"small"`
	Large    string `json:"large"`
	Original string `json:"original"`
}

// Attributes はアニメリソースの属性。
type Attributes struct {
	Slug           string       `json:"slug"`
	Synopsis       string       `json:"synopsis"`
	Titles         Titles       `json:"titles"`
	CanonicalTitle string       `json:"canonicalTitle"`
	AverageRating  string       `json:"averageRating"`
	StartDate      string       `json:"startDate"`
	EndDate        string       `json:"endDate"`
	Subtype        string       `json:"subtype"`
	Status         string       `json:"status"`
	PosterImage    *PosterImage `json:"posterImage"`
	CoverImage     *CoverImage  `json:"coverImage"`
	EpisodeCount   *int         `json:"episodeCount"`
	EpisodeLength  *int         `json:"episodeLength"`
	NSFW           bool         `json:"nsfw"`
}

// Anime はKitsuのアニメリソース。
type Anime struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Attributes Attributes `json:"attributes"`
}

// ModelTitles は正規化済みタイトルに変換する。ローマ字表記にはcanonicalTitleを使う。
func (a *Anime) ModelTitles() model.Titles {
	return model.Titles{
		English:  a.Attributes.Titles.En,
		Japanese: a.Attributes.Titles.JaJp,
		Romaji:   a.Attributes.CanonicalTitle,
	}
}

// Posters はポスター画像を返す。画像がない場合は空値を返す。
func (a *Anime) Posters() model.Posters {
	p := a.Attributes.PosterImage
	if p == nil {
		return model.Posters{}
	}
	return model.Posters{Small: p.Small, Medium: p.Medium, Large: p.Large, Original: p.Original}
}

// CoverImages はカバー画像を返す。画像がない場合は空値を返す。
func (a *Anime) CoverImages() model.CoverImages {
	c := a.Attributes.CoverImage
	if c == nil {
		return model.CoverImages{}
	}
	return model.CoverImages{Small: c.Small, Large: c.Large, Original: c.Original}
}

type listResponse struct {
	Data []Anime `json:"data"`
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
}

// Client はKitsu APIクライアント。
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
		logger:  logger.With(slog.String("component", "kitsu")),
		baseURL: DefaultBaseURL,
	}
}

// GetAnime は filter[id] でアニメを1件取得する。
// IDが0、または一致が0件の場合はmodel.ErrNotFoundを返す。
func (c *Client) GetAnime(ctx context.Context, kitsuID int) (*Anime, error) {
	if kitsuID == 0 {
		return nil, fmt.Errorf("kitsu id missing: %w", model.ErrNotFound)
	}

	query := url.Values{}
	query.Set("filter[id]", strconv.Itoa(kitsuID))
	header := http.Header{}
	header.Set("Accept", "application/vnd.api+json")

	var resp listResponse
	if err := c.fetch.GetJSON(ctx, c.baseURL+"/anime", query, header, &resp); err != nil {
		return nil, fmt.Errorf("kitsu anime %d: %w", kitsuID, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("kitsu anime %d returned no match: %w", kitsuID, model.ErrNotFound)
	}
	return &resp.Data[0], nil
}
