package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/metachan/internal/middleware"
	"github.com/hitoshi/metachan/internal/model"
)

// AnimeServiceInterface はアニメハンドラーが必要とするサービスインターフェース。
type AnimeServiceInterface interface {
	// GetFullRecord は統合済みのアニメレコードを返す。
	GetFullRecord(ctx context.Context, malID int) (*model.AnimeRecord, error)
	// GetEpisodes はエピソード一覧を返す。
	GetEpisodes(ctx context.Context, malID int) (*model.EpisodeList, error)
	// GetEpisodeStreamLinks は指定エピソードの配信リンクを返す。
	GetEpisodeStreamLinks(ctx context.Context, malID, episode int) (*model.StreamLinks, error)
	// SearchRecords はアニメを検索する。
	SearchRecords(ctx context.Context, params model.SearchParams) (*model.SearchResult, error)
}

// AnimeHandler はアニメ情報のHTTPハンドラー。
type AnimeHandler struct {
	service AnimeServiceInterface
	logger  *slog.Logger
}

// NewAnimeHandler はAnimeHandlerを生成する。
func NewAnimeHandler(service AnimeServiceInterface, logger *slog.Logger) *AnimeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnimeHandler{
		service: service,
		logger:  logger.With(slog.String("component", "anime_handler")),
	}
}

// GetAnime はアニメレコードを返す。
// GET /anime/{id}
func (h *AnimeHandler) GetAnime(w http.ResponseWriter, r *http.Request) {
	malID, ok := parseMalID(w, r)
	if !ok {
		return
	}

	record, err := h.service.GetFullRecord(r.Context(), malID)
	if err != nil {
		handleServiceError(w, h.logger, err, malID)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// GetEpisodes はエピソード一覧を返す。
// GET /anime/{id}/episodes
func (h *AnimeHandler) GetEpisodes(w http.ResponseWriter, r *http.Request) {
	malID, ok := parseMalID(w, r)
	if !ok {
		return
	}

	episodes, err := h.service.GetEpisodes(r.Context(), malID)
	if err != nil {
		handleServiceError(w, h.logger, err, malID)
		return
	}

	writeJSON(w, http.StatusOK, episodes)
}

// GetEpisodeStreams は指定エピソードの配信リンクを返す。
// GET /anime/{id}/episodes/{number}
func (h *AnimeHandler) GetEpisodeStreams(w http.ResponseWriter, r *http.Request) {
	malID, ok := parseMalID(w, r)
	if !ok {
		return
	}

	raw := chi.URLParam(r, "number")
	episode, err := strconv.Atoi(raw)
	if err != nil || episode <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidEpisodeError(raw))
		return
	}

	links, err := h.service.GetEpisodeStreamLinks(r.Context(), malID, episode)
	if err != nil {
		handleServiceError(w, h.logger, err, malID)
		return
	}

	writeJSON(w, http.StatusOK, links)
}

// Search はアニメを検索する。
// GET /anime/search?q=&page=&limit=&type=&status=&order_by=&sort=&sfw=
func (h *AnimeHandler) Search(w http.ResponseWriter, r *http.Request) {
	params, apiErr := parseSearchParams(r)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.SearchRecords(r.Context(), params)
	if err != nil {
		handleSearchError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseMalID はURLパラメータ{id}を解析する。不正な場合はエラーレスポンスを書き込みfalseを返す。
func parseMalID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	malID, err := strconv.Atoi(raw)
	if err != nil || malID <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidIDError(raw))
		return 0, false
	}
	return malID, true
}

// parseSearchParams はクエリ文字列から検索条件を組み立てる。
func parseSearchParams(r *http.Request) (model.SearchParams, *model.APIError) {
	q := r.URL.Query()
	params := model.SearchParams{
		Query:   strings.TrimSpace(q.Get("q")),
		Type:    q.Get("type"),
		Status:  q.Get("status"),
		OrderBy: q.Get("order_by"),
		Sort:    q.Get("sort"),
	}

	var err error
	if params.Page, err = optionalInt(q.Get("page")); err != nil || params.Page < 0 {
		return params, model.NewInvalidQueryError("page")
	}
	if params.Limit, err = optionalInt(q.Get("limit")); err != nil || params.Limit < 0 || params.Limit > 25 {
		return params, model.NewInvalidQueryError("limit")
	}
	if raw := q.Get("sfw"); raw != "" {
		if params.SFW, err = strconv.ParseBool(raw); err != nil {
			return params, model.NewInvalidQueryError("sfw")
		}
	}
	if params.Sort != "" && params.Sort != "asc" && params.Sort != "desc" {
		return params, model.NewInvalidQueryError("sort")
	}
	return params, nil
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
