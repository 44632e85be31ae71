package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/metachan/internal/middleware"
	"github.com/hitoshi/metachan/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// malIDは404レスポンスのメッセージに使う。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error, malID int) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
	case errors.Is(err, model.ErrNotFound):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAnimeNotFoundError(malID))
	case errors.Is(err, model.ErrInvalidArgument):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidIDError(strconv.Itoa(malID)))
	case errors.Is(err, model.ErrUpstreamExhausted), errors.Is(err, model.ErrUpstreamUnavailable):
		logger.Error("upstream failure", slog.Int("mal_id", malID), slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewUpstreamUnavailableError())
	default:
		// 詳細はログのみに記録する
		logger.Error("internal server error", slog.Int("mal_id", malID), slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// handleSearchError は検索時のエラーを変換する。
// 検索条件の検証エラーはIDではなくクエリの誤りとして返す。
func handleSearchError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, model.ErrInvalidArgument) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError("page/limit"))
		return
	}
	handleServiceError(w, logger, err, 0)
}

// apiErrorStatus はエラーコードごとのHTTPステータス。未登録のコードは500。
var apiErrorStatus = map[string]int{
	model.ErrCodeAnimeNotFound:     http.StatusNotFound,
	model.ErrCodeRouteNotFound:     http.StatusNotFound,
	model.ErrCodeInvalidID:         http.StatusBadRequest,
	model.ErrCodeInvalidEpisode:    http.StatusBadRequest,
	model.ErrCodeInvalidQuery:      http.StatusBadRequest,
	model.ErrCodeMethodNotAllowed:  http.StatusMethodNotAllowed,
	model.ErrCodeRateLimitExceeded: http.StatusTooManyRequests,
}

func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	if status, ok := apiErrorStatus[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
