package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/metachan/internal/model"
)

// ErrorResponseBody は公開APIが返すエラーJSON。
// statusはプロキシ経由でステータスコードが書き換えられた場合の確認用。
type ErrorResponseBody struct {
	Status   int    `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はapiErrをステータスコード付きのJSONとして書き込む。
// エラーレスポンスはキャッシュさせない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr == nil {
		apiErr = model.NewInternalError()
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponseBody{
		Status:   statusCode,
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は原因を伏せた500レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// WriteRateLimited はRetry-After付きの429レスポンスを書き込む。
func WriteRateLimited(w http.ResponseWriter, retryAfterSec int) {
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitExceededError(retryAfterSec))
}

// RouteNotFound は未定義パス用のハンドラ。chiのNotFoundに登録する。
func RouteNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, http.StatusNotFound, model.NewRouteNotFoundError(r.URL.Path))
}

// MethodNotAllowed は許可外メソッド用のハンドラ。chiのMethodNotAllowedに登録する。
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, OPTIONS")
	WriteErrorResponse(w, http.StatusMethodNotAllowed, model.NewMethodNotAllowedError(r.Method))
}
