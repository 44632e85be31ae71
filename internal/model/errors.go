// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 呼び出し元が errors.Is で判別するためのセンチネルエラー。
var (
	// ErrNotFound はID対応表にエントリがない、または必須プロバイダが空を返した場合のエラー。
	ErrNotFound = errors.New("anime not found")
	// ErrUpstreamExhausted はレート制限によるリトライ上限に達した場合のエラー。
	ErrUpstreamExhausted = errors.New("upstream retry budget exhausted")
	// ErrUpstreamUnavailable はプロバイダがネットワークエラーや非2xxを返した場合のエラー。
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidArgument は入力値が不正な場合のエラー。
	ErrInvalidArgument = errors.New("invalid argument")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, anime, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAnimeNotFound       = "ANIME_NOT_FOUND"
	ErrCodeInvalidID           = "INVALID_ID"
	ErrCodeInvalidEpisode      = "INVALID_EPISODE"
	ErrCodeInvalidQuery        = "INVALID_QUERY"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeRouteNotFound       = "ROUTE_NOT_FOUND"
	ErrCodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
)

// NewAnimeNotFoundError はアニメ未検出エラーを生成する。
func NewAnimeNotFoundError(malID int) *APIError {
	return &APIError{
		Code:     ErrCodeAnimeNotFound,
		Message:  fmt.Sprintf("指定されたアニメが見つかりません: %d", malID),
		Category: "anime",
		Action:   "MyAnimeListのIDを確認してください。",
	}
}

// NewInvalidIDError は不正なID指定エラーを生成する。
func NewInvalidIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("無効なIDです: %s", raw),
		Category: "validation",
		Action:   "1以上の整数を指定してください。",
	}
}

// NewInvalidEpisodeError は不正なエピソード番号エラーを生成する。
func NewInvalidEpisodeError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEpisode,
		Message:  fmt.Sprintf("無効なエピソード番号です: %s", raw),
		Category: "validation",
		Action:   "1以上の整数を指定してください。",
	}
}

// NewInvalidQueryError は検索条件の不正エラーを生成する。
func NewInvalidQueryError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  fmt.Sprintf("検索条件が不正です: %s", reason),
		Category: "validation",
		Action:   "検索キーワードと数値パラメータを確認してください。",
	}
}

// NewUpstreamUnavailableError は外部プロバイダ障害エラーを生成する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "外部メタデータサービスから応答を得られませんでした。",
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRouteNotFoundError は未定義のパスへのアクセスエラーを生成する。
func NewRouteNotFoundError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeRouteNotFound,
		Message:  fmt.Sprintf("エンドポイントが存在しません: %s", path),
		Category: "system",
		Action:   "/anime/{id} などの公開エンドポイントを指定してください。",
	}
}

// NewMethodNotAllowedError は許可されていないHTTPメソッドのエラーを生成する。
// 公開APIは読み取り専用のためGET以外は受け付けない。
func NewMethodNotAllowedError(method string) *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  fmt.Sprintf("このメソッドは使用できません: %s", method),
		Category: "system",
		Action:   "GETでリクエストしてください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   fmt.Sprintf("%d秒後に再度お試しください。", retryAfterSec),
	}
}
