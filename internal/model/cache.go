package model

import (
	"fmt"
	"time"
)

// DocumentKind はキャッシュ文書の種別。
type DocumentKind string

const (
	// DocumentKindAnime は統合済みアニメレコード全体。
	DocumentKindAnime DocumentKind = "anime"
	// DocumentKindStream はエピソード単位の配信ソース。
	DocumentKindStream DocumentKind = "stream"
)

// CacheKey はキャッシュ文書を一意に識別するキー。
// Episodeはフルレコードの場合0とする。
type CacheKey struct {
	MalID   int
	Kind    DocumentKind
	Episode int
}

// String はログ出力用の文字列表現を返す。
func (k CacheKey) String() string {
	if k.Episode == 0 {
		return fmt.Sprintf("%s:%d", k.Kind, k.MalID)
	}
	return fmt.Sprintf("%s:%d:%d", k.Kind, k.MalID, k.Episode)
}

// CachedDocument は永続化されたキャッシュ文書の1行。
type CachedDocument struct {
	ID        string
	Key       CacheKey
	Data      []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsLive は指定時刻においてまだ有効期限内かどうかを返す。
func (d *CachedDocument) IsLive(now time.Time) bool {
	return d.ExpiresAt.After(now)
}
