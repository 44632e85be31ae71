package model

import (
	"fmt"
	"time"
)

// ProviderIDs は各プロバイダにおけるアニメのID群。
// 0は「対応するIDなし」を表す。
type ProviderIDs struct {
	MalID         int    `json:"mal,omitempty"`
	AnilistID     int    `json:"anilist,omitempty"`
	KitsuID       int    `json:"kitsu,omitempty"`
	TVDBID        int    `json:"tvdb,omitempty"`
	TMDBID        int    `json:"tmdb,omitempty"`
	AniDBID       int    `json:"anidb,omitempty"`
	LivechartID   int    `json:"livechart,omitempty"`
	AnisearchID   int    `json:"anisearch,omitempty"`
	AnimePlanetID string `json:"animePlanet,omitempty"`
	IMDBID        string `json:"imdb,omitempty"`
	NotifyMoeID   string `json:"notifyMoe,omitempty"`
}

// IdentityMapping はプロバイダ横断のID対応表の1行。
// TVDBIDは複数行で共有されうる（同一シリーズの別シーズン）。
type IdentityMapping struct {
	ID string
	ProviderIDs
	Type      string
	Composite string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CompositeKey はMAL IDとAniList IDの両方がある場合に "{mal}-{anilist}" を返す。
// どちらかが欠けている場合は空文字列を返す。
func CompositeKey(malID, anilistID int) string {
	if malID == 0 || anilistID == 0 {
		return ""
	}
	return fmt.Sprintf("%d-%d", malID, anilistID)
}

// MappingFilter はID対応表の検索条件。
type MappingFilter struct {
	Type         string
	HasTVDB      bool
	HasTMDB      bool
	MissingKitsu bool
	Limit        int
	Offset       int
}
