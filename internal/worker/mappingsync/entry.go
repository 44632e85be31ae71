package mappingsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hitoshi/metachan/internal/model"
)

// flexInt は数値と数値文字列のどちらでも受け付ける整数。
// 空文字列とnullは0として扱う。
type flexInt int

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// entry は対応表ソースの1要素。
type entry struct {
	LivechartID   int     `json:"livechart_id"`
	TVDBID        int     `json:"thetvdb_id"`
	AnimePlanetID string  `json:"anime-planet_id"`
	IMDBID        string  `json:"imdb_id"`
	AnisearchID   int     `json:"anisearch_id"`
	TMDBID        flexInt `json:"themoviedb_id"`
	AniDBID       int     `json:"anidb_id"`
	KitsuID       int     `json:"kitsu_id"`
	MalID         int     `json:"mal_id"`
	Type          string  `json:"type"`
	NotifyMoeID   string  `json:"notify.moe_id"`
	AnilistID     int     `json:"anilist_id"`
}

// toMapping はソースの要素をIdentityMappingに変換する。
func (e entry) toMapping() *model.IdentityMapping {
	return &model.IdentityMapping{
		ProviderIDs: model.ProviderIDs{
			MalID:         e.MalID,
			AnilistID:     e.AnilistID,
			KitsuID:       e.KitsuID,
			TVDBID:        e.TVDBID,
			TMDBID:        int(e.TMDBID),
			AniDBID:       e.AniDBID,
			LivechartID:   e.LivechartID,
			AnisearchID:   e.AnisearchID,
			AnimePlanetID: e.AnimePlanetID,
			IMDBID:        e.IMDBID,
			NotifyMoeID:   e.NotifyMoeID,
		},
		Type:      e.Type,
		Composite: model.CompositeKey(e.MalID, e.AnilistID),
	}
}
