package aggregate

import (
	"fmt"

	"github.com/hitoshi/metachan/internal/model"
	"github.com/hitoshi/metachan/internal/provider/jikan"
	"github.com/hitoshi/metachan/internal/provider/tmdb"
	"github.com/hitoshi/metachan/internal/provider/tvdb"
)

// forumURLFormat はエピソード一覧がない場合の代替エピソードに付けるフォーラムURL。
const forumURLFormat = "https://api.jikan.moe/v4/anime/%d/forum"

// FallbackImages は補完エピソードの画像候補。Cover→Poster→Primaryの順に使う。
type FallbackImages struct {
	Cover   string
	Poster  string
	Primary string
}

func (f FallbackImages) first() string {
	for _, s := range []string{f.Cover, f.Poster, f.Primary} {
		if s != "" {
			return s
		}
	}
	return ""
}

// ReconcileInput はエピソード統合の入力。
// TVDBとTMDBは排他的で、TVDBがあればTMDBは参照しない。
type ReconcileInput struct {
	MalID        int
	Backbone     []jikan.Episode
	TVDB         []tvdb.Episode
	TMDB         []tmdb.Episode
	Availability model.Availability

	// Finished と EpisodeCount は主メタデータの放送状態と公式話数。
	Finished     bool
	EpisodeCount int

	// エピソード一覧が空のときに使う代替エピソードの値。
	FallbackTitles model.Titles
	FallbackAired  string
	FallbackScore  *float64

	Images FallbackImages
}

// Reconcile は各プロバイダのエピソード一覧を1つの順序付き一覧にまとめる。
// 入力は変更しない。
func Reconcile(in ReconcileInput) model.EpisodeList {
	// 1. 主メタデータのエピソードを骨格にする
	episodes := backbone(in)

	// 2. TVDB、なければTMDBで上書きする
	if len(in.TVDB) > 0 {
		applyTVDB(episodes, in.TVDB)
	} else if len(in.TMDB) > 0 {
		applyTMDB(episodes, in.TMDB)
	}

	sub := copyStrings(in.Availability.Sub)
	dub := copyStrings(in.Availability.Dub)

	// 3. 字幕版の話数に満たない分をプレースホルダーで補う
	episodes = fillGaps(episodes, len(sub), in.Images.first())

	// 4. 放送終了済みで公式話数の方が少なければ切り詰める
	if in.Finished && in.EpisodeCount > 0 {
		episodes = truncate(episodes, in.EpisodeCount)
		sub = truncate(sub, in.EpisodeCount)
		dub = truncate(dub, in.EpisodeCount)
	}

	return model.EpisodeList{
		Episodes:     episodes,
		Availability: model.Availability{Sub: sub, Dub: dub},
	}
}

func backbone(in ReconcileInput) []model.EpisodeRecord {
	if len(in.Backbone) == 0 {
		return []model.EpisodeRecord{{
			ID:       1,
			Number:   1,
			Titles:   in.FallbackTitles,
			Aired:    in.FallbackAired,
			Score:    in.FallbackScore,
			ForumURL: fmt.Sprintf(forumURLFormat, in.MalID),
		}}
	}

	episodes := make([]model.EpisodeRecord, 0, len(in.Backbone))
	for _, ep := range in.Backbone {
		episodes = append(episodes, model.EpisodeRecord{
			ID:     ep.MalID,
			Number: ep.MalID,
			Titles: model.Titles{
				English:  ep.Title,
				Japanese: ep.TitleJapanese,
				Romaji:   ep.TitleRomanji,
			},
			Aired:    ep.Aired,
			Score:    ep.Score,
			Filler:   ep.Filler,
			Recap:    ep.Recap,
			ForumURL: ep.ForumURL,
		})
	}
	return episodes
}

// applyTVDB はシーズン1のエピソードを番号で対応付ける（骨格のi番目 ← 番号i+1）。
func applyTVDB(episodes []model.EpisodeRecord, tvdbEpisodes []tvdb.Episode) {
	byNumber := make(map[int]tvdb.Episode, len(tvdbEpisodes))
	for _, ep := range tvdbEpisodes {
		if ep.SeasonNumber != 1 {
			continue
		}
		if _, ok := byNumber[ep.Number]; !ok {
			byNumber[ep.Number] = ep
		}
	}

	for i := range episodes {
		src, ok := byNumber[i+1]
		if !ok {
			continue
		}

		ep := &episodes[i]
		if src.Runtime != nil {
			ep.Duration = intPtr(*src.Runtime)
		}
		ep.Synopsis = &model.Synopsis{
			English:  firstNonEmpty(src.EnglishOverview, src.Overview),
			Japanese: firstNonEmpty(src.JapaneseOverview, src.Overview),
		}
		if src.Image != "" {
			ep.Image = src.Image
		}
		ep.SeasonNumber = intPtr(src.SeasonNumber)
		ep.Number = src.Number
	}
}

// applyTMDB は添字位置で対応付ける。
func applyTMDB(episodes []model.EpisodeRecord, tmdbEpisodes []tmdb.Episode) {
	for i := range episodes {
		if i >= len(tmdbEpisodes) {
			return
		}
		src := tmdbEpisodes[i]
		ep := &episodes[i]

		var english, japanese string
		if ep.Synopsis != nil {
			english, japanese = ep.Synopsis.English, ep.Synopsis.Japanese
		}
		ep.Synopsis = &model.Synopsis{
			English:  firstNonEmpty(src.Overview, english, model.PlaceholderSynopsisEnglish),
			Japanese: firstNonEmpty(japanese, model.PlaceholderSynopsisJapanese),
		}
		ep.Image = firstNonEmpty(src.StillURL(), ep.Image)
		ep.SeasonNumber = intPtr(src.SeasonNumber)
		ep.Number = src.EpisodeNumber
	}
}

func fillGaps(episodes []model.EpisodeRecord, target int, image string) []model.EpisodeRecord {
	if len(episodes) >= target {
		return episodes
	}

	var duration *int
	if len(episodes) > 0 && episodes[0].Duration != nil {
		duration = intPtr(*episodes[0].Duration)
	}

	lastID := 0
	if len(episodes) > 0 {
		lastID = episodes[len(episodes)-1].ID
	}

	for n := lastID + 1; len(episodes) < target; n++ {
		title := fmt.Sprintf("Episode %d", n)
		var d *int
		if duration != nil {
			d = intPtr(*duration)
		}
		episodes = append(episodes, model.EpisodeRecord{
			ID:       n,
			Number:   n,
			Titles:   model.Titles{English: title, Japanese: title, Romaji: title},
			Aired:    model.PlaceholderAired,
			Duration: d,
			Synopsis: &model.Synopsis{
				English:  model.PlaceholderSynopsisEnglish,
				Japanese: model.PlaceholderSynopsisJapanese,
			},
			Image: image,
		})
	}
	return episodes
}

func truncate[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intPtr(v int) *int {
	return &v
}
