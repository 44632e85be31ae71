package jikan

import "github.com/hitoshi/metachan/internal/model"

// Image はJPEG画像のサイズ別URL。
type Image struct {
	ImageURL      string `json:"image_url"`
	SmallImageURL string `json:"small_image_url"`
	LargeImageURL string `json:"large_image_url"`
}

// Images は画像形式別のURL。
type Images struct {
	JPG Image `json:"jpg"`
}

// Trailer は予告編。
type Trailer struct {
	YoutubeID string `json:"youtube_id"`
	URL       string `json:"url"`
	EmbedURL  string `json:"embed_url"`
	Images    struct {
		MaximumImageURL string `json:"maximum_image_url"`
	} `json:"images"`
}

// Aired は放送期間。未定の場合はnullになる。
type Aired struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Broadcast は放送枠。
type Broadcast struct {
	Day      string `json:"day"`
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	String   string `json:"string"`
}

// Entry は制作会社・ジャンル等の参照。
type Entry struct {
	MalID int    `json:"mal_id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// External は配信サービス等の外部リンク。
type External struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Anime は /anime/{id} および /anime/{id}/full のdata部分。
type Anime struct {
	MalID          int        `json:"mal_id"`
	URL            string     `json:"url"`
	Images         Images     `json:"images"`
	Trailer        Trailer    `json:"trailer"`
	Title          string     `json:"title"`
	TitleEnglish   string     `json:"title_english"`
	TitleJapanese  string     `json:"title_japanese"`
	Type           string     `json:"type"`
	Source         string     `json:"source"`
	Episodes       int        `json:"episodes"`
	Status         string     `json:"status"`
	Airing         bool       `json:"airing"`
	Aired          Aired      `json:"aired"`
	Duration       string     `json:"duration"`
	Rating         string     `json:"rating"`
	Score          float64    `json:"score"`
	ScoredBy       int        `json:"scored_by"`
	Rank           int        `json:"rank"`
	Popularity     int        `json:"popularity"`
	Members        int        `json:"members"`
	Favorites      int        `json:"favorites"`
	Synopsis       string     `json:"synopsis"`
	Background     string     `json:"background"`
	Season         string     `json:"season"`
	Year           int        `json:"year"`
	Broadcast      Broadcast  `json:"broadcast"`
	Producers      []Entry    `json:"producers"`
	Licensors      []Entry    `json:"licensors"`
	Studios        []Entry    `json:"studios"`
	Genres         []Entry    `json:"genres"`
	ExplicitGenres []Entry    `json:"explicit_genres"`
	Streaming      []External `json:"streaming"`
}

// IsFinished は放送終了済みかどうかを返す。
func (a *Anime) IsFinished() bool {
	return a.Status == model.StatusFinishedAiring
}

// SeasonSummary はシーズン一覧に載せる要約に変換する。
func (a *Anime) SeasonSummary(current bool) model.SeasonSummary {
	return model.SeasonSummary{
		MalID: a.MalID,
		Titles: model.Titles{
			English:  a.TitleEnglish,
			Japanese: a.TitleJapanese,
			Romaji:   a.Title,
		},
		Synopsis:  a.Synopsis,
		Type:      a.Type,
		Source:    a.Source,
		Airing:    a.Airing,
		Status:    a.Status,
		AiredFrom: a.Aired.From,
		Image:     a.Images.JPG.LargeImageURL,
		Episodes:  a.Episodes,
		Score:     a.Score,
		Current:   current,
	}
}

// SearchEntry は検索結果の1件に変換する。
func (a *Anime) SearchEntry() model.SearchEntry {
	return model.SearchEntry{
		MalID: a.MalID,
		Titles: model.Titles{
			English:  a.TitleEnglish,
			Japanese: a.TitleJapanese,
			Romaji:   a.Title,
		},
		Type:     a.Type,
		Status:   a.Status,
		Episodes: a.Episodes,
		Score:    a.Score,
		Year:     a.Year,
		Image:    a.Images.JPG.LargeImageURL,
		Synopsis: a.Synopsis,
	}
}

type animeResponse struct {
	Data *Anime `json:"data"`
}

// Episode は /anime/{id}/episodes の1件。
type Episode struct {
	MalID         int      `json:"mal_id"`
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	TitleJapanese string   `json:"title_japanese"`
	TitleRomanji  string   `json:"title_romanji"`
	Aired         string   `json:"aired"`
	Score         *float64 `json:"score"`
	Filler        bool     `json:"filler"`
	Recap         bool     `json:"recap"`
	ForumURL      string   `json:"forum_url"`
}

// Pagination はページング情報。
type Pagination struct {
	LastVisiblePage int  `json:"last_visible_page"`
	HasNextPage     bool `json:"has_next_page"`
	CurrentPage     int  `json:"current_page"`
	Items           struct {
		Count   int `json:"count"`
		Total   int `json:"total"`
		PerPage int `json:"per_page"`
	} `json:"items"`
}

type episodesResponse struct {
	Data       []Episode  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Character は /anime/{id}/characters の1件。
type Character struct {
	Character struct {
		MalID  int    `json:"mal_id"`
		Name   string `json:"name"`
		Images Images `json:"images"`
	} `json:"character"`
	Role        string `json:"role"`
	VoiceActors []struct {
		Person struct {
			MalID  int    `json:"mal_id"`
			Name   string `json:"name"`
			Images Images `json:"images"`
		} `json:"person"`
		Language string `json:"language"`
	} `json:"voice_actors"`
}

// ToModel はキャラクターを正規化済みの形に変換する。
func (c *Character) ToModel() model.Character {
	out := model.Character{
		MalID:       c.Character.MalID,
		Name:        c.Character.Name,
		Role:        c.Role,
		Image:       c.Character.Images.JPG.ImageURL,
		VoiceActors: make([]model.VoiceActor, 0, len(c.VoiceActors)),
	}
	for _, va := range c.VoiceActors {
		out.VoiceActors = append(out.VoiceActors, model.VoiceActor{
			Name:     va.Person.Name,
			Image:    va.Person.Images.JPG.ImageURL,
			Language: va.Language,
		})
	}
	return out
}

type charactersResponse struct {
	Data []Character `json:"data"`
}

type searchResponse struct {
	Data       []Anime    `json:"data"`
	Pagination Pagination `json:"pagination"`
}
