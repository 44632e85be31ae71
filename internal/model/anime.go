package model

// 放送状態の定義値（メタデータAPIのstatus文字列）
const (
	StatusFinishedAiring  = "Finished Airing"
	StatusCurrentlyAiring = "Currently Airing"
	StatusNotYetAired     = "Not yet aired"
)

// 欠損エピソードの補完に使用するプレースホルダー文言
const (
	PlaceholderSynopsisEnglish  = "No synopsis available"
	PlaceholderSynopsisJapanese = "シノプシスはありません"
	PlaceholderAired            = "Unknown"
)

// Titles は3種類の表記によるタイトル。
type Titles struct {
	English  string `json:"english"`
	Japanese string `json:"japanese"`
	Romaji   string `json:"romaji"`
}

// StreamSearchTitle は配信元の検索に使うタイトル。配信元はローマ字表記で登録されている。
func (t Titles) StreamSearchTitle() string {
	if t.Romaji != "" {
		return t.Romaji
	}
	return t.English
}

// Synopsis は英語・日本語のあらすじ。
type Synopsis struct {
	English  string `json:"english"`
	Japanese string `json:"japanese"`
}

// Scores は平均スコアと評価ユーザー数。
type Scores struct {
	Average float64 `json:"average"`
	Users   int     `json:"users"`
}

// Ranks はスコアと各種ランキング指標。
type Ranks struct {
	Scores     Scores `json:"scores"`
	Ranked     int    `json:"ranked"`
	Popularity int    `json:"popularity"`
	Members    int    `json:"members"`
	Favorites  int    `json:"favorites"`
}

// Entity は制作会社・ジャンルなどのID付き名称。
type Entity struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Posters はポスター画像のサイズ別URL。
type Posters struct {
	Small    string `json:"small"`
	Medium   string `json:"medium"`
	Large    string `json:"large"`
	Original string `json:"original"`
}

// CoverImages はカバー画像のサイズ別URL。
type CoverImages struct {
	Small    string `json:"small"`
	Large    string `json:"large"`
	Original string `json:"original"`
}

// Logos はロゴ画像の幅別URL。
type Logos struct {
	Small    string `json:"small"`
	Medium   string `json:"medium"`
	Large    string `json:"large"`
	XLarge   string `json:"xlarge"`
	Original string `json:"original"`
}

// Trailer は予告編動画の情報。
type Trailer struct {
	YoutubeID string `json:"youtubeId,omitempty"`
	URL       string `json:"url,omitempty"`
	EmbedURL  string `json:"embedUrl,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Broadcast は放送曜日と時刻。
type Broadcast struct {
	Day      string `json:"day,omitempty"`
	Time     string `json:"time,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	String   string `json:"string,omitempty"`
}

// SeasonSummary は同一シリーズに属するシーズンの要約。
type SeasonSummary struct {
	MalID     int     `json:"malId"`
	Titles    Titles  `json:"titles"`
	Synopsis  string  `json:"synopsis"`
	Type      string  `json:"type"`
	Source    string  `json:"source"`
	Airing    bool    `json:"airing"`
	Status    string  `json:"status"`
	AiredFrom string  `json:"airedFrom,omitempty"`
	Image     string  `json:"image"`
	Episodes  int     `json:"episodes"`
	Score     float64 `json:"score"`
	Current   bool    `json:"current"`
}

// VoiceActor はキャラクターの声優。
type VoiceActor struct {
	Name     string `json:"name"`
	Image    string `json:"image"`
	Language string `json:"language"`
}

// Character は登場キャラクター。
type Character struct {
	MalID       int          `json:"malId"`
	Name        string       `json:"name"`
	Role        string       `json:"role"`
	Image       string       `json:"image"`
	VoiceActors []VoiceActor `json:"voiceActors"`
}

// EpisodeRecord は統合済みの1エピソード。
// ScoreやImageなどプロバイダにより欠損しうる項目はポインタまたは空値で表現する。
type EpisodeRecord struct {
	ID           int       `json:"id"`
	Number       int       `json:"number"`
	Titles       Titles    `json:"titles"`
	Aired        string    `json:"aired"`
	Score        *float64  `json:"score,omitempty"`
	Duration     *int      `json:"duration,omitempty"`
	Synopsis     *Synopsis `json:"synopsis,omitempty"`
	Filler       bool      `json:"filler"`
	Recap        bool      `json:"recap"`
	ForumURL     string    `json:"forumUrl,omitempty"`
	Image        string    `json:"image,omitempty"`
	SeasonNumber *int      `json:"seasonNumber,omitempty"`
}

// Availability は字幕版・吹替版として視聴可能なエピソード番号の一覧。
type Availability struct {
	Sub []string `json:"sub"`
	Dub []string `json:"dub"`
}

// EpisodeList はエピソード一覧と視聴可能情報。
type EpisodeList struct {
	Episodes     []EpisodeRecord `json:"episodes"`
	Availability Availability    `json:"availability"`
}

// AnimeRecord は複数プロバイダから統合した正規化済みアニメレコード。
type AnimeRecord struct {
	ID           int             `json:"id"`
	Titles       Titles          `json:"titles"`
	Synopsis     string          `json:"synopsis"`
	Type         string          `json:"type"`
	Source       string          `json:"source"`
	EpisodeCount int             `json:"episodeCount"`
	Status       string          `json:"status"`
	Airing       bool            `json:"airing"`
	StartDate    string          `json:"startDate,omitempty"`
	EndDate      string          `json:"endDate,omitempty"`
	Duration     string          `json:"duration"`
	AgeRating    string          `json:"ageRating"`
	Ranks        Ranks           `json:"ranks"`
	Background   string          `json:"background,omitempty"`
	Season       string          `json:"season,omitempty"`
	Year         int             `json:"year,omitempty"`
	Broadcast    Broadcast       `json:"broadcast"`
	Producers    []Entity        `json:"producers"`
	Licensors    []Entity        `json:"licensors"`
	Studios      []Entity        `json:"studios"`
	Genres       []Entity        `json:"genres"`
	Posters      Posters         `json:"posters"`
	CoverImages  CoverImages     `json:"coverImages"`
	Logos        *Logos          `json:"logos,omitempty"`
	Trailer      Trailer         `json:"trailer"`
	Seasons      []SeasonSummary `json:"seasons"`
	Episodes     EpisodeList     `json:"episodes"`
	Characters   []Character     `json:"characters"`
	Mappings     ProviderIDs     `json:"mappings"`
}

// IsFinished は放送終了済みかどうかを返す。
func (r *AnimeRecord) IsFinished() bool {
	return r.Status == StatusFinishedAiring
}

// StreamLink は1つの配信ソース。
type StreamLink struct {
	URL    string `json:"url"`
	Server string `json:"server"`
}

// StreamLinks はエピソード単位の字幕版・吹替版の配信ソース。
type StreamLinks struct {
	Sub []StreamLink `json:"sub"`
	Dub []StreamLink `json:"dub"`
}

// IsEmpty は配信ソースが1件もないかどうかを返す。
func (s *StreamLinks) IsEmpty() bool {
	return len(s.Sub) == 0 && len(s.Dub) == 0
}

// SearchParams はアニメ検索の条件。
type SearchParams struct {
	Query   string
	Page    int
	Limit   int
	Type    string
	Status  string
	OrderBy string
	Sort    string
	SFW     bool
}

// SearchEntry は検索結果の1件。
type SearchEntry struct {
	MalID    int     `json:"malId"`
	Titles   Titles  `json:"titles"`
	Type     string  `json:"type"`
	Status   string  `json:"status"`
	Episodes int     `json:"episodes"`
	Score    float64 `json:"score"`
	Year     int     `json:"year,omitempty"`
	Image    string  `json:"image"`
	Synopsis string  `json:"synopsis"`
}

// Pagination は検索結果のページ情報。
type Pagination struct {
	CurrentPage  int  `json:"currentPage"`
	LastPage     int  `json:"lastPage"`
	HasNextPage  bool `json:"hasNextPage"`
	PerPage      int  `json:"perPage"`
	TotalResults int  `json:"totalResults"`
}

// SearchResult はアニメ検索の結果。
type SearchResult struct {
	Results    []SearchEntry `json:"results"`
	Pagination Pagination    `json:"pagination"`
}
