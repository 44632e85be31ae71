// Package aggregate は複数プロバイダからの取得とエピソード統合を行い、
// 1件の正規化済みアニメレコードを組み立てる。
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/hitoshi/metachan/internal/metrics"
	"github.com/hitoshi/metachan/internal/model"
	"github.com/hitoshi/metachan/internal/provider/jikan"
	"github.com/hitoshi/metachan/internal/provider/kitsu"
	"github.com/hitoshi/metachan/internal/provider/logo"
	"github.com/hitoshi/metachan/internal/provider/tmdb"
	"github.com/hitoshi/metachan/internal/provider/tvdb"
)

// defaultOptionalWorkers は任意プロバイダ取得の同時実行数。
const defaultOptionalWorkers = 6

// rewriteTrailer はMALのあらすじ末尾に付く署名。
var rewriteTrailer = regexp.MustCompile(`\s*\[Written by MAL Rewrite\]\s*$`)

// MetadataProvider は主メタデータ（必須）の取得元。
type MetadataProvider interface {
	GetFull(ctx context.Context, malID int) (*jikan.Anime, error)
	GetAnime(ctx context.Context, malID int) (*jikan.Anime, error)
	GetEpisodes(ctx context.Context, malID int) ([]jikan.Episode, error)
	GetCharacters(ctx context.Context, malID int) ([]jikan.Character, error)
}

// SecondaryProvider はタイトルと画像（必須）の取得元。
type SecondaryProvider interface {
	GetAnime(ctx context.Context, kitsuID int) (*kitsu.Anime, error)
}

// EpisodeDatabase はTVエピソードデータベース（任意）。
type EpisodeDatabase interface {
	Enabled() bool
	GetSeries(ctx context.Context, seriesID int) (*tvdb.Series, error)
	GetEpisodes(ctx context.Context, seriesID, season int) ([]tvdb.Episode, error)
}

// EnrichmentProvider はタイトル照合によるエピソード補完（任意）。
type EnrichmentProvider interface {
	Enabled() bool
	FindSeasonEpisodes(ctx context.Context, q tmdb.Query) ([]tmdb.Episode, error)
}

// AvailabilityProvider は配信可用性（任意）。
type AvailabilityProvider interface {
	GetAvailability(ctx context.Context, title string) (model.Availability, error)
}

// LogoProvider はロゴURLの導出（任意）。
type LogoProvider interface {
	Derive(ctx context.Context, links []logo.Link) *model.Logos
}

// SiblingResolver は同一シリーズの他シーズンのMAL IDを返す。
type SiblingResolver interface {
	Siblings(ctx context.Context, tvdbID int) ([]int, error)
}

// Sanitizer はプロバイダ由来テキストからHTMLを除去する。
type Sanitizer interface {
	Clean(raw string) string
}

// Deps はOrchestratorの依存。任意プロバイダはnil可。
type Deps struct {
	Metadata     MetadataProvider
	Secondary    SecondaryProvider
	Episodes     EpisodeDatabase
	Enrichment   EnrichmentProvider
	Availability AvailabilityProvider
	Logos        LogoProvider
	Siblings     SiblingResolver
	Sanitizer    Sanitizer
}

// Orchestrator はアニメレコードの組み立てを行う。
type Orchestrator struct {
	deps    Deps
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	workers int
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(deps Deps, logger *slog.Logger, m metrics.MetricsCollector) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Orchestrator{
		deps:    deps,
		logger:  logger.With(slog.String("component", "aggregate")),
		metrics: m,
		workers: defaultOptionalWorkers,
	}
}

// WithWorkers は任意プロバイダ呼び出しの最大並列数を設定する。0以下は無視する。
func (o *Orchestrator) WithWorkers(n int) *Orchestrator {
	if n > 0 {
		o.workers = n
	}
	return o
}

// Build はID対応表のエントリからアニメレコードを組み立てる。
// 主メタデータまたは副メタデータが得られない場合のみエラーを返し、
// 任意プロバイダの失敗はWARNログを出して補完なしで続行する。
func (o *Orchestrator) Build(ctx context.Context, mapping *model.IdentityMapping) (*model.AnimeRecord, error) {
	start := time.Now()
	record, err := o.build(ctx, mapping)
	o.metrics.RecordBuild(err == nil, time.Since(start))

	if err != nil {
		o.logger.Error("record build failed",
			slog.Int("mal_id", mapping.MalID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	o.logger.Info("record built",
		slog.Int("mal_id", mapping.MalID),
		slog.Int("episodes", len(record.Episodes.Episodes)),
		slog.Int("seasons", len(record.Seasons)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return record, nil
}

// required は必須フェーズの取得結果。
type required struct {
	anime *jikan.Anime
	kitsu *kitsu.Anime
}

// optional は任意フェーズの取得結果。各項目は失敗時にゼロ値のままとなる。
type optional struct {
	episodes     []jikan.Episode
	characters   []jikan.Character
	tvdbEpisodes []tvdb.Episode
	tmdbEpisodes []tmdb.Episode
	availability model.Availability
	logos        *model.Logos
	seasons      []model.SeasonSummary
}

func (o *Orchestrator) build(ctx context.Context, mapping *model.IdentityMapping) (*model.AnimeRecord, error) {
	// 1. 必須フェーズ
	req, err := o.fetchRequired(ctx, mapping)
	if err != nil {
		return nil, err
	}

	// 2. 任意フェーズ
	opt := o.fetchOptional(ctx, mapping, req)

	// 3. TVDBのエピソードがなければTMDBで補完する
	if len(opt.tvdbEpisodes) == 0 {
		opt.tmdbEpisodes = o.fetchEnrichment(ctx, req.anime)
	}

	// 4. 統合
	return o.assemble(mapping, req, opt), nil
}

func (o *Orchestrator) fetchRequired(ctx context.Context, mapping *model.IdentityMapping) (required, error) {
	var res required

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		anime, err := o.deps.Metadata.GetFull(ctx, mapping.MalID)
		if err != nil {
			return fmt.Errorf("primary metadata: %w", err)
		}
		res.anime = anime
		return nil
	})
	p.Go(func(ctx context.Context) error {
		k, err := o.deps.Secondary.GetAnime(ctx, mapping.KitsuID)
		if err != nil {
			return fmt.Errorf("secondary metadata: %w", err)
		}
		res.kitsu = k
		return nil
	})

	if err := p.Wait(); err != nil {
		return required{}, err
	}
	return res, nil
}

func (o *Orchestrator) fetchOptional(ctx context.Context, mapping *model.IdentityMapping, req required) optional {
	anime := req.anime
	var opt optional
	p := pool.New().WithMaxGoroutines(o.workers)

	p.Go(func() {
		episodes, err := o.deps.Metadata.GetEpisodes(ctx, mapping.MalID)
		if err != nil {
			o.warn("episodes", mapping.MalID, err)
		}
		opt.episodes = episodes
	})

	p.Go(func() {
		characters, err := o.deps.Metadata.GetCharacters(ctx, mapping.MalID)
		if err != nil {
			o.warn("characters", mapping.MalID, err)
			return
		}
		opt.characters = characters
	})

	if mapping.TVDBID != 0 && o.deps.Episodes != nil && o.deps.Episodes.Enabled() {
		p.Go(func() {
			opt.tvdbEpisodes, opt.seasons = o.fetchEpisodeDatabase(ctx, mapping)
		})
	}

	if o.deps.Availability != nil {
		p.Go(func() {
			// 配信リンク取得と同じくレコードのタイトルで検索する
			avail, err := o.deps.Availability.GetAvailability(ctx, req.kitsu.ModelTitles().StreamSearchTitle())
			if err != nil {
				o.warn("availability", mapping.MalID, err)
				return
			}
			opt.availability = avail
		})
	}

	if o.deps.Logos != nil {
		p.Go(func() {
			links := make([]logo.Link, 0, len(anime.Streaming))
			for _, s := range anime.Streaming {
				links = append(links, logo.Link{Name: s.Name, URL: s.URL})
			}
			opt.logos = o.deps.Logos.Derive(ctx, links)
		})
	}

	p.Wait()
	return opt
}

// fetchEpisodeDatabase はTVDBのシリーズとエピソードを取得し、
// シーズン情報を持つシリーズであれば同一シリーズの他シーズンも要約する。
func (o *Orchestrator) fetchEpisodeDatabase(ctx context.Context, mapping *model.IdentityMapping) ([]tvdb.Episode, []model.SeasonSummary) {
	series, err := o.deps.Episodes.GetSeries(ctx, mapping.TVDBID)
	if err != nil {
		o.warn("tvdb series", mapping.MalID, err)
		return nil, nil
	}

	// 統合で使うのはシーズン1のみ
	episodes, err := o.deps.Episodes.GetEpisodes(ctx, mapping.TVDBID, 1)
	if err != nil {
		o.warn("tvdb episodes", mapping.MalID, err)
		episodes = nil
	}

	if !series.HasSeasons() || o.deps.Siblings == nil {
		return episodes, nil
	}
	return episodes, o.fetchSiblings(ctx, mapping)
}

func (o *Orchestrator) fetchSiblings(ctx context.Context, mapping *model.IdentityMapping) []model.SeasonSummary {
	ids, err := o.deps.Siblings.Siblings(ctx, mapping.TVDBID)
	if err != nil {
		o.warn("sibling seasons", mapping.MalID, err)
		return nil
	}

	p := pool.NewWithResults[*model.SeasonSummary]().WithMaxGoroutines(o.workers)
	for _, id := range ids {
		p.Go(func() *model.SeasonSummary {
			anime, err := o.deps.Metadata.GetAnime(ctx, id)
			if err != nil {
				o.warn("sibling season", id, err)
				return nil
			}
			s := anime.SeasonSummary(id == mapping.MalID)
			return &s
		})
	}

	var seasons []model.SeasonSummary
	for _, s := range p.Wait() {
		if s != nil {
			seasons = append(seasons, *s)
		}
	}
	SortSeasons(seasons)
	return seasons
}

func (o *Orchestrator) fetchEnrichment(ctx context.Context, anime *jikan.Anime) []tmdb.Episode {
	if o.deps.Enrichment == nil || !o.deps.Enrichment.Enabled() {
		return nil
	}

	title := firstNonEmpty(anime.TitleEnglish, anime.Title)
	alt := ""
	if title != anime.Title {
		alt = anime.Title
	}

	episodes, err := o.deps.Enrichment.FindSeasonEpisodes(ctx, tmdb.Query{
		Title:            title,
		AlternativeTitle: alt,
		SeasonNumber:     tmdb.SeasonNumberFromTitle(title),
		AirDate:          anime.Aired.From,
		EpisodeCount:     anime.Episodes,
		MaxYear:          anime.Year,
	})
	if err != nil {
		o.warn("tmdb", anime.MalID, err)
		return nil
	}
	return episodes
}

func (o *Orchestrator) assemble(mapping *model.IdentityMapping, req required, opt optional) *model.AnimeRecord {
	a, k := req.anime, req.kitsu
	posters := k.Posters()
	covers := k.CoverImages()

	var fallbackScore *float64
	if a.Score > 0 {
		fallbackScore = &a.Score
	}

	episodes := Reconcile(ReconcileInput{
		MalID:          a.MalID,
		Backbone:       opt.episodes,
		TVDB:           opt.tvdbEpisodes,
		TMDB:           opt.tmdbEpisodes,
		Availability:   opt.availability,
		Finished:       a.IsFinished(),
		EpisodeCount:   a.Episodes,
		FallbackTitles: k.ModelTitles(),
		FallbackAired:  a.Aired.From,
		FallbackScore:  fallbackScore,
		Images: FallbackImages{
			Cover:   covers.Original,
			Poster:  posters.Original,
			Primary: a.Images.JPG.LargeImageURL,
		},
	})
	o.cleanEpisodeSynopses(episodes.Episodes)

	characters := make([]model.Character, 0, len(opt.characters))
	for i := range opt.characters {
		characters = append(characters, opt.characters[i].ToModel())
	}

	seasons := opt.seasons
	if seasons == nil {
		seasons = []model.SeasonSummary{}
	}

	return &model.AnimeRecord{
		ID:           a.MalID,
		Titles:       k.ModelTitles(),
		Synopsis:     o.cleanSynopsis(a.Synopsis),
		Type:         a.Type,
		Source:       a.Source,
		EpisodeCount: a.Episodes,
		Status:       a.Status,
		Airing:       a.Airing,
		StartDate:    a.Aired.From,
		EndDate:      a.Aired.To,
		Duration:     a.Duration,
		AgeRating:    a.Rating,
		Ranks: model.Ranks{
			Scores:     model.Scores{Average: a.Score, Users: a.ScoredBy},
			Ranked:     a.Rank,
			Popularity: a.Popularity,
			Members:    a.Members,
			Favorites:  a.Favorites,
		},
		Background: o.cleanSynopsis(a.Background),
		Season:     a.Season,
		Year:       a.Year,
		Broadcast: model.Broadcast{
			Day:      a.Broadcast.Day,
			Time:     a.Broadcast.Time,
			Timezone: a.Broadcast.Timezone,
			String:   a.Broadcast.String,
		},
		Producers:   entities(a.Producers),
		Licensors:   entities(a.Licensors),
		Studios:     entities(a.Studios),
		Genres:      append(entities(a.Genres), entities(a.ExplicitGenres)...),
		Posters:     posters,
		CoverImages: covers,
		Logos:       opt.logos,
		Trailer: model.Trailer{
			YoutubeID: a.Trailer.YoutubeID,
			URL:       a.Trailer.URL,
			EmbedURL:  a.Trailer.EmbedURL,
			Thumbnail: a.Trailer.Images.MaximumImageURL,
		},
		Seasons:    seasons,
		Episodes:   episodes,
		Characters: characters,
		Mappings:   mapping.ProviderIDs,
	}
}

// cleanSynopsis はMAL Rewriteの署名とHTMLを取り除く。
func (o *Orchestrator) cleanSynopsis(s string) string {
	s = rewriteTrailer.ReplaceAllString(s, "")
	if o.deps.Sanitizer != nil {
		s = o.deps.Sanitizer.Clean(s)
	}
	return strings.TrimSpace(s)
}

func (o *Orchestrator) cleanEpisodeSynopses(episodes []model.EpisodeRecord) {
	if o.deps.Sanitizer == nil {
		return
	}
	for i := range episodes {
		if s := episodes[i].Synopsis; s != nil {
			s.English = o.deps.Sanitizer.Clean(s.English)
			s.Japanese = o.deps.Sanitizer.Clean(s.Japanese)
		}
	}
}

func (o *Orchestrator) warn(source string, malID int, err error) {
	o.logger.Warn("optional provider failed",
		slog.String("source", source),
		slog.Int("mal_id", malID),
		slog.String("error", err.Error()),
	)
}

func entities(entries []jikan.Entry) []model.Entity {
	out := make([]model.Entity, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.Entity{ID: e.MalID, Name: e.Name})
	}
	return out
}
