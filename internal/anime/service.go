// Package anime は外部に公開するアニメ取得操作をまとめる。
// キャッシュを先に参照し、ミス時のみプロバイダから組み立てる。
package anime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/metachan/internal/cache"
	"github.com/hitoshi/metachan/internal/model"
)

// RecordCache はキャッシュ層のインターフェース。
type RecordCache interface {
	Get(ctx context.Context, key model.CacheKey, out any) (bool, error)
	Put(ctx context.Context, key model.CacheKey, payload any, ttlDays int) error
}

// IdentityResolver はMAL IDからID対応を引く。
type IdentityResolver interface {
	Resolve(ctx context.Context, malID int) (*model.IdentityMapping, error)
}

// RecordBuilder はID対応からレコードを組み立てる。
type RecordBuilder interface {
	Build(ctx context.Context, mapping *model.IdentityMapping) (*model.AnimeRecord, error)
}

// StreamProvider はエピソードの配信ソースを返す。
type StreamProvider interface {
	GetEpisodeLinks(ctx context.Context, title string, episode int) (*model.StreamLinks, error)
}

// Searcher はアニメ検索を行う。
type Searcher interface {
	Search(ctx context.Context, params model.SearchParams) (*model.SearchResult, error)
}

// Service はアニメ取得のユースケースを提供する。
type Service struct {
	cache    RecordCache
	resolver IdentityResolver
	builder  RecordBuilder
	streams  StreamProvider
	searcher Searcher
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。streamsはnil可。
func NewService(c RecordCache, resolver IdentityResolver, builder RecordBuilder, streams StreamProvider, searcher Searcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:    c,
		resolver: resolver,
		builder:  builder,
		streams:  streams,
		searcher: searcher,
		logger:   logger.With(slog.String("component", "anime")),
	}
}

// GetFullRecord は統合済みレコードを返す。
// ID対応がない、または必須プロバイダが空の場合はmodel.ErrNotFoundを返す。
func (s *Service) GetFullRecord(ctx context.Context, malID int) (*model.AnimeRecord, error) {
	if malID <= 0 {
		return nil, fmt.Errorf("mal id %d: %w", malID, model.ErrInvalidArgument)
	}

	key := cache.RecordKey(malID)

	// 1. キャッシュ参照。障害時は取得処理へ進む
	var cached model.AnimeRecord
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("cache lookup failed", slog.Int("mal_id", malID), slog.String("error", err.Error()))
	}
	if hit {
		return &cached, nil
	}

	// 2. ID対応の解決と組み立て
	mapping, err := s.resolver.Resolve(ctx, malID)
	if err != nil {
		return nil, err
	}

	record, err := s.builder.Build(ctx, mapping)
	if err != nil {
		return nil, err
	}

	// 3. 放送状態に応じた保持期間で保存
	if err := s.cache.Put(ctx, key, record, cache.RecordTTLDays(record)); err != nil {
		s.logger.Warn("cache store failed", slog.Int("mal_id", malID), slog.String("error", err.Error()))
	}
	return record, nil
}

// GetEpisodes はレコードのエピソード一覧を返す。
func (s *Service) GetEpisodes(ctx context.Context, malID int) (*model.EpisodeList, error) {
	record, err := s.GetFullRecord(ctx, malID)
	if err != nil {
		return nil, err
	}
	return &record.Episodes, nil
}

// GetEpisodeStreamLinks はエピソードの配信ソースを返す。
// 1件以上のソースがある場合のみキャッシュする。配信元の失敗は空の結果になる。
func (s *Service) GetEpisodeStreamLinks(ctx context.Context, malID, episode int) (*model.StreamLinks, error) {
	if episode <= 0 {
		return nil, fmt.Errorf("episode %d: %w", episode, model.ErrInvalidArgument)
	}

	key := cache.StreamKey(malID, episode)

	var cached model.StreamLinks
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("cache lookup failed", slog.String("key", key.String()), slog.String("error", err.Error()))
	}
	if hit {
		return &cached, nil
	}

	record, err := s.GetFullRecord(ctx, malID)
	if err != nil {
		return nil, err
	}

	empty := &model.StreamLinks{Sub: []model.StreamLink{}, Dub: []model.StreamLink{}}
	if s.streams == nil {
		return empty, nil
	}

	links, err := s.streams.GetEpisodeLinks(ctx, record.Titles.StreamSearchTitle(), episode)
	if err != nil {
		// 配信元の障害はレコード自体の欠落ではないので空で返す
		s.logger.Warn("stream links unavailable",
			slog.Int("mal_id", malID),
			slog.Int("episode", episode),
			slog.String("error", err.Error()),
		)
		return empty, nil
	}
	if links == nil {
		return empty, nil
	}

	if !links.IsEmpty() {
		if err := s.cache.Put(ctx, key, links, cache.StreamTTLDays); err != nil {
			s.logger.Warn("cache store failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		}
	}
	return links, nil
}

// SearchRecords はアニメを検索する。
func (s *Service) SearchRecords(ctx context.Context, params model.SearchParams) (*model.SearchResult, error) {
	return s.searcher.Search(ctx, params)
}
