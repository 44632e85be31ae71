// Package cache は統合済みレコードと配信ソースのキャッシュアサイド層を提供する。
// 有効期限はレコードに埋め込まず、書き込み時に決めたexpires_atで管理する。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/metachan/internal/metrics"
	"github.com/hitoshi/metachan/internal/model"
	"github.com/hitoshi/metachan/internal/repository"
)

const (
	// FinishedRecordTTLDays は放送終了済みレコードの保持日数。
	FinishedRecordTTLDays = 30
	// AiringRecordTTLDays は放送中・未放送レコードの保持日数。
	AiringRecordTTLDays = 1
	// StreamTTLDays は配信ソースの保持日数。
	StreamTTLDays = 7
)

// RecordTTLDays はレコードの放送状態に応じた保持日数を返す。
func RecordTTLDays(record *model.AnimeRecord) int {
	if record != nil && record.IsFinished() {
		return FinishedRecordTTLDays
	}
	return AiringRecordTTLDays
}

// Service はCacheRepositoryの上にJSONエンコードと有効期限判定を載せる。
// ロックは取らず、同一キーへの並行書き込みは後勝ちとなる。
type Service struct {
	repo    repository.CacheRepository
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.CacheRepository, logger *slog.Logger, m metrics.MetricsCollector) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		repo:    repo,
		logger:  logger.With(slog.String("component", "cache")),
		metrics: m,
		now:     time.Now,
	}
}

// Get はキーに一致する有効な文書をoutへデコードする。
// 文書がない、または期限切れの場合はfalseを返す。
func (s *Service) Get(ctx context.Context, key model.CacheKey, out any) (bool, error) {
	doc, err := s.repo.FindLatest(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache lookup %s: %w", key, err)
	}

	if doc == nil || !doc.IsLive(s.now()) {
		s.metrics.RecordCacheLookup(string(key.Kind), false)
		return false, nil
	}

	if err := json.Unmarshal(doc.Data, out); err != nil {
		// 壊れた文書はミス扱いにして再構築させる
		s.logger.Warn("discarding undecodable cache document",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordCacheLookup(string(key.Kind), false)
		return false, nil
	}

	s.metrics.RecordCacheLookup(string(key.Kind), true)
	return true, nil
}

// Put はpayloadをJSONとして保存し、同一キーの既存文書を置き換える。
func (s *Service) Put(ctx context.Context, key model.CacheKey, payload any, ttlDays int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	now := s.now()
	doc := &model.CachedDocument{
		Key:       key,
		Data:      data,
		ExpiresAt: now.Add(time.Duration(ttlDays) * 24 * time.Hour),
		CreatedAt: now,
	}
	if err := s.repo.Replace(ctx, doc); err != nil {
		return fmt.Errorf("cache store %s: %w", key, err)
	}

	s.logger.Debug("cache stored",
		slog.String("key", key.String()),
		slog.Int("ttl_days", ttlDays),
	)
	return nil
}

// Invalidate は指定MAL IDに紐づく全文書を削除する。
func (s *Service) Invalidate(ctx context.Context, malID int) (int64, error) {
	n, err := s.repo.DeleteByMalID(ctx, malID)
	if err != nil {
		return 0, fmt.Errorf("cache invalidate %d: %w", malID, err)
	}
	return n, nil
}

// PurgeExpired は期限切れからgrace以上経過した文書を物理削除する。
// 読み取り時の期限判定は削除の有無に関係なく行われる。
func (s *Service) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := s.repo.DeleteExpiredBefore(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return n, nil
}

// LiveRecordIDs は有効なフルレコードを持つMAL IDの集合を返す。
func (s *Service) LiveRecordIDs(ctx context.Context) (map[int]struct{}, error) {
	ids, err := s.repo.ListLiveMalIDs(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	return ids, nil
}

// RecordKey はフルレコードのキャッシュキーを返す。
func RecordKey(malID int) model.CacheKey {
	return model.CacheKey{MalID: malID, Kind: model.DocumentKindAnime}
}

// StreamKey はエピソード単位の配信ソースのキャッシュキーを返す。
func StreamKey(malID, episode int) model.CacheKey {
	return model.CacheKey{MalID: malID, Kind: model.DocumentKindStream, Episode: episode}
}
