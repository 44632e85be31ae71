// Package identity はMAL IDからプロバイダ横断のID対応を引く。
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/metachan/internal/model"
	"github.com/hitoshi/metachan/internal/repository"
)

// Resolver はID対応表を参照する。
type Resolver struct {
	repo   repository.MappingRepository
	logger *slog.Logger
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver(repo repository.MappingRepository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		repo:   repo,
		logger: logger.With(slog.String("component", "identity")),
	}
}

// Resolve はMAL IDに対応するエントリを返す。
// エントリがない場合はmodel.ErrNotFoundを返す。
func (r *Resolver) Resolve(ctx context.Context, malID int) (*model.IdentityMapping, error) {
	if malID <= 0 {
		return nil, fmt.Errorf("mal id %d: %w", malID, model.ErrInvalidArgument)
	}

	m, err := r.repo.FindByMalID(ctx, malID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup %d: %w", malID, err)
	}
	if m == nil {
		r.logger.Debug("identity mapping not found", slog.Int("mal_id", malID))
		return nil, fmt.Errorf("identity mapping %d: %w", malID, model.ErrNotFound)
	}
	return m, nil
}

// Siblings はTVDB IDを共有するエントリ（同一シリーズの各シーズン）のMAL IDを返す。
// TVDB IDが0の場合は空を返す。
func (r *Resolver) Siblings(ctx context.Context, tvdbID int) ([]int, error) {
	if tvdbID == 0 {
		return nil, nil
	}

	mappings, err := r.repo.FindByTVDBID(ctx, tvdbID)
	if err != nil {
		return nil, fmt.Errorf("sibling lookup for tvdb %d: %w", tvdbID, err)
	}

	seen := make(map[int]struct{}, len(mappings))
	ids := make([]int, 0, len(mappings))
	for _, m := range mappings {
		if m.MalID == 0 {
			continue
		}
		if _, ok := seen[m.MalID]; ok {
			continue
		}
		seen[m.MalID] = struct{}{}
		ids = append(ids, m.MalID)
	}
	return ids, nil
}
