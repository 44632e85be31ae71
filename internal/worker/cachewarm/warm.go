// Package cachewarm はフルレコードのキャッシュを事前に構築するジョブを提供する。
// 有効なキャッシュを持たないID対応表のエントリを1件ずつ構築し、間隔を空けて処理する。
package cachewarm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/metachan/internal/model"
)

const (
	// TaskName はスケジューラに登録するタスク名。
	TaskName = "CacheWarm"
	// DefaultItemDelay は1件処理するごとの待機時間。
	DefaultItemDelay = 2 * time.Second
	// pageSize は対応表を読み出す1ページの件数。
	pageSize = 500
)

// MappingLister はID対応表の一覧取得を抽象化するインターフェース。
type MappingLister interface {
	Search(ctx context.Context, filter model.MappingFilter) ([]*model.IdentityMapping, error)
}

// LiveSet は有効なフルレコードを持つMAL IDの集合を返すインターフェース。
type LiveSet interface {
	LiveRecordIDs(ctx context.Context) (map[int]struct{}, error)
}

// RecordWarmer はフルレコードを構築してキャッシュに格納するインターフェース。
// *anime.Service を受け付けることができる。
type RecordWarmer interface {
	GetFullRecord(ctx context.Context, malID int) (*model.AnimeRecord, error)
}

// Stats は1回のウォームアップの集計結果。
type Stats struct {
	Candidates int
	Warmed     int
	Failed     int
}

// WarmJob はキャッシュのウォームアップジョブ。
type WarmJob struct {
	mappings  MappingLister
	live      LiveSet
	records   RecordWarmer
	logger    *slog.Logger
	ItemDelay time.Duration

	after func(d time.Duration) <-chan time.Time
}

// NewWarmJob は新しいWarmJobを生成する。
func NewWarmJob(mappings MappingLister, live LiveSet, records RecordWarmer, logger *slog.Logger, itemDelay time.Duration) *WarmJob {
	if itemDelay < 0 {
		itemDelay = DefaultItemDelay
	}
	return &WarmJob{
		mappings:  mappings,
		live:      live,
		records:   records,
		logger:    logger.With(slog.String("component", "cache_warm")),
		ItemDelay: itemDelay,
		after:     time.After,
	}
}

// Run はスケジューラから呼ばれるエントリポイント。
func (j *WarmJob) Run(ctx context.Context) error {
	_, err := j.Warm(ctx)
	return err
}

// Warm は有効なキャッシュを持たないエントリのフルレコードを構築する。
// 個々の構築失敗はログに記録して次へ進む。
func (j *WarmJob) Warm(ctx context.Context) (Stats, error) {
	start := time.Now()

	live, err := j.live.LiveRecordIDs(ctx)
	if err != nil {
		j.logger.Error("有効なキャッシュの取得に失敗しました", slog.String("error", err.Error()))
		return Stats{}, fmt.Errorf("キャッシュウォームアップの準備に失敗: %w", err)
	}

	targets, err := j.collectTargets(ctx, live)
	if err != nil {
		j.logger.Error("ID対応表の取得に失敗しました", slog.String("error", err.Error()))
		return Stats{}, fmt.Errorf("キャッシュウォームアップの準備に失敗: %w", err)
	}

	stats := Stats{Candidates: len(targets)}
	j.logger.Info("キャッシュウォームアップを開始しました",
		slog.Int("candidates", stats.Candidates),
		slog.Int("live", len(live)),
	)

	for i, malID := range targets {
		if i > 0 && j.ItemDelay > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-j.after(j.ItemDelay):
			}
		}

		if _, err := j.records.GetFullRecord(ctx, malID); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			j.logger.Warn("レコードの構築に失敗しました",
				slog.Int("mal_id", malID),
				slog.String("error", err.Error()),
			)
			continue
		}
		stats.Warmed++
	}

	j.logger.Info("キャッシュウォームアップが完了しました",
		slog.Int("warmed", stats.Warmed),
		slog.Int("failed", stats.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return stats, nil
}

// collectTargets は有効なキャッシュを持たないMAL IDを重複なく返す。
func (j *WarmJob) collectTargets(ctx context.Context, live map[int]struct{}) ([]int, error) {
	seen := make(map[int]struct{})
	var targets []int

	for offset := 0; ; offset += pageSize {
		page, err := j.mappings.Search(ctx, model.MappingFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			if m.MalID == 0 {
				continue
			}
			if _, ok := live[m.MalID]; ok {
				continue
			}
			if _, ok := seen[m.MalID]; ok {
				continue
			}
			seen[m.MalID] = struct{}{}
			targets = append(targets, m.MalID)
		}
		if len(page) < pageSize {
			return targets, nil
		}
	}
}
