// Package mappingsync はプロバイダ横断ID対応表の定期同期ジョブを提供する。
// 公開されている対応表JSONを取得し、100件ずつのバッチでupsertする。
package mappingsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/metachan/internal/model"
)

const (
	// TaskName はスケジューラに登録するタスク名。
	TaskName = "MappingSync"
	// DefaultSourceURL は対応表JSONの既定の取得元。
	DefaultSourceURL = "https://raw.githubusercontent.com/Fribb/anime-lists/master/anime-list-full.json"
	// BatchSize は1トランザクションでupsertする件数。
	BatchSize = 100
)

// Downloader はJSONの取得を抽象化するインターフェース。
// *fetch.Client を受け付けることができる。
type Downloader interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error
}

// MappingWriter は対応表の一括upsertを抽象化するインターフェース。
type MappingWriter interface {
	UpsertBatch(ctx context.Context, mappings []*model.IdentityMapping) (skipped int, err error)
}

// Stats は1回の同期の集計結果。
type Stats struct {
	Total         int
	Upserted      int
	Skipped       int
	FailedBatches int
}

// SyncJob はID対応表の同期ジョブ。
type SyncJob struct {
	source    Downloader
	repo      MappingWriter
	logger    *slog.Logger
	sourceURL string
}

// NewSyncJob は新しいSyncJobを生成する。sourceURLが空の場合は既定の取得元を使う。
func NewSyncJob(source Downloader, repo MappingWriter, logger *slog.Logger, sourceURL string) *SyncJob {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	return &SyncJob{
		source:    source,
		repo:      repo,
		logger:    logger.With(slog.String("component", "mapping_sync")),
		sourceURL: sourceURL,
	}
}

// Run はスケジューラから呼ばれるエントリポイント。
func (j *SyncJob) Run(ctx context.Context) error {
	_, err := j.Sync(ctx)
	return err
}

// Sync は対応表を取得してupsertし、集計結果を返す。
// バッチ単位の失敗は記録して次のバッチへ進み、最後にまとめてエラーを返す。
func (j *SyncJob) Sync(ctx context.Context) (Stats, error) {
	start := time.Now()
	j.logger.Info("ID対応表の同期を開始しました", slog.String("source", j.sourceURL))

	var entries []entry
	if err := j.source.GetJSON(ctx, j.sourceURL, nil, nil, &entries); err != nil {
		j.logger.Error("ID対応表の取得に失敗しました", slog.String("error", err.Error()))
		return Stats{}, fmt.Errorf("ID対応表の取得に失敗: %w", err)
	}

	stats := Stats{Total: len(entries)}
	var errs []error

	for i := 0; i < len(entries); i += BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		end := min(i+BatchSize, len(entries))
		batch := make([]*model.IdentityMapping, 0, end-i)
		for _, e := range entries[i:end] {
			batch = append(batch, e.toMapping())
		}

		skipped, err := j.repo.UpsertBatch(ctx, batch)
		if err != nil {
			stats.FailedBatches++
			errs = append(errs, fmt.Errorf("batch %d-%d: %w", i, end, err))
			j.logger.Error("バッチのupsertに失敗しました",
				slog.Int("offset", i),
				slog.Int("size", len(batch)),
				slog.String("error", err.Error()),
			)
			continue
		}
		stats.Skipped += skipped
		stats.Upserted += len(batch) - skipped

		j.logger.Debug("バッチを処理しました",
			slog.Int("processed", end),
			slog.Int("total", stats.Total),
		)
	}

	j.logger.Info("ID対応表の同期が完了しました",
		slog.Int("total", stats.Total),
		slog.Int("upserted", stats.Upserted),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed_batches", stats.FailedBatches),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if len(errs) > 0 {
		return stats, fmt.Errorf("ID対応表の同期で%d件のバッチが失敗: %w", len(errs), errors.Join(errs...))
	}
	return stats, nil
}
