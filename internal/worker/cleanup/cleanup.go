// Package cleanup は期限切れキャッシュ文書の自動削除ジョブを提供する。
// 期限切れから猶予日数（デフォルト7日）を超過した文書を日次バッチで削除する。
// 読み取り時は期限で判定するため、削除前の文書が返されることはない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TaskName はスケジューラに登録するタスク名。
const TaskName = "CachePurge"

// Purger は期限切れキャッシュの物理削除を抽象化するインターフェース。
// *cache.Service を受け付けることができる。
type Purger interface {
	PurgeExpired(ctx context.Context, grace time.Duration) (int64, error)
}

// CleanupJob は期限切れキャッシュの自動削除ジョブ。
// 削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	cache     Purger
	logger    *slog.Logger
	GraceDays int // 期限切れ後に保持する日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(cache Purger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		cache:     cache,
		logger:    logger.With(slog.String("component", "cache_purge")),
		GraceDays: 7,
	}
}

// Run は期限切れからGraceDays日以上経過した文書を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	grace := time.Duration(j.GraceDays) * 24 * time.Hour

	deletedCount, err := j.cache.PurgeExpired(ctx, grace)
	if err != nil {
		j.logger.Error("キャッシュクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("grace_days", j.GraceDays),
		)
		return fmt.Errorf("キャッシュクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("キャッシュクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("grace_days", j.GraceDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
