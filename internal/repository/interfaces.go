// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/metachan/internal/model"
)

// MappingRepository はプロバイダ横断ID対応表の永続化インターフェース。
type MappingRepository interface {
	// FindByMalID はMAL IDで対応表を検索する。見つからない場合はnilを返す。
	FindByMalID(ctx context.Context, malID int) (*model.IdentityMapping, error)

	// FindByTVDBID はTVDB IDを共有する全エントリを返す。
	FindByTVDBID(ctx context.Context, tvdbID int) ([]*model.IdentityMapping, error)

	// UpsertBatch は複数エントリを1トランザクションでupsertする。
	// livechart_idがあればそれを、なければcompositeをキーとする。
	// どちらのキーも持たないエントリはスキップし、その件数を返す。
	UpsertBatch(ctx context.Context, mappings []*model.IdentityMapping) (skipped int, err error)

	// Search は条件に一致するエントリをMAL ID順で返す。
	Search(ctx context.Context, filter model.MappingFilter) ([]*model.IdentityMapping, error)

	// Count は対応表の総件数を返す。
	Count(ctx context.Context) (int, error)
}

// CacheRepository はキャッシュ文書の永続化インターフェース。
type CacheRepository interface {
	// FindLatest はキーに一致する最新の文書を返す。期限切れでも返す。見つからない場合はnilを返す。
	FindLatest(ctx context.Context, key model.CacheKey) (*model.CachedDocument, error)

	// Replace はキーに一致する既存文書を削除してから新しい文書を挿入する。
	Replace(ctx context.Context, doc *model.CachedDocument) error

	// DeleteExpiredBefore はexpires_atが指定時刻より前の文書を削除し、削除件数を返す。
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteByMalID は指定MAL IDの全文書を削除し、削除件数を返す。
	DeleteByMalID(ctx context.Context, malID int) (int64, error)

	// ListLiveMalIDs は有効期限内のフルレコードが存在するMAL IDを返す。
	ListLiveMalIDs(ctx context.Context, now time.Time) (map[int]struct{}, error)
}

// TaskLogRepository はタスク実行ログの永続化インターフェース。追記のみ。
type TaskLogRepository interface {
	// Append は実行ログを1行追加する。
	Append(ctx context.Context, record *model.TaskExecutionRecord) error

	// Latest は指定タスクの最新の実行ログを返す。見つからない場合はnilを返す。
	Latest(ctx context.Context, taskName string) (*model.TaskExecutionRecord, error)
}
