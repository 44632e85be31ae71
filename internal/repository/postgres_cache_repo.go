package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/hitoshi/metachan/internal/model"
)

// PostgresCacheRepo はPostgreSQLを使用したキャッシュ文書リポジトリ。
type PostgresCacheRepo struct {
	db *sql.DB
}

var _ CacheRepository = (*PostgresCacheRepo)(nil)

// NewPostgresCacheRepo はPostgresCacheRepoを生成する。
func NewPostgresCacheRepo(db *sql.DB) *PostgresCacheRepo {
	return &PostgresCacheRepo{db: db}
}

// keyCondition はキャッシュキーのWHERE条件を返す。
// エピソード番号0はNULLとして扱う。
func keyCondition(key model.CacheKey) sq.Eq {
	cond := sq.Eq{
		"mal_id": key.MalID,
		"kind":   string(key.Kind),
	}
	if key.Episode == 0 {
		cond["episode_number"] = nil
	} else {
		cond["episode_number"] = key.Episode
	}
	return cond
}

// FindLatest はキーに一致する最新の文書を返す。見つからない場合はnilを返す。
func (r *PostgresCacheRepo) FindLatest(ctx context.Context, key model.CacheKey) (*model.CachedDocument, error) {
	query, args, err := psql.Select("id", "data", "expires_at", "created_at").
		From("cached_documents").
		Where(keyCondition(key)).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build cache query: %w", err)
	}

	doc := &model.CachedDocument{Key: key}
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&doc.ID, &doc.Data, &doc.ExpiresAt, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キャッシュの取得に失敗しました: %w", err)
	}
	return doc, nil
}

// Replace はキーに一致する既存文書を削除してから新しい文書を挿入する。
// 削除と挿入は同一トランザクションで行う。
func (r *PostgresCacheRepo) Replace(ctx context.Context, doc *model.CachedDocument) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := psql.Delete("cached_documents").Where(keyCondition(doc.Key)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build cache delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("既存キャッシュの削除に失敗しました: %w", err)
	}

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cached_documents (id, mal_id, kind, episode_number, data, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.Key.MalID, string(doc.Key.Kind), nullInt(doc.Key.Episode),
		doc.Data, doc.ExpiresAt, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("キャッシュの挿入に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteExpiredBefore はexpires_atがcutoffより前の文書を削除する。
func (r *PostgresCacheRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cached_documents WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("期限切れキャッシュの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// DeleteByMalID は指定MAL IDの全文書を削除する。
func (r *PostgresCacheRepo) DeleteByMalID(ctx context.Context, malID int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cached_documents WHERE mal_id = $1`, malID)
	if err != nil {
		return 0, fmt.Errorf("キャッシュの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// ListLiveMalIDs は有効期限内のフルレコードが存在するMAL IDを返す。
func (r *PostgresCacheRepo) ListLiveMalIDs(ctx context.Context, now time.Time) (map[int]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT mal_id FROM cached_documents WHERE kind = $1 AND expires_at > $2`,
		string(model.DocumentKindAnime), now,
	)
	if err != nil {
		return nil, fmt.Errorf("有効なキャッシュの一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	ids := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("キャッシュIDの読み取りに失敗しました: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("キャッシュIDの走査に失敗しました: %w", err)
	}
	return ids, nil
}
