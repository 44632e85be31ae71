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

// psql はPostgreSQLのプレースホルダー形式（$1, $2...）を使うクエリビルダー。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// mappingColumns はidentity_mappingsのSELECT対象カラム。scanMappingの順序と一致させること。
var mappingColumns = []string{
	"id", "mal_id", "anilist_id", "kitsu_id", "tvdb_id", "tmdb_id", "anidb_id",
	"livechart_id", "anisearch_id", "anime_planet_id", "imdb_id", "notify_moe_id",
	"type", "composite", "created_at", "updated_at",
}

// PostgresMappingRepo はPostgreSQLを使用したID対応表リポジトリ。
type PostgresMappingRepo struct {
	db *sql.DB
}

var _ MappingRepository = (*PostgresMappingRepo)(nil)

// NewPostgresMappingRepo はPostgresMappingRepoを生成する。
func NewPostgresMappingRepo(db *sql.DB) *PostgresMappingRepo {
	return &PostgresMappingRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(s rowScanner) (*model.IdentityMapping, error) {
	m := &model.IdentityMapping{}
	var malID, anilistID, kitsuID, tvdbID, tmdbID, anidbID, livechartID, anisearchID sql.NullInt64
	var animePlanetID, imdbID, notifyMoeID, mappingType, composite sql.NullString

	err := s.Scan(
		&m.ID, &malID, &anilistID, &kitsuID, &tvdbID, &tmdbID, &anidbID,
		&livechartID, &anisearchID, &animePlanetID, &imdbID, &notifyMoeID,
		&mappingType, &composite, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.MalID = nullIntValue(malID)
	m.AnilistID = nullIntValue(anilistID)
	m.KitsuID = nullIntValue(kitsuID)
	m.TVDBID = nullIntValue(tvdbID)
	m.TMDBID = nullIntValue(tmdbID)
	m.AniDBID = nullIntValue(anidbID)
	m.LivechartID = nullIntValue(livechartID)
	m.AnisearchID = nullIntValue(anisearchID)
	m.AnimePlanetID = nullStringValue(animePlanetID)
	m.IMDBID = nullStringValue(imdbID)
	m.NotifyMoeID = nullStringValue(notifyMoeID)
	m.Type = nullStringValue(mappingType)
	m.Composite = nullStringValue(composite)

	return m, nil
}

// FindByMalID はMAL IDで対応表を検索する。見つからない場合はnilを返す。
// 同一MAL IDに複数行がある場合は最後に更新された行を返す。
func (r *PostgresMappingRepo) FindByMalID(ctx context.Context, malID int) (*model.IdentityMapping, error) {
	query, args, err := psql.Select(mappingColumns...).
		From("identity_mappings").
		Where(sq.Eq{"mal_id": malID}).
		OrderBy("updated_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build mapping query: %w", err)
	}

	m, err := scanMapping(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ID対応表の取得に失敗しました: %w", err)
	}
	return m, nil
}

// FindByTVDBID はTVDB IDを共有する全エントリをMAL ID順で返す。
func (r *PostgresMappingRepo) FindByTVDBID(ctx context.Context, tvdbID int) ([]*model.IdentityMapping, error) {
	query, args, err := psql.Select(mappingColumns...).
		From("identity_mappings").
		Where(sq.Eq{"tvdb_id": tvdbID}).
		Where(sq.NotEq{"mal_id": nil}).
		OrderBy("mal_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build mapping query: %w", err)
	}
	return r.queryMappings(ctx, query, args)
}

// Search は条件に一致するエントリをMAL ID順で返す。
func (r *PostgresMappingRepo) Search(ctx context.Context, filter model.MappingFilter) ([]*model.IdentityMapping, error) {
	query, args, err := buildSearchQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build mapping search: %w", err)
	}
	return r.queryMappings(ctx, query, args)
}

// buildSearchQuery は検索条件からSELECT文を組み立てる。
func buildSearchQuery(filter model.MappingFilter) (string, []any, error) {
	builder := psql.Select(mappingColumns...).
		From("identity_mappings").
		Where(sq.NotEq{"mal_id": nil})

	if filter.Type != "" {
		builder = builder.Where(sq.Eq{"type": filter.Type})
	}
	if filter.HasTVDB {
		builder = builder.Where(sq.NotEq{"tvdb_id": nil})
	}
	if filter.HasTMDB {
		builder = builder.Where(sq.NotEq{"tmdb_id": nil})
	}
	if filter.MissingKitsu {
		builder = builder.Where(sq.Eq{"kitsu_id": nil})
	}

	builder = builder.OrderBy("mal_id")
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	return builder.ToSql()
}

// Count は対応表の総件数を返す。
func (r *PostgresMappingRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM identity_mappings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ID対応表の件数取得に失敗しました: %w", err)
	}
	return n, nil
}

func (r *PostgresMappingRepo) queryMappings(ctx context.Context, query string, args []any) ([]*model.IdentityMapping, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ID対応表の検索に失敗しました: %w", err)
	}
	defer rows.Close()

	var mappings []*model.IdentityMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("ID対応表の読み取りに失敗しました: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ID対応表の走査に失敗しました: %w", err)
	}
	return mappings, nil
}

// UpsertBatch は複数エントリを1トランザクションでupsertする。
func (r *PostgresMappingRepo) UpsertBatch(ctx context.Context, mappings []*model.IdentityMapping) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	skipped := 0

	for _, m := range mappings {
		keyColumn, keyValue, ok := upsertKey(m)
		if !ok {
			skipped++
			continue
		}

		values := mappingValues(m)
		values["updated_at"] = now

		// 1. 既存行の更新
		query, args, err := psql.Update("identity_mappings").
			SetMap(values).
			Where(sq.Eq{keyColumn: keyValue}).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("failed to build mapping update: %w", err)
		}
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("ID対応表の更新に失敗しました: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
		}
		if affected > 0 {
			continue
		}

		// 2. 該当行がなければ挿入
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		values["id"] = m.ID
		values["created_at"] = now

		query, args, err = psql.Insert("identity_mappings").SetMap(values).ToSql()
		if err != nil {
			return 0, fmt.Errorf("failed to build mapping insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("ID対応表の挿入に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return skipped, nil
}

// upsertKey はupsertに使うキーカラムと値を返す。
// livechart_idを優先し、なければcompositeを使う。
func upsertKey(m *model.IdentityMapping) (string, any, bool) {
	if m.LivechartID != 0 {
		return "livechart_id", m.LivechartID, true
	}
	if m.Composite != "" {
		return "composite", m.Composite, true
	}
	return "", nil, false
}

func mappingValues(m *model.IdentityMapping) map[string]any {
	return map[string]any{
		"mal_id":          nullInt(m.MalID),
		"anilist_id":      nullInt(m.AnilistID),
		"kitsu_id":        nullInt(m.KitsuID),
		"tvdb_id":         nullInt(m.TVDBID),
		"tmdb_id":         nullInt(m.TMDBID),
		"anidb_id":        nullInt(m.AniDBID),
		"livechart_id":    nullInt(m.LivechartID),
		"anisearch_id":    nullInt(m.AnisearchID),
		"anime_planet_id": nullString(m.AnimePlanetID),
		"imdb_id":         nullString(m.IMDBID),
		"notify_moe_id":   nullString(m.NotifyMoeID),
		"type":            nullString(m.Type),
		"composite":       nullString(m.Composite),
	}
}
