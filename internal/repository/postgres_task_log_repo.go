package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/metachan/internal/model"
)

// PostgresTaskLogRepo はPostgreSQLを使用したタスク実行ログリポジトリ。
type PostgresTaskLogRepo struct {
	db *sql.DB
}

var _ TaskLogRepository = (*PostgresTaskLogRepo)(nil)

// NewPostgresTaskLogRepo はPostgresTaskLogRepoを生成する。
func NewPostgresTaskLogRepo(db *sql.DB) *PostgresTaskLogRepo {
	return &PostgresTaskLogRepo{db: db}
}

// Append は実行ログを1行追加する。
func (r *PostgresTaskLogRepo) Append(ctx context.Context, record *model.TaskExecutionRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.ExecutedAt.IsZero() {
		record.ExecutedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO task_logs (id, task_name, status, error, executed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID, record.TaskName, string(record.Status), nullString(record.Error), record.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("タスク実行ログの追加に失敗しました: %w", err)
	}
	return nil
}

// Latest は指定タスクの最新の実行ログを返す。見つからない場合はnilを返す。
func (r *PostgresTaskLogRepo) Latest(ctx context.Context, taskName string) (*model.TaskExecutionRecord, error) {
	rec := &model.TaskExecutionRecord{}
	var status string
	var errMsg sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, task_name, status, error, executed_at
		 FROM task_logs WHERE task_name = $1
		 ORDER BY executed_at DESC LIMIT 1`,
		taskName,
	).Scan(&rec.ID, &rec.TaskName, &status, &errMsg, &rec.ExecutedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスク実行ログの取得に失敗しました: %w", err)
	}

	rec.Status = model.TaskExecutionStatus(status)
	rec.Error = nullStringValue(errMsg)
	return rec, nil
}
