package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/lib/pq"
)

// PoolConfig はコネクションプールの上限。
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// PoolForWorkers は集約の並列数からプール設定を決める。
// リクエストごとに集約・キャッシュ・対応表で最大3本使う想定で余裕を持たせる。
func PoolForWorkers(workers int) PoolConfig {
	if workers < 1 {
		workers = 1
	}
	maxOpen := workers * 3
	if maxOpen < 10 {
		maxOpen = 10
	}
	return PoolConfig{
		MaxOpen:     maxOpen,
		MaxIdle:     maxOpen / 4,
		MaxLifetime: 30 * time.Minute,
	}
}

// Open はlib/pqでプールを開く。sql.Openは接続しないので疎通はPingで確かめる。
func Open(databaseURL string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	return db, nil
}

// Ping は1回あたりtimeoutで疎通を確認し、失敗したらdelay間隔でattempts回まで試す。
// コンテナ起動直後のPostgreSQL待ちに使う。
func Ping(ctx context.Context, db *sql.DB, timeout time.Duration, attempts uint, delay time.Duration) error {
	if attempts == 0 {
		attempts = 1
	}
	err := retry.Do(
		func() error {
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return db.PingContext(pctx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("database ping failed after %d attempt(s): %w", attempts, err)
	}
	return nil
}
