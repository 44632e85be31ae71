package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/hitoshi/metachan/internal/cli"
	"github.com/hitoshi/metachan/internal/config"
	"github.com/hitoshi/metachan/internal/logger"
)

// LoadCLIBackend はmetachanctl用のBackendを組み立てる。
// ログは標準出力を汚さないよう標準エラーへ出す。
func LoadCLIBackend(ctx context.Context) (*cli.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.SetupDefault(os.Stderr, logger.ParseLevel(cfg.LogLevel))

	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	components, err := NewComponents(cfg, db, slog.Default())
	if err != nil {
		db.Close()
		return nil, err
	}

	return &cli.Backend{
		Tasks:    components.Scheduler,
		Mappings: components.Mappings,
		Sync:     components.MappingSync,
		Cache:    components.Cache,
		Anime:    components.Anime,
		Close:    db.Close,
	}, nil
}
