// Package cli は運用者向けコマンドmetachanctlを実装する。
// 各サブコマンドはBackend経由でDBとドメインサービスにアクセスする。
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hitoshi/metachan/internal/model"
	"github.com/hitoshi/metachan/internal/worker/mappingsync"
)

// TaskRunner は定期タスクの状態参照と即時実行を行う。
type TaskRunner interface {
	GetAllTaskStatuses(ctx context.Context) ([]model.TaskStatus, error)
	RunNow(ctx context.Context, name string) error
}

// MappingStore はID対応表を参照する。
type MappingStore interface {
	Search(ctx context.Context, filter model.MappingFilter) ([]*model.IdentityMapping, error)
	Count(ctx context.Context) (int, error)
}

// MappingSyncer はID対応表を同期する。
type MappingSyncer interface {
	Sync(ctx context.Context) (mappingsync.Stats, error)
}

// CacheAdmin はキャッシュ文書を削除する。
type CacheAdmin interface {
	PurgeExpired(ctx context.Context, grace time.Duration) (int64, error)
	Invalidate(ctx context.Context, malID int) (int64, error)
}

// RecordGetter は統合済みレコードを取得する。
type RecordGetter interface {
	GetFullRecord(ctx context.Context, malID int) (*model.AnimeRecord, error)
}

// Backend はサブコマンドが使う依存関係。Closeはnil可。
type Backend struct {
	Tasks    TaskRunner
	Mappings MappingStore
	Sync     MappingSyncer
	Cache    CacheAdmin
	Anime    RecordGetter
	Close    func() error
}

// Loader はBackendを組み立てる。コマンド実行ごとに1回呼ばれる。
type Loader func(ctx context.Context) (*Backend, error)

type state struct {
	load    Loader
	out     io.Writer
	errOut  io.Writer
	noColor bool
}

// NewRootCmd はmetachanctlのルートコマンドを生成する。
func NewRootCmd(load Loader, out, errOut io.Writer) *cobra.Command {
	st := &state{load: load, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "metachanctl",
		Short: "Operate the metachan anime metadata service",
		Long: `metachanctl inspects and operates a metachan deployment.

It connects to the same database as the API server and worker, using
DATABASE_URL and the optional METACHAN_CONFIG file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if st.noColor {
				color.NoColor = true
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().BoolVar(&st.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newTasksCmd(st),
		newMappingsCmd(st),
		newCacheCmd(st),
		newAnimeCmd(st),
	)
	return root
}

// Execute はmetachanctlを実行し、終了コードを返す。
func Execute(ctx context.Context, load Loader, args []string) int {
	root := NewRootCmd(load, os.Stdout, os.Stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		return 1
	}
	return 0
}

// withBackend はBackendを組み立ててfnを実行し、終了後にCloseする。
func (s *state) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := s.load(ctx)
	if err != nil {
		return fmt.Errorf("loading backend: %w", err)
	}
	if b.Close != nil {
		defer b.Close()
	}
	return fn(ctx, b)
}

func (s *state) ok(format string, a ...any) {
	fmt.Fprintln(s.out, color.GreenString("✓"), fmt.Sprintf(format, a...))
}

func (s *state) warn(format string, a ...any) {
	fmt.Fprintln(s.errOut, color.YellowString("!"), fmt.Sprintf(format, a...))
}

func (s *state) header(format string, a ...any) {
	fmt.Fprintln(s.out, color.New(color.Bold).Sprintf(format, a...))
}
