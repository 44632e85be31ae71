// Package scheduler は定期タスクの登録・起動・停止と実行ログの記録を行う。
// 各タスクは専用のゴルーチンで動き、起床のたびに実行ログから実行要否を判定する。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/metachan/internal/metrics"
	"github.com/hitoshi/metachan/internal/model"
	"github.com/hitoshi/metachan/internal/repository"
)

var (
	// ErrTaskNotFound は未登録のタスク名を指定した場合のエラー。
	ErrTaskNotFound = errors.New("task not found")
	// ErrDuplicateTask は同名のタスクを二重に登録した場合のエラー。
	ErrDuplicateTask = errors.New("task already registered")
)

// Task は定期実行するタスク。
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type entry struct {
	task Task

	// execMu は同一タスクの実行が重ならないようにする。
	execMu sync.Mutex

	// 以下はManager.muで保護する
	cancel  context.CancelFunc
	nextRun time.Time
}

// Manager は定期タスクを管理する。
type Manager struct {
	logs    repository.TaskLogRepository
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time

	mu    sync.Mutex
	tasks map[string]*entry
	wg    sync.WaitGroup
}

// NewManager はManagerの新しいインスタンスを生成する。
func NewManager(logs repository.TaskLogRepository, logger *slog.Logger, m metrics.MetricsCollector) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Manager{
		logs:    logs,
		logger:  logger.With(slog.String("component", "scheduler")),
		metrics: m,
		now:     time.Now,
		after:   time.After,
		tasks:   make(map[string]*entry),
	}
}

// RegisterTask はタスクを登録する。同名のタスクが既にある場合はエラーを返す。
func (m *Manager) RegisterTask(task Task) error {
	if task.Name == "" || task.Interval <= 0 || task.Run == nil {
		return fmt.Errorf("task %q: %w", task.Name, model.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[task.Name]; ok {
		return fmt.Errorf("task %q: %w", task.Name, ErrDuplicateTask)
	}
	m.tasks[task.Name] = &entry{task: task}

	m.logger.Info("タスクを登録しました",
		slog.String("task", task.Name),
		slog.Duration("interval", task.Interval),
	)
	return nil
}

// StartTask はタスクのループを起動する。既に起動済みの場合は何もしない。
// 実行要否の判定と実行はループ側で行う。
func (m *Manager) StartTask(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[name]
	if !ok {
		return fmt.Errorf("task %q: %w", name, ErrTaskNotFound)
	}
	if e.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop(loopCtx, e)
	}()
	return nil
}

// StartAllTasks は登録済みの全タスクを起動する。
func (m *Manager) StartAllTasks(ctx context.Context) error {
	for _, name := range m.names() {
		if err := m.StartTask(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// StopTask はタスクのタイマーを止める。実行中の処理は中断しない。
func (m *Manager) StopTask(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[name]
	if !ok {
		return fmt.Errorf("task %q: %w", name, ErrTaskNotFound)
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
		e.nextRun = time.Time{}
		m.logger.Info("タスクを停止しました", slog.String("task", name))
	}
	return nil
}

// StopAllTasks は全タスクのタイマーを止める。
func (m *Manager) StopAllTasks() {
	for _, name := range m.names() {
		_ = m.StopTask(name)
	}
}

// Wait は全タスクのループが終了するまで待つ。StopAllTasksの後に呼ぶ。
func (m *Manager) Wait() {
	m.wg.Wait()
}

// RunNow はタスクを即時に1回実行し、結果を実行ログに追記する。
func (m *Manager) RunNow(ctx context.Context, name string) error {
	e, err := m.entry(name)
	if err != nil {
		return err
	}
	return m.execute(ctx, e)
}

// GetTaskStatus はタスクの現在状態を返す。
func (m *Manager) GetTaskStatus(ctx context.Context, name string) (model.TaskStatus, error) {
	e, err := m.entry(name)
	if err != nil {
		return model.TaskStatus{}, err
	}

	m.mu.Lock()
	status := model.TaskStatus{
		Name:       e.task.Name,
		Registered: true,
		Running:    e.cancel != nil,
		Interval:   e.task.Interval,
	}
	armedNext := e.nextRun
	m.mu.Unlock()

	last, err := m.logs.Latest(ctx, name)
	if err != nil {
		return model.TaskStatus{}, fmt.Errorf("task %q status: %w", name, err)
	}
	if last != nil {
		lastRun := last.ExecutedAt
		nextRun := lastRun.Add(e.task.Interval)
		status.LastRun = &lastRun
		status.LastStatus = string(last.Status)
		status.NextRun = &nextRun
	} else if status.Running && !armedNext.IsZero() {
		status.NextRun = &armedNext
	}
	return status, nil
}

// GetAllTaskStatuses は全タスクの状態を名前順で返す。
func (m *Manager) GetAllTaskStatuses(ctx context.Context) ([]model.TaskStatus, error) {
	names := m.names()
	statuses := make([]model.TaskStatus, 0, len(names))
	for _, name := range names {
		s, err := m.GetTaskStatus(ctx, name)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func (m *Manager) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.tasks))
	for name := range m.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) entry(name string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[name]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", name, ErrTaskNotFound)
	}
	return e, nil
}

// loop は起床のたびに実行ログで実行要否を判定し、必要なら実行してから次の起床時刻を決める。
func (m *Manager) loop(ctx context.Context, e *entry) {
	for {
		wait := m.untilDue(ctx, e.task)
		// 判定中に停止された場合は実行せずに抜ける
		if ctx.Err() != nil {
			return
		}
		if wait <= 0 {
			// 停止指示で実行中の処理を中断しない
			_ = m.execute(context.WithoutCancel(ctx), e)
			wait = e.task.Interval
		}

		m.mu.Lock()
		e.nextRun = m.now().Add(wait)
		m.mu.Unlock()

		m.logger.Debug("次回の実行を予約しました",
			slog.String("task", e.task.Name),
			slog.Duration("wait", wait),
		)

		select {
		case <-ctx.Done():
			return
		case <-m.after(wait):
		}
	}
}

// untilDue は次に実行すべき時刻までの待ち時間を返す。0以下なら実行対象。
// 実行ログがない、または読み取りに失敗した場合は実行対象とする。
func (m *Manager) untilDue(ctx context.Context, task Task) time.Duration {
	last, err := m.logs.Latest(ctx, task.Name)
	if err != nil {
		m.logger.Warn("実行ログの取得に失敗しました",
			slog.String("task", task.Name),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if last == nil {
		return 0
	}
	return last.ExecutedAt.Add(task.Interval).Sub(m.now())
}

// execute はタスクを実行し、成否を実行ログに追記する。
func (m *Manager) execute(ctx context.Context, e *entry) error {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	start := m.now()
	m.logger.Info("タスクを実行します", slog.String("task", e.task.Name))

	runErr := e.task.Run(ctx)

	record := &model.TaskExecutionRecord{
		TaskName:   e.task.Name,
		Status:     model.TaskStatusSuccess,
		ExecutedAt: m.now(),
	}
	if runErr != nil {
		record.Status = model.TaskStatusError
		record.Error = runErr.Error()
		m.logger.Error("タスクの実行に失敗しました",
			slog.String("task", e.task.Name),
			slog.String("error", runErr.Error()),
		)
	} else {
		m.logger.Info("タスクが完了しました",
			slog.String("task", e.task.Name),
			slog.Duration("duration", m.now().Sub(start)),
		)
	}
	m.metrics.RecordTaskRun(e.task.Name, runErr == nil)

	if err := m.logs.Append(ctx, record); err != nil {
		m.logger.Error("実行ログの追記に失敗しました",
			slog.String("task", e.task.Name),
			slog.String("error", err.Error()),
		)
		if runErr == nil {
			return err
		}
	}
	return runErr
}
