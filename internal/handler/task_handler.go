package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/metachan/internal/middleware"
	"github.com/hitoshi/metachan/internal/model"
)

// TaskStatusReader は定期タスクの状態を返すインターフェース。
type TaskStatusReader interface {
	GetAllTaskStatuses(ctx context.Context) ([]model.TaskStatus, error)
}

// TaskHandler は定期タスク状態のHTTPハンドラー。
type TaskHandler struct {
	tasks  TaskStatusReader
	logger *slog.Logger
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(tasks TaskStatusReader, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{tasks: tasks, logger: logger}
}

// taskStatusResponse はタスク状態のAPIレスポンス。
type taskStatusResponse struct {
	Name       string     `json:"name"`
	Registered bool       `json:"registered"`
	Running    bool       `json:"running"`
	Interval   string     `json:"interval"`
	LastRun    *time.Time `json:"lastRun"`
	LastStatus string     `json:"lastStatus,omitempty"`
	NextRun    *time.Time `json:"nextRun"`
}

// ListTasks は登録済みタスクの状態一覧を返す。
// GET /tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.tasks.GetAllTaskStatuses(r.Context())
	if err != nil {
		h.logger.Error("failed to read task statuses", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	resp := make([]taskStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		resp = append(resp, taskStatusResponse{
			Name:       s.Name,
			Registered: s.Registered,
			Running:    s.Running,
			Interval:   s.Interval.String(),
			LastRun:    s.LastRun,
			LastStatus: string(s.LastStatus),
			NextRun:    s.NextRun,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": resp})
}
