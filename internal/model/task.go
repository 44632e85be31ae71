package model

import "time"

// TaskExecutionStatus はタスク実行結果の状態。
type TaskExecutionStatus string

const (
	TaskStatusSuccess TaskExecutionStatus = "success"
	TaskStatusError   TaskExecutionStatus = "error"
)

// TaskExecutionRecord はタスク実行ログの1行。追記のみで更新しない。
type TaskExecutionRecord struct {
	ID         string
	TaskName   string
	Status     TaskExecutionStatus
	Error      string
	ExecutedAt time.Time
}

// TaskStatus はタスクの現在状態。
type TaskStatus struct {
	Name       string        `json:"name"`
	Registered bool          `json:"registered"`
	Running    bool          `json:"running"`
	Interval   time.Duration `json:"interval"`
	LastRun    *time.Time    `json:"lastRun,omitempty"`
	LastStatus string        `json:"lastStatus,omitempty"`
	NextRun    *time.Time    `json:"nextRun,omitempty"`
}
