package model

import "strings"

// タスクの状態
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusError     = "error"
)

// TaskStatuses は画面のステータスファセットに並べる状態の一覧。
var TaskStatuses = []string{
	TaskStatusPending,
	TaskStatusRunning,
	TaskStatusCompleted,
	TaskStatusError,
}

// Task はバックエンドから取得したタスクを表す。
// バックエンドが返した形をそのまま表示に使う。
type Task struct {
	ID          string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Type        string `json:"type"`
	CreatedAt   string `json:"created_at"`
	LastRun     string `json:"last_run"`
}

// TaskInput はタスク作成・更新時にバックエンドへ送るペイロード。
type TaskInput struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Schedule    string `json:"schedule,omitempty"`
	Notify      bool   `json:"notify"`
	AutoRetry   bool   `json:"auto_retry"`
	Status      string `json:"status,omitempty"`
}

// TaskFilter はタスク一覧の検索条件。
type TaskFilter struct {
	Query  string
	Status string // 空文字列または"all"は全件
}

// TaskSummary はダッシュボードのカードに表示する集計値。
type TaskSummary struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Error     int
}

// AIRunResult はAI実行APIのレスポンス。
type AIRunResult struct {
	Message    string `json:"message"`
	AIResponse string `json:"ai_response"`
}

// IsValidTaskStatus は状態値がタスクの状態として有効かを返す。
func IsValidTaskStatus(status string) bool {
	for _, s := range TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// FilterTasks は検索語とステータスでタスクを絞り込む。
// 検索語はタイトルまたは説明への大文字小文字を区別しない部分一致。
func FilterTasks(tasks []Task, filter TaskFilter) []Task {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	result := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !matchesFacet(t.Status, filter.Status) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(t.Title), query) &&
			!strings.Contains(strings.ToLower(t.Description), query) {
			continue
		}
		result = append(result, t)
	}
	return result
}

// SummarizeTasks は状態ごとのタスク数を集計する。
func SummarizeTasks(tasks []Task) TaskSummary {
	summary := TaskSummary{Total: len(tasks)}
	for _, t := range tasks {
		switch strings.ToLower(t.Status) {
		case TaskStatusPending:
			summary.Pending++
		case TaskStatusRunning:
			summary.Running++
		case TaskStatusCompleted:
			summary.Completed++
		case TaskStatusError:
			summary.Error++
		}
	}
	return summary
}

// matchesFacet はファセット値（空または"all"で全件）に一致するかを返す。
func matchesFacet(value, facet string) bool {
	facet = strings.TrimSpace(facet)
	if facet == "" || strings.EqualFold(facet, "all") {
		return true
	}
	return strings.EqualFold(value, facet)
}
