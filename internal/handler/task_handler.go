package handler

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/supporthub/internal/model"
	"github.com/hitoshi/supporthub/internal/route"
	"github.com/hitoshi/supporthub/internal/security"
)

// recentTaskLimit はダッシュボードに表示する直近タスクの件数。
const recentTaskLimit = 5

// TaskServiceInterface はタスク画面が必要とするAPIクライアントのインターフェース。
type TaskServiceInterface interface {
	ListTasks(ctx context.Context, status string) ([]model.Task, error)
	CreateTask(ctx context.Context, input model.TaskInput) (string, error)
	UpdateTask(ctx context.Context, id string, input model.TaskInput) error
	DeleteTask(ctx context.Context, id string) error
	RunAI(ctx context.Context, id string) (*model.AIRunResult, error)
}

// option はセレクトボックスの選択肢。
type option struct {
	Value string
	Label string
}

var (
	taskTypes = []option{
		{Value: "classification", Label: "Classification"},
		{Value: "summary", Label: "Summarization"},
		{Value: "translation", Label: "Translation"},
		{Value: "custom", Label: "Custom"},
	}
	taskPriorities = []option{
		{Value: "low", Label: "Low"},
		{Value: "medium", Label: "Medium"},
		{Value: "high", Label: "High"},
	}
	taskSchedules = []option{
		{Value: "manual", Label: "Manual"},
		{Value: "daily", Label: "Daily"},
		{Value: "weekly", Label: "Weekly"},
	}
)

// --- 画面データ ---

type dashboardView struct {
	Summary model.TaskSummary
	Recent  []model.Task
}

type tasksView struct {
	Query    string
	Status   string
	Statuses []string
	Tasks    []model.Task
}

type createTaskView struct {
	Input      model.TaskInput
	Errors     map[string]string
	Types      []option
	Priorities []option
	Schedules  []option
}

type runAIView struct {
	Tasks    []model.Task
	Selected string
	Errors   map[string]string
	Result   *model.AIRunResult
	Response template.HTML
}

// TaskHandler はダッシュボード・タスク一覧・タスク作成・AI実行のHTTPハンドラー。
type TaskHandler struct {
	*views
	service   TaskServiceInterface
	sanitizer security.ContentSanitizerService
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(v *views, service TaskServiceInterface, sanitizer security.ContentSanitizerService) *TaskHandler {
	return &TaskHandler{views: v, service: service, sanitizer: sanitizer}
}

// Dashboard はタスクの集計と直近のタスクを表示する。
// GET /dashboard
func (h *TaskHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	view := &dashboardView{}

	tasks, err := h.service.ListTasks(r.Context(), "")
	if err != nil {
		status, toast, handled := h.handleServiceError(w, r, err, "Could not load tasks")
		if handled {
			return
		}
		h.render(w, r, status, pageDashboard, "Dashboard", view, toast)
		return
	}

	view.Summary = model.SummarizeTasks(tasks)
	view.Recent = tasks
	if len(view.Recent) > recentTaskLimit {
		view.Recent = view.Recent[:recentTaskLimit]
	}
	h.render(w, r, http.StatusOK, pageDashboard, "Dashboard", view, nil)
}

// ListTasks はタスク一覧を検索語とステータスで絞り込んで表示する。
// ステータスはAPIにも渡し、検索語は取得後に絞り込む。
// GET /tasks?q=&status=
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := model.TaskFilter{
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
	}
	view := &tasksView{
		Query:    filter.Query,
		Status:   filter.Status,
		Statuses: model.TaskStatuses,
	}

	tasks, err := h.service.ListTasks(r.Context(), filter.Status)
	if err != nil {
		status, toast, handled := h.handleServiceError(w, r, err, "Could not load tasks")
		if handled {
			return
		}
		h.render(w, r, status, pageTasks, "Task List", view, toast)
		return
	}

	view.Tasks = model.FilterTasks(tasks, filter)
	h.render(w, r, http.StatusOK, pageTasks, "Task List", view, nil)
}

// UpdateStatus はタスクの状態を更新して一覧へ戻る。
// POST /tasks/{id}/status
func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	status := strings.TrimSpace(r.PostFormValue("status"))

	if !model.IsValidTaskStatus(status) {
		h.redirect(w, r, route.Tasks, &Toast{
			Title:       "Invalid status",
			Description: "Choose one of: " + strings.Join(model.TaskStatuses, ", ") + ".",
			Variant:     toastDestructive,
		})
		return
	}

	if err := h.service.UpdateTask(r.Context(), taskID, model.TaskInput{Status: status}); err != nil {
		h.redirectWithError(w, r, err, "Could not update task")
		return
	}

	h.redirect(w, r, route.Tasks, &Toast{
		Title:       "Task updated",
		Description: "Task status changed to " + status + ".",
		Variant:     toastSuccess,
	})
}

// Delete はタスクを削除して一覧へ戻る。
// POST /tasks/{id}/delete
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	if err := h.service.DeleteTask(r.Context(), taskID); err != nil {
		h.redirectWithError(w, r, err, "Could not delete task")
		return
	}

	h.redirect(w, r, route.Tasks, &Toast{
		Title:       "Task deleted",
		Description: "The task has been removed.",
		Variant:     toastSuccess,
	})
}

// CreateTaskForm はタスク作成画面を表示する。
// GET /create-task
func (h *TaskHandler) CreateTaskForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageCreateTask, "Create Task", newCreateTaskView(model.TaskInput{}, nil), nil)
}

// CreateTask はタスク作成フォームを処理する。
// action=runの場合は作成と同時に実行状態にする。成功時はフォームを空にし、失敗時は入力値を保持する。
// POST /create-task
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	action := r.PostFormValue("action")
	input := model.TaskInput{
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Type:        strings.TrimSpace(r.PostFormValue("type")),
		Priority:    strings.TrimSpace(r.PostFormValue("priority")),
		Schedule:    strings.TrimSpace(r.PostFormValue("schedule")),
		Notify:      r.PostFormValue("notify") != "",
		AutoRetry:   r.PostFormValue("auto_retry") != "",
		Status:      model.TaskStatusPending,
	}
	if action == "run" {
		input.Status = model.TaskStatusRunning
	}

	if fields := validateTaskInput(input); len(fields) > 0 {
		toast := &Toast{Title: "Missing Required Fields", Description: "Task Name and Type are required.", Variant: toastDestructive}
		if input.Title != "" && input.Type != "" {
			toast = &Toast{Title: "Invalid task", Description: "Some fields are invalid.", Variant: toastDestructive}
		}
		h.render(w, r, http.StatusUnprocessableEntity, pageCreateTask, "Create Task", newCreateTaskView(input, fields), toast)
		return
	}

	taskID, err := h.service.CreateTask(r.Context(), input)
	if err != nil {
		status, toast, handled := h.handleServiceError(w, r, err, "Error creating task")
		if handled {
			return
		}
		h.render(w, r, status, pageCreateTask, "Create Task", newCreateTaskView(input, fieldErrors(err)), toast)
		return
	}

	slog.Info("task created", slog.String("task_id", taskID), slog.String("status", input.Status))

	description := "Task has been saved as draft."
	if input.Status == model.TaskStatusRunning {
		description = "Task has been started."
	}
	h.render(w, r, http.StatusOK, pageCreateTask, "Create Task", newCreateTaskView(model.TaskInput{}, nil), &Toast{
		Title:       "Task Created Successfully",
		Description: description,
		Variant:     toastSuccess,
	})
}

// RunAIForm はAI実行画面を表示する。
// GET /run-ai
func (h *TaskHandler) RunAIForm(w http.ResponseWriter, r *http.Request) {
	view := &runAIView{Selected: r.URL.Query().Get("task_id")}

	tasks, err := h.service.ListTasks(r.Context(), "")
	if err != nil {
		status, toast, handled := h.handleServiceError(w, r, err, "Could not load tasks")
		if handled {
			return
		}
		h.render(w, r, status, pageRunAI, "Run AI", view, toast)
		return
	}

	view.Tasks = tasks
	h.render(w, r, http.StatusOK, pageRunAI, "Run AI", view, nil)
}

// RunAI は選択したタスクのAI実行を依頼し、サニタイズ済みの応答を表示する。
// POST /run-ai
func (h *TaskHandler) RunAI(w http.ResponseWriter, r *http.Request) {
	view := &runAIView{Selected: strings.TrimSpace(r.PostFormValue("task_id"))}

	tasks, err := h.service.ListTasks(r.Context(), "")
	if err != nil {
		status, toast, handled := h.handleServiceError(w, r, err, "Could not load tasks")
		if handled {
			return
		}
		h.render(w, r, status, pageRunAI, "Run AI", view, toast)
		return
	}
	view.Tasks = tasks

	if view.Selected == "" {
		view.Errors = map[string]string{"task_id": "Please select a task"}
		h.render(w, r, http.StatusUnprocessableEntity, pageRunAI, "Run AI", view, &Toast{
			Title:       "Missing Information",
			Description: "Please select a task to run.",
			Variant:     toastDestructive,
		})
		return
	}

	result, err := h.service.RunAI(r.Context(), view.Selected)
	if err != nil {
		status, toast, handled := h.handleServiceError(w, r, err, "Error")
		if handled {
			return
		}
		view.Errors = fieldErrors(err)
		h.render(w, r, status, pageRunAI, "Run AI", view, toast)
		return
	}

	view.Result = result
	view.Response = h.sanitizer.SanitizeHTML(result.AIResponse)
	h.render(w, r, http.StatusOK, pageRunAI, "Run AI", view, &Toast{
		Title:       "AI Processing Complete",
		Description: "Your request has been processed successfully.",
		Variant:     toastSuccess,
	})
}

// redirectWithError は一覧画面へ戻るPOST操作の失敗を通知する。
func (h *TaskHandler) redirectWithError(w http.ResponseWriter, r *http.Request, err error, title string) {
	_, toast, handled := h.handleServiceError(w, r, err, title)
	if handled {
		return
	}
	h.redirect(w, r, route.Tasks, toast)
}

func newCreateTaskView(input model.TaskInput, errors map[string]string) *createTaskView {
	return &createTaskView{
		Input:      input,
		Errors:     errors,
		Types:      taskTypes,
		Priorities: taskPriorities,
		Schedules:  taskSchedules,
	}
}

// validateTaskInput はタスク作成フォームを検証する。タイトルと種別は必須。
func validateTaskInput(input model.TaskInput) map[string]string {
	fields := map[string]string{}
	if input.Title == "" {
		fields["title"] = "Task name is required"
	}
	if input.Type == "" {
		fields["type"] = "Task type is required"
	} else if !hasOption(taskTypes, input.Type) {
		fields["type"] = "Unknown task type"
	}
	if input.Priority != "" && !hasOption(taskPriorities, input.Priority) {
		fields["priority"] = "Unknown priority"
	}
	if input.Schedule != "" && !hasOption(taskSchedules, input.Schedule) {
		fields["schedule"] = "Unknown schedule"
	}
	return fields
}

func hasOption(options []option, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}
