package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/supporthub/internal/model"
)

// SessionSource は認証済みの呼び出しに使うトークンの取得元。
// 401を受けた場合は送信したトークンを指定してExpireTokenで強制ログアウトする。
// 既に別のトークンへ置き換わっている場合は何もしないことが期待される。
type SessionSource interface {
	Token() string
	ExpireToken(ctx context.Context, token string) (bool, error)
}

// Client はタスク・ログ・プロフィールなど認証済みAPIのクライアント。
type Client struct {
	t       *transport
	session SessionSource
	now     func() time.Time
}

// NewClient はClientを生成する。
func NewClient(cfg Config, session SessionSource) (*Client, error) {
	if session == nil {
		return nil, fmt.Errorf("session source is required")
	}
	t, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{t: t, session: session, now: time.Now}, nil
}

// ListTasks はGET /tasksでタスク一覧を取得する。statusが空または"all"の場合は全件。
func (c *Client) ListTasks(ctx context.Context, status string) ([]model.Task, error) {
	query := url.Values{}
	if s := strings.TrimSpace(status); s != "" && !strings.EqualFold(s, "all") {
		query.Set("status", s)
	}

	resp, err := c.call(ctx, http.MethodGet, "tasks.list", "/tasks", query, nil)
	if err != nil {
		return nil, err
	}

	// {"tasks": [...]} と素の配列の両方を受け付ける
	var wrapped struct {
		Tasks []model.Task `json:"tasks"`
	}
	if err := json.Unmarshal(resp.body, &wrapped); err == nil {
		if wrapped.Tasks == nil {
			return []model.Task{}, nil
		}
		return wrapped.Tasks, nil
	}
	var tasks []model.Task
	if err := json.Unmarshal(resp.body, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

// CreateTask はPOST /tasksでタスクを作成し、作成されたタスクIDを返す。
func (c *Client) CreateTask(ctx context.Context, input model.TaskInput) (string, error) {
	resp, err := c.call(ctx, http.MethodPost, "tasks.create", "/tasks", nil, input)
	if err != nil {
		return "", err
	}
	var created struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(resp.body, &created); err != nil {
		c.t.logger.Warn("create task response is not valid JSON", slog.String("error", err.Error()))
	}
	return created.TaskID, nil
}

// UpdateTask はPUT /tasks/{id}でタスクを更新する。
func (c *Client) UpdateTask(ctx context.Context, id string, input model.TaskInput) error {
	if strings.TrimSpace(id) == "" {
		return model.NewValidationError(map[string]string{"task_id": "Task is required"})
	}
	_, err := c.call(ctx, http.MethodPut, "tasks.update", "/tasks/"+url.PathEscape(id), nil, input)
	return err
}

// DeleteTask はDELETE /tasks/{id}でタスクを削除する。
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return model.NewValidationError(map[string]string{"task_id": "Task is required"})
	}
	_, err := c.call(ctx, http.MethodDelete, "tasks.delete", "/tasks/"+url.PathEscape(id), nil, nil)
	return err
}

// RunAI はPOST /tasks/{id}/run-aiでAI実行を依頼する。
func (c *Client) RunAI(ctx context.Context, id string) (*model.AIRunResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, model.NewValidationError(map[string]string{"task_id": "Please select a task"})
	}
	resp, err := c.call(ctx, http.MethodPost, "tasks.run_ai", "/tasks/"+url.PathEscape(id)+"/run-ai", nil, nil)
	if err != nil {
		return nil, err
	}
	var result model.AIRunResult
	if err := json.Unmarshal(resp.body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode ai result: %w", err)
	}
	return &result, nil
}

// ListLogs はGET /logsで実行ログを取得する。404はログなしとして空を返す。
func (c *Client) ListLogs(ctx context.Context) ([]model.LogEntry, error) {
	resp, err := c.call(ctx, http.MethodGet, "logs.list", "/logs", nil, nil)
	if err != nil {
		if model.CodeOf(err) == model.ErrCodeNotFound {
			return []model.LogEntry{}, nil
		}
		return nil, err
	}

	var logs []model.LogEntry
	if err := json.Unmarshal(resp.body, &logs); err == nil {
		return logs, nil
	}
	var wrapped struct {
		Logs []model.LogEntry `json:"logs"`
	}
	if err := json.Unmarshal(resp.body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode logs: %w", err)
	}
	if wrapped.Logs == nil {
		return []model.LogEntry{}, nil
	}
	return wrapped.Logs, nil
}

// GetProfile はGET /profileでプロフィールを取得する。
func (c *Client) GetProfile(ctx context.Context) (*model.Profile, error) {
	resp, err := c.call(ctx, http.MethodGet, "profile.get", "/profile", nil, nil)
	if err != nil {
		return nil, err
	}
	var profile model.Profile
	if err := json.Unmarshal(resp.body, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &profile, nil
}

// call は認証済みの呼び出しを行う。
// トークンがない、期限切れ、または401を受けた場合はセッションを失効させてSessionExpiredを返す。
func (c *Client) call(ctx context.Context, method, endpoint, path string, query url.Values, in any) (*response, error) {
	token := c.session.Token()
	if token == "" {
		return nil, model.NewSessionExpiredError()
	}
	if TokenExpired(token, c.now()) {
		c.t.logger.Info("token expired locally", slog.String("endpoint", endpoint))
		return nil, c.expire(ctx, token)
	}

	resp, err := c.t.do(ctx, method, endpoint, path, query, token, in)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusUnauthorized:
		return nil, c.expire(ctx, token)
	case resp.status == http.StatusNotFound:
		msg := resp.errorMessage()
		if msg == "" {
			msg = "Not found"
		}
		return nil, model.NewNotFoundError(msg)
	case !resp.ok():
		return nil, model.NewUpstreamError(resp.status, resp.errorMessage())
	}
	return resp, nil
}

// expire はtokenが現在のセッションのままであれば失効させる。
// 呼び出し中に再ログインしていた場合、新しいセッションは残す。
func (c *Client) expire(ctx context.Context, token string) error {
	released, err := c.session.ExpireToken(ctx, token)
	if err != nil {
		c.t.logger.Error("failed to expire session", slog.String("error", err.Error()))
	} else if !released {
		c.t.logger.Info("stale token rejected, session kept")
	}
	return model.NewSessionExpiredError()
}
