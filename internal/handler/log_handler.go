package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/supporthub/internal/model"
	"github.com/hitoshi/supporthub/internal/security"
)

// LogServiceInterface はログ画面が必要とするAPIクライアントのインターフェース。
type LogServiceInterface interface {
	ListLogs(ctx context.Context) ([]model.LogEntry, error)
}

var (
	logStatuses = []string{"success", "error", "warning"}
	logTypes    = []string{"ai_run", "system", "data"}
)

type logsView struct {
	Query    string
	Status   string
	Type     string
	Statuses []string
	Types    []string
	Logs     []model.LogEntry
}

// LogHandler は実行ログ画面のHTTPハンドラー。
type LogHandler struct {
	*views
	service   LogServiceInterface
	sanitizer security.ContentSanitizerService
}

// NewLogHandler はLogHandlerを生成する。
func NewLogHandler(v *views, service LogServiceInterface, sanitizer security.ContentSanitizerService) *LogHandler {
	return &LogHandler{views: v, service: service, sanitizer: sanitizer}
}

// ListLogs はログ一覧を検索語・ステータス・種別で絞り込んで表示する。
// GET /logs?q=&status=&type=
func (h *LogHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.LogFilter{
		Query:  strings.TrimSpace(q.Get("q")),
		Status: strings.TrimSpace(q.Get("status")),
		Type:   strings.TrimSpace(q.Get("type")),
	}
	view := &logsView{
		Query:    filter.Query,
		Status:   filter.Status,
		Type:     filter.Type,
		Statuses: logStatuses,
		Types:    logTypes,
	}

	logs, err := h.service.ListLogs(r.Context())
	if err != nil {
		status, toast, handled := h.handleServiceError(w, r, err, "Could not load logs")
		if handled {
			return
		}
		h.render(w, r, status, pageLogs, "Logs", view, toast)
		return
	}

	// 詳細はバックエンドが生成したHTMLを含みうるため、タグを除いたテキストとして扱う
	for i := range logs {
		logs[i].Details = h.sanitizer.SanitizeText(logs[i].Details)
	}
	view.Logs = model.FilterLogs(logs, filter)
	h.render(w, r, http.StatusOK, pageLogs, "Logs", view, nil)
}
