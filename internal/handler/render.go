package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/supporthub/internal/middleware"
	"github.com/hitoshi/supporthub/internal/model"
	"github.com/hitoshi/supporthub/internal/route"
)

//go:embed templates/*.html
var templateFS embed.FS

// 画面テンプレート名
const (
	pageLogin      = "login"
	pageSignup     = "signup"
	pageDashboard  = "dashboard"
	pageTasks      = "tasks"
	pageCreateTask = "create_task"
	pageRunAI      = "run_ai"
	pageLogs       = "logs"
	pageProfile    = "profile"
	pageNotFound   = "not_found"
)

var pageNames = []string{
	pageLogin, pageSignup, pageDashboard, pageTasks, pageCreateTask,
	pageRunAI, pageLogs, pageProfile, pageNotFound,
}

// navItem はサイドナビゲーションの1項目。
type navItem struct {
	Label  string
	Path   string
	Active bool
}

var navLinks = []navItem{
	{Label: "Dashboard", Path: route.Dashboard},
	{Label: "Task List", Path: route.Tasks},
	{Label: "Create Task", Path: route.CreateTask},
	{Label: "Run AI", Path: route.RunAI},
	{Label: "Logs", Path: route.Logs},
	{Label: "Profile", Path: route.Profile},
}

// pageData はレイアウトテンプレートに渡す共通データ。
type pageData struct {
	Title     string
	Session   model.Session
	CSRFToken string
	Toast     *Toast
	Nav       []navItem
	Data      any
}

// Renderer は埋め込みテンプレートから画面を描画する。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer はレイアウトと各画面のテンプレートを解析する。
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// views は各ハンドラーが共有する描画処理とセッション参照を保持する。
type views struct {
	renderer     *Renderer
	sessions     middleware.SessionReader
	cookieSecure bool
}

// render は画面を描画する。toastがnilの場合はフラッシュCookieの通知を表示する。
func (v *views) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any, toast *Toast) {
	tmpl, ok := v.renderer.pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if toast == nil {
		toast = popFlash(w, r, v.cookieSecure)
	}

	pd := pageData{
		Title:     title,
		Session:   v.sessions.Current(),
		CSRFToken: middleware.CSRFToken(r.Context()),
		Toast:     toast,
		Nav:       navFor(r.URL.Path),
		Data:      data,
	}

	// 途中で失敗した場合に部分的なHTMLを返さないようバッファに描画する
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", pd); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// redirect はフラッシュ通知を設定して303でリダイレクトする。
func (v *views) redirect(w http.ResponseWriter, r *http.Request, target string, toast *Toast) {
	if toast != nil {
		setFlash(w, *toast, v.cookieSecure)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func navFor(path string) []navItem {
	current := route.Normalize(path)
	items := make([]navItem, len(navLinks))
	for i, item := range navLinks {
		item.Active = item.Path == current
		items[i] = item
	}
	return items
}

// NotFound は存在しないパスに対して404画面を表示する。
func (v *views) NotFound(w http.ResponseWriter, r *http.Request) {
	v.render(w, r, http.StatusNotFound, pageNotFound, "Not found", nil, nil)
}
