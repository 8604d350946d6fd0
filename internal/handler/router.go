package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/supporthub/internal/middleware"
	"github.com/hitoshi/supporthub/internal/route"
	"github.com/hitoshi/supporthub/internal/security"
)

// Gate はルーターが必要とするセッションゲートのインターフェース。
type Gate interface {
	SessionGate
	middleware.SessionReader
}

// HealthChecker はセッション保存先の疎通を確認する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger           *slog.Logger
	RateLimiter      *middleware.RateLimiter
	CSRFConfig       middleware.CSRFConfig
	DecisionRecorder middleware.DecisionRecorder

	// セッション
	Gate Gate

	// バックエンドAPI
	TaskService    TaskServiceInterface
	LogService     LogServiceInterface
	ProfileService ProfileServiceInterface

	// 描画
	Renderer  *Renderer
	Sanitizer security.ContentSanitizerService

	// 運用エンドポイント（nilの場合は登録しない、またはチェックを省略する）
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全画面のルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → SecurityHeaders → RateLimit(General) → RouteGuard → CSRF
//
// /health と /metrics はルートガードとCSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewContentSanitizer()
	}

	v := &views{
		renderer:     deps.Renderer,
		sessions:     deps.Gate,
		cookieSecure: deps.CSRFConfig.CookieSecure,
	}
	authHandler := NewAuthHandler(v, deps.Gate)
	taskHandler := NewTaskHandler(v, deps.TaskService, sanitizer)
	logHandler := NewLogHandler(v, deps.LogService, sanitizer)
	profileHandler := NewProfileHandler(v, deps.ProfileService)

	guard := middleware.NewRouteGuardMiddleware(deps.Gate, deps.DecisionRecorder)
	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.GeneralMiddleware())
	}

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 未定義のパスとメソッドもルートガードを通す。
	// 保護対象のサブパス(/dashboard/x など)は未認証なら/loginへ転送される。
	r.NotFound(guard(csrf(http.HandlerFunc(v.NotFound))).ServeHTTP)
	r.MethodNotAllowed(guard(http.HandlerFunc(methodNotAllowed)).ServeHTTP)

	// --- 画面 ---
	// ミドルウェアスタック: RouteGuard → CSRF
	r.Group(func(r chi.Router) {
		r.Use(guard)
		r.Use(csrf)

		// ルートは常にルートガードがリダイレクトする
		r.Get(route.Root, v.NotFound)

		// 未認証専用
		authLimited := r.With(authRateLimit(deps.RateLimiter))
		r.Get(route.Login, authHandler.LoginForm)
		authLimited.Post(route.Login, authHandler.Login)
		r.Get(route.Signup, authHandler.SignupForm)
		authLimited.Post(route.Signup, authHandler.Signup)

		// 認証必須
		r.Post("/logout", authHandler.Logout)
		r.Get(route.Dashboard, taskHandler.Dashboard)
		r.Route(route.Tasks, func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			r.Post("/{id}/status", taskHandler.UpdateStatus)
			r.Post("/{id}/delete", taskHandler.Delete)
		})
		r.Get(route.CreateTask, taskHandler.CreateTaskForm)
		r.Post(route.CreateTask, taskHandler.CreateTask)
		r.Get(route.RunAI, taskHandler.RunAIForm)
		r.Post(route.RunAI, taskHandler.RunAI)
		r.Get(route.Logs, logHandler.ListLogs)
		r.Get(route.Profile, profileHandler.Profile)

		r.Get("/api/session", profileHandler.Session)
	})

	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

// authRateLimit はログイン・サインアップ送信用のレート制限を返す。
// リミッターが未設定の場合は何もしない。
func authRateLimit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.AuthMiddleware()
}

// healthHandler はGET /healthのハンドラーを返す。
// checkerが設定されている場合はセッション保存先への疎通も確認する。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}

		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				status = http.StatusServiceUnavailable
				body["status"] = "unavailable"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}
