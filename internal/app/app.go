package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/supporthub/internal/apiclient"
	"github.com/hitoshi/supporthub/internal/auth"
	"github.com/hitoshi/supporthub/internal/config"
	"github.com/hitoshi/supporthub/internal/database"
	"github.com/hitoshi/supporthub/internal/handler"
	"github.com/hitoshi/supporthub/internal/logger"
	"github.com/hitoshi/supporthub/internal/metrics"
	"github.com/hitoshi/supporthub/internal/middleware"
	"github.com/hitoshi/supporthub/internal/repository"
	"github.com/hitoshi/supporthub/internal/security"
	"github.com/hitoshi/supporthub/internal/worker/expiry"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// initStore はセッションストアの操作だけを行うコマンド向けの初期化。
// API_BASE_URLなどサーバー専用の設定は要求しない。
func initStore(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.LoadStore()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// sessionStore は設定から組み立てたセッションストアとその付随リソース。
type sessionStore struct {
	repo repository.SessionRepository
	// health は/healthで疎通確認する対象。ファイルストアではnil。
	health handler.HealthChecker
	close  func() error
}

// openStore はSESSION_STOREに応じたセッションストアを開く。
func openStore(ctx context.Context, cfg *config.Config) (*sessionStore, error) {
	switch cfg.SessionStore {
	case config.SessionStoreSQLite:
		repo, err := repository.OpenSQLiteSessionRepo(cfg.SessionSQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite session store: %w", err)
		}
		slog.Info("session store opened",
			slog.String("store", cfg.SessionStore),
			slog.String("path", cfg.SessionSQLitePath),
		)
		return &sessionStore{repo: repo, health: repo, close: repo.Close}, nil

	case config.SessionStorePostgres:
		db, err := database.OpenContext(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return &sessionStore{repo: repository.NewPostgresSessionRepo(db), health: db, close: db.Close}, nil

	default:
		repo, err := repository.NewFileSessionRepo(cfg.SessionFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open session file: %w", err)
		}
		slog.Info("session store opened",
			slog.String("store", config.SessionStoreFile),
			slog.String("path", repo.Path()),
		)
		return &sessionStore{repo: repo, close: func() error { return nil }}, nil
	}
}

// runServe はダッシュボードサーバーを起動する。
// セッションストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. セッションストア
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. バックエンドAPIクライアント
	apiCfg := apiclient.Config{
		BaseURL:    cfg.APIBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
		Logger:     slog.Default(),
		Observer:   collector,
		AuthScheme: cfg.AuthScheme(),
	}
	authClient, err := apiclient.NewAuthClient(apiCfg)
	if err != nil {
		return fmt.Errorf("failed to create auth client: %w", err)
	}

	// 4. セッションゲート
	gate := auth.NewGate(authClient, store.repo, auth.GateConfig{
		PasswordMinLength: cfg.PasswordMinLength,
		Recorder:          collector,
	})
	unsubscribe := gate.Subscribe(sessionEventLogger(collector))
	defer unsubscribe()

	if err := gate.Restore(ctx); err != nil {
		// 読めない場合は未認証として起動を続ける
		slog.Warn("failed to restore session", slog.String("error", err.Error()))
	}

	// 期限切れトークンの失効ジョブをバックグラウンドで起動
	if cfg.SessionExpiryCheckInterval > 0 {
		expiryJob := expiry.NewExpiryJob(gate, apiclient.TokenExpired, slog.Default())
		go expiryJob.Start(ctx, cfg.SessionExpiryCheckInterval)
	}

	apiClient, err := apiclient.NewClient(apiCfg, gate)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	// 5. ルーターの構築
	renderer, err := handler.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:           slog.Default(),
		RateLimiter:      rateLimiter,
		CSRFConfig:       middleware.CSRFConfig{CookieSecure: cfg.CookieSecure},
		DecisionRecorder: collector,

		Gate: gate,

		TaskService:    apiClient,
		LogService:     apiClient,
		ProfileService: apiClient,

		Renderer:  renderer,
		Sanitizer: security.NewContentSanitizer(),

		HealthChecker:  store.health,
		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dashboard server starting",
			slog.String("addr", server.Addr),
			slog.String("api_base_url", cfg.APIBaseURL),
			slog.Bool("authenticated", gate.IsAuthenticated()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down dashboard server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("dashboard server stopped gracefully")
	return nil
}

// sessionEventLogger はセッション状態の変化をログとメトリクスに記録する購読関数を返す。
func sessionEventLogger(collector metrics.MetricsCollector) func(auth.Event) {
	return func(ev auth.Event) {
		collector.RecordSessionTransition(string(ev.Reason), ev.Authenticated())

		attrs := []any{
			slog.String("reason", string(ev.Reason)),
			slog.Bool("authenticated", ev.Authenticated()),
		}
		if ev.Authenticated() {
			attrs = append(attrs, slog.String("user_id", ev.Session.UserID))
		}
		if ev.Reason == auth.ReasonExpired {
			slog.Warn("session expired", attrs...)
			return
		}
		slog.Info("session changed", attrs...)
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
// PostgreSQL以外のストアはマイグレーション不要のため何もしない。
func runMigrate(cfg *config.Config) error {
	if cfg.SessionStore != config.SessionStorePostgres {
		slog.Info("session store does not use migrations",
			slog.String("store", cfg.SessionStore),
		)
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(host, port string) error {
	url := fmt.Sprintf("http://%s/health", net.JoinHostPort(host, port))
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckTarget はヘルスチェックの接続先を環境変数から決める。
// 待ち受けが全インターフェースの場合はループバックに接続する。
func healthcheckTarget() (host, port string) {
	host = os.Getenv("SERVER_HOST")
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	port = os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return host, port
}

// runStatus は永続化済みのセッション状態を表示する。
// トークンそのものは表示しない。
func runStatus(w io.Writer, cfg *config.Config) error {
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	gate := auth.NewGate(nil, store.repo, auth.GateConfig{PasswordMinLength: cfg.PasswordMinLength})
	if err := gate.Restore(ctx); err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	fmt.Fprintf(w, "Store: %s\n", cfg.SessionStore)
	if cfg.SessionStore == config.SessionStorePostgres {
		if version, err := database.SchemaVersion(cfg.DatabaseURL); err != nil {
			fmt.Fprintf(w, "Schema: unknown (%v)\n", err)
		} else {
			fmt.Fprintf(w, "Schema: v%d\n", version)
		}
	}

	session := gate.Current()
	if !session.IsAuthenticated() {
		fmt.Fprintln(w, "Session: not signed in")
		return nil
	}

	fmt.Fprintln(w, "Session: signed in")
	fmt.Fprintf(w, "  User ID: %s\n", session.UserID)
	if session.DisplayName != "" {
		fmt.Fprintf(w, "  Name:    %s\n", session.DisplayName)
	}
	if claims, err := apiclient.ParseTokenClaims(session.Token); err == nil && !claims.ExpiresAt.IsZero() {
		state := "valid"
		if apiclient.TokenExpired(session.Token, time.Now()) {
			state = "expired"
		}
		fmt.Fprintf(w, "  Expires: %s (%s)\n", claims.ExpiresAt.UTC().Format(time.RFC3339), state)
	}
	return nil
}

// runLogout は永続化済みのセッションを消去する。
// バックエンドは呼ばず、保存済みのスロットのみを解放する。
func runLogout(w io.Writer, cfg *config.Config) error {
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	gate := auth.NewGate(nil, store.repo, auth.GateConfig{PasswordMinLength: cfg.PasswordMinLength})
	if err := gate.Restore(ctx); err != nil {
		slog.Warn("failed to read session before logout", slog.String("error", err.Error()))
	}
	wasAuthenticated := gate.IsAuthenticated()

	if err := gate.Release(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	if wasAuthenticated {
		fmt.Fprintln(w, "Signed out.")
	} else {
		fmt.Fprintln(w, "No stored session.")
	}
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
