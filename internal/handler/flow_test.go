package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hitoshi/supporthub/internal/apiclient"
	"github.com/hitoshi/supporthub/internal/auth"
	"github.com/hitoshi/supporthub/internal/model"
	"github.com/hitoshi/supporthub/internal/repository"
)

// fakeBackend はログインとタスク一覧を提供するテスト用バックエンド。
// revokedがtrueの間は認証必須の呼び出しに401を返す。
type fakeBackend struct {
	revoked    atomic.Bool
	auth       atomic.Value // 最後に受け取ったAuthorizationヘッダー
	loginToken atomic.Value // ログイン時に発行するトークン。未設定なら"T"
	// beforeTasks はGET /tasksの応答前に呼ばれる
	beforeTasks func()
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/login":
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.com" || body["password"] != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid credentials"})
			return
		}
		token := "T"
		if v, ok := b.loginToken.Load().(string); ok && v != "" {
			token = v
		}
		json.NewEncoder(w).Encode(map[string]string{"token": token, "user_id": "42", "name": "Ann"})
	case r.Method == http.MethodGet && r.URL.Path == "/tasks":
		b.auth.Store(r.Header.Get("Authorization"))
		if b.beforeTasks != nil {
			b.beforeTasks()
		}
		if b.revoked.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Token expired"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"tasks": []map[string]any{
			{"task_id": "t1", "title": "Email triage", "status": "running"},
		}})
	default:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "not found"})
	}
}

// newFlowRouter は実際のゲート・APIクライアント・ファイル保存を組み合わせたルーターを返す。
func newFlowRouter(t *testing.T) (http.Handler, *auth.Gate, *fakeBackend, *repository.FileSessionRepo) {
	t.Helper()
	backend := &fakeBackend{}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := apiclient.Config{BaseURL: server.URL, HTTPClient: server.Client(), AuthScheme: "Bearer"}
	authClient, err := apiclient.NewAuthClient(cfg)
	if err != nil {
		t.Fatalf("NewAuthClient() error: %v", err)
	}
	store, err := repository.NewFileSessionRepo(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatalf("NewFileSessionRepo() error: %v", err)
	}
	gate := auth.NewGate(authClient, store, auth.GateConfig{})
	if err := gate.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	client, err := apiclient.NewClient(cfg, gate)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}

	router := NewRouter(&RouterDeps{
		Gate:           gate,
		TaskService:    client,
		LogService:     client,
		ProfileService: client,
		Renderer:       renderer,
	})
	return router, gate, backend, store
}

func TestFlow_LoginThenForcedExpiry(t *testing.T) {
	router, gate, backend, store := newFlowRouter(t)
	ctx := context.Background()

	// 未認証ではダッシュボードに入れない
	if w := get(router, "/dashboard"); w.Header().Get("Location") != "/login" {
		t.Fatalf("anonymous /dashboard Location = %q, want /login", w.Header().Get("Location"))
	}

	login := postForm(router, "/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})
	if login.Code != http.StatusSeeOther || login.Header().Get("Location") != "/dashboard" {
		t.Fatalf("login = %d %q, want 303 /dashboard", login.Code, login.Header().Get("Location"))
	}
	if s := gate.Current(); s.Token != "T" || s.UserID != "42" || s.DisplayName != "Ann" {
		t.Fatalf("gate session = %+v, want T/42/Ann", s)
	}
	if saved, _ := store.Load(ctx); saved == nil || saved.Token != "T" {
		t.Fatalf("persisted session = %+v, want token T", saved)
	}

	dashboard := get(router, "/dashboard")
	if dashboard.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, want %d", dashboard.Code, http.StatusOK)
	}
	if got, _ := backend.auth.Load().(string); got != "Bearer T" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer T")
	}

	// バックエンドがトークンを拒否し始める
	backend.revoked.Store(true)

	tasks := get(router, "/tasks")
	if tasks.Code != http.StatusSeeOther || tasks.Header().Get("Location") != "/login" {
		t.Fatalf("tasks after revoke = %d %q, want 303 /login", tasks.Code, tasks.Header().Get("Location"))
	}
	if gate.IsAuthenticated() {
		t.Error("gate should be anonymous after a 401")
	}
	if saved, _ := store.Load(ctx); saved != nil {
		t.Errorf("persisted session = %+v, want cleared", saved)
	}

	if w := get(router, "/dashboard"); w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Errorf("/dashboard after expiry = %d %q, want 302 /login", w.Code, w.Header().Get("Location"))
	}

	// 失効の通知がログイン画面に表示される
	page := get(router, "/login", responseCookie(tasks, flashCookieName))
	if toast := toastText(parseHTML(t, page)); !strings.Contains(toast, "Session expired") {
		t.Errorf("toast = %q, want Session expired", toast)
	}
}

func TestFlow_StaleUnauthorized_KeepsNewerLogin(t *testing.T) {
	router, gate, backend, store := newFlowRouter(t)
	ctx := context.Background()

	postForm(router, "/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})
	if got := gate.Token(); got != "T" {
		t.Fatalf("token = %q, want T", got)
	}

	// 古いトークンの呼び出しが401を受ける前に再ログインが完了する
	backend.revoked.Store(true)
	backend.loginToken.Store("T2")
	backend.beforeTasks = func() {
		if _, err := gate.Login(ctx, model.LoginCredentials{Email: "a@b.com", Password: "secret1"}); err != nil {
			t.Errorf("Login() error: %v", err)
		}
	}

	get(router, "/tasks")

	if got, _ := backend.auth.Load().(string); got != "Bearer T" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer T")
	}
	if s := gate.Current(); s.Token != "T2" {
		t.Errorf("gate token = %q, want T2", s.Token)
	}
	if saved, _ := store.Load(ctx); saved == nil || saved.Token != "T2" {
		t.Errorf("persisted session = %+v, want token T2", saved)
	}
}

func TestFlow_RejectedLogin_StaysAnonymous(t *testing.T) {
	router, gate, _, store := newFlowRouter(t)

	w := postForm(router, "/login", url.Values{"email": {"a@b.com"}, "password": {"wrong-pw"}})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if toast := toastText(parseHTML(t, w)); !strings.Contains(toast, "Invalid credentials") {
		t.Errorf("toast = %q, want Invalid credentials", toast)
	}
	if gate.IsAuthenticated() {
		t.Error("gate should stay anonymous")
	}
	if saved, _ := store.Load(context.Background()); saved != nil {
		t.Errorf("persisted session = %+v, want none", saved)
	}
}

func TestFlow_SessionSurvivesRestart(t *testing.T) {
	router, _, _, store := newFlowRouter(t)

	postForm(router, "/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})

	// 同じ保存先から新しいゲートを復元する
	authClient, _ := apiclient.NewAuthClient(apiclient.Config{BaseURL: "http://127.0.0.1:1"})
	restarted := auth.NewGate(authClient, store, auth.GateConfig{})
	if err := restarted.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if s := restarted.Current(); s.Token != "T" || s.UserID != "42" || s.DisplayName != "Ann" {
		t.Errorf("restored session = %+v, want T/42/Ann", s)
	}
}
