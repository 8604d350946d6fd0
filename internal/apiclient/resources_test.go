package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/supporthub/internal/model"
)

// --- モック定義 ---

type mockSession struct {
	mu       sync.Mutex
	token    string
	expired  int
	requests []string
}

func (m *mockSession) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// ExpireToken はGateと同じく現在のトークンと一致する場合のみ失効させる。
func (m *mockSession) ExpireToken(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, token)
	if token == "" || m.token != token {
		return false, nil
	}
	m.expired++
	m.token = ""
	return true, nil
}

func (m *mockSession) replace(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

type upstreamCall struct {
	endpoint string
	status   int
}

type mockObserver struct {
	mu    sync.Mutex
	calls []upstreamCall
}

func (m *mockObserver) ObserveUpstream(endpoint string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, upstreamCall{endpoint, status})
}

var _ SessionSource = (*mockSession)(nil)
var _ Observer = (*mockObserver)(nil)

func newTestClient(t *testing.T, server *httptest.Server, session SessionSource, observer Observer) *Client {
	t.Helper()
	var buf bytes.Buffer
	c, err := NewClient(Config{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     newTestLogger(&buf),
		Observer:   observer,
		AuthScheme: "Bearer",
	}, session)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return c
}

// --- テスト ---

func TestClient_ListTasks_SendsBearerAndStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer T" {
			t.Errorf("Authorization = %q, want Bearer T", got)
		}
		if got := r.URL.Query().Get("status"); got != "running" {
			t.Errorf("status query = %q, want running", got)
		}
		w.Write([]byte(`{"tasks":[{"task_id":"t1","title":"Email triage","status":"running","progress":40}]}`))
	}))
	defer server.Close()

	observer := &mockObserver{}
	tasks, err := newTestClient(t, server, &mockSession{token: "T"}, observer).ListTasks(context.Background(), "running")
	if err != nil {
		t.Fatalf("ListTasks() error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" || tasks[0].Progress != 40 {
		t.Errorf("tasks = %+v", tasks)
	}
	if len(observer.calls) != 1 || observer.calls[0] != (upstreamCall{"tasks.list", 200}) {
		t.Errorf("observer calls = %+v", observer.calls)
	}
}

func TestClient_ListTasks_AllStatus_OmitsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("query = %q, want empty", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"task_id":"t1"},{"task_id":"t2"}]`))
	}))
	defer server.Close()

	tasks, err := newTestClient(t, server, &mockSession{token: "T"}, nil).ListTasks(context.Background(), "all")
	if err != nil {
		t.Fatalf("ListTasks() error: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("len(tasks) = %d, want 2", len(tasks))
	}
}

func TestClient_NoSession_NoNetwork(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	_, err := newTestClient(t, server, &mockSession{}, nil).ListTasks(context.Background(), "")
	if !model.IsSessionExpired(err) {
		t.Errorf("error = %v, want SESSION_EXPIRED", err)
	}
	if called {
		t.Error("server must not be called without a session")
	}
}

func TestClient_Unauthorized_ExpiresSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Token expired"}`))
	}))
	defer server.Close()

	session := &mockSession{token: "T"}
	_, err := newTestClient(t, server, session, nil).GetProfile(context.Background())
	if !model.IsSessionExpired(err) {
		t.Fatalf("error = %v, want SESSION_EXPIRED", err)
	}
	if session.expired != 1 {
		t.Errorf("Expire called %d times, want 1", session.expired)
	}
}

func TestClient_Unauthorized_KeepsNewerSession(t *testing.T) {
	session := &mockSession{token: "OLD"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 応答前に再ログインが完了した状態
		session.replace("NEW")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(t, server, session, nil).ListTasks(context.Background(), "")
	if !model.IsSessionExpired(err) {
		t.Fatalf("error = %v, want SESSION_EXPIRED", err)
	}
	if len(session.requests) != 1 || session.requests[0] != "OLD" {
		t.Errorf("ExpireToken tokens = %v, want [OLD]", session.requests)
	}
	if session.expired != 0 {
		t.Errorf("expired = %d, want 0", session.expired)
	}
	if got := session.Token(); got != "NEW" {
		t.Errorf("Token() = %q, want NEW", got)
	}
}

func TestClient_ExpiredJWT_TreatedAsUnauthorized(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	token := signedToken(t, jwt.MapClaims{"user_id": "42", "exp": time.Now().Add(-time.Hour).Unix()})
	session := &mockSession{token: token}

	_, err := newTestClient(t, server, session, nil).ListLogs(context.Background())
	if !model.IsSessionExpired(err) {
		t.Fatalf("error = %v, want SESSION_EXPIRED", err)
	}
	if session.expired != 1 {
		t.Errorf("Expire called %d times, want 1", session.expired)
	}
	if called {
		t.Error("server must not be called with an expired token")
	}
}

func TestClient_ListLogs_NotFoundIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"No logs found"}`))
	}))
	defer server.Close()

	logs, err := newTestClient(t, server, &mockSession{token: "T"}, nil).ListLogs(context.Background())
	if err != nil {
		t.Fatalf("ListLogs() error: %v", err)
	}
	if logs == nil || len(logs) != 0 {
		t.Errorf("logs = %#v, want empty slice", logs)
	}
}

func TestClient_ListLogs_Decodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"l1","timestamp":"2024-01-01 10:00:00","task":"t1","type":"SYSTEM","status":"SUCCESS","duration":"N/A","details":"done","user":"System"}]`))
	}))
	defer server.Close()

	logs, err := newTestClient(t, server, &mockSession{token: "T"}, nil).ListLogs(context.Background())
	if err != nil {
		t.Fatalf("ListLogs() error: %v", err)
	}
	if len(logs) != 1 || logs[0].Details != "done" || logs[0].Status != "SUCCESS" {
		t.Errorf("logs = %+v", logs)
	}
}

func TestClient_CreateTask_SendsInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tasks" {
			t.Errorf("request = %s %s, want POST /tasks", r.Method, r.URL.Path)
		}
		var in model.TaskInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in.Title != "Weekly report" || in.Status != "running" || !in.Notify {
			t.Errorf("input = %+v", in)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message":"Task created","task_id":"t9"}`))
	}))
	defer server.Close()

	id, err := newTestClient(t, server, &mockSession{token: "T"}, nil).CreateTask(context.Background(), model.TaskInput{
		Title:  "Weekly report",
		Type:   "report",
		Status: "running",
		Notify: true,
	})
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if id != "t9" {
		t.Errorf("id = %q, want t9", id)
	}
}

func TestClient_UpdateAndDelete_EscapeID(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.EscapedPath())
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server, &mockSession{token: "T"}, nil)
	if err := c.UpdateTask(context.Background(), "a/b", model.TaskInput{Status: "completed"}); err != nil {
		t.Fatalf("UpdateTask() error: %v", err)
	}
	if err := c.DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("DeleteTask() error: %v", err)
	}

	want := []string{"PUT /tasks/a%2Fb", "DELETE /tasks/t1"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestClient_DeleteTask_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Task not found"}`))
	}))
	defer server.Close()

	err := newTestClient(t, server, &mockSession{token: "T"}, nil).DeleteTask(context.Background(), "missing")
	if model.CodeOf(err) != model.ErrCodeNotFound {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestClient_RunAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tasks/t1/run-ai" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"message":"AI task run completed","ai_response":"Summary ready"}`))
	}))
	defer server.Close()

	result, err := newTestClient(t, server, &mockSession{token: "T"}, nil).RunAI(context.Background(), "t1")
	if err != nil {
		t.Fatalf("RunAI() error: %v", err)
	}
	if result.AIResponse != "Summary ready" {
		t.Errorf("AIResponse = %q, want Summary ready", result.AIResponse)
	}
}

func TestClient_RunAI_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"AI processing failed","details":"quota"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server, &mockSession{token: "T"}, nil).RunAI(context.Background(), "t1")
	if model.CodeOf(err) != model.ErrCodeUpstream {
		t.Fatalf("error = %v, want UPSTREAM_ERROR", err)
	}
	if got := err.(*model.APIError).Message; got != "AI processing failed" {
		t.Errorf("message = %q, want AI processing failed", got)
	}
}

func TestClient_RawAuthScheme(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "T" {
			t.Errorf("Authorization = %q, want raw token", got)
		}
		w.Write([]byte(`{"user_id":"42","email":"a@b.com","name":"Ann"}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c, err := NewClient(Config{BaseURL: server.URL, HTTPClient: server.Client(), Logger: newTestLogger(&buf)}, &mockSession{token: "T"})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	profile, err := c.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("GetProfile() error: %v", err)
	}
	if profile.Email != "a@b.com" {
		t.Errorf("Email = %q, want a@b.com", profile.Email)
	}
}
