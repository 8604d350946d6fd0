package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/supporthub/internal/model"
	"golang.org/x/net/html"
)

const testCSRFToken = "test-csrf-token"

// --- モック定義 ---

type mockGate struct {
	mu       sync.Mutex
	session  model.Session
	loginFn  func(ctx context.Context, creds model.LoginCredentials) (*model.Session, error)
	signupFn func(ctx context.Context, creds model.SignupCredentials) (*model.Session, error)
	released int
}

func (m *mockGate) Current() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *mockGate) Login(ctx context.Context, creds model.LoginCredentials) (*model.Session, error) {
	if m.loginFn == nil {
		return nil, nil
	}
	s, err := m.loginFn(ctx, creds)
	if err == nil && s != nil {
		m.mu.Lock()
		m.session = *s
		m.mu.Unlock()
	}
	return s, err
}

func (m *mockGate) Signup(ctx context.Context, creds model.SignupCredentials) (*model.Session, error) {
	if m.signupFn == nil {
		return nil, nil
	}
	s, err := m.signupFn(ctx, creds)
	if err == nil && s != nil {
		m.mu.Lock()
		m.session = *s
		m.mu.Unlock()
	}
	return s, err
}

func (m *mockGate) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
	m.session = model.Session{}
	return nil
}

type mockTaskService struct {
	listTasksFn  func(ctx context.Context, status string) ([]model.Task, error)
	createTaskFn func(ctx context.Context, input model.TaskInput) (string, error)
	updateTaskFn func(ctx context.Context, id string, input model.TaskInput) error
	deleteTaskFn func(ctx context.Context, id string) error
	runAIFn      func(ctx context.Context, id string) (*model.AIRunResult, error)

	createCalls int
}

func (m *mockTaskService) ListTasks(ctx context.Context, status string) ([]model.Task, error) {
	if m.listTasksFn != nil {
		return m.listTasksFn(ctx, status)
	}
	return []model.Task{}, nil
}

func (m *mockTaskService) CreateTask(ctx context.Context, input model.TaskInput) (string, error) {
	m.createCalls++
	if m.createTaskFn != nil {
		return m.createTaskFn(ctx, input)
	}
	return "task-1", nil
}

func (m *mockTaskService) UpdateTask(ctx context.Context, id string, input model.TaskInput) error {
	if m.updateTaskFn != nil {
		return m.updateTaskFn(ctx, id, input)
	}
	return nil
}

func (m *mockTaskService) DeleteTask(ctx context.Context, id string) error {
	if m.deleteTaskFn != nil {
		return m.deleteTaskFn(ctx, id)
	}
	return nil
}

func (m *mockTaskService) RunAI(ctx context.Context, id string) (*model.AIRunResult, error) {
	if m.runAIFn != nil {
		return m.runAIFn(ctx, id)
	}
	return &model.AIRunResult{}, nil
}

type mockLogService struct {
	listLogsFn func(ctx context.Context) ([]model.LogEntry, error)
}

func (m *mockLogService) ListLogs(ctx context.Context) ([]model.LogEntry, error) {
	if m.listLogsFn != nil {
		return m.listLogsFn(ctx)
	}
	return []model.LogEntry{}, nil
}

type mockProfileService struct {
	getProfileFn func(ctx context.Context) (*model.Profile, error)
}

func (m *mockProfileService) GetProfile(ctx context.Context) (*model.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx)
	}
	return &model.Profile{}, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- ヘルパー ---

var authenticatedSession = model.Session{Token: "T", UserID: "42", DisplayName: "Ann"}

// newTestDeps は全サービスをモックにしたRouterDepsを返す。
func newTestDeps(t *testing.T, gate *mockGate) *RouterDeps {
	t.Helper()
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}
	return &RouterDeps{
		Gate:           gate,
		TaskService:    &mockTaskService{},
		LogService:     &mockLogService{},
		ProfileService: &mockProfileService{},
		Renderer:       renderer,
	}
}

// get はGETリクエストをルーターに送る。
func get(h http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// postForm はCSRFトークン付きのフォーム送信をルーターに送る。
func postForm(h http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// responseCookie はレスポンスのSet-Cookieから指定名のCookieを返す。
func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func parseHTML(t *testing.T, w *httptest.ResponseRecorder) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(w.Body.String()))
	if err != nil {
		t.Fatalf("html.Parse() error: %v", err)
	}
	return doc
}

// findNode は条件に一致する最初のノードを深さ優先で探す。
func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var nodes []*html.Node
	if match(n) {
		nodes = append(nodes, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		nodes = append(nodes, findAll(c, match)...)
	}
	return nodes
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func byID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	}
}

func elementWithClass(tag, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != tag {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

// textContent はノード配下のテキストを連結して返す。
func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// inputValue はname属性が一致するinput要素のvalueを返す。
func inputValue(doc *html.Node, name string) (string, bool) {
	n := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "input" && attr(n, "name") == name
	})
	if n == nil {
		return "", false
	}
	return attr(n, "value"), true
}

// selectedOption はselect要素で選択されているoptionのvalueを返す。
func selectedOption(doc *html.Node, name string) string {
	sel := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "select" && attr(n, "name") == name
	})
	if sel == nil {
		return ""
	}
	opt := findNode(sel, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "option" && hasAttr(n, "selected")
	})
	if opt == nil {
		return ""
	}
	return attr(opt, "value")
}

// toastText は表示されているトーストのテキストを返す。表示がなければ空文字列。
func toastText(doc *html.Node) string {
	return textContent(findNode(doc, elementWithClass("div", "toast")))
}

// fieldErrorTexts はインライン表示された検証エラーを返す。
func fieldErrorTexts(doc *html.Node) []string {
	var texts []string
	for _, n := range findAll(doc, elementWithClass("p", "field-error")) {
		texts = append(texts, textContent(n))
	}
	return texts
}

// newFormRequest はCSRFトークンなしのフォーム送信リクエストを作る。
func newFormRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
