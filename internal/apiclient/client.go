// Package apiclient はバックエンドの認証API・タスクAPIを呼び出すJSON/HTTPクライアントを提供する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/supporthub/internal/model"
)

// maxResponseBytes はレスポンスボディの読み取り上限。
const maxResponseBytes = 4 << 20

// Observer はバックエンド呼び出しの結果を記録する。
// statusは通信失敗時に0。
type Observer interface {
	ObserveUpstream(endpoint string, status int, elapsed time.Duration)
}

// Config はクライアントの設定。
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Observer   Observer
	// AuthScheme はAuthorizationヘッダーのスキーム。空の場合はトークンのみを送る。
	AuthScheme string
}

// transport は認証APIとタスクAPIで共有するHTTP呼び出し部分。
type transport struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
	authScheme string
}

// response はバックエンドの応答。
type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// errorMessage はエラーレスポンスの {"error": ...} または {"message": ...} を取り出す。
func (r *response) errorMessage() string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.body, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}

func newTransport(cfg Config) (*transport, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https: %q", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &transport{
		baseURL:    u,
		httpClient: httpClient,
		logger:     logger,
		observer:   cfg.Observer,
		authScheme: cfg.AuthScheme,
	}, nil
}

// do はJSONリクエストを送信し、レスポンスを読み取る。
// 通信に失敗した場合はNetworkFailureのAPIErrorを返す。
func (t *transport) do(ctx context.Context, method, endpoint, path string, query url.Values, token string, in any) (*response, error) {
	u := *t.baseURL
	u.Path = t.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "supporthub/1.0")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		if t.authScheme != "" {
			req.Header.Set("Authorization", t.authScheme+" "+token)
		} else {
			req.Header.Set("Authorization", token)
		}
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.observe(endpoint, 0, time.Since(start))
		t.logger.Error("backend request failed",
			slog.String("endpoint", endpoint),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkFailureError(networkReason(err))
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	t.observe(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, model.NewNetworkFailureError(networkReason(err))
	}

	if resp.StatusCode >= 400 {
		t.logger.Warn("backend returned error status",
			slog.String("endpoint", endpoint),
			slog.String("method", method),
			slog.Int("http_status", resp.StatusCode),
		)
	}

	return &response{status: resp.StatusCode, body: b}, nil
}

func (t *transport) observe(endpoint string, status int, elapsed time.Duration) {
	if t.observer != nil {
		t.observer.ObserveUpstream(endpoint, status, elapsed)
	}
}

// networkReason は通信エラーから利用者向けの短い理由を作る。
func networkReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request canceled"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "request timed out"
		}
		return urlErr.Err.Error()
	}
	return err.Error()
}
