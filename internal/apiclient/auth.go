package apiclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/supporthub/internal/model"
)

// 認証失敗時の既定メッセージ
const (
	loginFallback  = "Login failed"
	signupFallback = "Registration failed"
)

// AuthClient は認証API（/login, /signup）のクライアント。
type AuthClient struct {
	t *transport
}

// NewAuthClient はAuthClientを生成する。
func NewAuthClient(cfg Config) (*AuthClient, error) {
	t, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &AuthClient{t: t}, nil
}

// Login はPOST /loginで資格情報を送信する。
func (c *AuthClient) Login(ctx context.Context, creds model.LoginCredentials) (*model.Session, error) {
	return c.acquire(ctx, "login", "/login", creds, loginFallback)
}

// Signup はPOST /signupでアカウントを作成する。
func (c *AuthClient) Signup(ctx context.Context, creds model.SignupCredentials) (*model.Session, error) {
	return c.acquire(ctx, "signup", "/signup", creds, signupFallback)
}

func (c *AuthClient) acquire(ctx context.Context, endpoint, path string, body any, fallback string) (*model.Session, error) {
	resp, err := c.t.do(ctx, http.MethodPost, endpoint, path, nil, "", body)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, model.NewAuthRejectedError(resp.errorMessage(), fallback)
	}

	var payload authResponse
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		c.t.logger.Warn("auth response is not valid JSON",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, model.NewAuthRejectedError("invalid auth response", fallback)
	}

	session := &model.Session{
		Token:       strings.TrimSpace(payload.Token),
		UserID:      strings.TrimSpace(string(payload.UserID)),
		DisplayName: payload.Name,
	}
	// user_idが返らない場合はトークンのクレームから補う
	if session.Token != "" && session.UserID == "" {
		if claims, err := ParseTokenClaims(session.Token); err == nil {
			session.UserID = claims.UserID
		}
	}
	if !session.IsComplete() {
		return nil, model.NewAuthRejectedError("invalid auth response", fallback)
	}
	return session, nil
}

// authResponse はログイン・サインアップのレスポンス。
type authResponse struct {
	Token  string     `json:"token"`
	UserID flexString `json:"user_id"`
	Name   string     `json:"name"`
}

// flexString は文字列または数値のJSON値を文字列として受け取る。
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}
