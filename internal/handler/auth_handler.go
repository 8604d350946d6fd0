// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/supporthub/internal/model"
	"github.com/hitoshi/supporthub/internal/route"
)

// SessionGate は認証ハンドラーが必要とするセッションゲートのインターフェース。
type SessionGate interface {
	Current() model.Session
	Login(ctx context.Context, creds model.LoginCredentials) (*model.Session, error)
	Signup(ctx context.Context, creds model.SignupCredentials) (*model.Session, error)
	Release(ctx context.Context) error
}

// loginForm はログイン画面の入力値と検証エラー。パスワードは再表示しない。
type loginForm struct {
	Email  string
	Errors map[string]string
}

// signupForm はサインアップ画面の入力値と検証エラー。
type signupForm struct {
	Name   string
	Email  string
	Errors map[string]string
}

// AuthHandler はログイン・サインアップ・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	*views
	gate SessionGate
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(v *views, gate SessionGate) *AuthHandler {
	return &AuthHandler{views: v, gate: gate}
}

// LoginForm はログイン画面を表示する。
// GET /login
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageLogin, "Log in", &loginForm{}, nil)
}

// Login はログインフォームを処理する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	creds := model.LoginCredentials{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	session, err := h.gate.Login(r.Context(), creds)
	if err != nil {
		status, toast, _ := h.handleServiceError(w, r, err, "Login failed")
		h.render(w, r, status, pageLogin, "Log in", &loginForm{
			Email:  creds.Email,
			Errors: fieldErrors(err),
		}, toast)
		return
	}

	slog.Info("user logged in", slog.String("user_id", session.UserID))
	h.redirect(w, r, route.Dashboard, &Toast{
		Title:       "Welcome back!",
		Description: "You have been successfully logged in.",
		Variant:     toastSuccess,
	})
}

// SignupForm はサインアップ画面を表示する。
// GET /signup
func (h *AuthHandler) SignupForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageSignup, "Sign up", &signupForm{}, nil)
}

// Signup はサインアップフォームを処理する。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	creds := model.SignupCredentials{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	session, err := h.gate.Signup(r.Context(), creds)
	if err != nil {
		status, toast, _ := h.handleServiceError(w, r, err, "Registration failed")
		h.render(w, r, status, pageSignup, "Sign up", &signupForm{
			Name:   creds.Name,
			Email:  creds.Email,
			Errors: fieldErrors(err),
		}, toast)
		return
	}

	slog.Info("user signed up", slog.String("user_id", session.UserID))
	h.redirect(w, r, route.Dashboard, &Toast{
		Title:       "Account created",
		Description: "Welcome to SupportHub!",
		Variant:     toastSuccess,
	})
}

// Logout はセッションを破棄してログイン画面へ戻す。
// 永続化領域の削除に失敗してもメモリ上は未認証になるため、ログに残して続行する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Release(r.Context()); err != nil {
		slog.Error("failed to clear persisted session", slog.String("error", err.Error()))
	}

	h.redirect(w, r, route.Login, &Toast{
		Title:       "Logged out",
		Description: "You have been logged out.",
		Variant:     toastDefault,
	})
}
