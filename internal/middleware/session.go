// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/supporthub/internal/model"
	"github.com/hitoshi/supporthub/internal/route"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// sessionContextKey はリクエストコンテキストに確定済みセッションを格納するためのキー。
	sessionContextKey = contextKey("session")
	// requestInfoContextKey はロギングミドルウェアが共有する可変のリクエスト情報のキー。
	requestInfoContextKey = contextKey("request_info")
)

// SessionReader はセッションゲートの読み取り専用インターフェース。
type SessionReader interface {
	Current() model.Session
}

// DecisionRecorder はルート判定の結果を記録する。
type DecisionRecorder interface {
	RecordRouteDecision(outcome string)
}

// NewRouteGuardMiddleware はゲートの認証状態に基づいてナビゲーションを振り分けるミドルウェアを返す。
// リダイレクト判定の場合は302でリダイレクト先へ誘導する。
// 許可された認証済みリクエストにはユーザーIDと表示名をコンテキストに注入する。
func NewRouteGuardMiddleware(sessions SessionReader, recorder DecisionRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessions.Current()
			decision := route.Decide(r.URL.Path, session.IsAuthenticated())

			if decision.Redirect() {
				if recorder != nil {
					recorder.RecordRouteDecision("redirect")
				}
				slog.Debug("route guard redirect",
					slog.String("path", r.URL.Path),
					slog.String("target", decision.Target),
				)
				http.Redirect(w, r, decision.Target, http.StatusFound)
				return
			}

			if recorder != nil {
				recorder.RecordRouteDecision("allow")
			}
			if session.IsAuthenticated() {
				annotateUserID(r.Context(), session.UserID)
				r = r.WithContext(ContextWithSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ルートガードを通過した認証済みリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	session, ok := ctx.Value(sessionContextKey).(model.Session)
	if !ok || session.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return session.UserID, nil
}

// DisplayNameFromContext はリクエストコンテキストから表示名を取得する。未設定の場合は空文字列。
func DisplayNameFromContext(ctx context.Context) string {
	session, _ := ctx.Value(sessionContextKey).(model.Session)
	return session.DisplayName
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// ContextWithUserID はコンテキストにユーザーIDのみを持つセッションを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithSession(ctx, model.Session{UserID: userID})
}
