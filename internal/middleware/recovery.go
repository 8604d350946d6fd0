package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
)

// apiPathPrefix 配下はJSONで、それ以外はプレーンテキストでエラーを返す。
const apiPathPrefix = "/api/"

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500レスポンスを返すミドルウェアを生成する。
// http.ErrAbortHandlerによる中断はそのまま再送出する。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				// 内側のRequestIDミドルウェアがレスポンスヘッダーに設定済みの値を使う
				slog.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", w.Header().Get(RequestIDHeader)),
					slog.String("stack", string(debug.Stack())),
				)

				if strings.HasPrefix(r.URL.Path, apiPathPrefix) {
					WriteInternalServerError(w)
					return
				}
				w.Header().Set("Cache-Control", "no-store")
				http.Error(w, "Something went wrong. Please reload the page.", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
