package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/supporthub/internal/middleware"
	"github.com/hitoshi/supporthub/internal/model"
	"github.com/hitoshi/supporthub/internal/route"
)

// sessionExpiredToast はセッション失効でログイン画面へ戻すときの通知。
var sessionExpiredToast = Toast{
	Title:       "Session expired",
	Description: "Your session has expired. Please log in again.",
	Variant:     toastDestructive,
}

// handleServiceError はAPIクライアントから返されたエラーを画面応答用のステータスと通知に変換する。
// セッション失効の場合はログイン画面へリダイレクトし、handledにtrueを返す。
func (v *views) handleServiceError(w http.ResponseWriter, r *http.Request, err error, title string) (status int, toast *Toast, handled bool) {
	if model.IsSessionExpired(err) {
		v.redirect(w, r, route.Login, &sessionExpiredToast)
		return http.StatusUnauthorized, nil, true
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return middleware.StatusForError(apiErr), &Toast{
			Title:       title,
			Description: apiErr.Message,
			Variant:     toastDestructive,
		}, false
	}

	// APIError以外のエラーは内部エラーとして扱う
	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	return http.StatusInternalServerError, &Toast{
		Title:       title,
		Description: "Something went wrong.",
		Variant:     toastDestructive,
	}, false
}

// fieldErrors はValidationErrorのフィールド別メッセージを返す。
func fieldErrors(err error) map[string]string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidation {
		return apiErr.Fields
	}
	return nil
}
