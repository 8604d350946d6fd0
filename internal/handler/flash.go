package handler

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
)

const flashCookieName = "flash"

// トーストの表示種別
const (
	toastDefault     = "default"
	toastSuccess     = "success"
	toastDestructive = "destructive"
)

// Toast は画面上部に一度だけ表示する通知。
type Toast struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Variant     string `json:"variant,omitempty"`
}

// setFlash は次の画面で表示する通知をCookieに格納する。
func setFlash(w http.ResponseWriter, toast Toast, secure bool) {
	b, err := json.Marshal(toast)
	if err != nil {
		slog.Error("failed to encode flash", slog.String("error", err.Error()))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(b),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash はCookieの通知を取り出して削除する。通知がない場合はnilを返す。
func popFlash(w http.ResponseWriter, r *http.Request, secure bool) *Toast {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})

	b, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var toast Toast
	if err := json.Unmarshal(b, &toast); err != nil || toast.Title == "" {
		return nil
	}
	return &toast
}
