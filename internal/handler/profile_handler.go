package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/supporthub/internal/apiclient"
	"github.com/hitoshi/supporthub/internal/model"
)

// ProfileServiceInterface はプロフィール画面が必要とするAPIクライアントのインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context) (*model.Profile, error)
}

type profileView struct {
	Profile   *model.Profile
	UserID    string
	ExpiresAt time.Time
}

// sessionResponse はGET /api/sessionのレスポンス。
type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Name          string `json:"name,omitempty"`
}

// ProfileHandler はプロフィール画面とセッション状態APIのHTTPハンドラー。
type ProfileHandler struct {
	*views
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(v *views, service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{views: v, service: service}
}

// Profile はプロフィールとセッションの詳細を表示する。
// GET /profile
func (h *ProfileHandler) Profile(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Current()
	view := &profileView{UserID: session.UserID}
	// 不透明なトークンの場合は有効期限を表示しない
	if claims, err := apiclient.ParseTokenClaims(session.Token); err == nil {
		view.ExpiresAt = claims.ExpiresAt.UTC()
	}

	profile, err := h.service.GetProfile(r.Context())
	if err != nil {
		status, toast, handled := h.handleServiceError(w, r, err, "Could not load profile")
		if handled {
			return
		}
		h.render(w, r, status, pageProfile, "Profile", view, toast)
		return
	}

	view.Profile = profile
	h.render(w, r, http.StatusOK, pageProfile, "Profile", view, nil)
}

// Session は現在のセッション状態をJSONで返す。トークンは含めない。
// GET /api/session
func (h *ProfileHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Current()
	resp := sessionResponse{Authenticated: session.IsAuthenticated()}
	if resp.Authenticated {
		resp.UserID = session.UserID
		resp.Name = session.DisplayName
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
