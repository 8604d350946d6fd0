package model

// Session はダッシュボードのログインセッションを表す。
// Token・UserID・DisplayNameは常に1単位として書き込み・消去する。
type Session struct {
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"name"`
}

// IsAuthenticated は空でないトークンを保持しているかを返す。
func (s Session) IsAuthenticated() bool {
	return s.Token != ""
}

// IsComplete はトークンとユーザーIDが揃っているかを返す。
// 永続化できるのは完全なセッションのみ。
func (s Session) IsComplete() bool {
	return s.Token != "" && s.UserID != ""
}
