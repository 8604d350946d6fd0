package model

// LoginCredentials はログインフォームの入力値。
type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupCredentials はサインアップフォームの入力値。
type SignupCredentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
