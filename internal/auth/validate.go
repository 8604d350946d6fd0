package auth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hitoshi/supporthub/internal/model"
)

// DefaultPasswordMinLength はパスワードの最小文字数の既定値。
const DefaultPasswordMinLength = 6

var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

// ValidateEmail はメールアドレスを検証し、問題があればメッセージを返す。
func ValidateEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "Email is required"
	}
	if !emailPattern.MatchString(email) {
		return "Invalid email address"
	}
	return ""
}

// ValidatePassword はパスワードを検証し、問題があればメッセージを返す。
func ValidatePassword(password string, minLength int) string {
	if minLength <= 0 {
		minLength = DefaultPasswordMinLength
	}
	if password == "" {
		return "Password is required"
	}
	if len([]rune(password)) < minLength {
		return fmt.Sprintf("Password must be at least %d characters", minLength)
	}
	return ""
}

// ValidateLogin はログイン入力を検証する。問題がなければnilを返す。
func ValidateLogin(creds model.LoginCredentials, minLength int) error {
	fields := map[string]string{}
	if msg := ValidateEmail(creds.Email); msg != "" {
		fields["email"] = msg
	}
	if msg := ValidatePassword(creds.Password, minLength); msg != "" {
		fields["password"] = msg
	}
	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	return nil
}

// ValidateSignup はサインアップ入力を検証する。問題がなければnilを返す。
func ValidateSignup(creds model.SignupCredentials, minLength int) error {
	fields := map[string]string{}
	if strings.TrimSpace(creds.Name) == "" {
		fields["name"] = "Name is required"
	}
	if msg := ValidateEmail(creds.Email); msg != "" {
		fields["email"] = msg
	}
	if msg := ValidatePassword(creds.Password, minLength); msg != "" {
		fields["password"] = msg
	}
	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	return nil
}
