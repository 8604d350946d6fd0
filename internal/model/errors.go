// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, network, system
	Action   string // ユーザー向け対処方法

	// Fields はフィールド単位の検証エラー（フィールド名 -> メッセージ）。
	// ValidationError以外では空。
	Fields map[string]string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation     = "VALIDATION_FAILED"
	ErrCodeAuthRejected   = "AUTH_REJECTED"
	ErrCodeSessionExpired = "SESSION_EXPIRED"
	ErrCodeNetworkFailure = "NETWORK_FAILURE"
	ErrCodeUpstream       = "UPSTREAM_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
)

// NewValidationError は入力検証エラーを生成する。
// fieldsはフィールド名ごとのメッセージで、フォームのインライン表示に使う。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "Some fields are invalid.",
		Category: "validation",
		Action:   "Fix the highlighted fields and submit again.",
		Fields:   fields,
	}
}

// NewAuthRejectedError は認証APIがログイン・サインアップを拒否した場合のエラーを生成する。
// messageが空の場合はfallbackを使う。
func NewAuthRejectedError(message, fallback string) *APIError {
	if message == "" {
		message = fallback
	}
	return &APIError{
		Code:     ErrCodeAuthRejected,
		Message:  message,
		Category: "auth",
		Action:   "Please check your credentials and try again.",
	}
}

// NewSessionExpiredError はセッションの失効エラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "Your session has expired. Please log in again.",
		Category: "auth",
		Action:   "Log in again to continue.",
	}
}

// NewNetworkFailureError は通信失敗エラーを生成する。
func NewNetworkFailureError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetworkFailure,
		Message:  fmt.Sprintf("Could not reach the server: %s", reason),
		Category: "network",
		Action:   "Please wait a moment and try again.",
	}
}

// NewUpstreamError はバックエンドAPIが2xx以外を返した場合のエラーを生成する。
func NewUpstreamError(status int, message string) *APIError {
	if message == "" {
		message = fmt.Sprintf("Request failed with status %d", status)
	}
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  message,
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewNotFoundError は対象リソースが存在しない場合のエラーを生成する。
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  message,
		Category: "system",
		Action:   "Reload the list and try again.",
	}
}

// CodeOf はエラーチェーンからAPIErrorのコードを取り出す。APIErrorでない場合は空文字列。
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsSessionExpired はエラーがセッション失効かどうかを判定する。
func IsSessionExpired(err error) bool {
	return CodeOf(err) == ErrCodeSessionExpired
}

// IsValidation はエラーが入力検証エラーかどうかを判定する。
func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}
