package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/supporthub/internal/model"
)

// ErrorResponseBody はJSONで返すエラーの形式。
// request_idはRequestIDミドルウェアを通過した場合のみ付く。
type ErrorResponseBody struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Category  string            `json:"category"`
	Action    string            `json:"action"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// StatusForError はエラーコードに対応するHTTPステータスを返す。
// APIError以外は500。
func StatusForError(err error) int {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Code {
	case model.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case model.ErrCodeAuthRejected, model.ErrCodeSessionExpired:
		return http.StatusUnauthorized
	case model.ErrCodeNetworkFailure, model.ErrCodeUpstream:
		return http.StatusBadGateway
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case codeCSRFRejected:
		return http.StatusForbidden
	case codeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError はエラーを対応するステータスのJSONとして書き込む。
// APIError以外の詳細は応答に含めない。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		WriteInternalServerError(w)
		return
	}
	WriteErrorResponse(w, StatusForError(apiErr), apiErr)
}

// WriteErrorResponse はapiErrを指定ステータスで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		Fields:    apiErr.Fields,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// WriteInternalServerError は詳細を伏せた500を書き込む。原因はログにのみ残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	})
}

const (
	codeCSRFRejected = "CSRF_REJECTED"
	codeRateLimited  = "RATE_LIMIT_EXCEEDED"
)

func newCSRFRejectedError() *model.APIError {
	return &model.APIError{
		Code:     codeCSRFRejected,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "Reload the page and submit the form again.",
	}
}
