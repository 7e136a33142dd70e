package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/nimbo/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// statusByCode はAPIErrorコードとHTTPステータスコードの対応表。
var statusByCode = map[string]int{
	model.ErrCodeInvalidRequest:      http.StatusBadRequest,
	model.ErrCodeUnauthorized:        http.StatusUnauthorized,
	model.ErrCodeInvalidCredentials:  http.StatusUnauthorized,
	model.ErrCodeEmailTaken:          http.StatusConflict,
	model.ErrCodeWeakPassword:        http.StatusBadRequest,
	model.ErrCodeInvalidEmail:        http.StatusBadRequest,
	model.ErrCodeInvalidResetToken:   http.StatusBadRequest,
	model.ErrCodePendingApproval:     http.StatusForbidden,
	model.ErrCodeUserNotFound:        http.StatusNotFound,
	model.ErrCodeInvalidFarmName:     http.StatusBadRequest,
	model.ErrCodeFarmNotFound:        http.StatusNotFound,
	model.ErrCodeMemberNotFound:      http.StatusNotFound,
	model.ErrCodeNotFarmOwner:        http.StatusForbidden,
	model.ErrCodeOwnerImmutable:      http.StatusForbidden,
	model.ErrCodeInvalidRole:         http.StatusBadRequest,
	model.ErrCodeInsufficientRole:    http.StatusForbidden,
	model.ErrCodeStaleMembership:     http.StatusConflict,
	model.ErrCodeInvitationNotFound:  http.StatusNotFound,
	model.ErrCodeInvitationResolved:  http.StatusConflict,
	model.ErrCodeUnsupportedFormat:   http.StatusBadRequest,
	model.ErrCodeNoValidRows:         http.StatusUnprocessableEntity,
	model.ErrCodeParseFailed:         http.StatusUnprocessableEntity,
	model.ErrCodeFileTooLarge:        http.StatusRequestEntityTooLarge,
	model.ErrCodeInvalidDate:         http.StatusBadRequest,
	model.ErrCodeInvalidAmount:       http.StatusBadRequest,
	model.ErrCodeRainfallNotFound:    http.StatusNotFound,
	model.ErrCodeInvalidLocation:     http.StatusBadRequest,
	model.ErrCodeSSRFBlocked:         http.StatusForbidden,
	model.ErrCodeWeatherUnavailable:  http.StatusBadGateway,
	model.ErrCodeEmailNotConfigured:  http.StatusInternalServerError,
	model.ErrCodeEmailFailed:         http.StatusBadGateway,
	model.ErrCodeSheepNotFound:       http.StatusNotFound,
	model.ErrCodeDuplicateTag:        http.StatusConflict,
	model.ErrCodeInvalidTag:          http.StatusBadRequest,
	model.ErrCodeInvalidWeight:       http.StatusBadRequest,
	model.ErrCodeInvalidSheepField:   http.StatusBadRequest,
	model.ErrCodeInvalidHistoryEntry: http.StatusBadRequest,
	model.ErrCodeTaskNotFound:        http.StatusNotFound,
	model.ErrCodeInvalidTask:         http.StatusBadRequest,
}

// StatusFor はAPIErrorコードに対応するHTTPステータスコードを返す。
// 未登録のコードは500とする。
func StatusFor(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteError はサービス層のエラーをレスポンスに変換する。
// APIErrorは対応するステータスで返し、それ以外はログに記録して500を返す。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusFor(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
