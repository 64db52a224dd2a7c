package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/silverlens/internal/middleware"
	"github.com/hitoshi/silverlens/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層のエラーを統一エラーフォーマットのHTTPレスポンスに変換する。
// ストア障害など分類外のエラーは詳細をログにのみ記録し、500を返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := mapServiceError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
			slog.Bool("store_connection", errors.Is(err, model.ErrConnection)),
		)
	}
	middleware.WriteErrorResponse(w, status, apiErr)
}

// mapServiceError はセンチネルエラーをHTTPステータスとAPIErrorに対応付ける。
func mapServiceError(err error) (int, *model.APIError) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return mapAPIErrorToHTTPStatus(apiErr), apiErr
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized, model.NewInvalidCredentialsError()
	case errors.Is(err, model.ErrMissingFields):
		return http.StatusBadRequest, model.NewMissingFieldsError()
	case errors.Is(err, model.ErrInvalidEmail):
		return http.StatusBadRequest, model.NewInvalidEmailError()
	case errors.Is(err, model.ErrPasswordTooLong):
		return http.StatusBadRequest, model.NewPasswordTooLongError()
	case errors.Is(err, model.ErrUserExists):
		return http.StatusConflict, model.NewUserExistsError()
	case errors.Is(err, model.ErrInvalidBounds):
		return http.StatusBadRequest, model.NewInvalidBoundsError()
	case errors.Is(err, model.ErrProviderDisabled):
		return http.StatusNotFound, model.NewProviderNotFoundError("")
	default:
		return http.StatusInternalServerError, model.NewInternalError()
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeMissingFields, model.ErrCodeInvalidEmail, model.ErrCodeInvalidBounds,
		model.ErrCodePasswordTooLong:
		return http.StatusBadRequest
	case model.ErrCodeUserExists:
		return http.StatusConflict
	case model.ErrCodeProviderNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
