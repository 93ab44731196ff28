package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
)

// statusFor はエラー種別を HTTP ステータスに対応付けます。
func statusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr), errors.Is(err, domain.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrMissingInput),
		errors.Is(err, domain.ErrUnknownSlot),
		errors.Is(err, domain.ErrEmptyImage),
		errors.Is(err, domain.ErrReadFailed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGenerationInProgress),
		errors.Is(err, domain.ErrGenerationCanceled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrServiceBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrGenerationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrServiceFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// sendError はエラーを JSON で返します。
func sendError(w http.ResponseWriter, err error) {
	sendErrorMessage(w, err.Error(), statusFor(err))
}

func sendErrorMessage(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("レスポンスの書き込みに失敗しました", "error", err)
	}
}
