package generator

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// seedToPtrInt32 は domain の *int64 を SDK 用の *int32 に変換するのだ。
// GenerateContentConfig.Seed は int32 を期待しているための調整なのだ。
// 範囲外の値は切り詰めずに捨てて、ランダムシードとして送るのだ。
func seedToPtrInt32(s *int64) *int32 {
	if s == nil {
		return nil
	}
	if *s < math.MinInt32 || *s > math.MaxInt32 {
		slog.Warn("シードが int32 の範囲外のため無視します", "seed", *s)
		return nil
	}
	v := int32(*s)
	return &v
}

// dereferenceSeed は実際に送った *int32 を int64 に戻すのだ。
// nil の場合はデフォルト値（0）を返すのだよ。
func dereferenceSeed(s *int32) int64 {
	if s == nil {
		return 0
	}
	return int64(*s)
}

// isQuotaError はレート制限・クォータ超過のエラーかどうかを判定します。
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isQuotaAPIError(apiErr) {
		return true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && isQuotaAPIError(*apiErrPtr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "resource exhausted") ||
		strings.Contains(errStr, "resource_exhausted") ||
		strings.Contains(errStr, "resourceexhausted")
}

func isQuotaAPIError(e genai.APIError) bool {
	return e.Code == http.StatusTooManyRequests || strings.EqualFold(e.Status, "RESOURCE_EXHAUSTED")
}
