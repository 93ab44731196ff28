package imgutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"mime"
	"strings"

	"github.com/shouni/gemini-fitting-room/pkg/domain"

	_ "golang.org/x/image/webp"
)

const (
	MimeTypeJPEG = "image/jpeg"
	MimeTypePNG  = "image/png"
	MimeTypeWebP = "image/webp"

	// DefaultMaxUploadBytes はアップロード1枚あたりの上限です。
	DefaultMaxUploadBytes int64 = 10 << 20
)

// image.DecodeConfig が返すフォーマット名と MIME タイプの対応
var formatMimeTypes = map[string]string{
	"jpeg": MimeTypeJPEG,
	"png":  MimeTypePNG,
	"webp": MimeTypeWebP,
}

// IsAllowedMimeType は送信可能な画像の MIME タイプかどうかを返します。
func IsAllowedMimeType(mimeType string) bool {
	for _, mt := range formatMimeTypes {
		if mt == mimeType {
			return true
		}
	}
	return false
}

// SniffMimeType は画像ヘッダーをデコードして実際の MIME タイプを判定します。
func SniffMimeType(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnsupportedMedia, err)
	}
	mt, ok := formatMimeTypes[format]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, format)
	}
	return mt, nil
}

// Validator はアップロード画像のサイズと形式を検証します。
type Validator struct {
	maxBytes int64
}

// NewValidator は上限サイズを指定して Validator を生成します。0 以下はデフォルト値になります。
func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Validator{maxBytes: maxBytes}
}

// MaxBytes は上限サイズを返します。
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// Validate はデータを検証し、保持すべき MIME タイプを返します。
// 申告された MIME タイプが許可リストにあればそれを優先し、なければ判定結果を使います。
func (v *Validator) Validate(declared string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.ErrEmptyImage
	}
	if int64(len(data)) > v.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", domain.ErrImageTooLarge, len(data), v.maxBytes)
	}

	sniffed, err := SniffMimeType(data)
	if err != nil {
		return "", err
	}

	declared = normalizeMimeType(declared)
	if !IsAllowedMimeType(declared) {
		return sniffed, nil
	}
	if declared != sniffed {
		slog.Warn("申告されたMIMEタイプと実データが一致しません", "declared", declared, "sniffed", sniffed)
	}
	return declared, nil
}

func normalizeMimeType(s string) string {
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return mt
}
