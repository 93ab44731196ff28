package imgutil

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
)

// Encode はリーダーの内容をすべて読み込み、標準 Base64 文字列に変換します。
// 読み込みエラーは ErrReadFailed でラップして返します。
func Encode(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrReadFailed, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// EncodeImage はアップロード画像を開いてエンコードし、申告された MIME タイプと組にして返します。
func EncodeImage(img *domain.UploadedImage) (domain.EncodedImage, error) {
	rc, err := img.Open()
	if err != nil {
		if !errors.Is(err, domain.ErrReadFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrReadFailed, err)
		}
		return domain.EncodedImage{}, err
	}
	defer rc.Close()

	payload, err := Encode(rc)
	if err != nil {
		return domain.EncodedImage{}, err
	}
	return domain.EncodedImage{MimeType: img.MimeType, Data: payload}, nil
}

// Decode は Base64 ペイロード（data URI 形式も可）を元のバイト列に戻します。
func Decode(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(StripDataURIPrefix(payload))
	if err != nil {
		return nil, fmt.Errorf("Base64のデコードに失敗しました: %w", err)
	}
	return data, nil
}

// StripDataURIPrefix は "data:<mime>;base64," のプレフィックスを取り除きます。
func StripDataURIPrefix(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}

// DataURI はブラウザで直接表示できる data URI を組み立てます。
func DataURI(mimeType, payload string) string {
	return "data:" + mimeType + ";base64," + payload
}
