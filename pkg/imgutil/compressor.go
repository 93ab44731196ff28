package imgutil

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// CompressToJPEG は画像データ（PNG, WebP, JPEG）をJPEG形式に再エンコードします。
// アップロード画像の送信サイズを抑える用途で使います。
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEGへのエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}
