package fittingroom

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"github.com/shouni/gemini-fitting-room/pkg/imgutil"
)

// Intake はアップロードされた画像を検証し、UploadedImage に変換します。
type Intake struct {
	validator *imgutil.Validator
	compress  bool
	quality   int
}

// IntakeOption は Intake の設定を変更します。
type IntakeOption func(*Intake)

// WithCompression はアップロード画像を指定品質の JPEG に再エンコードします。
func WithCompression(quality int) IntakeOption {
	return func(in *Intake) {
		in.compress = true
		in.quality = quality
	}
}

// NewIntake は上限サイズを指定して Intake を生成します。0 以下はデフォルト値になります。
func NewIntake(maxBytes int64, opts ...IntakeOption) *Intake {
	in := &Intake{validator: imgutil.NewValidator(maxBytes)}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// MaxBytes は1枚あたりの上限サイズを返します。
func (in *Intake) MaxBytes() int64 {
	return in.validator.MaxBytes()
}

// FromReader は r を読み切って検証します。上限を超えた分は読み込みません。
func (in *Intake) FromReader(slot domain.Slot, fileName, declared string, r io.Reader) (*domain.UploadedImage, error) {
	data, err := io.ReadAll(io.LimitReader(r, in.MaxBytes()+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrReadFailed, err)
	}
	return in.FromBytes(slot, fileName, declared, data)
}

// FromBytes はメモリ上の画像を検証し、必要なら圧縮して UploadedImage を返します。
func (in *Intake) FromBytes(slot domain.Slot, fileName, declared string, data []byte) (*domain.UploadedImage, error) {
	mimeType, err := in.validator.Validate(declared, data)
	if err != nil {
		return nil, err
	}
	if in.compress {
		data, mimeType = in.compressImage(fileName, data, mimeType)
	}
	return domain.NewUploadedImageFromBytes(slot, fileName, mimeType, data), nil
}

// FromFile はファイルを検証し、エンコード時に再度ファイルを開く UploadedImage を返します。
// 圧縮が有効な場合は圧縮後のバイト列を保持します。
func (in *Intake) FromFile(slot domain.Slot, path string) (*domain.UploadedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrReadFailed, err)
	}

	fileName := filepath.Base(path)
	declared := mime.TypeByExtension(filepath.Ext(path))
	if in.compress {
		return in.FromBytes(slot, fileName, declared, data)
	}

	mimeType, err := in.validator.Validate(declared, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return domain.NewUploadedImage(slot, fileName, mimeType, int64(len(data)), func() (io.ReadCloser, error) {
		return os.Open(path)
	}), nil
}

func (in *Intake) compressImage(fileName string, data []byte, mimeType string) ([]byte, string) {
	compressed, err := imgutil.CompressToJPEG(data, in.quality)
	if err != nil {
		slog.Warn("画像の圧縮に失敗したため元データを使用します", "file", fileName, "error", err)
		return data, mimeType
	}
	if len(compressed) >= len(data) && mimeType == imgutil.MimeTypeJPEG {
		return data, mimeType
	}
	slog.Debug("画像を圧縮しました", "file", fileName, "before", len(data), "after", len(compressed))
	return compressed, imgutil.MimeTypeJPEG
}
