package domain

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// Slot は画像をアップロードする枠（人物 or 衣服）を表します。
type Slot string

const (
	SlotSubject Slot = "subject"
	SlotGarment Slot = "garment"
)

// ParseSlot は文字列を Slot に変換します。未知の値は ErrUnknownSlot を返します。
func ParseSlot(s string) (Slot, error) {
	switch Slot(s) {
	case SlotSubject, SlotGarment:
		return Slot(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSlot, s)
}

// Opener はアップロード画像の元データを開く関数です。
// 読み込みはエンコード時まで遅延されるため、失敗はその時点で呼び出し元に伝播します。
type Opener func() (io.ReadCloser, error)

// UploadedImage はユーザーが選択した1枚の画像です。
// 再選択時は丸ごと置き換えられ、Version が進むことで古い PreviewRef は無効になります。
type UploadedImage struct {
	Slot       Slot
	FileName   string
	MimeType   string
	Size       int64
	Version    int
	PreviewRef string
	open       Opener
}

// NewUploadedImage は Opener を指定して UploadedImage を生成します。
func NewUploadedImage(slot Slot, fileName, mimeType string, size int64, open Opener) *UploadedImage {
	return &UploadedImage{
		Slot:     slot,
		FileName: fileName,
		MimeType: mimeType,
		Size:     size,
		open:     open,
	}
}

// NewUploadedImageFromBytes はメモリ上のバイト列から UploadedImage を生成します。
func NewUploadedImageFromBytes(slot Slot, fileName, mimeType string, data []byte) *UploadedImage {
	return NewUploadedImage(slot, fileName, mimeType, int64(len(data)), func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// Open は元データを読み込むための ReadCloser を返します。
func (u *UploadedImage) Open() (io.ReadCloser, error) {
	if u == nil || u.open == nil {
		return nil, fmt.Errorf("%w: 画像ソースがありません", ErrReadFailed)
	}
	return u.open()
}

// WithPreview はプレビュー参照を差し替えたコピーを返します。
func (u *UploadedImage) WithPreview(version int, ref string) *UploadedImage {
	cp := *u
	cp.Version = version
	cp.PreviewRef = ref
	return &cp
}

// EncodedImage は送信用にエンコードされた画像です。
// Data は data URI のプレフィックスを含まない標準 Base64 文字列です。
type EncodedImage struct {
	MimeType string
	Data     string
}

// GenerationResult は外部サービスから返された合成画像です。
type GenerationResult struct {
	Image        EncodedImage
	UsedSeed     int64
	FinishReason string
	CreatedAt    time.Time
}

// CompositeRequest は合成リクエスト1回分の入力です。
type CompositeRequest struct {
	Credential Credential
	Subject    EncodedImage
	Garment    EncodedImage
	Seed       *int64 // nil でランダム
}
