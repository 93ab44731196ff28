package fittingroom

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// mockCompositor は受け取ったリクエストを記録し、composeFunc の結果を返すのだ。
type mockCompositor struct {
	mu          sync.Mutex
	requests    []domain.CompositeRequest
	composeFunc func(ctx context.Context, req domain.CompositeRequest) (*domain.GenerationResult, error)
}

func (m *mockCompositor) Compose(ctx context.Context, req domain.CompositeRequest) (*domain.GenerationResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.composeFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, req)
}

func (m *mockCompositor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// blockingCompositor は ctx が終わるまで戻らないモックを返すのだ。
// started は Compose に入ったときに閉じられるのだ。
func blockingCompositor() (*mockCompositor, <-chan struct{}) {
	started := make(chan struct{})
	var once sync.Once
	return &mockCompositor{
		composeFunc: func(ctx context.Context, req domain.CompositeRequest) (*domain.GenerationResult, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, started
}

func resultOf(data string) *domain.GenerationResult {
	return &domain.GenerationResult{
		Image: domain.EncodedImage{MimeType: "image/png", Data: data},
	}
}

func subjectImage() *domain.UploadedImage {
	return domain.NewUploadedImageFromBytes(domain.SlotSubject, "me.jpg", "image/jpeg", []byte("subject-bytes"))
}

func garmentImage() *domain.UploadedImage {
	return domain.NewUploadedImageFromBytes(domain.SlotGarment, "shirt.png", "image/png", []byte("garment-bytes"))
}

// readySession は API キーと2枚の画像が揃ったセッションを返すのだ。
func readySession(t *testing.T, comp *mockCompositor, opts ...SessionOption) *Session {
	t.Helper()
	sess, err := NewSession("test-session", comp, opts...)
	require.NoError(t, err)
	sess.SetCredential("abc123")
	require.NoError(t, sess.SelectImage(subjectImage()))
	require.NoError(t, sess.SelectImage(garmentImage()))
	return sess
}

// pngBytes はテスト用の小さな PNG を返すのだ。
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
