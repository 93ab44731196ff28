package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"github.com/shouni/gemini-fitting-room/pkg/fittingroom"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockCompositor struct {
	mu          sync.Mutex
	calls       int
	composeFunc func(ctx context.Context, req domain.CompositeRequest) (*domain.GenerationResult, error)
}

func (m *mockCompositor) Compose(ctx context.Context, req domain.CompositeRequest) (*domain.GenerationResult, error) {
	m.mu.Lock()
	m.calls++
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
	return m.calls
}

// testEnv はテスト用サーバーとクッキー付きクライアントの組なのだ。
type testEnv struct {
	server *httptest.Server
	client *http.Client
	store  *fittingroom.Store
}

func newTestEnv(t *testing.T, comp *mockCompositor, maxBytes int64) *testEnv {
	t.Helper()
	store := fittingroom.NewStore(SessionFactory(comp, 5*time.Second), time.Minute)
	srv, err := New(store, fittingroom.NewIntake(maxBytes))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		store.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{
		server: ts,
		client: &http.Client{Jar: jar, Timeout: 5 * time.Second},
		store:  store,
	}
}

// session はクッキーに保存されたセッションをストアから取り出すのだ。
func (e *testEnv) session(t *testing.T) *fittingroom.Session {
	t.Helper()
	u, err := url.Parse(e.server.URL)
	require.NoError(t, err)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == sessionCookieName {
			sess, ok := e.store.Get(c.Value)
			require.True(t, ok)
			return sess
		}
	}
	t.Fatal("セッションのクッキーがないのだ")
	return nil
}

// pngBytes はテスト用の小さな PNG を返すのだ。
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
