package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"github.com/shouni/gemini-fitting-room/pkg/fittingroom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func (e *testEnv) setCredential(t *testing.T, key string) *http.Response {
	t.Helper()
	form := url.Values{"api_key": {key}}
	return e.do(t, http.MethodPut, "/api/session/credential", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (e *testEnv) upload(t *testing.T, slot, fileName string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, "/api/session/images/"+slot, &buf, mw.FormDataContentType())
}

func (e *testEnv) view(t *testing.T) fittingroom.View {
	t.Helper()
	res := e.do(t, http.MethodGet, "/api/session/state", nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	return decodeJSON[fittingroom.View](t, res)
}

func decodeJSON[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func errorMessage(t *testing.T, res *http.Response) string {
	t.Helper()
	return decodeJSON[map[string]string](t, res)["error"]
}

func (e *testEnv) ready(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusOK, e.setCredential(t, "abc123").StatusCode)
	require.Equal(t, http.StatusOK, e.upload(t, "subject", "me.png", pngBytes(t)).StatusCode)
	require.Equal(t, http.StatusOK, e.upload(t, "garment", "shirt.png", pngBytes(t)).StatusCode)
}

func TestNew(t *testing.T) {
	_, err := New(nil, fittingroom.NewIntake(0))
	assert.Error(t, err)
	_, err = New(fittingroom.NewStore(nil, 0), nil)
	assert.Error(t, err)
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t, &mockCompositor{}, 0)

	res := env.do(t, http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), fittingroom.TextSubjectPlaceholder)
	assert.Contains(t, string(body), fittingroom.TextGarmentPlaceholder)
	assert.Contains(t, string(body), fittingroom.LabelTryOn)
	assert.Contains(t, string(body), `type="password"`)

	var found bool
	for _, c := range res.Cookies() {
		if c.Name == sessionCookieName {
			found = true
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found, "セッションクッキーが設定されるのだ")

	health := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, health.StatusCode)
	assert.Equal(t, "ok", decodeJSON[map[string]any](t, health)["status"])
}

func TestCredential(t *testing.T) {
	env := newTestEnv(t, &mockCompositor{}, 0)

	res := env.setCredential(t, "abc123")
	require.Equal(t, http.StatusOK, res.StatusCode)
	v := decodeJSON[fittingroom.View](t, res)
	assert.True(t, v.CredentialSet)
	assert.Equal(t, fittingroom.StageEmpty, v.Stage)
}

func TestUpload(t *testing.T) {
	t.Run("アップロードするとプレビューが参照できるのだ", func(t *testing.T) {
		env := newTestEnv(t, &mockCompositor{}, 0)
		data := pngBytes(t)

		res := env.upload(t, "subject", "me.png", data)
		require.Equal(t, http.StatusOK, res.StatusCode)
		v := decodeJSON[fittingroom.View](t, res)
		assert.Equal(t, fittingroom.StageReadyPartial, v.Stage)
		assert.Equal(t, fittingroom.PanelSubjectPreview, v.Mirror.Kind)
		assert.Equal(t, "/api/session/images/subject?v=1", v.Mirror.ImageRef)
		require.NotNil(t, v.Subject)
		assert.Equal(t, "image/png", v.Subject.MimeType)

		preview := env.do(t, http.MethodGet, v.Mirror.ImageRef, nil, "")
		require.Equal(t, http.StatusOK, preview.StatusCode)
		assert.Equal(t, "image/png", preview.Header.Get("Content-Type"))
		got, err := io.ReadAll(preview.Body)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("差し替えると古いプレビューは 410 なのだ", func(t *testing.T) {
		env := newTestEnv(t, &mockCompositor{}, 0)
		require.Equal(t, http.StatusOK, env.upload(t, "garment", "a.png", pngBytes(t)).StatusCode)
		require.Equal(t, http.StatusOK, env.upload(t, "garment", "b.png", pngBytes(t)).StatusCode)

		assert.Equal(t, http.StatusGone, env.do(t, http.MethodGet, "/api/session/images/garment?v=1", nil, "").StatusCode)
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/session/images/garment?v=2", nil, "").StatusCode)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/session/images/subject", nil, "").StatusCode)
	})

	tests := []struct {
		name     string
		slot     string
		data     []byte
		maxBytes int64
		want     int
	}{
		{"画像でなければ 415 なのだ", "subject", []byte("not an image"), 0, http.StatusUnsupportedMediaType},
		{"大きすぎれば 413 なのだ", "subject", nil, 16, http.StatusRequestEntityTooLarge},
		{"未知のスロットは 400 なのだ", "hat", nil, 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &mockCompositor{}, tt.maxBytes)
			data := tt.data
			if data == nil {
				data = pngBytes(t)
			}
			res := env.upload(t, tt.slot, "x.png", data)
			assert.Equal(t, tt.want, res.StatusCode)
			assert.NotEmpty(t, errorMessage(t, res))
		})
	}

	t.Run("ファイルがなければ 400 なのだ", func(t *testing.T) {
		env := newTestEnv(t, &mockCompositor{}, 0)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("note", "empty"))
		require.NoError(t, mw.Close())

		res := env.do(t, http.MethodPost, "/api/session/images/subject", &buf, mw.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

func TestGenerate(t *testing.T) {
	t.Run("入力不足は 400 で呼び出さないのだ", func(t *testing.T) {
		comp := &mockCompositor{}
		env := newTestEnv(t, comp, 0)
		require.Equal(t, http.StatusOK, env.upload(t, "subject", "me.png", pngBytes(t)).StatusCode)

		res := env.do(t, http.MethodPost, "/api/session/generate", nil, "")
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "API key and files required", errorMessage(t, res))
		assert.Zero(t, comp.callCount())
	})

	t.Run("成功すると結果が取得できるのだ", func(t *testing.T) {
		composited := []byte("composited-png")
		comp := &mockCompositor{
			composeFunc: func(ctx context.Context, req domain.CompositeRequest) (*domain.GenerationResult, error) {
				if req.Credential != "abc123" || req.Seed == nil || *req.Seed != 7 {
					return nil, errors.New("unexpected request")
				}
				return &domain.GenerationResult{
					Image:     domain.EncodedImage{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(composited)},
					CreatedAt: time.Unix(1700000000, 0),
				}, nil
			},
		}
		env := newTestEnv(t, comp, 0)
		env.ready(t)

		form := url.Values{"seed": {"7"}}
		res := env.do(t, http.MethodPost, "/api/session/generate", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
		require.Equal(t, http.StatusAccepted, res.StatusCode)

		var v fittingroom.View
		require.Eventually(t, func() bool {
			v = env.view(t)
			return v.Stage == fittingroom.StageDone
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, fittingroom.PanelResult, v.Mirror.Kind)
		assert.Equal(t, fmt.Sprintf("/api/session/result?t=%d", time.Unix(1700000000, 0).UnixNano()), v.Mirror.ImageRef)
		assert.Empty(t, v.Notice)

		result := env.do(t, http.MethodGet, v.Mirror.ImageRef, nil, "")
		require.Equal(t, http.StatusOK, result.StatusCode)
		got, err := io.ReadAll(result.Body)
		require.NoError(t, err)
		assert.Equal(t, composited, got)
	})

	t.Run("シードが整数でなければ 400 なのだ", func(t *testing.T) {
		env := newTestEnv(t, &mockCompositor{}, 0)
		env.ready(t)
		res := env.do(t, http.MethodPost, "/api/session/generate?seed=abc", nil, "")
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("int32 の範囲外のシードは 400 で呼び出さないのだ", func(t *testing.T) {
		comp := &mockCompositor{}
		env := newTestEnv(t, comp, 0)
		env.ready(t)

		for _, seed := range []string{"4294967301", "2147483648", "-2147483649"} {
			res := env.do(t, http.MethodPost, "/api/session/generate?seed="+seed, nil, "")
			assert.Equal(t, http.StatusBadRequest, res.StatusCode, seed)
			assert.Equal(t, "seed must be a 32-bit integer", errorMessage(t, res))
		}
		assert.Zero(t, comp.callCount())
		assert.Equal(t, "idle", env.view(t).Phase)
	})

	t.Run("失敗すると通知に入るのだ", func(t *testing.T) {
		comp := &mockCompositor{
			composeFunc: func(ctx context.Context, req domain.CompositeRequest) (*domain.GenerationResult, error) {
				return nil, fmt.Errorf("%w: %w", domain.ErrServiceFailed, errors.New("network timeout"))
			},
		}
		env := newTestEnv(t, comp, 0)
		env.ready(t)
		require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/session/generate", nil, "").StatusCode)

		require.Eventually(t, func() bool {
			return env.view(t).Stage == fittingroom.StageFailed
		}, 2*time.Second, 10*time.Millisecond)
		assert.Contains(t, env.view(t).Notice, "network timeout")
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/session/result", nil, "").StatusCode)
	})

	t.Run("生成中は 409 でキャンセルできるのだ", func(t *testing.T) {
		started := make(chan struct{})
		comp := &mockCompositor{
			composeFunc: func(ctx context.Context, req domain.CompositeRequest) (*domain.GenerationResult, error) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		env := newTestEnv(t, comp, 0)
		env.ready(t)

		assert.Equal(t, http.StatusConflict, env.do(t, http.MethodDelete, "/api/session/generate", nil, "").StatusCode)

		res := env.do(t, http.MethodPost, "/api/session/generate", nil, "")
		require.Equal(t, http.StatusAccepted, res.StatusCode)
		v := decodeJSON[fittingroom.View](t, res)
		assert.Equal(t, fittingroom.LabelProcessing, v.ButtonLabel)
		<-started

		second := env.do(t, http.MethodPost, "/api/session/generate", nil, "")
		assert.Equal(t, http.StatusConflict, second.StatusCode)

		assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/session/generate", nil, "").StatusCode)
		require.Eventually(t, func() bool {
			return env.view(t).Phase == "idle"
		}, 2*time.Second, 10*time.Millisecond)
		assert.Contains(t, env.view(t).Notice, "generation canceled")
		assert.Equal(t, 1, comp.callCount())
	})
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t, &mockCompositor{}, 0)
	// 先にクッキーを受け取っておくのだ
	env.view(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/session/events"
	dialer := websocket.Dialer{Jar: env.client.Jar, HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readView := func() fittingroom.View {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var v fittingroom.View
		require.NoError(t, conn.ReadJSON(&v))
		return v
	}

	first := readView()
	assert.Equal(t, fittingroom.StageEmpty, first.Stage)
	assert.False(t, first.CredentialSet)

	require.Equal(t, http.StatusOK, env.setCredential(t, "abc123").StatusCode)
	next := readView()
	assert.True(t, next.CredentialSet)

	t.Run("pong を受け取るとセッションの期限が延びるのだ", func(t *testing.T) {
		sess := env.session(t)
		before := sess.LastActive()
		time.Sleep(20 * time.Millisecond)

		require.NoError(t, conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(time.Second)))
		assert.Eventually(t, func() bool {
			return sess.LastActive().After(before)
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrMissingInput, http.StatusBadRequest},
		{domain.ErrUnknownSlot, http.StatusBadRequest},
		{domain.ErrGenerationInProgress, http.StatusConflict},
		{domain.ErrUnsupportedMedia, http.StatusUnsupportedMediaType},
		{domain.ErrImageTooLarge, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: %w", domain.ErrServiceFailed, domain.ErrServiceBusy), http.StatusTooManyRequests},
		{fmt.Errorf("%w: x", domain.ErrServiceFailed), http.StatusBadGateway},
		{domain.ErrGenerationTimeout, http.StatusGatewayTimeout},
		{errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
