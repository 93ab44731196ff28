package fittingroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"github.com/shouni/gemini-fitting-room/pkg/generator"
	"github.com/shouni/gemini-fitting-room/pkg/imgutil"
)

// DefaultGenerationTimeout は1回の生成に許す最大時間です。
const DefaultGenerationTimeout = 2 * time.Minute

// Outcome は1回の生成の結果です。Result と Err がともに nil の場合は画像なしです。
type Outcome struct {
	Result *domain.GenerationResult
	Err    error
}

// Session はワークフロー1件分の State を所有し、遷移を直列化します。
type Session struct {
	id         string
	compositor generator.Compositor
	timeout    time.Duration
	previewRef PreviewRefFunc
	resultRef  ResultRefFunc
	now        func() time.Time

	mu          sync.Mutex
	state       State
	cancel      context.CancelFunc
	lastActive  time.Time
	subscribers map[int]chan View
	nextSubID   int
	closed      bool
}

// SessionOption は Session の設定を変更します。
type SessionOption func(*Session)

// WithGenerationTimeout は生成のタイムアウトを設定します。
func WithGenerationTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPreviewRef はプレビュー参照の組み立て方を設定します。
func WithPreviewRef(f PreviewRefFunc) SessionOption {
	return func(s *Session) { s.previewRef = f }
}

// WithResultRef は結果画像の参照の組み立て方を設定します。
func WithResultRef(f ResultRefFunc) SessionOption {
	return func(s *Session) { s.resultRef = f }
}

// NewSession は新しい Session を生成します。
func NewSession(id string, compositor generator.Compositor, opts ...SessionOption) (*Session, error) {
	if compositor == nil {
		return nil, fmt.Errorf("compositor is required")
	}
	s := &Session{
		id:          id,
		compositor:  compositor,
		timeout:     DefaultGenerationTimeout,
		previewRef:  DefaultPreviewRef,
		resultRef:   DataURIResultRef,
		now:         time.Now,
		subscribers: make(map[int]chan View),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastActive = s.now()
	return s, nil
}

// ID はセッション ID を返します。
func (s *Session) ID() string {
	return s.id
}

// State は現在の State のスナップショットを返します。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View は現在の State を描画用に変換して返します。
func (s *Session) View() View {
	return Render(s.State(), s.resultRef)
}

// LastActive は最後に状態が変わった（または参照された）時刻を返します。
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Touch は最終アクセス時刻を更新します。
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// SetCredential は API キーを設定します。前後の空白は取り除きます。
func (s *Session) SetCredential(key string) {
	cred := domain.Credential(strings.TrimSpace(key))
	s.update(func(st State) State { return st.WithCredential(cred) })
}

// SelectImage は画像を差し替えます。nil の場合は何もしません。
func (s *Session) SelectImage(img *domain.UploadedImage) error {
	if img == nil {
		return nil
	}
	if _, err := domain.ParseSlot(string(img.Slot)); err != nil {
		return err
	}
	s.update(func(st State) State { return st.WithImage(img, s.previewRef) })
	slog.Info("画像を選択しました",
		"session", s.id,
		"slot", img.Slot,
		"file", img.FileName,
		"mime_type", img.MimeType,
		"size", img.Size,
	)
	return nil
}

// Start は生成を開始します。
// 入力不足や生成中の場合は即座にエラーを返し、それ以外は結果を受け取るチャネルを返します。
// 生成は ctx のキャンセルから切り離され、タイムアウトと Cancel によってのみ中断されます。
func (s *Session) Start(ctx context.Context, seed *int64) (<-chan Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: セッションは終了しています", domain.ErrGenerationCanceled)
	}
	next, err := s.state.Begin()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.cancel = cancel
	s.setLocked(next)
	cred, subject, garment := next.Credential, next.Subject, next.Garment
	s.mu.Unlock()

	slog.InfoContext(ctx, "試着画像の生成を開始します", "session", s.id, "timeout", s.timeout)

	done := make(chan Outcome, 1)
	go func() {
		defer cancel()
		started := s.now()
		res, err := s.invoke(runCtx, cred, subject, garment, seed)
		s.logOutcome(runCtx, res, err, s.now().Sub(started))

		s.mu.Lock()
		s.cancel = nil
		if s.state.Superseded() {
			slog.InfoContext(runCtx, "生成中に画像が差し替えられたため結果を破棄しました", "session", s.id, "error", err)
		}
		s.setLocked(s.state.Settle(res, err))
		s.mu.Unlock()

		done <- Outcome{Result: res, Err: err}
		close(done)
	}()
	return done, nil
}

// Generate は生成を開始し、完了まで待ちます。
// ctx が先に終了した場合も生成は続行され、ctx のエラーを返します。
func (s *Session) Generate(ctx context.Context, seed *int64) (*domain.GenerationResult, error) {
	done, err := s.Start(ctx, seed)
	if err != nil {
		return nil, err
	}
	select {
	case out := <-done:
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel は実行中の生成を中断します。生成中でなければ false を返します。
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Subscribe は State が変わるたびに View を受け取るチャネルを返します。
// 現在の View が最初に届きます。受信が追いつかない場合は最新の View だけが残ります。
func (s *Session) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	ch <- Render(s.state, s.resultRef)
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close は実行中の生成を中断し、購読チャネルをすべて閉じます。
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

func (s *Session) update(fn func(State) State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(fn(s.state))
}

// setLocked は s.mu を保持した状態で呼び出します。
func (s *Session) setLocked(next State) {
	s.state = next
	s.lastActive = s.now()

	view := Render(next, s.resultRef)
	for _, ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- view:
			default:
			}
		}
	}
}

// invoke は2枚の画像をエンコードして合成を依頼します。panic もエラーとして返します。
func (s *Session) invoke(ctx context.Context, cred domain.Credential, subject, garment *domain.UploadedImage, seed *int64) (res *domain.GenerationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrServiceFailed, r)
		}
	}()

	subjectData, err := imgutil.EncodeImage(subject)
	if err != nil {
		return nil, fmt.Errorf("人物画像の読み込みに失敗しました: %w", err)
	}
	garmentData, err := imgutil.EncodeImage(garment)
	if err != nil {
		return nil, fmt.Errorf("衣服画像の読み込みに失敗しました: %w", err)
	}

	res, err = s.compositor.Compose(ctx, domain.CompositeRequest{
		Credential: cred,
		Subject:    subjectData,
		Garment:    garmentData,
		Seed:       seed,
	})
	if err != nil {
		return nil, classifyContextError(ctx, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, classifyContextError(ctx, ctxErr)
	}
	return res, nil
}

// classifyContextError はタイムアウトとキャンセルを専用のエラー種別に変換します。
func classifyContextError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrGenerationTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", domain.ErrGenerationCanceled, err)
	}
	return err
}

func (s *Session) logOutcome(ctx context.Context, res *domain.GenerationResult, err error, elapsed time.Duration) {
	switch {
	case err != nil:
		slog.ErrorContext(ctx, "試着画像の生成に失敗しました", "session", s.id, "elapsed", elapsed, "error", err)
	case res == nil:
		slog.WarnContext(ctx, "画像が返されませんでした", "session", s.id, "elapsed", elapsed)
	default:
		slog.InfoContext(ctx, "試着画像を生成しました",
			"session", s.id,
			"elapsed", elapsed,
			"mime_type", res.Image.MimeType,
			"seed", res.UsedSeed,
		)
	}
}
