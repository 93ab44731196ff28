package fittingroom

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
)

// DefaultSessionTTL は操作のないセッションを破棄するまでの時間です。
const DefaultSessionTTL = 30 * time.Minute

// SessionFactory は ID を受け取って Session を生成します。
type SessionFactory func(id string) (*Session, error)

// Store はメモリ上で Session を ID ごとに保持します。
type Store struct {
	newSession SessionFactory
	ttl        time.Duration
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore は Store を生成します。ttl が 0 以下の場合は DefaultSessionTTL を使います。
func NewStore(factory SessionFactory, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Store{
		newSession: factory,
		ttl:        ttl,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
}

// Create は新しい ID で Session を生成して登録します。
func (st *Store) Create() (*Session, error) {
	id := uuid.NewString()
	sess, err := st.newSession(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	st.sessions[id] = sess
	st.mu.Unlock()
	slog.Debug("セッションを作成しました", "session", id)
	return sess, nil
}

// Get は ID に対応する Session を返します。
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// GetOrCreate は既存の Session を返し、なければ新しく作ります。
// 2番目の戻り値は新規作成したかどうかです。UUID として不正な ID は無視します。
func (st *Store) GetOrCreate(id string) (*Session, bool, error) {
	if _, err := uuid.Parse(id); err == nil {
		if sess, ok := st.Get(id); ok {
			sess.Touch()
			return sess, false, nil
		}
	}
	sess, err := st.Create()
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Len は保持している Session の数を返します。
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep は ttl を超えて操作のない Session を破棄し、破棄した数を返します。
// 生成中の Session は完了するまで破棄しません。
func (st *Store) Sweep() int {
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	var expired []*Session
	for id, sess := range st.sessions {
		if sess.State().Phase == domain.PhaseGenerating {
			continue
		}
		if sess.LastActive().Before(cutoff) {
			delete(st.sessions, id)
			expired = append(expired, sess)
		}
	}
	st.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	if len(expired) > 0 {
		slog.Info("期限切れのセッションを破棄しました", "count", len(expired))
	}
	return len(expired)
}

// Run は ctx が終了するまで interval ごとに Sweep を実行します。
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = st.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep()
		}
	}
}

// Close はすべての Session を閉じます。実行中の生成は中断されます。
func (st *Store) Close() {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}
