package server

import (
	"net/http"

	"github.com/shouni/gemini-fitting-room/pkg/fittingroom"
)

const sessionCookieName = "fitting_room_session"

// session はクッキーから Session を取得し、なければ作成します。
// 新規作成した場合は設定すべきクッキーを返します。
func (s *Server) session(r *http.Request) (*fittingroom.Session, *http.Cookie, error) {
	var id string
	if c, err := r.Cookie(sessionCookieName); err == nil {
		id = c.Value
	}

	sess, created, err := s.store.GetOrCreate(id)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		return sess, nil, nil
	}
	return sess, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// sessionFor は session を呼び、必要ならクッキーをレスポンスに設定します。
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*fittingroom.Session, bool) {
	sess, cookie, err := s.session(r)
	if err != nil {
		sendError(w, err)
		return nil, false
	}
	if cookie != nil {
		http.SetCookie(w, cookie)
	}
	return sess, true
}
