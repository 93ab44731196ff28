package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"github.com/shouni/gemini-fitting-room/pkg/fittingroom"
	"github.com/shouni/gemini-fitting-room/pkg/imgutil"
)

type indexData struct {
	View           fittingroom.View
	MaxUploadBytes int64
	MaxUploadMB    int64
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	err := s.page.Execute(&buf, indexData{
		View:           sess.View(),
		MaxUploadBytes: s.intake.MaxBytes(),
		MaxUploadMB:    s.intake.MaxBytes() >> 20,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "画面の描画に失敗しました", "error", err)
		sendErrorMessage(w, "画面の描画に失敗しました", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.Len(),
	})
}

func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		sendErrorMessage(w, "フォームの解析に失敗しました", http.StatusBadRequest)
		return
	}
	sess.SetCredential(r.PostFormValue("api_key"))
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	slot, err := domain.ParseSlot(mux.Vars(r)["slot"])
	if err != nil {
		sendError(w, err)
		return
	}
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	maxBytes := s.intake.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverheadBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			sendError(w, domain.ErrImageTooLarge)
			return
		}
		sendErrorMessage(w, "フォームの解析に失敗しました", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		sendErrorMessage(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, err := s.intake.FromReader(slot, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		slog.WarnContext(r.Context(), "アップロード画像を受け付けませんでした",
			"session", sess.ID(), "slot", slot, "file", header.Filename, "error", err)
		sendError(w, err)
		return
	}
	if err := sess.SelectImage(img); err != nil {
		sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	slot, err := domain.ParseSlot(mux.Vars(r)["slot"])
	if err != nil {
		sendError(w, err)
		return
	}
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	img := sess.State().Image(slot)
	if img == nil {
		sendErrorMessage(w, "image not found", http.StatusNotFound)
		return
	}
	if v := r.URL.Query().Get("v"); v != "" && v != strconv.Itoa(img.Version) {
		sendErrorMessage(w, "preview is no longer available", http.StatusGone)
		return
	}

	rc, err := img.Open()
	if err != nil {
		sendError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		slog.WarnContext(r.Context(), "プレビューの送信に失敗しました", "slot", slot, "error", err)
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	var seed *int64
	if raw := strings.TrimSpace(r.FormValue("seed")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			sendErrorMessage(w, "seed must be a 32-bit integer", http.StatusBadRequest)
			return
		}
		seed = &v
	}

	if _, err := sess.Start(r.Context(), seed); err != nil {
		sendError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.View())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	if !sess.Cancel() {
		sendErrorMessage(w, "no generation in progress", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	res := sess.State().Result
	if res == nil {
		sendErrorMessage(w, "result not found", http.StatusNotFound)
		return
	}
	data, err := imgutil.Decode(res.Image.Data)
	if err != nil {
		slog.ErrorContext(r.Context(), "結果画像のデコードに失敗しました", "session", sess.ID(), "error", err)
		sendErrorMessage(w, "結果画像のデコードに失敗しました", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", res.Image.MimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}
