package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"github.com/shouni/gemini-fitting-room/pkg/fittingroom"
	"github.com/shouni/gemini-fitting-room/pkg/generator"
)

//go:embed templates/index.html
var templateFS embed.FS

// multipart のヘッダー等に許す上限サイズへの上乗せ分
const formOverheadBytes = 1 << 20

// Server は試着室の画面・JSON API・WebSocket を提供します。
type Server struct {
	store    *fittingroom.Store
	intake   *fittingroom.Intake
	page     *template.Template
	upgrader websocket.Upgrader
}

// New は Server を生成します。
func New(store *fittingroom.Store, intake *fittingroom.Intake) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if intake == nil {
		return nil, fmt.Errorf("intake is required")
	}
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("テンプレートの読み込みに失敗しました: %w", err)
	}
	return &Server{
		store:  store,
		intake: intake,
		page:   page,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}, nil
}

// Handler はルーティング済みの http.Handler を返します。
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/session").Subrouter()
	api.HandleFunc("/credential", s.handleCredential).Methods(http.MethodPut)
	api.HandleFunc("/images/{slot}", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/images/{slot}", s.handlePreview).Methods(http.MethodGet)
	api.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/generate", s.handleCancel).Methods(http.MethodDelete)
	api.HandleFunc("/result", s.handleResult).Methods(http.MethodGet)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	return r
}

// PreviewRef はプレビュー画像の URL を組み立てます。
func PreviewRef(slot domain.Slot, version int) string {
	return "/api/session/images/" + string(slot) + "?v=" + strconv.Itoa(version)
}

// ResultRef は結果画像の URL を組み立てます。生成時刻でキャッシュを分けます。
func ResultRef(res *domain.GenerationResult) string {
	return "/api/session/result?t=" + strconv.FormatInt(res.CreatedAt.UnixNano(), 10)
}

// SessionFactory は HTTP 向けの参照を組み込んだ Session を生成する関数を返します。
func SessionFactory(compositor generator.Compositor, timeout time.Duration) fittingroom.SessionFactory {
	return func(id string) (*fittingroom.Session, error) {
		return fittingroom.NewSession(id, compositor,
			fittingroom.WithGenerationTimeout(timeout),
			fittingroom.WithPreviewRef(PreviewRef),
			fittingroom.WithResultRef(ResultRef),
		)
	}
}
