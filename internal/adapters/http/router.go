package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kirillkom/chapterflow/internal/config"
	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/core/ports"
	"github.com/kirillkom/chapterflow/internal/observability/metrics"
)

const (
	clientIDHeader = "X-Client-Id"
	userIDHeader   = "X-User-Id"

	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
	backpressureWait  = 250 * time.Millisecond
)

// SessionServer owns a websocket connection for the lifetime of a session.
type SessionServer interface {
	Serve(sessionID string, conn *websocket.Conn)
}

type Router struct {
	cfg      config.Config
	ingestor ports.DocumentIngestor
	reader   ports.DocumentReader
	sessions SessionServer
	metrics  *metrics.HTTPServerMetrics
	mounts   map[string]http.Handler
	upgrader websocket.Upgrader
}

type Option func(*Router)

func WithSessions(s SessionServer) Option {
	return func(rt *Router) { rt.sessions = s }
}

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) { rt.metrics = m }
}

// WithMount serves h under pattern, e.g. "/mcp".
func WithMount(pattern string, h http.Handler) Option {
	return func(rt *Router) { rt.mounts[pattern] = h }
}

func NewRouter(
	cfg config.Config,
	ingestor ports.DocumentIngestor,
	reader ports.DocumentReader,
	opts ...Option,
) *Router {
	rt := &Router{
		cfg:      cfg,
		ingestor: ingestor,
		reader:   reader,
		mounts:   map[string]http.Handler{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() (http.Handler, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("GET /v1/documents/{id}/chapters", rt.listChapters)
	mux.HandleFunc("GET /v1/chapters/{id}", rt.getChapter)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.sessions != nil {
		mux.HandleFunc("GET /websocket", rt.websocket)
	}
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	for pattern, h := range rt.mounts {
		mux.Handle(pattern, h)
	}

	var h http.Handler = validator.middleware(mux)
	h = backpressureMiddleware(h, rt.cfg.APIMaxInFlight, backpressureWait)
	h = rateLimitMiddleware(h, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		h = rt.metrics.Middleware("api", h)
	}
	h = accessLogMiddleware(h)
	h = requestIDMiddleware(h)
	return h, nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(OpenAPISpec())
}

type uploadResponse struct {
	ID     string                `json:"id"`
	Status domain.DocumentStatus `json:"status"`
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	limit := rt.cfg.UploadMaxBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		rt.recordUpload("rejected", 0)
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		rt.recordUpload("rejected", 0)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	if limit > 0 && fileHeader.Size > limit {
		rt.recordUpload("rejected", fileHeader.Size)
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("file exceeds %d bytes", limit),
		})
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(clientIDHeader))
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.FormValue("clientId"))
	}

	doc, err := rt.ingestor.Upload(r.Context(), ports.UploadRequest{
		Filename:  fileHeader.Filename,
		MimeType:  fileHeader.Header.Get("Content-Type"),
		Title:     r.FormValue("title"),
		OwnerID:   strings.TrimSpace(r.Header.Get(userIDHeader)),
		SessionID: sessionID,
		Body:      file,
	})
	if err != nil {
		rt.recordUpload("rejected", fileHeader.Size)
		writeError(w, r, err)
		return
	}

	rt.recordUpload("accepted", fileHeader.Size)
	writeJSON(w, http.StatusAccepted, uploadResponse{ID: doc.ID, Status: doc.Status})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.reader.ListDocuments(r.Context(), r.Header.Get(userIDHeader))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.reader.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) listChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := rt.reader.ListChapters(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chapters": chapters})
}

func (rt *Router) getChapter(w http.ResponseWriter, r *http.Request) {
	chapter, err := rt.reader.GetChapter(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chapter)
}

func (rt *Router) websocket(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(r.URL.Query().Get("clientId"))
	if clientID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "clientId is required"})
		return
	}
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket_upgrade_failed", "client_id", clientID, "error", err)
		return
	}
	rt.sessions.Serve(clientID, conn)
}

func (rt *Router) recordUpload(outcome string, size int64) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload("api", outcome, size)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
