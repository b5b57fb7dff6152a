package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"arch-render-studio/internal/render"
	"arch-render-studio/internal/storage"
	"arch-render-studio/internal/studio"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type Options struct {
	Studio         *studio.Studio
	Logger         *slog.Logger
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Server struct {
	studio         *studio.Studio
	logger         *slog.Logger
	maxUploadBytes int64
	requestTimeout time.Duration
	upgrader       websocket.Upgrader
}

type apiError struct {
	Error   string           `json:"error"`
	Session *studio.Snapshot `json:"session,omitempty"`
}

type event struct {
	Type    string          `json:"type"`
	Session studio.Snapshot `json:"session"`
}

type galleryItem struct {
	storage.GalleryImage
	URL string `json:"url"`
}

type promptRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 240 * time.Second
	}
	return &Server{
		studio:         opts.Studio,
		logger:         logger,
		maxUploadBytes: maxUpload,
		requestTimeout: timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.handleCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("POST /api/sessions/{id}/actions", s.handleAction)
	mux.HandleFunc("POST /api/sessions/{id}/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/images/{id}", s.handleImage)
	mux.HandleFunc("GET /api/gallery", s.handleGallery)
	mux.HandleFunc("GET /api/prompts", s.handlePrompts)
	mux.HandleFunc("POST /api/prompts", s.handleSavePrompt)
	mux.HandleFunc("DELETE /api/prompts/{id}", s.handleDeletePrompt)
	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return withLogging(mux, s.logger)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	snap, err := s.studio.Create(r.Context())
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.studio.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var action studio.Action

	if isMultipart(r) {
		if !s.parseMultipart(w, r) {
			return
		}
		raw := strings.TrimSpace(r.FormValue("action"))
		if strings.HasPrefix(raw, "{") {
			if err := json.Unmarshal([]byte(raw), &action); err != nil {
				writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid action"})
				return
			}
		} else {
			action.Type = studio.ActionType(raw)
		}
		upload, err := formUpload(r, "file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read file"})
			return
		}
		action.Upload = upload
	} else if err := s.decodeJSON(w, r, &action); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid action"})
		return
	}

	snap, err := s.studio.Dispatch(r.Context(), r.PathValue("id"), action)
	if err != nil {
		s.writeError(w, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req studio.GenerateRequest

	if isMultipart(r) {
		if !s.parseMultipart(w, r) {
			return
		}
		req.Op = render.Operation(strings.TrimSpace(r.FormValue("op")))
		req.Direction = strings.TrimSpace(r.FormValue("direction"))
		req.Instructions = strings.TrimSpace(r.FormValue("instructions"))

		var err error
		if req.Upload, err = formUpload(r, "file"); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read file"})
			return
		}
		if req.Mask, err = formUpload(r, "mask"); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read mask"})
			return
		}
	} else if err := s.decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid generate request"})
		return
	}

	// Generation outlives the request; the result also reaches the event stream.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.requestTimeout)
	defer cancel()

	snap, err := s.studio.Generate(ctx, r.PathValue("id"), req)
	if err != nil {
		s.writeError(w, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.studio.Open(r.Context(), id); err != nil {
		s.writeError(w, err, nil)
		return
	}

	updates, unsubscribe := s.studio.Subscribe(id)
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", id, "err", err)
		return
	}
	defer conn.Close()

	s.logger.Info("websocket connected", "session", id, "remote_addr", r.RemoteAddr)
	defer s.logger.Info("websocket closed", "session", id, "remote_addr", r.RemoteAddr)

	// Inbound frames are only read to service pongs and notice the close.
	done := make(chan struct{})
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	current, err := s.studio.Snapshot(id)
	if err != nil {
		return
	}
	if err := writeEvent(conn, current); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(conn, snap); err != nil {
				s.logger.Debug("websocket write failed", "session", id, "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, snap studio.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(event{Type: "snapshot", Session: snap})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.studio.Image(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	w.Header().Set("content-type", img.MimeType)
	w.Header().Set("content-length", strconv.Itoa(len(img.Data)))
	w.Header().Set("cache-control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.studio.Gallery(r.Context(), limit)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	items := make([]galleryItem, 0, len(list))
	for _, g := range list {
		items = append(items, galleryItem{GalleryImage: g, URL: "/api/images/" + g.ImageID})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	list, err := s.studio.SavedPrompts(r.Context())
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	if list == nil {
		list = []storage.SavedPrompt{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSavePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid prompt"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if req.Title == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "title and content are required"})
		return
	}

	saved, err := s.studio.Store().SavePrompt(r.Context(), storage.SavedPrompt{Title: req.Title, Content: req.Content})
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.studio.Store().DeletePrompt(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.studio.Catalog())
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return false
	}
	return true
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error, snap *studio.Snapshot) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	body := apiError{Error: err.Error()}
	if snap != nil && snap.ID != "" {
		body.Session = snap
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, studio.ErrBusy),
		errors.Is(err, studio.ErrRestoring),
		errors.Is(err, studio.ErrDiscarded):
		return http.StatusConflict
	case errors.Is(err, studio.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, studio.ErrInvalidIndex),
		errors.Is(err, studio.ErrInvalidAction),
		errors.Is(err, studio.ErrNoSource),
		errors.Is(err, studio.ErrNoResult),
		errors.Is(err, studio.ErrNotExplorer):
		return http.StatusBadRequest
	case errors.Is(err, studio.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("content-type")), "multipart/form-data")
}

func formUpload(r *http.Request, field string) (*studio.Upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &studio.Upload{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}
