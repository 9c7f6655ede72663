package session

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"videojoin/internal/join"
	"videojoin/internal/platform/metrics"
)

// DefaultMaxSegmentBytes bounds one ingested segment.
const DefaultMaxSegmentBytes = 32 << 20

// Handler exposes session HTTP endpoints using go-chi.
type Handler struct {
	svc      *Service
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	maxBytes int64
	mime     string
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	mimeType := svc.cfg.Engine.MIME
	if mimeType == "" {
		mimeType = join.DefaultMIME
	}
	return &Handler{
		svc:     svc,
		log:     log,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 4 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		maxBytes: DefaultMaxSegmentBytes,
		mime:     mimeType,
	}
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.EndSession)
		r.Post("/segments", h.AddSegment)
		r.Get("/ws", h.Stream)
	})
}

// CreateSession handles POST /sessions?variant=discrete|stream|audio&mode=realtime|buffered.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	variant, err := ParseVariant(q.Get("variant"))
	if err != nil {
		h.log.Debug("invalid variant", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	def := ModeBuffered
	if h.svc.cfg.Engine.Realtime {
		def = ModeRealtime
	}
	mode, err := ParseMode(q.Get("mode"), def)
	if err != nil {
		h.log.Debug("invalid mode", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sess, err := h.svc.CreateSession(variant, mode)
	if err != nil {
		switch {
		case errors.Is(err, ErrTooManySessions), errors.Is(err, ErrServiceClosed):
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			h.log.Error("create session failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	if h.metrics != nil {
		h.metrics.IncSessionsCreated()
	}

	st, err := sess.Status(r.Context())
	if err != nil {
		h.log.Error("session status failed", slog.String("session_id", string(sess.ID)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Location", "/sessions/"+string(sess.ID))
	writeJSON(w, http.StatusCreated, st)
}

// GetSession handles GET /sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := ID(chi.URLParam(r, "session_id"))
	st, err := h.svc.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// EndSession handles DELETE /sessions/{session_id}.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := ID(chi.URLParam(r, "session_id"))
	sess, ok := h.svc.Lookup(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	wasEnded := sess.Ended()
	if err := h.svc.EndSession(r.Context(), id); err != nil {
		h.writeError(w, id, err)
		return
	}
	if !wasEnded {
		h.log.Info("session ended", slog.String("session_id", string(id)))
		if h.metrics != nil {
			h.metrics.IncSessionsEnded()
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddSegment handles POST /sessions/{session_id}/segments.
// A JSON body { "url": "https://..." } registers a segment by reference;
// any other body is the segment's bytes.
func (h *Handler) AddSegment(w http.ResponseWriter, r *http.Request) {
	id := ID(chi.URLParam(r, "session_id"))

	var p join.Payload
	if isJSON(r.Header.Get("Content-Type")) {
		var req SegmentRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
			h.log.Debug("invalid segment body", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.URL = req.URL
	} else {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
			h.log.Debug("read segment body failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.Data = data
		p.MIME = h.mime
		if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
			p.MIME = ct
		}
	}

	index, err := h.svc.Ingest(r.Context(), id, p)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	h.log.Debug("segment ingested",
		slog.String("session_id", string(id)),
		slog.Int("index", index),
		slog.Int("bytes", p.Size()))
	writeJSON(w, http.StatusCreated, SegmentResponse{Index: index})
}

// Stream handles GET /sessions/{session_id}/ws. Every binary message is one
// segment; text messages are ignored.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	id := ID(chi.URLParam(r, "session_id"))
	sess, ok := h.svc.Lookup(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if sess.Ended() {
		w.WriteHeader(http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.maxBytes)

	log := h.log.With(slog.String("session_id", string(id)))
	log.Info("chunk stream opened", slog.String("remote", r.RemoteAddr))

	chunks := 0
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("chunk stream read failed", slog.String("error", err.Error()))
			}
			break
		}
		if kind != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		if _, err := sess.Ingest(r.Context(), join.Payload{Data: data, MIME: h.mime}); err != nil {
			code := websocket.CloseInternalServerErr
			if errors.Is(err, ErrSessionEnded) {
				code = websocket.CloseNormalClosure
			}
			msg := websocket.FormatCloseMessage(code, err.Error())
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			break
		}
		chunks++
	}
	log.Info("chunk stream closed", slog.Int("chunks", chunks))
}

func (h *Handler) writeError(w http.ResponseWriter, id ID, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrSessionEnded):
		h.log.Info("request rejected session ended", slog.String("session_id", string(id)))
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, ErrEmptySegment):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, ErrSegmentDropped):
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		h.log.Error("session request failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
