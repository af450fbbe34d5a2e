package timeline

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Handler exposes read-only timeline endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// ListOutputs handles GET /outputs.
func (h *Handler) ListOutputs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string][]string{"outputs": h.svc.Outputs()})
}

// GetOutput handles GET /outputs/{name}.
func (h *Handler) GetOutput(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	snap, ok := h.svc.GetSnapshot(name)
	if !ok {
		h.log.Debug("output not found", slog.String("output", name))
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, snap)
}

// GetPlaylist handles GET /outputs/{name}/playlist.m3u8.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m3u8, ok := h.svc.GetPlaylist(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u8))
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode response failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
