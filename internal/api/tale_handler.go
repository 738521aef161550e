package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/unalkalkan/TaleWeaver/internal/observe"
	"github.com/unalkalkan/TaleWeaver/internal/talestore"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// maxEntryBytes bounds a saved tale including its base64 audio clips
const maxEntryBytes = 64 << 20

// storeResponse acknowledges write operations
type storeResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TaleHandler serves the tale-store endpoints
type TaleHandler struct {
	repo    talestore.Repository
	metrics *observe.Metrics
	logger  *slog.Logger
}

// NewTaleHandler creates a new tale handler. metrics may be nil.
func NewTaleHandler(repo talestore.Repository, metrics *observe.Metrics, logger *slog.Logger) *TaleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaleHandler{
		repo:    repo,
		metrics: metrics,
		logger:  logger.With("component", "api"),
	}
}

// SaveTale handles POST /save_tale
func (h *TaleHandler) SaveTale(w http.ResponseWriter, r *http.Request) {
	var entry types.LibraryEntry
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEntryBytes)).Decode(&entry); err != nil {
		respondError(w, "Invalid tale payload", http.StatusBadRequest)
		return
	}
	if !entry.Type.Valid() {
		respondError(w, "Unknown tale type", http.StatusBadRequest)
		return
	}

	err := h.repo.SaveTale(r.Context(), entry.Type, &entry)
	h.record(r, "save", err)
	if err != nil {
		if errors.Is(err, talestore.ErrInvalidID) {
			respondError(w, "Invalid tale id", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to save tale", "type", entry.Type, "error", err)
		respondError(w, "Failed to save tale", http.StatusInternalServerError)
		return
	}

	respondJSON(w, storeResponse{Success: true, ID: entry.ID}, http.StatusOK)
}

// ListTales handles GET /list_tales?type=
func (h *TaleHandler) ListTales(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(r)
	if !ok {
		respondError(w, "Unknown tale type", http.StatusBadRequest)
		return
	}

	tales, err := h.repo.ListTales(r.Context(), kind)
	h.record(r, "list", err)
	if err != nil {
		h.logger.Error("failed to list tales", "type", kind, "error", err)
		respondError(w, "Failed to list tales", http.StatusInternalServerError)
		return
	}

	respondJSON(w, tales, http.StatusOK)
}

// LoadTale handles GET /load_tale/{id}?type=
func (h *TaleHandler) LoadTale(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(r)
	if !ok {
		respondError(w, "Unknown tale type", http.StatusBadRequest)
		return
	}

	entry, err := h.repo.GetTale(r.Context(), kind, chi.URLParam(r, "id"))
	h.record(r, "load", err)
	if err != nil {
		if errors.Is(err, talestore.ErrNotFound) {
			respondError(w, "Tale not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load tale", "type", kind, "error", err)
		respondError(w, "Failed to load tale", http.StatusInternalServerError)
		return
	}

	respondJSON(w, entry, http.StatusOK)
}

// DeleteTale handles POST /delete_tale/{id}?type=
func (h *TaleHandler) DeleteTale(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(r)
	if !ok {
		respondError(w, "Unknown tale type", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	err := h.repo.DeleteTale(r.Context(), kind, id)
	h.record(r, "delete", err)
	if err != nil {
		if errors.Is(err, talestore.ErrNotFound) {
			respondError(w, "Tale not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete tale", "type", kind, "id", id, "error", err)
		respondError(w, "Failed to delete tale", http.StatusInternalServerError)
		return
	}

	respondJSON(w, storeResponse{Success: true, ID: id}, http.StatusOK)
}

// ClearTales handles POST /clear_tales with {"type": "all" | "history" | "favorites"}
func (h *TaleHandler) ClearTales(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "Invalid clear payload", http.StatusBadRequest)
		return
	}

	var kinds []types.CollectionKind
	switch req.Type {
	case "", "all":
		kinds = []types.CollectionKind{types.KindHistory, types.KindFavorites}
	default:
		kind := types.CollectionKind(req.Type)
		if !kind.Valid() {
			respondError(w, "Unknown tale type", http.StatusBadRequest)
			return
		}
		kinds = []types.CollectionKind{kind}
	}

	err := h.repo.ClearTales(r.Context(), kinds...)
	h.record(r, "clear", err)
	if err != nil {
		h.logger.Error("failed to clear tales", "type", req.Type, "error", err)
		respondError(w, "Failed to clear tales", http.StatusInternalServerError)
		return
	}

	respondJSON(w, storeResponse{Success: true}, http.StatusOK)
}

func (h *TaleHandler) record(r *http.Request, op string, err error) {
	if h.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.metrics.RecordStoreOperation(r.Context(), op, status)
}

// kindParam reads ?type=, defaulting to history
func kindParam(r *http.Request) (types.CollectionKind, bool) {
	kind := types.CollectionKind(r.URL.Query().Get("type"))
	if kind == "" {
		kind = types.KindHistory
	}
	return kind, kind.Valid()
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, storeResponse{Success: false, Error: message}, status)
}
