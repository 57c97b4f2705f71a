package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-engine/internal/queue"
)

// dlqHandler lets operators inspect and replay dead-lettered tasks.
type dlqHandler struct {
	store  queue.Store
	queue  queue.Enqueuer
	logger zerolog.Logger
}

func (h dlqHandler) routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/{id}/replay", h.replay)
}

func (h dlqHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := queue.DLQFilter{Kind: q.Get("kind")}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	entries, err := h.store.List(r.Context(), f)
	if err != nil {
		h.fail(w, err)
		return
	}
	total, err := h.store.Count(r.Context(), f.Kind)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": total})
}

func (h dlqHandler) replay(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := queue.Replay(r.Context(), h.store, h.queue, id); err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Info().Str("dlq_id", id.String()).Msg("dlq_replayed")
	w.WriteHeader(http.StatusAccepted)
}

func (h dlqHandler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, queue.ErrEntryNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error().Err(err).Msg("dlq_request_failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
