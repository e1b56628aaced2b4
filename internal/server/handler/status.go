package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// StatusHandler reports the run mode and the indexing checkpoint.
type StatusHandler struct {
	store      domain.EntityStore
	checkpoint string
	mode       string
	startedAt  time.Time
	logger     *slog.Logger
}

// NewStatusHandler creates a StatusHandler reading the named checkpoint.
func NewStatusHandler(store domain.EntityStore, checkpoint, mode string, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		store:      store,
		checkpoint: checkpoint,
		mode:       mode,
		startedAt:  time.Now().UTC(),
		logger:     logger,
	}
}

type statusResponse struct {
	Mode          string             `json:"mode"`
	UptimeSeconds int64              `json:"uptimeSeconds"`
	Checkpoint    *domain.Checkpoint `json:"checkpoint"`
}

// GetStatus returns the mode, uptime and last committed event. The
// checkpoint is null before the first commit.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          h.mode,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	cp, err := h.store.Checkpoint(r.Context(), h.checkpoint)
	switch {
	case err == nil:
		resp.Checkpoint = &cp
	case errors.Is(err, domain.ErrNotFound):
	default:
		h.logger.ErrorContext(r.Context(), "read checkpoint failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read checkpoint")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
