package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

const (
	defaultRankLimit = 50
	maxRankLimit     = 500
)

// sortKeys maps the public sort names onto ranking keys.
var sortKeys = map[string]domain.RankKey{
	"liquidity":         domain.RankScaledLiquidity,
	"usdLiquidity":      domain.RankUSDLiquidity,
	"volume":            domain.RankScaledVolume,
	"usdVolume":         domain.RankUSDVolume,
	"creation":          domain.RankCreationTimestamp,
	"dailyVolume":       domain.RankDailyVolume,
	"scaledDailyVolume": domain.RankScaledDailyVolume,
	"24hVolume":         domain.RankSort24HourVolumePfx,
}

// EntityHandler serves single entities and market rankings straight from the
// store documents.
type EntityHandler struct {
	store  domain.EntityStore
	now    func() time.Time
	logger *slog.Logger
}

// NewEntityHandler creates an EntityHandler.
func NewEntityHandler(store domain.EntityStore, logger *slog.Logger) *EntityHandler {
	return &EntityHandler{store: store, now: time.Now, logger: logger}
}

// GetMarket serves GET /api/markets/{id}.
func (h *EntityHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, domain.KindMarket, strings.ToLower(r.PathValue("id")))
}

// GetToken serves GET /api/tokens/{id}.
func (h *EntityHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, domain.KindToken, strings.ToLower(r.PathValue("id")))
}

// GetQuestion serves GET /api/questions/{id}. Question ids are hex hashes.
func (h *EntityHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, domain.KindQuestion, strings.ToLower(r.PathValue("id")))
}

func (h *EntityHandler) serve(w http.ResponseWriter, r *http.Request, kind domain.EntityKind, id string) {
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	doc, err := h.store.Get(r.Context(), kind, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, strings.ToLower(string(kind))+" not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get entity failed",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read entity")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type rankResponse struct {
	Sort    string            `json:"sort"`
	Hour    *int              `json:"hour,omitempty"`
	Limit   int               `json:"limit"`
	Markets []json.RawMessage `json:"markets"`
}

// ListMarkets ranks markets by one of the fixed sort keys, highest first.
// For 24hVolume the hour defaults to the current UTC hour.
// GET /api/markets?sort=usdVolume&limit=50&hour=13
func (h *EntityHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("sort")
	if name == "" {
		name = "usdVolume"
	}
	key, ok := sortKeys[name]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown sort key "+name)
		return
	}
	limit := min(queryInt(r, "limit", defaultRankLimit), maxRankLimit)
	if limit == 0 {
		limit = defaultRankLimit
	}
	q := domain.RankQuery{Key: key, Limit: limit}
	resp := rankResponse{Sort: name, Limit: limit}
	if key == domain.RankSort24HourVolumePfx {
		q.Hour = queryInt(r, "hour", h.now().UTC().Hour())
		if q.Hour >= domain.HoursPerDay {
			writeError(w, http.StatusBadRequest, "hour must be between 0 and 23")
			return
		}
		resp.Hour = &q.Hour
	}

	docs, err := h.store.RankMarkets(r.Context(), q)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "rank markets failed",
			slog.String("sort", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to rank markets")
		return
	}
	resp.Markets = docs
	if resp.Markets == nil {
		resp.Markets = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, resp)
}
