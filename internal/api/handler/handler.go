// Package handler provides HTTP handlers for all API endpoints. Handlers
// read straight from the store; there is no service layer.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/albapepper/cricket-data/internal/api/respond"
	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Store is the read side of the persistence layer the API needs.
type Store interface {
	store.Reader
	GetMatch(ctx context.Context, matchID string) (provider.Match, error)
	PendingMatches(ctx context.Context, stage provider.Stage, maxFailures int) ([]provider.Match, error)
	Ping(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store       Store
	maxFailures int
	logger      *slog.Logger
}

// New creates a Handler. maxFailures is the stage failure limit used to
// report pending and exhausted matches.
func New(st Store, maxFailures int, logger *slog.Logger) *Handler {
	return &Handler{store: st, maxFailures: maxFailures, logger: logger}
}

// MatchDetail is a match with its stage run history.
type MatchDetail struct {
	provider.Match
	Stages []store.StageRun `json:"stages"`
}

// --------------------------------------------------------------------------
// Meta and health
// --------------------------------------------------------------------------

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":   "Cricket Data API",
		"status": "running",
		"docs":   "/docs/index.html",
		"stages": provider.Stages,
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies store connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// --------------------------------------------------------------------------
// Matches
// --------------------------------------------------------------------------

// ListMatches returns registered matches, newest first. Query parameters:
// format (T20I, ODI, Test, Unknown), limit and offset.
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.MatchFilter{Limit: defaultLimit}

	if f := q.Get("format"); f != "" {
		format := provider.ParseFormat(f)
		if format == provider.FormatUnknown && !strings.EqualFold(f, string(provider.FormatUnknown)) {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_FORMAT", "format must be one of T20I, ODI, Test, Unknown")
			return
		}
		filter.Format = format
	}

	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit", defaultLimit); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset", 0); !ok {
		return
	}
	filter.Limit = min(max(filter.Limit, 1), maxLimit)

	matches, err := h.store.ListMatches(r.Context(), filter)
	if err != nil {
		h.internalError(w, "list matches", err)
		return
	}
	if matches == nil {
		matches = []provider.Match{}
	}
	respond.WriteJSON(w, r, map[string]any{
		"matches": matches,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// GetMatch returns one match with its stage runs.
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, ok := h.match(w, r)
	if !ok {
		return
	}
	runs, err := h.store.StageRunsFor(r.Context(), m.ID)
	if err != nil {
		h.internalError(w, "stage runs", err)
		return
	}
	if runs == nil {
		runs = []store.StageRun{}
	}
	respond.WriteJSON(w, r, MatchDetail{Match: m, Stages: runs})
}

// GetScorecard returns the batting and bowling lines of a match.
func (h *Handler) GetScorecard(w http.ResponseWriter, r *http.Request) {
	m, ok := h.match(w, r)
	if !ok {
		return
	}
	sc, err := h.store.Scorecard(r.Context(), m.ID)
	if err != nil {
		h.internalError(w, "scorecard", err)
		return
	}
	if sc.Batting == nil {
		sc.Batting = []store.BattingRow{}
	}
	if sc.Bowling == nil {
		sc.Bowling = []store.BowlingRow{}
	}
	respond.WriteJSON(w, r, sc)
}

// GetAwards returns the awards of a match.
func (h *Handler) GetAwards(w http.ResponseWriter, r *http.Request) {
	m, ok := h.match(w, r)
	if !ok {
		return
	}
	awards, err := h.store.Awards(r.Context(), m.ID)
	if err != nil {
		h.internalError(w, "awards", err)
		return
	}
	if awards == nil {
		awards = []store.AwardRow{}
	}
	respond.WriteJSON(w, r, map[string]any{"match_id": m.ID, "awards": awards})
}

// GetSquad returns the squads of a match.
func (h *Handler) GetSquad(w http.ResponseWriter, r *http.Request) {
	m, ok := h.match(w, r)
	if !ok {
		return
	}
	squad, err := h.store.Squad(r.Context(), m.ID)
	if err != nil {
		h.internalError(w, "squad", err)
		return
	}
	if squad == nil {
		squad = []store.SquadRow{}
	}
	respond.WriteJSON(w, r, map[string]any{"match_id": m.ID, "squad": squad})
}

// --------------------------------------------------------------------------
// Stages
// --------------------------------------------------------------------------

// GetStageStatus returns completion counts for every stage.
func (h *Handler) GetStageStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.store.StageStatus(r.Context(), h.maxFailures)
	if err != nil {
		h.internalError(w, "stage status", err)
		return
	}
	respond.WriteJSON(w, r, map[string]any{"stages": status, "max_failures": h.maxFailures})
}

// GetPendingMatches returns the matches a stage still has to process.
func (h *Handler) GetPendingMatches(w http.ResponseWriter, r *http.Request) {
	stage, ok := provider.ParseStage(chi.URLParam(r, "stage"))
	if !ok {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_STAGE", "stage must be one of scorecard, awards, squad")
		return
	}
	matches, err := h.store.PendingMatches(r.Context(), stage, h.maxFailures)
	if err != nil {
		h.internalError(w, "pending matches", err)
		return
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	respond.WriteJSON(w, r, map[string]any{"stage": stage, "match_ids": ids})
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// match loads the match named in the URL, writing the error response when
// it cannot.
func (h *Handler) match(w http.ResponseWriter, r *http.Request) (provider.Match, bool) {
	id := chi.URLParam(r, "matchID")
	m, err := h.store.GetMatch(r.Context(), id)
	switch {
	case err == nil:
		return m, true
	case errors.Is(err, store.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No match "+id)
	default:
		h.internalError(w, "get match", err)
	}
	return provider.Match{}, false
}

func (h *Handler) internalError(w http.ResponseWriter, what string, err error) {
	h.logger.Error("Query failed", "query", what, "error", err)
	respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Query failed")
}

func intParam(w http.ResponseWriter, raw, name string, fallback int) (int, bool) {
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_"+strings.ToUpper(name), name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
