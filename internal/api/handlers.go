package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/robertramos07281021/centralize-coordinator/internal/auth"
	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/rs/zerolog"
)

// Coordinator is the operation surface the API exposes
type Coordinator interface {
	Login(ctx context.Context, agentID string) (string, error)
	Logout(ctx context.Context, agentID string) error
	SelectTask(ctx context.Context, agentID, accountID string) error
	DeselectTask(ctx context.Context, agentID, accountID string) error
	SwitchActivity(ctx context.Context, agentID string, activity domain.ActivityType) error
	TLEscalation(ctx context.Context, accountID, newAgentID string) error
	ForceLogout(ctx context.Context, agentID string) error
}

// LedgerView reads production entries for the history endpoint
type LedgerView interface {
	Entry(ctx context.Context, agentID, date string) (*domain.ProductionEntry, error)
}

// Handler provides the REST endpoints for agent session and task operations
type Handler struct {
	coord  Coordinator
	ledger LedgerView
	logger zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(coord Coordinator, ledger LedgerView, logger zerolog.Logger) *Handler {
	return &Handler{
		coord:  coord,
		ledger: ledger,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Login handles POST /api/session/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := h.coord.Login(r.Context(), claims.AgentID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info().Str("agent_id", claims.AgentID).Msg("login via API")
	writeJSON(w, http.StatusOK, map[string]string{
		"agentId": claims.AgentID,
		"token":   token,
	})
}

// Logout handles POST /api/session/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.coord.Logout(r.Context(), claims.AgentID); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info().Str("agent_id", claims.AgentID).Msg("logout via API")
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// SelectTask handles POST /api/tasks/{accountId}/select
func (h *Handler) SelectTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	accountID := chi.URLParam(r, "accountId")
	if accountID == "" {
		http.Error(w, "accountId is required", http.StatusBadRequest)
		return
	}

	if err := h.coord.SelectTask(r.Context(), claims.AgentID, accountID); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"accountId": accountID,
		"claimedBy": claims.AgentID,
	})
}

// DeselectTask handles POST /api/tasks/{accountId}/deselect
func (h *Handler) DeselectTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	accountID := chi.URLParam(r, "accountId")
	if accountID == "" {
		http.Error(w, "accountId is required", http.StatusBadRequest)
		return
	}

	if err := h.coord.DeselectTask(r.Context(), claims.AgentID, accountID); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"accountId": accountID})
}

// SwitchActivity handles POST /api/activity
func (h *Handler) SwitchActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		Activity string `json:"activity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	activity, ok := domain.ParseActivity(body.Activity)
	if !ok {
		http.Error(w, "unknown activity type", http.StatusBadRequest)
		return
	}

	if err := h.coord.SwitchActivity(r.Context(), claims.AgentID, activity); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"activity": string(activity)})
}

// Escalate handles POST /api/tasks/{accountId}/escalate. The caller (a
// team leader) takes over ownership of the account.
func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	accountID := chi.URLParam(r, "accountId")
	if accountID == "" {
		http.Error(w, "accountId is required", http.StatusBadRequest)
		return
	}

	if err := h.coord.TLEscalation(r.Context(), accountID, claims.AgentID); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info().
		Str("agent_id", claims.AgentID).
		Str("account_id", accountID).
		Msg("escalation via API")
	writeJSON(w, http.StatusOK, map[string]string{
		"accountId": accountID,
		"claimedBy": claims.AgentID,
	})
}

// Production handles GET /api/production/{date}, returning the caller's
// own ledger entry for that day
func (h *Handler) Production(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	date := chi.URLParam(r, "date")
	if date == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}

	entry, err := h.ledger.Entry(r.Context(), claims.AgentID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ForceLogout handles POST /api/admin/agents/{agentId}/force-logout
func (h *Handler) ForceLogout(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	if err := h.coord.ForceLogout(r.Context(), agentID); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info().Str("agent_id", agentID).Msg("force-logout via API")
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "agent logged out",
		"agentId": agentID,
	})
}

// writeError maps domain errors to HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAlreadyClaimed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrAgentOffline):
		writeJSON(w, http.StatusPreconditionFailed, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
