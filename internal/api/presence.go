package api

import (
	"net/http"
	"sort"

	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/rs/zerolog"
)

// StatusView exposes the poller's last observed dialer statuses
type StatusView interface {
	Snapshots() map[string]domain.StatusSnapshot
}

// PresenceView exposes the tracker's online determination
type PresenceView interface {
	OnlineAgents() []string
}

// PresenceEntry is one agent in the presence snapshot payload
type PresenceEntry struct {
	AgentID    string `json:"agentId"`
	Online     bool   `json:"online"`
	Status     string `json:"status,omitempty"`
	SubStatus  string `json:"subStatus,omitempty"`
	AcctStatus string `json:"acctStatus,omitempty"`
	CampaignID string `json:"campaignId,omitempty"`
}

// PresenceHandler serves the current presence picture for the reporting layer
type PresenceHandler struct {
	statuses StatusView
	presence PresenceView
	logger   zerolog.Logger
}

// NewPresenceHandler creates a new PresenceHandler
func NewPresenceHandler(statuses StatusView, presence PresenceView, logger zerolog.Logger) *PresenceHandler {
	return &PresenceHandler{
		statuses: statuses,
		presence: presence,
		logger:   logger.With().Str("component", "presence_api").Logger(),
	}
}

// Snapshot handles GET /api/presence. It merges the tracker's connection
// view with the poller's dialer statuses: an agent appears when it either
// holds a live connection or was seen on a dialer this pass.
func (h *PresenceHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	online := make(map[string]bool)
	for _, agentID := range h.presence.OnlineAgents() {
		online[agentID] = true
	}

	snapshots := h.statuses.Snapshots()

	entries := make(map[string]PresenceEntry, len(online)+len(snapshots))
	for agentID := range online {
		entries[agentID] = PresenceEntry{AgentID: agentID, Online: true}
	}
	for agentID, snap := range snapshots {
		entries[agentID] = PresenceEntry{
			AgentID:    agentID,
			Online:     online[agentID],
			Status:     snap.Status,
			SubStatus:  snap.SubStatus,
			AcctStatus: snap.AcctStatus,
			CampaignID: snap.CampaignID,
		}
	}

	payload := make([]PresenceEntry, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, entry)
	}
	sort.Slice(payload, func(i, j int) bool { return payload[i].AgentID < payload[j].AgentID })

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": payload,
		"count":  len(payload),
	})
}
