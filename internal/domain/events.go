package domain

import "time"

// Notification topics published through the fan-out
const (
	TopicPresence   = "presence"
	TopicClaims     = "claims"
	TopicProduction = "production"
)

// PresenceEvent announces a change in an agent's dialer or session status
type PresenceEvent struct {
	Type       string    `json:"type"` // "status_change", "login", "offline"
	AgentID    string    `json:"agentId"`
	Status     string    `json:"status"`
	SubStatus  string    `json:"subStatus,omitempty"`
	AcctStatus string    `json:"acctStatus,omitempty"`
	CampaignID string    `json:"campaignId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ClaimEvent announces a claim, release, or transfer of an account.
// Audience lists the agent ids the event is relevant to; an empty audience
// means broadcast.
type ClaimEvent struct {
	Type      string    `json:"type"` // "claimed", "released", "transferred"
	AccountID string    `json:"accountId"`
	AgentID   string    `json:"agentId,omitempty"`
	Audience  []string  `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// ProductionEvent announces a segment open or close
type ProductionEvent struct {
	Type      string       `json:"type"` // "segment_opened", "segment_closed"
	AgentID   string       `json:"agentId"`
	Activity  ActivityType `json:"activity"`
	Date      string       `json:"date"`
	Timestamp time.Time    `json:"timestamp"`
}
