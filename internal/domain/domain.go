package domain

import "time"

// ActivityType classifies a production segment
type ActivityType string

const (
	ActivityCall     ActivityType = "CALL"
	ActivityBreak    ActivityType = "BREAK"
	ActivityLunch    ActivityType = "LUNCH"
	ActivityMeeting  ActivityType = "MEETING"
	ActivityCoaching ActivityType = "COACHING"
	ActivityTraining ActivityType = "TRAINING"
	ActivityLogout   ActivityType = "LOGOUT"
)

// ParseActivity validates a client-supplied activity name. LOGOUT is not
// selectable; it is written only by the logout path.
func ParseActivity(s string) (ActivityType, bool) {
	switch a := ActivityType(s); a {
	case ActivityCall, ActivityBreak, ActivityLunch, ActivityMeeting, ActivityCoaching, ActivityTraining:
		return a, true
	default:
		return "", false
	}
}

// DialerStatus values as reported by the dialer control API
const (
	DialerStatusReady   = "READY"
	DialerStatusInCall  = "INCALL"
	DialerStatusPaused  = "PAUSED"
	DialerStatusDispo   = "DISPO"
	DialerStatusOffline = "OFFLINE"
)

// Agent is the persisted employment record plus its transient presence fields
type Agent struct {
	ID               string   `json:"agentId" dynamodbav:"AgentID"`
	Name             string   `json:"name" dynamodbav:"Name"`
	DialerID         string   `json:"dialerId" dynamodbav:"DialerID"`
	Campaigns        []string `json:"campaigns" dynamodbav:"Campaigns"`
	Online           bool     `json:"online" dynamodbav:"Online"`
	SessionToken     string   `json:"-" dynamodbav:"SessionToken"`
	ClaimedAccountID string   `json:"claimedAccountId,omitempty" dynamodbav:"ClaimedAccountID"`
}

// Campaign is a named pool of accounts and agents sharing a dialer endpoint
type Campaign struct {
	ID             string   `json:"campaignId" dynamodbav:"CampaignID"`
	Name           string   `json:"name" dynamodbav:"Name"`
	DialerEndpoint string   `json:"dialerEndpoint" dynamodbav:"DialerEndpoint"`
	CanCall        bool     `json:"canCall" dynamodbav:"CanCall"`
	Members        []string `json:"members" dynamodbav:"Members"`
}

// Account is a customer work item agents claim exclusive ownership of
type Account struct {
	ID             string `json:"accountId" dynamodbav:"AccountID"`
	CustomerName   string `json:"customerName" dynamodbav:"CustomerName"`
	CampaignID     string `json:"campaignId" dynamodbav:"CampaignID"`
	AssignedUserID string `json:"assignedUserId,omitempty" dynamodbav:"AssignedUserID"`
	ClaimedBy      string `json:"claimedBy,omitempty" dynamodbav:"ClaimedBy"`
}

// StatusSnapshot is the last status tuple observed for an agent on the dialer.
// Process-local; replaced wholesale only when a field actually changed.
type StatusSnapshot struct {
	Status     string    `json:"status"`
	SubStatus  string    `json:"subStatus"`
	AcctStatus string    `json:"acctStatus"`
	CampaignID string    `json:"campaignId"`
	ObservedAt time.Time `json:"observedAt"`
}

// Equal reports whether the status fields match (ObservedAt and campaign are
// not part of change detection)
func (s StatusSnapshot) Equal(o StatusSnapshot) bool {
	return s.Status == o.Status && s.SubStatus == o.SubStatus && s.AcctStatus == o.AcctStatus
}

// Segment is one time-bounded activity interval inside a production entry.
// End == nil means the segment is still open.
type Segment struct {
	ID       string       `json:"segmentId" dynamodbav:"SegmentID"`
	Activity ActivityType `json:"activity" dynamodbav:"Activity"`
	Start    time.Time    `json:"start" dynamodbav:"Start"`
	End      *time.Time   `json:"end,omitempty" dynamodbav:"End"`
}

// Open reports whether the segment has no end timestamp yet
func (s Segment) Open() bool { return s.End == nil }

// ProductionEntry is one agent's activity ledger for one calendar day.
// Invariant: at most one segment is open at any time.
type ProductionEntry struct {
	AgentID  string    `json:"agentId" dynamodbav:"AgentID"`
	Date     string    `json:"date" dynamodbav:"Date"` // YYYY-MM-DD
	Segments []Segment `json:"segments" dynamodbav:"Segments"`
}

// OpenSegment returns the index of the open segment, or -1 if none
func (e *ProductionEntry) OpenSegment() int {
	for i := range e.Segments {
		if e.Segments[i].Open() {
			return i
		}
	}
	return -1
}

// DateKey formats t as a ledger entry date key
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
