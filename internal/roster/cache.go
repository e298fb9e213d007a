package roster

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/rs/zerolog"
)

// RecordSource is the subset of the record store the cache reads from
type RecordSource interface {
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)
}

// snapshot is one point-in-time-consistent view of the roster. Readers get
// the whole struct through an atomic pointer so a refresh can never expose
// a partially-updated map.
type snapshot struct {
	byDialerID  map[string]string            // dialer id -> agent id
	byAgentID   map[string]string            // agent id -> dialer id
	campaigns   []domain.Campaign            // dialer-controllable campaigns
	campaignMap map[string]domain.Campaign   // campaign id -> campaign
	expected    map[string][]string          // campaign id -> member dialer ids
}

// Cache maps dialer agent identifiers to internal agent identifiers and
// tracks which campaigns are eligible for dialer control, fresh within
// one refresh interval.
type Cache struct {
	source   RecordSource
	interval time.Duration
	logger   zerolog.Logger
	snap     atomic.Pointer[snapshot]
}

// NewCache creates a roster cache refreshing on the given interval
func NewCache(source RecordSource, interval time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		source:   source,
		interval: interval,
		logger:   logger.With().Str("component", "roster").Logger(),
	}
}

// Refresh rebuilds the snapshot from the record store and swaps it in
// atomically. On failure the previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	agents, err := c.source.ListAgents(ctx)
	if err != nil {
		return err
	}
	campaigns, err := c.source.ListCampaigns(ctx)
	if err != nil {
		return err
	}

	next := &snapshot{
		byDialerID:  make(map[string]string, len(agents)),
		byAgentID:   make(map[string]string, len(agents)),
		campaignMap: make(map[string]domain.Campaign, len(campaigns)),
		expected:    make(map[string][]string),
	}

	dialerByAgent := make(map[string]string, len(agents))
	for _, agent := range agents {
		if agent.DialerID == "" {
			continue
		}
		next.byDialerID[agent.DialerID] = agent.ID
		next.byAgentID[agent.ID] = agent.DialerID
		dialerByAgent[agent.ID] = agent.DialerID
	}

	for _, campaign := range campaigns {
		next.campaignMap[campaign.ID] = campaign
		if !campaign.CanCall {
			continue
		}
		next.campaigns = append(next.campaigns, campaign)
		for _, agentID := range campaign.Members {
			if dialerID, ok := dialerByAgent[agentID]; ok {
				next.expected[campaign.ID] = append(next.expected[campaign.ID], dialerID)
			}
		}
	}

	c.snap.Store(next)
	return nil
}

// Start runs the refresh loop until the context is cancelled. Refresh
// failures are logged and the loop continues with the previous snapshot.
func (c *Cache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Msg("roster refresh loop started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("roster refresh loop stopped")
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("roster refresh failed, keeping previous snapshot")
			}
		}
	}
}

// Resolve maps a dialer agent identifier to the internal agent id
func (c *Cache) Resolve(dialerID string) (string, bool) {
	snap := c.snap.Load()
	if snap == nil {
		return "", false
	}
	agentID, ok := snap.byDialerID[dialerID]
	return agentID, ok
}

// DialerID maps an internal agent id back to its dialer identifier
func (c *Cache) DialerID(agentID string) (string, bool) {
	snap := c.snap.Load()
	if snap == nil {
		return "", false
	}
	dialerID, ok := snap.byAgentID[agentID]
	return dialerID, ok
}

// Campaigns returns the campaigns eligible for dialer control
func (c *Cache) Campaigns() []domain.Campaign {
	snap := c.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.campaigns
}

// Campaign returns one campaign by id, dialer-controllable or not
func (c *Cache) Campaign(campaignID string) (domain.Campaign, bool) {
	snap := c.snap.Load()
	if snap == nil {
		return domain.Campaign{}, false
	}
	campaign, ok := snap.campaignMap[campaignID]
	return campaign, ok
}

// ExpectedDialerIDs returns the dialer ids of the agents the roster expects
// on a campaign
func (c *Cache) ExpectedDialerIDs(campaignID string) []string {
	snap := c.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.expected[campaignID]
}
