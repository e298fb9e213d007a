package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robertramos07281021/centralize-coordinator/internal/dialer"
	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/robertramos07281021/centralize-coordinator/internal/metrics"
	"github.com/rs/zerolog"
)

// StatusSource queries live agent status for one campaign endpoint
type StatusSource interface {
	PollStatuses(ctx context.Context, endpoint string) ([]dialer.AgentStatus, error)
}

// Roster resolves dialer identities and lists pollable campaigns
type Roster interface {
	Campaigns() []domain.Campaign
	Resolve(dialerID string) (agentID string, ok bool)
	ExpectedDialerIDs(campaignID string) []string
}

// Publisher announces presence events to interested subscribers
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Poller polls the dialer per campaign on a fixed interval, diffs results
// against the last-known snapshot per agent, and emits change events.
// The snapshot table is process-local.
type Poller struct {
	source      StatusSource
	roster      Roster
	publisher   Publisher
	interval    time.Duration
	callTimeout time.Duration
	staleAfter  time.Duration
	logger      zerolog.Logger

	mu        sync.Mutex
	snapshots map[string]domain.StatusSnapshot // agent id -> last observed
}

// NewPoller creates a new Poller
func NewPoller(source StatusSource, roster Roster, publisher Publisher, interval, callTimeout, staleAfter time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		source:      source,
		roster:      roster,
		publisher:   publisher,
		interval:    interval,
		callTimeout: callTimeout,
		staleAfter:  staleAfter,
		logger:      logger.With().Str("component", "poller").Logger(),
		snapshots:   make(map[string]domain.StatusSnapshot),
	}
}

// Start runs the perpetual polling loop until the context is cancelled
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Msg("dialer status poll loop started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("dialer status poll loop stopped")
			return
		case <-ticker.C:
			p.Pass(ctx)
		}
	}
}

// Pass performs one full poll pass, sequentially over campaigns. A failure
// on one campaign never blocks the next.
func (p *Poller) Pass(ctx context.Context) {
	for _, campaign := range p.roster.Campaigns() {
		p.pollCampaign(ctx, campaign)
	}
	p.pruneStale()
	metrics.PollCyclesTotal.Inc()
}

func (p *Poller) pollCampaign(ctx context.Context, campaign domain.Campaign) {
	cctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	statuses, err := p.source.PollStatuses(cctx, campaign.DialerEndpoint)
	errorPayload := errors.Is(err, dialer.ErrErrorPayload)
	if err != nil && !errorPayload {
		// Transport or parse failure: skip this campaign this cycle, do not
		// touch existing snapshots.
		metrics.PollErrorsTotal.Inc()
		p.logger.Warn().Err(err).Str("campaign_id", campaign.ID).Msg("campaign poll failed")
		return
	}

	seen := make(map[string]bool)
	now := time.Now()

	for _, line := range statuses {
		agentID, ok := p.roster.Resolve(line.ExternalID)
		if !ok {
			// Unresolvable identity: not an error, just not ours.
			continue
		}
		seen[agentID] = true

		next := domain.StatusSnapshot{
			Status:     line.Status,
			SubStatus:  line.SubStatus,
			AcctStatus: line.AcctStatus,
			CampaignID: campaign.ID,
			ObservedAt: now,
		}

		p.mu.Lock()
		prev, exists := p.snapshots[agentID]
		changed := !exists || !prev.Equal(next)
		if changed {
			p.snapshots[agentID] = next
		} else {
			// Same tuple: refresh observation time and owning campaign, no event.
			prev.ObservedAt = now
			prev.CampaignID = campaign.ID
			p.snapshots[agentID] = prev
		}
		p.mu.Unlock()

		if changed {
			metrics.StatusChangesTotal.Inc()
			p.publisher.Publish(domain.TopicPresence, domain.PresenceEvent{
				Type:       "status_change",
				AgentID:    agentID,
				Status:     next.Status,
				SubStatus:  next.SubStatus,
				AcctStatus: next.AcctStatus,
				CampaignID: campaign.ID,
				Timestamp:  now,
			})
		}
	}

	// Agents the roster expects on this campaign but who are absent from the
	// response, or everyone when the dialer answered with an error payload,
	// go offline if this campaign owns their last snapshot. A snapshot
	// written by another campaign stays: an agent expected on several
	// campaigns is online as long as one of them reports them.
	for _, dialerID := range p.roster.ExpectedDialerIDs(campaign.ID) {
		agentID, ok := p.roster.Resolve(dialerID)
		if !ok || seen[agentID] {
			continue
		}

		p.mu.Lock()
		snap, had := p.snapshots[agentID]
		had = had && snap.CampaignID == campaign.ID
		if had {
			delete(p.snapshots, agentID)
		}
		p.mu.Unlock()

		if had {
			metrics.OfflineEventsTotal.Inc()
			p.publisher.Publish(domain.TopicPresence, domain.PresenceEvent{
				Type:       "offline",
				AgentID:    agentID,
				Status:     domain.DialerStatusOffline,
				CampaignID: campaign.ID,
				Timestamp:  now,
			})
			p.logger.Debug().
				Str("agent_id", agentID).
				Str("campaign_id", campaign.ID).
				Bool("error_payload", errorPayload).
				Msg("agent missing from poll response, snapshot dropped")
		}
	}
}

// pruneStale drops snapshots not observed within the staleness threshold,
// e.g. for agents removed from the roster between passes.
func (p *Poller) pruneStale() {
	threshold := time.Now().Add(-p.staleAfter)

	p.mu.Lock()
	defer p.mu.Unlock()
	for agentID, snap := range p.snapshots {
		if snap.ObservedAt.Before(threshold) {
			delete(p.snapshots, agentID)
		}
	}
}

// Snapshot returns the last observed status for one agent
func (p *Poller) Snapshot(agentID string) (domain.StatusSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, ok := p.snapshots[agentID]
	return snap, ok
}

// Snapshots returns a copy of the full snapshot table
func (p *Poller) Snapshots() map[string]domain.StatusSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]domain.StatusSnapshot, len(p.snapshots))
	for id, snap := range p.snapshots {
		out[id] = snap
	}
	return out
}
