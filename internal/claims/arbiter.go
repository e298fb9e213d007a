package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/robertramos07281021/centralize-coordinator/internal/metrics"
	"github.com/rs/zerolog"
)

// Store is the subset of the record store claim mutations go through.
// ClaimAccount must be an atomic conditional update.
type Store interface {
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	ClaimAccount(ctx context.Context, accountID, agentID string) error
	ReleaseAccount(ctx context.Context, accountID, agentID string) error
	TransferAccount(ctx context.Context, accountID, agentID string) error
	SetAgentClaim(ctx context.Context, agentID, accountID string) error
}

// Roster resolves campaign membership for notification audiences
type Roster interface {
	Campaign(campaignID string) (domain.Campaign, bool)
}

// Publisher announces claim transitions
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Arbiter grants and revokes exclusive single-owner claims over accounts.
// Invariant: the item->agent and agent->item references always agree, and
// no two agents hold the same account.
type Arbiter struct {
	store     Store
	roster    Roster
	publisher Publisher
	logger    zerolog.Logger
}

// NewArbiter creates a new Arbiter
func NewArbiter(store Store, roster Roster, publisher Publisher, logger zerolog.Logger) *Arbiter {
	return &Arbiter{
		store:     store,
		roster:    roster,
		publisher: publisher,
		logger:    logger.With().Str("component", "claims").Logger(),
	}
}

// Claim grants the agent exclusive ownership of the account. An account the
// agent already holds is released first so the pairing stays one-to-one.
// Returns domain.ErrAlreadyClaimed when a different agent holds it.
func (a *Arbiter) Claim(ctx context.Context, agentID, accountID string) error {
	account, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	agent, err := a.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}

	if err := a.store.ClaimAccount(ctx, accountID, agentID); err != nil {
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			metrics.ClaimConflictsTotal.Inc()
			a.logger.Debug().
				Str("agent_id", agentID).
				Str("account_id", accountID).
				Str("held_by", account.ClaimedBy).
				Msg("claim rejected, account held by another agent")
		}
		return err
	}

	if prev := agent.ClaimedAccountID; prev != "" && prev != accountID {
		if err := a.store.ReleaseAccount(ctx, prev, agentID); err != nil {
			return fmt.Errorf("failed to release previous claim %s: %w", prev, err)
		}
		event := domain.ClaimEvent{
			Type:      "released",
			AccountID: prev,
			AgentID:   agentID,
			Timestamp: time.Now(),
		}
		if prevAccount, err := a.store.GetAccount(ctx, prev); err == nil {
			event.Audience = a.audience(prevAccount, agentID)
		}
		a.publisher.Publish(domain.TopicClaims, event)
	}

	if err := a.store.SetAgentClaim(ctx, agentID, accountID); err != nil {
		return fmt.Errorf("failed to set claim back-reference: %w", err)
	}

	a.publisher.Publish(domain.TopicClaims, domain.ClaimEvent{
		Type:      "claimed",
		AccountID: accountID,
		AgentID:   agentID,
		Audience:  a.audience(account, agentID),
		Timestamp: time.Now(),
	})
	return nil
}

// Release clears both sides of the pairing. Releasing an account the agent
// does not hold is not an error.
func (a *Arbiter) Release(ctx context.Context, agentID, accountID string) error {
	if err := a.store.ReleaseAccount(ctx, accountID, agentID); err != nil {
		return err
	}
	if err := a.store.SetAgentClaim(ctx, agentID, ""); err != nil {
		return fmt.Errorf("failed to clear claim back-reference: %w", err)
	}

	event := domain.ClaimEvent{
		Type:      "released",
		AccountID: accountID,
		AgentID:   agentID,
		Timestamp: time.Now(),
	}
	if account, err := a.store.GetAccount(ctx, accountID); err == nil {
		event.Audience = a.audience(account, agentID)
	}
	a.publisher.Publish(domain.TopicClaims, event)
	return nil
}

// ReleaseCurrent releases whatever the agent currently holds. Called
// unconditionally by offline reconciliation: the back-reference is cleared
// even if no claim record exists.
func (a *Arbiter) ReleaseCurrent(ctx context.Context, agentID string) error {
	agent, err := a.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if agent.ClaimedAccountID != "" {
		return a.Release(ctx, agentID, agent.ClaimedAccountID)
	}
	return a.store.SetAgentClaim(ctx, agentID, "")
}

// Transfer reassigns ownership administratively (team-lead escalation),
// bypassing the normal claim check. The previous owner's back-reference is
// cleared first so it is never left pointing at an account it no longer
// holds.
func (a *Arbiter) Transfer(ctx context.Context, accountID, newAgentID string) error {
	account, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if prev := account.ClaimedBy; prev != "" && prev != newAgentID {
		if err := a.store.SetAgentClaim(ctx, prev, ""); err != nil {
			return fmt.Errorf("failed to clear previous owner: %w", err)
		}
	}

	if err := a.store.TransferAccount(ctx, accountID, newAgentID); err != nil {
		return err
	}
	if err := a.store.SetAgentClaim(ctx, newAgentID, accountID); err != nil {
		return fmt.Errorf("failed to set claim back-reference: %w", err)
	}

	a.publisher.Publish(domain.TopicClaims, domain.ClaimEvent{
		Type:      "transferred",
		AccountID: accountID,
		AgentID:   newAgentID,
		Audience:  a.audience(account, newAgentID),
		Timestamp: time.Now(),
	})
	return nil
}

// audience computes who the claim event is relevant to: the account's
// assigned individual if it has one, otherwise the members of its campaign
// group, plus the acting agent.
func (a *Arbiter) audience(account *domain.Account, actorID string) []string {
	seen := map[string]bool{actorID: true}
	audience := []string{actorID}

	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			audience = append(audience, id)
		}
	}

	if account.AssignedUserID != "" {
		add(account.AssignedUserID)
		return audience
	}
	if campaign, ok := a.roster.Campaign(account.CampaignID); ok {
		for _, member := range campaign.Members {
			add(member)
		}
	}
	return audience
}
