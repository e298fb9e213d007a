package storage

import (
	"context"

	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
)

// Store is the durable record store the coordinator reads and writes.
// Claim mutations must be atomic conditional updates so the pairing stays
// correct when more than one instance of this process runs.
type Store interface {
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)

	// SetAgentSession marks the agent online with a live session token
	SetAgentSession(ctx context.Context, agentID, token string) error
	// SetAgentOffline marks the agent offline and clears its session token
	SetAgentOffline(ctx context.Context, agentID string) error
	// SetAgentClaim sets the agent's claimed-account back-reference;
	// an empty accountID clears it
	SetAgentClaim(ctx context.Context, agentID, accountID string) error

	GetProductionEntry(ctx context.Context, agentID, date string) (*domain.ProductionEntry, error)
	PutProductionEntry(ctx context.Context, entry domain.ProductionEntry) error

	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	// ClaimAccount sets ClaimedBy only if currently unset or already the
	// same agent; returns domain.ErrAlreadyClaimed otherwise
	ClaimAccount(ctx context.Context, accountID, agentID string) error
	// ReleaseAccount clears ClaimedBy if held by the given agent.
	// Releasing an account the agent does not hold is not an error.
	ReleaseAccount(ctx context.Context, accountID, agentID string) error
	// TransferAccount sets ClaimedBy unconditionally (escalation path)
	TransferAccount(ctx context.Context, accountID, agentID string) error

	// ListAssignedAccounts returns accounts with an assigned individual,
	// for the nightly unassignment job
	ListAssignedAccounts(ctx context.Context) ([]domain.Account, error)
	UnassignAccount(ctx context.Context, accountID string) error
}
