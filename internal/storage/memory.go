package storage

import (
	"context"
	"sync"

	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
)

// MemoryStore is an in-memory Store used when DynamoDB is disabled and as
// the test double. Mutations take the same conditional-update semantics as
// the DynamoDB implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	agents    map[string]*domain.Agent
	campaigns map[string]*domain.Campaign
	accounts  map[string]*domain.Account
	entries   map[string]*domain.ProductionEntry // agentID + "#" + date
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:    make(map[string]*domain.Agent),
		campaigns: make(map[string]*domain.Campaign),
		accounts:  make(map[string]*domain.Account),
		entries:   make(map[string]*domain.ProductionEntry),
	}
}

// PutAgent inserts or replaces an agent record (seeding helper)
func (s *MemoryStore) PutAgent(agent domain.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := agent
	s.agents[agent.ID] = &copied
}

// PutCampaign inserts or replaces a campaign record (seeding helper)
func (s *MemoryStore) PutCampaign(campaign domain.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := campaign
	s.campaigns[campaign.ID] = &copied
}

// PutAccount inserts or replaces an account record (seeding helper)
func (s *MemoryStore) PutAccount(account domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := account
	s.accounts[account.ID] = &copied
}

func (s *MemoryStore) GetAgent(_ context.Context, agentID string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *agent
	return &copied, nil
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, *a)
	}
	return agents, nil
}

func (s *MemoryStore) ListCampaigns(_ context.Context) ([]domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	campaigns := make([]domain.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		campaigns = append(campaigns, *c)
	}
	return campaigns, nil
}

func (s *MemoryStore) SetAgentSession(_ context.Context, agentID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return domain.ErrNotFound
	}
	agent.Online = true
	agent.SessionToken = token
	return nil
}

func (s *MemoryStore) SetAgentOffline(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return domain.ErrNotFound
	}
	agent.Online = false
	agent.SessionToken = ""
	return nil
}

func (s *MemoryStore) SetAgentClaim(_ context.Context, agentID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return domain.ErrNotFound
	}
	agent.ClaimedAccountID = accountID
	return nil
}

func (s *MemoryStore) GetProductionEntry(_ context.Context, agentID, date string) (*domain.ProductionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[agentID+"#"+date]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *entry
	copied.Segments = append([]domain.Segment(nil), entry.Segments...)
	return &copied, nil
}

func (s *MemoryStore) PutProductionEntry(_ context.Context, entry domain.ProductionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := entry
	copied.Segments = append([]domain.Segment(nil), entry.Segments...)
	s.entries[entry.AgentID+"#"+entry.Date] = &copied
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *MemoryStore) ClaimAccount(_ context.Context, accountID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	if account.ClaimedBy != "" && account.ClaimedBy != agentID {
		return domain.ErrAlreadyClaimed
	}
	account.ClaimedBy = agentID
	return nil
}

func (s *MemoryStore) ReleaseAccount(_ context.Context, accountID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil
	}
	if account.ClaimedBy == agentID {
		account.ClaimedBy = ""
	}
	return nil
}

func (s *MemoryStore) TransferAccount(_ context.Context, accountID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	account.ClaimedBy = agentID
	return nil
}

func (s *MemoryStore) ListAssignedAccounts(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var accounts []domain.Account
	for _, a := range s.accounts {
		if a.AssignedUserID != "" {
			accounts = append(accounts, *a)
		}
	}
	return accounts, nil
}

func (s *MemoryStore) UnassignAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	account.AssignedUserID = ""
	return nil
}
