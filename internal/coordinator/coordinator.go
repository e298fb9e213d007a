package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/rs/zerolog"
)

// Store is the persistence slice the coordinator operations touch directly
type Store interface {
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	SetAgentSession(ctx context.Context, agentID, token string) error
}

// Ledger mutates the agent's production segments
type Ledger interface {
	OpenSegment(ctx context.Context, agentID string, activity domain.ActivityType) error
	EnsureOpen(ctx context.Context, agentID string, activity domain.ActivityType) error
}

// Claims grants and revokes account ownership
type Claims interface {
	Claim(ctx context.Context, agentID, accountID string) error
	Release(ctx context.Context, agentID, accountID string) error
	Transfer(ctx context.Context, accountID, newAgentID string) error
}

// Tracker is the presence state the coordinator consults and drops on logout
type Tracker interface {
	Drop(agentID string)
	IsOnline(agentID string) bool
}

// Reconciler runs the full offline side-effect sequence
type Reconciler interface {
	Reconcile(ctx context.Context, agentID string)
}

// Publisher announces presence transitions
type Publisher interface {
	Publish(topic string, payload interface{})
}

// ConnectionCloser force-closes an agent's live connections. Optional;
// wired after the connection layer is constructed.
type ConnectionCloser interface {
	CloseAgent(agentID string)
}

// Coordinator is the API-facing facade over presence, production, and
// claims. Every operation on one agent is mutually exclusive with every
// other operation on that same agent, including timer-triggered
// reconciliation; operations on different agents never contend.
type Coordinator struct {
	store      Store
	ledger     Ledger
	claims     Claims
	reconciler Reconciler
	publisher  Publisher
	logger     zerolog.Logger

	tracker Tracker
	closer  ConnectionCloser

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store Store, ledger Ledger, claims Claims, reconciler Reconciler, publisher Publisher, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		ledger:     ledger,
		claims:     claims,
		reconciler: reconciler,
		publisher:  publisher,
		logger:     logger.With().Str("component", "coordinator").Logger(),
		locks:      make(map[string]*sync.Mutex),
	}
}

// SetTracker wires the presence tracker. The tracker needs the
// coordinator's offline handler at construction, so it is attached after.
func (c *Coordinator) SetTracker(t Tracker) { c.tracker = t }

// SetConnectionCloser wires the connection layer's force-close hook
func (c *Coordinator) SetConnectionCloser(cl ConnectionCloser) { c.closer = cl }

func (c *Coordinator) agentLock(agentID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[agentID] = l
	}
	return l
}

// Login marks the agent online, issues a session token, and opens today's
// production entry with a CALL segment if none is open yet.
func (c *Coordinator) Login(ctx context.Context, agentID string) (string, error) {
	l := c.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	if _, err := c.store.GetAgent(ctx, agentID); err != nil {
		return "", fmt.Errorf("login %s: %w", agentID, err)
	}

	token := uuid.NewString()
	if err := c.store.SetAgentSession(ctx, agentID, token); err != nil {
		return "", fmt.Errorf("login %s: %w", agentID, err)
	}
	if err := c.ledger.EnsureOpen(ctx, agentID, domain.ActivityCall); err != nil {
		return "", fmt.Errorf("login %s: %w", agentID, err)
	}

	c.publisher.Publish(domain.TopicPresence, domain.PresenceEvent{
		Type:      "login",
		AgentID:   agentID,
		Timestamp: time.Now().UTC(),
	})
	c.logger.Info().Str("agent_id", agentID).Msg("agent logged in")
	return token, nil
}

// Logout runs the full offline sequence immediately, bypassing the
// debounce. The tracker entry is dropped first so the pending timer (if
// any) cannot reconcile a second time.
func (c *Coordinator) Logout(ctx context.Context, agentID string) error {
	l := c.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	if c.tracker != nil {
		c.tracker.Drop(agentID)
	}
	c.reconciler.Reconcile(ctx, agentID)
	c.logger.Info().Str("agent_id", agentID).Msg("agent logged out")
	return nil
}

// SelectTask claims the account for the agent. Returns
// domain.ErrAlreadyClaimed when another agent holds it and
// domain.ErrAgentOffline when the agent has no live presence.
func (c *Coordinator) SelectTask(ctx context.Context, agentID, accountID string) error {
	l := c.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	if c.tracker != nil && !c.tracker.IsOnline(agentID) {
		return domain.ErrAgentOffline
	}
	return c.claims.Claim(ctx, agentID, accountID)
}

// DeselectTask releases the agent's claim on the account. Releasing an
// account the agent does not hold is not an error.
func (c *Coordinator) DeselectTask(ctx context.Context, agentID, accountID string) error {
	l := c.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	return c.claims.Release(ctx, agentID, accountID)
}

// SwitchActivity closes the agent's open segment and opens a new one of
// the given type.
func (c *Coordinator) SwitchActivity(ctx context.Context, agentID string, activity domain.ActivityType) error {
	l := c.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	return c.ledger.OpenSegment(ctx, agentID, activity)
}

// TLEscalation transfers ownership of the account to the team leader,
// bypassing the normal claim path. Serialized on the receiving agent.
func (c *Coordinator) TLEscalation(ctx context.Context, accountID, newAgentID string) error {
	l := c.agentLock(newAgentID)
	l.Lock()
	defer l.Unlock()

	return c.claims.Transfer(ctx, accountID, newAgentID)
}

// ForceLogout closes every live connection for the agent and runs the
// offline sequence immediately. Admin operation.
func (c *Coordinator) ForceLogout(ctx context.Context, agentID string) error {
	if c.closer != nil {
		c.closer.CloseAgent(agentID)
	}
	return c.Logout(ctx, agentID)
}

// HandleOffline is the presence tracker's debounce-expiry callback. It
// takes the same per-agent lock as the API operations, so a reconciliation
// cannot interleave with an explicit logout for the same agent.
func (c *Coordinator) HandleOffline(agentID string) {
	l := c.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.reconciler.Reconcile(ctx, agentID)
}
