package presence

import (
	"context"
	"time"

	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/robertramos07281021/centralize-coordinator/internal/metrics"
	"github.com/rs/zerolog"
)

// ClaimReleaser releases whatever account the agent currently holds.
type ClaimReleaser interface {
	ReleaseCurrent(ctx context.Context, agentID string) error
}

// LedgerCloser closes the agent's open production segments.
type LedgerCloser interface {
	CloseAllOpen(ctx context.Context, agentID string, terminal bool) error
}

// DialerControl is the slice of the dialer client the reconciler needs.
type DialerControl interface {
	IsLoggedIn(ctx context.Context, externalID, endpoint string) (bool, error)
	Logout(ctx context.Context, externalID, endpoint string) error
}

// Roster resolves campaign records for an agent's memberships.
type Roster interface {
	Campaign(id string) (domain.Campaign, bool)
}

// Store is the persistence slice used during reconciliation.
type Store interface {
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	SetAgentOffline(ctx context.Context, id string) error
}

// Publisher emits the final offline notification.
type Publisher interface {
	Publish(topic string, payload any)
}

// Reconciler runs the offline cleanup sequence for an agent: release the
// held claim, close open production segments with a terminal logout
// segment, log the agent out of the dialer, clear the session, and notify
// subscribers. Each step is attempted regardless of earlier failures so a
// broken dialer cannot leave claims or segments dangling.
type Reconciler struct {
	claims      ClaimReleaser
	ledger      LedgerCloser
	dialer      DialerControl
	roster      Roster
	store       Store
	publisher   Publisher
	callTimeout time.Duration
	logger      zerolog.Logger
}

func NewReconciler(claims ClaimReleaser, ledger LedgerCloser, dialer DialerControl, roster Roster, store Store, publisher Publisher, callTimeout time.Duration, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		claims:      claims,
		ledger:      ledger,
		dialer:      dialer,
		roster:      roster,
		store:       store,
		publisher:   publisher,
		callTimeout: callTimeout,
		logger:      logger.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile performs the full offline sequence for the agent. Step
// failures are logged and counted but never abort the remaining steps.
func (r *Reconciler) Reconcile(ctx context.Context, agentID string) {
	r.logger.Info().Str("agent_id", agentID).Msg("reconciling offline agent")

	if err := r.claims.ReleaseCurrent(ctx, agentID); err != nil {
		r.stepFailed(agentID, "release_claim", err)
	}

	if err := r.ledger.CloseAllOpen(ctx, agentID, true); err != nil {
		r.stepFailed(agentID, "close_segments", err)
	}

	r.dialerLogout(ctx, agentID)

	if err := r.store.SetAgentOffline(ctx, agentID); err != nil {
		r.stepFailed(agentID, "clear_session", err)
	}

	r.publisher.Publish(domain.TopicPresence, domain.PresenceEvent{
		Type:      "offline",
		AgentID:   agentID,
		Status:    domain.DialerStatusOffline,
		Timestamp: time.Now().UTC(),
	})
	metrics.ReconciliationsTotal.Inc()
}

// dialerLogout checks the first dialing-enabled campaign the agent belongs
// to and logs the agent out of that campaign's dialer when a session is
// still live there. Only the first such campaign is consulted.
func (r *Reconciler) dialerLogout(ctx context.Context, agentID string) {
	agent, err := r.store.GetAgent(ctx, agentID)
	if err != nil {
		r.stepFailed(agentID, "dialer_logout", err)
		return
	}
	if agent.DialerID == "" {
		return
	}

	var endpoint string
	for _, campaignID := range agent.Campaigns {
		campaign, ok := r.roster.Campaign(campaignID)
		if !ok || !campaign.CanCall {
			continue
		}
		endpoint = campaign.DialerEndpoint
		break
	}
	if endpoint == "" {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	loggedIn, err := r.dialer.IsLoggedIn(cctx, agent.DialerID, endpoint)
	if err != nil {
		r.stepFailed(agentID, "dialer_logout", err)
		return
	}
	if !loggedIn {
		return
	}
	if err := r.dialer.Logout(cctx, agent.DialerID, endpoint); err != nil {
		r.stepFailed(agentID, "dialer_logout", err)
		return
	}
	r.logger.Info().Str("agent_id", agentID).Str("dialer_id", agent.DialerID).Msg("dialer session terminated")
}

func (r *Reconciler) stepFailed(agentID, step string, err error) {
	metrics.ReconciliationStepErrors.WithLabelValues(step).Inc()
	r.logger.Error().Err(err).Str("agent_id", agentID).Str("step", step).Msg("reconciliation step failed")
}
