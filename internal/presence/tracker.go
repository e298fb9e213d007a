package presence

import (
	"sync"
	"time"

	"github.com/robertramos07281021/centralize-coordinator/internal/metrics"
	"github.com/rs/zerolog"
)

// Tracker multiplexes possibly many simultaneous connections per agent
// into one online/offline determination. A disconnect that empties an
// agent's connection set arms a debounce timer instead of declaring the
// agent offline immediately, absorbing reconnect churn.
//
// Per-agent state machine:
//
//	no entry -> online (>=1 connection) -> pending offline (0 connections,
//	timer armed) -> online again (connect cancels timer) or offline
//	(timer fires with the set still empty; entry removed, handler runs).
type Tracker struct {
	debounce  time.Duration
	onOffline func(agentID string)
	logger    zerolog.Logger

	mu     sync.Mutex
	conns  map[string]map[string]struct{} // agent id -> connection handles
	timers map[string]*offlineTimer       // agent id -> pending-offline timer
}

// offlineTimer wraps the debounce timer so a fired callback can tell
// whether it still owns the agent's map entry. A cancel that races the
// firing callback (Stop returns false) removes the entry without touching
// the gauge; the callback then finds itself superseded and decrements
// exactly once.
type offlineTimer struct {
	timer *time.Timer
}

// NewTracker creates a Tracker with the given debounce window. onOffline
// runs once per genuine offline transition, on the timer's goroutine.
func NewTracker(debounce time.Duration, onOffline func(agentID string), logger zerolog.Logger) *Tracker {
	return &Tracker{
		debounce:  debounce,
		onOffline: onOffline,
		logger:    logger.With().Str("component", "presence").Logger(),
		conns:     make(map[string]map[string]struct{}),
		timers:    make(map[string]*offlineTimer),
	}
}

// OnConnect adds a connection handle to the agent's set and cancels any
// pending-offline timer.
func (t *Tracker) OnConnect(agentID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pending, ok := t.timers[agentID]; ok {
		if pending.timer.Stop() {
			metrics.PendingOfflineTimers.Dec()
		}
		delete(t.timers, agentID)
		t.logger.Debug().Str("agent_id", agentID).Msg("reconnect cancelled pending offline")
	}

	set, ok := t.conns[agentID]
	if !ok {
		set = make(map[string]struct{})
		t.conns[agentID] = set
		metrics.OnlineAgents.Inc()
	}
	set[connID] = struct{}{}
	metrics.ConnectsTotal.Inc()

	t.logger.Debug().
		Str("agent_id", agentID).
		Str("conn_id", connID).
		Int("connections", len(set)).
		Msg("connection opened")
}

// OnDisconnect removes a connection handle. When the set becomes empty a
// debounce timer is armed; the agent is declared offline only if the set
// is still empty when it fires.
func (t *Tracker) OnDisconnect(agentID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.conns[agentID]
	if !ok {
		return
	}
	if _, ok := set[connID]; !ok {
		return
	}
	delete(set, connID)
	metrics.DisconnectsTotal.Inc()

	t.logger.Debug().
		Str("agent_id", agentID).
		Str("conn_id", connID).
		Int("connections", len(set)).
		Msg("connection closed")

	if len(set) > 0 {
		return
	}
	if _, armed := t.timers[agentID]; armed {
		return
	}

	pending := &offlineTimer{}
	pending.timer = time.AfterFunc(t.debounce, func() { t.timerFired(agentID, pending) })
	t.timers[agentID] = pending
	metrics.PendingOfflineTimers.Inc()
	t.logger.Debug().
		Str("agent_id", agentID).
		Dur("debounce", t.debounce).
		Msg("last connection closed, offline timer armed")
}

// timerFired re-checks emptiness before acting: a connection may have
// arrived and left again since the timer was armed.
func (t *Tracker) timerFired(agentID string, pending *offlineTimer) {
	t.mu.Lock()
	// This arm was not stopped in time, so the gauge decrement belongs here.
	metrics.PendingOfflineTimers.Dec()
	if t.timers[agentID] != pending {
		// Cancelled while firing; any current entry belongs to a newer timer.
		t.mu.Unlock()
		return
	}
	delete(t.timers, agentID)

	set, ok := t.conns[agentID]
	if !ok || len(set) > 0 {
		t.mu.Unlock()
		return
	}
	delete(t.conns, agentID)
	metrics.OnlineAgents.Dec()
	t.mu.Unlock()

	t.logger.Info().Str("agent_id", agentID).Msg("debounce expired, agent going offline")
	t.onOffline(agentID)
}

// Drop removes the agent's entry and cancels its timer without running the
// offline handler. Used by explicit logout, where reconciliation is already
// being run by the caller.
func (t *Tracker) Drop(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pending, ok := t.timers[agentID]; ok {
		if pending.timer.Stop() {
			metrics.PendingOfflineTimers.Dec()
		}
		delete(t.timers, agentID)
	}
	if _, ok := t.conns[agentID]; ok {
		delete(t.conns, agentID)
		metrics.OnlineAgents.Dec()
	}
}

// IsOnline reports whether the agent has live connections or is inside the
// debounce window
func (t *Tracker) IsOnline(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.conns[agentID]
	return ok
}

// ConnectionCount returns the number of live connections for the agent
func (t *Tracker) ConnectionCount(agentID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[agentID])
}

// OnlineAgents returns the ids of all agents currently considered online
func (t *Tracker) OnlineAgents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	agents := make([]string, 0, len(t.conns))
	for id := range t.conns {
		agents = append(agents, id)
	}
	return agents
}
