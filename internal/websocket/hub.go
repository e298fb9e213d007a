package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/robertramos07281021/centralize-coordinator/internal/notify"
	"github.com/rs/zerolog"
)

// Presence receives connection lifecycle callbacks
type Presence interface {
	OnConnect(agentID, connID string)
	OnDisconnect(agentID, connID string)
}

// envelope is the wire shape of one pushed notification
type envelope struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// Hub maintains the set of active clients and delivers coordinator
// notifications to them. Claim events carry an audience; everything else
// is broadcast.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex to protect clients map
	mu sync.RWMutex

	// Closed when Run exits so client goroutines never block on unregister
	done chan struct{}

	fanout   *notify.Fanout
	presence Presence
	logger   zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(fanout *notify.Fanout, presence Presence, logger zerolog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		fanout:     fanout,
		presence:   presence,
		logger:     logger.With().Str("component", "websocket").Logger(),
	}
}

// Run starts the hub's main loop. It subscribes to every notification
// topic and exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	messages, cancel := h.fanout.Subscribe(domain.TopicPresence, domain.TopicClaims, domain.TopicProduction)
	defer cancel()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.presence.OnConnect(client.agentID, client.id)
			h.logger.Info().
				Str("client_id", client.id).
				Str("agent_id", client.agentID).
				Int("total_clients", total).
				Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			if ok {
				h.presence.OnDisconnect(client.agentID, client.id)
				h.logger.Info().
					Str("client_id", client.id).
					Str("agent_id", client.agentID).
					Int("total_clients", total).
					Msg("client disconnected")
			}

		case msg, ok := <-messages:
			if !ok {
				return
			}
			h.deliver(msg)
		}
	}
}

// deliver routes one notification to the right clients. Claim events with
// a non-empty audience go only to those agents' connections; everything
// else goes to everyone.
func (h *Hub) deliver(msg notify.Message) {
	data, err := json.Marshal(envelope{Topic: msg.Topic, Payload: msg.Payload})
	if err != nil {
		h.logger.Error().Err(err).Str("topic", msg.Topic).Msg("failed to marshal notification")
		return
	}

	var audience map[string]struct{}
	if claim, ok := msg.Payload.(domain.ClaimEvent); ok && len(claim.Audience) > 0 {
		audience = make(map[string]struct{}, len(claim.Audience))
		for _, agentID := range claim.Audience {
			audience[agentID] = struct{}{}
		}
	}

	h.mu.Lock()
	var evicted []*Client
	for client := range h.clients {
		if audience != nil {
			if _, ok := audience[client.agentID]; !ok {
				continue
			}
		}
		select {
		case client.send <- data:
		default:
			// Client's send buffer is full, close and remove it
			close(client.send)
			delete(h.clients, client)
			evicted = append(evicted, client)
		}
	}
	h.mu.Unlock()

	// Evicted clients never reach the unregister path (they are already
	// gone from the map), so the lifecycle callback happens here.
	for _, client := range evicted {
		if client.conn != nil {
			client.conn.Close()
		}
		h.presence.OnDisconnect(client.agentID, client.id)
		h.logger.Warn().
			Str("client_id", client.id).
			Str("agent_id", client.agentID).
			Msg("client send buffer full, closing connection")
	}
}

// CloseAgent force-closes every live connection belonging to the agent
func (h *Hub) CloseAgent(agentID string) {
	h.mu.Lock()
	var victims []*Client
	for client := range h.clients {
		if client.agentID == agentID {
			victims = append(victims, client)
		}
	}
	h.mu.Unlock()

	for _, client := range victims {
		client.conn.Close()
	}
	if len(victims) > 0 {
		h.logger.Info().
			Str("agent_id", agentID).
			Int("connections", len(victims)).
			Msg("force-closed agent connections")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.conn != nil {
			client.conn.Close()
		}
	}
}
