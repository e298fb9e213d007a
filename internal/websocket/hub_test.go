package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/robertramos07281021/centralize-coordinator/internal/auth"
	"github.com/robertramos07281021/centralize-coordinator/internal/config"
	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/robertramos07281021/centralize-coordinator/internal/notify"
	"github.com/rs/zerolog"
)

type fakePresence struct {
	mu          sync.Mutex
	connects    []string
	disconnects []string
}

func (f *fakePresence) OnConnect(agentID, connID string) {
	f.mu.Lock()
	f.connects = append(f.connects, agentID)
	f.mu.Unlock()
}

func (f *fakePresence) OnDisconnect(agentID, connID string) {
	f.mu.Lock()
	f.disconnects = append(f.disconnects, agentID)
	f.mu.Unlock()
}

func (f *fakePresence) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connects)
}

func (f *fakePresence) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.disconnects)
}

func newTestHub() (*Hub, *notify.Fanout, *fakePresence) {
	logger := zerolog.New(&bytes.Buffer{})
	fanout := notify.NewFanout(logger)
	presence := &fakePresence{}
	return NewHub(fanout, presence, logger), fanout, presence
}

func TestNewHub(t *testing.T) {
	hub, _, _ := newTestHub()

	if hub == nil {
		t.Fatal("expected hub to be created")
	}
	if hub.clients == nil {
		t.Error("expected clients map to be initialized")
	}
	if hub.register == nil {
		t.Error("expected register channel to be initialized")
	}
	if hub.unregister == nil {
		t.Error("expected unregister channel to be initialized")
	}
}

func TestHubClientCount(t *testing.T) {
	hub, _, _ := newTestHub()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	hub.mu.Lock()
	hub.clients[&Client{id: "test1", agentID: "a1"}] = true
	hub.clients[&Client{id: "test2", agentID: "a2"}] = true
	hub.mu.Unlock()

	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", hub.ClientCount())
	}
}

func TestHubRegisterDrivesPresence(t *testing.T) {
	hub, _, presence := newTestHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &Client{id: "c1", agentID: "a1", hub: hub, send: make(chan []byte, 8)}
	hub.register <- client

	waitFor(t, func() bool { return presence.connectCount() == 1 })
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.unregister <- client
	waitFor(t, func() bool { return presence.disconnectCount() == 1 })
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}

	// The hub closed the client's send channel
	if _, ok := <-client.send; ok {
		t.Error("expected send channel to be closed")
	}
}

func TestHubBroadcastsPresenceEvents(t *testing.T) {
	hub, fanout, _ := newTestHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c1 := &Client{id: "c1", agentID: "a1", hub: hub, send: make(chan []byte, 8)}
	c2 := &Client{id: "c2", agentID: "a2", hub: hub, send: make(chan []byte, 8)}
	hub.register <- c1
	hub.register <- c2
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	fanout.Publish(domain.TopicPresence, domain.PresenceEvent{Type: "status_change", AgentID: "a1"})

	for _, c := range []*Client{c1, c2} {
		data := receive(t, c)
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Topic != domain.TopicPresence {
			t.Errorf("topic = %q, want %q", env.Topic, domain.TopicPresence)
		}
	}
}

func TestHubFiltersClaimAudience(t *testing.T) {
	hub, fanout, _ := newTestHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c1 := &Client{id: "c1", agentID: "a1", hub: hub, send: make(chan []byte, 8)}
	c2 := &Client{id: "c2", agentID: "a2", hub: hub, send: make(chan []byte, 8)}
	hub.register <- c1
	hub.register <- c2
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	fanout.Publish(domain.TopicClaims, domain.ClaimEvent{
		Type:      "claimed",
		AccountID: "x1",
		AgentID:   "a1",
		Audience:  []string{"a1"},
	})

	data := receive(t, c1)
	if !strings.Contains(string(data), "x1") {
		t.Errorf("audience member did not receive claim event: %s", data)
	}

	select {
	case msg := <-c2.send:
		t.Errorf("non-audience client received claim event: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubEvictsSlowClientWithPresenceCallback(t *testing.T) {
	hub, fanout, presence := newTestHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// One-slot buffer that is never drained: the second event overflows it.
	slow := &Client{id: "c1", agentID: "a1", hub: hub, send: make(chan []byte, 1)}
	hub.register <- slow
	waitFor(t, func() bool { return presence.connectCount() == 1 })

	fanout.Publish(domain.TopicPresence, domain.PresenceEvent{Type: "status_change", AgentID: "a1"})
	fanout.Publish(domain.TopicPresence, domain.PresenceEvent{Type: "status_change", AgentID: "a1"})

	// Eviction must report the disconnect, otherwise the agent stays
	// online forever: the real connection's unregister finds the client
	// already removed and skips the callback.
	waitFor(t, func() bool { return presence.disconnectCount() == 1 })
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after eviction, got %d", hub.ClientCount())
	}
}

func TestHubEndToEndConnection(t *testing.T) {
	t.Setenv("SKIP_AUTH", "true")

	hub, _, presence := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	cfg := &config.Config{
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
	logger := zerolog.New(&bytes.Buffer{})
	handler := auth.Middleware(NewHandler(hub, cfg, logger))

	server := httptest.NewServer(handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"X-Agent-ID": []string{"a1"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitFor(t, func() bool { return presence.connectCount() == 1 })

	hub.CloseAgent("a1")
	waitFor(t, func() bool { return presence.disconnectCount() == 1 })
	conn.Close()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.send:
		return data
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}
