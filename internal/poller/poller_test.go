package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/robertramos07281021/centralize-coordinator/internal/dialer"
	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/rs/zerolog"
)

type fakeSource struct {
	mu        sync.Mutex
	responses map[string][]dialer.AgentStatus
	errs      map[string]error
	calls     []string
}

func (f *fakeSource) PollStatuses(_ context.Context, endpoint string) ([]dialer.AgentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpoint)
	if err := f.errs[endpoint]; err != nil {
		return nil, err
	}
	return f.responses[endpoint], nil
}

func (f *fakeSource) set(endpoint string, statuses []dialer.AgentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[endpoint] = statuses
	delete(f.errs, endpoint)
}

func (f *fakeSource) fail(endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[endpoint] = err
}

type fakeRoster struct {
	campaigns []domain.Campaign
	byDialer  map[string]string
	expected  map[string][]string
}

func (f *fakeRoster) Campaigns() []domain.Campaign { return f.campaigns }
func (f *fakeRoster) Resolve(dialerID string) (string, bool) {
	id, ok := f.byDialer[dialerID]
	return id, ok
}
func (f *fakeRoster) ExpectedDialerIDs(campaignID string) []string {
	return f.expected[campaignID]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PresenceEvent
}

func (r *recordingPublisher) Publish(_ string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := payload.(domain.PresenceEvent); ok {
		r.events = append(r.events, ev)
	}
}

func (r *recordingPublisher) byAgent(agentID string) []domain.PresenceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PresenceEvent
	for _, ev := range r.events {
		if ev.AgentID == agentID {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recordingPublisher) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestPoller() (*Poller, *fakeSource, *fakeRoster, *recordingPublisher) {
	source := &fakeSource{
		responses: make(map[string][]dialer.AgentStatus),
		errs:      make(map[string]error),
	}
	roster := &fakeRoster{
		campaigns: []domain.Campaign{
			{ID: "c1", DialerEndpoint: "ep1", CanCall: true},
		},
		byDialer: map[string]string{"1001": "a1", "1002": "a2"},
		expected: map[string][]string{"c1": {"1001", "1002"}},
	}
	pub := &recordingPublisher{}
	p := NewPoller(source, roster, pub, time.Second, time.Second, time.Minute, zerolog.New(&bytes.Buffer{}))
	return p, source, roster, pub
}

func TestPassEmitsChangeOnNewStatus(t *testing.T) {
	p, source, _, pub := newTestPoller()
	source.set("ep1", []dialer.AgentStatus{{ExternalID: "1001", Status: "READY"}})

	p.Pass(context.Background())

	events := pub.byAgent("a1")
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != "status_change" || events[0].Status != "READY" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestPassIdenticalStatusEmitsNothing(t *testing.T) {
	p, source, _, pub := newTestPoller()
	source.set("ep1", []dialer.AgentStatus{{ExternalID: "1001", Status: "READY", AcctStatus: "ACTIVE"}})

	p.Pass(context.Background())
	pub.reset()

	p.Pass(context.Background())
	if events := pub.byAgent("a1"); len(events) != 0 {
		t.Fatalf("expected no events on identical status, got %+v", events)
	}
}

func TestPassChangedFieldEmitsExactlyOne(t *testing.T) {
	p, source, _, pub := newTestPoller()
	source.set("ep1", []dialer.AgentStatus{{ExternalID: "1001", Status: "READY"}})
	p.Pass(context.Background())
	pub.reset()

	source.set("ep1", []dialer.AgentStatus{{ExternalID: "1001", Status: "READY", AcctStatus: "DISPUTE"}})
	p.Pass(context.Background())

	events := pub.byAgent("a1")
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	if events[0].AcctStatus != "DISPUTE" {
		t.Errorf("expected acctStatus DISPUTE, got %s", events[0].AcctStatus)
	}
}

func TestUnresolvableIdentityIgnored(t *testing.T) {
	p, source, _, pub := newTestPoller()
	source.set("ep1", []dialer.AgentStatus{{ExternalID: "9999", Status: "READY"}})

	p.Pass(context.Background())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 0 {
		t.Fatalf("expected no events for unknown dialer id, got %+v", pub.events)
	}
}

func TestMissingAgentGoesOfflineOnce(t *testing.T) {
	p, source, _, pub := newTestPoller()
	source.set("ep1", []dialer.AgentStatus{{ExternalID: "1001", Status: "READY"}})
	p.Pass(context.Background())
	pub.reset()

	// Agent disappears from the listing.
	source.set("ep1", nil)
	p.Pass(context.Background())
	p.Pass(context.Background()) // snapshot already gone, no second event

	events := pub.byAgent("a1")
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 offline event, got %d", len(events))
	}
	if events[0].Type != "offline" || events[0].Status != domain.DialerStatusOffline {
		t.Errorf("unexpected event: %+v", events[0])
	}
	if _, ok := p.Snapshot("a1"); ok {
		t.Error("expected snapshot to be deleted")
	}
}

func TestAgentOnOneOfTwoCampaignsStaysOnline(t *testing.T) {
	p, source, roster, pub := newTestPoller()

	// a1 is expected on both campaigns but logged into c1 only. The c2
	// sweep must not drop the snapshot c1 keeps writing.
	roster.campaigns = append(roster.campaigns, domain.Campaign{ID: "c2", DialerEndpoint: "ep2", CanCall: true})
	roster.expected["c2"] = []string{"1001"}

	source.set("ep1", []dialer.AgentStatus{{ExternalID: "1001", Status: "READY"}})
	source.set("ep2", nil)

	p.Pass(context.Background())
	pub.reset()

	p.Pass(context.Background())
	p.Pass(context.Background())

	if events := pub.byAgent("a1"); len(events) != 0 {
		t.Fatalf("expected no events while c1 reports a1, got %+v", events)
	}
	snap, ok := p.Snapshot("a1")
	if !ok {
		t.Fatal("expected snapshot to survive the other campaign's sweep")
	}
	if snap.CampaignID != "c1" {
		t.Errorf("snapshot owned by %q, want c1", snap.CampaignID)
	}

	// Gone from c1 as well: exactly one offline, from the owning campaign.
	source.set("ep1", nil)
	p.Pass(context.Background())

	events := pub.byAgent("a1")
	if len(events) != 1 || events[0].Type != "offline" {
		t.Fatalf("expected exactly 1 offline event, got %+v", events)
	}
	if events[0].CampaignID != "c1" {
		t.Errorf("offline attributed to %q, want c1", events[0].CampaignID)
	}
}

func TestErrorPayloadDropsSnapshotsAndEmitsOffline(t *testing.T) {
	p, source, _, pub := newTestPoller()
	source.set("ep1", []dialer.AgentStatus{{ExternalID: "1001", Status: "READY"}})
	p.Pass(context.Background())
	pub.reset()

	source.fail("ep1", fmt.Errorf("%w: no agents", dialer.ErrErrorPayload))
	p.Pass(context.Background())

	events := pub.byAgent("a1")
	if len(events) != 1 || events[0].Type != "offline" {
		t.Fatalf("expected exactly 1 offline event, got %+v", events)
	}
	// a2 never had a snapshot, so no event for it.
	if events := pub.byAgent("a2"); len(events) != 0 {
		t.Errorf("expected no events for a2, got %+v", events)
	}
}

func TestTransportErrorKeepsSnapshotsAndPollsNextCampaign(t *testing.T) {
	p, source, roster, pub := newTestPoller()
	roster.campaigns = append(roster.campaigns, domain.Campaign{ID: "c2", DialerEndpoint: "ep2", CanCall: true})
	roster.byDialer["2001"] = "b1"
	roster.expected["c2"] = []string{"2001"}

	source.set("ep1", []dialer.AgentStatus{{ExternalID: "1001", Status: "READY"}})
	source.set("ep2", []dialer.AgentStatus{{ExternalID: "2001", Status: "READY"}})
	p.Pass(context.Background())
	pub.reset()

	source.fail("ep1", errors.New("connection refused"))
	p.Pass(context.Background())

	// Snapshot for a1 survives a transport error; no offline emitted.
	if _, ok := p.Snapshot("a1"); !ok {
		t.Error("expected snapshot to survive transport error")
	}
	if events := pub.byAgent("a1"); len(events) != 0 {
		t.Errorf("expected no events for a1, got %+v", events)
	}

	// The second campaign was still polled.
	source.mu.Lock()
	polledEp2 := 0
	for _, ep := range source.calls {
		if ep == "ep2" {
			polledEp2++
		}
	}
	source.mu.Unlock()
	if polledEp2 < 2 {
		t.Errorf("expected ep2 to be polled despite ep1 failure, got %d calls", polledEp2)
	}
}

func TestPruneStale(t *testing.T) {
	p, source, _, _ := newTestPoller()
	source.set("ep1", []dialer.AgentStatus{{ExternalID: "1001", Status: "READY"}})
	p.Pass(context.Background())

	// Backdate the snapshot past the staleness threshold.
	p.mu.Lock()
	snap := p.snapshots["a1"]
	snap.ObservedAt = time.Now().Add(-2 * time.Minute)
	p.snapshots["a1"] = snap
	p.mu.Unlock()

	p.pruneStale()
	if _, ok := p.Snapshot("a1"); ok {
		t.Error("expected stale snapshot to be pruned")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	p, source, _, _ := newTestPoller()
	p.interval = 10 * time.Millisecond
	source.set("ep1", []dialer.AgentStatus{{ExternalID: "1001", Status: "READY"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("poll loop did not stop after context cancel")
	}
}
