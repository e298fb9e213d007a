package production

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/rs/zerolog"
)

// Store is the subset of the record store the ledger persists through
type Store interface {
	GetProductionEntry(ctx context.Context, agentID, date string) (*domain.ProductionEntry, error)
	PutProductionEntry(ctx context.Context, entry domain.ProductionEntry) error
}

// Publisher announces segment transitions
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Ledger maintains per-agent, per-day activity segments. Its single
// invariant: at most one segment per daily entry is open at any time.
// All mutations for one agent are serialized through a per-agent mutex;
// different agents never contend.
type Ledger struct {
	store     Store
	publisher Publisher
	logger    zerolog.Logger

	// now is swappable in tests
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex // agent id -> mutation lock
}

// NewLedger creates a new Ledger
func NewLedger(store Store, publisher Publisher, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:     store,
		publisher: publisher,
		logger:    logger.With().Str("component", "production").Logger(),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) agentLock(agentID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[agentID] = lock
	}
	return lock
}

// OpenSegment closes the currently-open segment (if any) and appends a new
// open segment of the given activity to today's entry, creating the entry
// if this is the agent's first segment of the day.
func (l *Ledger) OpenSegment(ctx context.Context, agentID string, activity domain.ActivityType) error {
	lock := l.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	now := l.now()
	date := domain.DateKey(now)

	entry, err := l.todayEntry(ctx, agentID, date)
	if err != nil {
		return err
	}

	l.closeOpen(entry, now)
	entry.Segments = append(entry.Segments, domain.Segment{
		ID:       uuid.New().String(),
		Activity: activity,
		Start:    now,
	})

	if err := l.store.PutProductionEntry(ctx, *entry); err != nil {
		return fmt.Errorf("failed to persist production entry: %w", err)
	}

	l.publisher.Publish(domain.TopicProduction, domain.ProductionEvent{
		Type:      "segment_opened",
		AgentID:   agentID,
		Activity:  activity,
		Date:      date,
		Timestamp: now,
	})
	return nil
}

// EnsureOpen opens a segment of the given activity only if today's entry
// has no open working segment yet. An open terminal logout segment counts
// as closed: logging back in on the same day ends it and starts fresh.
// Used by the login path.
func (l *Ledger) EnsureOpen(ctx context.Context, agentID string, activity domain.ActivityType) error {
	lock := l.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	now := l.now()
	date := domain.DateKey(now)

	entry, err := l.todayEntry(ctx, agentID, date)
	if err != nil {
		return err
	}

	if i := entry.OpenSegment(); i >= 0 && entry.Segments[i].Activity != domain.ActivityLogout {
		return nil
	}

	l.closeOpen(entry, now)
	entry.Segments = append(entry.Segments, domain.Segment{
		ID:       uuid.New().String(),
		Activity: activity,
		Start:    now,
	})

	if err := l.store.PutProductionEntry(ctx, *entry); err != nil {
		return fmt.Errorf("failed to persist production entry: %w", err)
	}

	l.publisher.Publish(domain.TopicProduction, domain.ProductionEvent{
		Type:      "segment_opened",
		AgentID:   agentID,
		Activity:  activity,
		Date:      date,
		Timestamp: now,
	})
	return nil
}

// CloseAllOpen closes every open working segment in today's entry (there
// should be at most one, but the sweep is defensive) and, when terminal is
// set, appends an open logout segment marking the end of the working day.
// Idempotent: a second call finds nothing to close and an existing logout
// segment, and writes nothing.
func (l *Ledger) CloseAllOpen(ctx context.Context, agentID string, terminal bool) error {
	lock := l.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	now := l.now()
	date := domain.DateKey(now)

	entry, err := l.store.GetProductionEntry(ctx, agentID, date)
	if errors.Is(err, domain.ErrNotFound) {
		// No activity today, nothing to close.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load production entry: %w", err)
	}

	changed := false
	hasOpenLogout := false
	for i := range entry.Segments {
		if !entry.Segments[i].Open() {
			continue
		}
		if entry.Segments[i].Activity == domain.ActivityLogout {
			hasOpenLogout = true
			continue
		}
		end := now
		entry.Segments[i].End = &end
		changed = true
	}

	if terminal && !hasOpenLogout {
		entry.Segments = append(entry.Segments, domain.Segment{
			ID:       uuid.New().String(),
			Activity: domain.ActivityLogout,
			Start:    now,
		})
		changed = true
	}

	if !changed {
		return nil
	}

	if err := l.store.PutProductionEntry(ctx, *entry); err != nil {
		return fmt.Errorf("failed to persist production entry: %w", err)
	}

	l.publisher.Publish(domain.TopicProduction, domain.ProductionEvent{
		Type:      "segment_closed",
		AgentID:   agentID,
		Activity:  domain.ActivityLogout,
		Date:      date,
		Timestamp: now,
	})
	return nil
}

// Entry returns the agent's ledger entry for the given date
func (l *Ledger) Entry(ctx context.Context, agentID, date string) (*domain.ProductionEntry, error) {
	return l.store.GetProductionEntry(ctx, agentID, date)
}

// todayEntry loads today's entry or starts an empty one
func (l *Ledger) todayEntry(ctx context.Context, agentID, date string) (*domain.ProductionEntry, error) {
	entry, err := l.store.GetProductionEntry(ctx, agentID, date)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.ProductionEntry{AgentID: agentID, Date: date}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load production entry: %w", err)
	}
	return entry, nil
}

// closeOpen sets the end timestamp on any open segment
func (l *Ledger) closeOpen(entry *domain.ProductionEntry, now time.Time) {
	for i := range entry.Segments {
		if entry.Segments[i].Open() {
			end := now
			entry.Segments[i].End = &end
		}
	}
}
