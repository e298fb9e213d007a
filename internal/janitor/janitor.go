package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/rs/zerolog"
)

// Store is the slice of the record store the unassignment job uses
type Store interface {
	ListAssignedAccounts(ctx context.Context) ([]domain.Account, error)
	UnassignAccount(ctx context.Context, accountID string) error
}

// Janitor clears individual account assignments once per night so the next
// shift starts from a clean distribution. Accounts an agent is actively
// working on (claimed) are left alone.
type Janitor struct {
	store     Store
	hour      int
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time
}

// NewJanitor creates a Janitor that runs daily at the given local hour
func NewJanitor(store Store, hour, batchSize int, logger zerolog.Logger) *Janitor {
	return &Janitor{
		store:     store,
		hour:      hour,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "janitor").Logger(),
		now:       time.Now,
	}
}

// Start blocks until ctx is cancelled, running the job once per night
func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info().Int("hour", j.hour).Int("batch_size", j.batchSize).Msg("starting nightly unassignment job")

	for {
		wait := time.Until(j.nextRun(j.now()))
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info().Msg("stopping nightly unassignment job")
			return
		case <-timer.C:
			if n, err := j.Run(ctx); err != nil {
				j.logger.Error().Err(err).Msg("nightly unassignment failed")
			} else {
				j.logger.Info().Int("unassigned", n).Msg("nightly unassignment complete")
			}
		}
	}
}

// nextRun returns the next occurrence of the configured hour after now
func (j *Janitor) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), j.hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run performs one unassignment pass and returns how many accounts were
// cleared. Batches are processed strictly one after another so the record
// store never sees a burst of concurrent writes.
func (j *Janitor) Run(ctx context.Context) (int, error) {
	accounts, err := j.store.ListAssignedAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list assigned accounts: %w", err)
	}

	var eligible []domain.Account
	for _, account := range accounts {
		if account.ClaimedBy != "" {
			continue
		}
		eligible = append(eligible, account)
	}

	unassigned := 0
	for start := 0; start < len(eligible); start += j.batchSize {
		end := start + j.batchSize
		if end > len(eligible) {
			end = len(eligible)
		}

		for _, account := range eligible[start:end] {
			if err := ctx.Err(); err != nil {
				return unassigned, err
			}
			if err := j.store.UnassignAccount(ctx, account.ID); err != nil {
				j.logger.Error().Err(err).Str("account_id", account.ID).Msg("failed to unassign account")
				continue
			}
			unassigned++
		}

		j.logger.Debug().
			Int("batch_start", start).
			Int("batch_end", end).
			Msg("unassignment batch complete")
	}

	return unassigned, nil
}
