// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
	"github.com/alem-hub/alem-progression/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION RUNNER
// Every read-increment-write of the engine runs through TxRunner: one unit of
// work per attempt, bounded retries on storage conflicts, events published
// only after a successful commit.
// ══════════════════════════════════════════════════════════════════════════════

// TxFunc is the body of a unit of work. It returns the events to publish
// once the transaction has committed.
type TxFunc func(ctx context.Context, tx progression.UnitOfWork) ([]shared.Event, error)

// TxRunner runs TxFuncs with retries.
type TxRunner struct {
	uow       progression.UnitOfWorkFactory
	retrier   *retry.Retrier
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// IsConflict reports whether err is a storage conflict worth retrying.
func IsConflict(err error) bool {
	return errors.Is(err, shared.ErrConcurrentModification)
}

// NewConflictRetrier builds the retrier used by TxRunner.
func NewConflictRetrier(attempts int, initial, max time.Duration, clock clockwork.Clock) *retry.Retrier {
	return retry.TransactionRetrier(attempts, initial, max, IsConflict, retry.WithClock(clock))
}

// NewTxRunner creates a TxRunner. A nil publisher drops events.
func NewTxRunner(uow progression.UnitOfWorkFactory, retrier *retry.Retrier, publisher shared.EventPublisher, log *slog.Logger) *TxRunner {
	if log == nil {
		log = slog.Default()
	}
	if retrier == nil {
		retrier = NewConflictRetrier(5, 10*time.Millisecond, 200*time.Millisecond, clockwork.NewRealClock())
	}
	return &TxRunner{
		uow:       uow,
		retrier:   retrier,
		publisher: publisher,
		logger:    log.With(logger.Component("tx_runner")),
	}
}

// Run executes fn in a transaction. Conflicts are retried; when attempts
// run out the returned error still matches shared.ErrConcurrentModification.
func (r *TxRunner) Run(ctx context.Context, op string, fn TxFunc) error {
	var events []shared.Event

	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		evs, err := r.runOnce(ctx, fn)
		if err != nil {
			if IsConflict(err) {
				r.logger.Debug("transaction conflict", logger.Operation(op), logger.Err(err))
			}
			return err
		}
		events = evs
		return nil
	})
	if err != nil {
		if retry.IsExhausted(err) {
			r.logger.Warn("transaction retries exhausted", logger.Operation(op), logger.Err(err))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	r.publish(events)
	return nil
}

func (r *TxRunner) runOnce(ctx context.Context, fn TxFunc) (events []shared.Event, err error) {
	tx, err := r.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}

	done := false
	defer func() {
		if done {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			r.logger.Warn("rollback failed", logger.Err(rbErr))
		}
	}()

	events, err = fn(ctx, tx)
	if err != nil {
		return nil, err
	}

	// A failed commit is final for this attempt; the driver has already
	// discarded the transaction.
	done = true
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *TxRunner) publish(events []shared.Event) {
	if r.publisher == nil {
		return
	}
	for _, e := range events {
		if err := r.publisher.Publish(e); err != nil {
			r.logger.Warn("publish event failed",
				"event_type", e.EventType(),
				logger.UserID(e.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-TRANSACTION STEPS
// Shared by the handlers so that a mission completion can award bonus XP and
// its badge inside the same unit of work as the progress update.
// ══════════════════════════════════════════════════════════════════════════════

// awarded is what awardInTx did to the ledger and the aggregate.
type awarded struct {
	Entry   progression.XPHistoryEntry
	Outcome progression.AwardOutcome
}

func awardInTx(
	ctx context.Context,
	tx progression.UnitOfWork,
	levels *progression.LevelTable,
	userID string,
	amount int,
	reason progression.Reason,
	now time.Time,
) (awarded, []shared.Event, error) {
	entry, err := progression.NewXPHistoryEntry(userID, amount, reason, now)
	if err != nil {
		return awarded{}, nil, err
	}

	repo := tx.Progressions()
	p, err := repo.GetOrCreateForUpdate(ctx, userID, now)
	if err != nil {
		return awarded{}, nil, fmt.Errorf("load progression: %w", err)
	}

	outcome, err := p.Apply(amount, levels, now)
	if err != nil {
		return awarded{}, nil, err
	}
	if err := repo.Save(ctx, p); err != nil {
		return awarded{}, nil, fmt.Errorf("save progression: %w", err)
	}

	entry, err = repo.AppendHistory(ctx, entry)
	if err != nil {
		return awarded{}, nil, fmt.Errorf("append history: %w", err)
	}

	events := []shared.Event{
		shared.NewXPAwardedEvent(userID, entry.ID, amount, reason.String(), outcome.NewXP.Int(), reason.IsBonus(), now),
	}
	if outcome.LeveledUp {
		events = append(events, shared.NewLevelUpEvent(
			userID, outcome.PreviousLevel, outcome.NewLevel.Number, outcome.NewLevel.Name, outcome.NewXP.Int(), now,
		))
	}
	return awarded{Entry: entry, Outcome: outcome}, events, nil
}

func grantInTx(
	ctx context.Context,
	tx progression.UnitOfWork,
	def badge.Definition,
	userID, source string,
	now time.Time,
) (bool, []shared.Event, error) {
	inserted, err := tx.Badges().Insert(ctx, badge.NewGrant(userID, def.ID, source, now))
	if err != nil {
		return false, nil, fmt.Errorf("insert grant: %w", err)
	}
	if !inserted {
		return false, nil, nil
	}
	return true, []shared.Event{shared.NewBadgeEarnedEvent(userID, def.ID, def.Name, source, now)}, nil
}

// MissionOutcome describes what one progress update did to one mission.
type MissionOutcome struct {
	MissionID        string
	Progress         int
	RequirementCount int
	Reset            bool
	Skipped          bool
	Completed        bool
	BonusXP          int
	LeveledUp        bool
	BadgeAwarded     string
}

func advanceInTx(
	ctx context.Context,
	tx progression.UnitOfWork,
	cat *catalog.Catalog,
	def mission.Definition,
	userID string,
	amount int,
	now time.Time,
) (MissionOutcome, []shared.Event, error) {
	out := MissionOutcome{MissionID: def.ID, RequirementCount: def.RequirementCount}

	repo := tx.Missions()
	st, err := repo.GetOrCreateForUpdate(ctx, mission.NewUserMissionState(userID, def, now))
	if err != nil {
		return out, nil, fmt.Errorf("load mission state: %w", err)
	}

	res, err := st.Advance(def, amount, now)
	if err != nil {
		return out, nil, err
	}
	out.Progress = st.Progress
	out.Reset = res.Reset
	out.Skipped = res.Skipped
	out.Completed = res.Completed

	if !res.Changed() {
		return out, nil, nil
	}
	if err := repo.Save(ctx, st); err != nil {
		return out, nil, fmt.Errorf("save mission state: %w", err)
	}

	var events []shared.Event
	if res.Reset && st.ResetAt != nil {
		events = append(events, shared.NewMissionResetEvent(userID, def.ID, *st.ResetAt, now))
	}
	if res.Applied > 0 {
		events = append(events, shared.NewMissionProgressedEvent(userID, def.ID, st.Progress, def.RequirementCount, now))
	}
	if !res.Completed {
		return out, events, nil
	}

	if def.XPReward > 0 {
		bonus, evs, err := awardInTx(ctx, tx, cat.Levels(), userID, def.XPReward, progression.ReasonMissionCompleted, now)
		if err != nil {
			return out, nil, fmt.Errorf("mission bonus: %w", err)
		}
		out.BonusXP = def.XPReward
		out.LeveledUp = bonus.Outcome.LeveledUp
		events = append(events, evs...)
	}

	if def.HasBadgeReward() {
		b, ok := cat.Badge(def.BadgeReward)
		if !ok {
			return out, nil, fmt.Errorf("mission %s badge %s: %w", def.ID, def.BadgeReward, shared.ErrBadgeNotFound)
		}
		inserted, evs, err := grantInTx(ctx, tx, b, userID, badge.SourceMission, now)
		if err != nil {
			return out, nil, err
		}
		if inserted {
			out.BadgeAwarded = b.ID
		}
		events = append(events, evs...)
	}

	events = append(events, shared.NewMissionCompletedEvent(
		userID, def.ID, def.Name, string(def.Type), def.XPReward, def.BadgeReward, now,
	))
	return out, events, nil
}
