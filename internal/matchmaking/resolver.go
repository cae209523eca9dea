package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/events"
	"github.com/oggyb/speeddate/internal/logger"
	"github.com/oggyb/speeddate/internal/repository"
)

// Sweep is the periodic pass that applies every time-based transition.
//
// Steps, in order:
//  1. Age waiting entries and advance relax stages.
//  2. Dequeue waiting users who stopped heartbeating.
//  3. Resolve active pairs whose vote window closed.
//  4. Cancel pending pairs with an unreachable side, or unacknowledged
//     past the ack timeout.
//  5. Retry pairing for everyone still waiting, highest priority first.
//
// Per-record failures are logged and counted and never stop the pass.
// The returned error joins step-level failures (a listing query failing).
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	var rep SweepReport
	var errs []error

	now := e.clock.Now()
	steps := []struct {
		name string
		run  func(context.Context, time.Time, *SweepReport) error
	}{
		{"age", e.ageQueue},
		{"stale_queue", e.sweepStaleQueue},
		{"expired_votes", e.sweepExpiredVotes},
		{"pending", e.sweepPending},
		{"retry_pairing", e.retryPairing},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := step.run(ctx, now, &rep); err != nil {
			e.log.Error("sweep step failed", "step", step.name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	e.log.Info("sweep finished",
		"stale_dequeued", rep.StaleDequeued,
		"expired_resolved", rep.ExpiredResolved,
		"pending_cancelled", rep.PendingCancelled,
		"aged", rep.Aged,
		"relaxed", rep.Relaxed,
		"paired", rep.Paired,
		"skipped", rep.Skipped,
		"failures", rep.Failures,
		logger.Elapsed(start),
	)
	return rep, errors.Join(errs...)
}

func (e *Engine) ageQueue(ctx context.Context, now time.Time, rep *SweepReport) error {
	aged, err := e.queue.entries.Age(ctx, e.cfg.AgingCredit)
	if err != nil {
		return err
	}
	relaxed, err := e.queue.entries.AdvanceStages(ctx, now, e.cfg.RelaxAfter, e.cfg.MaxRelaxStage)
	if err != nil {
		return err
	}
	rep.Aged, rep.Relaxed = aged, relaxed
	return nil
}

func (e *Engine) sweepStaleQueue(ctx context.Context, now time.Time, rep *SweepReport) error {
	stale, err := e.queue.entries.ListUnreachable(ctx, e.presence.cutoff(now))
	if err != nil {
		return err
	}

	for _, entry := range stale {
		lock, ok, err := e.tryLock(ctx, entry.UserID)
		if err != nil {
			e.failed(rep, "lock stale user", err, "user_id", entry.UserID)
			continue
		}
		if !ok {
			rep.Skipped++
			continue
		}

		var removed bool
		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, err := repository.NewPresenceRepository(tx).GetForUpdate(ctx, entry.UserID)
			if err != nil {
				return err
			}
			if p.State != domain.StateWaiting || e.presence.reachable(p, now) {
				return nil
			}
			removed = true
			return dequeueTx(ctx, tx, p)
		})
		e.release(ctx, lock)

		switch {
		case err != nil:
			e.failed(rep, "dequeue stale user", err, "user_id", entry.UserID)
		case !removed:
			rep.Skipped++
		default:
			rep.StaleDequeued++
			e.log.Info("unreachable user dequeued", "user_id", entry.UserID)
			e.emit(ctx, events.Event{
				Kind:    events.KindQueueLeft,
				UserIDs: []string{entry.UserID},
				Reason:  "unreachable",
			})
		}
	}
	return nil
}

func (e *Engine) sweepExpiredVotes(ctx context.Context, now time.Time, rep *SweepReport) error {
	expired, err := e.pairs.ListExpiredActive(ctx, now)
	if err != nil {
		return err
	}

	for _, pair := range expired {
		unlock, ok, err := e.lockBoth(ctx, pair.Key())
		if err != nil {
			e.failed(rep, "lock expired pair", err, "pair_id", pair.ID)
			continue
		}
		if !ok {
			rep.Skipped++
			continue
		}
		resolved, err := e.resolveExpired(ctx, pair.ID, now)
		unlock()

		switch {
		case err != nil:
			e.failed(rep, "resolve expired pair", err, "pair_id", pair.ID)
		case resolved == nil:
			rep.Skipped++
		default:
			rep.ExpiredResolved++
			e.emitResolved(ctx, resolved)
		}
	}
	return nil
}

func (e *Engine) sweepPending(ctx context.Context, now time.Time, rep *SweepReport) error {
	pending, err := e.pairs.ListByStatus(ctx, domain.PairPending)
	if err != nil {
		return err
	}

	for _, pair := range pending {
		unlock, ok, err := e.lockBoth(ctx, pair.Key())
		if err != nil {
			e.failed(rep, "lock pending pair", err, "pair_id", pair.ID)
			continue
		}
		if !ok {
			rep.Skipped++
			continue
		}
		cancelled, err := e.cancelIfDue(ctx, pair.ID, now)
		unlock()

		switch {
		case err != nil:
			e.failed(rep, "cancel pending pair", err, "pair_id", pair.ID)
		case cancelled != nil:
			rep.PendingCancelled++
			e.emitCancelled(ctx, cancelled)
		}
	}
	return nil
}

// cancelIfDue cancels a pending pair when a side is unreachable (the
// reachable side is requeued) or when the ack timeout passed (sides that
// acknowledged are requeued). Returns nil when nothing was due.
func (e *Engine) cancelIfDue(ctx context.Context, pairID string, now time.Time) (*db.Pair, error) {
	var cancelled *db.Pair
	err := retryOnRace(func() error {
		cancelled = nil
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			pair, err := repository.NewPairRepository(tx).GetForUpdate(ctx, pairID)
			if err != nil {
				return err
			}
			if pair.Status != domain.PairPending {
				return nil
			}

			key := pair.Key()
			presences, err := repository.NewPresenceRepository(tx).GetMany(ctx, []string{key.User1, key.User2})
			if err != nil {
				return err
			}
			var reachable [3]bool
			for _, s := range bothSides {
				p, ok := presences[key.User(s)]
				reachable[s] = ok && e.presence.reachable(&p, now)
			}

			var (
				reason  domain.CancelReason
				requeue func(domain.Side) bool
			)
			switch {
			case !reachable[domain.Side1] || !reachable[domain.Side2]:
				reason = domain.CancelDisconnect
				requeue = func(s domain.Side) bool { return reachable[s] }
			case !now.Before(pair.CreatedAt.Add(e.cfg.AckTimeout)):
				reason = domain.CancelAckTimeout
				requeue = func(s domain.Side) bool { return pair.AckAt(s) != nil }
			default:
				return nil
			}

			if err := e.cancelTx(ctx, tx, pair, reason, now, requeue); err != nil {
				return err
			}
			cancelled = pair
			return nil
		})
	})
	return cancelled, err
}

func (e *Engine) retryPairing(ctx context.Context, _ time.Time, rep *SweepReport) error {
	waiting, err := e.queue.Snapshot(ctx, "")
	if err != nil {
		return err
	}

	paired := make(map[string]struct{})
	for _, entry := range waiting {
		if _, done := paired[entry.UserID]; done {
			continue
		}
		res, err := e.AttemptPair(ctx, entry.UserID)
		if err != nil {
			e.failed(rep, "retry pairing", err, "user_id", entry.UserID)
			continue
		}
		if res.Status == PairingPaired {
			rep.Paired++
			paired[res.Pair.User1ID] = struct{}{}
			paired[res.Pair.User2ID] = struct{}{}
		}
	}
	return nil
}

func (e *Engine) failed(rep *SweepReport, what string, err error, args ...any) {
	rep.Failures++
	e.log.Error(what+" failed", append(args, "err", err)...)
}
