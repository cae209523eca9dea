package matchmaking

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/events"
	"github.com/oggyb/speeddate/internal/repository"
)

// LeaveQueue ends the user's session wherever it is.
//
// Behavior:
//   - Idle or unknown → LeaveNotQueued.
//   - Waiting → entry removed, idle.
//   - Pending pair → cancelled ("left"); the partner is requeued.
//   - Active pair → the leaver's ballot becomes a decline unless already
//     cast or the window has closed, the pair resolves, and the leaver goes
//     idle.
func (e *Engine) LeaveQueue(ctx context.Context, userID string) (LeaveResult, error) {
	if userID == "" {
		return LeaveResult{}, domain.ErrInvalidUser
	}

	var (
		res LeaveResult
		err error
	)
	for range maxWriteAttempts {
		var moved bool
		res, moved, err = e.leaveOnce(ctx, userID)
		if err != nil || !moved {
			return res, err
		}
	}
	return res, ErrBusy
}

// leaveOnce acts on the state read at entry. moved=true means the state
// changed before the write could commit and the caller should retry.
func (e *Engine) leaveOnce(ctx context.Context, userID string) (LeaveResult, bool, error) {
	p, err := e.presence.repo.Find(ctx, userID)
	if err != nil {
		return LeaveResult{}, false, err
	}
	if p == nil || p.State == domain.StateIdle {
		return LeaveResult{Status: LeaveNotQueued}, false, nil
	}

	if p.State == domain.StateWaiting {
		removed, err := e.queue.Dequeue(ctx, userID)
		if err != nil || !removed {
			return LeaveResult{}, !removed, err
		}
		e.log.Info("user left queue", "user_id", userID)
		e.emit(ctx, events.Event{Kind: events.KindQueueLeft, UserIDs: []string{userID}, Reason: "left"})
		return LeaveResult{Status: LeaveDequeued}, false, nil
	}

	pairID := *p.PairID
	var (
		res    LeaveResult
		closed *db.Pair
		moved  bool
	)
	err = retryOnRace(func() error {
		res, closed, moved = LeaveResult{PairID: pairID}, nil, false
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			pair, err := repository.NewPairRepository(tx).GetForUpdate(ctx, pairID)
			if err != nil {
				return err
			}
			side, ok := pair.Key().Side(userID)
			if !ok || !pair.Status.Open() {
				moved = true
				return nil
			}
			now := e.clock.Now()

			if pair.Status == domain.PairPending {
				err := e.cancelTx(ctx, tx, pair, domain.CancelLeft, now, func(s domain.Side) bool {
					return s != side
				})
				if err != nil {
					return err
				}
				res.Status = LeavePairCancelled
				closed = pair
				return nil
			}

			// past the window the missing ballots are timeouts
			open := pair.VoteExpiresAt != nil && now.Before(*pair.VoteExpiresAt)
			if open && pair.VoteOf(side) == domain.VoteNone {
				pair.SetVote(side, domain.VoteDecline)
			}
			outcome, err := e.resolveTx(ctx, tx, pair, now, userID)
			if err != nil {
				return err
			}
			res.Status = LeavePairResolved
			res.Outcome = outcome
			closed = pair
			return nil
		})
	})
	if err != nil || moved {
		return LeaveResult{}, moved, err
	}

	e.log.Info("user left pair", "user_id", userID, "pair_id", pairID, "status", res.Status)
	if closed.Status == domain.PairCancelled {
		e.emitCancelled(ctx, closed)
	} else {
		e.emitResolved(ctx, closed)
	}
	return res, false, nil
}
