package matchmaking

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/events"
	"github.com/oggyb/speeddate/internal/repository"
)

// Acknowledge records that user saw the pair.
//
// Behavior:
//   - First ack → AckRecorded; repeating it is a no-op.
//   - Second side's ack → pair active, expiry = now + vote window,
//     both presences voting.
//   - Ack on an active pair → AckWindowOpened with the existing expiry.
//   - Non-participant or closed pair → AckConflict.
func (e *Engine) Acknowledge(ctx context.Context, userID, pairID string) (AckResult, error) {
	if userID == "" {
		return AckResult{}, domain.ErrInvalidUser
	}

	var (
		res    AckResult
		opened *db.Pair
	)
	err := retryOnRace(func() error {
		res, opened = AckResult{}, nil
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			pairs := repository.NewPairRepository(tx)
			pair, err := pairs.GetForUpdate(ctx, pairID)
			if err != nil {
				return err
			}

			side, ok := pair.Key().Side(userID)
			if !ok {
				res = AckResult{Status: AckConflict, Reason: "not a participant"}
				return nil
			}
			switch pair.Status {
			case domain.PairActive:
				res = AckResult{Status: AckWindowOpened, VoteExpiresAt: *pair.VoteExpiresAt}
				return nil
			case domain.PairCompleted, domain.PairCancelled:
				res = AckResult{Status: AckConflict, Reason: "pair is " + string(pair.Status)}
				return nil
			}

			if pair.AckAt(side) != nil {
				res = AckResult{Status: AckRecorded}
				return nil
			}

			now := e.clock.Now()
			expected := pair.Version
			pair.SetAck(side, now)
			if pair.AckAt(side.Other()) != nil {
				expires := now.Add(e.cfg.VoteWindow)
				pair.Status = domain.PairActive
				pair.VoteExpiresAt = &expires
			}

			ok, err = pairs.UpdateVersioned(ctx, pair, expected)
			if err != nil {
				return err
			}
			if !ok {
				return errLostRace
			}

			if pair.Status != domain.PairActive {
				res = AckResult{Status: AckRecorded}
				return nil
			}
			for _, s := range bothSides {
				p, err := lockedPresence(ctx, tx, pair.Key().User(s), pair)
				if err != nil {
					return err
				}
				p.State = domain.StateVoting
				if err := repository.NewPresenceRepository(tx).Save(ctx, p); err != nil {
					return err
				}
			}
			res = AckResult{Status: AckWindowOpened, VoteExpiresAt: *pair.VoteExpiresAt}
			opened = pair
			return nil
		})
	})
	if err != nil {
		return AckResult{}, err
	}

	if opened != nil {
		e.log.Info("vote window opened", "pair_id", opened.ID, "expires_at", res.VoteExpiresAt)
		e.emit(ctx, events.Event{
			Kind:          events.KindVoteWindowOpened,
			PairID:        opened.ID,
			UserIDs:       []string{opened.User1ID, opened.User2ID},
			VoteExpiresAt: res.VoteExpiresAt,
		})
	}
	return res, nil
}

// Vote records a ballot on an active pair.
//
// Behavior:
//   - now >= expiry → VoteWindowExpired; the sweep resolves it as a timeout.
//   - Same ballot again → same answer as the first time.
//   - Different ballot after voting → VoteConflict.
//   - A decline, or the second ballot, resolves the pair immediately.
//   - Pending, cancelled or foreign pair → VoteConflict.
func (e *Engine) Vote(ctx context.Context, userID, pairID string, choice domain.Vote) (VoteResult, error) {
	if userID == "" {
		return VoteResult{}, domain.ErrInvalidUser
	}
	if choice != domain.VoteAccept && choice != domain.VoteDecline {
		return VoteResult{}, domain.ErrInvalidVote
	}

	var (
		res      VoteResult
		resolved *db.Pair
	)
	err := retryOnRace(func() error {
		res, resolved = VoteResult{}, nil
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			pairs := repository.NewPairRepository(tx)
			pair, err := pairs.GetForUpdate(ctx, pairID)
			if err != nil {
				return err
			}

			side, ok := pair.Key().Side(userID)
			if !ok {
				res = VoteResult{Status: VoteConflict, Reason: "not a participant"}
				return nil
			}
			prev := pair.VoteOf(side)

			switch pair.Status {
			case domain.PairCompleted:
				if prev == choice {
					res = VoteResult{Status: VoteResolved, Outcome: *pair.Outcome}
				} else {
					res = VoteResult{Status: VoteConflict, Reason: "pair already resolved"}
				}
				return nil
			case domain.PairPending, domain.PairCancelled:
				res = VoteResult{Status: VoteConflict, Reason: "pair is " + string(pair.Status)}
				return nil
			}

			now := e.clock.Now()
			if !now.Before(*pair.VoteExpiresAt) {
				res = VoteResult{Status: VoteWindowExpired}
				return nil
			}
			if prev != domain.VoteNone {
				if prev != choice {
					res = VoteResult{Status: VoteConflict, Reason: "vote already cast"}
				} else {
					res = VoteResult{Status: VoteAwaitingPartner}
				}
				return nil
			}

			pair.SetVote(side, choice)
			if choice == domain.VoteDecline || pair.VoteOf(side.Other()) != domain.VoteNone {
				outcome, err := e.resolveTx(ctx, tx, pair, now, "")
				if err != nil {
					return err
				}
				res = VoteResult{Status: VoteResolved, Outcome: outcome}
				resolved = pair
				return nil
			}

			ok, err = pairs.UpdateVersioned(ctx, pair, pair.Version)
			if err != nil {
				return err
			}
			if !ok {
				return errLostRace
			}
			res = VoteResult{Status: VoteAwaitingPartner}
			return nil
		})
	})
	if err != nil {
		return VoteResult{}, err
	}

	if resolved != nil {
		e.emitResolved(ctx, resolved)
	}
	return res, nil
}

// resolveExpired completes one active pair whose window has closed.
// Returns nil when the pair was no longer due.
func (e *Engine) resolveExpired(ctx context.Context, pairID string, now time.Time) (*db.Pair, error) {
	var resolved *db.Pair
	err := retryOnRace(func() error {
		resolved = nil
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			pair, err := repository.NewPairRepository(tx).GetForUpdate(ctx, pairID)
			if err != nil {
				return err
			}
			if pair.Status != domain.PairActive || now.Before(*pair.VoteExpiresAt) {
				return nil
			}
			if _, err := e.resolveTx(ctx, tx, pair, now, ""); err != nil {
				return err
			}
			resolved = pair
			return nil
		})
	})
	return resolved, err
}
