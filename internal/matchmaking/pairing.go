package matchmaking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/events"
	"github.com/oggyb/speeddate/internal/repository"
)

// Two attempts that find each other busy would both give up. The attempt
// of the larger user id yields: it drops its own lock and retries a few
// times, so the smaller id's attempt can lock it.
const (
	yieldAttempts = 8
	yieldBackoff  = 25 * time.Millisecond
)

// AttemptPair tries to pair a queued user with the best compatible waiting
// user.
//
// Behavior:
//   - User lock busy, not queued, or unreachable → PairingQueued.
//   - Candidates are scanned in priority order; already-seen partners and
//     incompatible users are skipped.
//   - A candidate whose lock is busy, or whose row moved before commit, is
//     skipped and the scan continues.
//   - No pair, but a busy candidate with a smaller id was skipped → the
//     whole attempt is retried after a short backoff, up to yieldAttempts.
//   - On success both users are matched, both entries removed and the pair
//     recorded in history, all in one transaction.
func (e *Engine) AttemptPair(ctx context.Context, userID string) (PairingResult, error) {
	for attempt := 1; ; attempt++ {
		res, yielded, err := e.attemptOnce(ctx, userID)
		if err != nil || !yielded || attempt == yieldAttempts {
			return res, err
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(yieldBackoff):
		}
	}
}

// attemptOnce runs one scan under the user's lock. yielded reports that a
// compatible candidate with a smaller id was busy, most likely pairing
// with this user.
func (e *Engine) attemptOnce(ctx context.Context, userID string) (_ PairingResult, yielded bool, _ error) {
	queued := PairingResult{Status: PairingQueued}

	self, ok, err := e.tryLock(ctx, userID)
	if err != nil {
		return queued, false, err
	}
	if !ok {
		e.log.Debug("pairing skipped, user busy", "user_id", userID)
		return queued, false, nil
	}
	defer e.release(ctx, self)

	now := e.clock.Now()
	me, err := e.queue.entry(ctx, userID)
	if err != nil || me == nil {
		return queued, false, err
	}
	if waiting, err := e.stillWaiting(ctx, userID, now); err != nil || !waiting {
		return queued, false, err
	}

	mine, err := e.prefs.Criteria(ctx, userID)
	if err != nil {
		return queued, false, err
	}
	seen, err := e.prefs.PairedWith(ctx, userID)
	if err != nil {
		return queued, false, err
	}
	candidates, err := e.queue.Snapshot(ctx, userID)
	if err != nil {
		return queued, false, err
	}
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.UserID)
	}
	criteria, err := e.prefs.CriteriaFor(ctx, ids)
	if err != nil {
		return queued, false, err
	}

	for _, cand := range candidates {
		if _, dup := seen[cand.UserID]; dup {
			continue
		}
		theirs, ok := criteria[cand.UserID]
		if !ok {
			continue
		}
		stage := domain.EffectiveStage(me.RelaxStage, cand.RelaxStage)
		if !domain.Compatible(mine, theirs, stage) {
			continue
		}

		other, ok, err := e.tryLock(ctx, cand.UserID)
		if err != nil {
			return queued, false, err
		}
		if !ok {
			if cand.UserID < userID {
				yielded = true
			}
			continue
		}

		pair, err := e.createPair(ctx, userID, cand.UserID, now)
		e.release(ctx, other)
		if errors.Is(err, errStale) {
			// the stale side may be us, e.g. after a concurrent leave
			if waiting, err := e.stillWaiting(ctx, userID, now); err != nil || !waiting {
				return queued, false, err
			}
			continue
		}
		if err != nil {
			return queued, false, err
		}

		e.log.Info("pair created",
			"pair_id", pair.ID, "user1", pair.User1ID, "user2", pair.User2ID, "stage", stage)
		e.emit(ctx, events.Event{
			Kind:    events.KindPaired,
			PairID:  pair.ID,
			UserIDs: []string{pair.User1ID, pair.User2ID},
		})
		return PairingResult{Status: PairingPaired, Pair: pair}, false, nil
	}

	return queued, yielded, nil
}

// stillWaiting reports whether userID is a reachable waiting user.
func (e *Engine) stillWaiting(ctx context.Context, userID string, now time.Time) (bool, error) {
	p, err := e.presence.repo.Find(ctx, userID)
	if err != nil || p == nil {
		return false, err
	}
	return p.State == domain.StateWaiting && e.presence.reachable(p, now), nil
}

// createPair re-validates both users under row locks and commits the pair.
// Returns errStale when either user is no longer a reachable waiting user.
func (e *Engine) createPair(ctx context.Context, a, b string, now time.Time) (*db.Pair, error) {
	key, err := domain.NewPairKey(a, b)
	if err != nil {
		return nil, err
	}
	pair := &db.Pair{
		ID:        uuid.NewString(),
		User1ID:   key.User1,
		User2ID:   key.User2,
		Status:    domain.PairPending,
		CreatedAt: now,
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		presences := repository.NewPresenceRepository(tx)
		queue := repository.NewQueueRepository(tx)

		users := [2]string{key.User1, key.User2}
		var rows [2]*db.UserPresence
		for i, u := range users {
			p, err := presences.GetForUpdate(ctx, u)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errStale
			}
			if err != nil {
				return err
			}
			if p.State != domain.StateWaiting || !e.presence.reachable(p, now) {
				return errStale
			}
			entry, err := queue.Get(ctx, u)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errStale
			}
			if err != nil {
				return err
			}
			p.CarriedFairness = entry.FairnessScore
			rows[i] = p
		}

		if err := repository.NewPairRepository(tx).Create(ctx, pair); err != nil {
			return err
		}
		for i, p := range rows {
			partner := users[1-i]
			p.State = domain.StateMatched
			p.PartnerID = &partner
			p.PairID = &pair.ID
			if err := presences.Save(ctx, p); err != nil {
				return err
			}
		}
		if err := queue.Delete(ctx, key.User1, key.User2); err != nil {
			return err
		}
		return repository.NewHistoryRepository(tx).Append(ctx, key, pair.ID)
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}
