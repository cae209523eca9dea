package matchmaking

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/events"
	"github.com/oggyb/speeddate/internal/repository"
)

var bothSides = [2]domain.Side{domain.Side1, domain.Side2}

// lockedPresence loads a participant's presence with a row lock and checks
// that it still points at pair.
func lockedPresence(ctx context.Context, tx *gorm.DB, user string, pair *db.Pair) (*db.UserPresence, error) {
	p, err := repository.NewPresenceRepository(tx).GetForUpdate(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load presence %s: %w", user, err)
	}
	if p.PairID == nil || *p.PairID != pair.ID {
		return nil, fmt.Errorf("%w: user %s does not reference open pair %s", domain.ErrInvariant, user, pair.ID)
	}
	return p, nil
}

// releaseUser moves one participant out of a closing pair: either back to
// waiting with a fresh entry, or idle with the session's credit dropped.
func (e *Engine) releaseUser(ctx context.Context, tx *gorm.DB, user string, pair *db.Pair, eff domain.Effect, now time.Time) error {
	p, err := lockedPresence(ctx, tx, user, pair)
	if err != nil {
		return err
	}
	p.PartnerID, p.PairID = nil, nil

	if !eff.Requeue {
		p.State = domain.StateIdle
		p.CarriedFairness = 0
		return repository.NewPresenceRepository(tx).Save(ctx, p)
	}

	if eff.Boost {
		p.CarriedFairness += e.cfg.FairnessBoost
	}
	p.State = domain.StateWaiting
	if err := repository.NewPresenceRepository(tx).Save(ctx, p); err != nil {
		return err
	}
	_, err = repository.NewQueueRepository(tx).Insert(ctx, &db.QueueEntry{
		UserID:        user,
		FairnessScore: p.CarriedFairness,
		EnqueuedAt:    now,
	})
	return err
}

// resolveTx completes a locked active pair from its recorded ballots and
// applies each side's effect. A non-empty leaver is forced idle whatever
// the outcome says.
func (e *Engine) resolveTx(ctx context.Context, tx *gorm.DB, pair *db.Pair, now time.Time, leaver string) (domain.Outcome, error) {
	outcome := domain.Resolve(pair.User1Vote, pair.User2Vote)

	expected := pair.Version
	pair.Status = domain.PairCompleted
	pair.Outcome = &outcome
	pair.VoteExpiresAt = nil
	pair.ResolvedAt = &now

	ok, err := repository.NewPairRepository(tx).UpdateVersioned(ctx, pair, expected)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errLostRace
	}

	key := pair.Key()
	for _, side := range bothSides {
		user := key.User(side)
		eff := outcome.EffectFor(pair.VoteOf(side))
		if user == leaver {
			eff = domain.Effect{}
		}
		if err := e.releaseUser(ctx, tx, user, pair, eff, now); err != nil {
			return "", err
		}
	}
	return outcome, nil
}

// cancelTx cancels a locked pending pair. requeue decides per side whether
// the user goes back to waiting (without a boost) or idle.
func (e *Engine) cancelTx(ctx context.Context, tx *gorm.DB, pair *db.Pair, reason domain.CancelReason, now time.Time, requeue func(domain.Side) bool) error {
	expected := pair.Version
	pair.Status = domain.PairCancelled
	pair.CancelReason = &reason
	pair.ResolvedAt = &now

	ok, err := repository.NewPairRepository(tx).UpdateVersioned(ctx, pair, expected)
	if err != nil {
		return err
	}
	if !ok {
		return errLostRace
	}

	key := pair.Key()
	for _, side := range bothSides {
		eff := domain.Effect{Requeue: requeue(side)}
		if err := e.releaseUser(ctx, tx, key.User(side), pair, eff, now); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) emitResolved(ctx context.Context, pair *db.Pair) {
	ev := events.Event{
		Kind:    events.KindOutcomeResolved,
		PairID:  pair.ID,
		UserIDs: []string{pair.User1ID, pair.User2ID},
	}
	if pair.Outcome != nil {
		ev.Outcome = *pair.Outcome
	}
	e.log.Info("pair resolved", "pair_id", pair.ID, "outcome", ev.Outcome)
	e.emit(ctx, ev)
}

func (e *Engine) emitCancelled(ctx context.Context, pair *db.Pair) {
	ev := events.Event{
		Kind:    events.KindPairCancelled,
		PairID:  pair.ID,
		UserIDs: []string{pair.User1ID, pair.User2ID},
	}
	if pair.CancelReason != nil {
		ev.Reason = string(*pair.CancelReason)
	}
	e.log.Info("pair cancelled", "pair_id", pair.ID, "reason", ev.Reason)
	e.emit(ctx, ev)
}
