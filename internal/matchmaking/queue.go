package matchmaking

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/config"
	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/repository"
)

// Queue is the pool of users seeking a pair.
type Queue struct {
	db       *gorm.DB
	entries  *repository.QueueRepository
	presence *Presence
	clock    Clock
	limit    int
}

func newQueue(database *gorm.DB, clock Clock, cfg config.Matchmaking, presence *Presence) *Queue {
	return &Queue{
		db:       database,
		entries:  repository.NewQueueRepository(database),
		presence: presence,
		clock:    clock,
		limit:    cfg.SnapshotLimit,
	}
}

// EnqueueResult reports what Enqueue did.
type EnqueueResult struct {
	Created  bool   // a new entry was inserted
	Conflict bool   // user is matched/voting; nothing was written
	PairID   string // the open pair when Conflict
}

// Enqueue puts the user in the waiting pool.
//
// Behavior:
//   - Matched/voting user → Conflict, no side effects.
//   - Existing entry → kept as is (fairness and enqueue time survive).
//   - New entry → fairness carried over from earlier in the session, else 0.
//   - Presence state becomes waiting and reachability is renewed.
func (q *Queue) Enqueue(ctx context.Context, userID string) (EnqueueResult, error) {
	if userID == "" {
		return EnqueueResult{}, domain.ErrInvalidUser
	}
	now := q.clock.Now()

	var res EnqueueResult
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res = EnqueueResult{}
		presences := repository.NewPresenceRepository(tx)

		p, err := presences.GetForUpdate(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p = &db.UserPresence{UserID: userID, State: domain.StateIdle, ReachableUntil: now}
		} else if err != nil {
			return err
		}

		if p.State.Paired() {
			res.Conflict = true
			res.PairID = *p.PairID
			return nil
		}

		p.State = domain.StateWaiting
		p.ReachableUntil = now.Add(q.presence.ttl)
		if err := presences.Save(ctx, p); err != nil {
			return err
		}

		res.Created, err = repository.NewQueueRepository(tx).Insert(ctx, &db.QueueEntry{
			UserID:        userID,
			FairnessScore: p.CarriedFairness,
			EnqueuedAt:    now,
		})
		return err
	})
	return res, err
}

// Dequeue removes a waiting user and makes them idle, ending the session.
// Returns false when the user was not waiting.
func (q *Queue) Dequeue(ctx context.Context, userID string) (bool, error) {
	var removed bool
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := repository.NewPresenceRepository(tx).GetForUpdate(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if p.State != domain.StateWaiting {
			return nil
		}
		removed = true
		return dequeueTx(ctx, tx, p)
	})
	return removed, err
}

// dequeueTx drops the entry of a locked waiting presence and idles it.
func dequeueTx(ctx context.Context, tx *gorm.DB, p *db.UserPresence) error {
	if err := repository.NewQueueRepository(tx).Delete(ctx, p.UserID); err != nil {
		return err
	}
	p.State = domain.StateIdle
	p.CarriedFairness = 0
	return repository.NewPresenceRepository(tx).Save(ctx, p)
}

// Snapshot returns reachable waiting users other than excluding, highest
// fairness first and longest wait first within equal fairness.
func (q *Queue) Snapshot(ctx context.Context, excluding string) ([]db.QueueEntry, error) {
	return q.entries.Snapshot(ctx, excluding, q.presence.cutoff(q.clock.Now()), q.limit)
}

// entry returns the user's entry, or nil when not queued.
func (q *Queue) entry(ctx context.Context, userID string) (*db.QueueEntry, error) {
	e, err := q.entries.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return e, err
}
