// Package matchmaking is the queue → pair → vote engine.
//
// Concurrency model: there is no global lock. Every operation that touches
// a user's pairing state first takes that user's lock without waiting
// (Locker), then re-reads and re-validates the rows inside a single gorm
// transaction before writing. A busy lock or a row that moved underneath
// the caller is treated as "retry later", never as an error. Transactions
// that touch a pair lock the pair row first and then both presence rows in
// canonical (User1, User2) order.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/config"
	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/events"
	"github.com/oggyb/speeddate/internal/repository"
)

// ErrBusy is returned when a write kept losing optimistic races.
// Callers may retry.
var ErrBusy = errors.New("pair is being updated concurrently, retry")

// errLostRace aborts a transaction whose versioned write matched no row.
var errLostRace = fmt.Errorf("lost optimistic race: %w", ErrBusy)

// errStale aborts a pairing transaction whose candidates are no longer
// eligible; the scan moves on to the next candidate.
var errStale = errors.New("candidate no longer eligible")

const (
	lockPrefix       = "lock:user:"
	maxWriteAttempts = 3
)

// Engine wires the presence tracker, preference store, queue, pairing
// engine, vote state machine and timeout resolver over one database.
type Engine struct {
	db       *gorm.DB
	presence *Presence
	prefs    *Preferences
	queue    *Queue
	pairs    *repository.PairRepository
	locker   Locker
	events   events.Publisher
	clock    Clock
	cfg      config.Matchmaking
	log      *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithPublisher sets where state-change events go.
func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.events = p } }

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// New builds an engine. Events are discarded unless WithPublisher is given.
func New(database *gorm.DB, locker Locker, cfg config.Matchmaking, opts ...Option) *Engine {
	e := &Engine{
		db:     database,
		locker: locker,
		cfg:    cfg,
		clock:  SystemClock{},
		events: events.Discard{},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.presence = newPresence(database, e.clock, cfg)
	e.prefs = newPreferences(database)
	e.queue = newQueue(database, e.clock, cfg, e.presence)
	e.pairs = repository.NewPairRepository(database)
	return e
}

// Presence exposes the presence tracker.
func (e *Engine) Presence() *Presence { return e.presence }

// Preferences exposes the preference store.
func (e *Engine) Preferences() *Preferences { return e.prefs }

// Queue exposes the waiting pool.
func (e *Engine) Queue() *Queue { return e.queue }

// RequestPairing joins the queue and immediately tries to pair the user.
//
// Behavior:
//   - Already matched/voting → PairingConflict with the open pair; nothing
//     is written.
//   - Otherwise enqueues (idempotent), renewing presence in the same
//     transaction, and runs AttemptPair.
//   - Paired by someone else's attempt in the meantime → PairingPaired.
//
// A user without a profile cannot be matched and gets an error.
func (e *Engine) RequestPairing(ctx context.Context, userID string) (PairingResult, error) {
	if userID == "" {
		return PairingResult{}, domain.ErrInvalidUser
	}
	if _, err := e.prefs.Criteria(ctx, userID); err != nil {
		return PairingResult{}, err
	}

	enq, err := e.queue.Enqueue(ctx, userID)
	if err != nil {
		return PairingResult{}, err
	}
	if enq.Conflict {
		pair, err := e.pairs.Get(ctx, enq.PairID)
		if err != nil {
			return PairingResult{}, err
		}
		return PairingResult{Status: PairingConflict, Pair: pair}, nil
	}
	if enq.Created {
		e.log.Debug("user queued", "user_id", userID)
	}

	res, err := e.AttemptPair(ctx, userID)
	if err != nil || res.Status != PairingQueued {
		return res, err
	}

	// a concurrent attempt may have paired us between enqueue and now
	p, err := e.presence.repo.Find(ctx, userID)
	if err != nil || p == nil || !p.State.Paired() {
		return res, err
	}
	pair, err := e.pairs.Get(ctx, *p.PairID)
	if err != nil {
		return res, err
	}
	return PairingResult{Status: PairingPaired, Pair: pair}, nil
}

// GetState returns what the core knows about a user. Unknown users are idle.
func (e *Engine) GetState(ctx context.Context, userID string) (UserState, error) {
	if userID == "" {
		return UserState{}, domain.ErrInvalidUser
	}
	st := UserState{UserID: userID, State: domain.StateIdle}

	p, err := e.presence.repo.Find(ctx, userID)
	if err != nil || p == nil {
		return st, err
	}
	st.State = p.State
	st.Reachable = e.presence.reachable(p, e.clock.Now())

	if st.Queue, err = e.queue.entry(ctx, userID); err != nil {
		return st, err
	}
	if p.PairID != nil {
		if st.Pair, err = e.pairs.Get(ctx, *p.PairID); err != nil {
			return st, err
		}
	}
	return st, nil
}

// ListPairHistory pages through every pair a user has been part of,
// newest first.
func (e *Engine) ListPairHistory(ctx context.Context, userID string, token *string, limit int) ([]db.Pair, *string, error) {
	if userID == "" {
		return nil, nil, domain.ErrInvalidUser
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return e.pairs.ListForUser(ctx, userID, token, limit)
}

type userLock struct {
	key   string
	token string
}

// tryLock takes userID's lock without waiting.
func (e *Engine) tryLock(ctx context.Context, userID string) (*userLock, bool, error) {
	key := lockPrefix + userID
	token, ok, err := e.locker.TryLock(ctx, key, e.cfg.LockTTL)
	if err != nil || !ok {
		return nil, false, err
	}
	return &userLock{key: key, token: token}, true, nil
}

// release unlocks in reverse order; it still runs when ctx is cancelled.
func (e *Engine) release(ctx context.Context, locks ...*userLock) {
	ctx = context.WithoutCancel(ctx)
	for i := len(locks) - 1; i >= 0; i-- {
		l := locks[i]
		if l == nil {
			continue
		}
		if err := e.locker.Unlock(ctx, l.key, l.token); err != nil {
			e.log.Warn("unlock failed", "key", l.key, "err", err)
		}
	}
}

// lockBoth takes both users' locks in canonical order, or neither.
func (e *Engine) lockBoth(ctx context.Context, key domain.PairKey) (func(), bool, error) {
	first, ok, err := e.tryLock(ctx, key.User1)
	if err != nil || !ok {
		return nil, false, err
	}
	second, ok, err := e.tryLock(ctx, key.User2)
	if err != nil || !ok {
		e.release(ctx, first)
		return nil, false, err
	}
	return func() { e.release(ctx, first, second) }, true, nil
}

// retryOnRace re-runs fn while it loses optimistic races.
func retryOnRace(fn func() error) error {
	var err error
	for range maxWriteAttempts {
		if err = fn(); !errors.Is(err, errLostRace) {
			return err
		}
	}
	return err
}

// emit publishes after commit. Delivery failures are logged only: the
// committed rows are the source of truth.
func (e *Engine) emit(ctx context.Context, ev events.Event) {
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	if err := e.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.log.Warn("event publish failed", "kind", ev.Kind, "pair_id", ev.PairID, "err", err)
	}
}
