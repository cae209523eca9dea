package matchmaking

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/config"
	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/repository"
)

// Presence tracks liveness through heartbeats. Unreachability is derived
// from reachable_until and the grace window; it is never written.
type Presence struct {
	repo  *repository.PresenceRepository
	clock Clock
	ttl   time.Duration
	grace time.Duration
}

func newPresence(database *gorm.DB, clock Clock, cfg config.Matchmaking) *Presence {
	return &Presence{
		repo:  repository.NewPresenceRepository(database),
		clock: clock,
		ttl:   cfg.HeartbeatTTL,
		grace: cfg.ReachabilityGrace,
	}
}

// Heartbeat extends reachable-until to now+TTL. Idempotent.
func (p *Presence) Heartbeat(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrInvalidUser
	}
	return p.repo.Touch(ctx, userID, p.clock.Now().Add(p.ttl))
}

// IsReachable reports whether the user's last heartbeat is still within
// the grace window. Never-seen users are unreachable.
func (p *Presence) IsReachable(ctx context.Context, userID string) (bool, error) {
	row, err := p.repo.Find(ctx, userID)
	if err != nil || row == nil {
		return false, err
	}
	return p.reachable(row, p.clock.Now()), nil
}

func (p *Presence) reachable(row *db.UserPresence, now time.Time) bool {
	return row.ReachableUntil.After(p.cutoff(now))
}

// cutoff is the reachable_until value at or below which a user counts as gone.
func (p *Presence) cutoff(now time.Time) time.Time {
	return now.Add(-p.grace)
}
