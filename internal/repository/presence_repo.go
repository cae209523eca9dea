package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
)

// PresenceRepository stores the one-row-per-user lifecycle record.
type PresenceRepository struct {
	db *gorm.DB
}

func NewPresenceRepository(database *gorm.DB) *PresenceRepository {
	return &PresenceRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *PresenceRepository) WithTx(tx *gorm.DB) *PresenceRepository {
	return &PresenceRepository{db: tx}
}

// Touch extends a user's reachable-until, creating an idle row on first use.
//
// Behavior:
//   - New user → row inserted with state idle.
//   - Existing user → only reachable_until moves; state is untouched.
func (r *PresenceRepository) Touch(ctx context.Context, userID string, reachableUntil time.Time) error {
	row := db.UserPresence{
		UserID:         userID,
		State:          domain.StateIdle,
		ReachableUntil: reachableUntil,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reachable_until", "updated_at"}),
		}).
		Create(&row).Error
}

// Get returns the row or gorm.ErrRecordNotFound.
func (r *PresenceRepository) Get(ctx context.Context, userID string) (*db.UserPresence, error) {
	var p db.UserPresence
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetForUpdate is Get with a row lock; use inside a transaction.
func (r *PresenceRepository) GetForUpdate(ctx context.Context, userID string) (*db.UserPresence, error) {
	var p db.UserPresence
	if err := forUpdate(r.db.WithContext(ctx)).Where("user_id = ?", userID).Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Find returns the row, or nil when the user has never been seen.
func (r *PresenceRepository) Find(ctx context.Context, userID string) (*db.UserPresence, error) {
	p, err := r.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return p, err
}

// GetMany loads presences keyed by user id. Unknown users are absent.
func (r *PresenceRepository) GetMany(ctx context.Context, userIDs []string) (map[string]db.UserPresence, error) {
	out := make(map[string]db.UserPresence, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []db.UserPresence
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.UserID] = p
	}
	return out, nil
}

// Save writes the full row after checking the state/reference invariant.
func (r *PresenceRepository) Save(ctx context.Context, p *db.UserPresence) error {
	if err := ValidatePresence(p); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(p).Error
}

// ValidatePresence enforces: matched/voting ⇔ partner and pair set.
func ValidatePresence(p *db.UserPresence) error {
	if !p.State.Valid() {
		return fmt.Errorf("%w: user %s has unknown state %q", domain.ErrInvariant, p.UserID, p.State)
	}
	hasRefs := p.PartnerID != nil && p.PairID != nil
	hasAnyRef := p.PartnerID != nil || p.PairID != nil
	if p.State.Paired() && !hasRefs {
		return fmt.Errorf("%w: user %s is %s without partner/pair", domain.ErrInvariant, p.UserID, p.State)
	}
	if !p.State.Paired() && hasAnyRef {
		return fmt.Errorf("%w: user %s is %s but references a pair", domain.ErrInvariant, p.UserID, p.State)
	}
	if p.PartnerID != nil && *p.PartnerID == p.UserID {
		return fmt.Errorf("%w: user %s partnered with themselves", domain.ErrInvariant, p.UserID)
	}
	return nil
}
