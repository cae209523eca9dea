package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/utils/pagination"
)

// PairRepository provides data access for Pair rows.
// Pairs are never deleted; they are the audit trail of every attempt.
type PairRepository struct {
	db *gorm.DB
}

func NewPairRepository(database *gorm.DB) *PairRepository {
	return &PairRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *PairRepository) WithTx(tx *gorm.DB) *PairRepository {
	return &PairRepository{db: tx}
}

// Create inserts a new pair after checking its invariants.
func (r *PairRepository) Create(ctx context.Context, p *db.Pair) error {
	if err := ValidatePair(p); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(p).Error
}

// Get returns the pair or domain.ErrPairNotFound.
func (r *PairRepository) Get(ctx context.Context, id string) (*db.Pair, error) {
	return r.get(r.db.WithContext(ctx), id)
}

// GetForUpdate is Get with a row lock; use inside a transaction.
func (r *PairRepository) GetForUpdate(ctx context.Context, id string) (*db.Pair, error) {
	return r.get(forUpdate(r.db.WithContext(ctx)), id)
}

func (r *PairRepository) get(q *gorm.DB, id string) (*db.Pair, error) {
	var p db.Pair
	err := q.Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPairNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateVersioned writes every column of p if the stored row still has
// version expected, then bumps p.Version.
// Returns false when another writer got there first.
func (r *PairRepository) UpdateVersioned(ctx context.Context, p *db.Pair, expected int64) (bool, error) {
	if err := ValidatePair(p); err != nil {
		return false, err
	}
	p.Version = expected + 1
	res := r.db.WithContext(ctx).
		Model(p).
		Where("version = ?", expected).
		Select("*").
		Omit("id", "created_at").
		Updates(p)
	if res.Error != nil {
		p.Version = expected
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		p.Version = expected
		return false, nil
	}
	return true, nil
}

// ListByStatus returns pairs in the given status, oldest first.
func (r *PairRepository) ListByStatus(ctx context.Context, status domain.PairStatus) ([]db.Pair, error) {
	var pairs []db.Pair
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&pairs).Error
	return pairs, err
}

// ListExpiredActive returns active pairs whose vote window closed at or
// before now.
func (r *PairRepository) ListExpiredActive(ctx context.Context, now time.Time) ([]db.Pair, error) {
	var pairs []db.Pair
	err := r.db.WithContext(ctx).
		Where("status = ? AND vote_expires_at <= ?", domain.PairActive, now).
		Order("vote_expires_at ASC").
		Find(&pairs).Error
	return pairs, err
}

// ListOpenForUser returns the pending/active pairs that reference userID.
// A healthy database returns at most one.
func (r *PairRepository) ListOpenForUser(ctx context.Context, userID string) ([]db.Pair, error) {
	var pairs []db.Pair
	err := r.db.WithContext(ctx).
		Where("(user1_id = ? OR user2_id = ?) AND status IN ?", userID, userID,
			[]domain.PairStatus{domain.PairPending, domain.PairActive}).
		Find(&pairs).Error
	return pairs, err
}

// ListForUser returns a user's pairs, newest first.
//
// Behavior:
//   - Includes every status (history view).
//   - Ordered by created_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListForUser(ctx, "u1", nil, 20)
func (r *PairRepository) ListForUser(
	ctx context.Context,
	userID string,
	paginationToken *string,
	limit int,
) ([]db.Pair, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("(user1_id = ? OR user2_id = ?)", userID, userID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			ts, ts, cursor.PairID,
		)
	}

	var pairs []db.Pair
	if err := query.Find(&pairs).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(pairs) > limit {
		last := pairs[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			PairID:      last.ID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		pairs = pairs[:limit]
	}
	return pairs, nextToken, nil
}

// ValidatePair enforces the Pair row invariants.
func ValidatePair(p *db.Pair) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: pair %s: %s", domain.ErrInvariant, p.ID, fmt.Sprintf(format, args...))
	}
	switch {
	case p.ID == "":
		return fail("missing id")
	case p.User1ID == "" || p.User2ID == "":
		return fail("missing user")
	case p.User1ID >= p.User2ID:
		return fail("users %s/%s not in canonical order", p.User1ID, p.User2ID)
	case !p.Status.Valid():
		return fail("unknown status %q", p.Status)
	case (p.Outcome != nil) != (p.Status == domain.PairCompleted):
		return fail("outcome must be set iff completed (status %s)", p.Status)
	case (p.VoteExpiresAt != nil) != (p.Status == domain.PairActive):
		return fail("vote expiry must be set iff active (status %s)", p.Status)
	case (p.CancelReason != nil) != (p.Status == domain.PairCancelled):
		return fail("cancel reason must be set iff cancelled (status %s)", p.Status)
	case p.Outcome != nil && !p.Outcome.Valid():
		return fail("unknown outcome %q", *p.Outcome)
	}
	return nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
