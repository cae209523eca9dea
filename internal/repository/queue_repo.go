package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
)

// QueueRepository provides data access for waiting users.
type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(database *gorm.DB) *QueueRepository {
	return &QueueRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *QueueRepository) WithTx(tx *gorm.DB) *QueueRepository {
	return &QueueRepository{db: tx}
}

// Insert adds the entry unless the user already has one.
// Returns whether a row was created; an existing entry is left untouched
// so a repeated join never resets fairness or wait time.
func (r *QueueRepository) Insert(ctx context.Context, e *db.QueueEntry) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Get returns the entry or gorm.ErrRecordNotFound.
func (r *QueueRepository) Get(ctx context.Context, userID string) (*db.QueueEntry, error) {
	var e db.QueueEntry
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete removes the entries of the given users.
func (r *QueueRepository) Delete(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Delete(&db.QueueEntry{}).Error
}

// Snapshot returns eligible waiting entries in pairing priority order.
//
// Behavior:
//   - Only users whose presence is waiting and reachable_until > cutoff.
//   - excluding (may be empty) is left out.
//   - Ordered by fairness_score DESC, enqueued_at ASC, user_id ASC.
//
// Example:
//
//	repo.Snapshot(ctx, "u1", now.Add(-grace), 200)
func (r *QueueRepository) Snapshot(ctx context.Context, excluding string, cutoff time.Time, limit int) ([]db.QueueEntry, error) {
	var entries []db.QueueEntry
	query := r.db.WithContext(ctx).
		Table("queue_entries q").
		Select("q.*").
		Joins("JOIN user_presences p ON p.user_id = q.user_id").
		Where("p.state = ? AND p.reachable_until > ?", domain.StateWaiting, cutoff).
		Order("q.fairness_score DESC, q.enqueued_at ASC, q.user_id ASC").
		Limit(limit)
	if excluding != "" {
		query = query.Where("q.user_id <> ?", excluding)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListUnreachable returns entries whose owner has not been seen since cutoff.
func (r *QueueRepository) ListUnreachable(ctx context.Context, cutoff time.Time) ([]db.QueueEntry, error) {
	var entries []db.QueueEntry
	err := r.db.WithContext(ctx).
		Table("queue_entries q").
		Select("q.*").
		Joins("JOIN user_presences p ON p.user_id = q.user_id").
		Where("p.reachable_until <= ?", cutoff).
		Order("q.enqueued_at ASC").
		Find(&entries).Error
	return entries, err
}

// Age adds credit to every waiting entry's fairness score.
func (r *QueueRepository) Age(ctx context.Context, credit int64) (int64, error) {
	if credit == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&db.QueueEntry{}).
		Where("1 = 1").
		UpdateColumn("fairness_score", gorm.Expr("fairness_score + ?", credit))
	return res.RowsAffected, res.Error
}

// AdvanceStages moves every entry that has waited relaxAfter×(stage+1)
// up one relaxation stage, never past maxStage.
func (r *QueueRepository) AdvanceStages(ctx context.Context, now time.Time, relaxAfter time.Duration, maxStage int) (int64, error) {
	if relaxAfter <= 0 {
		return 0, nil
	}
	var total int64
	// highest stage first so an entry moves at most one step per call
	for stage := maxStage - 1; stage >= 0; stage-- {
		threshold := now.Add(-relaxAfter * time.Duration(stage+1))
		res := r.db.WithContext(ctx).
			Model(&db.QueueEntry{}).
			Where("relax_stage = ? AND enqueued_at <= ?", stage, threshold).
			UpdateColumn("relax_stage", stage+1)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// Count returns how many entries exist.
func (r *QueueRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.QueueEntry{}).Count(&n).Error
	return n, err
}
