package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
)

// HistoryRepository is the append-only "ever paired" record.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(database *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *HistoryRepository) WithTx(tx *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: tx}
}

// Append records that the two users of key were paired. Re-appending the
// same key is a no-op.
func (r *HistoryRepository) Append(ctx context.Context, key domain.PairKey, pairID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.PairHistory{UserA: key.User1, UserB: key.User2, PairID: pairID}).Error
}

// Exists is the symmetric "have these two ever been paired" lookup.
func (r *HistoryRepository) Exists(ctx context.Context, a, b string) (bool, error) {
	key, err := domain.NewPairKey(a, b)
	if err != nil {
		return false, err
	}
	var count int64
	err = r.db.WithContext(ctx).
		Model(&db.PairHistory{}).
		Where("user_a = ? AND user_b = ?", key.User1, key.User2).
		Count(&count).Error
	return count > 0, err
}

// PartnersOf returns everyone userID has ever been paired with.
func (r *HistoryRepository) PartnersOf(ctx context.Context, userID string) (map[string]struct{}, error) {
	var rows []db.PairHistory
	err := r.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(rows))
	for _, h := range rows {
		if h.UserA == userID {
			out[h.UserB] = struct{}{}
		} else {
			out[h.UserA] = struct{}{}
		}
	}
	return out, nil
}
