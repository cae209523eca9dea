package matchmaking

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/repository"
)

// Preferences is the read-only view of matching criteria and pair history.
type Preferences struct {
	profiles *repository.ProfileRepository
	history  *repository.HistoryRepository
}

func newPreferences(database *gorm.DB) *Preferences {
	return &Preferences{
		profiles: repository.NewProfileRepository(database),
		history:  repository.NewHistoryRepository(database),
	}
}

// Criteria returns the user's criteria or repository.ErrProfileNotFound.
func (p *Preferences) Criteria(ctx context.Context, userID string) (domain.Criteria, error) {
	prof, err := p.profiles.Get(ctx, userID)
	if err != nil {
		return domain.Criteria{}, err
	}
	return prof.Criteria(), nil
}

// CriteriaFor loads many users at once; users without a profile are absent.
func (p *Preferences) CriteriaFor(ctx context.Context, userIDs []string) (map[string]domain.Criteria, error) {
	profs, err := p.profiles.GetMany(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Criteria, len(profs))
	for id, prof := range profs {
		out[id] = prof.Criteria()
	}
	return out, nil
}

// HasEverPaired is symmetric in a and b.
func (p *Preferences) HasEverPaired(ctx context.Context, a, b string) (bool, error) {
	return p.history.Exists(ctx, a, b)
}

// PairedWith returns every past partner of userID.
func (p *Preferences) PairedWith(ctx context.Context, userID string) (map[string]struct{}, error) {
	return p.history.PartnersOf(ctx, userID)
}
