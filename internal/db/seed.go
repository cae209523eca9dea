package db

import (
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/logger"
)

var seedRegions = []string{"london", "manchester", "leeds", "bristol"}

// SeedTestData resets the matchmaking tables and creates demo profiles.
//
// Behavior:
//  1. Clears pairs, history, queue, presence and profiles.
//  2. Creates 20 profiles: user1..user10 male seeking female,
//     user11..user20 female seeking male.
//  3. Ages 22–40 with a ±6 year window; each profile gets 0–2 regions
//     (none means "anywhere").
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{"pair_histories", "pairs", "queue_entries", "user_presences", "profiles"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	logger.Info("cleared existing data")

	profiles := make([]Profile, 0, 20)
	for i := 1; i <= 20; i++ {
		gender, desired := domain.GenderMale, domain.GenderFemale
		if i > 10 {
			gender, desired = domain.GenderFemale, domain.GenderMale
		}

		age := 22 + r.Intn(19)
		var regions []string
		for _, idx := range r.Perm(len(seedRegions))[:r.Intn(3)] {
			regions = append(regions, seedRegions[idx])
		}

		profiles = append(profiles, Profile{
			UserID:        fmt.Sprintf("user%d", i),
			Gender:        gender,
			DesiredGender: desired,
			Age:           age,
			AgeMin:        max(18, age-6),
			AgeMax:        age + 6,
			Regions:       regions,
		})
	}

	if err := SeedProfiles(db, profiles...); err != nil {
		return err
	}
	logger.Info("seeded profiles", "count", len(profiles))
	return nil
}

// SeedProfiles inserts or overwrites the given profiles.
func SeedProfiles(db *gorm.DB, profiles ...Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"gender", "desired_gender", "age", "age_min", "age_max", "regions", "updated_at"}),
	}).Create(&profiles).Error
	if err != nil {
		return fmt.Errorf("failed to seed profiles: %w", err)
	}
	return nil
}
