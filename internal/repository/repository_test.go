package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/repository"
)

var t0 = time.Date(2026, 1, 10, 20, 0, 0, 0, time.UTC)

// setup in-memory DB
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

func ptr[T any](v T) *T { return &v }

func waiting(t *testing.T, database *gorm.DB, user string, fairness int64, enqueued time.Time, reachable time.Time) {
	t.Helper()
	require.NoError(t, database.Create(&db.UserPresence{UserID: user, State: domain.StateWaiting, ReachableUntil: reachable}).Error)
	require.NoError(t, database.Create(&db.QueueEntry{UserID: user, FairnessScore: fairness, EnqueuedAt: enqueued}).Error)
}

func TestSnapshotOrderAndReachability(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	repo := repository.NewQueueRepository(database)

	live := t0.Add(time.Minute)
	waiting(t, database, "a", 0, t0, live)
	waiting(t, database, "b", 5, t0.Add(2*time.Second), live)
	waiting(t, database, "c", 5, t0.Add(time.Second), live)
	waiting(t, database, "gone", 50, t0, t0.Add(-time.Minute)) // unreachable
	waiting(t, database, "self", 99, t0, live)

	entries, err := repo.Snapshot(ctx, "self", t0, 10)
	require.NoError(t, err)

	var order []string
	for _, e := range entries {
		order = append(order, e.UserID)
	}
	// fairness desc, then earliest enqueue
	assert.Equal(t, []string{"c", "b", "a"}, order)

	stale, err := repo.ListUnreachable(ctx, t0)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "gone", stale[0].UserID)
}

func TestQueueInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewQueueRepository(setupTestDB(t))

	created, err := repo.Insert(ctx, &db.QueueEntry{UserID: "a", FairnessScore: 3, EnqueuedAt: t0})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Insert(ctx, &db.QueueEntry{UserID: "a", FairnessScore: 0, EnqueuedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, created)

	e, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.FairnessScore, "second join must not reset fairness")
	assert.True(t, e.EnqueuedAt.Equal(t0))
}

func TestAgeAndAdvanceStages(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	repo := repository.NewQueueRepository(database)

	live := t0.Add(time.Hour)
	waiting(t, database, "old", 0, t0, live)
	waiting(t, database, "new", 0, t0.Add(50*time.Second), live)

	n, err := repo.Age(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	moved, err := repo.AdvanceStages(ctx, t0.Add(61*time.Second), time.Minute, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	old, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 1, old.RelaxStage)
	assert.Equal(t, int64(2), old.FairnessScore)

	// one step per call even when long overdue
	_, err = repo.AdvanceStages(ctx, t0.Add(time.Hour), time.Minute, 2)
	require.NoError(t, err)
	old, _ = repo.Get(ctx, "old")
	assert.Equal(t, 2, old.RelaxStage)

	_, err = repo.AdvanceStages(ctx, t0.Add(time.Hour), time.Minute, 2)
	require.NoError(t, err)
	old, _ = repo.Get(ctx, "old")
	assert.Equal(t, 2, old.RelaxStage, "capped at max stage")
}

func TestPairUpdateVersioned(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPairRepository(setupTestDB(t))

	p := &db.Pair{ID: "p1", User1ID: "a", User2ID: "b", Status: domain.PairPending, CreatedAt: t0}
	require.NoError(t, repo.Create(ctx, p))

	stale := *p

	p.SetAck(domain.Side1, t0)
	ok, err := repo.UpdateVersioned(ctx, p, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), p.Version)

	stale.SetAck(domain.Side2, t0)
	ok, err = repo.UpdateVersioned(ctx, &stale, 0)
	require.NoError(t, err)
	assert.False(t, ok, "writer holding version 0 must lose")

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.NotNil(t, got.User1AckAt)
	assert.Nil(t, got.User2AckAt)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPairNotFound)
}

func TestValidatePair(t *testing.T) {
	base := func() *db.Pair {
		return &db.Pair{ID: "p", User1ID: "a", User2ID: "b", Status: domain.PairPending}
	}
	assert.NoError(t, repository.ValidatePair(base()))

	p := base()
	p.User1ID, p.User2ID = "b", "a"
	assert.ErrorIs(t, repository.ValidatePair(p), domain.ErrInvariant)

	p = base()
	p.User2ID = "a"
	assert.ErrorIs(t, repository.ValidatePair(p), domain.ErrInvariant)

	p = base()
	p.Status = domain.PairCompleted
	assert.ErrorIs(t, repository.ValidatePair(p), domain.ErrInvariant, "completed needs outcome")
	p.Outcome = ptr(domain.OutcomeMutualMatch)
	assert.NoError(t, repository.ValidatePair(p))

	p = base()
	p.Status = domain.PairActive
	assert.ErrorIs(t, repository.ValidatePair(p), domain.ErrInvariant, "active needs expiry")
	p.VoteExpiresAt = ptr(t0)
	assert.NoError(t, repository.ValidatePair(p))

	p = base()
	p.Status = domain.PairCancelled
	p.CancelReason = ptr(domain.CancelLeft)
	assert.NoError(t, repository.ValidatePair(p))
}

func TestPresenceTouchAndValidate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPresenceRepository(setupTestDB(t))

	require.NoError(t, repo.Touch(ctx, "a", t0))
	require.NoError(t, repo.Touch(ctx, "a", t0.Add(time.Minute)))

	p, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, p.State)
	assert.True(t, p.ReachableUntil.Equal(t0.Add(time.Minute)))

	p.State = domain.StateMatched
	assert.ErrorIs(t, repo.Save(ctx, p), domain.ErrInvariant, "matched without refs")

	p.PartnerID, p.PairID = ptr("b"), ptr("p1")
	assert.NoError(t, repo.Save(ctx, p))

	p.State = domain.StateIdle
	assert.ErrorIs(t, repo.Save(ctx, p), domain.ErrInvariant, "idle with refs")

	missing, err := repo.Find(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHistoryIsSymmetric(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewHistoryRepository(setupTestDB(t))

	key, err := domain.NewPairKey("zed", "amy")
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, key, "p1"))
	require.NoError(t, repo.Append(ctx, key, "p1"))

	ok, err := repo.Exists(ctx, "zed", "amy")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Exists(ctx, "amy", "zed")
	require.NoError(t, err)
	assert.True(t, ok)

	partners, err := repo.PartnersOf(ctx, "zed")
	require.NoError(t, err)
	assert.Contains(t, partners, "amy")
}

func TestListForUserPagination(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPairRepository(setupTestDB(t))

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &db.Pair{
			ID:            fmt.Sprintf("p%d", i),
			User1ID:       "a",
			User2ID:       fmt.Sprintf("b%d", i),
			Status:        domain.PairCancelled,
			CancelReason:  ptr(domain.CancelLeft),
			CreatedAt:     t0.Add(time.Duration(i) * time.Second),
		}))
	}

	page1, next, err := repo.ListForUser(ctx, "a", nil, 3)
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.NotNil(t, next)
	assert.Equal(t, "p4", page1[0].ID)

	page2, next, err := repo.ListForUser(ctx, "a", next, 3)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Nil(t, next)
	assert.Equal(t, "p1", page2[0].ID)
	assert.Equal(t, "p0", page2[1].ID)

	_, _, err = repo.ListForUser(ctx, "a", ptr("garbage"), 3)
	assert.Error(t, err)
}
