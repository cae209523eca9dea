package matchmaking_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/speeddate/internal/cache"
	"github.com/oggyb/speeddate/internal/config"
	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/events"
	"github.com/oggyb/speeddate/internal/logger"
	"github.com/oggyb/speeddate/internal/matchmaking"
	"github.com/oggyb/speeddate/internal/repository"
)

var t0 = time.Date(2026, 1, 10, 20, 0, 0, 0, time.UTC)

type harness struct {
	eng    *matchmaking.Engine
	db     *gorm.DB
	clock  *matchmaking.ManualClock
	rec    *events.Recorder
	cfg    config.Matchmaking
	locker matchmaking.Locker
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	database, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// newHarness wires an engine over sqlite and a miniredis-backed locker.
func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	appCfg := config.New()
	appCfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(appCfg)
	t.Cleanup(func() { _ = rc.Close() })

	return newHarnessWith(t, rc)
}

func newHarnessWith(t *testing.T, locker matchmaking.Locker) *harness {
	t.Helper()

	h := &harness{
		db:     setupTestDB(t),
		clock:  matchmaking.NewManualClock(t0),
		rec:    &events.Recorder{},
		cfg:    config.DefaultMatchmaking(),
		locker: locker,
	}
	h.eng = matchmaking.New(h.db, locker, h.cfg,
		matchmaking.WithClock(h.clock),
		matchmaking.WithPublisher(h.rec),
		matchmaking.WithLogger(logger.Nop()),
	)
	return h
}

func man(id string, regions ...string) db.Profile {
	return db.Profile{
		UserID: id, Gender: domain.GenderMale, DesiredGender: domain.GenderFemale,
		Age: 30, Regions: datatypes.JSONSlice[string](regions),
	}
}

func woman(id string, regions ...string) db.Profile {
	return db.Profile{
		UserID: id, Gender: domain.GenderFemale, DesiredGender: domain.GenderMale,
		Age: 30, Regions: datatypes.JSONSlice[string](regions),
	}
}

func (h *harness) seed(t *testing.T, profiles ...db.Profile) {
	t.Helper()
	require.NoError(t, db.SeedProfiles(h.db, profiles...))
}

func (h *harness) join(t *testing.T, user string) matchmaking.PairingResult {
	t.Helper()
	res, err := h.eng.RequestPairing(context.Background(), user)
	require.NoError(t, err)
	return res
}

// pending seeds a compatible man/woman couple and pairs them.
func (h *harness) pending(t *testing.T, m, w string) *db.Pair {
	t.Helper()
	region := m + "-" + w
	h.seed(t, man(m, region), woman(w, region))

	require.Equal(t, matchmaking.PairingQueued, h.join(t, w).Status)
	res := h.join(t, m)
	require.Equal(t, matchmaking.PairingPaired, res.Status)
	return res.Pair
}

// active is pending plus both acknowledgments.
func (h *harness) active(t *testing.T, m, w string) *db.Pair {
	t.Helper()
	pair := h.pending(t, m, w)
	ctx := context.Background()

	_, err := h.eng.Acknowledge(ctx, m, pair.ID)
	require.NoError(t, err)
	res, err := h.eng.Acknowledge(ctx, w, pair.ID)
	require.NoError(t, err)
	require.Equal(t, matchmaking.AckWindowOpened, res.Status)
	return h.pair(t, pair.ID)
}

func (h *harness) heartbeat(t *testing.T, users ...string) {
	t.Helper()
	for _, u := range users {
		require.NoError(t, h.eng.Presence().Heartbeat(context.Background(), u))
	}
}

func (h *harness) presence(t *testing.T, user string) *db.UserPresence {
	t.Helper()
	p, err := repository.NewPresenceRepository(h.db).Get(context.Background(), user)
	require.NoError(t, err)
	return p
}

// entry returns the user's queue entry, or nil when not queued.
func (h *harness) entry(t *testing.T, user string) *db.QueueEntry {
	t.Helper()
	e, err := repository.NewQueueRepository(h.db).Get(context.Background(), user)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(t, err)
	return e
}

func (h *harness) pair(t *testing.T, id string) *db.Pair {
	t.Helper()
	p, err := repository.NewPairRepository(h.db).Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) setFairness(t *testing.T, user string, score int64) {
	t.Helper()
	require.NoError(t, h.db.Model(&db.QueueEntry{}).
		Where("user_id = ?", user).
		UpdateColumn("fairness_score", score).Error)
}

// assertConsistent checks the cross-table invariants: a user sits in at
// most one open pair, and a user is matched/voting iff an open pair
// references them.
func (h *harness) assertConsistent(t *testing.T) {
	t.Helper()

	var open []db.Pair
	require.NoError(t, h.db.Where("status IN ?",
		[]domain.PairStatus{domain.PairPending, domain.PairActive}).Find(&open).Error)

	openBy := map[string]string{}
	for _, p := range open {
		require.NotEqual(t, p.User1ID, p.User2ID)
		for _, u := range []string{p.User1ID, p.User2ID} {
			prev, dup := openBy[u]
			require.False(t, dup, "user %s in open pairs %s and %s", u, prev, p.ID)
			openBy[u] = p.ID
		}
	}

	pairs := repository.NewPairRepository(h.db)
	var presences []db.UserPresence
	require.NoError(t, h.db.Find(&presences).Error)
	for _, p := range presences {
		mine, err := pairs.ListOpenForUser(context.Background(), p.UserID)
		require.NoError(t, err)
		require.LessOrEqual(t, len(mine), 1, "user %s has %d open pairs", p.UserID, len(mine))

		pairID, inPair := openBy[p.UserID]
		if p.State.Paired() {
			require.True(t, inPair, "user %s is %s without an open pair", p.UserID, p.State)
			require.Equal(t, pairID, *p.PairID)
		} else {
			require.False(t, inPair, "user %s is %s but in open pair %s", p.UserID, p.State, pairID)
		}
		if p.State == domain.StateWaiting {
			require.NotNil(t, h.entry(t, p.UserID), "waiting user %s has no entry", p.UserID)
		} else {
			require.Nil(t, h.entry(t, p.UserID), "%s user %s still queued", p.State, p.UserID)
		}
	}
}
