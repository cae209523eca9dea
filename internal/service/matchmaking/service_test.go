package matchmaking_test

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/speeddate/internal/app"
	"github.com/oggyb/speeddate/internal/cache"
	"github.com/oggyb/speeddate/internal/config"
	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/events"
	"github.com/oggyb/speeddate/internal/logger"
	core "github.com/oggyb/speeddate/internal/matchmaking"
	"github.com/oggyb/speeddate/internal/server"
	svc "github.com/oggyb/speeddate/internal/service/matchmaking"
)

type env struct {
	client *svc.Client
	clock  *core.ManualClock
	redis  *cache.RedisCache
	cfg    config.Matchmaking
}

// setupService wires sqlite, miniredis, the engine and the gRPC server over
// an in-memory listener, and returns a client connected to it.
//
// Seeded profiles: m1/m2 (men) and w1/w2 (women), all in "berlin".
func setupService(t *testing.T) *env {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dbase, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(dbase))

	var profiles []db.Profile
	for _, p := range []struct {
		id     string
		gender domain.Gender
		wants  domain.Gender
	}{
		{"m1", domain.GenderMale, domain.GenderFemale},
		{"m2", domain.GenderMale, domain.GenderFemale},
		{"w1", domain.GenderFemale, domain.GenderMale},
		{"w2", domain.GenderFemale, domain.GenderMale},
	} {
		profiles = append(profiles, db.Profile{
			UserID: p.id, Gender: p.gender, DesiredGender: p.wants, Age: 30,
			Regions: datatypes.JSONSlice[string]{"berlin"},
		})
	}
	require.NoError(t, db.SeedProfiles(dbase, profiles...))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = redisCache.Close() })

	log := logger.Nop()
	clock := core.NewManualClock(time.Date(2026, 1, 10, 20, 0, 0, 0, time.UTC))
	engine := core.New(dbase, redisCache, cfg.Matchmaking,
		core.WithClock(clock),
		core.WithPublisher(events.NewRedisPublisher(redisCache)),
		core.WithLogger(log),
	)
	appCtx := app.New(cfg, dbase, redisCache, engine, log)

	lis := bufconn.Listen(1 << 20)
	grpcServer := server.NewGRPCServer(log, svc.NewRegistrar(appCtx))
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &env{client: svc.NewClient(conn), clock: clock, redis: redisCache, cfg: cfg.Matchmaking}
}

func TestPairAckVoteOverGRPC(t *testing.T) {
	ctx := context.Background()
	e := setupService(t)

	res, err := e.client.RequestPairing(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "queued", res.Status)
	assert.Nil(t, res.Pair)

	res, err = e.client.RequestPairing(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "paired", res.Status)
	require.NotNil(t, res.Pair)
	pairID := res.Pair.ID
	assert.Equal(t, "pending", res.Pair.Status)

	ack, err := e.client.Acknowledge(ctx, "m1", pairID)
	require.NoError(t, err)
	assert.Equal(t, "recorded", ack.Status)
	ack, err = e.client.Acknowledge(ctx, "w1", pairID)
	require.NoError(t, err)
	assert.Equal(t, "window_opened", ack.Status)
	assert.NotZero(t, ack.VoteExpiresAt)

	vote, err := e.client.SubmitVote(ctx, "m1", pairID, "accept")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_partner", vote.Status)
	vote, err = e.client.SubmitVote(ctx, "w1", pairID, "accept")
	require.NoError(t, err)
	assert.Equal(t, "resolved", vote.Status)
	assert.Equal(t, "mutual_match", vote.Outcome)

	st, err := e.client.GetState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "idle", st.State)
	assert.Nil(t, st.Pair)

	hist, err := e.client.ListPairHistory(ctx, &svc.HistoryRequest{UserID: "w1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, hist.Pairs, 1)
	assert.Equal(t, "mutual_match", hist.Pairs[0].Outcome)
	assert.Nil(t, hist.NextPaginationToken)
}

func TestErrorCodesOverGRPC(t *testing.T) {
	ctx := context.Background()
	e := setupService(t)

	_, err := e.client.RequestPairing(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = e.client.RequestPairing(ctx, "stranger")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = e.client.Acknowledge(ctx, "m1", "missing-pair")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = e.client.SubmitVote(ctx, "m1", "missing-pair", "maybe")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	bad := "%%%"
	_, err = e.client.ListPairHistory(ctx, &svc.HistoryRequest{UserID: "m1", PaginationToken: &bad})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestLeaveHeartbeatAndSweepOverGRPC(t *testing.T) {
	ctx := context.Background()
	e := setupService(t)

	_, err := e.client.RequestPairing(ctx, "m2")
	require.NoError(t, err)

	leave, err := e.client.LeaveQueue(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "dequeued", leave.Status)

	_, err = e.client.RequestPairing(ctx, "m1")
	require.NoError(t, err)

	// only heartbeats keep a queued user alive
	e.clock.Advance(e.cfg.HeartbeatTTL)
	require.NoError(t, e.client.Heartbeat(ctx, "m1"))
	e.clock.Advance(e.cfg.ReachabilityGrace)

	rep, err := e.client.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.StaleDequeued)

	e.clock.Advance(e.cfg.HeartbeatTTL)
	rep, err = e.client.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.StaleDequeued)

	st, err := e.client.GetState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "idle", st.State)
	assert.False(t, st.Reachable)
}

func TestEventsReachSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := setupService(t)

	got := make(chan events.Event, 8)
	go func() {
		_ = events.Watch(ctx, e.redis, "w2", func(ev events.Event) { got <- ev }, nil)
	}()
	// wait until the subscription is live
	require.Eventually(t, func() bool {
		n, err := e.redis.Client.PubSubNumSub(ctx, e.redis.KeyForEvents("w2")).Result()
		return err == nil && n[e.redis.KeyForEvents("w2")] > 0
	}, time.Second, 10*time.Millisecond)

	_, err := e.client.RequestPairing(ctx, "w2")
	require.NoError(t, err)
	res, err := e.client.RequestPairing(ctx, "m2")
	require.NoError(t, err)
	require.Equal(t, "paired", res.Status)

	select {
	case ev := <-got:
		assert.Equal(t, events.KindPaired, ev.Kind)
		assert.Equal(t, res.Pair.ID, ev.PairID)
		assert.ElementsMatch(t, []string{"m2", "w2"}, ev.UserIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("no paired event delivered")
	}
}
