package matchmaking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/speeddate/internal/domain"
	"github.com/oggyb/speeddate/internal/events"
	"github.com/oggyb/speeddate/internal/matchmaking"
)

func (h *harness) goneFor() time.Duration {
	return h.cfg.HeartbeatTTL + h.cfg.ReachabilityGrace + time.Second
}

func TestSweepDequeuesUnreachableUsers(t *testing.T) {
	h := newHarness(t)
	h.seed(t, man("m1", "x"), man("m2", "x"))
	ctx := context.Background()

	h.join(t, "m1")
	h.join(t, "m2")
	h.clock.Advance(h.goneFor())
	h.heartbeat(t, "m2")

	rep, err := h.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.StaleDequeued)

	p := h.presence(t, "m1")
	assert.Equal(t, domain.StateIdle, p.State)
	assert.Zero(t, p.CarriedFairness)
	assert.Nil(t, h.entry(t, "m1"))
	assert.NotNil(t, h.entry(t, "m2"))

	left := h.rec.OfKind(events.KindQueueLeft)
	require.Len(t, left, 1)
	assert.Equal(t, []string{"m1"}, left[0].UserIDs)
	assert.Equal(t, "unreachable", left[0].Reason)
	h.assertConsistent(t)
}

func TestSweepAgesWaitingUsers(t *testing.T) {
	h := newHarness(t)
	h.seed(t, man("m1", "x"))
	ctx := context.Background()

	h.join(t, "m1")
	for range 3 {
		_, err := h.eng.Sweep(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3*h.cfg.AgingCredit, h.entry(t, "m1").FairnessScore)
}

// A side disconnecting before acknowledging cancels the pair; the partner
// goes back to the queue with the score they had.
func TestSweepCancelsPendingPairOnDisconnect(t *testing.T) {
	h := newHarness(t)
	h.seed(t, man("m1", "x"), woman("w1", "x"))
	ctx := context.Background()

	h.join(t, "w1")
	h.setFairness(t, "w1", 3)
	res := h.join(t, "m1")
	require.Equal(t, matchmaking.PairingPaired, res.Status)

	_, err := h.eng.Acknowledge(ctx, "w1", res.Pair.ID)
	require.NoError(t, err)

	h.clock.Advance(h.goneFor())
	h.heartbeat(t, "w1")

	rep, err := h.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.PendingCancelled)

	stored := h.pair(t, res.Pair.ID)
	assert.Equal(t, domain.PairCancelled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, domain.CancelDisconnect, *stored.CancelReason)
	assert.Nil(t, stored.Outcome)

	assert.Equal(t, domain.StateIdle, h.presence(t, "m1").State)
	assert.Equal(t, domain.StateWaiting, h.presence(t, "w1").State)
	e := h.entry(t, "w1")
	require.NotNil(t, e)
	assert.Equal(t, int64(3), e.FairnessScore)

	cancelled := h.rec.OfKind(events.KindPairCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "disconnect", cancelled[0].Reason)
	h.assertConsistent(t)
}

func TestSweepCancelsUnacknowledgedPair(t *testing.T) {
	h := newHarness(t)
	pair := h.pending(t, "m1", "w1")
	ctx := context.Background()

	_, err := h.eng.Acknowledge(ctx, "m1", pair.ID)
	require.NoError(t, err)

	// still inside the ack timeout: nothing happens
	h.clock.Advance(h.cfg.AckTimeout - time.Second)
	h.heartbeat(t, "m1", "w1")
	rep, err := h.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.PendingCancelled)

	h.clock.Advance(time.Second)
	rep, err = h.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.PendingCancelled)

	stored := h.pair(t, pair.ID)
	assert.Equal(t, domain.PairCancelled, stored.Status)
	assert.Equal(t, domain.CancelAckTimeout, *stored.CancelReason)
	assert.Equal(t, domain.StateWaiting, h.presence(t, "m1").State)
	assert.Equal(t, domain.StateIdle, h.presence(t, "w1").State)
	h.assertConsistent(t)
}

func TestSweepSkipsLockedPairs(t *testing.T) {
	h := newHarness(t)
	pair := h.active(t, "m1", "w1")
	ctx := context.Background()

	h.clock.Advance(h.cfg.VoteWindow)
	h.heartbeat(t, "m1", "w1")

	token, ok, err := h.locker.TryLock(ctx, "lock:user:w1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	rep, err := h.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.ExpiredResolved)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, domain.PairActive, h.pair(t, pair.ID).Status)

	require.NoError(t, h.locker.Unlock(ctx, "lock:user:w1", token))
	rep, err = h.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ExpiredResolved)
	assert.Equal(t, domain.OutcomeDoubleTimeout, *h.pair(t, pair.ID).Outcome)
	h.assertConsistent(t)
}

func TestSweepHonorsCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.eng.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
