package matchmaking

import (
	"time"

	"github.com/oggyb/speeddate/internal/db"
	core "github.com/oggyb/speeddate/internal/matchmaking"
)

// Wire messages. Timestamps are unix milliseconds; zero means unset.

type UserRequest struct {
	UserID string `json:"user_id"`
}

type AckRequest struct {
	UserID string `json:"user_id"`
	PairID string `json:"pair_id"`
}

type VoteRequest struct {
	UserID string `json:"user_id"`
	PairID string `json:"pair_id"`
	Choice string `json:"choice"`
}

type HistoryRequest struct {
	UserID          string  `json:"user_id"`
	PaginationToken *string `json:"pagination_token,omitempty"`
	Limit           int     `json:"limit,omitempty"`
}

type SweepRequest struct{}

type HeartbeatResponse struct{}

type PairView struct {
	ID            string `json:"id"`
	User1ID       string `json:"user1_id"`
	User2ID       string `json:"user2_id"`
	Status        string `json:"status"`
	User1AckedAt  int64  `json:"user1_acked_at,omitempty"`
	User2AckedAt  int64  `json:"user2_acked_at,omitempty"`
	VoteExpiresAt int64  `json:"vote_expires_at,omitempty"`
	User1Vote     string `json:"user1_vote,omitempty"`
	User2Vote     string `json:"user2_vote,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

type QueueView struct {
	FairnessScore int64 `json:"fairness_score"`
	EnqueuedAt    int64 `json:"enqueued_at"`
	RelaxStage    int   `json:"relax_stage"`
}

type PairingResponse struct {
	Status string    `json:"status"`
	Pair   *PairView `json:"pair,omitempty"`
}

type AckResponse struct {
	Status        string `json:"status"`
	VoteExpiresAt int64  `json:"vote_expires_at,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type VoteResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type LeaveResponse struct {
	Status  string `json:"status"`
	PairID  string `json:"pair_id,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

type StateResponse struct {
	UserID    string     `json:"user_id"`
	State     string     `json:"state"`
	Reachable bool       `json:"reachable"`
	Queue     *QueueView `json:"queue,omitempty"`
	Pair      *PairView  `json:"pair,omitempty"`
}

type HistoryResponse struct {
	Pairs               []PairView `json:"pairs"`
	NextPaginationToken *string    `json:"next_pagination_token,omitempty"`
}

type SweepResponse struct {
	StaleDequeued    int   `json:"stale_dequeued"`
	ExpiredResolved  int   `json:"expired_resolved"`
	PendingCancelled int   `json:"pending_cancelled"`
	Aged             int64 `json:"aged"`
	Relaxed          int64 `json:"relaxed"`
	Paired           int   `json:"paired"`
	Skipped          int   `json:"skipped"`
	Failures         int   `json:"failures"`
}

func millis(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func toPairView(p *db.Pair) *PairView {
	if p == nil {
		return nil
	}
	v := &PairView{
		ID:            p.ID,
		User1ID:       p.User1ID,
		User2ID:       p.User2ID,
		Status:        string(p.Status),
		User1AckedAt:  millis(p.User1AckAt),
		User2AckedAt:  millis(p.User2AckAt),
		VoteExpiresAt: millis(p.VoteExpiresAt),
		User1Vote:     string(p.User1Vote),
		User2Vote:     string(p.User2Vote),
		CreatedAt:     p.CreatedAt.UnixMilli(),
	}
	if p.Outcome != nil {
		v.Outcome = string(*p.Outcome)
	}
	if p.CancelReason != nil {
		v.CancelReason = string(*p.CancelReason)
	}
	return v
}

func toStateResponse(st core.UserState) *StateResponse {
	resp := &StateResponse{
		UserID:    st.UserID,
		State:     string(st.State),
		Reachable: st.Reachable,
		Pair:      toPairView(st.Pair),
	}
	if st.Queue != nil {
		resp.Queue = &QueueView{
			FairnessScore: st.Queue.FairnessScore,
			EnqueuedAt:    st.Queue.EnqueuedAt.UnixMilli(),
			RelaxStage:    st.Queue.RelaxStage,
		}
	}
	return resp
}
