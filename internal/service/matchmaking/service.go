package matchmaking

import (
	"context"

	"github.com/oggyb/speeddate/internal/app"
	"github.com/oggyb/speeddate/internal/domain"
	svcErr "github.com/oggyb/speeddate/internal/errors"
)

// Service implements the Matchmaking gRPC API on top of the engine.
// Caller identity comes from the request; authentication happens upstream.
type Service struct {
	appCtx *app.AppContext
}

// NewMatchmakingService creates the service from the shared AppContext.
func NewMatchmakingService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// RequestPairing joins the queue and tries to pair immediately.
//
// Behavior:
//   - "paired" with the new (or already formed) pair.
//   - "queued" when nobody compatible is available right now; the user
//     stays queued and is retried by later joins and the sweep.
//   - "conflict" with the open pair when the user is already matched.
//
// Example:
//
//	svc.RequestPairing(ctx, &UserRequest{UserID: "42"})
func (s *Service) RequestPairing(ctx context.Context, req *UserRequest) (*PairingResponse, error) {
	s.appCtx.Logger.Debug("RequestPairing called", "user_id", req.UserID)
	if req.UserID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}

	res, err := s.appCtx.Engine.RequestPairing(ctx, req.UserID)
	if err != nil {
		s.appCtx.Logger.Error("RequestPairing failed", "user_id", req.UserID, "err", err)
		return nil, svcErr.Map(err)
	}
	return &PairingResponse{Status: string(res.Status), Pair: toPairView(res.Pair)}, nil
}

// LeaveQueue ends the user's session: dequeues, cancels a pending pair or
// resolves an active one with the leaver's decline.
func (s *Service) LeaveQueue(ctx context.Context, req *UserRequest) (*LeaveResponse, error) {
	s.appCtx.Logger.Debug("LeaveQueue called", "user_id", req.UserID)
	if req.UserID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}

	res, err := s.appCtx.Engine.LeaveQueue(ctx, req.UserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &LeaveResponse{Status: string(res.Status), PairID: res.PairID, Outcome: string(res.Outcome)}, nil
}

func (s *Service) Heartbeat(ctx context.Context, req *UserRequest) (*HeartbeatResponse, error) {
	if req.UserID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	if err := s.appCtx.Engine.Presence().Heartbeat(ctx, req.UserID); err != nil {
		return nil, svcErr.Map(err)
	}
	return &HeartbeatResponse{}, nil
}

// Acknowledge records that the user saw the pair; the second
// acknowledgment opens the vote window.
func (s *Service) Acknowledge(ctx context.Context, req *AckRequest) (*AckResponse, error) {
	s.appCtx.Logger.Debug("Acknowledge called", "user_id", req.UserID, "pair_id", req.PairID)
	if req.UserID == "" || req.PairID == "" {
		return nil, svcErr.InvalidArgument("user_id and pair_id are required")
	}

	res, err := s.appCtx.Engine.Acknowledge(ctx, req.UserID, req.PairID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	resp := &AckResponse{Status: string(res.Status), Reason: res.Reason}
	if !res.VoteExpiresAt.IsZero() {
		resp.VoteExpiresAt = res.VoteExpiresAt.UnixMilli()
	}
	return resp, nil
}

// SubmitVote records accept/decline. "window_expired" tells the client to
// refresh its state.
func (s *Service) SubmitVote(ctx context.Context, req *VoteRequest) (*VoteResponse, error) {
	s.appCtx.Logger.Debug("SubmitVote called", "user_id", req.UserID, "pair_id", req.PairID, "choice", req.Choice)
	if req.UserID == "" || req.PairID == "" {
		return nil, svcErr.InvalidArgument("user_id and pair_id are required")
	}
	choice, err := domain.ParseVote(req.Choice)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	res, err := s.appCtx.Engine.Vote(ctx, req.UserID, req.PairID, choice)
	if err != nil {
		s.appCtx.Logger.Error("SubmitVote failed", "pair_id", req.PairID, "err", err)
		return nil, svcErr.Map(err)
	}
	return &VoteResponse{Status: string(res.Status), Outcome: string(res.Outcome), Reason: res.Reason}, nil
}

func (s *Service) GetState(ctx context.Context, req *UserRequest) (*StateResponse, error) {
	if req.UserID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	st, err := s.appCtx.Engine.GetState(ctx, req.UserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toStateResponse(st), nil
}

// ListPairHistory pages through a user's pairs, newest first.
//
// Example:
//
//	svc.ListPairHistory(ctx, &HistoryRequest{UserID: "42", Limit: 10})
func (s *Service) ListPairHistory(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	if req.UserID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}

	pairs, next, err := s.appCtx.Engine.ListPairHistory(ctx, req.UserID, req.PaginationToken, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &HistoryResponse{Pairs: make([]PairView, 0, len(pairs)), NextPaginationToken: next}
	for i := range pairs {
		resp.Pairs = append(resp.Pairs, *toPairView(&pairs[i]))
	}
	return resp, nil
}

// Sweep runs one resolver pass. Meant for an external scheduler when the
// in-process sweeper is disabled.
func (s *Service) Sweep(ctx context.Context, _ *SweepRequest) (*SweepResponse, error) {
	rep, err := s.appCtx.Engine.Sweep(ctx)
	if err != nil {
		s.appCtx.Logger.Warn("sweep finished with errors", "err", err)
	}
	return &SweepResponse{
		StaleDequeued:    rep.StaleDequeued,
		ExpiredResolved:  rep.ExpiredResolved,
		PendingCancelled: rep.PendingCancelled,
		Aged:             rep.Aged,
		Relaxed:          rep.Relaxed,
		Paired:           rep.Paired,
		Skipped:          rep.Skipped,
		Failures:         rep.Failures,
	}, nil
}
