package matchmaking

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a typed client for the Matchmaking API.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(codecName))
}

func call[Resp any](ctx context.Context, c *Client, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := c.invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RequestPairing(ctx context.Context, userID string) (*PairingResponse, error) {
	return call[PairingResponse](ctx, c, "RequestPairing", &UserRequest{UserID: userID})
}

func (c *Client) LeaveQueue(ctx context.Context, userID string) (*LeaveResponse, error) {
	return call[LeaveResponse](ctx, c, "LeaveQueue", &UserRequest{UserID: userID})
}

func (c *Client) Heartbeat(ctx context.Context, userID string) error {
	return c.invoke(ctx, "Heartbeat", &UserRequest{UserID: userID}, new(HeartbeatResponse))
}

func (c *Client) Acknowledge(ctx context.Context, userID, pairID string) (*AckResponse, error) {
	return call[AckResponse](ctx, c, "Acknowledge", &AckRequest{UserID: userID, PairID: pairID})
}

func (c *Client) SubmitVote(ctx context.Context, userID, pairID, choice string) (*VoteResponse, error) {
	return call[VoteResponse](ctx, c, "SubmitVote", &VoteRequest{UserID: userID, PairID: pairID, Choice: choice})
}

func (c *Client) GetState(ctx context.Context, userID string) (*StateResponse, error) {
	return call[StateResponse](ctx, c, "GetState", &UserRequest{UserID: userID})
}

func (c *Client) ListPairHistory(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	return call[HistoryResponse](ctx, c, "ListPairHistory", req)
}

func (c *Client) Sweep(ctx context.Context) (*SweepResponse, error) {
	return call[SweepResponse](ctx, c, "Sweep", &SweepRequest{})
}
