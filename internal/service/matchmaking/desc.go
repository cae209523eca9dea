package matchmaking

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "speeddate.Matchmaking"

// Server is the matchmaking API. *Service implements it.
type Server interface {
	RequestPairing(context.Context, *UserRequest) (*PairingResponse, error)
	LeaveQueue(context.Context, *UserRequest) (*LeaveResponse, error)
	Heartbeat(context.Context, *UserRequest) (*HeartbeatResponse, error)
	Acknowledge(context.Context, *AckRequest) (*AckResponse, error)
	SubmitVote(context.Context, *VoteRequest) (*VoteResponse, error)
	GetState(context.Context, *UserRequest) (*StateResponse, error)
	ListPairHistory(context.Context, *HistoryRequest) (*HistoryResponse, error)
	Sweep(context.Context, *SweepRequest) (*SweepResponse, error)
}

// ServiceDesc describes the API for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		unary("RequestPairing", Server.RequestPairing),
		unary("LeaveQueue", Server.LeaveQueue),
		unary("Heartbeat", Server.Heartbeat),
		unary("Acknowledge", Server.Acknowledge),
		unary("SubmitVote", Server.SubmitVote),
		unary("GetState", Server.GetState),
		unary("ListPairHistory", Server.ListPairHistory),
		unary("Sweep", Server.Sweep),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "speeddate/matchmaking",
}

// RegisterServer attaches srv to s.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// unary builds the handler for one request/response method.
func unary[Req, Resp any](method string, call func(Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Server), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(Server), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
