package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oggyb/speeddate/internal/domain"
	svc "github.com/oggyb/speeddate/internal/service/matchmaking"
)

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one timeout-resolver pass on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, rootOpts, func(ctx context.Context, c *svc.Client) (any, error) {
				return c.Sweep(ctx)
			})
		},
	}
}

func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <user>",
		Short: "Join the queue and try to pair immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, rootOpts, func(ctx context.Context, c *svc.Client) (any, error) {
				return c.RequestPairing(ctx, args[0])
			})
		},
	}
}

func NewLeaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <user>",
		Short: "Leave the queue or the current pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, rootOpts, func(ctx context.Context, c *svc.Client) (any, error) {
				return c.LeaveQueue(ctx, args[0])
			})
		},
	}
}

func NewHeartbeatCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat <user>",
		Short: "Mark a user reachable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, rootOpts, func(ctx context.Context, c *svc.Client) (any, error) {
				return nil, c.Heartbeat(ctx, args[0])
			})
		},
	}
}

func NewAckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ack <user> <pair-id>",
		Short: "Acknowledge a pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, rootOpts, func(ctx context.Context, c *svc.Client) (any, error) {
				return c.Acknowledge(ctx, args[0], args[1])
			})
		},
	}
}

func NewVoteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vote <user> <pair-id> <accept|decline>",
		Short: "Vote on an active pair",
		Args: cobra.MatchAll(cobra.ExactArgs(3), func(cmd *cobra.Command, args []string) error {
			_, err := domain.ParseVote(args[2])
			return err
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, rootOpts, func(ctx context.Context, c *svc.Client) (any, error) {
				return c.SubmitVote(ctx, args[0], args[1], args[2])
			})
		},
	}
}

func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state <user>",
		Short: "Show a user's presence, queue entry and open pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, rootOpts, func(ctx context.Context, c *svc.Client) (any, error) {
				return c.GetState(ctx, args[0])
			})
		},
	}
}

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
	Token string
}

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <user>",
		Short: "List a user's pairs, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &svc.HistoryRequest{UserID: args[0], Limit: opts.Limit}
			if opts.Token != "" {
				req.PaginationToken = &opts.Token
			}
			return withClient(cmd, opts.RootOptions, func(ctx context.Context, c *svc.Client) (any, error) {
				return c.ListPairHistory(ctx, req)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&opts.Token, "page", "", "pagination token from a previous call")

	return cmd
}
