package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oggyb/speeddate/internal/cache"
	"github.com/oggyb/speeddate/internal/events"
)

// NewWatchCommand creates the watch command. It subscribes to the user's
// Redis channel (REDIS_ADDR) and prints events until interrupted.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <user>",
		Short: "Stream a user's matchmaking events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := cache.NewRedisCache(rootOpts.cfg)
			defer rc.Close()

			if err := rc.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}

			out := cmd.OutOrStdout()
			return events.Watch(cmd.Context(), rc, args[0],
				func(e events.Event) {
					if err := render(out, rootOpts.Format, e); err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), err)
					}
					if rootOpts.Format == "text" {
						fmt.Fprintln(out)
					}
				},
				func(err error) { fmt.Fprintln(cmd.ErrOrStderr(), "skipping event:", err) },
			)
		},
	}
}
