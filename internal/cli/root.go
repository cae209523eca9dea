// Package cli implements matchctl, the operator tool for the matchmaking
// service.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/oggyb/speeddate/internal/config"
	svc "github.com/oggyb/speeddate/internal/service/matchmaking"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Addr    string
	Format  string // "json" | "text"
	Timeout time.Duration

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for matchctl.
func NewRootCommand() *cobra.Command {
	cfg := config.New()
	opts := &RootOptions{cfg: cfg}

	cmd := &cobra.Command{
		Use:   "matchctl",
		Short: "matchctl - operate the speed-dating matchmaker",
		Long:  "Seed data, drive users through the queue → pair → vote flow, and watch their events.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port, "matchmaker gRPC address")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "per-call timeout")

	// Add subcommands
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewLeaveCommand(opts))
	cmd.AddCommand(NewHeartbeatCommand(opts))
	cmd.AddCommand(NewAckCommand(opts))
	cmd.AddCommand(NewVoteCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// withClient dials the server and runs fn with a per-call deadline.
func withClient(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, c *svc.Client) (any, error)) error {
	conn, err := grpc.NewClient(opts.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.Addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	out, err := fn(ctx, svc.NewClient(conn))
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), opts.Format, out)
}

// render prints v as indented JSON, or as sorted key=value lines in text
// mode.
func render(w io.Writer, format string, v any) error {
	if v == nil {
		return nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch val := fields[k].(type) {
		case map[string]any, []any:
			raw, _ := json.Marshal(val)
			fmt.Fprintf(w, "%s=%s\n", k, raw)
		default:
			fmt.Fprintf(w, "%s=%v\n", k, val)
		}
	}
	return nil
}
