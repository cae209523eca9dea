package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oggyb/speeddate/internal/db"
)

// NewSeedCommand creates the seed command. It talks to the database
// directly (DB_DRIVER, MYSQL_DSN / SQLITE_PATH).
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Reset matchmaking tables and insert demo profiles",
		Long: `Reset matchmaking tables and insert demo profiles.

Creates user1..user20, men seeking women and women seeking men, with
random ages and regions. Every presence, queue entry and pair is removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.NewDB(rootOpts.cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			if err := db.SeedTestData(database); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seeded 20 profiles")
			return nil
		},
	}
}
