package cli

import (
	"github.com/ozanardine/phanteon-rewards/internal/app"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var createDB bool

	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) > 0 {
				action = args[0]
			}

			return app.RunMigrations(action, createDB)
		},
	}

	cmd.Flags().BoolVar(&createDB, "create-db", false, "Create the database if it does not exist")

	return cmd
}
