package cli

import (
	"encoding/json"
	"fmt"

	"github.com/ozanardine/phanteon-rewards/internal/app"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep over stuck rewards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.RunReconcile()
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newHealthCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe system health once and store the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := app.RunHealthCheck()
			if err != nil {
				return err
			}
			if err := printJSON(cmd, snapshot); err != nil {
				return err
			}
			if strict && snapshot.Status != system.HealthHealthy {
				return fmt.Errorf("system is %s", snapshot.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero unless the system is healthy")

	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
