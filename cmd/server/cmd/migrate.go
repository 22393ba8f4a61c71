package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tonight-api/internal/config"
	"tonight-api/internal/store"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
	Long: `Migrations are embedded in the binary. Only DATABASE_URL is needed.

Examples:
  server migrate up
  server migrate down --steps 1`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := config.LoadDatabase(envFiles()...)
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		if err := store.MigrateUp(db.URL); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last --steps migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := config.LoadDatabase(envFiles()...)
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		if err := store.MigrateDown(db.URL, migrateSteps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", migrateSteps)
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
