package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func createMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration management",
		Long: `Apply, roll back or inspect the embedded schema migrations for the
database named by DATABASE_URL.

Examples:
  moderatorctl migrate up
  moderatorctl migrate down
  moderatorctl migrate status`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := a.db.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "✅ migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := a.db.Rollback(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "✅ rolled back one migration")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show which migrations are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				states, err := a.db.MigrationStatus(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tAPPLIED\tSOURCE")
				for _, s := range states {
					fmt.Fprintf(w, "%d\t%t\t%s\n", s.Version, s.Applied, s.Path)
				}
				return w.Flush()
			},
		},
	)
	return cmd
}
