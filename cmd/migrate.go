package cmd

import (
	"context"

	dbinfra "github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	"github.com/Builder-Lawyers/site-provisioner/pkg/db"
	"github.com/spf13/cobra"
)

// Migrate groups the schema migration commands.
func Migrate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *dbinfra.Migrator) error {
				return m.Up(cmd.Context())
			})
		},
	})

	var target int64
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration, or down to --to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *dbinfra.Migrator) error {
				return m.Down(cmd.Context(), target)
			})
		},
	}
	down.Flags().Int64Var(&target, "to", 0, "Target version to roll back to")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *dbinfra.Migrator) error {
				return m.Status(cmd.Context())
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(*dbinfra.Migrator) error) error {
	pool, err := db.NewPool(ctx, db.NewConfig())
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator, err := dbinfra.NewMigrator(pool)
	if err != nil {
		return err
	}
	return fn(migrator)
}
