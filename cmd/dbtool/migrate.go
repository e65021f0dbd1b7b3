package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/soulart-temple/backend/internal/migrations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			log := newLogger()
			log.Infof("Applying migrations...")
			if err := migrations.Up(db, log); err != nil {
				return err
			}
			log.Infof("Migrations applied successfully")
			return nil
		},
	}
}

func newFixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fix",
		Short: "Clear the dirty flag left by a failed migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			log := newLogger()
			log.Infof("Attempting to fix dirty database...")
			if err := migrations.FixDirtyDatabase(db); err != nil {
				return fmt.Errorf("fix dirty database: %w", err)
			}
			log.Infof("Database fixed successfully")
			return nil
		},
	}
}

func newForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version number: %s", args[0])
			}

			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			log := newLogger()
			log.Infof("Forcing database version to %d...", v)
			if err := migrations.ForceVersion(db, uint(v)); err != nil {
				return err
			}
			log.Infof("Database version forced to %d", v)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			v, dirty, err := migrations.Status(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d (dirty=%t)\n", v, dirty)
			return nil
		},
	}
}
