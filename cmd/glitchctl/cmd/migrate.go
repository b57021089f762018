package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/glitch.report/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the campaign database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRawDB(func(store *db.DB) error {
			if err := store.MigrateUp(); err != nil {
				return err
			}
			return printMigrationStatus(cmd, store)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRawDB(func(store *db.DB) error {
			if err := store.MigrateDown(); err != nil {
				return err
			}
			return printMigrationStatus(cmd, store)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied and latest schema versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRawDB(func(store *db.DB) error {
			return printMigrationStatus(cmd, store)
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

// withRawDB opens the database without migrating it.
func withRawDB(fn func(*db.DB) error) error {
	store, err := db.OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func printMigrationStatus(cmd *cobra.Command, store *db.DB) error {
	st, err := store.GetMigrationStatus()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "schema version %d of %d", st.Current, st.Latest)
	switch {
	case st.Dirty:
		fmt.Fprint(out, " (dirty)")
	case st.Pending():
		fmt.Fprint(out, " (pending)")
	}
	fmt.Fprintln(out)
	return nil
}
