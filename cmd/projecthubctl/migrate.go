package main

import (
	"fmt"

	"github.com/geocoder89/projecthub/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := db.RunMigrations(cfg.DBURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied migration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		version, dirty, err := db.MigrationVersion(cfg.DBURL)
		if err != nil {
			return err
		}
		out := fmt.Sprintf("schema at version %d", version)
		if dirty {
			out += " (dirty)"
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateVersionCmd)
}
