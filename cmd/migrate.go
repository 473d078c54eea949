package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/agency-crm/internal/db"
	"github.com/sells-group/agency-crm/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		pool, err := db.Connect(cmd.Context(), cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		return migrate.Run(cmd.Context(), pool)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
