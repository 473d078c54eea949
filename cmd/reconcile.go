package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/agency-crm/internal/db"
	"github.com/sells-group/agency-crm/internal/reconcile"
)

var reconcileNoFallback bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the link backfill, duplicate merge, and key repair jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("reconcile"); err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		rcfg := cfg.Reconcile
		if reconcileNoFallback {
			rcfg.FallbackLink = false
		}

		sum, err := reconcile.New(pool, rcfg).Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("linked:          %d\n", sum.Linked)
		fmt.Printf("fallback linked: %d\n", sum.FallbackLinked)
		fmt.Printf("merges applied:  %d\n", sum.MergesApplied)
		fmt.Printf("merges failed:   %d\n", sum.MergesFailed)
		fmt.Printf("keys repaired:   %d\n", sum.Rekeyed)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileNoFallback, "no-fallback", false,
		"skip the name-only linking pass")
	rootCmd.AddCommand(reconcileCmd)
}
