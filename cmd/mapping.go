package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/agency-crm/internal/db"
	"github.com/sells-group/agency-crm/internal/fieldmap"
)

var mappingAgency string

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage field mapping templates",
}

var mappingLoadCmd = &cobra.Command{
	Use:   "load <file.yaml>",
	Short: "Load a field mapping template from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		agencyID, err := uuid.Parse(mappingAgency)
		if err != nil {
			return eris.Wrap(err, "mapping: --agency must be a UUID")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "mapping: read %s", args[0])
		}
		seed, err := fieldmap.ParseSeed(data)
		if err != nil {
			return err
		}

		pool, err := db.Connect(cmd.Context(), cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := fieldmap.NewPostgresStore(pool).SaveSeed(cmd.Context(), agencyID, seed); err != nil {
			return err
		}
		fmt.Printf("loaded template %s v%d (%d fields)\n", seed.Template, seed.Version, len(seed.Fields))
		return nil
	},
}

func init() {
	mappingLoadCmd.Flags().StringVar(&mappingAgency, "agency", "", "agency UUID owning the template (required)")
	mappingLoadCmd.MarkFlagRequired("agency")
	mappingCmd.AddCommand(mappingLoadCmd)
	rootCmd.AddCommand(mappingCmd)
}
