package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/agency-crm/internal/contact"
	"github.com/sells-group/agency-crm/internal/db"
	"github.com/sells-group/agency-crm/internal/fieldmap"
	"github.com/sells-group/agency-crm/internal/importer"
)

var (
	importAgency   string
	importModule   string
	importTemplate string
	importCharset  string
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import a module spreadsheet and resolve its contacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		agencyID, err := uuid.Parse(importAgency)
		if err != nil {
			return eris.Wrap(err, "import: --agency must be a UUID")
		}

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "import: open %s", args[0])
		}
		defer f.Close()

		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		contacts := contact.NewPostgresStore(pool)
		im := importer.New(pool, contact.NewResolver(contacts), fieldmap.NewPostgresStore(pool), cfg.Import)

		sum, err := im.Run(ctx, importer.Request{
			AgencyID: agencyID,
			Module:   importModule,
			Template: importTemplate,
			Charset:  importCharset,
		}, f)
		if err != nil {
			return err
		}

		fmt.Printf("rows:       %d\n", sum.Rows)
		fmt.Printf("staged:     %d\n", sum.Staged)
		fmt.Printf("resolved:   %d\n", sum.Resolved)
		fmt.Printf("unresolved: %d\n", sum.Unresolved)
		fmt.Printf("skipped:    %d\n", sum.Skipped)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importAgency, "agency", "", "agency UUID owning the upload (required)")
	importCmd.Flags().StringVar(&importModule, "module", "lead", "module owning the records (lead, sale, renewal, cancel_audit, winback)")
	importCmd.Flags().StringVar(&importTemplate, "template", "", "field mapping template (default from config)")
	importCmd.Flags().StringVar(&importCharset, "charset", "", "file charset when not UTF-8, e.g. windows-1252")
	importCmd.MarkFlagRequired("agency")
	rootCmd.AddCommand(importCmd)
}
