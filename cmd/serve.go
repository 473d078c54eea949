package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/agency-crm/internal/authz"
	"github.com/sells-group/agency-crm/internal/contact"
	"github.com/sells-group/agency-crm/internal/db"
	"github.com/sells-group/agency-crm/internal/fieldmap"
	"github.com/sells-group/agency-crm/internal/importer"
	"github.com/sells-group/agency-crm/internal/query"
	"github.com/sells-group/agency-crm/internal/reconcile"
	"github.com/sells-group/agency-crm/internal/records"
	"github.com/sells-group/agency-crm/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the contact API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		contacts := contact.NewPostgresStore(pool)
		resolver := contact.NewResolver(contacts)

		srv := server.New(
			resolver,
			query.NewLister(pool),
			contacts,
			records.NewPostgresStore(pool),
			reconcile.New(pool, cfg.Reconcile),
			importer.New(pool, resolver, fieldmap.NewPostgresStore(pool), cfg.Import),
			authz.NewPostgresChecker(pool),
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.Router(cfg.Server.CORSOrigins),
		}

		go gracefulShutdown(ctx, httpSrv)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

const shutdownTimeout = 10 * time.Second

// gracefulShutdown waits for ctx to be canceled, then drains in-flight
// requests on a fresh bounded context. The signal context is already
// canceled at that point; handing it to Shutdown would abort requests
// instead of draining them.
func gracefulShutdown(ctx context.Context, srv interface{ Shutdown(context.Context) error }) {
	<-ctx.Done()
	zap.L().Info("shutting down server")

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		zap.L().Warn("server shutdown", zap.String("error", err.Error()))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
