// Package server exposes the contact core over HTTP. Routes under /api/v1
// are tenant-scoped: the authz middleware resolves the caller's agency and
// handlers only ever query with that agency id.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/agency-crm/internal/authz"
	"github.com/sells-group/agency-crm/internal/contact"
	"github.com/sells-group/agency-crm/internal/importer"
	"github.com/sells-group/agency-crm/internal/query"
	"github.com/sells-group/agency-crm/internal/reconcile"
	"github.com/sells-group/agency-crm/internal/records"
)

// Resolver resolves raw person fields to a canonical contact id.
type Resolver interface {
	Resolve(ctx context.Context, in contact.Input) (uuid.UUID, error)
}

// Lister runs paginated contact list queries.
type Lister interface {
	List(ctx context.Context, agencyID uuid.UUID, opts query.Options) (*query.Page, error)
}

// ContactGetter loads a single contact.
type ContactGetter interface {
	GetByID(ctx context.Context, agencyID, id uuid.UUID) (*contact.Contact, error)
}

// Snapshotter computes the module predicates for a contact.
type Snapshotter interface {
	Snapshot(ctx context.Context, agencyID, contactID uuid.UUID) (records.Snapshot, error)
}

// Reconciler runs the repair jobs.
type Reconciler interface {
	Run(ctx context.Context) (reconcile.Summary, error)
}

// ImportRunner ingests one upload.
type ImportRunner interface {
	Run(ctx context.Context, req importer.Request, r io.Reader) (importer.Summary, error)
}

// Server wires the core services into an HTTP handler.
type Server struct {
	resolver   Resolver
	lister     Lister
	contacts   ContactGetter
	snapshots  Snapshotter
	reconciler Reconciler
	imports    ImportRunner
	checker    authz.Checker
	log        *zap.Logger
}

// New creates a Server.
func New(
	resolver Resolver,
	lister Lister,
	contacts ContactGetter,
	snapshots Snapshotter,
	reconciler Reconciler,
	imports ImportRunner,
	checker authz.Checker,
) *Server {
	return &Server{
		resolver:   resolver,
		lister:     lister,
		contacts:   contacts,
		snapshots:  snapshots,
		reconciler: reconciler,
		imports:    imports,
		checker:    checker,
		log:        zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the chi handler. corsOrigins is the allowed-origin list for
// browser clients; nil disables CORS headers entirely.
func (s *Server) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-User-ID", "X-Agency-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authz.RequireAgency(s.checker))
		r.Post("/resolve", s.handleResolve)
		r.Get("/contacts", s.handleListContacts)
		r.Get("/contacts/{contactID}", s.handleGetContact)
		r.Post("/reconcile", s.handleReconcile)
		r.Post("/imports", s.handleImport)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
