package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agency-crm/internal/authz"
	"github.com/sells-group/agency-crm/internal/contact"
	"github.com/sells-group/agency-crm/internal/importer"
	"github.com/sells-group/agency-crm/internal/normalize"
	"github.com/sells-group/agency-crm/internal/query"
	"github.com/sells-group/agency-crm/internal/stage"
)

// resolveRequest carries the raw person fields of one resolution call.
type resolveRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Zip           string `json:"zip_code"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	StreetAddress string `json:"street_address"`
	City          string `json:"city"`
	State         string `json:"state"`
}

type resolveResponse struct {
	ContactID uuid.UUID `json:"contact_id"`
	Warnings  []string  `json:"warnings,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agencyID := authz.AgencyID(r.Context())
	id, err := s.resolver.Resolve(r.Context(), contact.Input{
		AgencyID:      agencyID,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Zip:           req.Zip,
		Phone:         req.Phone,
		Email:         req.Email,
		StreetAddress: req.StreetAddress,
		City:          req.City,
		State:         req.State,
	})
	if err != nil {
		if eris.Is(err, contact.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "last name is required")
			return
		}
		s.log.Error("resolve failed", zap.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}

	// Soft data-quality warnings: the call succeeded, but some inputs were
	// dropped during normalization and the caller may want to know.
	var warnings []string
	if strings.TrimSpace(req.Phone) != "" {
		if _, ok := normalize.Phone(req.Phone); !ok {
			warnings = append(warnings, "phone ignored: fewer than 10 digits")
		}
	}
	if strings.TrimSpace(req.Zip) != "" && normalize.Zip(req.Zip) == "" {
		warnings = append(warnings, "zip_code ignored: no 5-digit prefix")
	}

	writeJSON(w, http.StatusOK, resolveResponse{ContactID: id, Warnings: warnings})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := query.Options{
		Stage:   stage.Stage(q.Get("stage")),
		Search:  q.Get("search"),
		SortKey: query.SortKey(q.Get("sort")),
		SortDir: query.SortDir(q.Get("dir")),
		Cursor:  q.Get("cursor"),
	}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	page, err := s.lister.List(r.Context(), authz.AgencyID(r.Context()), opts)
	if err != nil {
		if eris.Is(err, query.ErrBadCursor) || eris.Is(err, query.ErrBadOptions) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("contact list failed", zap.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// contactResponse is the detail view: the stored contact plus its derived
// lifecycle stage.
type contactResponse struct {
	ID            uuid.UUID   `json:"id"`
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	HouseholdKey  string      `json:"household_key"`
	ZipCode       string      `json:"zip_code"`
	Phones        []string    `json:"phones"`
	Emails        []string    `json:"emails"`
	StreetAddress string      `json:"street_address,omitempty"`
	City          string      `json:"city,omitempty"`
	State         string      `json:"state,omitempty"`
	CurrentStage  stage.Stage `json:"current_stage"`
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	contactID, err := uuid.Parse(chi.URLParam(r, "contactID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}
	agencyID := authz.AgencyID(r.Context())

	c, err := s.contacts.GetByID(r.Context(), agencyID, contactID)
	if err != nil {
		s.log.Error("contact load failed", zap.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "contact load failed")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}

	snap, err := s.snapshots.Snapshot(r.Context(), agencyID, contactID)
	if err != nil {
		s.log.Error("stage snapshot failed", zap.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "stage lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, contactResponse{
		ID:            c.ID,
		FirstName:     c.FirstName,
		LastName:      c.LastName,
		HouseholdKey:  c.HouseholdKey,
		ZipCode:       c.ZipCode,
		Phones:        c.Phones,
		Emails:        c.Emails,
		StreetAddress: c.StreetAddress,
		City:          c.City,
		State:         c.State,
		CurrentStage:  stage.Classify(snap),
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	sum, err := s.reconciler.Run(r.Context())
	if err != nil {
		s.log.Error("reconciliation failed", zap.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	module := q.Get("module")
	if module == "" {
		writeError(w, http.StatusBadRequest, "module query parameter is required")
		return
	}

	sum, err := s.imports.Run(r.Context(), importer.Request{
		AgencyID: authz.AgencyID(r.Context()),
		Module:   module,
		Template: q.Get("template"),
		Charset:  q.Get("charset"),
	}, r.Body)
	if err != nil {
		if eris.Is(err, importer.ErrBadRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("import failed",
			zap.String("module", module),
			zap.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
