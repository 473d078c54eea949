// Package importer ingests module spreadsheets: it decodes the upload,
// translates vendor headers through the field-mapping dictionary, resolves
// each row to a canonical contact, and bulk-stages the module records.
package importer

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/sells-group/agency-crm/internal/contact"
	"github.com/sells-group/agency-crm/internal/db"
	"github.com/sells-group/agency-crm/internal/fieldmap"
	"github.com/sells-group/agency-crm/internal/records"
)

// ErrBadRequest is returned for upload requests the caller can correct
// before retrying: an unknown module or an unsupported charset.
var ErrBadRequest = eris.New("importer: bad request")

// Config controls ingestion behavior.
type Config struct {
	// DefaultTemplate is the field-mapping template used when an upload
	// does not name one.
	DefaultTemplate string `yaml:"default_template" mapstructure:"default_template"`
	// RowsPerSecond throttles per-row resolution. Zero means unthrottled.
	RowsPerSecond float64 `yaml:"rows_per_second" mapstructure:"rows_per_second"`
	// BatchSize is how many module records are staged per bulk upsert.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// Request describes one upload.
type Request struct {
	AgencyID uuid.UUID
	// Module is the short module name owning the records ("lead", "sale",
	// "renewal", "cancel_audit", "winback").
	Module string
	// Template selects the field mapping; empty means the configured default.
	Template string
	// Charset names the file encoding when it is not UTF-8 (IANA name, as
	// vendors exporting from legacy systems commonly send windows-1252).
	Charset string
}

// Summary reports what an import did.
type Summary struct {
	Rows       int `json:"rows"`
	Staged     int `json:"staged"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
	Skipped    int `json:"skipped"`
}

// Importer runs uploads end to end.
type Importer struct {
	pool     db.Pool
	resolver *contact.Resolver
	maps     fieldmap.Store
	cfg      Config
	limiter  *rate.Limiter
	log      *zap.Logger
}

// New creates an Importer.
func New(pool db.Pool, resolver *contact.Resolver, maps fieldmap.Store, cfg Config) *Importer {
	limit := rate.Inf
	if cfg.RowsPerSecond > 0 {
		limit = rate.Limit(cfg.RowsPerSecond)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Importer{
		pool:     pool,
		resolver: resolver,
		maps:     maps,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		log:      zap.L().With(zap.String("component", "importer")),
	}
}

// recordColumns is the staging column order for every module table.
var recordColumns = []string{
	"id", "agency_id", "contact_id",
	"first_name", "last_name", "zip_code", "phone", "email", "status",
}

// Run ingests one CSV upload. Malformed rows are logged and skipped; a row
// whose contact cannot be resolved is still staged with a null contact_id
// so the reconciler can link it later.
func (im *Importer) Run(ctx context.Context, req Request, r io.Reader) (Summary, error) {
	var sum Summary

	table, ok := records.TableForModule(req.Module)
	if !ok {
		return sum, eris.Wrapf(ErrBadRequest, "unknown module %q", req.Module)
	}

	if req.Charset != "" {
		enc, err := htmlindex.Get(req.Charset)
		if err != nil {
			return sum, eris.Wrapf(ErrBadRequest, "unsupported charset %q", req.Charset)
		}
		r = enc.NewDecoder().Reader(r)
	}

	template := req.Template
	if template == "" {
		template = im.cfg.DefaultTemplate
	}
	mapping, err := im.maps.Mapping(ctx, req.AgencyID, template)
	if err != nil {
		return sum, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return sum, eris.Wrap(err, "importer: read header")
	}
	mapper := fieldmap.NewMapper(header, mapping)
	if !mapper.Bound(fieldmap.FieldLastName) {
		im.log.Warn("upload has no last name column, nothing will resolve",
			zap.String("template", template),
		)
	}

	batch := make([][]any, 0, im.cfg.BatchSize)

	for {
		if err := im.limiter.Wait(ctx); err != nil {
			return sum, eris.Wrap(err, "importer: rate limit wait")
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			sum.Skipped++
			im.log.Warn("skipping malformed row", zap.String("error", err.Error()))
			continue
		}
		sum.Rows++

		staged := im.stageRow(ctx, req.AgencyID, table, mapper, row, &sum)
		batch = append(batch, staged)

		if len(batch) >= im.cfg.BatchSize {
			if err := im.flush(ctx, table, batch, &sum); err != nil {
				return sum, err
			}
			batch = batch[:0]
		}
	}

	if err := im.flush(ctx, table, batch, &sum); err != nil {
		return sum, err
	}

	im.log.Info("import finished",
		zap.String("module", req.Module),
		zap.Int("rows", sum.Rows),
		zap.Int("resolved", sum.Resolved),
		zap.Int("unresolved", sum.Unresolved),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

// stageRow resolves one row's contact and returns its staging values in
// recordColumns order. Resolution failure is not fatal: the record keeps a
// null contact_id and the reconciler's backfill picks it up later.
func (im *Importer) stageRow(ctx context.Context, agencyID uuid.UUID, table records.ModuleTable, m *fieldmap.Mapper, row []string, sum *Summary) []any {
	in := contact.Input{
		AgencyID:      agencyID,
		FirstName:     m.Value(row, fieldmap.FieldFirstName),
		LastName:      m.Value(row, fieldmap.FieldLastName),
		Zip:           m.Value(row, fieldmap.FieldZip),
		Phone:         m.Value(row, fieldmap.FieldPhone),
		Email:         m.Value(row, fieldmap.FieldEmail),
		StreetAddress: m.Value(row, fieldmap.FieldStreet),
		City:          m.Value(row, fieldmap.FieldCity),
		State:         m.Value(row, fieldmap.FieldState),
	}

	var contactID any
	id, err := im.resolver.Resolve(ctx, in)
	switch {
	case err == nil:
		contactID = id
		sum.Resolved++
	case eris.Is(err, contact.ErrInvalidInput):
		sum.Unresolved++
	default:
		sum.Unresolved++
		im.log.Warn("row resolution failed, staging unlinked",
			zap.String("error", err.Error()),
		)
	}

	status := m.Value(row, fieldmap.FieldStatus)
	if status == "" {
		status = table.DefaultStatus
	}

	return []any{
		uuid.New(), agencyID, contactID,
		in.FirstName, in.LastName, in.Zip, in.Phone, in.Email,
		status,
	}
}

func (im *Importer) flush(ctx context.Context, table records.ModuleTable, batch [][]any, sum *Summary) error {
	if len(batch) == 0 {
		return nil
	}
	cfg := db.UpsertConfig{
		Table:        table.Name,
		Columns:      recordColumns,
		ConflictKeys: []string{"id"},
	}
	// Win-back allows one row per contact per agency; a re-import of the
	// same campaign must land on the existing row, not trip the unique
	// constraint. Null contact_ids never conflict, so unlinked rows still
	// insert freely.
	if table.Name == "crm.winback_records" {
		cfg.ConflictKeys = []string{"agency_id", "contact_id"}
		cfg.UpdateCols = []string{"first_name", "last_name", "zip_code", "phone", "email", "status"}
	}

	n, err := db.BulkUpsert(ctx, im.pool, cfg, batch)
	if err != nil {
		return eris.Wrapf(err, "importer: stage batch into %s", table.Name)
	}
	sum.Staged += int(n)
	return nil
}
