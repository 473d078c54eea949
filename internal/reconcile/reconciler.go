package reconcile

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/agency-crm/internal/db"
	"github.com/sells-group/agency-crm/internal/records"
	"github.com/sells-group/agency-crm/internal/resilience"
)

// Config tunes the reconciliation batch jobs.
type Config struct {
	// FallbackLink enables the name-only linking pass. It carries real
	// false-merge risk on large agencies with common surnames; agencies
	// that prefer precision over coverage turn it off.
	FallbackLink bool `yaml:"fallback_link" mapstructure:"fallback_link"`
	// MergesPerSecond throttles household merges so a large backlog does
	// not saturate the database. Zero means unthrottled.
	MergesPerSecond float64 `yaml:"merges_per_second" mapstructure:"merges_per_second"`
	// LinkConcurrency bounds how many module tables are backfilled at once.
	LinkConcurrency int `yaml:"link_concurrency" mapstructure:"link_concurrency"`
}

// Summary reports what a reconciliation run changed.
type Summary struct {
	Linked         int64 `json:"linked"`
	FallbackLinked int64 `json:"fallback_linked"`
	MergesApplied  int   `json:"merges_applied"`
	MergesFailed   int   `json:"merges_failed"`
	Rekeyed        int64 `json:"rekeyed"`
}

// Reconciler runs the idempotent repair jobs: link backfill, household
// merge, key renormalization. Jobs commit record-by-record rather than in
// one transaction; a long backfill must not hold one giant lock, and every
// job is safe to re-run after partial progress.
type Reconciler struct {
	pool    db.Pool
	merger  *Merger
	cfg     Config
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a Reconciler.
func New(pool db.Pool, cfg Config) *Reconciler {
	limit := rate.Inf
	if cfg.MergesPerSecond > 0 {
		limit = rate.Limit(cfg.MergesPerSecond)
	}
	return &Reconciler{
		pool:    pool,
		merger:  NewMerger(pool),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		log:     zap.L().With(zap.String("component", "reconciler")),
	}
}

// Run executes all passes in dependency order: link first (so merges see
// every reference), then merge duplicates, then renormalize keys. Returns
// the summary even when individual records failed.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	linked, fallback := r.linkBackfill(ctx)
	sum.Linked = linked
	sum.FallbackLinked = fallback

	applied, failed := r.mergeDuplicates(ctx)
	sum.MergesApplied = applied
	sum.MergesFailed = failed

	sum.Rekeyed = r.renormalizeKeys(ctx)
	return sum, ctx.Err()
}

// linkBackfill runs the exact pass and, when enabled, the name-only fallback
// pass over every module table. Tables are independent, so they run
// concurrently; a failing table is logged and skipped, never fatal.
func (r *Reconciler) linkBackfill(ctx context.Context) (linked, fallback int64) {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	concurrency := r.cfg.LinkConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	g.SetLimit(concurrency)

	for _, t := range records.ModuleTables {
		g.Go(func() error {
			tag, err := r.pool.Exec(gctx, ExactLinkSQL(t))
			if err != nil {
				r.log.Error("exact link pass failed",
					zap.String("table", t.Name),
					zap.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			linked += tag.RowsAffected()
			mu.Unlock()

			if !r.cfg.FallbackLink {
				return nil
			}
			tag, err = r.pool.Exec(gctx, FallbackLinkSQL(t))
			if err != nil {
				r.log.Error("fallback link pass failed",
					zap.String("table", t.Name),
					zap.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			fallback += tag.RowsAffected()
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.log.Info("link backfill complete",
		zap.Int64("linked", linked),
		zap.Int64("fallback_linked", fallback),
	)
	return linked, fallback
}

// mergeDuplicates merges each placeholder-zip duplicate independently. Two
// merges repointing foreign keys in the same tables can deadlock, so each
// pair retries on transient failures. One failed merge is logged with
// enough context to replay and the batch continues.
func (r *Reconciler) mergeDuplicates(ctx context.Context) (applied, failed int) {
	pairs, err := r.merger.FindPlaceholderPairs(ctx)
	if err != nil {
		r.log.Error("merge scan failed", zap.String("error", err.Error()))
		return 0, 0
	}

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("reconciler", "merge")

	for _, p := range pairs {
		if err := r.limiter.Wait(ctx); err != nil {
			r.log.Warn("merge batch interrupted", zap.Int("remaining", len(pairs)-applied-failed))
			break
		}
		err := resilience.Do(ctx, retry, func(ctx context.Context) error {
			return r.merger.Merge(ctx, p)
		})
		if err != nil {
			failed++
			r.log.Error("household merge failed",
				zap.String("agency_id", p.AgencyID.String()),
				zap.String("source_id", p.SourceID.String()),
				zap.String("target_id", p.TargetID.String()),
				zap.String("error", err.Error()),
			)
			continue
		}
		applied++
	}

	r.log.Info("duplicate merge complete", zap.Int("applied", applied), zap.Int("failed", failed))
	return applied, failed
}

// renormalizeKeys recomputes household keys left stale by merges or late zip
// edits. Collision-bound rows are skipped inside the SQL itself.
func (r *Reconciler) renormalizeKeys(ctx context.Context) int64 {
	tag, err := r.pool.Exec(ctx, RenormalizeKeysSQL())
	if err != nil {
		r.log.Error("key renormalization failed", zap.String("error", err.Error()))
		return 0
	}
	n := tag.RowsAffected()
	if n > 0 {
		r.log.Info("household keys renormalized", zap.Int64("rekeyed", n))
	}
	return n
}
