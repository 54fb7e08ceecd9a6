package closedloop

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
	"github.com/andresuchdata/autopo-servicelevel/internal/repository"
	"github.com/andresuchdata/autopo-servicelevel/internal/servicelevel"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultAuditUser is recorded on audit entries written by the engine.
const DefaultAuditUser = "closed_loop"

// Engine reviews every SKU's target CSL against its outcome KPIs.
type Engine struct {
	store       repository.Store
	concurrency int
	auditUser   string
	now         func() time.Time
	newRunID    func() string
}

// RunError is a store failure after the run's guardrails were read. It
// carries the action mode the run was using.
type RunError struct {
	ActionMode ActionMode
	Err        error
}

func (e *RunError) Error() string { return e.Err.Error() }

func (e *RunError) Unwrap() error { return e.Err }

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency processes up to n SKUs at once. Values below 1 mean sequential.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithAuditUser sets the user recorded on audit entries.
func WithAuditUser(user string) Option {
	return func(e *Engine) {
		if user != "" {
			e.auditUser = user
		}
	}
}

// WithClock overrides the wall clock used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine over store.
func NewEngine(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		concurrency: 1,
		auditUser:   DefaultAuditUser,
		now:         time.Now,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunClosedLoop runs a sequential review with default options.
func RunClosedLoop(ctx context.Context, store repository.Store, asOf time.Time) (*Report, error) {
	return NewEngine(store).Run(ctx, asOf)
}

// Run reviews every SKU as of asOf. When the loop is disabled it returns an
// empty report after reading settings only. Store errors abort the run.
func (e *Engine) Run(ctx context.Context, asOf time.Time) (*Report, error) {
	settings, err := e.store.ReadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	guardrails := ParseGuardrails(settings)
	report := newReport(e.newRunID(), asOf, e.now(), guardrails)

	if !guardrails.Enabled {
		log.Debug().Str("as_of", report.AsOf.Format("2006-01-02")).Msg("closed loop: disabled, skipping review")
		return report, nil
	}
	fail := func(err error) error {
		return &RunError{ActionMode: guardrails.ActionMode, Err: err}
	}

	skus, err := e.store.ReadSKUs(ctx)
	if err != nil {
		return nil, fail(fmt.Errorf("read skus: %w", err))
	}
	kpiRows, err := e.store.ReadKPIDaily(ctx)
	if err != nil {
		return nil, fail(fmt.Errorf("read kpi daily: %w", err))
	}
	sales, err := e.store.ReadSales(ctx)
	if err != nil {
		return nil, fail(fmt.Errorf("read sales: %w", err))
	}
	events, err := e.store.ReadTransactions(ctx)
	if err != nil {
		return nil, fail(fmt.Errorf("read transactions: %w", err))
	}

	run := &review{
		engine:     e,
		guardrails: guardrails,
		resolver:   servicelevel.NewResolver(settings),
		kpis:       LatestKPI(kpiRows, asOf),
		waste:      WasteWindow(sales, events, asOf, WasteWindowDays),
		runID:      report.RunID,
		asOf:       report.AsOf,
	}

	decisions := make([]Decision, len(skus))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, sku := range skus {
		i, skuID := i, sku.SKU
		g.Go(func() error {
			d, err := run.reviewSKU(gctx, skuID)
			if err != nil {
				return fmt.Errorf("review sku %s: %w", skuID, err)
			}
			decisions[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fail(err)
	}

	report.Decisions = decisions
	report.summarize(int(run.applied.Load()))

	log.Info().
		Str("run_id", report.RunID).
		Str("as_of", report.AsOf.Format("2006-01-02")).
		Str("action_mode", string(guardrails.ActionMode)).
		Int("processed", report.Summary.SKUsProcessed).
		Int("changed", report.Summary.SKUsChanged).
		Int("blocked", report.Summary.SKUsBlocked).
		Int("applied", report.Summary.SKUsApplied).
		Msg("closed loop: review completed")

	return report, nil
}

// review holds the read-only inputs shared by all SKUs of one run.
type review struct {
	engine     *Engine
	guardrails Guardrails
	resolver   *servicelevel.Resolver
	kpis       map[string]domain.KPIDaily
	waste      map[string]WasteStats
	runID      string
	asOf       time.Time
	applied    atomic.Int64
}

// reviewSKU evaluates and persists one SKU while holding its lock, so the
// current CSL cannot change between evaluation and write.
func (r *review) reviewSKU(ctx context.Context, skuID string) (Decision, error) {
	var decision Decision
	err := r.engine.store.WithSKU(ctx, skuID, func(tx repository.SKUTx) error {
		sku := tx.SKU()
		decision = Evaluate(r.inputs(sku), r.guardrails)
		return r.persist(ctx, tx, decision)
	})
	return decision, err
}

func (r *review) inputs(sku domain.SKU) Inputs {
	in := Inputs{
		SKU:        sku.SKU,
		CurrentCSL: r.resolver.TargetCSL(&sku),
		Perishable: IsPerishable(sku),
	}
	if kpi, ok := r.kpis[sku.SKU]; ok {
		in.OOSRate = kpi.OOSRate
		in.WMAPE = kpi.WMAPE
	}
	if w, ok := r.waste[sku.SKU]; ok {
		in.WasteRate = w.Rate()
		in.WasteEventCount = w.Events
	}
	return in
}

// persist writes the side effects of a changing decision: the SKU update in
// apply mode and exactly one audit entry in either mode.
func (r *review) persist(ctx context.Context, tx repository.SKUTx, d Decision) error {
	if !d.Action.Changes() {
		return nil
	}

	entry, err := buildAuditEntry(d, r.guardrails, r.runID, r.engine.auditUser, r.asOf, r.engine.now())
	if err != nil {
		return err
	}

	if r.guardrails.ActionMode == ModeApply {
		csl := d.SuggestedCSL
		if err := tx.UpdateSKU(ctx, d.SKU, domain.SKUUpdate{TargetCSL: &csl}); err != nil {
			return fmt.Errorf("update target csl: %w", err)
		}
	}
	if err := tx.LogAudit(ctx, entry); err != nil {
		return fmt.Errorf("log audit: %w", err)
	}
	if r.guardrails.ActionMode == ModeApply {
		r.applied.Add(1)
	}

	log.Info().
		Str("sku", d.SKU).
		Str("action", string(d.Action)).
		Str("mode", string(r.guardrails.ActionMode)).
		Float64("before", d.CurrentCSL).
		Float64("after", d.SuggestedCSL).
		Str("reason_code", string(d.ReasonCode)).
		Msg("closed loop: decision recorded")
	return nil
}
