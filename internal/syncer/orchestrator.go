// Package syncer runs reconciliation for an account: pull from suppliers,
// push to channels, then apply the stock-driven pricing policy.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"catalog-sync/internal/connector"
	"catalog-sync/internal/errs"
	"catalog-sync/internal/pricing"
	"catalog-sync/internal/reconcile/model"
	"catalog-sync/internal/store"
)

const (
	defaultSourceWorkers    = 4
	defaultConnectorTimeout = 15 * time.Second
	defaultPullPageSize     = 500
)

// Options bound the work of one run.
type Options struct {
	SourceWorkers    int           // suppliers/channels processed concurrently
	ConnectorTimeout time.Duration // per connector call
	PullPageSize     int           // max products pulled per supplier per run
}

func (o Options) withDefaults() Options {
	if o.SourceWorkers <= 0 {
		o.SourceWorkers = defaultSourceWorkers
	}
	if o.ConnectorTimeout <= 0 {
		o.ConnectorTimeout = defaultConnectorTimeout
	}
	if o.PullPageSize <= 0 {
		o.PullPageSize = defaultPullPageSize
	}
	return o
}

// Orchestrator executes single runs. It holds no per-run state, so one
// instance serves every account; serialization per account is the caller's job
// (see Service).
type Orchestrator struct {
	catalogue store.Catalogue
	audit     store.AuditSink
	registry  *connector.Registry
	opt       Options
	logger    zerolog.Logger
	now       func() time.Time
}

func NewOrchestrator(c store.Catalogue, a store.AuditSink, r *connector.Registry, opt Options, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		catalogue: c,
		audit:     a,
		registry:  r,
		opt:       opt.withDefaults(),
		logger:    logger,
		now:       time.Now,
	}
}

// sourceResult is what one supplier or channel worker reports back.
// Errors stay per source so the outcome lists them in source order.
type sourceResult struct {
	synced  int
	errs    []string
	touched []string // product ids updated by a pull
}

func (r *sourceResult) fail(err error) { r.errs = append(r.errs, err.Error()) }

// Run executes the three phases and always returns an outcome, which is also
// appended to the audit sink. Only an invalid config stops a run before the
// first phase; cancellation stops it between phases and items.
func (o *Orchestrator) Run(ctx context.Context, accountID string, cfg model.SyncConfig) model.SyncOutcome {
	return o.run(ctx, accountID, cfg, checkConfig(cfg))
}

// Reject records a run that could not start because the account's config
// could not be obtained.
func (o *Orchestrator) Reject(ctx context.Context, accountID string, cause error) model.SyncOutcome {
	return o.run(ctx, accountID, model.SyncConfig{}, cause)
}

func (o *Orchestrator) run(ctx context.Context, accountID string, cfg model.SyncConfig, cfgErr error) model.SyncOutcome {
	start := o.now()
	out := model.SyncOutcome{
		ID:        uuid.NewString(),
		AccountID: accountID,
		StartedAt: start,
		Errors:    []string{},
	}
	log := o.logger.With().Str("account_id", accountID).Str("run_id", out.ID).Logger()
	ctx = log.WithContext(ctx)

	log.Info().Str("frequency", string(cfg.Frequency)).Msg("reconciliation started")

	if cfgErr != nil {
		log.Warn().Err(cfgErr).Msg("config rejected")
		out.Errors = append(out.Errors, cfgErr.Error())
		return o.finish(ctx, out, start)
	}

	touched, err := o.runPhases(ctx, accountID, cfg, &out)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("run aborted: %v", err))
	}
	log.Debug().Int("touched", len(touched)).Msg("phases complete")
	return o.finish(ctx, out, start)
}

func checkConfig(cfg model.SyncConfig) error {
	if !cfg.Enabled {
		return errs.NewConfigError("enabled", "sync is disabled for this account", errs.ErrSyncDisabled)
	}
	return cfg.Validate()
}

func (o *Orchestrator) runPhases(ctx context.Context, accountID string, cfg model.SyncConfig, out *model.SyncOutcome) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	touched := collect(out, o.pull(ctx, accountID, cfg, out.StartedAt))

	if err := ctx.Err(); err != nil {
		return touched, err
	}
	collect(out, o.push(ctx, accountID, out.StartedAt))

	if !cfg.AutoAdjustPrices {
		return touched, nil
	}
	if err := ctx.Err(); err != nil {
		return touched, err
	}
	o.reprice(ctx, accountID, cfg, touched, out)
	return touched, ctx.Err()
}

// collect folds per-source results into the outcome in source order.
func collect(out *model.SyncOutcome, results []sourceResult) []string {
	var touched []string
	for _, r := range results {
		out.ItemsSynced += r.synced
		out.Errors = append(out.Errors, r.errs...)
		touched = append(touched, r.touched...)
	}
	return touched
}

func (o *Orchestrator) finish(ctx context.Context, out model.SyncOutcome, start time.Time) model.SyncOutcome {
	out.Success = len(out.Errors) == 0
	out.DurationMs = o.now().Sub(start).Milliseconds()

	log := zerolog.Ctx(ctx)
	// аудит пишем даже после отмены: исход рана не должен потеряться
	if err := o.audit.AppendOutcome(context.WithoutCancel(ctx), out); err != nil {
		log.Error().Err(err).Msg("append outcome")
	}
	ev := log.Info()
	if !out.Success {
		ev = log.Warn()
	}
	ev.Bool("success", out.Success).
		Int("items_synced", out.ItemsSynced).
		Int("errors", len(out.Errors)).
		Int64("duration_ms", out.DurationMs).
		Msg("reconciliation finished")
	return out
}

// forEachSource runs fn for n sources on a bounded pool and returns the
// results indexed like the sources.
func (o *Orchestrator) forEachSource(ctx context.Context, n int, fn func(ctx context.Context, i int) sourceResult) []sourceResult {
	results := make([]sourceResult, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opt.SourceWorkers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			results[i] = fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait() // workers never fail the group; errors live in results
	return results
}

// pull is phase 1.
func (o *Orchestrator) pull(ctx context.Context, accountID string, cfg model.SyncConfig, runStart time.Time) []sourceResult {
	suppliers, err := o.catalogue.Suppliers(ctx, accountID)
	if err != nil {
		return []sourceResult{{errs: []string{errs.NewPersistenceError("list suppliers", accountID, err).Error()}}}
	}
	suppliers = activeSuppliers(suppliers)
	staleBefore := runStart.Add(-cfg.Frequency.Window())

	return o.forEachSource(ctx, len(suppliers), func(ctx context.Context, i int) sourceResult {
		return o.pullSupplier(ctx, accountID, suppliers[i], staleBefore, runStart)
	})
}

func (o *Orchestrator) pullSupplier(ctx context.Context, accountID string, s model.SupplierIntegration, staleBefore, runStart time.Time) sourceResult {
	var res sourceResult
	log := zerolog.Ctx(ctx).With().Str("supplier_id", s.ID).Logger()

	conn, err := o.registry.Supplier(s.Type)
	if err != nil {
		log.Warn().Err(err).Msg("supplier skipped")
		res.fail(fmt.Errorf("supplier %s: %w", s.ID, err))
		return res
	}
	items, err := o.catalogue.Read(ctx, accountID, model.Filter{
		SupplierID:      s.ID,
		RefreshedBefore: staleBefore,
		Limit:           o.opt.PullPageSize,
	})
	if err != nil {
		res.fail(errs.NewPersistenceError("read", s.ID, err))
		return res
	}

	for _, p := range items {
		if ctx.Err() != nil {
			break
		}
		if err := o.pullItem(ctx, accountID, conn, s, p, runStart); err != nil {
			log.Warn().Err(err).Str("product_id", p.ID).Msg("pull failed")
			res.fail(err)
			continue
		}
		res.synced++
		res.touched = append(res.touched, p.ID)
	}
	log.Debug().Int("items", len(items)).Int("synced", res.synced).Msg("supplier pulled")
	return res
}

func (o *Orchestrator) pullItem(ctx context.Context, accountID string, conn connector.Supplier, s model.SupplierIntegration, p model.ProductRecord, runStart time.Time) error {
	ref := p.SupplierRef.ProductRef
	if ref == "" {
		ref = p.SKU
	}

	cctx, cancel := context.WithTimeout(ctx, o.opt.ConnectorTimeout)
	defer cancel()

	stock, err := conn.FetchStock(cctx, s, ref)
	if err != nil {
		return err
	}
	quote, err := conn.FetchPrice(cctx, s, ref)
	if err != nil {
		return err
	}

	f := model.Fields{Stock: &stock, RefreshedAt: &runStart}
	if !quote.Unchanged {
		f.Price = &quote.Price
	}
	if _, err := o.catalogue.Update(ctx, accountID, p.ID, f); err != nil {
		return errs.NewPersistenceError("update", p.ID, err)
	}
	return nil
}

// push is phase 2.
func (o *Orchestrator) push(ctx context.Context, accountID string, runStart time.Time) []sourceResult {
	channels, err := o.catalogue.Channels(ctx, accountID)
	if err != nil {
		return []sourceResult{{errs: []string{errs.NewPersistenceError("list channels", accountID, err).Error()}}}
	}
	channels = activeChannels(channels)

	return o.forEachSource(ctx, len(channels), func(ctx context.Context, i int) sourceResult {
		return o.pushChannel(ctx, accountID, channels[i], runStart)
	})
}

// pushChannel moves the channel watermark only when every attempted item went
// through, so a failed item is retried by the next run.
func (o *Orchestrator) pushChannel(ctx context.Context, accountID string, ch model.ChannelIntegration, runStart time.Time) sourceResult {
	var res sourceResult
	log := zerolog.Ctx(ctx).With().Str("channel_id", ch.ID).Logger()

	conn, err := o.registry.Channel(ch.Type)
	if err != nil {
		log.Warn().Err(err).Msg("channel skipped")
		res.fail(fmt.Errorf("channel %s: %w", ch.ID, err))
		return res
	}
	items, err := o.catalogue.Read(ctx, accountID, model.Filter{UpdatedSince: ch.LastSyncAt})
	if err != nil {
		res.fail(errs.NewPersistenceError("read", ch.ID, err))
		return res
	}

	complete := true
	for _, p := range items {
		if ctx.Err() != nil {
			complete = false
			break
		}
		cctx, cancel := context.WithTimeout(ctx, o.opt.ConnectorTimeout)
		_, err := conn.Push(cctx, ch, p)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("product_id", p.ID).Msg("push failed")
			res.fail(err)
			complete = false
			continue
		}
		res.synced++
	}

	if complete {
		if err := o.catalogue.SetChannelWatermark(ctx, accountID, ch.ID, runStart); err != nil {
			res.fail(errs.NewPersistenceError("watermark", ch.ID, err))
		}
	}
	log.Debug().Int("items", len(items)).Int("pushed", res.synced).Bool("watermark", complete).Msg("channel pushed")
	return res
}

// reprice is phase 3. Each change is stored and audited before the next
// product is looked at.
func (o *Orchestrator) reprice(ctx context.Context, accountID string, cfg model.SyncConfig, touched []string, out *model.SyncOutcome) {
	log := zerolog.Ctx(ctx)
	seen := make(map[string]struct{}, len(touched))
	adjusted := 0

	for _, id := range touched {
		if ctx.Err() != nil {
			return
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		p, err := o.catalogue.Get(ctx, accountID, id)
		if err != nil {
			out.Errors = append(out.Errors, errs.NewPersistenceError("get", id, err).Error())
			continue
		}
		d := pricing.Evaluate(p, cfg)
		if !d.Changed {
			continue
		}
		if _, err := o.catalogue.Update(ctx, accountID, id, model.Fields{Price: &d.NewPrice}); err != nil {
			out.Errors = append(out.Errors, errs.NewPersistenceError("update price", id, err).Error())
			continue
		}
		adj := model.PriceAdjustment{
			ID:              uuid.NewString(),
			AccountID:       accountID,
			ProductID:       id,
			PreviousPrice:   p.Price,
			NewPrice:        d.NewPrice,
			StockAtDecision: p.Stock,
			Reason:          d.Reason,
			Timestamp:       o.now(),
		}
		if err := o.audit.AppendPriceAdjustment(context.WithoutCancel(ctx), adj); err != nil {
			out.Errors = append(out.Errors, errs.NewPersistenceError("audit price", id, err).Error())
			continue
		}
		adjusted++
		log.Info().Str("product_id", id).
			Float64("from", p.Price).Float64("to", d.NewPrice).
			Str("reason", d.Reason).Msg("price adjusted")
	}
	log.Debug().Int("adjusted", adjusted).Msg("pricing applied")
}

func activeSuppliers(in []model.SupplierIntegration) []model.SupplierIntegration {
	out := in[:0:0]
	for _, s := range in {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

func activeChannels(in []model.ChannelIntegration) []model.ChannelIntegration {
	out := in[:0:0]
	for _, c := range in {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}
