package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/reconcile/model"
)

// Options of a deduplication pass.
type Options struct {
	Threshold float64 // 0 → DefaultThreshold
	Workers   int     // parallel pair scoring inside one row; <= 1 is sequential
}

// Deduplicate groups the batch and merges every match. A record that claimed
// several others absorbs them one after another, in match order. Canonical
// records come back in input order of their primaries' first appearance.
func Deduplicate(records []model.ProductRecord, opt Options) model.DedupeReport {
	rep, _ := deduplicate(records, opt)
	return rep
}

// deduplicate also reports which canonical records came out of a merge.
func deduplicate(records []model.ProductRecord, opt Options) (model.DedupeReport, []bool) {
	if opt.Threshold <= 0 {
		opt.Threshold = DefaultThreshold
	}
	pairs, uniq := groupPairs(records, opt.Threshold, opt.Workers)

	rep := model.DedupeReport{
		Matches:   make([]model.SimilarityResult, 0, len(pairs)),
		Canonical: make([]model.ProductRecord, 0, len(uniq)+len(pairs)),
		Removed:   []string{},
	}

	merged := make(map[int]model.ProductRecord)
	members := make(map[int][]string)
	for _, p := range pairs {
		rep.Matches = append(rep.Matches, p.res)
		acc, ok := merged[p.i]
		if !ok {
			acc = records[p.i]
			members[p.i] = []string{records[p.i].ID}
		}
		merged[p.i] = Merge(acc, records[p.j])
		members[p.i] = append(members[p.i], records[p.j].ID)
	}

	fromMerge := make([]bool, 0, cap(rep.Canonical))
	isUnique := make(map[int]bool, len(uniq))
	for _, i := range uniq {
		isUnique[i] = true
	}

	for i := range records {
		if isUnique[i] {
			rep.Canonical = append(rep.Canonical, records[i])
			fromMerge = append(fromMerge, false)
			continue
		}
		m, ok := merged[i]
		if !ok {
			continue // поглощена другой записью
		}
		rep.Canonical = append(rep.Canonical, m)
		fromMerge = append(fromMerge, true)
		for _, id := range members[i] {
			if id != m.ID && id != "" {
				rep.Removed = append(rep.Removed, id)
			}
		}
	}
	return rep, fromMerge
}

// CatalogueWriter is the part of the catalogue store a dedupe run writes to.
type CatalogueWriter interface {
	Put(ctx context.Context, accountID string, p model.ProductRecord) error
	Delete(ctx context.Context, accountID, id string) error
}

// Deduper runs deduplication for an account and persists the canonical catalogue.
type Deduper struct {
	store  CatalogueWriter
	opt    Options
	logger zerolog.Logger
}

func NewDeduper(store CatalogueWriter, opt Options, logger zerolog.Logger) *Deduper {
	return &Deduper{store: store, opt: opt, logger: logger}
}

// Run deduplicates batch and writes the result. The report is returned even
// when some writes fail; the error then joins every persistence failure.
func (d *Deduper) Run(ctx context.Context, accountID string, batch []model.ProductRecord, threshold float64) (model.DedupeReport, error) {
	start := time.Now()
	log := d.logger.With().Str("account_id", accountID).Logger()

	for _, r := range batch {
		for _, e := range CheckRecord(r) {
			log.Debug().Err(e).Msg("record scored with fallback")
		}
	}

	opt := d.opt
	if threshold > 0 {
		opt.Threshold = threshold
	}
	rep, fromMerge := deduplicate(batch, opt)

	var failures []error
	for i, p := range rep.Canonical {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		// a merged record is new local state and must pass every channel watermark
		if fromMerge[i] || p.UpdatedAt.IsZero() {
			p.UpdatedAt = start
			rep.Canonical[i].UpdatedAt = start
		}
		if err := d.store.Put(ctx, accountID, p); err != nil {
			failures = append(failures, errs.NewPersistenceError("put", p.ID, err))
		}
	}
	for _, id := range rep.Removed {
		if err := d.store.Delete(ctx, accountID, id); err != nil && !errs.IsNotFound(err) {
			failures = append(failures, errs.NewPersistenceError("delete", id, err))
		}
	}

	log.Info().
		Int("batch", len(batch)).
		Int("matches", len(rep.Matches)).
		Int("canonical", len(rep.Canonical)).
		Int("write_errors", len(failures)).
		Dur("elapsed", time.Since(start)).
		Msg("dedupe done")

	return rep, errors.Join(failures...)
}
