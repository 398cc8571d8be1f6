package syncer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/reconcile/model"
	"catalog-sync/internal/reconcile/service"
	"catalog-sync/internal/store"
)

// Service is the entry point used by the HTTP layer and the scheduler.
// At most one reconciliation per account is in flight; a caller that arrives
// while a run is going gets that run's outcome instead of starting another.
type Service struct {
	catalogue store.Catalogue
	audit     store.AuditSink
	orch      *Orchestrator
	deduper   *service.Deduper
	flights   singleflight.Group
	logger    zerolog.Logger
}

func NewService(c store.Catalogue, a store.AuditSink, orch *Orchestrator, dedupe service.Options, logger zerolog.Logger) *Service {
	return &Service{
		catalogue: c,
		audit:     a,
		orch:      orch,
		deduper:   service.NewDeduper(c, dedupe, logger),
		logger:    logger,
	}
}

// RunReconciliation loads the account's config and runs it. A missing config
// is a config error of that run, reported in the outcome like any other.
// Cancelling ctx of the caller that started the run aborts it between items.
func (s *Service) RunReconciliation(ctx context.Context, accountID string) model.SyncOutcome {
	v, _, shared := s.flights.Do(accountID, func() (any, error) {
		cfg, err := s.catalogue.GetConfig(ctx, accountID)
		switch {
		case errs.IsNotFound(err):
			return s.orch.Reject(ctx, accountID, errs.NewConfigError("config", "no sync config for account", errs.ErrInvalidConfig)), nil
		case err != nil:
			return s.orch.Reject(ctx, accountID, errs.NewPersistenceError("get config", accountID, err)), nil
		}
		return s.orch.Run(ctx, accountID, cfg), nil
	})
	if shared {
		s.logger.Debug().Str("account_id", accountID).Msg("joined running reconciliation")
	}
	return v.(model.SyncOutcome)
}

// Deduplicate merges the duplicates in batch and stores the canonical records.
// threshold <= 0 uses the configured default.
func (s *Service) Deduplicate(ctx context.Context, accountID string, batch []model.ProductRecord, threshold float64) (model.DedupeReport, error) {
	return s.deduper.Run(ctx, accountID, batch, threshold)
}

func (s *Service) Config(ctx context.Context, accountID string) (model.SyncConfig, error) {
	return s.catalogue.GetConfig(ctx, accountID)
}

func (s *Service) SetConfig(ctx context.Context, accountID string, cfg model.SyncConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.catalogue.PutConfig(ctx, accountID, cfg)
}

func (s *Service) Outcomes(ctx context.Context, accountID string, limit int) ([]model.SyncOutcome, error) {
	return s.audit.Outcomes(ctx, accountID, limit)
}

func (s *Service) PriceAdjustments(ctx context.Context, accountID string, limit int) ([]model.PriceAdjustment, error) {
	return s.audit.PriceAdjustments(ctx, accountID, limit)
}

// Accounts lists accounts known to the catalogue; the scheduler uses it.
func (s *Service) Accounts(ctx context.Context) ([]string, error) {
	return s.catalogue.Accounts(ctx)
}

func (s *Service) Suppliers(ctx context.Context, accountID string) ([]model.SupplierIntegration, error) {
	return s.catalogue.Suppliers(ctx, accountID)
}

func (s *Service) PutSupplier(ctx context.Context, accountID string, si model.SupplierIntegration) error {
	if si.ID == "" || si.Type == "" {
		return errs.NewConfigError("supplier", "id and type are required", errs.ErrInvalidConfig)
	}
	return s.catalogue.PutSupplier(ctx, accountID, si)
}

func (s *Service) Channels(ctx context.Context, accountID string) ([]model.ChannelIntegration, error) {
	return s.catalogue.Channels(ctx, accountID)
}

// PutChannel keeps the stored watermark; it only moves through runs.
func (s *Service) PutChannel(ctx context.Context, accountID string, ch model.ChannelIntegration) error {
	if ch.ID == "" || ch.Type == "" {
		return errs.NewConfigError("channel", "id and type are required", errs.ErrInvalidConfig)
	}
	existing, err := s.catalogue.Channels(ctx, accountID)
	if err != nil {
		return err
	}
	ch.LastSyncAt = time.Time{}
	for _, c := range existing {
		if c.ID == ch.ID {
			ch.LastSyncAt = c.LastSyncAt
		}
	}
	return s.catalogue.PutChannel(ctx, accountID, ch)
}
