// Package schedule triggers reconciliation runs by each account's sync frequency.
package schedule

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"catalog-sync/internal/reconcile/model"
)

// Runner is what the scheduler drives; syncer.Service implements it.
type Runner interface {
	Accounts(ctx context.Context) ([]string, error)
	Config(ctx context.Context, accountID string) (model.SyncConfig, error)
	RunReconciliation(ctx context.Context, accountID string) model.SyncOutcome
}

// refreshSpec: how often registrations are re-read from account configs.
const refreshSpec = "@every 5m"

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type entry struct {
	id   cron.EntryID
	spec string
}

// Scheduler keeps one cron entry per enabled account. Entries skip a tick
// while the previous run of the same account is still going.
type Scheduler struct {
	runner Runner
	cron   *cron.Cron
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]entry
}

func New(runner Runner, logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	return &Scheduler{
		runner: runner,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]entry),
	}
}

// Start registers accounts and starts the cron loop.
func (s *Scheduler) Start() error {
	if err := s.Reload(s.ctx); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(refreshSpec, func() {
		if err := s.Reload(s.ctx); err != nil {
			s.logger.Error().Err(err).Msg("schedule refresh")
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out")
	}
}

// Reload brings the cron entries in line with the stored configs: disabled or
// missing configs drop their entry, a changed frequency re-registers it.
func (s *Scheduler) Reload(ctx context.Context) error {
	accounts, err := s.runner.Accounts(ctx)
	if err != nil {
		return err
	}
	want := make(map[string]string, len(accounts))
	for _, acct := range accounts {
		cfg, err := s.runner.Config(ctx, acct)
		if err != nil || !cfg.Enabled {
			continue
		}
		if spec := cfg.Frequency.CronSpec(); spec != "" {
			want[acct] = spec
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for acct, e := range s.entries {
		if want[acct] != e.spec {
			s.cron.Remove(e.id)
			delete(s.entries, acct)
			s.logger.Info().Str("account_id", acct).Msg("schedule removed")
		}
	}
	for acct, spec := range want {
		if _, ok := s.entries[acct]; ok {
			continue
		}
		id, err := s.cron.AddJob(spec, cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger})).Then(s.job(acct)))
		if err != nil {
			s.logger.Error().Err(err).Str("account_id", acct).Str("spec", spec).Msg("schedule add")
			continue
		}
		s.entries[acct] = entry{id: id, spec: spec}
		s.logger.Info().Str("account_id", acct).Str("spec", spec).Msg("schedule added")
	}
	return nil
}

// Scheduled returns the account ids with an active entry.
func (s *Scheduler) Scheduled() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.entries))
	for acct, e := range s.entries {
		out[acct] = e.spec
	}
	return out
}

func (s *Scheduler) job(accountID string) cron.Job {
	return cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		s.runner.RunReconciliation(s.ctx, accountID)
	})
}

// cronLogger routes robfig/cron's logr-style calls into zerolog.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug().Fields(kv).Str("component", "cron").Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error().Err(err).Fields(kv).Str("component", "cron").Msg(msg)
}
