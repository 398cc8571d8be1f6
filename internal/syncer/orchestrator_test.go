package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-sync/internal/connector"
	"catalog-sync/internal/errs"
	"catalog-sync/internal/pricing"
	"catalog-sync/internal/reconcile/model"
	"catalog-sync/internal/store"
)

var runStart = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type fakeSupplier struct {
	stock     int
	price     float64
	unchanged bool
	fail      map[string]bool // "<supplier>/<ref>"
	calls     atomic.Int32
	block     chan struct{}
}

func (f *fakeSupplier) FetchStock(ctx context.Context, s model.SupplierIntegration, ref string) (int, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.fail[s.ID+"/"+ref] {
		return 0, errs.NewConnectorError(s.ID, "fetchStock", ref, errs.ErrUnreachable, errors.New("timeout"))
	}
	return f.stock, nil
}

func (f *fakeSupplier) FetchPrice(_ context.Context, s model.SupplierIntegration, ref string) (connector.PriceQuote, error) {
	if f.unchanged {
		return connector.PriceQuote{Unchanged: true}, nil
	}
	return connector.PriceQuote{Price: f.price}, nil
}

type fakeChannel struct {
	mu     sync.Mutex
	pushed []string
	fail   map[string]bool // "<channel>/<product>"
}

func (f *fakeChannel) Push(_ context.Context, ch model.ChannelIntegration, p model.ProductRecord) (connector.PushResult, error) {
	if f.fail[ch.ID+"/"+p.ID] {
		return connector.PushResult{}, errs.NewConnectorError(ch.ID, "push", p.ID, errs.ErrRejected, errors.New("status 422"))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, ch.ID+"/"+p.ID)
	return connector.PushResult{RemoteID: "r-" + p.ID}, nil
}

type fixture struct {
	store    *store.Memory
	supplier *fakeSupplier
	channel  *fakeChannel
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemory(),
		supplier: &fakeSupplier{stock: 5, price: 100, fail: map[string]bool{}},
		channel:  &fakeChannel{fail: map[string]bool{}},
	}
	reg := connector.NewRegistry()
	reg.RegisterSupplier("fake", f.supplier)
	reg.RegisterChannel("fake", f.channel)
	f.orch = NewOrchestrator(f.store, f.store, reg, Options{SourceWorkers: 2, ConnectorTimeout: time.Second}, zerolog.Nop())
	f.orch.now = func() time.Time { return runStart }
	return f
}

// addSupplier stores a supplier with n stale products <id>-00..
func (f *fixture) addSupplier(t *testing.T, id string, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.PutSupplier(ctx, "acct", model.SupplierIntegration{ID: id, Type: "fake", Active: true}))
	for i := range n {
		ref := fmt.Sprintf("%s-%02d", id, i)
		require.NoError(t, f.store.Put(ctx, "acct", model.ProductRecord{
			ID:          ref,
			Title:       "Product " + ref,
			Price:       50,
			Stock:       1,
			SupplierRef: model.SupplierRef{SupplierID: id, ProductRef: ref},
		}))
	}
}

func dailyConfig() model.SyncConfig {
	return model.SyncConfig{Enabled: true, Frequency: model.Daily, StockThreshold: 10, PriceVarianceLimitPercent: 20}
}

func TestRunIsolatesSupplierFailures(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"s1", "s2", "s3"} {
		f.addSupplier(t, id, 10)
	}
	f.supplier.fail["s2/s2-03"] = true
	f.supplier.fail["s2/s2-07"] = true

	out := f.orch.Run(context.Background(), "acct", dailyConfig())

	assert.False(t, out.Success)
	require.Len(t, out.Errors, 2)
	assert.Contains(t, out.Errors[0], "s2-03")
	assert.Contains(t, out.Errors[1], "s2-07")
	assert.Equal(t, 28, out.ItemsSynced)
	assert.Equal(t, "acct", out.AccountID)
	assert.Equal(t, runStart, out.StartedAt)

	ok, err := f.store.Get(context.Background(), "acct", "s2-04")
	require.NoError(t, err)
	assert.Equal(t, 5, ok.Stock)
	assert.Equal(t, 100.0, ok.Price)
	assert.True(t, runStart.Equal(ok.RefreshedAt))

	failed, err := f.store.Get(context.Background(), "acct", "s2-03")
	require.NoError(t, err)
	assert.Equal(t, 1, failed.Stock)
	assert.True(t, failed.RefreshedAt.IsZero())

	audited, err := f.store.Outcomes(context.Background(), "acct", 0)
	require.NoError(t, err)
	require.Len(t, audited, 1)
	assert.Equal(t, out.ID, audited[0].ID)
}

func TestRunPullsOnlyStaleProducts(t *testing.T) {
	f := newFixture(t)
	f.addSupplier(t, "s1", 3)
	fresh := runStart.Add(-time.Hour)
	_, err := f.store.Update(context.Background(), "acct", "s1-01", model.Fields{RefreshedAt: &fresh})
	require.NoError(t, err)

	out := f.orch.Run(context.Background(), "acct", dailyConfig())
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.ItemsSynced)
	assert.EqualValues(t, 2, f.supplier.calls.Load())
}

func TestRunPageSizeBoundsPull(t *testing.T) {
	f := newFixture(t)
	f.orch.opt.PullPageSize = 4
	f.addSupplier(t, "s1", 10)

	out := f.orch.Run(context.Background(), "acct", dailyConfig())
	assert.Equal(t, 4, out.ItemsSynced)
}

func TestRunUnchangedPriceKeepsStoredPrice(t *testing.T) {
	f := newFixture(t)
	f.supplier.unchanged = true
	f.addSupplier(t, "s1", 1)

	out := f.orch.Run(context.Background(), "acct", dailyConfig())
	require.True(t, out.Success)

	p, err := f.store.Get(context.Background(), "acct", "s1-00")
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.Price)
	assert.Equal(t, 5, p.Stock)
}

func TestRunSkipsInactiveAndReportsUnknownType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.PutSupplier(ctx, "acct", model.SupplierIntegration{ID: "off", Type: "fake", Active: false}))
	require.NoError(t, f.store.PutSupplier(ctx, "acct", model.SupplierIntegration{ID: "ftp", Type: "ftp", Active: true}))

	out := f.orch.Run(ctx, "acct", dailyConfig())
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "ftp")
	assert.Zero(t, f.supplier.calls.Load())
}

func TestRunConfigErrors(t *testing.T) {
	tests := map[string]model.SyncConfig{
		"disabled":          {Enabled: false, Frequency: model.Daily},
		"unknown frequency": {Enabled: true, Frequency: "monthly"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.addSupplier(t, "s1", 2)

			out := f.orch.Run(context.Background(), "acct", cfg)
			assert.False(t, out.Success)
			assert.Len(t, out.Errors, 1)
			assert.Zero(t, out.ItemsSynced)
			assert.Zero(t, f.supplier.calls.Load(), "no phase runs")

			audited, err := f.store.Outcomes(context.Background(), "acct", 0)
			require.NoError(t, err)
			assert.Len(t, audited, 1)
		})
	}
}

func TestRunPushAdvancesWatermarkOnlyWhenComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addSupplier(t, "s1", 3)
	require.NoError(t, f.store.PutChannel(ctx, "acct", model.ChannelIntegration{ID: "good", Type: "fake", Active: true}))
	require.NoError(t, f.store.PutChannel(ctx, "acct", model.ChannelIntegration{ID: "bad", Type: "fake", Active: true}))
	f.channel.fail["bad/s1-01"] = true

	out := f.orch.Run(ctx, "acct", dailyConfig())

	// 3 pulls, 3 pushes to good, 2 of 3 to bad
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 3+3+2, out.ItemsSynced)

	marks := watermarks(t, f.store)
	assert.True(t, runStart.Equal(marks["good"]))
	assert.True(t, marks["bad"].IsZero(), "a failed item keeps the window open")

	delete(f.channel.fail, "bad/s1-01")
	out = f.orch.Run(ctx, "acct", dailyConfig())
	assert.True(t, out.Success)
	assert.True(t, runStart.Equal(watermarks(t, f.store)["bad"]))
}

func watermarks(t *testing.T, s *store.Memory) map[string]time.Time {
	t.Helper()
	chs, err := s.Channels(context.Background(), "acct")
	require.NoError(t, err)
	out := make(map[string]time.Time, len(chs))
	for _, ch := range chs {
		out[ch.ID] = ch.LastSyncAt
	}
	return out
}

func TestRunPushUsesWatermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.PutChannel(ctx, "acct", model.ChannelIntegration{
		ID: "c1", Type: "fake", Active: true, LastSyncAt: runStart.Add(-time.Hour),
	}))
	require.NoError(t, f.store.Put(ctx, "acct", model.ProductRecord{ID: "old", UpdatedAt: runStart.Add(-2 * time.Hour)}))
	require.NoError(t, f.store.Put(ctx, "acct", model.ProductRecord{ID: "new", UpdatedAt: runStart.Add(-time.Minute)}))

	out := f.orch.Run(ctx, "acct", dailyConfig())
	require.True(t, out.Success)
	assert.Equal(t, []string{"c1/new"}, f.channel.pushed)
}

func TestRunAdjustsPricesAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addSupplier(t, "s1", 2)
	cfg := dailyConfig()
	cfg.AutoAdjustPrices = true

	out := f.orch.Run(ctx, "acct", cfg)
	require.True(t, out.Success, out.Errors)
	assert.Equal(t, 2, out.ItemsSynced, "pricing does not count as synced")

	p, err := f.store.Get(ctx, "acct", "s1-00")
	require.NoError(t, err)
	assert.Equal(t, 120.0, p.Price)

	adjs, err := f.store.PriceAdjustments(ctx, "acct", 0)
	require.NoError(t, err)
	require.Len(t, adjs, 2)
	for _, a := range adjs {
		assert.Equal(t, 100.0, a.PreviousPrice)
		assert.Equal(t, 120.0, a.NewPrice)
		assert.Equal(t, 5, a.StockAtDecision)
		assert.Equal(t, pricing.ReasonLowStock, a.Reason)
		assert.NotEmpty(t, a.ID)
	}
}

func TestRunWithoutAutoAdjustLeavesPrices(t *testing.T) {
	f := newFixture(t)
	f.addSupplier(t, "s1", 1)

	out := f.orch.Run(context.Background(), "acct", dailyConfig())
	require.True(t, out.Success)

	adjs, err := f.store.PriceAdjustments(context.Background(), "acct", 0)
	require.NoError(t, err)
	assert.Empty(t, adjs)
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	f.addSupplier(t, "s1", 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.orch.Run(ctx, "acct", dailyConfig())
	assert.False(t, out.Success)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "aborted")
	assert.Zero(t, f.supplier.calls.Load())

	audited, err := f.store.Outcomes(context.Background(), "acct", 0)
	require.NoError(t, err)
	assert.Len(t, audited, 1, "a cancelled run is still audited")
}
