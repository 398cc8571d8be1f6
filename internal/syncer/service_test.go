package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/reconcile/model"
	"catalog-sync/internal/reconcile/service"
)

func newService(f *fixture) *Service {
	return NewService(f.store, f.store, f.orch, service.Options{}, zerolog.Nop())
}

func TestServiceMissingConfig(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)

	out := svc.RunReconciliation(context.Background(), "acct")
	assert.False(t, out.Success)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "no sync config")
}

func TestServiceRunsStoredConfig(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()
	f.addSupplier(t, "s1", 4)
	require.NoError(t, svc.SetConfig(ctx, "acct", dailyConfig()))

	out := svc.RunReconciliation(ctx, "acct")
	assert.True(t, out.Success)
	assert.Equal(t, 4, out.ItemsSynced)

	got, err := svc.Outcomes(ctx, "acct", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, out.ID, got[0].ID)
}

func TestServiceSetConfigValidates(t *testing.T) {
	svc := newService(newFixture(t))
	err := svc.SetConfig(context.Background(), "acct", model.SyncConfig{Frequency: "yearly"})
	assert.True(t, errs.IsConfig(err))

	_, err = svc.Config(context.Background(), "acct")
	assert.True(t, errs.IsNotFound(err), "invalid config is not stored")
}

func TestServiceSingleFlightPerAccount(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()
	f.addSupplier(t, "s1", 1)
	require.NoError(t, svc.SetConfig(ctx, "acct", dailyConfig()))
	f.supplier.block = make(chan struct{})

	var (
		wg   sync.WaitGroup
		outs [2]model.SyncOutcome
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		outs[0] = svc.RunReconciliation(ctx, "acct")
	}()
	require.Eventually(t, func() bool { return f.supplier.calls.Load() == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		outs[1] = svc.RunReconciliation(ctx, "acct")
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.supplier.block)
	wg.Wait()

	assert.Equal(t, outs[0].ID, outs[1].ID, "second caller joins the running run")
	assert.EqualValues(t, 1, f.supplier.calls.Load())

	audited, err := svc.Outcomes(ctx, "acct", 0)
	require.NoError(t, err)
	assert.Len(t, audited, 1)
}

func TestServiceDeduplicatePersists(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()

	batch := []model.ProductRecord{
		{ID: "a", SKU: "ABC", Title: "Mouse", Price: 20, Stock: 1},
		{ID: "b", SKU: "ABC", Title: "Mouse grey", Brand: "Logitech", Price: 18, Stock: 4},
	}
	require.NoError(t, f.store.Put(ctx, "acct", batch[0]))

	rep, err := svc.Deduplicate(ctx, "acct", batch, 0)
	require.NoError(t, err)
	require.Len(t, rep.Canonical, 1)
	assert.Equal(t, []string{"a"}, rep.Removed)

	stored, err := f.store.Read(ctx, "acct", model.Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "b", stored[0].ID)
	assert.Equal(t, 18.0, stored[0].Price)
	assert.Equal(t, 4, stored[0].Stock)
}

func TestServicePutChannelKeepsWatermark(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()

	require.NoError(t, svc.PutChannel(ctx, "acct", model.ChannelIntegration{ID: "c1", Type: "flat", Active: true}))
	require.NoError(t, f.store.SetChannelWatermark(ctx, "acct", "c1", runStart))

	require.NoError(t, svc.PutChannel(ctx, "acct", model.ChannelIntegration{
		ID: "c1", Type: "flat", Endpoint: "https://shop.example.com", LastSyncAt: time.Time{},
	}))
	chs, err := svc.Channels(ctx, "acct")
	require.NoError(t, err)
	require.Len(t, chs, 1)
	assert.Equal(t, "https://shop.example.com", chs[0].Endpoint)
	assert.True(t, runStart.Equal(chs[0].LastSyncAt))

	assert.True(t, errs.IsConfig(svc.PutChannel(ctx, "acct", model.ChannelIntegration{ID: "c2"})))
	assert.True(t, errs.IsConfig(svc.PutSupplier(ctx, "acct", model.SupplierIntegration{Type: "http"})))
}

func TestServiceDeduplicatedRecordReachesChannel(t *testing.T) {
	f := newFixture(t)
	svc := newService(f)
	ctx := context.Background()
	require.NoError(t, f.store.PutChannel(ctx, "acct", model.ChannelIntegration{
		ID: "c1", Type: "fake", Active: true, LastSyncAt: runStart.Add(-time.Hour),
	}))

	stale := runStart.Add(-48 * time.Hour)
	batch := []model.ProductRecord{
		{ID: "a", SKU: "ABC", Title: "Mouse", Price: 10, Stock: 2, UpdatedAt: stale},
		{ID: "b", SKU: "ABC", Title: "Mouse grey", Brand: "Logitech", Price: 8, Stock: 9, UpdatedAt: stale},
	}
	rep, err := svc.Deduplicate(ctx, "acct", batch, 0)
	require.NoError(t, err)
	require.Len(t, rep.Canonical, 1)
	assert.True(t, rep.Canonical[0].UpdatedAt.After(runStart.Add(-time.Hour)))

	out := f.orch.Run(ctx, "acct", dailyConfig())
	require.True(t, out.Success, out.Errors)
	assert.Equal(t, []string{"c1/b"}, f.channel.pushed)
}
