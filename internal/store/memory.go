package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/reconcile/model"
)

type account struct {
	products  map[string]model.ProductRecord
	config    *model.SyncConfig
	suppliers []model.SupplierIntegration
	channels  []model.ChannelIntegration
}

// Memory is an in-process Catalogue and AuditSink. One lock guards the
// whole state, which serializes writes to the same record. Records are
// copied in and out, so callers never share memory with the store.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*account

	outcomes    map[string][]model.SyncOutcome
	adjustments map[string][]model.PriceAdjustment
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[string]*account),
		outcomes:    make(map[string][]model.SyncOutcome),
		adjustments: make(map[string][]model.PriceAdjustment),
	}
}

// acc must be called with mu held for writing.
func (m *Memory) acc(accountID string) *account {
	a, ok := m.accounts[accountID]
	if !ok {
		a = &account{products: make(map[string]model.ProductRecord)}
		m.accounts[accountID] = a
	}
	return a
}

func (m *Memory) Read(_ context.Context, accountID string, f model.Filter) ([]model.ProductRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, nil
	}
	ids := slices.Sorted(maps.Keys(a.products))
	out := make([]model.ProductRecord, 0, len(ids))
	for _, id := range ids {
		p := a.products[id]
		if !f.Match(p) {
			continue
		}
		out = append(out, cloneRecord(p))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, accountID, id string) (model.ProductRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.accounts[accountID]; ok {
		if p, ok := a.products[id]; ok {
			return cloneRecord(p), nil
		}
	}
	return model.ProductRecord{}, errs.NewNotFoundError("product", id)
}

func (m *Memory) Update(_ context.Context, accountID, id string, f model.Fields) (model.ProductRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return model.ProductRecord{}, errs.NewNotFoundError("product", id)
	}
	p, ok := a.products[id]
	if !ok {
		return model.ProductRecord{}, errs.NewNotFoundError("product", id)
	}
	applyUpdate(&p, f)
	a.products[id] = p
	return cloneRecord(p), nil
}

func (m *Memory) Put(_ context.Context, accountID string, p model.ProductRecord) error {
	ensureID(&p)
	p = cloneRecord(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acc(accountID).products[p.ID] = p
	return nil
}

func (m *Memory) Delete(_ context.Context, accountID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return errs.NewNotFoundError("product", id)
	}
	if _, ok := a.products[id]; !ok {
		return errs.NewNotFoundError("product", id)
	}
	delete(a.products, id)
	return nil
}

func (m *Memory) GetConfig(_ context.Context, accountID string) (model.SyncConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.accounts[accountID]; ok && a.config != nil {
		return *a.config, nil
	}
	return model.SyncConfig{}, errs.NewNotFoundError("sync config", accountID)
}

func (m *Memory) PutConfig(_ context.Context, accountID string, cfg model.SyncConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acc(accountID).config = &cfg
	return nil
}

func (m *Memory) Suppliers(_ context.Context, accountID string) ([]model.SupplierIntegration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.accounts[accountID]; ok {
		return slices.Clone(a.suppliers), nil
	}
	return nil, nil
}

func (m *Memory) PutSupplier(_ context.Context, accountID string, s model.SupplierIntegration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.acc(accountID)
	for i := range a.suppliers {
		if a.suppliers[i].ID == s.ID {
			a.suppliers[i] = s
			return nil
		}
	}
	a.suppliers = append(a.suppliers, s)
	return nil
}

func (m *Memory) Channels(_ context.Context, accountID string) ([]model.ChannelIntegration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.accounts[accountID]; ok {
		return slices.Clone(a.channels), nil
	}
	return nil, nil
}

func (m *Memory) PutChannel(_ context.Context, accountID string, c model.ChannelIntegration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.acc(accountID)
	for i := range a.channels {
		if a.channels[i].ID == c.ID {
			a.channels[i] = c
			return nil
		}
	}
	a.channels = append(a.channels, c)
	return nil
}

func (m *Memory) SetChannelWatermark(_ context.Context, accountID, channelID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		for i := range a.channels {
			if a.channels[i].ID == channelID {
				a.channels[i].LastSyncAt = at
				return nil
			}
		}
	}
	return errs.NewNotFoundError("channel", channelID)
}

func (m *Memory) Accounts(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.accounts)), nil
}

func (m *Memory) AppendOutcome(_ context.Context, o model.SyncOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.Errors = slices.Clone(o.Errors)
	m.outcomes[o.AccountID] = append(m.outcomes[o.AccountID], o)
	return nil
}

func (m *Memory) AppendPriceAdjustment(_ context.Context, a model.PriceAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments[a.AccountID] = append(m.adjustments[a.AccountID], a)
	return nil
}

func (m *Memory) Outcomes(_ context.Context, accountID string, limit int) ([]model.SyncOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.outcomes[accountID], limit), nil
}

func (m *Memory) PriceAdjustments(_ context.Context, accountID string, limit int) ([]model.PriceAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.adjustments[accountID], limit), nil
}

func newestFirst[T any](in []T, limit int) []T {
	out := slices.Clone(in)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *Memory) Ping(context.Context) error { return nil }
