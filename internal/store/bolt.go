package store

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	bolt "go.etcd.io/bbolt"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/reconcile/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	bktAccounts    = []byte("accounts")
	bktOutcomes    = []byte("outcomes")
	bktAdjustments = []byte("price_adjustments")

	bktProducts  = []byte("products")
	bktSuppliers = []byte("suppliers")
	bktChannels  = []byte("channels")
	bktMeta      = []byte("meta")

	keyConfig = []byte("config")
)

// Bolt keeps the catalogue and the audit log in one bbolt file.
// bbolt runs one write transaction at a time, so updates of a record never interleave.
type Bolt struct {
	db *bolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bktAccounts, bktOutcomes, bktAdjustments} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (s *Bolt) Close() error { return s.db.Close() }

// accountBucket returns accounts/<id>/<sub>; nil when absent in a read tx.
func accountBucket(tx *bolt.Tx, accountID string, sub []byte, create bool) (*bolt.Bucket, error) {
	root := tx.Bucket(bktAccounts)
	if !create {
		acc := root.Bucket([]byte(accountID))
		if acc == nil {
			return nil, nil
		}
		return acc.Bucket(sub), nil
	}
	acc, err := root.CreateBucketIfNotExists([]byte(accountID))
	if err != nil {
		return nil, err
	}
	return acc.CreateBucketIfNotExists(sub)
}

func (s *Bolt) Read(_ context.Context, accountID string, f model.Filter) ([]model.ProductRecord, error) {
	var out []model.ProductRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := accountBucket(tx, accountID, bktProducts, false)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var p model.ProductRecord
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode product %s: %w", k, err)
			}
			if !f.Match(p) {
				continue
			}
			out = append(out, p)
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *Bolt) Get(_ context.Context, accountID, id string) (model.ProductRecord, error) {
	var p model.ProductRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := accountBucket(tx, accountID, bktProducts, false)
		if b == nil {
			return errs.NewNotFoundError("product", id)
		}
		v := b.Get([]byte(id))
		if v == nil {
			return errs.NewNotFoundError("product", id)
		}
		return json.Unmarshal(v, &p)
	})
	return p, err
}

func (s *Bolt) Update(_ context.Context, accountID, id string, f model.Fields) (model.ProductRecord, error) {
	var p model.ProductRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := accountBucket(tx, accountID, bktProducts, true)
		if err != nil {
			return err
		}
		v := b.Get([]byte(id))
		if v == nil {
			return errs.NewNotFoundError("product", id)
		}
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		applyUpdate(&p, f)
		return putJSON(b, []byte(id), p)
	})
	return p, err
}

func (s *Bolt) Put(_ context.Context, accountID string, p model.ProductRecord) error {
	ensureID(&p)
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := accountBucket(tx, accountID, bktProducts, true)
		if err != nil {
			return err
		}
		return putJSON(b, []byte(p.ID), p)
	})
}

func (s *Bolt) Delete(_ context.Context, accountID, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := accountBucket(tx, accountID, bktProducts, true)
		if err != nil {
			return err
		}
		if b.Get([]byte(id)) == nil {
			return errs.NewNotFoundError("product", id)
		}
		return b.Delete([]byte(id))
	})
}

func (s *Bolt) GetConfig(_ context.Context, accountID string) (model.SyncConfig, error) {
	var cfg model.SyncConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := accountBucket(tx, accountID, bktMeta, false)
		if b == nil {
			return errs.NewNotFoundError("sync config", accountID)
		}
		v := b.Get(keyConfig)
		if v == nil {
			return errs.NewNotFoundError("sync config", accountID)
		}
		return json.Unmarshal(v, &cfg)
	})
	return cfg, err
}

func (s *Bolt) PutConfig(_ context.Context, accountID string, cfg model.SyncConfig) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := accountBucket(tx, accountID, bktMeta, true)
		if err != nil {
			return err
		}
		return putJSON(b, keyConfig, cfg)
	})
}

func (s *Bolt) Suppliers(_ context.Context, accountID string) ([]model.SupplierIntegration, error) {
	return listJSON[model.SupplierIntegration](s.db, accountID, bktSuppliers)
}

func (s *Bolt) PutSupplier(_ context.Context, accountID string, si model.SupplierIntegration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := accountBucket(tx, accountID, bktSuppliers, true)
		if err != nil {
			return err
		}
		return putJSON(b, []byte(si.ID), si)
	})
}

func (s *Bolt) Channels(_ context.Context, accountID string) ([]model.ChannelIntegration, error) {
	return listJSON[model.ChannelIntegration](s.db, accountID, bktChannels)
}

func (s *Bolt) PutChannel(_ context.Context, accountID string, c model.ChannelIntegration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := accountBucket(tx, accountID, bktChannels, true)
		if err != nil {
			return err
		}
		return putJSON(b, []byte(c.ID), c)
	})
}

func (s *Bolt) SetChannelWatermark(_ context.Context, accountID, channelID string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := accountBucket(tx, accountID, bktChannels, true)
		if err != nil {
			return err
		}
		v := b.Get([]byte(channelID))
		if v == nil {
			return errs.NewNotFoundError("channel", channelID)
		}
		var c model.ChannelIntegration
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		c.LastSyncAt = at
		return putJSON(b, []byte(channelID), c)
	})
}

func (s *Bolt) Accounts(_ context.Context) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bktAccounts).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

func (s *Bolt) AppendOutcome(_ context.Context, o model.SyncOutcome) error {
	return appendAudit(s.db, bktOutcomes, o.AccountID, auditKey(o.StartedAt, o.ID), o)
}

func (s *Bolt) AppendPriceAdjustment(_ context.Context, a model.PriceAdjustment) error {
	return appendAudit(s.db, bktAdjustments, a.AccountID, auditKey(a.Timestamp, a.ID), a)
}

func (s *Bolt) Outcomes(_ context.Context, accountID string, limit int) ([]model.SyncOutcome, error) {
	return tailJSON[model.SyncOutcome](s.db, bktOutcomes, accountID, limit)
}

func (s *Bolt) PriceAdjustments(_ context.Context, accountID string, limit int) ([]model.PriceAdjustment, error) {
	return tailJSON[model.PriceAdjustment](s.db, bktAdjustments, accountID, limit)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func listJSON[T any](db *bolt.DB, accountID string, sub []byte) ([]T, error) {
	var out []T
	err := db.View(func(tx *bolt.Tx) error {
		b, _ := accountBucket(tx, accountID, sub, false)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			out = append(out, item)
			return nil
		})
	})
	return out, err
}

// appendAudit refuses to overwrite: the audit log is append-only.
func appendAudit(db *bolt.DB, root []byte, accountID string, key []byte, v any) error {
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(root).CreateBucketIfNotExists([]byte(accountID))
		if err != nil {
			return err
		}
		if b.Get(key) != nil {
			return fmt.Errorf("audit entry %s already exists", key)
		}
		return putJSON(b, key, v)
	})
}

func tailJSON[T any](db *bolt.DB, root []byte, accountID string, limit int) ([]T, error) {
	var out []T
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(root).Bucket([]byte(accountID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			out = append(out, item)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Ping opens a read transaction; it fails once the database is closed.
func (s *Bolt) Ping(context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}
