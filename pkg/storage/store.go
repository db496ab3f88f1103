package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	"github.com/fxledger/fxledger/pkg/ledger"
)

// Store persists orders and balance records in Pebble with JSON values.
// Serialization of read-modify-write cycles is the settlement core's job;
// the store only guarantees that CommitSettlement is atomic.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the ledger database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
		MaxOpenFiles: 1000,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// GetOrder loads an order by id. Returns (nil, nil) when absent.
func (s *Store) GetOrder(id string) (*ledger.Order, error) {
	data, closer, err := s.db.Get(orderKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	defer closer.Close()

	var o ledger.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order %s: %w", id, err)
	}
	return &o, nil
}

// PutOrder writes an order and its owner-index entry. The index key is built
// from the immutable creation time, so status updates land on the same keys.
func (s *Store) PutOrder(o *ledger.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.ID, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(orderKey(o.ID), data, nil); err != nil {
		return err
	}
	if err := batch.Set(ownerIndexKey(o.Owner, o.CreatedAt.UnixNano(), o.ID), []byte(o.ID), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

// OrdersByOwner lists a party's orders newest-first via a reverse scan of the
// owner index.
func (s *Store) OrdersByOwner(owner string) ([]*ledger.Order, error) {
	prefix := ownerIndexPrefix(owner)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("scan orders for %s: %w", owner, err)
	}
	defer iter.Close()

	var orders []*ledger.Order
	for iter.Last(); iter.Valid(); iter.Prev() {
		o, err := s.GetOrder(string(iter.Value()))
		if err != nil {
			return nil, err
		}
		if o == nil {
			continue // dangling index entry
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// AllOrders lists every order, newest first.
func (s *Store) AllOrders() ([]*ledger.Order, error) {
	prefix := orderPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	defer iter.Close()

	var orders []*ledger.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o ledger.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue // skip invalid entries
		}
		orders = append(orders, &o)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// GetBalance loads a party's wallet for one asset. Returns (nil, nil) when
// absent.
func (s *Store) GetBalance(owner, asset string) (*ledger.Balance, error) {
	data, closer, err := s.db.Get(balanceKey(owner, asset))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance %s/%s: %w", owner, asset, err)
	}
	defer closer.Close()

	var b ledger.Balance
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal balance %s/%s: %w", owner, asset, err)
	}
	return &b, nil
}

// PutBalance writes one balance record.
func (s *Store) PutBalance(b *ledger.Balance) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal balance %s/%s: %w", b.Owner, b.Asset, err)
	}
	if err := s.db.Set(balanceKey(b.Owner, b.Asset), data, pebble.Sync); err != nil {
		return fmt.Errorf("save balance %s/%s: %w", b.Owner, b.Asset, err)
	}
	return nil
}

// BalancesByOwner lists all of a party's wallets.
func (s *Store) BalancesByOwner(owner string) ([]*ledger.Balance, error) {
	prefix := balancePrefix(owner)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("scan balances for %s: %w", owner, err)
	}
	defer iter.Close()

	var balances []*ledger.Balance
	for iter.First(); iter.Valid(); iter.Next() {
		var b ledger.Balance
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			continue
		}
		balances = append(balances, &b)
	}
	return balances, nil
}

// CommitSettlement writes the completed order and both balance records in a
// single batch committed with Sync: either the whole settlement is durable or
// none of it is.
func (s *Store) CommitSettlement(o *ledger.Order, debited, credited *ledger.Balance) error {
	orderData, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.ID, err)
	}
	debitData, err := json.Marshal(debited)
	if err != nil {
		return fmt.Errorf("marshal balance %s/%s: %w", debited.Owner, debited.Asset, err)
	}
	creditData, err := json.Marshal(credited)
	if err != nil {
		return fmt.Errorf("marshal balance %s/%s: %w", credited.Owner, credited.Asset, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(orderKey(o.ID), orderData, nil); err != nil {
		return err
	}
	if err := batch.Set(balanceKey(debited.Owner, debited.Asset), debitData, nil); err != nil {
		return err
	}
	if err := batch.Set(balanceKey(credited.Owner, credited.Asset), creditData, nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit settlement of %s: %w", o.ID, err)
	}
	return nil
}

var _ ledger.Store = (*Store)(nil)
