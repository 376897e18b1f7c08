package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var lastCircuitKey = []byte("circuit/last")

// ErrNoCircuit is returned by Cache.Last before any circuit was stored.
var ErrNoCircuit = errors.New("no circuit cached")

/*
Cache holds the most recently built circuit descriptor. It is an in-memory
badger database, so nothing survives the process.
*/
type Cache struct {
	db *badger.DB
}

func NewCache() (*Cache, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open circuit cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Store replaces the cached descriptor with d.
func (c *Cache) Store(d *Descriptor) error {
	buf, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode circuit: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(lastCircuitKey, buf)
	})
}

// Last returns the cached descriptor or ErrNoCircuit.
func (c *Cache) Last() (*Descriptor, error) {
	var d Descriptor

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lastCircuitKey)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &d)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoCircuit
	}

	if err != nil {
		return nil, fmt.Errorf("read circuit cache: %w", err)
	}

	return &d, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
