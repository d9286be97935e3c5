package storage

import (
	"bytes"
	"fmt"

	"github.com/aleksaelezovic/trigo/pkg/store"
	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStorage is the store.Storage backend built on BadgerDB.
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens (creating if absent) a BadgerDB database at path.
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

func (s *BadgerStorage) Begin(writable bool) (store.Transaction, error) {
	return &BadgerTransaction{txn: s.db.NewTransaction(writable), writable: writable}, nil
}

func (s *BadgerStorage) Close() error { return s.db.Close() }

func (s *BadgerStorage) Sync() error { return s.db.Sync() }

// BadgerTransaction is a store.Transaction backed by one BadgerDB txn, with
// every key routed through its store.Table prefix.
type BadgerTransaction struct {
	txn      *badger.Txn
	writable bool
}

func (t *BadgerTransaction) Get(table store.Table, key []byte) ([]byte, error) {
	item, err := t.txn.Get(store.PrefixKey(table, key))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return copyItemValue(item)
}

func (t *BadgerTransaction) Set(table store.Table, key, value []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return t.txn.Set(store.PrefixKey(table, key), value)
}

func (t *BadgerTransaction) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return t.txn.Delete(store.PrefixKey(table, key))
}

// Scan opens a forward iterator within table. A nil start scans from the
// table's first key; a non-nil start is both the seek point and a key
// prefix, so only keys beginning with start are visited. A non-nil end
// stops the scan before the first key >= end.
func (t *BadgerTransaction) Scan(table store.Table, start, end []byte) (store.Iterator, error) {
	tablePrefix := store.TablePrefix(table)

	seekKey := tablePrefix
	scanPrefix := tablePrefix
	if start != nil {
		seekKey = store.PrefixKey(table, start)
		scanPrefix = seekKey // narrow BadgerDB's own prefix filter to the seek point
	}

	var endKey []byte
	if end != nil {
		endKey = store.PrefixKey(table, end)
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = scanPrefix

	return &BadgerIterator{
		it:      t.txn.NewIterator(opts),
		prefix:  tablePrefix,
		endKey:  endKey,
		seekKey: seekKey,
	}, nil
}

func (t *BadgerTransaction) Commit() error { return t.txn.Commit() }

func (t *BadgerTransaction) Rollback() error {
	t.txn.Discard()
	return nil
}

// BadgerIterator is a store.Iterator over one table's key range.
type BadgerIterator struct {
	it       *badger.Iterator
	prefix   []byte // table prefix, stripped from keys returned by Key()
	endKey   []byte
	seekKey  []byte
	started  bool
	hasValue bool
}

func (i *BadgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.seekKey)
		i.started = true
	} else {
		i.it.Next()
	}

	if !i.it.Valid() {
		i.hasValue = false
		return false
	}
	if i.endKey != nil && bytes.Compare(i.it.Item().Key(), i.endKey) >= 0 {
		i.hasValue = false
		return false
	}

	i.hasValue = true
	return true
}

func (i *BadgerIterator) Key() []byte {
	if !i.hasValue {
		return nil
	}
	key := i.it.Item().Key()
	if len(key) <= len(i.prefix) {
		return nil
	}
	return key[len(i.prefix):]
}

func (i *BadgerIterator) Value() ([]byte, error) {
	if !i.hasValue {
		return nil, store.ErrNotFound
	}
	return copyItemValue(i.it.Item())
}

func (i *BadgerIterator) Close() error {
	i.it.Close()
	return nil
}

// copyItemValue copies a BadgerDB item's value out of its mmap'd arena: the
// []byte badger hands to the callback is only valid inside it.
func copyItemValue(item *badger.Item) ([]byte, error) {
	var value []byte
	err := item.Value(func(val []byte) error {
		value = append([]byte{}, val...)
		return nil
	})
	return value, err
}
