// Package nodestore provides the physical and logical persistence layer
// for the node core: block headers, the canonical index, trie nodes, and
// the per-block commitment root indices described by the schema in
// schema.go. The physical engine is an embedded LSM key-value store
// (cockroachdb/pebble); the logical schema is realized as single-byte
// table-prefixed keys over it, the same scheme go-ethereum-family clients
// use for their own header/body/receipt tables.
package nodestore

import "errors"

// ErrNotFound is returned by Get when the requested key does not exist.
var ErrNotFound = errors.New("nodestore: not found")

// KeyValueReader wraps the Has and Get methods of a backing data store.
type KeyValueReader interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter wraps the Put and Delete methods of a backing data store.
type KeyValueWriter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// KeyValueStore combines read and write access to a backing data store.
type KeyValueStore interface {
	KeyValueReader
	KeyValueWriter
	Close() error
}

// Iterator iterates over a database's key/value pairs in ascending key
// order, restricted to a given prefix.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release() error
}

// KeyValueIterator adds prefix iteration capability to a store.
type KeyValueIterator interface {
	KeyValueStore
	NewIterator(prefix []byte) Iterator
}

// Batch is a write-only database that commits changes atomically. The node
// core uses exactly one Batch per logical store transaction.
type Batch interface {
	KeyValueWriter
	ValueSize() int
	Write() error
	Reset()
}

// Batcher wraps the NewBatch method of a backing data store.
type Batcher interface {
	NewBatch() Batch
}

// Database is the full interface the Store needs from its physical engine.
type Database interface {
	KeyValueIterator
	Batcher
}
