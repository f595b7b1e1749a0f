package nodestore

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// PebbleDB adapts a *pebble.DB to the Database interface.
type PebbleDB struct {
	db *pebble.DB
}

// OpenPebble opens (creating if necessary) a pebble instance at dir.
func OpenPebble(dir string) (*PebbleDB, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleDB{db: db}, nil
}

func (p *PebbleDB) Has(key []byte) (bool, error) {
	_, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

func (p *PebbleDB) Get(key []byte) ([]byte, error) {
	v, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	return out, closer.Close()
}

func (p *PebbleDB) Put(key, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleDB) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

func (p *PebbleDB) Close() error {
	return p.db.Close()
}

func (p *PebbleDB) NewBatch() Batch {
	return &pebbleBatch{batch: p.db.NewBatch()}
}

func (p *PebbleDB) NewIterator(prefix []byte) Iterator {
	upper := incrementPrefix(prefix)
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upper,
	})
	if err != nil {
		return &errIterator{err: err}
	}
	it.First()
	return &pebbleIterator{it: it, started: true}
}

// incrementPrefix returns the smallest byte string greater than every
// string with the given prefix, used as an iterator upper bound.
func incrementPrefix(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded
}

type pebbleBatch struct {
	batch *pebble.Batch
}

func (b *pebbleBatch) Put(key, value []byte) error { return b.batch.Set(key, value, nil) }
func (b *pebbleBatch) Delete(key []byte) error      { return b.batch.Delete(key, nil) }
func (b *pebbleBatch) ValueSize() int               { return len(b.batch.Repr()) }
func (b *pebbleBatch) Write() error                 { return b.batch.Commit(pebble.Sync) }
func (b *pebbleBatch) Reset()                       { b.batch.Reset() }

type pebbleIterator struct {
	it      *pebble.Iterator
	started bool
}

func (it *pebbleIterator) Next() bool {
	if it.started {
		it.started = false
		return it.it.Valid()
	}
	return it.it.Next()
}

func (it *pebbleIterator) Key() []byte {
	return append([]byte(nil), it.it.Key()...)
}

func (it *pebbleIterator) Value() []byte {
	return append([]byte(nil), it.it.Value()...)
}

func (it *pebbleIterator) Release() error { return it.it.Close() }

type errIterator struct{ err error }

func (e *errIterator) Next() bool      { return false }
func (e *errIterator) Key() []byte     { return nil }
func (e *errIterator) Value() []byte   { return nil }
func (e *errIterator) Release() error  { return e.err }

var _ Database = (*PebbleDB)(nil)
