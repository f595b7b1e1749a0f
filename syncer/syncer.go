// Package syncer implements the sync ingester: verification, continuity
// checking, and batch persistence of headers streamed from peers, plus
// delegation to the header chain's gap-search.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eth2030/starknet-core/chain"
	"github.com/eth2030/starknet-core/felt"
	"github.com/eth2030/starknet-core/log"
	"github.com/eth2030/starknet-core/metrics"
	"github.com/eth2030/starknet-core/nodestore"
)

// VerifyOutcome is the result of verifying a signed header.
type VerifyOutcome uint8

const (
	VerifyOK VerifyOutcome = iota
	VerifyBadSignature
	VerifyBadBlockHash
)

// SignatureVerifier checks a header's commitment signature. The
// cryptographic scheme lives outside the node core, which only requires
// that this capability exist.
type SignatureVerifier interface {
	VerifySignature(header *nodestore.Header, signature []byte) (bool, error)
}

// HashRecomputer recomputes a header's claimed hash from its fields, so
// Verify can check the hash-recomputation predicate independent of
// whatever the peer asserted.
type HashRecomputer func(header *nodestore.Header) felt.Felt

// SignedHeader pairs a header with its commitment signature.
type SignedHeader struct {
	Header    *nodestore.Header
	Signature []byte
}

// ErrDiscontinuity is returned by ContinuityFilter.Check on the first mismatch in
// a stream; the stream is poisoned from that point on.
var ErrDiscontinuity = errors.New("syncer: discontinuity in header stream")

// Verify checks a signed header's signature and hash-recomputation
// predicate.
func Verify(sv SignatureVerifier, recompute HashRecomputer, sh SignedHeader) (VerifyOutcome, error) {
	if got := recompute(sh.Header); !got.Equal(sh.Header.Hash) {
		return VerifyBadBlockHash, nil
	}
	ok, err := sv.VerifySignature(sh.Header, sh.Signature)
	if err != nil {
		return VerifyOK, err
	}
	if !ok {
		return VerifyBadSignature, nil
	}
	return VerifyOK, nil
}

// ContinuityFilter is a stateful filter over a header stream: it carries
// (nextNumber, expectedParentHash, poisoned) and emits ErrDiscontinuity on
// the first mismatch, after which every subsequent call returns the same
// error; downstream must drop all further items once poisoned.
type ContinuityFilter struct {
	nextNumber         uint64
	expectedParentHash felt.Felt
	haveParent         bool
	poisoned           bool
}

// NewContinuityFilter starts a filter expecting expectedNumber next, whose
// parent_hash must equal expectedParentHash (the hash of the last header
// already accepted upstream of this stream).
func NewContinuityFilter(expectedNumber uint64, expectedParentHash felt.Felt) *ContinuityFilter {
	return &ContinuityFilter{nextNumber: expectedNumber, expectedParentHash: expectedParentHash, haveParent: true}
}

// Check advances the filter with the next signed header in the stream.
func (f *ContinuityFilter) Check(sh SignedHeader) error {
	if f.poisoned {
		return ErrDiscontinuity
	}
	mismatch := sh.Header.Number != f.nextNumber ||
		(f.haveParent && !sh.Header.ParentHash.Equal(f.expectedParentHash))
	if mismatch {
		f.poisoned = true
		metrics.SyncContinuityBreaks.Inc()
		return fmt.Errorf("%w: want number %d with parent %s, got number %d with parent %s", ErrDiscontinuity,
			f.nextNumber, f.expectedParentHash.Hex(), sh.Header.Number, sh.Header.ParentHash.Hex())
	}
	f.nextNumber = sh.Header.Number + 1
	f.expectedParentHash = sh.Header.Hash
	f.haveParent = true
	return nil
}

// Poisoned reports whether the filter has already emitted a discontinuity.
func (f *ContinuityFilter) Poisoned() bool { return f.poisoned }

// Ingester bundles the sync surface — gap search, verification,
// continuity checking, and batch persistence — over a concrete header
// chain. When built with a worker pool, every store-touching operation
// runs as a blocking job on that pool so an event-driven caller never
// calls the store directly.
type Ingester struct {
	chain *chain.Chain
	pool  *WorkerPool
	log   *slog.Logger
}

// New builds an Ingester over chain.
func New(c *chain.Chain) *Ingester {
	return &Ingester{chain: c, log: log.Module("syncer")}
}

// NewWithPool builds an Ingester whose store operations are offloaded to
// pool through NextGapOn and PersistOn.
func NewWithPool(c *chain.Chain, pool *WorkerPool) *Ingester {
	in := New(c)
	in.pool = pool
	return in
}

// NextGap delegates to the header chain's gap-search.
func (in *Ingester) NextGap(anchorNumber uint64, anchorHash felt.Felt) (*chain.Gap, error) {
	return in.chain.NextGap(anchorNumber, anchorHash)
}

// NextGapOn runs NextGap as a blocking job on the worker pool, waiting for
// the result or ctx cancellation.
func (in *Ingester) NextGapOn(ctx context.Context, anchorNumber uint64, anchorHash felt.Felt) (*chain.Gap, error) {
	v, err := in.pool.Do(ctx, func() (any, error) {
		return in.chain.NextGap(anchorNumber, anchorHash)
	})
	if err != nil {
		return nil, err
	}
	gap, _ := v.(*chain.Gap)
	return gap, nil
}

// Persist writes every header in batch (assumed already ordered and
// verified by the caller) through the header chain, one InsertHeader call
// per header, and returns the highest-numbered header, for feedback to the
// producer. The writes are not one atomic batch: if a header is rejected,
// the headers before it stay stored. Signatures are not stored.
func (in *Ingester) Persist(batch []SignedHeader) (*nodestore.Header, error) {
	if len(batch) == 0 {
		return nil, errors.New("syncer: empty persist batch")
	}
	metrics.SyncBatchSize.Observe(float64(len(batch)))

	var last *nodestore.Header
	for _, sh := range batch {
		if err := in.chain.InsertHeader(sh.Header); err != nil {
			metrics.SyncVerifyFailures.Inc()
			return nil, fmt.Errorf("syncer: persist header %d: %w", sh.Header.Number, err)
		}
		if last == nil || sh.Header.Number > last.Number {
			last = sh.Header
		}
	}
	in.log.Info("persisted batch", "count", len(batch), "last_number", last.Number)
	return last, nil
}

// PersistOn runs Persist as a blocking job on the worker pool. On ctx
// cancellation the write still completes on its worker; only the result is
// discarded.
func (in *Ingester) PersistOn(ctx context.Context, batch []SignedHeader) (*nodestore.Header, error) {
	v, err := in.pool.Do(ctx, func() (any, error) {
		return in.Persist(batch)
	})
	if err != nil {
		return nil, err
	}
	last, _ := v.(*nodestore.Header)
	return last, nil
}
