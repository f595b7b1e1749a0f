// Package chain implements the header chain: canonical block index,
// header insertion, purge, and the gap-search algorithm the syncer uses
// to find the next missing range of headers relative to an anchor.
package chain

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eth2030/starknet-core/felt"
	"github.com/eth2030/starknet-core/log"
	"github.com/eth2030/starknet-core/metrics"
	"github.com/eth2030/starknet-core/nodestore"
	"github.com/eth2030/starknet-core/starkhash"
)

var (
	ErrNilHeader               = errors.New("chain: nil header")
	ErrParentMismatch          = errors.New("chain: header's parent_hash does not match canonical parent")
	ErrConcurrentInsert        = errors.New("chain: concurrent insert for the same block number")
	ErrStateCommitmentMismatch = errors.New("chain: header's state_commitment does not match its storage/class commitments")
)

// Gap is an inclusive [Tail, Head] range of missing block numbers, along
// with the hash evidence needed to fetch and re-link it.
type Gap struct {
	Tail           uint64
	Head           uint64
	HeadHash       felt.Felt
	TailParentHash felt.Felt
}

// Chain wraps a nodestore.Store with header-chain-specific operations.
// Header inserts for a given block number must be serialised by the
// caller; Chain additionally guards against concurrent inserts for the
// *same* number with an in-flight set, turning the contract violation
// into a returned error instead of silent corruption.
type Chain struct {
	store *nodestore.Store
	log   *slog.Logger

	mu       sync.Mutex
	inFlight map[uint64]struct{}
}

// New wraps store with header-chain operations.
func New(store *nodestore.Store) *Chain {
	return &Chain{store: store, log: log.Module("chain"), inFlight: make(map[uint64]struct{})}
}

// InsertHeader inserts a new canonical header at h.Number, recording both
// the header row and the canonical index entry. Parent linkage is checked
// against the existing canonical header at Number-1, when one exists.
func (c *Chain) InsertHeader(h *nodestore.Header) error {
	if h == nil {
		return ErrNilHeader
	}
	if !c.beginInsert(h.Number) {
		return fmt.Errorf("%w: number %d", ErrConcurrentInsert, h.Number)
	}
	defer c.endInsert(h.Number)

	if h.Number > 0 {
		parent, err := c.store.HeaderByNumber(h.Number - 1)
		if err == nil {
			if !parent.Hash.Equal(h.ParentHash) {
				return ErrParentMismatch
			}
		} else if !errors.Is(err, nodestore.ErrNotFound) {
			return err
		}
	}

	ok, err := validStateCommitment(h)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: number %d", ErrStateCommitmentMismatch, h.Number)
	}

	if err := c.store.InsertHeader(h); err != nil {
		return err
	}
	if err := c.store.InsertCanonical(h.Number, h.Hash); err != nil {
		return err
	}
	metrics.HeadersInserted.Inc()
	metrics.ChainHeight.Set(int64(h.Number))
	c.log.Debug("inserted header", "number", h.Number, "hash", h.Hash.Hex())
	return nil
}

// validStateCommitment checks the header-level commitment invariant:
// state_commitment = Pedersen(storage_commitment, class_commitment) from
// protocol version 0.11 onward, and equals storage_commitment before it.
func validStateCommitment(h *nodestore.Header) (bool, error) {
	v, err := nodestore.ParseVersion(h.StarknetVersion)
	if err != nil {
		return false, err
	}
	want := h.StorageCommitment
	if v.AtLeast(0, 11) {
		want = starkhash.Pedersen(h.StorageCommitment, h.ClassCommitment)
	}
	return h.StateCommitment.Equal(want), nil
}

func (c *Chain) beginInsert(number uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[number]; busy {
		return false
	}
	c.inFlight[number] = struct{}{}
	return true
}

func (c *Chain) endInsert(number uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, number)
}

// HeaderByNumber returns the header at number.
func (c *Chain) HeaderByNumber(number uint64) (*nodestore.Header, error) {
	return c.store.HeaderByNumber(number)
}

// HeaderByHash returns the header with the given hash.
func (c *Chain) HeaderByHash(hash felt.Felt) (*nodestore.Header, error) {
	return c.store.HeaderByHash(hash)
}

// Purge removes every row keyed by block number n.
func (c *Chain) Purge(n uint64) error {
	if err := c.store.PurgeBlock(n); err != nil {
		return err
	}
	metrics.BlocksPurged.Inc()
	c.log.Info("purged block", "number", n)
	return nil
}

// NextGap implements the sync ingester's gap-search: finds the
// highest-numbered missing range of headers at or below anchorNumber.
//
// If the anchor itself is absent locally, it IS the head of the gap (the
// caller's anchor hash is the only evidence available). Otherwise we walk
// downward from the anchor to find the lowest block n of the contiguous
// run containing it; the gap's head is n-1, and its expected hash is the
// parent_hash recorded by the header at n. The tail is the largest present
// m < head, plus one, or genesis (0) when no such m exists.
func (c *Chain) NextGap(anchorNumber uint64, anchorHash felt.Felt) (*Gap, error) {
	metrics.GapSearches.Inc()

	anchorPresent, err := c.store.BlockExists(anchorNumber)
	if err != nil {
		return nil, err
	}

	var head uint64
	var headHash felt.Felt
	if !anchorPresent {
		head, headHash = anchorNumber, anchorHash
	} else {
		low := anchorNumber
		for low > 0 {
			prevPresent, err := c.store.BlockExists(low - 1)
			if err != nil {
				return nil, err
			}
			if !prevPresent {
				break
			}
			low--
		}
		if low == 0 {
			// Fully contiguous down to genesis: no gap.
			return nil, nil
		}
		runBase, err := c.store.HeaderByNumber(low)
		if err != nil {
			return nil, err
		}
		head, headHash = low-1, runBase.ParentHash
	}

	// Tail: the largest present m < head, plus one, or genesis when none
	// exists. This search applies identically whether head came from an
	// absent anchor or from walking down a contiguous run.
	tail := uint64(0)
	for m := head; m > 0; m-- {
		present, err := c.store.BlockExists(m - 1)
		if err != nil {
			return nil, err
		}
		if present {
			tail = m
			break
		}
	}

	var tailParentHash felt.Felt
	if tail > 0 {
		tailParentHash, err = c.store.CanonicalHash(tail - 1)
		if err != nil {
			return nil, err
		}
	}

	return &Gap{Tail: tail, Head: head, HeadHash: headHash, TailParentHash: tailParentHash}, nil
}
