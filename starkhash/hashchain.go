package starkhash

import "github.com/eth2030/starknet-core/felt"

// HashChain folds a sequence of field elements into a single Pedersen
// commitment: acc starts at zero, each Update absorbs one element via
// acc = Pedersen(acc, x), and Finalize folds in the element count.
type HashChain struct {
	acc   felt.Felt
	count uint64
}

// Update absorbs one more element into the chain.
func (h *HashChain) Update(x felt.Felt) {
	h.acc = Pedersen(h.acc, x)
	h.count++
}

// Finalize returns Pedersen(acc, count). An empty chain (no Update calls)
// still produces a well-defined, non-zero result: Pedersen(0, 0).
func (h *HashChain) Finalize() felt.Felt {
	return Pedersen(h.acc, felt.FromUint64(h.count))
}
