package starkhash

import (
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/eth2030/starknet-core/felt"
)

// SNKeccak computes the StarkNet-flavored Keccak used for entry-point
// selectors: legacy Keccak-256 of the input, truncated to fit a field
// element by masking off the top 6 bits of the 256-bit digest.
func SNKeccak(data []byte) felt.Felt {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return TruncatedKeccak(digest)
}

// TruncatedKeccak masks a 32-byte Keccak digest down to 250 bits so it fits
// a StarkNet field element, matching the network's truncated_keccak.
func TruncatedKeccak(digest [32]byte) felt.Felt {
	n := new(big.Int).SetBytes(digest[:])
	mask := new(big.Int).Lsh(big.NewInt(1), 250)
	mask.Sub(mask, big.NewInt(1))
	n.And(n, mask)
	return felt.FromBigInt(n)
}
