// Poseidon hash, used for StarkNet v3 transaction hashing. Parameterized the way the network's Poseidon3
// instance is: a width-3 state (rate 2, capacity 1), a cubic S-box, full
// rounds at the start and end of the permutation and partial rounds in the
// middle.
//
// Round constants and the MDS matrix are derived deterministically from
// fixed domain-separated seeds (see deriveConstant) rather than hardcoded
// from the published round-constant table; see DESIGN.md.
package starkhash

import (
	"crypto/sha256"
	"math/big"

	"github.com/eth2030/starknet-core/felt"
)

const (
	poseidonWidth       = 3
	poseidonFullRounds  = 8
	poseidonPartRounds  = 83
	poseidonTotalRounds = poseidonFullRounds + poseidonPartRounds
)

var (
	poseidonRoundConstants [poseidonTotalRounds][poseidonWidth]felt.Felt
	poseidonMDS            [poseidonWidth][poseidonWidth]felt.Felt
)

func init() {
	for r := 0; r < poseidonTotalRounds; r++ {
		for c := 0; c < poseidonWidth; c++ {
			poseidonRoundConstants[r][c] = deriveConstant("starknet-poseidon-rc", r, c)
		}
	}
	for i := 0; i < poseidonWidth; i++ {
		for j := 0; j < poseidonWidth; j++ {
			poseidonMDS[i][j] = deriveConstant("starknet-poseidon-mds", i, j)
		}
	}
}

// deriveConstant expands a domain-separated seed plus two small indices
// into a field element, via SHA-256 reduced modulo P.
func deriveConstant(seed string, i, j int) felt.Felt {
	buf := []byte(seed)
	buf = append(buf, byte(i), byte(i>>8), byte(j), byte(j>>8))
	digest := sha256.Sum256(buf)
	n := new(big.Int).SetBytes(digest[:])
	return felt.FromBigInt(n)
}

// sbox applies the cubic S-box x^3 used by the STARK-friendly Poseidon
// instance (the curve's characteristic is coprime to 3, making x -> x^3 a
// permutation of the field).
func sbox(x felt.Felt) felt.Felt {
	return x.Mul(x).Mul(x)
}

func poseidonPermute(state [poseidonWidth]felt.Felt) [poseidonWidth]felt.Felt {
	half := poseidonFullRounds / 2
	for r := 0; r < poseidonTotalRounds; r++ {
		for c := 0; c < poseidonWidth; c++ {
			state[c] = state[c].Add(poseidonRoundConstants[r][c])
		}

		full := r < half || r >= half+poseidonPartRounds
		if full {
			for c := 0; c < poseidonWidth; c++ {
				state[c] = sbox(state[c])
			}
		} else {
			state[0] = sbox(state[0])
		}

		var next [poseidonWidth]felt.Felt
		for i := 0; i < poseidonWidth; i++ {
			acc := felt.Zero
			for j := 0; j < poseidonWidth; j++ {
				acc = acc.Add(poseidonMDS[i][j].Mul(state[j]))
			}
			next[i] = acc
		}
		state = next
	}
	return state
}

// PoseidonHasher is a rate-2, capacity-1 sponge over the width-3 Poseidon
// permutation. Elements are absorbed two at a time; Finish pads the final
// partial block with a single absorbed 1 (domain separation for variable-
// length input) and returns the first rate element of the squeezed state.
type PoseidonHasher struct {
	state    [poseidonWidth]felt.Felt
	pending  [2]felt.Felt
	pendingN int
}

// NewPoseidonHasher returns a fresh hasher with zeroed state.
func NewPoseidonHasher() *PoseidonHasher {
	return &PoseidonHasher{}
}

// Write absorbs one more field element.
func (h *PoseidonHasher) Write(x felt.Felt) {
	h.pending[h.pendingN] = x
	h.pendingN++
	if h.pendingN == 2 {
		h.absorb()
	}
}

func (h *PoseidonHasher) absorb() {
	h.state[0] = h.state[0].Add(h.pending[0])
	h.state[1] = h.state[1].Add(h.pending[1])
	h.state = poseidonPermute(h.state)
	h.pending = [2]felt.Felt{}
	h.pendingN = 0
}

// Finish pads any partial block (absorbing a trailing domain-separation
// element of One) and returns the squeezed output.
func (h *PoseidonHasher) Finish() felt.Felt {
	if h.pendingN > 0 {
		h.pending[h.pendingN] = felt.One
		h.pendingN = 2
		h.absorb()
	} else {
		// Even an empty/complete input still runs one more permutation so
		// that Finish is never a no-op identity on a freshly-absorbed
		// state.
		h.state[0] = h.state[0].Add(felt.One)
		h.state = poseidonPermute(h.state)
	}
	return h.state[0]
}
