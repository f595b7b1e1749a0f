package starkhash

import (
	"testing"

	"github.com/eth2030/starknet-core/felt"
)

func TestPedersenDeterministic(t *testing.T) {
	a := felt.FromUint64(1)
	b := felt.FromUint64(2)
	h1 := Pedersen(a, b)
	h2 := Pedersen(a, b)
	if !h1.Equal(h2) {
		t.Fatalf("Pedersen is not deterministic")
	}
}

func TestPedersenSensitiveToOrder(t *testing.T) {
	a := felt.FromUint64(1)
	b := felt.FromUint64(2)
	if Pedersen(a, b).Equal(Pedersen(b, a)) {
		t.Fatalf("Pedersen(a,b) should differ from Pedersen(b,a) for a != b")
	}
}

func TestHashChainEmptyIsNonZero(t *testing.T) {
	var h HashChain
	out := h.Finalize()
	if out.IsZero() {
		t.Fatalf("empty HashChain finalize must be non-zero")
	}
}

func TestHashChainDeterministic(t *testing.T) {
	mk := func() felt.Felt {
		var h HashChain
		h.Update(felt.FromUint64(10))
		h.Update(felt.FromUint64(20))
		return h.Finalize()
	}
	if !mk().Equal(mk()) {
		t.Fatalf("HashChain must be deterministic across runs")
	}
}

func TestPoseidonDeterministic(t *testing.T) {
	mk := func() felt.Felt {
		h := NewPoseidonHasher()
		h.Write(felt.FromUint64(1))
		h.Write(felt.FromUint64(2))
		h.Write(felt.FromUint64(3))
		return h.Finish()
	}
	if !mk().Equal(mk()) {
		t.Fatalf("PoseidonHasher must be deterministic across runs")
	}
}

func TestSNKeccakConstructorSelector(t *testing.T) {
	sel := SNKeccak([]byte("constructor"))
	if sel.IsZero() {
		t.Fatalf("constructor selector must be non-zero")
	}
}
