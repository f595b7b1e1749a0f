package felt

import (
	"math/big"
	"testing"
)

func TestAddSubRoundTrip(t *testing.T) {
	a := FromUint64(12345)
	b := FromUint64(9999999999)
	sum := a.Add(b)
	back := sum.Sub(b)
	if !back.Equal(a) {
		t.Fatalf("Sub did not invert Add: got %s want %s", back.Hex(), a.Hex())
	}
}

func TestMulInv(t *testing.T) {
	a := FromUint64(7)
	inv := a.Inv()
	product := a.Mul(inv)
	if !product.Equal(One) {
		t.Fatalf("a * a^-1 != 1, got %s", product.Hex())
	}
}

func TestZeroIsAdditiveIdentity(t *testing.T) {
	a := FromUint64(424242)
	if !a.Add(Zero).Equal(a) {
		t.Fatalf("a + 0 != a")
	}
}

func TestFromHexRoundTrip(t *testing.T) {
	f := MustFromHex("0xabc")
	if f.Hex() != "0xabc" {
		t.Fatalf("unexpected hex round-trip: %s", f.Hex())
	}
}

func TestBitMSBFirst(t *testing.T) {
	// value with only the top (251-bit) bit set equals 2^250.
	n := new(big.Int).Lsh(big.NewInt(1), 250)
	top := FromBigInt(n)
	if top.Bit(0) != 1 {
		t.Fatalf("expected top bit set")
	}
	for i := 1; i < 251; i++ {
		if top.Bit(i) != 0 {
			t.Fatalf("expected bit %d clear, got 1", i)
		}
	}
}
