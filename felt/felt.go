// Package felt implements the StarkNet field element: an unsigned integer
// modulo the 252-bit STARK prime P = 2^251 + 17*2^192 + 1. Every hash, trie
// key, and trie value in the node core is a Felt.
package felt

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Felt is a field element held in a 256-bit uint256.Int; its wire and
// storage form is 32 big-endian bytes. The top four bits are always zero
// since the field modulus is 252 bits wide.
type Felt struct {
	inner uint256.Int
}

// byteLen is the fixed wire/storage width of a Felt.
const byteLen = 32

var (
	// modulus is the StarkNet prime P = 2^251 + 17*2^192 + 1.
	modulus = mustBigFromHex("0x800000000000011000000000000000000000000000000000000000000000001")

	modulusU256 = mustU256FromBig(modulus)

	// Zero and One are the additive and multiplicative identities.
	Zero = Felt{}
	One  = FromUint64(1)
)

func mustBigFromHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s[2:], 16)
	if !ok {
		panic(fmt.Sprintf("felt: invalid modulus literal %q", s))
	}
	return n
}

func mustU256FromBig(n *big.Int) *uint256.Int {
	u, overflow := uint256.FromBig(n)
	if overflow {
		panic("felt: modulus does not fit in 256 bits")
	}
	return u
}

// FromUint64 returns the Felt representation of a small unsigned integer.
func FromUint64(v uint64) Felt {
	var f Felt
	f.inner.SetUint64(v)
	return f
}

// FromBytesBE interprets b as a big-endian integer and reduces it modulo P.
// b may be any length; longer inputs are big.Int-reduced first.
func FromBytesBE(b []byte) Felt {
	n := new(big.Int).SetBytes(b)
	return FromBigInt(n)
}

// FromBigInt reduces n modulo P and returns the corresponding Felt. n may
// be negative; the result is always in [0, P).
func FromBigInt(n *big.Int) Felt {
	r := new(big.Int).Mod(n, modulus)
	u, overflow := uint256.FromBig(r)
	if overflow {
		panic("felt: reduced value unexpectedly overflows 256 bits")
	}
	return Felt{inner: *u}
}

// MustFromHex parses a "0x"-prefixed hex string into a Felt. Panics on
// malformed input; intended for constants and test fixtures.
func MustFromHex(s string) Felt {
	f, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return f
}

// FromHex parses a "0x"-prefixed hex string into a Felt.
func FromHex(s string) (Felt, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Felt{}, fmt.Errorf("felt: invalid hex: %w", err)
	}
	return FromBytesBE(b), nil
}

// Bytes returns the big-endian 32-byte representation.
func (f Felt) Bytes() [byteLen]byte {
	return f.inner.Bytes32()
}

// BigInt returns a *big.Int copy of the value.
func (f Felt) BigInt() *big.Int {
	return f.inner.ToBig()
}

// Hex returns the canonical "0x"-prefixed, zero-trimmed hex representation.
func (f Felt) Hex() string {
	return f.inner.Hex()
}

// String implements fmt.Stringer.
func (f Felt) String() string { return f.Hex() }

// IsZero reports whether f is the additive identity.
func (f Felt) IsZero() bool { return f.inner.IsZero() }

// Equal reports whether f and g represent the same field element.
func (f Felt) Equal(g Felt) bool { return f.inner.Eq(&g.inner) }

// Add returns f + g mod P.
func (f Felt) Add(g Felt) Felt {
	var out Felt
	out.inner.AddMod(&f.inner, &g.inner, modulusU256)
	return out
}

// Sub returns f - g mod P.
func (f Felt) Sub(g Felt) Felt {
	var out Felt
	// uint256 has no native SubMod; emulate via add of the negation.
	var neg uint256.Int
	neg.Sub(modulusU256, &g.inner)
	if g.inner.IsZero() {
		neg.Clear()
	}
	out.inner.AddMod(&f.inner, &neg, modulusU256)
	return out
}

// Mul returns f * g mod P.
func (f Felt) Mul(g Felt) Felt {
	var out Felt
	out.inner.MulMod(&f.inner, &g.inner, modulusU256)
	return out
}

// Inv returns the multiplicative inverse of f mod P, via Fermat's little
// theorem (f^(P-2) mod P). Panics if f is zero. uint256 has no modular
// exponentiation against an arbitrary modulus, so this one operation falls
// back to math/big; see DESIGN.md.
func (f Felt) Inv() Felt {
	if f.IsZero() {
		panic("felt: inverse of zero")
	}
	exp := new(big.Int).Sub(modulus, big.NewInt(2))
	r := new(big.Int).Exp(f.BigInt(), exp, modulus)
	return FromBigInt(r)
}

// Bit returns the i-th bit of the 251-bit key representation, MSB-first
// (i == 0 is the most significant of the 251 bits). Used by the trie engine
// to walk keys one level at a time.
func (f Felt) Bit(i int) uint8 {
	b := f.inner.Bytes32()
	// b[0] holds the most significant byte of the 256-bit word; the 251-bit
	// key lives in the low 251 bits, i.e. starting at overall bit offset 5
	// within b[0] is unused padding (256-251=5 leading zero bits).
	bitFromTop := 5 + i
	byteIdx := bitFromTop / 8
	bitInByte := 7 - (bitFromTop % 8)
	return (b[byteIdx] >> bitInByte) & 1
}

// Modulus returns a copy of the field modulus P.
func Modulus() *big.Int {
	return new(big.Int).Set(modulus)
}
