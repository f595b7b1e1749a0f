// Package txn implements the StarkNet transaction hash formulas: one
// tagged variant per (type, version) pair, each folding its fields into
// either the Pedersen hash chain (v0-v2, Deploy, L1Handler) or the
// Poseidon hasher (v3), exactly as specified by the network.
package txn

import (
	"github.com/eth2030/starknet-core/felt"
	"github.com/eth2030/starknet-core/starkhash"
)

// Kind tags the transaction variant. All variants share the Transaction
// struct, so a value also carries fields its own hash formula ignores.
type Kind uint8

const (
	DeclareV0 Kind = iota
	DeclareV1
	DeclareV2
	DeclareV3
	Deploy
	DeployAccountV0V1
	DeployAccountV3
	InvokeV0
	InvokeV1
	InvokeV3
	L1HandlerV0
)

// ResourceBound is one entry of a v3 transaction's resource bounds.
type ResourceBound struct {
	MaxAmount        uint64
	MaxPricePerUnit  [16]byte // uint128, big-endian
}

// ResourceBounds carries both resource kinds a v3 transaction bounds.
type ResourceBounds struct {
	L1Gas ResourceBound
	L2Gas ResourceBound
}

// DAMode is a data-availability mode selector (L1 = 0, L2 = 1).
type DAMode uint32

const (
	DAModeL1 DAMode = 0
	DAModeL2 DAMode = 1
)

// Transaction holds the union of every field any variant's hash formula
// needs; Kind selects which subset is meaningful.
type Transaction struct {
	Kind Kind

	Version         uint64
	SenderAddress   felt.Felt // also used as contract_address / sender
	EntryPoint      felt.Felt // zero if absent
	Calldata        []felt.Felt
	ConstructorCalldata []felt.Felt
	MaxFee          felt.Felt // zero if absent
	Nonce           felt.Felt
	ClassHash       felt.Felt
	CompiledClassHash felt.Felt
	ContractAddressSalt felt.Felt
	AccountDeploymentData []felt.Felt

	Tip                uint64
	PaymasterData      []felt.Felt
	NonceDAMode        DAMode
	FeeDAMode          DAMode
	ResourceBounds     ResourceBounds

	// TransactionHash is the network-asserted hash; Verify compares it
	// against the recomputed value, following the legacy-fallback chain
	// for the variants that have one.
	TransactionHash felt.Felt
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Match    bool
	Computed felt.Felt
}

// chainPrefix converts an ASCII transaction-type prefix into a Felt, the
// same way the network treats it as a big-endian byte string.
func chainPrefix(s string) felt.Felt {
	return felt.FromBytesBE([]byte(s))
}

// hashList folds a slice of field elements through a Pedersen hash chain.
func hashList(elems []felt.Felt) felt.Felt {
	var hc starkhash.HashChain
	for _, e := range elems {
		hc.Update(e)
	}
	return hc.Finalize()
}

// poseidonList folds a slice of field elements through a Poseidon sponge.
func poseidonList(elems []felt.Felt) felt.Felt {
	h := starkhash.NewPoseidonHasher()
	for _, e := range elems {
		h.Write(e)
	}
	return h.Finish()
}

// computeTxnHash is the generic v0-v2 formula: prefix, version, address,
// entry-point-selector-or-zero, payload-list-hash, max-fee-or-zero,
// chain id, then optionally nonce-or-class-hash and compiled-class-hash.
// An absent optional slot folds nothing into the chain — the element is
// skipped entirely, which also keeps it out of the finalizing count.
func computeTxnHash(prefix string, version uint64, address, entryPoint, listHash, maxFee, chainID felt.Felt, hasNonceOrClassHash bool, nonceOrClassHash felt.Felt, hasCompiledClassHash bool, compiledClassHash felt.Felt) felt.Felt {
	var hc starkhash.HashChain
	hc.Update(chainPrefix(prefix))
	hc.Update(felt.FromUint64(version))
	hc.Update(address)
	hc.Update(entryPoint)
	hc.Update(listHash)
	hc.Update(maxFee)
	hc.Update(chainID)
	if hasNonceOrClassHash {
		hc.Update(nonceOrClassHash)
	}
	if hasCompiledClassHash {
		hc.Update(compiledClassHash)
	}
	return hc.Finalize()
}

// legacyComputeTxnHash is the older, pre-0.8-ish generic formula used as a
// fallback for Deploy, Invoke v0, and L1Handler when the primary formula's
// result does not match the network-asserted hash.
func legacyComputeTxnHash(prefix string, address, entryPoint, listHash, chainID felt.Felt, additionalData *felt.Felt) felt.Felt {
	var hc starkhash.HashChain
	hc.Update(chainPrefix(prefix))
	hc.Update(address)
	hc.Update(entryPoint)
	hc.Update(listHash)
	hc.Update(chainID)
	if additionalData != nil {
		hc.Update(*additionalData)
	}
	return hc.Finalize()
}

// constructorSelector is sn_keccak("constructor"), used by the Deploy
// transaction's legacy fallback and its primary formula alike.
var constructorSelector = starkhash.SNKeccak([]byte("constructor"))

// Compute returns the transaction hash for tx under chainID. Variants
// with historical fallbacks (Deploy, Invoke v0, L1Handler) compare each
// formula's result against tx.TransactionHash in order — modern first,
// then the legacy variants — and return the first match; when none
// matches (or no asserted hash is set) the modern formula's result is
// returned.
func Compute(tx *Transaction, chainID felt.Felt) felt.Felt {
	switch tx.Kind {
	case DeclareV0:
		return computeTxnHash("declare", 0, tx.SenderAddress, felt.Zero, hashList(nil), felt.Zero, chainID, true, tx.ClassHash, false, felt.Felt{})
	case DeclareV1:
		listHash := hashList([]felt.Felt{tx.ClassHash})
		return computeTxnHash("declare", 1, tx.SenderAddress, felt.Zero, listHash, tx.MaxFee, chainID, true, tx.Nonce, false, felt.Felt{})
	case DeclareV2:
		listHash := hashList([]felt.Felt{tx.ClassHash})
		return computeTxnHash("declare", 2, tx.SenderAddress, felt.Zero, listHash, tx.MaxFee, chainID, true, tx.Nonce, true, tx.CompiledClassHash)
	case DeclareV3:
		specific := []felt.Felt{
			poseidonList(tx.AccountDeploymentData),
			tx.ClassHash,
			tx.CompiledClassHash,
		}
		return computeV3TxnHash("declare", 3, tx.SenderAddress, chainID, tx.Nonce, specific, tx.Tip, tx.PaymasterData, tx.NonceDAMode, tx.FeeDAMode, tx.ResourceBounds)
	case Deploy:
		listHash := hashList(tx.ConstructorCalldata)
		primary := computeTxnHash("deploy", tx.Version, tx.SenderAddress, constructorSelector, listHash, felt.Zero, chainID, false, felt.Felt{}, false, felt.Felt{})
		if primary.Equal(tx.TransactionHash) || tx.TransactionHash.IsZero() {
			return primary
		}
		if legacy := legacyComputeTxnHash("deploy", tx.SenderAddress, constructorSelector, listHash, chainID, nil); legacy.Equal(tx.TransactionHash) {
			return legacy
		}
		return primary
	case DeployAccountV0V1:
		var hc starkhash.HashChain
		hc.Update(tx.ClassHash)
		hc.Update(tx.ContractAddressSalt)
		for _, e := range tx.ConstructorCalldata {
			hc.Update(e)
		}
		listHash := hc.Finalize()
		return computeTxnHash("deploy_account", tx.Version, tx.SenderAddress, felt.Zero, listHash, tx.MaxFee, chainID, true, tx.Nonce, false, felt.Felt{})
	case DeployAccountV3:
		specific := []felt.Felt{
			poseidonList(tx.ConstructorCalldata),
			tx.ClassHash,
			tx.ContractAddressSalt,
		}
		return computeV3TxnHash("deploy_account", 3, tx.SenderAddress, chainID, tx.Nonce, specific, tx.Tip, tx.PaymasterData, tx.NonceDAMode, tx.FeeDAMode, tx.ResourceBounds)
	case InvokeV0:
		listHash := hashList(tx.Calldata)
		primary := computeTxnHash("invoke", 0, tx.SenderAddress, tx.EntryPoint, listHash, tx.MaxFee, chainID, false, felt.Felt{}, false, felt.Felt{})
		if primary.Equal(tx.TransactionHash) || tx.TransactionHash.IsZero() {
			return primary
		}
		if legacy := legacyComputeTxnHash("invoke", tx.SenderAddress, tx.EntryPoint, listHash, chainID, nil); legacy.Equal(tx.TransactionHash) {
			return legacy
		}
		return primary
	case InvokeV1:
		listHash := hashList(tx.Calldata)
		return computeTxnHash("invoke", 1, tx.SenderAddress, felt.Zero, listHash, tx.MaxFee, chainID, true, tx.Nonce, false, felt.Felt{})
	case InvokeV3:
		specific := []felt.Felt{
			poseidonList(tx.AccountDeploymentData),
			poseidonList(tx.Calldata),
		}
		return computeV3TxnHash("invoke", 3, tx.SenderAddress, chainID, tx.Nonce, specific, tx.Tip, tx.PaymasterData, tx.NonceDAMode, tx.FeeDAMode, tx.ResourceBounds)
	case L1HandlerV0:
		listHash := hashList(tx.Calldata)
		primary := computeTxnHash("l1_handler", tx.Version, tx.SenderAddress, tx.EntryPoint, listHash, felt.Zero, chainID, true, tx.Nonce, false, felt.Felt{})
		if primary.Equal(tx.TransactionHash) || tx.TransactionHash.IsZero() {
			return primary
		}
		// Starknet 0.7 L1 handlers used a plain nonce in the legacy formula.
		nonce := tx.Nonce
		if legacy := legacyComputeTxnHash("l1_handler", tx.SenderAddress, tx.EntryPoint, listHash, chainID, &nonce); legacy.Equal(tx.TransactionHash) {
			return legacy
		}
		// Oldest L1 handlers were served as plain Invokes before the type existed.
		if legacy := legacyComputeTxnHash("invoke", tx.SenderAddress, tx.EntryPoint, listHash, chainID, nil); legacy.Equal(tx.TransactionHash) {
			return legacy
		}
		return primary
	}
	panic("txn: unknown transaction kind")
}

// Verify recomputes tx's hash under chainID and compares it against
// tx.TransactionHash.
func Verify(tx *Transaction, chainID felt.Felt) VerifyResult {
	computed := Compute(tx, chainID)
	return VerifyResult{Match: computed.Equal(tx.TransactionHash), Computed: computed}
}

const daModeBits = 32

// computeV3TxnHash is the generic v3 formula, folding fee-related fields,
// paymaster data, chain id, nonce, the DA-mode concatenation, and the
// variant-specific data through a single Poseidon sponge.
func computeV3TxnHash(prefix string, version uint64, senderAddress, chainID, nonce felt.Felt, specific []felt.Felt, tip uint64, paymasterData []felt.Felt, nonceDAMode, feeDAMode DAMode, bounds ResourceBounds) felt.Felt {
	feeFieldsHash := hashFeeRelatedFields(tip, bounds)
	daModeConcat := (uint64(nonceDAMode) << daModeBits) + uint64(feeDAMode)

	h := starkhash.NewPoseidonHasher()
	h.Write(chainPrefix(prefix))
	h.Write(felt.FromUint64(version))
	h.Write(senderAddress)
	h.Write(feeFieldsHash)
	h.Write(poseidonList(paymasterData))
	h.Write(chainID)
	h.Write(nonce)
	h.Write(felt.FromUint64(daModeConcat))
	for _, e := range specific {
		h.Write(e)
	}
	return h.Finish()
}

// hashFeeRelatedFields folds the tip and both resource bounds (L1_GAS,
// L2_GAS) through a Poseidon sponge.
func hashFeeRelatedFields(tip uint64, bounds ResourceBounds) felt.Felt {
	h := starkhash.NewPoseidonHasher()
	h.Write(felt.FromUint64(tip))
	h.Write(flattenedBounds("L1_GAS", bounds.L1Gas))
	h.Write(flattenedBounds("L2_GAS", bounds.L2Gas))
	return h.Finish()
}

// flattenedBounds packs a resource bound's name, max amount, and max price
// per unit into a single 32-byte field element: 8 bytes of zero-padded
// ASCII name, 8 bytes big-endian max amount, 16 bytes big-endian max price.
func flattenedBounds(resourceName string, bound ResourceBound) felt.Felt {
	var b [32]byte
	copy(b[16:32], bound.MaxPricePerUnit[:])
	var amount [8]byte
	v := bound.MaxAmount
	for i := 7; i >= 0; i-- {
		amount[i] = byte(v)
		v >>= 8
	}
	copy(b[8:16], amount[:])

	nameBytes := []byte(resourceName)
	padding := 8 - len(nameBytes)
	copy(b[padding:8], nameBytes)

	return felt.FromBytesBE(b[:])
}
