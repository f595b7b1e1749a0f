package statetrie

import (
	"testing"

	"github.com/eth2030/starknet-core/felt"
	"github.com/eth2030/starknet-core/nodestore"
)

func newApplierStore() *nodestore.Store {
	return nodestore.NewStore(nodestore.NewMemDB())
}

// expectedSingleContractRoot rebuilds, on a scratch store, the global root
// for one contract holding the given storage and metadata.
func expectedSingleContractRoot(t *testing.T, contract, classHash, nonce felt.Felt, storage map[felt.Felt]felt.Felt) felt.Felt {
	t.Helper()
	scratch := newApplierStore()
	tree := OpenContractStorage(scratch, 0, felt.Felt{}, false)
	for slot, value := range storage {
		if err := tree.Set(slot, value); err != nil {
			t.Fatalf("scratch Set: %v", err)
		}
	}
	_, root, err := tree.Commit()
	if err != nil {
		t.Fatalf("scratch contract Commit: %v", err)
	}
	global := OpenStorageCommitment(scratch, 0, felt.Felt{}, false)
	if err := global.SetContract(contract, ContractStateHash(classHash, root, nonce)); err != nil {
		t.Fatalf("scratch SetContract: %v", err)
	}
	_, globalRoot, err := global.Commit()
	if err != nil {
		t.Fatalf("scratch global Commit: %v", err)
	}
	return globalRoot
}

func TestApplyDeployWithStorage(t *testing.T) {
	store := newApplierStore()
	applier := NewApplier(store, &MapContractReader{})

	contract := felt.FromUint64(0xC0)
	classHash := felt.FromUint64(0xC1A55)
	slotA, slotB := felt.FromUint64(1), felt.FromUint64(2)

	storageRoot, classRoot, err := applier.Apply(0, &StateUpdate{
		DeployedContracts: map[felt.Felt]felt.Felt{contract: classHash},
		StorageDiffs: map[felt.Felt]map[felt.Felt]felt.Felt{
			contract: {slotA: felt.FromUint64(10), slotB: felt.FromUint64(20)},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !classRoot.IsZero() {
		t.Fatalf("class commitment = %s, want zero before any declaration", classRoot.Hex())
	}

	want := expectedSingleContractRoot(t, contract, classHash, felt.Zero, map[felt.Felt]felt.Felt{
		slotA: felt.FromUint64(10), slotB: felt.FromUint64(20),
	})
	if !storageRoot.Equal(want) {
		t.Fatalf("storage commitment = %s, want %s", storageRoot.Hex(), want.Hex())
	}

	if _, err := store.GetStorageRoot(0); err != nil {
		t.Fatalf("GetStorageRoot(0): %v", err)
	}
	if _, _, err := applier.store.ContractRootAt(contract, 0); err != nil {
		t.Fatalf("ContractRootAt: %v", err)
	}
}

// TestApplyAcrossBlocks replays a two-block history and checks the block-1
// commitment equals a from-scratch build of the cumulative state (the
// rebuild-equality property).
func TestApplyAcrossBlocks(t *testing.T) {
	store := newApplierStore()
	contract := felt.FromUint64(0xC0)
	classHash := felt.FromUint64(0xC1A55)
	slotA, slotB := felt.FromUint64(1), felt.FromUint64(2)

	reader := &MapContractReader{
		ClassHashes: map[felt.Felt]felt.Felt{contract: classHash},
	}
	applier := NewApplier(store, reader)

	if _, _, err := applier.Apply(0, &StateUpdate{
		DeployedContracts: map[felt.Felt]felt.Felt{contract: classHash},
		StorageDiffs: map[felt.Felt]map[felt.Felt]felt.Felt{
			contract: {slotA: felt.FromUint64(10), slotB: felt.FromUint64(20)},
		},
	}); err != nil {
		t.Fatalf("Apply(0): %v", err)
	}

	storageRoot, _, err := applier.Apply(1, &StateUpdate{
		StorageDiffs: map[felt.Felt]map[felt.Felt]felt.Felt{
			contract: {slotA: felt.FromUint64(55)},
		},
		NonceUpdates: map[felt.Felt]felt.Felt{contract: felt.One},
	})
	if err != nil {
		t.Fatalf("Apply(1): %v", err)
	}

	want := expectedSingleContractRoot(t, contract, classHash, felt.One, map[felt.Felt]felt.Felt{
		slotA: felt.FromUint64(55), slotB: felt.FromUint64(20),
	})
	if !storageRoot.Equal(want) {
		t.Fatalf("block-1 storage commitment = %s, want cumulative rebuild %s", storageRoot.Hex(), want.Hex())
	}

	// The contract's block-0 root is still reachable through the ranged
	// lookup even though block 1 wrote a newer row.
	if _, has, err := store.ContractRootAt(contract, 0); err != nil || !has {
		t.Fatalf("ContractRootAt(contract, 0) = has=%v, err=%v; want a block-0 row", has, err)
	}
	idx1, has, err := store.ContractRootAt(contract, 10)
	if err != nil || !has {
		t.Fatalf("ContractRootAt(contract, 10) = has=%v, err=%v", has, err)
	}
	exact, err := store.GetContractRoot(contract, 1)
	if err != nil || idx1 != exact {
		t.Fatalf("ranged lookup = %d, exact block-1 row = %d (err %v)", idx1, exact, err)
	}
}

func TestApplyClearedSlotMatchesNeverWritten(t *testing.T) {
	store := newApplierStore()
	contract := felt.FromUint64(0xC0)
	classHash := felt.FromUint64(0xC1A55)
	slotA, slotB := felt.FromUint64(1), felt.FromUint64(2)

	applier := NewApplier(store, &MapContractReader{
		ClassHashes: map[felt.Felt]felt.Felt{contract: classHash},
	})

	if _, _, err := applier.Apply(0, &StateUpdate{
		DeployedContracts: map[felt.Felt]felt.Felt{contract: classHash},
		StorageDiffs: map[felt.Felt]map[felt.Felt]felt.Felt{
			contract: {slotA: felt.FromUint64(10), slotB: felt.FromUint64(20)},
		},
	}); err != nil {
		t.Fatalf("Apply(0): %v", err)
	}
	storageRoot, _, err := applier.Apply(1, &StateUpdate{
		StorageDiffs: map[felt.Felt]map[felt.Felt]felt.Felt{
			contract: {slotB: felt.Zero},
		},
	})
	if err != nil {
		t.Fatalf("Apply(1): %v", err)
	}

	want := expectedSingleContractRoot(t, contract, classHash, felt.Zero, map[felt.Felt]felt.Felt{
		slotA: felt.FromUint64(10),
	})
	if !storageRoot.Equal(want) {
		t.Fatalf("commitment after clearing slotB = %s, want %s (slot never written)", storageRoot.Hex(), want.Hex())
	}
}

func TestApplyDeclaredClasses(t *testing.T) {
	store := newApplierStore()
	applier := NewApplier(store, &MapContractReader{})

	class := felt.FromUint64(0xABC)
	compiled := felt.FromUint64(0xDEF)

	storageRoot, classRoot, err := applier.Apply(0, &StateUpdate{
		DeclaredClasses: map[felt.Felt]felt.Felt{class: compiled},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !storageRoot.IsZero() {
		t.Fatalf("storage commitment = %s, want zero for a declare-only block", storageRoot.Hex())
	}
	if classRoot.IsZero() {
		t.Fatalf("class commitment should be non-zero after a declaration")
	}

	index, err := store.GetClassRoot(0)
	if err != nil {
		t.Fatalf("GetClassRoot(0): %v", err)
	}
	hash, err := store.GetTrieNodeHash(nodestore.ClassTrie, index)
	if err != nil {
		t.Fatalf("GetTrieNodeHash: %v", err)
	}
	tree := OpenClassCommitment(store, index, hash, true)
	leaf, err := tree.GetClass(class)
	if err != nil {
		t.Fatalf("GetClass: %v", err)
	}
	if !leaf.Equal(ClassCommitmentLeaf(compiled)) {
		t.Fatalf("class leaf = %s, want %s", leaf.Hex(), ClassCommitmentLeaf(compiled).Hex())
	}
}
