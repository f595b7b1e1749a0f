// Package statetrie binds the generic 251-bit trie engine to the two
// commitments that make up StarkNet state: per-contract storage and the
// global state trie, plus the supplemented class-commitment trie needed to
// make the post-0.11 state_commitment invariant computable.
package statetrie

import (
	"github.com/eth2030/starknet-core/felt"
	"github.com/eth2030/starknet-core/nodestore"
	"github.com/eth2030/starknet-core/starkhash"
	"github.com/eth2030/starknet-core/trie"
)

// ContractsStorageTree is the per-contract storage trie: key = storage
// address, value = storage value.
type ContractsStorageTree struct {
	t *trie.Trie
}

// OpenContractStorage loads (or creates, if hasRoot is false) a contract's
// storage trie.
func OpenContractStorage(store trie.Store, rootIndex uint64, rootHash felt.Felt, hasRoot bool) *ContractsStorageTree {
	return &ContractsStorageTree{t: trie.New(store, nodestore.ContractTrie, rootIndex, rootHash, hasRoot)}
}

func (c *ContractsStorageTree) Get(key felt.Felt) (felt.Felt, error)      { return c.t.Get(key) }
func (c *ContractsStorageTree) Set(key, value felt.Felt) error            { return c.t.Set(key, value) }
func (c *ContractsStorageTree) Root() felt.Felt                          { return c.t.Root() }
func (c *ContractsStorageTree) Commit() (uint64, felt.Felt, error)       { return c.t.Commit() }

// StorageCommitmentTree is the global state trie: key = contract address,
// value = contract-state-hash.
type StorageCommitmentTree struct {
	t *trie.Trie
}

// OpenStorageCommitment loads (or creates) the global state trie.
func OpenStorageCommitment(store trie.Store, rootIndex uint64, rootHash felt.Felt, hasRoot bool) *StorageCommitmentTree {
	return &StorageCommitmentTree{t: trie.New(store, nodestore.StorageTrie, rootIndex, rootHash, hasRoot)}
}

// SetContract records a contract's state hash at its address.
func (s *StorageCommitmentTree) SetContract(address felt.Felt, stateHash felt.Felt) error {
	return s.t.Set(address, stateHash)
}

func (s *StorageCommitmentTree) GetContract(address felt.Felt) (felt.Felt, error) {
	return s.t.Get(address)
}

func (s *StorageCommitmentTree) Root() felt.Felt                   { return s.t.Root() }
func (s *StorageCommitmentTree) Commit() (uint64, felt.Felt, error) { return s.t.Commit() }

// ContractStateHash computes the leaf value the global trie stores for a
// contract: Pedersen(Pedersen(Pedersen(class_hash, storage_root), nonce), 0).
func ContractStateHash(classHash, storageRoot, nonce felt.Felt) felt.Felt {
	h := starkhash.Pedersen(classHash, storageRoot)
	h = starkhash.Pedersen(h, nonce)
	return starkhash.Pedersen(h, felt.Zero)
}

// ClassCommitmentTree is the class-commitment trie: key = class hash,
// value = the per-class Pedersen commitment leaf (ClassCommitmentLeaf). Pre-0.11
// blocks never instantiate one; callers treat class_commitment as zero.
type ClassCommitmentTree struct {
	t *trie.Trie
}

// OpenClassCommitment loads (or creates) the class-commitment trie.
func OpenClassCommitment(store trie.Store, rootIndex uint64, rootHash felt.Felt, hasRoot bool) *ClassCommitmentTree {
	return &ClassCommitmentTree{t: trie.New(store, nodestore.ClassTrie, rootIndex, rootHash, hasRoot)}
}

// SetClass records a class's commitment leaf at its class hash.
func (c *ClassCommitmentTree) SetClass(classHash felt.Felt, compiledClassHash felt.Felt) error {
	return c.t.Set(classHash, ClassCommitmentLeaf(compiledClassHash))
}

func (c *ClassCommitmentTree) GetClass(classHash felt.Felt) (felt.Felt, error) {
	return c.t.Get(classHash)
}

func (c *ClassCommitmentTree) Root() felt.Felt                   { return c.t.Root() }
func (c *ClassCommitmentTree) Commit() (uint64, felt.Felt, error) { return c.t.Commit() }

var classLeafPrefix = felt.FromBytesBE([]byte("CONTRACT_CLASS_LEAF_V0"))

// ClassCommitmentLeaf computes the per-class commitment leaf value:
// Pedersen('CONTRACT_CLASS_LEAF_V0', compiled_class_hash).
func ClassCommitmentLeaf(compiledClassHash felt.Felt) felt.Felt {
	return starkhash.Pedersen(classLeafPrefix, compiledClassHash)
}

// StateCommitment combines the two top-level commitments per the data
// model invariant: Pedersen(storage, class) from version 0.11 onward, or
// simply storage for pre-0.11 blocks (class_commitment absent/zero).
func StateCommitment(storageCommitment, classCommitment felt.Felt, hasClassTrie bool) felt.Felt {
	if !hasClassTrie {
		return storageCommitment
	}
	return starkhash.Pedersen(storageCommitment, classCommitment)
}
