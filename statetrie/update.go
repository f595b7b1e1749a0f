package statetrie

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/eth2030/starknet-core/felt"
	"github.com/eth2030/starknet-core/nodestore"
)

// StateUpdate is the per-block state diff the commitment tries consume: the
// storage writes, nonce updates, deployments, class replacements, and class
// declarations a block carries.
type StateUpdate struct {
	// StorageDiffs maps contract address -> storage address -> new value.
	// A zero value clears the slot.
	StorageDiffs map[felt.Felt]map[felt.Felt]felt.Felt
	// NonceUpdates maps contract address -> new nonce.
	NonceUpdates map[felt.Felt]felt.Felt
	// DeployedContracts maps a freshly deployed contract address to its
	// class hash.
	DeployedContracts map[felt.Felt]felt.Felt
	// ReplacedClasses maps an existing contract address to its new class
	// hash.
	ReplacedClasses map[felt.Felt]felt.Felt
	// DeclaredClasses maps class hash -> compiled class hash for classes
	// declared in this block.
	DeclaredClasses map[felt.Felt]felt.Felt
}

// ContractReader supplies the per-contract fields a partial diff does not
// carry: the class hash and nonce of contracts the block touches without
// redeploying. The node store's schema keys state by block, not by
// contract, so this lookup belongs to whoever tracks contract metadata
// (typically the sync layer, from the updates it has already applied).
type ContractReader interface {
	ContractClassHash(contract felt.Felt) (felt.Felt, error)
	ContractNonce(contract felt.Felt) (felt.Felt, error)
}

// MapContractReader is a ContractReader backed by plain maps; contracts
// absent from either map report zero. Useful for tests and for callers that
// fold updates in memory.
type MapContractReader struct {
	ClassHashes map[felt.Felt]felt.Felt
	Nonces      map[felt.Felt]felt.Felt
}

func (m *MapContractReader) ContractClassHash(contract felt.Felt) (felt.Felt, error) {
	return m.ClassHashes[contract], nil
}

func (m *MapContractReader) ContractNonce(contract felt.Felt) (felt.Felt, error) {
	return m.Nonces[contract], nil
}

// Applier folds per-block state updates into the commitment tries and
// records every resulting root index and state hash in the node store. One
// applier instance mutates one trie family lineage at a time; concurrent
// Apply calls for the same store are a contract violation.
type Applier struct {
	store  *nodestore.Store
	reader ContractReader
}

// NewApplier builds an Applier over store, resolving untouched contract
// fields through reader.
func NewApplier(store *nodestore.Store, reader ContractReader) *Applier {
	return &Applier{store: store, reader: reader}
}

// Apply commits upd as block number's state transition and returns the
// resulting storage and class commitments. The storage commitment is the
// global trie root after every storage write, nonce update, and
// deployment/class replacement in upd; the class commitment is zero until
// the first class declaration creates the class trie.
func (a *Applier) Apply(number uint64, upd *StateUpdate) (storageCommitment, classCommitment felt.Felt, err error) {
	if upd == nil {
		return felt.Felt{}, felt.Felt{}, errors.New("statetrie: nil state update")
	}

	global, err := a.openGlobal(number)
	if err != nil {
		return felt.Felt{}, felt.Felt{}, err
	}

	for _, contract := range touchedContracts(upd) {
		stateHash, err := a.applyContract(number, contract, upd)
		if err != nil {
			return felt.Felt{}, felt.Felt{}, fmt.Errorf("statetrie: contract %s: %w", contract.Hex(), err)
		}
		if err := global.SetContract(contract, stateHash); err != nil {
			return felt.Felt{}, felt.Felt{}, err
		}
		if err := a.store.SetContractStateHash(contract, number, stateHash); err != nil {
			return felt.Felt{}, felt.Felt{}, err
		}
	}

	globalIndex, globalRoot, err := global.Commit()
	if err != nil {
		return felt.Felt{}, felt.Felt{}, err
	}
	if !globalRoot.IsZero() {
		if err := a.store.SetStorageRoot(number, globalIndex); err != nil {
			return felt.Felt{}, felt.Felt{}, err
		}
	}

	classRoot, err := a.applyClasses(number, upd)
	if err != nil {
		return felt.Felt{}, felt.Felt{}, err
	}
	return globalRoot, classRoot, nil
}

// applyContract replays one contract's slice of the diff into its storage
// trie and returns the new contract-state-hash leaf for the global trie.
func (a *Applier) applyContract(number uint64, contract felt.Felt, upd *StateUpdate) (felt.Felt, error) {
	tree, err := a.openContract(contract, number)
	if err != nil {
		return felt.Felt{}, err
	}
	diffs := upd.StorageDiffs[contract]
	for _, slot := range sortedKeys(diffs) {
		if err := tree.Set(slot, diffs[slot]); err != nil {
			return felt.Felt{}, err
		}
	}
	index, root, err := tree.Commit()
	if err != nil {
		return felt.Felt{}, err
	}
	if !root.IsZero() {
		if err := a.store.SetContractRoot(contract, number, index); err != nil {
			return felt.Felt{}, err
		}
	}

	classHash, deployed, err := a.classHashOf(contract, upd)
	if err != nil {
		return felt.Felt{}, err
	}
	nonce, ok := upd.NonceUpdates[contract]
	if !ok && !deployed {
		if nonce, err = a.reader.ContractNonce(contract); err != nil {
			return felt.Felt{}, err
		}
	}
	return ContractStateHash(classHash, root, nonce), nil
}

// classHashOf resolves a touched contract's class hash from the diff
// itself, falling back to the reader for contracts the block neither
// deploys nor migrates. The second result reports a fresh deployment,
// whose nonce starts at zero without consulting the reader.
func (a *Applier) classHashOf(contract felt.Felt, upd *StateUpdate) (felt.Felt, bool, error) {
	if ch, ok := upd.DeployedContracts[contract]; ok {
		return ch, true, nil
	}
	if ch, ok := upd.ReplacedClasses[contract]; ok {
		return ch, false, nil
	}
	ch, err := a.reader.ContractClassHash(contract)
	return ch, false, err
}

// applyClasses folds the block's class declarations into the class
// commitment trie. Before the first declaration ever seen, no class trie
// exists and the commitment stays zero (pre-0.11 behavior).
func (a *Applier) applyClasses(number uint64, upd *StateUpdate) (felt.Felt, error) {
	index, hash, has, err := a.prevRoot(number, a.store.GetClassRoot, nodestore.ClassTrie)
	if err != nil {
		return felt.Felt{}, err
	}
	if !has && len(upd.DeclaredClasses) == 0 {
		return felt.Zero, nil
	}

	tree := OpenClassCommitment(a.store, index, hash, has)
	for _, class := range sortedKeys(upd.DeclaredClasses) {
		compiled := upd.DeclaredClasses[class]
		if err := tree.SetClass(class, compiled); err != nil {
			return felt.Felt{}, err
		}
		if err := a.store.SetClassCommitmentLeaf(class, number, ClassCommitmentLeaf(compiled)); err != nil {
			return felt.Felt{}, err
		}
	}
	newIndex, root, err := tree.Commit()
	if err != nil {
		return felt.Felt{}, err
	}
	if !root.IsZero() {
		if err := a.store.SetClassRoot(number, newIndex); err != nil {
			return felt.Felt{}, err
		}
	}
	return root, nil
}

func (a *Applier) openGlobal(number uint64) (*StorageCommitmentTree, error) {
	index, hash, has, err := a.prevRoot(number, a.store.GetStorageRoot, nodestore.StorageTrie)
	if err != nil {
		return nil, err
	}
	return OpenStorageCommitment(a.store, index, hash, has), nil
}

func (a *Applier) openContract(contract felt.Felt, number uint64) (*ContractsStorageTree, error) {
	if number == 0 {
		return OpenContractStorage(a.store, 0, felt.Felt{}, false), nil
	}
	index, has, err := a.store.ContractRootAt(contract, number-1)
	if err != nil {
		return nil, err
	}
	if !has {
		return OpenContractStorage(a.store, 0, felt.Felt{}, false), nil
	}
	hash, err := a.store.GetTrieNodeHash(nodestore.ContractTrie, index)
	if err != nil {
		return nil, err
	}
	return OpenContractStorage(a.store, index, hash, true), nil
}

// prevRoot fetches the root recorded for the previous block through lookup,
// resolving its cached hash; absence means the trie starts empty here.
func (a *Applier) prevRoot(number uint64, lookup func(uint64) (uint64, error), family nodestore.TrieFamily) (uint64, felt.Felt, bool, error) {
	if number == 0 {
		return 0, felt.Felt{}, false, nil
	}
	index, err := lookup(number - 1)
	if errors.Is(err, nodestore.ErrNotFound) {
		return 0, felt.Felt{}, false, nil
	}
	if err != nil {
		return 0, felt.Felt{}, false, err
	}
	hash, err := a.store.GetTrieNodeHash(family, index)
	if err != nil {
		return 0, felt.Felt{}, false, err
	}
	return index, hash, true, nil
}

// touchedContracts returns every contract address upd mentions, in
// deterministic byte order.
func touchedContracts(upd *StateUpdate) []felt.Felt {
	set := make(map[felt.Felt]struct{})
	for c := range upd.StorageDiffs {
		set[c] = struct{}{}
	}
	for c := range upd.NonceUpdates {
		set[c] = struct{}{}
	}
	for c := range upd.DeployedContracts {
		set[c] = struct{}{}
	}
	for c := range upd.ReplacedClasses {
		set[c] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys[V any](m map[felt.Felt]V) []felt.Felt {
	keys := make([]felt.Felt, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i].Bytes(), keys[j].Bytes()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return keys
}
