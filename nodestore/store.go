package nodestore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eth2030/starknet-core/felt"
)

var errCorruptHeader = errors.New("nodestore: corrupt header record")

// TrieNode is the encoded form of a stored trie node (trie package owns the
// tagged representation; the store only ever sees opaque bytes plus the
// cached hash it is keyed alongside).
type TrieNode struct {
	Encoded []byte
	Hash    felt.Felt
}

// Store is the node store: append-only trie node storage, header and
// canonical indices, per-block commitment root indices, and class
// definitions, plus the purge operation that tears a block's rows back
// out again.
//
// Every exported method that mutates state, except NextTrieIndex (which
// allocates under its own trie-index lock), takes out the single
// store-wide write lock: writes acquire an exclusive transaction and nested
// transactions are disallowed. Reads use the underlying KeyValueIterator
// directly and are safe to call concurrently with each other.
type Store struct {
	db Database

	mu sync.Mutex // serializes writers

	trieIdxMu sync.Mutex
	trieIdx   map[TrieFamily]uint64 // in-memory cache of the next free index per family
}

// NewStore wraps db with the node store's logical schema.
func NewStore(db Database) *Store {
	return &Store{db: db, trieIdx: make(map[TrieFamily]uint64)}
}

// ---- headers ----

// InsertHeader writes a new header, interning its starknet_version string
// if present. Callers must serialize concurrent inserts for the same
// block number themselves; the store does not re-check this.
func (s *Store) InsertHeader(h *Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versionID, err := s.internVersionLocked(h.StarknetVersion)
	if err != nil {
		return fmt.Errorf("nodestore: intern version: %w", err)
	}

	b := s.db.NewBatch()
	hashBytes := h.Hash.Bytes()
	b.Put(headerKey(h.Number), h.encode(versionID))
	b.Put(headerHashKey(hashBytes), encodeUint64(h.Number))
	return b.Write()
}

// HeaderByNumber looks up a header by block number.
func (s *Store) HeaderByNumber(number uint64) (*Header, error) {
	buf, err := s.db.Get(headerKey(number))
	if err != nil {
		return nil, err
	}
	h, versionID, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}
	h.StarknetVersion, err = s.versionByID(versionID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// HeaderByHash looks up a header by its hash, via the hash->number index.
func (s *Store) HeaderByHash(hash felt.Felt) (*Header, error) {
	numBytes, err := s.db.Get(headerHashKey(hash.Bytes()))
	if err != nil {
		return nil, err
	}
	return s.HeaderByNumber(decodeUint64(numBytes))
}

// ---- starknet_versions interning table ----

func (s *Store) internVersionLocked(version string) (uint64, error) {
	if version == "" {
		return 0, nil // 0 is reserved for "absent" (spec: "null version ID legal for legacy blocks")
	}
	if idBytes, err := s.db.Get(versionByValueKey(version)); err == nil {
		return decodeUint64(idBytes), nil
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	var next uint64 = 1
	if buf, err := s.db.Get(nextVersionIDKey); err == nil {
		next = decodeUint64(buf)
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	b := s.db.NewBatch()
	b.Put(versionKey(next), []byte(version))
	b.Put(versionByValueKey(version), encodeUint64(next))
	b.Put(nextVersionIDKey, encodeUint64(next+1))
	if err := b.Write(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) versionByID(id uint64) (string, error) {
	if id == 0 {
		return "", nil
	}
	buf, err := s.db.Get(versionKey(id))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// ---- canonical index ----

// InsertCanonical records number -> hash as the canonical block at number.
func (s *Store) InsertCanonical(number uint64, hash felt.Felt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := hash.Bytes()
	return s.db.Put(canonicalKey(number), h[:])
}

// CanonicalHash returns the canonical hash recorded at number.
func (s *Store) CanonicalHash(number uint64) (felt.Felt, error) {
	buf, err := s.db.Get(canonicalKey(number))
	if err != nil {
		return felt.Felt{}, err
	}
	return felt.FromBytesBE(buf), nil
}

// BlockExists reports whether a canonical entry exists at number.
func (s *Store) BlockExists(number uint64) (bool, error) {
	return s.db.Has(canonicalKey(number))
}

// ---- commitment root indices ----

// SetContractRoot records the trie root index for a contract at number.
func (s *Store) SetContractRoot(contract felt.Felt, number uint64, rootIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(contractRootKey(contract.Bytes(), number), encodeUint64(rootIndex))
}

// GetContractRoot reads back a previously set contract root index.
func (s *Store) GetContractRoot(contract felt.Felt, number uint64) (uint64, error) {
	buf, err := s.db.Get(contractRootKey(contract.Bytes(), number))
	if err != nil {
		return 0, err
	}
	return decodeUint64(buf), nil
}

// ContractRootAt returns the contract's most recent root index recorded at
// or below number, along with whether one exists. Contracts only get a
// contract_roots row in blocks that touch them, so readers of untouched
// contracts need this ranged form rather than the exact-block one.
func (s *Store) ContractRootAt(contract felt.Felt, number uint64) (uint64, bool, error) {
	cb := contract.Bytes()
	it := s.db.NewIterator(concatKey(contractRootPrefix, cb[:]))

	var (
		best  uint64
		found bool
	)
	// Keys ascend and the block number is the big-endian suffix, so the
	// last row at or below number is the most recent one.
	for it.Next() {
		key := it.Key()
		if len(key) < 8 {
			continue
		}
		if decodeUint64(key[len(key)-8:]) > number {
			break
		}
		best = decodeUint64(it.Value())
		found = true
	}
	if err := it.Release(); err != nil {
		return 0, false, err
	}
	return best, found, nil
}

// SetStorageRoot records the global storage-commitment trie root index.
func (s *Store) SetStorageRoot(number uint64, rootIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(storageRootKey(number), encodeUint64(rootIndex))
}

// GetStorageRoot reads back a global storage-commitment trie root index.
func (s *Store) GetStorageRoot(number uint64) (uint64, error) {
	buf, err := s.db.Get(storageRootKey(number))
	if err != nil {
		return 0, err
	}
	return decodeUint64(buf), nil
}

// SetClassRoot records the class-commitment trie root index.
func (s *Store) SetClassRoot(number uint64, rootIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(classRootKey(number), encodeUint64(rootIndex))
}

// GetClassRoot reads back a class-commitment trie root index.
func (s *Store) GetClassRoot(number uint64) (uint64, error) {
	buf, err := s.db.Get(classRootKey(number))
	if err != nil {
		return 0, err
	}
	return decodeUint64(buf), nil
}

// SetContractStateHash records the per-contract state-hash index entry.
func (s *Store) SetContractStateHash(contract felt.Felt, number uint64, stateHash felt.Felt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := stateHash.Bytes()
	return s.db.Put(contractStateHashKey(contract.Bytes(), number), sh[:])
}

// SetClassCommitmentLeaf records a class-commitment trie leaf value.
func (s *Store) SetClassCommitmentLeaf(class felt.Felt, number uint64, leaf felt.Felt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := leaf.Bytes()
	return s.db.Put(classCommitmentLeafKey(class.Bytes(), number), l[:])
}

// ---- trie node storage ----

// NextTrieIndex allocates and returns the next monotonic storage index for
// the given trie family. Indices are scoped per family.
func (s *Store) NextTrieIndex(family TrieFamily) (uint64, error) {
	s.trieIdxMu.Lock()
	defer s.trieIdxMu.Unlock()

	next, ok := s.trieIdx[family]
	if !ok {
		if buf, err := s.db.Get(nextTrieIndexKeyFor(family)); err == nil {
			next = decodeUint64(buf)
		} else if !errors.Is(err, ErrNotFound) {
			return 0, err
		}
	}

	if err := s.db.Put(nextTrieIndexKeyFor(family), encodeUint64(next+1)); err != nil {
		return 0, err
	}
	s.trieIdx[family] = next + 1
	return next, nil
}

// PutTrieNode stores an encoded node and its cached hash at index.
func (s *Store) PutTrieNode(family TrieFamily, index uint64, node TrieNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hashBytes := node.Hash.Bytes()
	payload := make([]byte, 0, 32+len(node.Encoded))
	payload = append(payload, hashBytes[:]...)
	payload = append(payload, node.Encoded...)
	return s.db.Put(trieNodeKey(family, index), payload)
}

// GetTrieNode fetches a previously stored node.
func (s *Store) GetTrieNode(family TrieFamily, index uint64) (TrieNode, error) {
	buf, err := s.db.Get(trieNodeKey(family, index))
	if err != nil {
		return TrieNode{}, err
	}
	if len(buf) < 32 {
		return TrieNode{}, errors.New("nodestore: corrupt trie node record")
	}
	return TrieNode{Hash: felt.FromBytesBE(buf[:32]), Encoded: append([]byte(nil), buf[32:]...)}, nil
}

// GetTrieNodeHash fetches only the cached hash of a stored node, avoiding
// the cost of decoding its children.
func (s *Store) GetTrieNodeHash(family TrieFamily, index uint64) (felt.Felt, error) {
	buf, err := s.db.Get(trieNodeKey(family, index))
	if err != nil {
		return felt.Felt{}, err
	}
	if len(buf) < 32 {
		return felt.Felt{}, errors.New("nodestore: corrupt trie node record")
	}
	return felt.FromBytesBE(buf[:32]), nil
}

// ---- class definitions (long-lived, never purged) ----

// InsertClassDefinition stores a class's definition bytes, plus a marker
// linking it to the block number it was declared at.
func (s *Store) InsertClassDefinition(classHash felt.Felt, number uint64, definition []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.db.NewBatch()
	b.Put(classDefinitionKey(classHash.Bytes()), definition)
	b.Put(classDeclaredAtKey(classHash.Bytes(), number), nil)
	return b.Write()
}

// GetClassDefinition fetches a previously stored class definition.
func (s *Store) GetClassDefinition(classHash felt.Felt) ([]byte, error) {
	return s.db.Get(classDefinitionKey(classHash.Bytes()))
}

// ---- transactions ----

// InsertTransactions stores the ordered transaction payloads for a block,
// keyed by the block's hash (PurgeBlock matches on this key).
func (s *Store) InsertTransactions(blockHash felt.Felt, txs [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.db.NewBatch()
	h := blockHash.Bytes()
	for i, tx := range txs {
		b.Put(txByBlockHashKey(h, uint64(i)), tx)
	}
	return b.Write()
}

// TransactionsByBlockHash returns the ordered transaction payloads stored
// for a block, or an empty slice when none are recorded.
func (s *Store) TransactionsByBlockHash(blockHash felt.Felt) ([][]byte, error) {
	hb := blockHash.Bytes()
	it := s.db.NewIterator(concatKey(txByBlockHashPrefix, hb[:]))
	var txs [][]byte
	for it.Next() {
		txs = append(txs, append([]byte(nil), it.Value()...))
	}
	if err := it.Release(); err != nil {
		return nil, err
	}
	return txs, nil
}

// ---- purge ----

// PurgeBlock deletes, in one batch, every row keyed by block number n
// across: transactions-by-block-hash, the header's hash-to-number index
// entry, canonical_blocks, block_headers, contract_roots,
// class_commitment_leaves, the class declared-at linkage markers,
// contract_state_hashes, class_roots, and storage_roots — in that order,
// grounded on the reference purge_block implementation. Trie node rows
// and class definition bytes are never touched.
func (s *Store) PurgeBlock(n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := s.CanonicalHash(n)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	b := s.db.NewBatch()

	if err == nil {
		hb := hash.Bytes()
		it := s.db.NewIterator(concatKey(txByBlockHashPrefix, hb[:]))
		for it.Next() {
			b.Delete(append([]byte(nil), it.Key()...))
		}
		if rerr := it.Release(); rerr != nil {
			return rerr
		}
	}

	if header, herr := s.HeaderByNumber(n); herr == nil {
		hb := header.Hash.Bytes()
		b.Delete(headerHashKey(hb))
	} else if !errors.Is(herr, ErrNotFound) {
		return herr
	}

	b.Delete(canonicalKey(n))
	b.Delete(headerKey(n))
	s.deletePrefixed(b, contractRootPrefix, n)
	s.deletePrefixed(b, classCommitmentLeafPrefix, n)
	s.deletePrefixed(b, classDeclaredAtPrefix, n)
	s.deletePrefixed(b, contractStateHashPrefix, n)
	b.Delete(classRootKey(n))
	b.Delete(storageRootKey(n))

	return b.Write()
}

// deletePrefixed deletes every key of the form prefix+entity(32)+n(8) by
// scanning the whole prefix table and filtering on the trailing block
// number, since contract/class identity is not known at purge time.
func (s *Store) deletePrefixed(b Batch, prefix []byte, n uint64) {
	suffix := encodeUint64(n)
	it := s.db.NewIterator(prefix)
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if len(key) < 8 {
			continue
		}
		if string(key[len(key)-8:]) == string(suffix) {
			b.Delete(append([]byte(nil), key...))
		}
	}
}
