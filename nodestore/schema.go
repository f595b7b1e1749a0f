package nodestore

import "encoding/binary"

// Key prefixes for the node store schema. Each logical table from the
// spec's persisted-storage design gets a distinct single-byte prefix,
// following the same collision-avoidance convention as go-ethereum-family
// rawdb packages.
var (
	headerPrefix        = []byte("h") // h + num (8 BE) -> header
	headerHashPrefix     = []byte("H") // H + hash -> num (8 BE)
	canonicalPrefix      = []byte("c") // c + num (8 BE) -> hash
	versionPrefix        = []byte("v") // v + id (8 BE) -> version string
	versionByValuePrefix = []byte("V") // V + version string -> id (8 BE)
	nextVersionIDKey     = []byte("Vn")

	contractRootPrefix = []byte("r") // r + contract(32) + num(8 BE) -> trie index (8 BE)
	storageRootPrefix  = []byte("s") // s + num(8 BE) -> trie index (8 BE)
	classRootPrefix    = []byte("k") // k + num(8 BE) -> trie index (8 BE)

	contractStateHashPrefix   = []byte("x") // x + contract(32) + num(8 BE) -> felt(32)
	classCommitmentLeafPrefix = []byte("l") // l + class(32) + num(8 BE) -> felt(32)

	contractTrieNodePrefix = []byte("t") // t + index (8 BE) -> encoded node
	storageTrieNodePrefix  = []byte("T") // T + index (8 BE) -> encoded node
	classTrieNodePrefix    = []byte("g") // g + index (8 BE) -> encoded node

	nextContractTrieIndexKey = []byte("tn")
	nextStorageTrieIndexKey  = []byte("Tn")
	nextClassTrieIndexKey    = []byte("gn")

	classDefinitionPrefix = []byte("d") // d + classHash(32) -> definition bytes
	classDeclaredAtPrefix = []byte("D") // D + classHash(32) + num(8 BE) -> empty (linkage marker)

	txByBlockHashPrefix = []byte("p") // p + blockHash(32) + txIndex(8 BE) -> tx bytes
)

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func concatKey(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func headerKey(number uint64) []byte {
	return concatKey(headerPrefix, encodeUint64(number))
}

func headerHashKey(hash [32]byte) []byte {
	return concatKey(headerHashPrefix, hash[:])
}

func canonicalKey(number uint64) []byte {
	return concatKey(canonicalPrefix, encodeUint64(number))
}

func versionKey(id uint64) []byte {
	return concatKey(versionPrefix, encodeUint64(id))
}

func versionByValueKey(version string) []byte {
	return concatKey(versionByValuePrefix, []byte(version))
}

func contractRootKey(contract [32]byte, number uint64) []byte {
	return concatKey(contractRootPrefix, contract[:], encodeUint64(number))
}

func storageRootKey(number uint64) []byte {
	return concatKey(storageRootPrefix, encodeUint64(number))
}

func classRootKey(number uint64) []byte {
	return concatKey(classRootPrefix, encodeUint64(number))
}

func contractStateHashKey(contract [32]byte, number uint64) []byte {
	return concatKey(contractStateHashPrefix, contract[:], encodeUint64(number))
}

func classCommitmentLeafKey(class [32]byte, number uint64) []byte {
	return concatKey(classCommitmentLeafPrefix, class[:], encodeUint64(number))
}

func trieNodeKey(family TrieFamily, index uint64) []byte {
	prefix := trieNodePrefixFor(family)
	return concatKey(prefix, encodeUint64(index))
}

func nextTrieIndexKeyFor(family TrieFamily) []byte {
	switch family {
	case ContractTrie:
		return nextContractTrieIndexKey
	case StorageTrie:
		return nextStorageTrieIndexKey
	case ClassTrie:
		return nextClassTrieIndexKey
	default:
		panic("nodestore: unknown trie family")
	}
}

func trieNodePrefixFor(family TrieFamily) []byte {
	switch family {
	case ContractTrie:
		return contractTrieNodePrefix
	case StorageTrie:
		return storageTrieNodePrefix
	case ClassTrie:
		return classTrieNodePrefix
	default:
		panic("nodestore: unknown trie family")
	}
}

func classDefinitionKey(classHash [32]byte) []byte {
	return concatKey(classDefinitionPrefix, classHash[:])
}

func classDeclaredAtKey(classHash [32]byte, number uint64) []byte {
	return concatKey(classDeclaredAtPrefix, classHash[:], encodeUint64(number))
}

func txByBlockHashKey(blockHash [32]byte, txIndex uint64) []byte {
	return concatKey(txByBlockHashPrefix, blockHash[:], encodeUint64(txIndex))
}

// TrieFamily distinguishes the three trie node tables: per-contract
// storage tries, the global storage-commitment trie, and the class
// commitment trie. Indices are scoped per family.
type TrieFamily uint8

const (
	ContractTrie TrieFamily = iota
	StorageTrie
	ClassTrie
)
