// Package trie implements the 251-bit binary Patricia-Merkle trie used for
// every commitment in the node core: per-contract storage, the global
// storage-commitment trie, and the class-commitment trie. The working set
// is a small in-memory node graph (grounded on the dirty-flag/lazy-hash
// style of a conventional binary trie), generalized with Edge-path
// compression and store-backed indices for persisted subtrees.
package trie

import (
	"github.com/eth2030/starknet-core/felt"
	"github.com/eth2030/starknet-core/nodestore"
	"github.com/eth2030/starknet-core/starkhash"
)

// Height is the fixed depth of every trie: keys are 251-bit strings.
const Height = 251

type kind uint8

const (
	kindBinary kind = iota
	kindEdge
	kindLeafBinary
	kindLeafEdge
)

// bitPath is a compressed path segment used by Edge nodes: the bits to
// skip before reaching child, MSB-first.
type bitPath struct {
	bits []bool
}

func pathFromKey(key felt.Felt, start, length int) bitPath {
	bp := bitPath{bits: make([]bool, length)}
	for i := 0; i < length; i++ {
		bp.bits[i] = key.Bit(start+i) == 1
	}
	return bp
}

func (p bitPath) equal(o bitPath) bool {
	if len(p.bits) != len(o.bits) {
		return false
	}
	for i := range p.bits {
		if p.bits[i] != o.bits[i] {
			return false
		}
	}
	return true
}

// commonPrefixLen returns the length of the shared prefix between two paths.
func commonPrefixLen(a, b bitPath) int {
	n := len(a.bits)
	if len(b.bits) < n {
		n = len(b.bits)
	}
	for i := 0; i < n; i++ {
		if a.bits[i] != b.bits[i] {
			return i
		}
	}
	return n
}

// node is the in-memory working representation of a trie node. A node is
// either materialized (kind/children set, possibly dirty) or a bare
// reference to an already-committed node identified by storedIndex; such
// references are expanded lazily on descent (loaded == false).
type node struct {
	kind kind

	left, right *node // kindBinary children
	child       *node // kindEdge child
	path        bitPath

	value felt.Felt // kindLeafBinary / kindLeafEdge: the stored leaf value

	hash  felt.Felt
	dirty bool

	loaded      bool
	storedIndex uint64
	hasIndex    bool
}

func leafNode(value felt.Felt) *node {
	return &node{kind: kindLeafBinary, value: value, hash: value, dirty: true, loaded: true}
}

// refNode builds an unloaded reference to a committed node; it is expanded
// via expand() the first time traversal needs to see inside it.
func refNode(index uint64, hash felt.Felt) *node {
	return &node{hasIndex: true, storedIndex: index, hash: hash, loaded: false}
}

// nodeReader is the narrow read surface the trie needs from the node store
// to expand references and fetch cached hashes.
type nodeReader interface {
	GetTrieNode(family nodestore.TrieFamily, index uint64) (nodestore.TrieNode, error)
	GetTrieNodeHash(family nodestore.TrieFamily, index uint64) (felt.Felt, error)
}

// expand loads a reference node's children from the store, in place.
func (n *node) expand(r nodeReader, family nodestore.TrieFamily) error {
	if n.loaded {
		return nil
	}
	stored, err := r.GetTrieNode(family, n.storedIndex)
	if err != nil {
		return err
	}
	decoded, err := decodeNode(stored.Encoded)
	if err != nil {
		return err
	}
	decoded.hash = stored.Hash
	// A stored node's children are themselves stored; pull their cached
	// hashes now so rehashing a dirty parent (or collecting a proof
	// sibling) never has to descend into an unloaded reference.
	switch decoded.kind {
	case kindBinary:
		if decoded.left.hash, err = r.GetTrieNodeHash(family, decoded.left.storedIndex); err != nil {
			return err
		}
		if decoded.right.hash, err = r.GetTrieNodeHash(family, decoded.right.storedIndex); err != nil {
			return err
		}
	case kindEdge:
		if decoded.child.hash, err = r.GetTrieNodeHash(family, decoded.child.storedIndex); err != nil {
			return err
		}
	}
	decoded.loaded = true
	decoded.hasIndex = true
	decoded.storedIndex = n.storedIndex
	*n = *decoded
	return nil
}

// computeHash returns n's commitment hash, recomputing and caching it if
// dirty. Binary nodes hash as Pedersen(left, right); Edge nodes hash as
// Pedersen(child, path-as-felt) + path length, folded the same way the
// network folds edge length into the low byte of the hash.
func computeHash(n *node) felt.Felt {
	if n == nil {
		return felt.Zero
	}
	if !n.dirty && !n.hash.IsZero() {
		return n.hash
	}
	switch n.kind {
	case kindLeafBinary, kindLeafEdge:
		n.hash = n.value
	case kindBinary:
		l := computeHash(n.left)
		r := computeHash(n.right)
		n.hash = starkhash.Pedersen(l, r)
	case kindEdge:
		c := computeHash(n.child)
		n.hash = edgeHash(c, n.path)
	}
	n.dirty = false
	return n.hash
}

// edgeHash folds a compressed path into the commitment the same way the
// network combines an Edge node's child hash with its path and length:
// Pedersen(child_hash, path_as_felt) with the path bit-length added in.
func edgeHash(childHash felt.Felt, path bitPath) felt.Felt {
	pathFelt := pathToFelt(path)
	combined := starkhash.Pedersen(childHash, pathFelt)
	return combined.Add(felt.FromUint64(uint64(len(path.bits))))
}

func pathToFelt(path bitPath) felt.Felt {
	n := felt.Zero
	for _, bit := range path.bits {
		n = n.Add(n) // shift left by one
		if bit {
			n = n.Add(felt.One)
		}
	}
	return n
}
