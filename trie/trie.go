package trie

import (
	"errors"

	"github.com/eth2030/starknet-core/felt"
	"github.com/eth2030/starknet-core/metrics"
	"github.com/eth2030/starknet-core/nodestore"
)

// ErrNotFound is returned by Get when key has no value in the trie.
var ErrNotFound = errors.New("trie: not found")

// ErrCorruptNode is returned by a verifying Commit when a loaded node's
// recomputed hash disagrees with the cached one the store holds — a
// storage-corruption signal, not a logic error.
var ErrCorruptNode = errors.New("trie: stored node hash mismatch")

// Store is the full read/write surface the trie needs from the node store.
type Store interface {
	nodeReader
	NextTrieIndex(family nodestore.TrieFamily) (uint64, error)
	PutTrieNode(family nodestore.TrieFamily, index uint64, n nodestore.TrieNode) error
}

// Trie is a 251-bit binary Patricia-Merkle trie. It owns an in-memory
// staging buffer of pending mutations (the node graph reachable from root)
// and borrows read-only access to the backing store for indexed lookup of
// subtrees it has not yet touched.
type Trie struct {
	store  Store
	family nodestore.TrieFamily
	root   *node

	verify    bool
	committed map[felt.Felt]nodestore.TrieNode
}

// New opens a trie rooted at rootIndex (or an empty trie if hasRoot is
// false), reading and writing nodes of the given family.
func New(store Store, family nodestore.TrieFamily, rootIndex uint64, rootHash felt.Felt, hasRoot bool) *Trie {
	t := &Trie{store: store, family: family}
	if hasRoot {
		t.root = refNode(rootIndex, rootHash)
	}
	return t
}

// Get returns the value stored at key.
func (t *Trie) Get(key felt.Felt) (felt.Felt, error) {
	n := t.root
	depth := 0
	for n != nil {
		if err := n.expand(t.store, t.family); err != nil {
			return felt.Felt{}, err
		}
		switch n.kind {
		case kindLeafBinary, kindLeafEdge:
			if depth == Height {
				return n.value, nil
			}
			return felt.Felt{}, ErrNotFound
		case kindEdge:
			segment := pathFromKey(key, depth, len(n.path.bits))
			if !segment.equal(n.path) {
				return felt.Felt{}, ErrNotFound
			}
			depth += len(n.path.bits)
			n = n.child
		case kindBinary:
			if key.Bit(depth) == 0 {
				n = n.left
			} else {
				n = n.right
			}
			depth++
		}
	}
	return felt.Felt{}, ErrNotFound
}

// Set inserts or overwrites the value at key. A zero value deletes the key
// (matching the convention that a cleared storage slot is absent).
func (t *Trie) Set(key felt.Felt, value felt.Felt) error {
	if value.IsZero() {
		return t.Delete(key)
	}
	root, err := t.insert(t.root, key, 0, value)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *Trie) insert(n *node, key felt.Felt, depth int, value felt.Felt) (*node, error) {
	if n == nil {
		if depth == Height {
			return leafNode(value), nil
		}
		// No existing subtree: represent the remainder of the key as a
		// single Edge straight to the leaf.
		edge := &node{kind: kindEdge, path: pathFromKey(key, depth, Height-depth), dirty: true, loaded: true}
		edge.child = leafNode(value)
		return edge, nil
	}
	if err := n.expand(t.store, t.family); err != nil {
		return nil, err
	}

	switch n.kind {
	case kindLeafBinary, kindLeafEdge:
		n.value = value
		n.hash = felt.Felt{}
		n.dirty = true
		return n, nil

	case kindBinary:
		n.dirty = true
		n.hash = felt.Felt{}
		if key.Bit(depth) == 0 {
			child, err := t.insert(n.left, key, depth+1, value)
			if err != nil {
				return nil, err
			}
			n.left = child
		} else {
			child, err := t.insert(n.right, key, depth+1, value)
			if err != nil {
				return nil, err
			}
			n.right = child
		}
		return n, nil

	case kindEdge:
		segment := pathFromKey(key, depth, len(n.path.bits))
		shared := commonPrefixLen(segment, n.path)
		if shared == len(n.path.bits) {
			child, err := t.insert(n.child, key, depth+len(n.path.bits), value)
			if err != nil {
				return nil, err
			}
			n.child = child
			n.dirty = true
			n.hash = felt.Felt{}
			return n, nil
		}
		// Paths diverge partway through the edge: split it into a shared
		// prefix edge (if any), a binary branch, and two sub-edges for the
		// remainders (collapsed away if a remainder has zero length).
		return t.splitEdge(n, key, depth, shared, value)
	}
	panic("trie: unreachable node kind")
}

// splitEdge breaks an Edge node at the point its stored path diverges from
// the incoming key, inserting a Binary branch at the divergence.
func (t *Trie) splitEdge(n *node, key felt.Felt, depth, shared int, value felt.Felt) (*node, error) {
	oldRemainder := bitPath{bits: n.path.bits[shared+1:]}
	branchDepth := depth + shared

	oldBranch, err := t.collapseEdge(oldRemainder, n.child)
	if err != nil {
		return nil, err
	}
	newRemainder := pathFromKey(key, branchDepth+1, Height-branchDepth-1)
	newLeaf, err := t.collapseEdge(newRemainder, leafNode(value))
	if err != nil {
		return nil, err
	}

	var branch *node
	if n.path.bits[shared] {
		branch = &node{kind: kindBinary, left: newLeaf, right: oldBranch, dirty: true, loaded: true}
	} else {
		branch = &node{kind: kindBinary, left: oldBranch, right: newLeaf, dirty: true, loaded: true}
	}

	if shared == 0 {
		return branch, nil
	}
	prefix := bitPath{bits: n.path.bits[:shared]}
	return &node{kind: kindEdge, path: prefix, child: branch, dirty: true, loaded: true}, nil
}

// collapseEdge wraps child behind an Edge carrying path, or returns child
// directly if path is empty (Edge-path-compression collapse rule). If child
// is itself an Edge, the two paths are concatenated into one node rather
// than nesting two Edges.
func (t *Trie) collapseEdge(path bitPath, child *node) (*node, error) {
	if len(path.bits) == 0 {
		return child, nil
	}
	if err := child.expand(t.store, t.family); err != nil {
		return nil, err
	}
	if child.kind == kindEdge {
		merged := bitPath{bits: append(append([]bool{}, path.bits...), child.path.bits...)}
		return &node{kind: kindEdge, path: merged, child: child.child, dirty: true, loaded: true}, nil
	}
	return &node{kind: kindEdge, path: path, child: child, dirty: true, loaded: true}, nil
}

// Delete removes key from the trie, collapsing any Binary node left with a
// single child back into an Edge (or merging adjacent Edges).
func (t *Trie) Delete(key felt.Felt) error {
	root, _, err := t.delete(t.root, key, 0)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *Trie) delete(n *node, key felt.Felt, depth int) (*node, bool, error) {
	if n == nil {
		return nil, false, nil
	}
	if err := n.expand(t.store, t.family); err != nil {
		return nil, false, err
	}
	switch n.kind {
	case kindLeafBinary, kindLeafEdge:
		return nil, true, nil
	case kindEdge:
		segment := pathFromKey(key, depth, len(n.path.bits))
		if !segment.equal(n.path) {
			return n, false, nil
		}
		child, removed, err := t.delete(n.child, key, depth+len(n.path.bits))
		if err != nil {
			return nil, false, err
		}
		if !removed {
			return n, false, nil
		}
		if child == nil {
			return nil, true, nil
		}
		if child.kind == kindEdge {
			if err := child.expand(t.store, t.family); err != nil {
				return nil, false, err
			}
			merged := bitPath{bits: append(append([]bool{}, n.path.bits...), child.path.bits...)}
			return &node{kind: kindEdge, path: merged, child: child.child, dirty: true, loaded: true}, true, nil
		}
		n.child = child
		n.dirty = true
		n.hash = felt.Felt{}
		return n, true, nil
	case kindBinary:
		n.dirty = true
		n.hash = felt.Felt{}
		if key.Bit(depth) == 0 {
			child, removed, err := t.delete(n.left, key, depth+1)
			if err != nil {
				return nil, false, err
			}
			if !removed {
				return n, false, nil
			}
			n.left = child
		} else {
			child, removed, err := t.delete(n.right, key, depth+1)
			if err != nil {
				return nil, false, err
			}
			if !removed {
				return n, false, nil
			}
			n.right = child
		}
		collapsed, err := t.collapseBinary(n)
		if err != nil {
			return nil, false, err
		}
		return collapsed, true, nil
	}
	panic("trie: unreachable node kind")
}

// collapseBinary promotes a Binary node's sole surviving child, prefixing
// it with a one-bit Edge so path compression stays canonical.
func (t *Trie) collapseBinary(n *node) (*node, error) {
	if n.left != nil && n.right != nil {
		return n, nil
	}
	if n.left == nil && n.right == nil {
		return nil, nil
	}
	bit, child := false, n.left
	if n.left == nil {
		bit, child = true, n.right
	}
	return t.collapseEdge(bitPath{bits: []bool{bit}}, child)
}

// Root returns the current root commitment hash (felt.Zero for an empty
// trie), recomputing any dirty nodes along the way.
func (t *Trie) Root() felt.Felt {
	return computeHash(t.root)
}

// EnableVerification turns on verification mode: every subsequent Commit
// first recomputes the hash of each loaded node against the store's
// cached value and fails with ErrCorruptNode on a mismatch.
func (t *Trie) EnableVerification() { t.verify = true }

// Commit flushes every dirty node to the store bottom-up and returns the
// storage index of the (possibly new) root, along with its hash. An empty
// trie has no root index; callers must track hasRoot separately. The
// nodes a Commit created are retrievable via CommittedNodes until the
// next Commit.
func (t *Trie) Commit() (index uint64, hash felt.Felt, err error) {
	timer := metrics.NewTimer(metrics.TrieCommitTime)
	defer func() {
		metrics.TrieCommits.Inc()
		timer.Stop()
	}()

	t.committed = make(map[felt.Felt]nodestore.TrieNode)
	if t.root == nil {
		return 0, felt.Zero, nil
	}
	if t.verify {
		if err := t.VerifyLoaded(); err != nil {
			return 0, felt.Felt{}, err
		}
	}
	idx, err := t.flush(t.root)
	if err != nil {
		return 0, felt.Felt{}, err
	}
	return idx, t.root.hash, nil
}

// CommittedNodes returns the nodes the most recent Commit wrote, keyed by
// hash.
func (t *Trie) CommittedNodes() map[felt.Felt]nodestore.TrieNode {
	return t.committed
}

func (t *Trie) flush(n *node) (uint64, error) {
	// A clean node that already has a storage index is reused as-is; this
	// covers both unloaded references and loaded-but-unmodified subtrees.
	if n.hasIndex && !n.dirty {
		return n.storedIndex, nil
	}
	if err := n.expand(t.store, t.family); err != nil {
		return 0, err
	}
	switch n.kind {
	case kindBinary:
		li, err := t.flush(n.left)
		if err != nil {
			return 0, err
		}
		ri, err := t.flush(n.right)
		if err != nil {
			return 0, err
		}
		n.left.storedIndex, n.left.hasIndex = li, true
		n.right.storedIndex, n.right.hasIndex = ri, true
	case kindEdge:
		ci, err := t.flush(n.child)
		if err != nil {
			return 0, err
		}
		n.child.storedIndex, n.child.hasIndex = ci, true
	}
	computeHash(n)

	index, err := t.store.NextTrieIndex(t.family)
	if err != nil {
		return 0, err
	}
	stored := nodestoreNode(n)
	if err := t.store.PutTrieNode(t.family, index, stored); err != nil {
		return 0, err
	}
	n.storedIndex, n.hasIndex, n.dirty = index, true, false
	if t.committed != nil {
		t.committed[n.hash] = stored
	}
	metrics.TrieNodesStored.Inc()
	return index, nil
}

func nodestoreNode(n *node) nodestore.TrieNode {
	return nodestore.TrieNode{Encoded: encodeNode(n), Hash: n.hash}
}
