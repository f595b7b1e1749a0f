package trie

import (
	"fmt"

	"github.com/eth2030/starknet-core/felt"
)

// ProofNode is one step of a membership or non-membership proof, carrying
// enough of a node's structural content for a verifier holding only the
// claimed key and value to recompute the parent's hash.
type ProofNode struct {
	Kind kind

	// Binary
	SiblingHash felt.Felt
	WentRight   bool

	// Edge
	Path   []bool
	Length int
}

// GetProof walks from root to key, returning the traversed nodes in
// root-to-leaf order. The walk stops early (returning a short,
// non-membership proof) if an Edge's path diverges from key or a nil
// child is reached.
func (t *Trie) GetProof(key felt.Felt) ([]ProofNode, error) {
	var proof []ProofNode
	n := t.root
	depth := 0
	for n != nil {
		if err := n.expand(t.store, t.family); err != nil {
			return nil, err
		}
		switch n.kind {
		case kindLeafBinary, kindLeafEdge:
			return proof, nil
		case kindEdge:
			proof = append(proof, ProofNode{Kind: kindEdge, Path: append([]bool(nil), n.path.bits...), Length: len(n.path.bits)})
			segment := pathFromKey(key, depth, len(n.path.bits))
			if !segment.equal(n.path) {
				return proof, nil
			}
			depth += len(n.path.bits)
			n = n.child
		case kindBinary:
			right := key.Bit(depth) == 1
			siblingHash := computeHash(otherChild(n, right))
			proof = append(proof, ProofNode{Kind: kindBinary, SiblingHash: siblingHash, WentRight: right})
			if right {
				n = n.right
			} else {
				n = n.left
			}
			depth++
		}
	}
	return proof, nil
}

func otherChild(n *node, wentRight bool) *node {
	if wentRight {
		return n.left
	}
	return n.right
}

// VerifyProof recomputes the root hash implied by a proof and a claimed
// leaf value, folding from the leaf back up to the root.
func VerifyProof(proof []ProofNode, leafValue felt.Felt) felt.Felt {
	h := leafValue
	for i := len(proof) - 1; i >= 0; i-- {
		step := proof[i]
		switch step.Kind {
		case kindEdge:
			h = edgeHash(h, bitPath{bits: step.Path})
		case kindBinary:
			if step.WentRight {
				h = computeHashPair(step.SiblingHash, h)
			} else {
				h = computeHashPair(h, step.SiblingHash)
			}
		}
	}
	return h
}

func computeHashPair(l, r felt.Felt) felt.Felt {
	left := &node{kind: kindLeafBinary, value: l}
	right := &node{kind: kindLeafBinary, value: r}
	return computeHash(&node{kind: kindBinary, left: left, right: right, dirty: true})
}

// Visitor is called once per leaf encountered during a DFS traversal. It
// may return a non-nil error to abort the walk early (short-circuit).
type Visitor func(key felt.Felt, value felt.Felt) error

// DFS performs a depth-first traversal of the current tree, invoking
// visit for every leaf, in key order.
func (t *Trie) DFS(visit Visitor) error {
	return t.dfs(t.root, felt.Zero, 0, visit)
}

func (t *Trie) dfs(n *node, keyPrefix felt.Felt, depth int, visit Visitor) error {
	if n == nil {
		return nil
	}
	if err := n.expand(t.store, t.family); err != nil {
		return err
	}
	switch n.kind {
	case kindLeafBinary, kindLeafEdge:
		if depth != Height {
			return fmt.Errorf("trie: leaf encountered at depth %d, want %d", depth, Height)
		}
		return visit(keyPrefix, n.value)
	case kindEdge:
		extended := extendKey(keyPrefix, n.path.bits)
		return t.dfs(n.child, extended, depth+len(n.path.bits), visit)
	case kindBinary:
		leftKey := extendKey(keyPrefix, []bool{false})
		if err := t.dfs(n.left, leftKey, depth+1, visit); err != nil {
			return err
		}
		rightKey := extendKey(keyPrefix, []bool{true})
		return t.dfs(n.right, rightKey, depth+1, visit)
	}
	return nil
}

func extendKey(prefix felt.Felt, bits []bool) felt.Felt {
	out := prefix
	for _, b := range bits {
		out = out.Add(out)
		if b {
			out = out.Add(felt.One)
		}
	}
	return out
}

// VerifyLoaded walks every materialized node and confirms its cached hash
// matches one freshly recomputed from its children's hashes, the
// "verification mode" commit check: a mismatch signals storage corruption
// rather than a logic bug. Dirty nodes are this trie's own pending work
// and are skipped.
func (t *Trie) VerifyLoaded() error {
	return verifyNode(t.root)
}

func verifyNode(n *node) error {
	if n == nil || !n.loaded {
		return nil
	}
	if !n.dirty && !n.hash.IsZero() {
		var fresh felt.Felt
		switch n.kind {
		case kindLeafBinary, kindLeafEdge:
			fresh = n.value
		case kindBinary:
			fresh = computeHashPair(childHash(n.left), childHash(n.right))
		case kindEdge:
			fresh = edgeHash(childHash(n.child), n.path)
		}
		if !n.hash.Equal(fresh) {
			return fmt.Errorf("%w: cached %s, recomputed %s", ErrCorruptNode, n.hash.Hex(), fresh.Hex())
		}
	}
	switch n.kind {
	case kindBinary:
		if err := verifyNode(n.left); err != nil {
			return err
		}
		return verifyNode(n.right)
	case kindEdge:
		return verifyNode(n.child)
	}
	return nil
}

// childHash reads a child's hash without mutating it: cached when clean,
// recomputed when the child carries pending work.
func childHash(n *node) felt.Felt {
	if n == nil {
		return felt.Zero
	}
	if !n.dirty && !n.hash.IsZero() {
		return n.hash
	}
	return computeHash(n)
}
