package trie

import (
	"encoding/binary"
	"errors"

	"github.com/eth2030/starknet-core/felt"
)

var errCorruptNode = errors.New("trie: corrupt stored node")

// encodeNode serializes a node's structural content (not its hash, which
// the store keeps alongside as a separate field; see nodestore.TrieNode).
func encodeNode(n *node) []byte {
	switch n.kind {
	case kindBinary:
		buf := make([]byte, 1+8+8)
		buf[0] = byte(kindBinary)
		binary.BigEndian.PutUint64(buf[1:9], n.left.storedIndex)
		binary.BigEndian.PutUint64(buf[9:17], n.right.storedIndex)
		return buf
	case kindEdge:
		packed := packBits(n.path.bits)
		buf := make([]byte, 1+8+2+len(packed))
		buf[0] = byte(kindEdge)
		binary.BigEndian.PutUint64(buf[1:9], n.child.storedIndex)
		binary.BigEndian.PutUint16(buf[9:11], uint16(len(n.path.bits)))
		copy(buf[11:], packed)
		return buf
	case kindLeafBinary, kindLeafEdge:
		vb := n.value.Bytes()
		buf := make([]byte, 1+32)
		buf[0] = byte(n.kind)
		copy(buf[1:], vb[:])
		return buf
	default:
		panic("trie: unknown node kind")
	}
}

func decodeNode(buf []byte) (*node, error) {
	if len(buf) < 1 {
		return nil, errCorruptNode
	}
	switch kind(buf[0]) {
	case kindBinary:
		if len(buf) != 17 {
			return nil, errCorruptNode
		}
		left := binary.BigEndian.Uint64(buf[1:9])
		right := binary.BigEndian.Uint64(buf[9:17])
		return &node{
			kind:  kindBinary,
			left:  &node{hasIndex: true, storedIndex: left},
			right: &node{hasIndex: true, storedIndex: right},
		}, nil
	case kindEdge:
		if len(buf) < 11 {
			return nil, errCorruptNode
		}
		child := binary.BigEndian.Uint64(buf[1:9])
		length := int(binary.BigEndian.Uint16(buf[9:11]))
		bits := unpackBits(buf[11:], length)
		return &node{
			kind:  kindEdge,
			child: &node{hasIndex: true, storedIndex: child},
			path:  bitPath{bits: bits},
		}, nil
	case kindLeafBinary, kindLeafEdge:
		if len(buf) != 33 {
			return nil, errCorruptNode
		}
		var vb [32]byte
		copy(vb[:], buf[1:])
		return &node{kind: kind(buf[0]), value: felt.FromBytesBE(vb[:])}, nil
	default:
		return nil, errCorruptNode
	}
}

func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

func unpackBits(buf []byte, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = buf[i/8]&(1<<uint(7-i%8)) != 0
	}
	return out
}
