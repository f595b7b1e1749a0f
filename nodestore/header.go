package nodestore

import "github.com/eth2030/starknet-core/felt"

// Header holds the essential fields of a block header. It is created once
// by the syncer and never mutated afterward; the only way to remove one
// is PurgeBlock.
type Header struct {
	Hash              felt.Felt
	ParentHash        felt.Felt
	Number            uint64
	Timestamp         uint64
	EthL1GasPrice     [16]byte
	StrkL1GasPrice    [16]byte
	SequencerAddress  felt.Felt
	StarknetVersion   string // empty means "absent", treated as 0.0.0
	TransactionCommitment felt.Felt
	EventCommitment       felt.Felt
	StateCommitment       felt.Felt
	StorageCommitment     felt.Felt
	ClassCommitment       felt.Felt
	TransactionCount      uint64
	EventCount            uint64
}

const headerEncodedLen = 32 + 32 + 8 + 8 + 16 + 16 + 32 + 8 /* version id */ + 32 + 32 + 32 + 32 + 32 + 8 + 8

func (h *Header) encode(versionID uint64) []byte {
	buf := make([]byte, 0, headerEncodedLen)
	put32 := func(f felt.Felt) {
		b := f.Bytes()
		buf = append(buf, b[:]...)
	}
	put8 := func(v uint64) {
		var b [8]byte
		for i := 7; i >= 0; i-- {
			b[i] = byte(v)
			v >>= 8
		}
		buf = append(buf, b[:]...)
	}
	put32(h.Hash)
	put32(h.ParentHash)
	put8(h.Number)
	put8(h.Timestamp)
	buf = append(buf, h.EthL1GasPrice[:]...)
	buf = append(buf, h.StrkL1GasPrice[:]...)
	put32(h.SequencerAddress)
	put8(versionID)
	put32(h.TransactionCommitment)
	put32(h.EventCommitment)
	put32(h.StateCommitment)
	put32(h.StorageCommitment)
	put32(h.ClassCommitment)
	put8(h.TransactionCount)
	put8(h.EventCount)
	return buf
}

func decodeHeader(buf []byte) (*Header, uint64, error) {
	if len(buf) != headerEncodedLen {
		return nil, 0, errCorruptHeader
	}
	var h Header
	off := 0
	read32 := func() felt.Felt {
		var b [32]byte
		copy(b[:], buf[off:off+32])
		off += 32
		return felt.FromBytesBE(b[:])
	}
	read8 := func() uint64 {
		var v uint64
		for i := 0; i < 8; i++ {
			v = v<<8 | uint64(buf[off+i])
		}
		off += 8
		return v
	}
	h.Hash = read32()
	h.ParentHash = read32()
	h.Number = read8()
	h.Timestamp = read8()
	copy(h.EthL1GasPrice[:], buf[off:off+16])
	off += 16
	copy(h.StrkL1GasPrice[:], buf[off:off+16])
	off += 16
	h.SequencerAddress = read32()
	versionID := read8()
	h.TransactionCommitment = read32()
	h.EventCommitment = read32()
	h.StateCommitment = read32()
	h.StorageCommitment = read32()
	h.ClassCommitment = read32()
	h.TransactionCount = read8()
	h.EventCount = read8()
	return &h, versionID, nil
}
