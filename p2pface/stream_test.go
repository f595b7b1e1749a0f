package p2pface

import (
	"context"
	"testing"
)

// storedUpTo serves block numbers [0, max] and reports everything above as
// missing.
func storedUpTo(max uint64) func(uint64) (uint64, bool) {
	return func(n uint64) (uint64, bool) {
		if n > max {
			return 0, false
		}
		return n, true
	}
}

func countElements(elems []Element[uint64]) (payloads int, blockFins int, terminal FinReason) {
	for i, e := range elems {
		switch {
		case e.Payload != nil:
			payloads++
		case i == len(elems)-1:
			terminal = e.Fin.Reason
		default:
			blockFins++
		}
	}
	return payloads, blockFins, terminal
}

// TestBuildStreamPartial covers the partial-stream trailer rule: a request
// overlapping k < limit stored blocks yields exactly k payloads, one
// Fin{OK} per served block, and a final Fin{Unknown}.
func TestBuildStreamPartial(t *testing.T) {
	elems := BuildStream(Iteration{Start: 0, Limit: 10}, 100, storedUpTo(4))

	payloads, blockFins, terminal := countElements(elems)
	if payloads != 5 || blockFins != 5 {
		t.Fatalf("partial stream = %d payloads, %d block fins; want 5 and 5", payloads, blockFins)
	}
	if terminal != FinUnknown {
		t.Fatalf("terminal fin = %v, want FinUnknown", terminal)
	}
}

// TestBuildStreamCapped covers the internal-cap trailer rule: a request
// that would exceed the cap yields exactly cap payloads and a final
// Fin{TooMuch}.
func TestBuildStreamCapped(t *testing.T) {
	elems := BuildStream(Iteration{Start: 0, Limit: 10}, 3, storedUpTo(100))

	payloads, blockFins, terminal := countElements(elems)
	if payloads != 3 || blockFins != 3 {
		t.Fatalf("capped stream = %d payloads, %d block fins; want 3 and 3", payloads, blockFins)
	}
	if terminal != FinTooMuch {
		t.Fatalf("terminal fin = %v, want FinTooMuch", terminal)
	}
}

func TestBuildStreamFullyServed(t *testing.T) {
	elems := BuildStream(Iteration{Start: 2, Limit: 3}, 100, storedUpTo(10))

	payloads, blockFins, terminal := countElements(elems)
	if payloads != 3 || blockFins != 3 {
		t.Fatalf("full stream = %d payloads, %d block fins; want 3 and 3", payloads, blockFins)
	}
	if terminal != FinOK {
		t.Fatalf("terminal fin = %v, want FinOK", terminal)
	}
}

func TestBuildStreamBackwardStopsAtGenesis(t *testing.T) {
	elems := BuildStream(Iteration{Start: 2, Limit: 10, Direction: Backward}, 100, storedUpTo(10))

	payloads, _, terminal := countElements(elems)
	if payloads != 3 {
		t.Fatalf("backward stream served %d payloads, want 3 (blocks 2, 1, 0)", payloads)
	}
	if terminal != FinUnknown {
		t.Fatalf("terminal fin = %v, want FinUnknown below genesis", terminal)
	}

	var got []uint64
	for _, e := range elems {
		if e.Payload != nil {
			got = append(got, *e.Payload)
		}
	}
	if len(got) != 3 || got[0] != 2 || got[1] != 1 || got[2] != 0 {
		t.Fatalf("backward payload order = %v, want [2 1 0]", got)
	}
}

func TestElementStreamSkipsBlockFins(t *testing.T) {
	elems := BuildStream(Iteration{Start: 0, Limit: 10}, 100, storedUpTo(1))
	s := NewElementStream(elems)

	var items []uint64
	for {
		item, ok, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		items = append(items, item)
	}
	if len(items) != 2 || items[0] != 0 || items[1] != 1 {
		t.Fatalf("stream items = %v, want [0 1]", items)
	}
	if s.Fin().Reason != FinUnknown {
		t.Fatalf("stream fin = %v, want FinUnknown", s.Fin().Reason)
	}
}
