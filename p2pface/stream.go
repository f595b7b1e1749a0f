package p2pface

import "context"

// Element is one raw wire element of a server-streaming response: either a
// block payload or a Fin marker. Servers emit a Fin{OK} after every
// successfully-served block; the final element is always the terminal Fin
// that gives the stream its outcome.
type Element[T any] struct {
	Payload *T
	Fin     *Fin
}

func payloadElem[T any](item T) Element[T] {
	return Element[T]{Payload: &item}
}

func finElem[T any](reason FinReason) Element[T] {
	return Element[T]{Fin: &Fin{Reason: reason}}
}

// BuildStream walks an Iteration against fetch and produces the raw wire
// element sequence, honoring the trailer rules:
//
//   - every served block is followed by a Fin{OK} marker;
//   - a fully-served request ends with a final Fin{OK};
//   - a request overlapping fewer stored blocks than its limit ends with a
//     final Fin{Unknown} after the blocks that were served;
//   - a request that would exceed the server's internal cap ends with a
//     final Fin{TooMuch} after exactly cap blocks.
//
// fetch reports whether the requested block number exists; walking backward
// past genesis counts as a missing block.
func BuildStream[T any](it Iteration, maxServed uint64, fetch func(number uint64) (T, bool)) []Element[T] {
	step := it.Step
	if step == 0 {
		step = 1
	}

	var out []Element[T]
	number := it.Start
	for served := uint64(0); served < it.Limit; served++ {
		if served == maxServed {
			return append(out, finElem[T](FinTooMuch))
		}
		item, ok := fetch(number)
		if !ok {
			return append(out, finElem[T](FinUnknown))
		}
		out = append(out, payloadElem(item), finElem[T](FinOK))

		if it.Direction == Backward {
			if number < step {
				if served+1 < it.Limit {
					return append(out, finElem[T](FinUnknown))
				}
				break
			}
			number -= step
		} else {
			number += step
		}
	}
	return append(out, finElem[T](FinOK))
}

// elementStream adapts a raw element sequence to the Stream interface:
// per-block Fin{OK} markers are consumed silently and the trailing Fin
// becomes the stream's terminal status.
type elementStream[T any] struct {
	elems []Element[T]
	pos   int
	fin   Fin
	done  bool
}

// NewElementStream wraps a BuildStream-shaped element sequence as a Stream.
func NewElementStream[T any](elems []Element[T]) Stream[T] {
	return &elementStream[T]{elems: elems}
}

func (s *elementStream[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	default:
	}
	for s.pos < len(s.elems) {
		e := s.elems[s.pos]
		s.pos++
		if e.Payload != nil {
			return *e.Payload, true, nil
		}
		if s.pos == len(s.elems) {
			s.fin, s.done = *e.Fin, true
			return zero, false, nil
		}
		// Interior Fin{OK} block marker; keep going.
	}
	s.done = true
	return zero, false, nil
}

func (s *elementStream[T]) Fin() Fin     { return s.fin }
func (s *elementStream[T]) Close() error { return nil }
