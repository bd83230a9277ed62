// Generational handle registry.
//
// Every live resource is entered into an arena slot. A Handle packs the slot
// index (low 32 bits, offset by one so the zero Handle is null) with the
// slot's generation (high 32 bits). Removing a resource bumps the
// generation, so an old Handle to a reused slot is detected as stale rather
// than resolving to the new occupant.
package pdfbridge

import (
	"fmt"
	"iter"
)

// Handle is a public reference to a live resource. Zero is the null handle.
type Handle uint64

// Kind identifies the resource type behind a Handle.
type Kind uint8

const (
	KindDocument Kind = iota + 1
	KindPage
	KindTextPage
	KindSearch
	KindBitmap
	KindMemory
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindPage:
		return "page"
	case KindTextPage:
		return "text page"
	case KindSearch:
		return "search"
	case KindBitmap:
		return "bitmap"
	case KindMemory:
		return "memory"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (h Handle) index() int     { return int(uint32(h)) - 1 }
func (h Handle) gen() uint32    { return uint32(h >> 32) }
func (h Handle) String() string { return fmt.Sprintf("%d:%d", h.index(), h.gen()) }

type slot struct {
	gen  uint32
	kind Kind
	obj  any // nil when free
}

type registry struct {
	slots []slot
	free  []int
}

func (r *registry) add(k Kind, obj any) Handle {
	var i int
	if n := len(r.free); n > 0 {
		i = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{gen: 1})
		i = len(r.slots) - 1
	}
	s := &r.slots[i]
	s.kind, s.obj = k, obj
	return Handle(uint64(s.gen)<<32 | uint64(i+1))
}

func (r *registry) remove(h Handle) {
	if _, err := r.resolve(h); err != nil {
		return
	}
	s := &r.slots[h.index()]
	s.obj = nil
	s.gen++
	r.free = append(r.free, h.index())
}

func (r *registry) resolve(h Handle) (*slot, error) {
	if h == 0 {
		return nil, ErrNullHandle
	}
	i := h.index()
	if i < 0 || i >= len(r.slots) {
		return nil, fmt.Errorf("handle %v: %w", h, ErrStaleHandle)
	}
	s := &r.slots[i]
	if s.obj == nil || s.gen != h.gen() {
		return nil, fmt.Errorf("handle %v: %w", h, ErrStaleHandle)
	}
	return s, nil
}

func (r *registry) lookup(h Handle, k Kind) (any, error) {
	s, err := r.resolve(h)
	if err != nil {
		return nil, err
	}
	if s.kind != k {
		return nil, fmt.Errorf("handle %v is a %v, not a %v: %w", h, s.kind, k, ErrHandleKind)
	}
	return s.obj, nil
}

// live yields every occupied slot in arena order.
func (r *registry) live() iter.Seq2[Handle, Kind] {
	return func(yield func(Handle, Kind) bool) {
		for i, s := range r.slots {
			if s.obj == nil {
				continue
			}
			if !yield(Handle(uint64(s.gen)<<32|uint64(i+1)), s.kind) {
				return
			}
		}
	}
}

func (r *registry) len() int {
	return len(r.slots) - len(r.free)
}
