package pdfbridge

import "fmt"

// MaxAlloc bounds a single Alloc.
const MaxAlloc = 1 << 30

type block struct {
	buf []byte
}

// Alloc reserves a zeroed block of size bytes for data the host passes to
// the engine, and returns its Handle. Pair it with Free.
func (l *Library) Alloc(size int) (Handle, error) {
	if l == nil {
		return 0, ErrNullHandle
	}
	if size <= 0 || size > MaxAlloc {
		return 0, fmt.Errorf("alloc %d: %w", size, ErrInvalidArgument)
	}
	if err := l.enter(); err != nil {
		return 0, err
	}
	defer l.mu.Unlock()
	return l.reg.add(KindMemory, &block{buf: make([]byte, size)}), nil
}

// Memory returns the bytes of a block from Alloc. The slice is valid until
// Free.
func (l *Library) Memory(h Handle) ([]byte, error) {
	b, err := resolve[*block](l, h, KindMemory)
	if err != nil {
		return nil, err
	}
	return b.buf, nil
}

// Free releases a block from Alloc. Freeing the null handle is a no-op;
// freeing a stale handle reports ErrStaleHandle.
func (l *Library) Free(h Handle) error {
	if l == nil || h == 0 {
		return nil
	}
	if err := l.enter(); err != nil {
		return err
	}
	defer l.mu.Unlock()
	if _, err := l.reg.lookup(h, KindMemory); err != nil {
		return err
	}
	l.reg.remove(h)
	return nil
}
