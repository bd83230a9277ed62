// Single-slot save buffer.
//
// The library holds the bytes of its most recent successful save. A new
// save replaces them, a failed save leaves them alone and Free drops them.
// Document.Save and Document.SaveTo bypass the slot for callers that want
// the bytes owned by the call.
package pdfbridge

import (
	"fmt"

	"github.com/jpl-au/pdfbridge/engine"
)

// SaveBuffer is the library's save slot.
type SaveBuffer struct {
	lib  *Library
	data []byte
}

// Save serializes doc into the save buffer and returns its length. It
// returns 0 and leaves the buffer untouched when doc is nil or closed or the
// engine fails.
func (l *Library) Save(doc *Document, flags engine.SaveFlags) int {
	return l.SaveWithVersion(doc, flags, 0)
}

// SaveWithVersion is Save with an explicit PDF version times ten, or 0 to
// keep the document's version.
func (l *Library) SaveWithVersion(doc *Document, flags engine.SaveFlags, version int) int {
	n, err := l.saveSlot(doc, flags, version)
	if err != nil {
		if l != nil {
			l.log.Warn("save to buffer failed", "err", err)
		}
		return 0
	}
	return n
}

func (l *Library) saveSlot(doc *Document, flags engine.SaveFlags, version int) (int, error) {
	if l == nil || doc == nil {
		return 0, ErrNullHandle
	}
	if doc.lib != l {
		return 0, fmt.Errorf("save: document from another library: %w", ErrInvalidArgument)
	}
	if err := doc.use(); err != nil {
		return 0, err
	}
	defer l.mu.Unlock()

	w := &sliceWriter{}
	if err := doc.save(w, flags, version); err != nil {
		return 0, err
	}
	if len(w.buf) == 0 {
		return 0, fmt.Errorf("save: engine wrote nothing: %w", ErrSaveFailed)
	}
	l.buffer.data = w.buf
	l.log.Debug("saved to buffer", "document", doc.handle, "size", len(w.buf), "version", version)
	return len(w.buf), nil
}

type sliceWriter struct {
	buf []byte
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Bytes returns the buffer contents, or nil when empty. The slice stays
// valid until the next save or Free; callers that keep it longer should
// copy it.
func (b *SaveBuffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	b.lib.mu.Lock()
	defer b.lib.mu.Unlock()
	return b.data
}

// Len returns the length of the last successful save, or 0 when empty.
func (b *SaveBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.lib.mu.Lock()
	defer b.lib.mu.Unlock()
	return len(b.data)
}

// Free releases the buffer. Later calls to Bytes return nil until the next
// save.
func (b *SaveBuffer) Free() {
	if b == nil {
		return
	}
	b.lib.mu.Lock()
	defer b.lib.mu.Unlock()
	b.data = nil
}

// Digest returns the hex digest of the buffer using Config.DigestAlgorithm,
// or "" when empty.
func (b *SaveBuffer) Digest() string {
	if b == nil {
		return ""
	}
	b.lib.mu.Lock()
	defer b.lib.mu.Unlock()
	if len(b.data) == 0 {
		return ""
	}
	return digest(b.data, b.lib.config.DigestAlgorithm)
}

// Compressed returns the buffer as a zstd frame.
func (b *SaveBuffer) Compressed() ([]byte, error) {
	if b == nil {
		return nil, ErrNullHandle
	}
	b.lib.mu.Lock()
	defer b.lib.mu.Unlock()
	if len(b.data) == 0 {
		return nil, ErrEmptyBuffer
	}
	return compress(b.data), nil
}
