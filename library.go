// Library type and lifecycle operations.
//
// A Library owns one engine instance. It serializes every engine call,
// issues Handles for the resources it hands out and holds the single-slot
// save buffer.
package pdfbridge

import (
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpl-au/pdfbridge/engine"
)

// State constants for the library state word.
const (
	StateOpen   = 0
	StateClosed = 1
)

// Config holds library configuration options.
type Config struct {
	Logger          *slog.Logger  // Discards output when nil
	DigestAlgorithm int           // 1=xxHash3, 2=FNV1a, 3=Blake2b
	MaxDocumentSize int           // Largest accepted document (default 256MB)
	SliceBudget     time.Duration // Pause a render slice after this long, 0 disables
}

// Library is an initialized engine plus the resources loaded through it.
type Library struct {
	eng    engine.Engine
	config Config
	log    *slog.Logger
	reg    registry
	docs   map[*Document]struct{}
	bmps   map[*Bitmap]struct{}
	buffer SaveBuffer
	state  atomic.Int32
	mu     sync.Mutex
}

// New initializes eng and returns a Library that owns it.
func New(eng engine.Engine, config Config) (*Library, error) {
	if eng == nil {
		return nil, fmt.Errorf("new: nil engine: %w", ErrInvalidArgument)
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.DigestAlgorithm == 0 {
		config.DigestAlgorithm = AlgXXHash3
	}
	if !validAlgorithm(config.DigestAlgorithm) {
		return nil, fmt.Errorf("new: digest algorithm %d: %w", config.DigestAlgorithm, ErrInvalidArgument)
	}
	if config.MaxDocumentSize == 0 {
		config.MaxDocumentSize = 256 * 1024 * 1024
	}

	if err := eng.Init(); err != nil {
		return nil, engineError("init", err)
	}

	l := &Library{
		eng:    eng,
		config: config,
		log:    config.Logger,
		docs:   make(map[*Document]struct{}),
		bmps:   make(map[*Bitmap]struct{}),
	}
	l.buffer.lib = l
	l.log.Debug("library initialized", "digest", config.DigestAlgorithm, "slice_budget", config.SliceBudget)
	return l, nil
}

// Close closes every open document and bitmap, releases the save buffer and
// destroys the engine. Closing twice is a no-op.
func (l *Library) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Load() == StateClosed {
		return nil
	}

	leaked := l.reg.len()
	for d := range l.docs {
		d.close()
	}
	for b := range l.bmps {
		b.destroy()
	}
	for h, k := range l.reg.live() {
		if k == KindMemory {
			l.reg.remove(h)
		}
	}
	l.buffer.data = nil
	l.eng.Destroy()
	l.state.Store(StateClosed)

	if leaked > 0 {
		l.log.Debug("library closed with open resources", "count", leaked)
	} else {
		l.log.Debug("library closed")
	}
	return nil
}

// enter takes the library lock, failing once the library is closed.
func (l *Library) enter() error {
	if l.state.Load() == StateClosed {
		return ErrClosed
	}
	l.mu.Lock()
	if l.state.Load() == StateClosed {
		l.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// LastError returns the engine's code for the most recent failed load or
// save.
func (l *Library) LastError() engine.ErrorCode {
	if l == nil {
		return engine.CodeSuccess
	}
	if err := l.enter(); err != nil {
		return engine.CodeSuccess
	}
	defer l.mu.Unlock()
	return l.eng.LastError()
}

// Buffer returns the library's save buffer.
func (l *Library) Buffer() *SaveBuffer {
	if l == nil {
		return nil
	}
	return &l.buffer
}

// Live yields the Handle and Kind of every resource that has not been
// closed. The library lock is held for the whole iteration, so the loop body
// must not call back into the library.
func (l *Library) Live() iter.Seq2[Handle, Kind] {
	return func(yield func(Handle, Kind) bool) {
		if l == nil || l.enter() != nil {
			return
		}
		defer l.mu.Unlock()
		for h, k := range l.reg.live() {
			if !yield(h, k) {
				return
			}
		}
	}
}

func resolve[T any](l *Library, h Handle, k Kind) (T, error) {
	var zero T
	if l == nil {
		return zero, ErrNullHandle
	}
	if err := l.enter(); err != nil {
		return zero, err
	}
	defer l.mu.Unlock()
	obj, err := l.reg.lookup(h, k)
	if err != nil {
		return zero, err
	}
	v, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("handle %v: %w", h, ErrHandleKind)
	}
	return v, nil
}

// Document resolves a Handle issued by LoadDocument.
func (l *Library) Document(h Handle) (*Document, error) {
	return resolve[*Document](l, h, KindDocument)
}

// Page resolves a Handle issued by Document.LoadPage.
func (l *Library) Page(h Handle) (*Page, error) { return resolve[*Page](l, h, KindPage) }

// TextPage resolves a Handle issued by Page.LoadText.
func (l *Library) TextPage(h Handle) (*TextPage, error) {
	return resolve[*TextPage](l, h, KindTextPage)
}

// Search resolves a Handle issued by TextPage.FindStart.
func (l *Library) Search(h Handle) (*SearchSession, error) {
	return resolve[*SearchSession](l, h, KindSearch)
}

// Bitmap resolves a Handle issued by CreateBitmap.
func (l *Library) Bitmap(h Handle) (*Bitmap, error) { return resolve[*Bitmap](l, h, KindBitmap) }

// LoadDocument parses data with the engine. The bytes are copied and kept
// alive until the document is closed.
func (l *Library) LoadDocument(data []byte, password string) (*Document, error) {
	if l == nil {
		return nil, ErrNullHandle
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("load document: empty data: %w", ErrInvalidArgument)
	}
	if len(data) > l.config.MaxDocumentSize {
		return nil, fmt.Errorf("load document: %d bytes: %w", len(data), ErrTooLarge)
	}
	if err := l.enter(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()

	owned := append([]byte(nil), data...)
	eh, err := l.eng.LoadDocument(owned, password)
	if err != nil {
		err = engineError("load document", err)
		l.log.Warn("load document failed", "size", len(data), "err", err)
		return nil, err
	}
	if eh == engine.Null {
		return nil, &EngineError{Op: "load document", Code: l.eng.LastError()}
	}

	d := &Document{
		lib:   l,
		eh:    eh,
		data:  owned,
		pages: make(map[*Page]struct{}),
	}
	d.handle = l.reg.add(KindDocument, d)
	l.docs[d] = struct{}{}
	l.log.Debug("document loaded", "handle", d.handle, "size", len(data))
	return d, nil
}

// CreateBitmap allocates a render target through the engine.
func (l *Library) CreateBitmap(width, height int, alpha bool) (*Bitmap, error) {
	if l == nil {
		return nil, ErrNullHandle
	}
	if width <= 0 || height <= 0 || width > MaxAlloc/4/height {
		return nil, fmt.Errorf("create bitmap %dx%d: %w", width, height, ErrInvalidArgument)
	}
	if err := l.enter(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()

	eh, err := l.eng.CreateBitmap(width, height, alpha)
	if err == nil && eh == engine.Null {
		err = engine.CodeUnknown
	}
	if err != nil {
		return nil, engineError("create bitmap", err)
	}
	b := &Bitmap{lib: l, eh: eh, width: width, height: height, alpha: alpha}
	b.handle = l.reg.add(KindBitmap, b)
	l.bmps[b] = struct{}{}
	return b, nil
}
