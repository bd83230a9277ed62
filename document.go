package pdfbridge

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jpl-au/pdfbridge/engine"
)

// Document is a loaded document. It owns its open pages: closing the
// document closes them first.
type Document struct {
	lib    *Library
	handle Handle
	eh     engine.Handle
	data   []byte // engine may read it until CloseDocument
	pages  map[*Page]struct{}
	closed bool
}

// Handle returns the document's registry handle, or 0 once closed.
func (d *Document) Handle() Handle {
	if d == nil {
		return 0
	}
	d.lib.mu.Lock()
	defer d.lib.mu.Unlock()
	if d.closed {
		return 0
	}
	return d.handle
}

// Close closes every open page of the document and then the document
// itself. Closing twice is a no-op.
func (d *Document) Close() error {
	if d == nil {
		return nil
	}
	if err := d.lib.enter(); err != nil {
		return err
	}
	defer d.lib.mu.Unlock()
	d.close()
	return nil
}

func (d *Document) close() {
	if d.closed {
		return
	}
	for p := range d.pages {
		p.close()
	}
	d.lib.eng.CloseDocument(d.eh)
	d.lib.reg.remove(d.handle)
	delete(d.lib.docs, d)
	d.closed = true
	d.data = nil
	d.lib.log.Debug("document closed", "handle", d.handle)
}

// use takes the library lock and checks the document is open. On success
// the caller must unlock.
func (d *Document) use() error {
	if d == nil {
		return ErrNullHandle
	}
	if err := d.lib.enter(); err != nil {
		return err
	}
	if d.closed {
		d.lib.mu.Unlock()
		return ErrUseAfterClose
	}
	return nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() (int, error) {
	if err := d.use(); err != nil {
		return 0, err
	}
	defer d.lib.mu.Unlock()
	return d.lib.eng.PageCount(d.eh), nil
}

// Metadata returns an info dictionary entry such as "Title" or "Producer".
// A missing entry is the empty string.
func (d *Document) Metadata(tag string) (string, error) {
	if tag == "" {
		return "", fmt.Errorf("metadata: empty tag: %w", ErrInvalidArgument)
	}
	if err := d.use(); err != nil {
		return "", err
	}
	defer d.lib.mu.Unlock()
	return DecodeUTF16(d.lib.eng.MetaText(d.eh, tag)), nil
}

// LoadPage loads the page at index. Each call returns a distinct Page with
// its own engine handle, even for the same index.
func (d *Document) LoadPage(index int) (*Page, error) {
	if err := d.use(); err != nil {
		return nil, err
	}
	defer d.lib.mu.Unlock()
	if n := d.lib.eng.PageCount(d.eh); index < 0 || index >= n {
		return nil, fmt.Errorf("load page %d of %d: %w", index, n, ErrInvalidArgument)
	}

	eh, err := d.lib.eng.LoadPage(d.eh, index)
	if err == nil && eh == engine.Null {
		err = engine.CodePage
	}
	if err != nil {
		err = engineError(fmt.Sprintf("load page %d", index), err)
		d.lib.log.Warn("load page failed", "document", d.handle, "index", index, "err", err)
		return nil, err
	}

	p := &Page{doc: d, eh: eh, index: index, texts: make(map[*TextPage]struct{})}
	p.width, p.height = d.lib.eng.PageSize(eh)
	p.cancel.Store(&p.own)
	p.handle = d.lib.reg.add(KindPage, p)
	d.pages[p] = struct{}{}
	return p, nil
}

// rendering reports whether any page of the document has a progressive
// render waiting for ContinueRender.
func (d *Document) rendering() bool {
	for p := range d.pages {
		if p.render.state == engine.NeedsContinue {
			return true
		}
	}
	return false
}

// Save serializes the document and returns the bytes. version is 0 to keep
// the document's version, otherwise the PDF version times ten (14 for 1.4).
// The library save buffer is not touched.
func (d *Document) Save(flags engine.SaveFlags, version int) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.SaveTo(&buf, flags, version); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveTo serializes the document to w and returns the number of bytes
// written.
func (d *Document) SaveTo(w io.Writer, flags engine.SaveFlags, version int) (int64, error) {
	if w == nil {
		return 0, fmt.Errorf("save: nil writer: %w", ErrInvalidArgument)
	}
	if err := d.use(); err != nil {
		return 0, err
	}
	defer d.lib.mu.Unlock()
	cw := &countingWriter{w: w}
	err := d.save(cw, flags, version)
	return cw.n, err
}

// save runs the engine serialization. The caller holds the lock.
func (d *Document) save(w io.Writer, flags engine.SaveFlags, version int) error {
	if !engine.ValidVersion(version) {
		return fmt.Errorf("save: version %d: %w", version, ErrInvalidArgument)
	}
	if d.rendering() {
		return fmt.Errorf("save: %w", ErrRenderActive)
	}
	if err := d.lib.eng.Save(d.eh, w, flags, version); err != nil {
		err = engineError("save", err)
		d.lib.log.Warn("save failed", "document", d.handle, "version", version, "err", err)
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
