package pdfbridge

import (
	"fmt"
	"sync/atomic"

	"github.com/jpl-au/pdfbridge/engine"
)

// Page is one loaded page of a Document. It carries the page's render
// session and owns its open text pages.
type Page struct {
	doc    *Document
	handle Handle
	eh     engine.Handle
	index  int
	width  float64
	height float64
	texts  map[*TextPage]struct{}
	render renderSession
	own    CancelFlag
	cancel atomic.Pointer[CancelFlag] // flag of the current or last session
	closed bool
}

// Handle returns the page's registry handle, or 0 once closed.
func (p *Page) Handle() Handle {
	if p == nil {
		return 0
	}
	p.doc.lib.mu.Lock()
	defer p.doc.lib.mu.Unlock()
	if p.closed {
		return 0
	}
	return p.handle
}

// Index returns the page's position in its document.
func (p *Page) Index() int {
	if p == nil {
		return -1
	}
	return p.index
}

// Document returns the owning document.
func (p *Page) Document() *Document {
	if p == nil {
		return nil
	}
	return p.doc
}

// Close ends any render session, closes the page's text pages and releases
// the page. Closing twice is a no-op.
func (p *Page) Close() error {
	if p == nil {
		return nil
	}
	if err := p.doc.lib.enter(); err != nil {
		return err
	}
	defer p.doc.lib.mu.Unlock()
	p.close()
	return nil
}

func (p *Page) close() {
	if p.closed {
		return
	}
	p.endRender()
	for tp := range p.texts {
		tp.close()
	}
	lib := p.doc.lib
	lib.eng.ClosePage(p.eh)
	lib.reg.remove(p.handle)
	delete(p.doc.pages, p)
	p.closed = true
}

// use takes the library lock and checks the page is open.
func (p *Page) use() error {
	if p == nil {
		return ErrNullHandle
	}
	if err := p.doc.lib.enter(); err != nil {
		return err
	}
	if p.closed {
		p.doc.lib.mu.Unlock()
		return ErrUseAfterClose
	}
	return nil
}

// Size returns the page width and height in points.
func (p *Page) Size() (width, height float64, err error) {
	if err := p.use(); err != nil {
		return 0, 0, err
	}
	defer p.doc.lib.mu.Unlock()
	return p.width, p.height, nil
}

// PageToDevice maps a page-space point to a device pixel within vp.
func (p *Page) PageToDevice(vp engine.Viewport, pt engine.Point) (x, y int, err error) {
	w, h, err := p.Size()
	if err != nil {
		return 0, 0, err
	}
	x, y = vp.PageToDevice(w, h, pt)
	return x, y, nil
}

// DeviceToPage maps a device pixel within vp back to page space.
func (p *Page) DeviceToPage(vp engine.Viewport, x, y int) (engine.Point, error) {
	w, h, err := p.Size()
	if err != nil {
		return engine.Point{}, err
	}
	pt, err := vp.DeviceToPage(w, h, x, y)
	if err != nil {
		return engine.Point{}, fmt.Errorf("device to page: %w: %w", ErrInvalidArgument, err)
	}
	return pt, nil
}

// LoadText loads the page's text layer.
func (p *Page) LoadText() (*TextPage, error) {
	if err := p.use(); err != nil {
		return nil, err
	}
	lib := p.doc.lib
	defer lib.mu.Unlock()

	eh, err := lib.eng.LoadTextPage(p.eh)
	if err == nil && eh == engine.Null {
		err = engine.CodePage
	}
	if err != nil {
		err = engineError("load text page", err)
		lib.log.Warn("load text page failed", "page", p.handle, "err", err)
		return nil, err
	}
	tp := &TextPage{page: p, eh: eh, searches: make(map[*SearchSession]struct{})}
	tp.handle = lib.reg.add(KindTextPage, tp)
	p.texts[tp] = struct{}{}
	return tp, nil
}
