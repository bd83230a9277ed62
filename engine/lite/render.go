package lite

import "github.com/jpl-au/pdfbridge/engine"

type render struct {
	bmp     engine.Handle
	painter *painter
	next    int
	state   engine.RenderStatus
}

func (e *Engine) RenderPage(bmp, h engine.Handle, vp engine.Viewport, flags engine.RenderFlags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok {
		return engine.CodePage
	}
	b, ok := get[*bitmap](e, bmp)
	if !ok {
		return engine.CodeUnknown
	}
	pt := newPainter(b, vp, p.width, p.height, flags, e.glyphs)
	for _, it := range p.items {
		pt.draw(it)
	}
	return nil
}

func (e *Engine) StartRender(bmp, h engine.Handle, vp engine.Viewport, flags engine.RenderFlags, pause engine.Pauser) engine.RenderStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok || p.render != nil {
		return engine.Failed
	}
	b, ok := get[*bitmap](e, bmp)
	if !ok {
		return engine.Failed
	}
	p.render = &render{
		bmp:     bmp,
		painter: newPainter(b, vp, p.width, p.height, flags, e.glyphs),
		state:   engine.NeedsContinue,
	}
	return e.slice(p, pause)
}

func (e *Engine) ContinueRender(h engine.Handle, pause engine.Pauser) engine.RenderStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok || p.render == nil || p.render.state != engine.NeedsContinue {
		return engine.Failed
	}
	return e.slice(p, pause)
}

func (e *Engine) CloseRender(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := get[*page](e, h); ok {
		p.render = nil
	}
}

// slice draws display items until the list is exhausted, the item quota
// is spent or the pauser asks to stop. The pauser is polled between items,
// so every call draws at least one.
func (e *Engine) slice(p *page, pause engine.Pauser) engine.RenderStatus {
	r := p.render
	if _, ok := get[*bitmap](e, r.bmp); !ok {
		r.state = engine.Failed
		return r.state
	}
	for ran := 0; r.next < len(p.items); ran++ {
		if ran > 0 {
			if e.opts.SliceItems > 0 && ran == e.opts.SliceItems {
				return r.state
			}
			if pause != nil && pause.NeedToPause() {
				return r.state
			}
		}
		r.painter.draw(p.items[r.next])
		r.next++
	}
	r.state = engine.Done
	return r.state
}
