// Progressive rendering.
//
// A page carries one render session. StartRender moves it from Idle to the
// engine's first slice result; ContinueRender runs further slices while it is
// NeedsContinue; CloseRender returns it to Idle from any state. The engine
// polls a Pauser at its own checkpoints, and the pauser here answers from the
// session's cancel flag and the slice budget. A slice that pauses with the
// flag set ends the session as Failed with ErrRenderCancelled, so a cancelled
// loop stops after at most one more call.
package pdfbridge

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jpl-au/pdfbridge/engine"
)

// CancelFlag is a cancellation request polled during render slices. It is
// safe to set from any goroutine.
type CancelFlag struct {
	v atomic.Bool
}

// Set sets or clears the flag.
func (f *CancelFlag) Set(v bool) { f.v.Store(v) }

// Cancelled reports whether the flag is set.
func (f *CancelFlag) Cancelled() bool { return f.v.Load() }

// RenderOption configures one render session.
type RenderOption func(*renderOptions)

type renderOptions struct {
	flag   *CancelFlag
	budget time.Duration
}

// WithCancelFlag makes the session poll f instead of the page's own flag.
// Hosts that need one flag for every session, as a flat ABI does, pass the
// same f to each StartRender.
func WithCancelFlag(f *CancelFlag) RenderOption {
	return func(o *renderOptions) {
		if f != nil {
			o.flag = f
		}
	}
}

// WithSliceBudget overrides Config.SliceBudget for the session. Zero
// disables the budget.
func WithSliceBudget(d time.Duration) RenderOption {
	return func(o *renderOptions) {
		o.budget = d
	}
}

type renderSession struct {
	state  engine.RenderStatus
	target *Bitmap
	flag   *CancelFlag
	budget time.Duration
	open   bool  // engine holds progressive state for the page
	cause  error // why the session failed
	slices int
}

// pauser answers the engine's checkpoint polls for one slice.
type pauser struct {
	flag     *CancelFlag
	deadline time.Time
}

func (p pauser) NeedToPause() bool {
	if p.flag.Cancelled() {
		return true
	}
	return !p.deadline.IsZero() && !time.Now().Before(p.deadline)
}

func (s *renderSession) pauser() pauser {
	p := pauser{flag: s.flag}
	if s.budget > 0 {
		p.deadline = time.Now().Add(s.budget)
	}
	return p
}

// StartRender begins a progressive render of the page into target and runs
// the first slice. The session's cancel flag is cleared first, so a request
// left over from an earlier session is ignored.
//
// The returned status is NeedsContinue, Done or Failed. Failed comes with a
// non-nil error wrapping ErrRenderFailed or ErrRenderCancelled. Starting
// while a session exists returns ErrRenderActive and leaves it untouched.
func (p *Page) StartRender(target *Bitmap, vp engine.Viewport, flags engine.RenderFlags, opts ...RenderOption) (engine.RenderStatus, error) {
	if p == nil || target == nil {
		return engine.Failed, ErrNullHandle
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		return engine.Failed, fmt.Errorf("start render: viewport %dx%d: %w", vp.Width, vp.Height, ErrInvalidArgument)
	}
	if err := p.use(); err != nil {
		return engine.Failed, err
	}
	lib := p.doc.lib
	defer lib.mu.Unlock()

	if err := target.usable(lib); err != nil {
		return engine.Failed, fmt.Errorf("start render: %w", err)
	}
	if p.render.state != engine.Idle {
		return p.render.state, fmt.Errorf("start render: session is %v: %w", p.render.state, ErrRenderActive)
	}
	if target.busy != nil {
		return engine.Failed, fmt.Errorf("start render: %w", ErrBitmapInUse)
	}

	o := renderOptions{flag: &p.own, budget: lib.config.SliceBudget}
	for _, opt := range opts {
		opt(&o)
	}
	o.flag.Set(false)
	p.cancel.Store(o.flag)

	p.render = renderSession{
		state:  engine.NeedsContinue,
		target: target,
		flag:   o.flag,
		budget: o.budget,
		open:   true,
	}
	target.busy = p
	lib.log.Debug("render started", "page", p.handle, "bitmap", target.handle, "viewport", vp)

	st := lib.eng.StartRender(target.eh, p.eh, vp, flags, p.render.pauser())
	return p.settle("start render", st)
}

// ContinueRender runs the next slice of the page's render session. It
// returns ErrRenderNotActive unless the session is NeedsContinue.
func (p *Page) ContinueRender() (engine.RenderStatus, error) {
	if p == nil {
		return engine.Failed, ErrNullHandle
	}
	if err := p.use(); err != nil {
		return engine.Failed, err
	}
	defer p.doc.lib.mu.Unlock()

	if p.render.state != engine.NeedsContinue {
		return p.render.state, fmt.Errorf("continue render: session is %v: %w", p.render.state, ErrRenderNotActive)
	}
	st := p.doc.lib.eng.ContinueRender(p.eh, p.render.pauser())
	return p.settle("continue render", st)
}

// settle records the status of a finished slice. The caller holds the lock.
func (p *Page) settle(op string, st engine.RenderStatus) (engine.RenderStatus, error) {
	s := &p.render
	s.slices++
	lib := p.doc.lib

	switch st {
	case engine.Done:
		s.state = engine.Done
		lib.log.Debug("render done", "page", p.handle, "slices", s.slices)
		return engine.Done, nil
	case engine.NeedsContinue:
		if !s.flag.Cancelled() {
			s.state = engine.NeedsContinue
			return engine.NeedsContinue, nil
		}
		lib.eng.CloseRender(p.eh)
		s.open = false
		s.state = engine.Failed
		s.cause = fmt.Errorf("%s: %w", op, ErrRenderCancelled)
		lib.log.Debug("render cancelled", "page", p.handle, "slices", s.slices)
		return engine.Failed, s.cause
	default:
		s.state = engine.Failed
		if s.flag.Cancelled() {
			s.cause = fmt.Errorf("%s: %w", op, ErrRenderCancelled)
		} else {
			s.cause = fmt.Errorf("%s: %w: engine status %v", op, ErrRenderFailed, st)
			lib.log.Warn("render failed", "page", p.handle, "slices", s.slices, "status", st)
		}
		return engine.Failed, s.cause
	}
}

// CloseRender releases the page's render session and returns it to Idle.
// It is a no-op when no session exists, so calling it twice is safe.
func (p *Page) CloseRender() error {
	if p == nil {
		return nil
	}
	if err := p.use(); err != nil {
		return err
	}
	defer p.doc.lib.mu.Unlock()
	p.endRender()
	return nil
}

// endRender is CloseRender without the lock.
func (p *Page) endRender() {
	s := &p.render
	if s.state == engine.Idle {
		return
	}
	if s.open {
		p.doc.lib.eng.CloseRender(p.eh)
	}
	if s.target != nil && s.target.busy == p {
		s.target.busy = nil
	}
	*s = renderSession{state: engine.Idle}
}

// RenderState returns the state of the page's render session.
func (p *Page) RenderState() engine.RenderStatus {
	if p == nil {
		return engine.Idle
	}
	p.doc.lib.mu.Lock()
	defer p.doc.lib.mu.Unlock()
	return p.render.state
}

// RenderErr returns why the render session failed, or nil.
func (p *Page) RenderErr() error {
	if p == nil {
		return nil
	}
	p.doc.lib.mu.Lock()
	defer p.doc.lib.mu.Unlock()
	return p.render.cause
}

// SetRenderCancel sets or clears the cancel flag of the page's current
// session. Without a session it sets the flag the last session used, which
// the next StartRender clears. Safe from any goroutine.
func (p *Page) SetRenderCancel(v bool) {
	if p == nil {
		return
	}
	p.cancel.Load().Set(v)
}

// RenderCancelled reports the flag SetRenderCancel writes.
func (p *Page) RenderCancelled() bool {
	if p == nil {
		return false
	}
	return p.cancel.Load().Cancelled()
}

// Render draws the page into target in one call. It fails with
// ErrRenderActive while the page has a progressive session.
func (p *Page) Render(target *Bitmap, vp engine.Viewport, flags engine.RenderFlags) error {
	if p == nil || target == nil {
		return ErrNullHandle
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		return fmt.Errorf("render: viewport %dx%d: %w", vp.Width, vp.Height, ErrInvalidArgument)
	}
	if err := p.use(); err != nil {
		return err
	}
	lib := p.doc.lib
	defer lib.mu.Unlock()

	if err := target.usable(lib); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if p.render.state != engine.Idle {
		return fmt.Errorf("render: %w", ErrRenderActive)
	}
	if target.busy != nil {
		return fmt.Errorf("render: %w", ErrBitmapInUse)
	}
	if err := lib.eng.RenderPage(target.eh, p.eh, vp, flags); err != nil {
		err = engineError("render", err)
		lib.log.Warn("render failed", "page", p.handle, "err", err)
		return fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	return nil
}
