package pdfbridge

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jpl-au/pdfbridge/engine"
	"github.com/jpl-au/pdfbridge/engine/enginetest"
)

var testViewport = engine.Viewport{Width: 40, Height: 40}

// renderFixture returns a page whose render takes four slices.
func renderFixture(t *testing.T) (*Library, *enginetest.Engine, *Page, *Bitmap) {
	t.Helper()
	lib, eng := newTestLibrary(t, enginetest.Options{SliceUnits: 1})
	doc := loadTestDoc(t, lib, testDocument())
	page := loadTestPage(t, doc, 0)
	bmp, err := lib.CreateBitmap(40, 40, true)
	if err != nil {
		t.Fatalf("CreateBitmap: %v", err)
	}
	return lib, eng, page, bmp
}

func assertNoViolations(t *testing.T, eng *enginetest.Engine) {
	t.Helper()
	s := eng.Stats()
	if s.Violations != 0 || s.DoubleClose != 0 {
		t.Errorf("engine saw misuse: %v", eng)
	}
}

func TestStartRenderRunsToDone(t *testing.T) {
	_, eng, page, bmp := renderFixture(t)

	st, err := page.StartRender(bmp, testViewport, 0)
	if err != nil || st != engine.NeedsContinue {
		t.Fatalf("StartRender = %v, %v; want needs-continue", st, err)
	}

	continues := 0
	for st == engine.NeedsContinue {
		st, err = page.ContinueRender()
		continues++
	}
	if err != nil || st != engine.Done {
		t.Fatalf("final status = %v, %v; want done", st, err)
	}
	if continues != 3 {
		t.Errorf("continues = %d, want 3", continues)
	}
	if page.RenderState() != engine.Done {
		t.Errorf("RenderState = %v, want done", page.RenderState())
	}

	buf, _ := bmp.Buffer()
	if buf[3] != 0xFF || buf[len(buf)-1] != 0xFF {
		t.Error("bitmap not painted by render")
	}
	page.CloseRender()
	assertNoViolations(t, eng)
}

func TestStartRenderStatusNeverAmbiguous(t *testing.T) {
	tests := []struct {
		name   string
		opts   enginetest.Options
		page   enginetest.Page
		status engine.RenderStatus
		err    error
	}{
		{"single slice", enginetest.Options{}, enginetest.Page{Width: 100, Height: 100}, engine.Done, nil},
		{"sliced", enginetest.Options{SliceUnits: 2}, enginetest.Page{Width: 100, Height: 100}, engine.NeedsContinue, nil},
		{"fails", enginetest.Options{}, enginetest.Page{Width: 100, Height: 100, FailAt: 1}, engine.Failed, ErrRenderFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, eng := newTestLibrary(t, tt.opts)
			doc := loadTestDoc(t, lib, enginetest.Document{Pages: []enginetest.Page{tt.page}})
			page := loadTestPage(t, doc, 0)
			bmp, _ := lib.CreateBitmap(10, 10, false)

			st, err := page.StartRender(bmp, engine.Viewport{Width: 10, Height: 10}, 0)
			if st != tt.status {
				t.Errorf("status = %v, want %v", st, tt.status)
			}
			if !errors.Is(err, tt.err) && !(err == nil && tt.err == nil) {
				t.Errorf("error = %v, want %v", err, tt.err)
			}
			if page.RenderState() != st {
				t.Errorf("RenderState = %v, want %v", page.RenderState(), st)
			}
			if st == engine.Failed && !errors.Is(page.RenderErr(), ErrRenderFailed) {
				t.Errorf("RenderErr = %v, want ErrRenderFailed", page.RenderErr())
			}
			page.CloseRender()
			assertNoViolations(t, eng)
		})
	}
}

func TestCloseRenderIdempotent(t *testing.T) {
	_, eng, page, bmp := renderFixture(t)

	if err := page.CloseRender(); err != nil {
		t.Fatalf("CloseRender from idle: %v", err)
	}

	page.StartRender(bmp, testViewport, 0)
	for st := engine.NeedsContinue; st == engine.NeedsContinue; {
		st, _ = page.ContinueRender()
	}
	if err := page.CloseRender(); err != nil {
		t.Fatalf("CloseRender: %v", err)
	}
	if err := page.CloseRender(); err != nil {
		t.Fatalf("second CloseRender: %v", err)
	}
	if page.RenderState() != engine.Idle {
		t.Errorf("RenderState = %v, want idle", page.RenderState())
	}
	assertNoViolations(t, eng)
}

func TestCancelTerminates(t *testing.T) {
	lib, eng := newTestLibrary(t, enginetest.Options{SliceUnits: 1})
	doc := loadTestDoc(t, lib, enginetest.Document{Pages: []enginetest.Page{{Width: 612, Height: 792, Units: 1000}}})
	page := loadTestPage(t, doc, 0)
	bmp, _ := lib.CreateBitmap(200, 200, false)

	st, err := page.StartRender(bmp, engine.Viewport{Width: 200, Height: 200}, 0)
	if st != engine.NeedsContinue {
		t.Fatalf("StartRender = %v, %v; want needs-continue", st, err)
	}
	page.SetRenderCancel(true)

	continues := 0
	for st == engine.NeedsContinue && continues < 10 {
		st, err = page.ContinueRender()
		continues++
	}
	if st != engine.Failed && st != engine.Done {
		t.Fatalf("status after %d continues = %v, want terminal", continues, st)
	}
	if continues != 1 {
		t.Errorf("continues = %d, want 1", continues)
	}
	if !errors.Is(err, ErrRenderCancelled) {
		t.Errorf("error = %v, want ErrRenderCancelled", err)
	}

	// The engine session is already released; closing must not release it
	// again.
	page.CloseRender()
	assertNoViolations(t, eng)
}

func TestFreshSessionIgnoresStaleCancel(t *testing.T) {
	lib, eng := newTestLibrary(t, enginetest.Options{})
	doc := loadTestDoc(t, lib, testDocument())
	page := loadTestPage(t, doc, 0)
	bmp, _ := lib.CreateBitmap(10, 10, false)
	vp := engine.Viewport{Width: 10, Height: 10}

	if st, err := page.StartRender(bmp, vp, 0); st != engine.Done {
		t.Fatalf("first StartRender = %v, %v", st, err)
	}
	page.SetRenderCancel(true)
	page.CloseRender()
	if !page.RenderCancelled() {
		t.Fatal("cancel flag not retained after close")
	}

	st, err := page.StartRender(bmp, vp, 0)
	if st != engine.Done || err != nil {
		t.Fatalf("second StartRender = %v, %v; want done", st, err)
	}
	if page.RenderCancelled() {
		t.Error("StartRender did not clear the cancel flag")
	}
	page.CloseRender()
	assertNoViolations(t, eng)
}

func TestRenderContractViolations(t *testing.T) {
	_, eng, page, bmp := renderFixture(t)

	if st, err := page.ContinueRender(); !errors.Is(err, ErrRenderNotActive) || st != engine.Idle {
		t.Errorf("ContinueRender from idle = %v, %v; want idle, ErrRenderNotActive", st, err)
	}

	page.StartRender(bmp, testViewport, 0)
	if st, err := page.StartRender(bmp, testViewport, 0); !errors.Is(err, ErrRenderActive) || st != engine.NeedsContinue {
		t.Errorf("second StartRender = %v, %v; want needs-continue, ErrRenderActive", st, err)
	}
	if err := page.Render(bmp, testViewport, 0); !errors.Is(err, ErrRenderActive) {
		t.Errorf("Render during session = %v, want ErrRenderActive", err)
	}
	if err := bmp.Destroy(); !errors.Is(err, ErrBitmapInUse) {
		t.Errorf("Destroy during session = %v, want ErrBitmapInUse", err)
	}

	for st := engine.NeedsContinue; st == engine.NeedsContinue; {
		st, _ = page.ContinueRender()
	}
	if st, err := page.ContinueRender(); !errors.Is(err, ErrRenderNotActive) || st != engine.Done {
		t.Errorf("ContinueRender after done = %v, %v", st, err)
	}
	if _, err := page.StartRender(bmp, testViewport, 0); !errors.Is(err, ErrRenderActive) {
		t.Errorf("StartRender before close = %v, want ErrRenderActive", err)
	}

	page.CloseRender()
	if err := bmp.Destroy(); err != nil {
		t.Errorf("Destroy after close: %v", err)
	}
	assertNoViolations(t, eng)
}

func TestBitmapSharedBetweenPages(t *testing.T) {
	lib, eng := newTestLibrary(t, enginetest.Options{SliceUnits: 1})
	doc := loadTestDoc(t, lib, testDocument())
	p0 := loadTestPage(t, doc, 0)
	p1 := loadTestPage(t, doc, 1)
	bmp, _ := lib.CreateBitmap(40, 40, false)

	p0.StartRender(bmp, testViewport, 0)
	if _, err := p1.StartRender(bmp, testViewport, 0); !errors.Is(err, ErrBitmapInUse) {
		t.Errorf("StartRender on busy bitmap = %v, want ErrBitmapInUse", err)
	}
	if p1.RenderState() != engine.Idle {
		t.Errorf("rejected page state = %v, want idle", p1.RenderState())
	}
	p0.CloseRender()
	assertNoViolations(t, eng)
}

func TestClosePageEndsRender(t *testing.T) {
	_, eng, page, bmp := renderFixture(t)

	page.StartRender(bmp, testViewport, 0)
	if err := page.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := page.ContinueRender(); err != ErrUseAfterClose {
		t.Errorf("ContinueRender after Close = %v, want ErrUseAfterClose", err)
	}
	if err := bmp.Destroy(); err != nil {
		t.Errorf("Destroy after page close: %v", err)
	}
	assertNoViolations(t, eng)
}

func TestSharedCancelFlag(t *testing.T) {
	lib, eng := newTestLibrary(t, enginetest.Options{SliceUnits: 1})
	doc := loadTestDoc(t, lib, testDocument())
	p0 := loadTestPage(t, doc, 0)
	p1 := loadTestPage(t, doc, 1)
	b0, _ := lib.CreateBitmap(40, 40, false)
	b1, _ := lib.CreateBitmap(40, 40, false)

	var flag CancelFlag
	p0.StartRender(b0, testViewport, 0, WithCancelFlag(&flag))
	p1.StartRender(b1, testViewport, 0, WithCancelFlag(&flag))

	flag.Set(true)
	if !p0.RenderCancelled() || !p1.RenderCancelled() {
		t.Fatal("shared flag not visible through pages")
	}
	for _, p := range []*Page{p0, p1} {
		if st, err := p.ContinueRender(); st != engine.Failed || !errors.Is(err, ErrRenderCancelled) {
			t.Errorf("ContinueRender = %v, %v; want failed, ErrRenderCancelled", st, err)
		}
		p.CloseRender()
	}
	assertNoViolations(t, eng)
}

func TestSliceBudget(t *testing.T) {
	lib, eng := newTestLibrary(t, enginetest.Options{UnitDelay: time.Millisecond})
	doc := loadTestDoc(t, lib, testDocument())
	page := loadTestPage(t, doc, 0)
	bmp, _ := lib.CreateBitmap(40, 40, false)

	// Every unit outlasts the budget, so the slice pauses at the checkpoint
	// after its first unit at the latest.
	st, err := page.StartRender(bmp, testViewport, 0, WithSliceBudget(time.Nanosecond))
	if st != engine.NeedsContinue || err != nil {
		t.Fatalf("StartRender = %v, %v; want needs-continue", st, err)
	}
	page.CloseRender()

	st, err = page.StartRender(bmp, testViewport, 0, WithSliceBudget(0))
	if st != engine.Done || err != nil {
		t.Fatalf("StartRender without budget = %v, %v; want done", st, err)
	}
	page.CloseRender()
	assertNoViolations(t, eng)
}

func TestCancelFromAnotherGoroutine(t *testing.T) {
	_, eng, page, bmp := renderFixture(t)

	st, _ := page.StartRender(bmp, testViewport, 0)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		page.SetRenderCancel(true)
	}()
	wg.Wait()

	for i := 0; st == engine.NeedsContinue && i < 10; i++ {
		st, _ = page.ContinueRender()
	}
	if !st.Terminal() {
		t.Errorf("status = %v, want terminal", st)
	}
	page.CloseRender()
	assertNoViolations(t, eng)
}

func TestImmediateRender(t *testing.T) {
	lib, eng := newTestLibrary(t, enginetest.Options{})
	doc := loadTestDoc(t, lib, enginetest.Document{Pages: []enginetest.Page{
		{Width: 10, Height: 10, Color: 0xFF336699},
		{Width: 10, Height: 10, FailAt: 2},
	}})
	ok := loadTestPage(t, doc, 0)
	bad := loadTestPage(t, doc, 1)
	bmp, _ := lib.CreateBitmap(4, 4, true)
	vp := engine.Viewport{Width: 4, Height: 4}

	if err := ok.Render(bmp, vp, engine.RenderAnnotations); err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, _ := bmp.Image()
	if c := img.NRGBAAt(3, 3); c.R != 0x33 || c.G != 0x66 || c.B != 0x99 || c.A != 0xFF {
		t.Errorf("pixel = %v, want 336699ff", c)
	}

	if err := bad.Render(bmp, vp, 0); !errors.Is(err, ErrRenderFailed) || !errors.Is(err, ErrPage) {
		t.Errorf("Render failing page = %v, want ErrRenderFailed wrapping ErrPage", err)
	}
	if err := ok.Render(bmp, engine.Viewport{}, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Render empty viewport = %v, want ErrInvalidArgument", err)
	}
	assertNoViolations(t, eng)
}
