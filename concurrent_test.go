package pdfbridge

import (
	"sync"
	"testing"

	"github.com/jpl-au/pdfbridge/engine"
	"github.com/jpl-au/pdfbridge/engine/enginetest"
)

func TestConcurrentPages(t *testing.T) {
	lib, eng := newTestLibrary(t, enginetest.Options{SliceUnits: 1})
	doc := loadTestDoc(t, lib, testDocument())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			page, err := doc.LoadPage(n % 2)
			if err != nil {
				t.Errorf("LoadPage: %v", err)
				return
			}
			defer page.Close()
			bmp, _ := lib.CreateBitmap(20, 20, false)
			defer bmp.Destroy()

			for j := 0; j < 10; j++ {
				st, err := page.StartRender(bmp, engine.Viewport{Width: 20, Height: 20}, 0)
				for st == engine.NeedsContinue {
					st, err = page.ContinueRender()
				}
				if st != engine.Done {
					t.Errorf("render = %v, %v", st, err)
				}
				page.CloseRender()
			}
		}(i)
	}
	wg.Wait()
	assertNoViolations(t, eng)
}

func TestConcurrentSaveAndRead(t *testing.T) {
	lib, _ := newTestLibrary(t, enginetest.Options{})
	doc := loadTestDoc(t, lib, testDocument())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if lib.Save(doc, 0) == 0 {
					t.Error("Save = 0")
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				buf := lib.Buffer()
				if b := buf.Bytes(); b != nil {
					if _, err := enginetest.Decode(b); err != nil {
						t.Errorf("torn buffer: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentCancel(t *testing.T) {
	lib, eng := newTestLibrary(t, enginetest.Options{SliceUnits: 1})
	doc := loadTestDoc(t, lib, enginetest.Document{Pages: []enginetest.Page{{Width: 10, Height: 10, Units: 1 << 20}}})
	page := loadTestPage(t, doc, 0)
	bmp, _ := lib.CreateBitmap(10, 10, false)

	st, _ := page.StartRender(bmp, engine.Viewport{Width: 10, Height: 10}, 0)
	done := make(chan engine.RenderStatus)
	go func() {
		for st == engine.NeedsContinue {
			st, _ = page.ContinueRender()
		}
		done <- st
	}()
	page.SetRenderCancel(true)

	if got := <-done; got != engine.Failed {
		t.Errorf("status = %v, want failed", got)
	}
	page.CloseRender()
	assertNoViolations(t, eng)
}
