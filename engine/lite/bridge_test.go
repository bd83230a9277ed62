package lite_test

import (
	"errors"
	"testing"

	"github.com/jpl-au/pdfbridge"
	"github.com/jpl-au/pdfbridge/engine"
	"github.com/jpl-au/pdfbridge/engine/lite"
)

func TestThroughLibrary(t *testing.T) {
	lib, err := pdfbridge.New(lite.New(lite.Options{SliceItems: 1}), pdfbridge.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer lib.Close()

	doc, err := lib.LoadDocument(lite.BuildPDF("Bridge", lite.FirstPage, lite.SecondPage), "")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if title, _ := doc.Metadata("Title"); title != "Bridge" {
		t.Errorf("Title = %q", title)
	}
	page, err := doc.LoadPage(0)
	if err != nil {
		t.Fatal(err)
	}
	bmp, _ := lib.CreateBitmap(200, 100, false)

	st, err := page.StartRender(bmp, engine.Viewport{Width: 200, Height: 100}, 0)
	if st != engine.NeedsContinue || err != nil {
		t.Fatalf("StartRender = %v, %v", st, err)
	}
	if lib.Save(doc, engine.SaveNoIncremental) != 0 {
		t.Error("Save during render succeeded")
	}
	for st == engine.NeedsContinue {
		st, err = page.ContinueRender()
	}
	if st != engine.Done || err != nil {
		t.Fatalf("render ended %v, %v", st, err)
	}
	page.CloseRender()

	img, err := bmp.Image()
	if err != nil {
		t.Fatal(err)
	}
	if c := img.NRGBAAt(30, 75); c.B != 0xFF || c.R != 0 {
		t.Errorf("pixel = %+v, want blue", c)
	}

	tp, _ := page.LoadText()
	s, _ := tp.FindStart("pdf", 0, 0)
	if !s.Next() || s.ResultIndex() != 6 {
		t.Errorf("search index = %d", s.ResultIndex())
	}

	if n := lib.SaveWithVersion(doc, engine.SaveNoIncremental, 17); n == 0 {
		t.Fatalf("SaveWithVersion: %v", lib.LastError())
	}
	if _, err := lib.LoadDocument(lib.Buffer().Bytes(), ""); err != nil {
		t.Errorf("reload saved buffer: %v", err)
	}

	if _, err := lib.LoadDocument([]byte("%PDF-garbage"), ""); !errors.Is(err, pdfbridge.ErrFormat) {
		t.Errorf("garbage error = %v, want ErrFormat", err)
	}
}
