package lite

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/jpl-au/pdfbridge/engine"
)

// buildPDF writes a minimal PDF with one Helvetica font and one content
// stream per page. Pages are 200x100 points.
func buildPDF(title string, contents ...string) []byte {
	var objs []string
	kids := ""
	for i := range contents {
		kids += fmt.Sprintf("%d 0 R ", 5+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(contents)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Title (%s) /Producer (lite test) >>", title),
	)
	for i, c := range contents {
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] "+
				"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 6+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(c)+1, c),
		)
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

const (
	firstPage  = "0 0 1 rg 10 10 50 30 re f BT /F1 12 Tf 20 60 Td (Hello PDF) Tj ET"
	secondPage = "BT /F1 10 Tf 20 80 Td (second page) Tj ET"
)

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e := New(opts)
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(e.Destroy)
	return e
}

func openPage(t *testing.T, e *Engine, index int) (engine.Handle, engine.Handle) {
	t.Helper()
	doc, err := e.LoadDocument(buildPDF("Lite Test", firstPage, secondPage), "")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	page, err := e.LoadPage(doc, index)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	return doc, page
}

func TestLoadDocument(t *testing.T) {
	e := newEngine(t, Options{})
	doc, page := openPage(t, e, 1)

	if n := e.PageCount(doc); n != 2 {
		t.Errorf("PageCount = %d, want 2", n)
	}
	if got := decodeUTF16(e.MetaText(doc, "Title")); got != "Lite Test" {
		t.Errorf("Title = %q", got)
	}
	if w, h := e.PageSize(page); w != 200 || h != 100 {
		t.Errorf("PageSize = %v x %v", w, h)
	}
	if _, err := e.LoadPage(doc, 2); !errors.Is(err, engine.CodePage) {
		t.Errorf("LoadPage(2) error = %v", err)
	}
}

func TestLoadGarbage(t *testing.T) {
	e := newEngine(t, Options{})
	for _, data := range [][]byte{nil, []byte("not a pdf at all")} {
		if _, err := e.LoadDocument(data, ""); err == nil {
			t.Errorf("LoadDocument(%q) succeeded", data)
		}
		if e.LastError() == engine.CodeSuccess {
			t.Error("LastError not set")
		}
	}
}

func TestTextRun(t *testing.T) {
	e := newEngine(t, Options{})
	_, page := openPage(t, e, 0)
	tp, err := e.LoadTextPage(page)
	if err != nil {
		t.Fatal(err)
	}

	if n := e.CharCount(tp); n != 9 {
		t.Fatalf("CharCount = %d, want 9", n)
	}
	if got := decodeUTF16(e.Text(tp, 0, -1)); got != "Hello PDF" {
		t.Errorf("Text = %q", got)
	}
	c, ok := e.CharInfo(tp, 0)
	if !ok || c.Unicode != 'H' || c.FontSize != 12 || c.Origin.X != 20 || c.Origin.Y != 60 {
		t.Errorf("CharInfo(0) = %+v, %v", c, ok)
	}
	if i := e.CharIndexAt(tp, c.Box.Left+1, 62, 0, 0); i != 0 {
		t.Errorf("CharIndexAt = %d, want 0", i)
	}
	if i := e.CharIndexAt(tp, 190, 5, 1, 1); i != -1 {
		t.Errorf("CharIndexAt(empty) = %d, want -1", i)
	}
	if n := e.CountRects(tp, 0, -1); n != 1 {
		t.Errorf("CountRects = %d, want 1", n)
	}
	if got := decodeUTF16(e.Text(tp, 1, math.MaxInt)); got != "ello PDF" {
		t.Errorf("Text(1, MaxInt) = %q", got)
	}
	if n := e.CountRects(tp, 1, math.MaxInt); n != 1 {
		t.Errorf("CountRects(1, MaxInt) = %d, want 1", n)
	}
	if r, ok := e.Rect(tp, 0); !ok || r.Left != 20 || r.Bottom >= 60 || r.Top <= 60 {
		t.Errorf("Rect(0) = %+v, %v", r, ok)
	}
	got := decodeUTF16(e.BoundedText(tp, engine.Rect{Left: 0, Right: c.Box.Right + 0.1, Bottom: 0, Top: 100}))
	if got != "H" {
		t.Errorf("BoundedText = %q, want H", got)
	}
}

func TestSearch(t *testing.T) {
	e := newEngine(t, Options{})
	_, page := openPage(t, e, 0)
	tp, _ := e.LoadTextPage(page)

	tests := []struct {
		query string
		flags engine.SearchFlags
		want  int
	}{
		{"pdf", 0, 6},
		{"pdf", engine.MatchCase, -1},
		{"PDF", engine.MatchCase, 6},
		{"ell", engine.MatchWholeWord, -1},
		{"hello", engine.MatchWholeWord, 0},
	}
	for _, tt := range tests {
		s, err := e.FindStart(tp, encodeUTF16(tt.query), tt.flags, 0)
		if err != nil {
			t.Fatal(err)
		}
		got := -1
		if e.FindNext(s) {
			got = e.ResultIndex(s)
		}
		if got != tt.want {
			t.Errorf("%q flags %d: index %d, want %d", tt.query, tt.flags, got, tt.want)
		}
		e.FindClose(s)
	}
}

// pixel returns the BGRA bytes at (x, y).
func pixel(e *Engine, bmp engine.Handle, x, y int) [4]byte {
	buf, stride := e.BitmapBuffer(bmp), e.BitmapStride(bmp)
	i := y*stride + x*4
	return [4]byte(buf[i : i+4])
}

func TestRenderPage(t *testing.T) {
	e := newEngine(t, Options{})
	_, page := openPage(t, e, 0)
	bmp, _ := e.CreateBitmap(200, 100, true)
	e.FillRect(bmp, 0, 0, 200, 100, 0xFFFFFFFF)

	if err := e.RenderPage(bmp, page, engine.Viewport{Width: 200, Height: 100}, 0); err != nil {
		t.Fatal(err)
	}
	// The filled rectangle spans page y 10..40, device rows 60..90.
	if got := pixel(e, bmp, 30, 75); got != [4]byte{0xFF, 0, 0, 0xFF} {
		t.Errorf("inside rectangle = %v, want blue", got)
	}
	if got := pixel(e, bmp, 190, 5); got != [4]byte{0xFF, 0xFF, 0xFF, 0xFF} {
		t.Errorf("background = %v, want white", got)
	}
}

func TestRenderProgressive(t *testing.T) {
	e := newEngine(t, Options{SliceItems: 1})
	_, page := openPage(t, e, 0)
	bmp, _ := e.CreateBitmap(200, 100, false)
	vp := engine.Viewport{Width: 200, Height: 100}

	st := e.StartRender(bmp, page, vp, engine.RenderGrayscale, nil)
	if st != engine.NeedsContinue {
		t.Fatalf("StartRender = %v, want needs-continue", st)
	}
	if e.StartRender(bmp, page, vp, 0, nil) != engine.Failed {
		t.Error("second StartRender did not fail")
	}
	for st == engine.NeedsContinue {
		st = e.ContinueRender(page, nil)
	}
	if st != engine.Done {
		t.Fatalf("final status = %v", st)
	}
	if e.ContinueRender(page, nil) != engine.Failed {
		t.Error("ContinueRender after done did not fail")
	}
	e.CloseRender(page)

	// Grayscale blue is luminance 29.
	if got := pixel(e, bmp, 30, 75); got != [4]byte{29, 29, 29, 0xFF} {
		t.Errorf("grayscale rectangle = %v", got)
	}
}

func TestRenderPauses(t *testing.T) {
	e := newEngine(t, Options{})
	_, page := openPage(t, e, 0)
	bmp, _ := e.CreateBitmap(10, 10, false)

	always := engine.PauserFunc(func() bool { return true })
	st := e.StartRender(bmp, page, engine.Viewport{Width: 10, Height: 10}, 0, always)
	if st != engine.NeedsContinue {
		t.Fatalf("StartRender = %v, want needs-continue", st)
	}
	if st := e.ContinueRender(page, engine.Never); st != engine.Done {
		t.Errorf("ContinueRender = %v, want done", st)
	}
	e.CloseRender(page)
}

func TestSave(t *testing.T) {
	e := newEngine(t, Options{})
	data := buildPDF("Saved", firstPage)
	doc, err := e.LoadDocument(data, "")
	if err != nil {
		t.Fatal(err)
	}

	var inc bytes.Buffer
	if err := e.Save(doc, &inc, engine.SaveIncremental, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(inc.Bytes(), data) {
		t.Error("incremental save changed an unmodified document")
	}

	var full bytes.Buffer
	if err := e.Save(doc, &full, engine.SaveNoIncremental, 17); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !bytes.HasPrefix(full.Bytes(), []byte("%PDF-1.7")) {
		t.Errorf("header = %q", full.Bytes()[:min(8, full.Len())])
	}
	again, err := e.LoadDocument(full.Bytes(), "")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if e.PageCount(again) != 1 {
		t.Error("saved copy lost its page")
	}

	if err := e.Save(doc, &full, 0, 19); !errors.Is(err, engine.CodeUnknown) {
		t.Errorf("bad version error = %v", err)
	}
}

func TestBitmapFill(t *testing.T) {
	e := newEngine(t, Options{})
	bmp, _ := e.CreateBitmap(4, 4, true)
	e.FillRect(bmp, -2, 2, 100, 100, 0x80112233)

	if got := pixel(e, bmp, 3, 3); got != [4]byte{0x33, 0x22, 0x11, 0x80} {
		t.Errorf("filled pixel = %v", got)
	}
	if got := pixel(e, bmp, 0, 1); got != [4]byte{} {
		t.Errorf("unfilled pixel = %v", got)
	}
	if _, err := e.CreateBitmap(0, 4, false); err == nil {
		t.Error("zero-width bitmap created")
	}
	e.DestroyBitmap(bmp)
	if e.BitmapBuffer(bmp) != nil {
		t.Error("buffer survived DestroyBitmap")
	}
}
