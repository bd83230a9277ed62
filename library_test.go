package pdfbridge

import (
	"errors"
	"testing"

	"github.com/jpl-au/pdfbridge/engine"
	"github.com/jpl-au/pdfbridge/engine/enginetest"
)

func newTestLibrary(t *testing.T, opts enginetest.Options) (*Library, *enginetest.Engine) {
	t.Helper()
	eng := enginetest.New(opts)
	lib, err := New(eng, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib, eng
}

func testDocument() enginetest.Document {
	return enginetest.Document{
		Pages: []enginetest.Page{
			{Width: 612, Height: 792, Text: "Hello world, hello Go"},
			{Width: 792, Height: 612, Text: "second page"},
		},
		Meta: map[string]string{"Title": "Quarterly Report", "Author": "Ops"},
	}
}

func loadTestDoc(t *testing.T, lib *Library, d enginetest.Document) *Document {
	t.Helper()
	doc, err := lib.LoadDocument(enginetest.Encode(d), d.Password)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	return doc
}

func loadTestPage(t *testing.T, doc *Document, index int) *Page {
	t.Helper()
	p, err := doc.LoadPage(index)
	if err != nil {
		t.Fatalf("LoadPage(%d): %v", index, err)
	}
	return p
}

func TestNewNilEngine(t *testing.T) {
	_, err := New(nil, Config{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("New(nil) error = %v, want ErrInvalidArgument", err)
	}
}

func TestNewDefaultConfig(t *testing.T) {
	lib, eng := newTestLibrary(t, enginetest.Options{})

	if lib.config.DigestAlgorithm != AlgXXHash3 {
		t.Errorf("DigestAlgorithm = %d, want %d", lib.config.DigestAlgorithm, AlgXXHash3)
	}
	if lib.config.MaxDocumentSize != 256*1024*1024 {
		t.Errorf("MaxDocumentSize = %d, want %d", lib.config.MaxDocumentSize, 256*1024*1024)
	}
	if lib.config.Logger == nil {
		t.Error("Logger is nil, want discarding logger")
	}
	if n := eng.Stats().InitCalls; n != 1 {
		t.Errorf("InitCalls = %d, want 1", n)
	}
}

func TestNewInvalidDigest(t *testing.T) {
	_, err := New(enginetest.New(enginetest.Options{}), Config{DigestAlgorithm: 9})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	eng := enginetest.New(enginetest.Options{})
	lib, _ := New(eng, Config{})

	if err := lib.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := lib.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if n := eng.Stats().DestroyCalls; n != 1 {
		t.Errorf("DestroyCalls = %d, want 1", n)
	}
}

func TestClosedLibrary(t *testing.T) {
	eng := enginetest.New(enginetest.Options{})
	lib, _ := New(eng, Config{})
	doc := loadTestDoc(t, lib, testDocument())
	lib.Close()

	if _, err := lib.LoadDocument(enginetest.Encode(testDocument()), ""); err != ErrClosed {
		t.Errorf("LoadDocument after Close = %v, want ErrClosed", err)
	}
	if _, err := doc.PageCount(); err != ErrClosed {
		t.Errorf("PageCount after Close = %v, want ErrClosed", err)
	}
	if _, err := lib.CreateBitmap(1, 1, false); err != ErrClosed {
		t.Errorf("CreateBitmap after Close = %v, want ErrClosed", err)
	}
	if doc.Handle() != 0 {
		t.Errorf("Handle after Close = %v, want 0", doc.Handle())
	}
}

func TestCloseCascades(t *testing.T) {
	eng := enginetest.New(enginetest.Options{SliceUnits: 1})
	lib, _ := New(eng, Config{})
	doc := loadTestDoc(t, lib, testDocument())
	page := loadTestPage(t, doc, 0)
	tp, _ := page.LoadText()
	tp.FindStart("hello", 0, 0)
	bmp, _ := lib.CreateBitmap(10, 10, true)
	if st, _ := page.StartRender(bmp, engine.Viewport{Width: 10, Height: 10}, 0); st != engine.NeedsContinue {
		t.Fatalf("StartRender = %v, want needs-continue", st)
	}
	lib.Alloc(16)

	lib.Close()

	s := eng.Stats()
	for k := enginetest.KindDocument; k <= enginetest.KindBitmap; k++ {
		if s.Live(k) != 0 {
			t.Errorf("kind %d live = %d, want 0", k, s.Live(k))
		}
	}
	if s.DoubleClose != 0 {
		t.Errorf("DoubleClose = %d, want 0", s.DoubleClose)
	}
	if s.Violations != 0 {
		t.Errorf("Violations = %d, want 0", s.Violations)
	}
}

func TestLoadDocumentErrors(t *testing.T) {
	lib, eng := newTestLibrary(t, enginetest.Options{})
	locked := testDocument()
	locked.Password = "secret"

	tests := []struct {
		name     string
		data     []byte
		password string
		want     error
		code     engine.ErrorCode
	}{
		{"empty", nil, "", ErrInvalidArgument, engine.CodeSuccess},
		{"format", []byte("not a document"), "", ErrFormat, engine.CodeFormat},
		{"password", enginetest.Encode(locked), "wrong", ErrPassword, engine.CodePassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lib.LoadDocument(tt.data, tt.password)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if tt.code != engine.CodeSuccess && lib.LastError() != tt.code {
				t.Errorf("LastError = %v, want %v", lib.LastError(), tt.code)
			}
		})
	}
	if n := eng.Stats().Opened[enginetest.KindDocument]; n != 0 {
		t.Errorf("documents opened = %d, want 0", n)
	}

	doc, err := lib.LoadDocument(enginetest.Encode(locked), "secret")
	if err != nil {
		t.Fatalf("LoadDocument with password: %v", err)
	}
	doc.Close()
}

func TestLoadDocumentTooLarge(t *testing.T) {
	eng := enginetest.New(enginetest.Options{})
	lib, _ := New(eng, Config{MaxDocumentSize: 8})
	defer lib.Close()

	_, err := lib.LoadDocument(enginetest.Encode(testDocument()), "")
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("error = %v, want ErrTooLarge", err)
	}
}

func TestLoadDocumentCopiesData(t *testing.T) {
	lib, _ := newTestLibrary(t, enginetest.Options{})
	data := enginetest.Encode(testDocument())
	doc, err := lib.LoadDocument(data, "")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	clear(data)
	if &doc.data[0] == &data[0] {
		t.Error("document aliases caller data")
	}
}

func TestLive(t *testing.T) {
	lib, _ := newTestLibrary(t, enginetest.Options{})
	doc := loadTestDoc(t, lib, testDocument())
	page := loadTestPage(t, doc, 0)

	kinds := map[Kind]int{}
	for _, k := range lib.Live() {
		kinds[k]++
	}
	if kinds[KindDocument] != 1 || kinds[KindPage] != 1 {
		t.Errorf("Live kinds = %v, want one document and one page", kinds)
	}

	page.Close()
	doc.Close()
	for h, k := range lib.Live() {
		t.Errorf("leaked %v %v", k, h)
	}
}

func TestResolveHandles(t *testing.T) {
	lib, _ := newTestLibrary(t, enginetest.Options{})
	doc := loadTestDoc(t, lib, testDocument())
	page := loadTestPage(t, doc, 1)

	got, err := lib.Document(doc.Handle())
	if err != nil || got != doc {
		t.Fatalf("Document(handle) = %p, %v; want %p", got, err, doc)
	}
	if _, err := lib.Page(doc.Handle()); !errors.Is(err, ErrHandleKind) {
		t.Errorf("Page(document handle) error = %v, want ErrHandleKind", err)
	}
	if _, err := lib.Page(0); err != ErrNullHandle {
		t.Errorf("Page(0) error = %v, want ErrNullHandle", err)
	}

	h := page.Handle()
	page.Close()
	if _, err := lib.Page(h); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Page(closed handle) error = %v, want ErrStaleHandle", err)
	}
}

func TestNilReceivers(t *testing.T) {
	var lib *Library
	var doc *Document
	var page *Page
	var tp *TextPage
	var s *SearchSession
	var bmp *Bitmap

	if lib.Save(nil, 0) != 0 {
		t.Error("nil Library.Save != 0")
	}
	if lib.Close() != nil || doc.Close() != nil || page.Close() != nil ||
		tp.Close() != nil || s.Close() != nil || bmp.Destroy() != nil {
		t.Error("nil Close returned an error")
	}
	if _, err := doc.PageCount(); err != ErrNullHandle {
		t.Errorf("nil PageCount error = %v", err)
	}
	if st, err := page.StartRender(nil, engine.Viewport{}, 0); st != engine.Failed || err != ErrNullHandle {
		t.Errorf("nil StartRender = %v, %v", st, err)
	}
	if page.CloseRender() != nil {
		t.Error("nil CloseRender returned an error")
	}
	if s.Next() || s.Prev() {
		t.Error("nil search moved")
	}
	if s.ResultIndex() != -1 || s.ResultCount() != 0 {
		t.Error("nil search results not sentinel")
	}
	if lib.Buffer().Bytes() != nil {
		t.Error("nil Buffer().Bytes() != nil")
	}
}
