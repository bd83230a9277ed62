// Package engine defines the contract between the pdfbridge boundary layer
// and a document engine.
//
// An engine owns every document, page, text page, search and bitmap it hands
// out. Handles are opaque values chosen by the engine; the zero Handle is the
// null handle and is never returned for a live resource. All calls are
// synchronous and run to completion. Engines are not required to be safe for
// concurrent use: the boundary layer serializes every call.
//
// Text crosses the contract as UTF-16LE code units without a terminator,
// which is the native wide-string form of pdfium.
package engine

import "io"

// Handle is an engine-issued opaque reference. Null is never a live handle.
type Handle uint64

// Null is the null handle.
const Null Handle = 0

// Pauser is polled by an engine at its render checkpoints. Returning true
// asks the engine to end the current slice and report NeedsContinue.
type Pauser interface {
	NeedToPause() bool
}

// PauserFunc adapts a function to Pauser.
type PauserFunc func() bool

// NeedToPause calls f.
func (f PauserFunc) NeedToPause() bool { return f() }

// Never is a Pauser that never pauses.
var Never Pauser = PauserFunc(func() bool { return false })

// Documents covers document lifecycle, metadata and serialization.
type Documents interface {
	// LoadDocument parses data. The engine may retain data until
	// CloseDocument, so callers must not modify it while the document is open.
	LoadDocument(data []byte, password string) (Handle, error)
	CloseDocument(doc Handle)
	PageCount(doc Handle) int
	// MetaText returns the UTF-16LE value of an info dictionary entry.
	MetaText(doc Handle, tag string) []byte
	// Save writes the serialized document to w. version 0 keeps the
	// document's version, otherwise it is the PDF version times ten.
	Save(doc Handle, w io.Writer, flags SaveFlags, version int) error
}

// Pages covers page lifecycle and geometry.
type Pages interface {
	LoadPage(doc Handle, index int) (Handle, error)
	ClosePage(page Handle)
	PageSize(page Handle) (width, height float64)
}

// Bitmaps covers render targets. Pixels are 4 bytes, BGRA order.
type Bitmaps interface {
	CreateBitmap(width, height int, alpha bool) (Handle, error)
	DestroyBitmap(bmp Handle)
	BitmapBuffer(bmp Handle) []byte
	BitmapStride(bmp Handle) int
	FillRect(bmp Handle, left, top, width, height int, argb uint32)
}

// Renderer covers immediate and progressive rendering.
//
// A progressive render is started with StartRender and resumed with
// ContinueRender while the status is NeedsContinue. CloseRender releases the
// progressive state and must be called before another StartRender on the
// same page.
type Renderer interface {
	RenderPage(bmp, page Handle, vp Viewport, flags RenderFlags) error
	StartRender(bmp, page Handle, vp Viewport, flags RenderFlags, p Pauser) RenderStatus
	ContinueRender(page Handle, p Pauser) RenderStatus
	CloseRender(page Handle)
}

// Texts covers character-indexed access to a page's text run.
type Texts interface {
	LoadTextPage(page Handle) (Handle, error)
	CloseTextPage(tp Handle)
	CharCount(tp Handle) int
	CharInfo(tp Handle, index int) (Char, bool)
	Text(tp Handle, start, count int) []byte
	BoundedText(tp Handle, r Rect) []byte
	CountRects(tp Handle, start, count int) int
	Rect(tp Handle, index int) (Rect, bool)
	CharIndexAt(tp Handle, x, y, tolX, tolY float64) int
}

// Searcher covers the stateful search cursor over a text page.
type Searcher interface {
	FindStart(tp Handle, query []byte, flags SearchFlags, start int) (Handle, error)
	FindNext(sh Handle) bool
	FindPrev(sh Handle) bool
	ResultIndex(sh Handle) int
	ResultCount(sh Handle) int
	FindClose(sh Handle)
}

// Engine is the full document engine.
type Engine interface {
	Init() error
	Destroy()
	// LastError reports the code of the most recent failed load or save.
	LastError() ErrorCode

	Documents
	Pages
	Bitmaps
	Renderer
	Texts
	Searcher
}

// Char describes one character of a text page.
type Char struct {
	Unicode  rune
	Box      Rect
	Origin   Point
	FontSize float64
	Angle    float64
	Weight   int
	Fill     Color
	Stroke   Color
}
