package jshost

import (
	"github.com/dop251/goja"

	"github.com/jpl-au/pdfbridge"
	"github.com/jpl-au/pdfbridge/engine"
)

type function = func(goja.FunctionCall) goja.Value

func (h *Host) functions() map[string]function {
	return map[string]function{
		// Lifecycle
		"PDFium_Init":            h.init,
		"PDFium_Destroy":         h.destroy,
		"PDFium_GetLastError":    h.lastError,
		"PDFium_LoadMemDocument": h.loadMemDocument,
		"PDFium_CloseDocument":   h.closeDocument,
		"PDFium_GetPageCount":    h.pageCount,
		"PDFium_GetMetaText":     h.metaText,
		"PDFium_LoadPage":        h.loadPage,
		"PDFium_ClosePage":       h.closePage,
		"PDFium_GetPageWidth":    h.pageWidth,
		"PDFium_GetPageHeight":   h.pageHeight,
		"PDFium_PageToDevice":    h.pageToDevice,
		"PDFium_DeviceToPage":    h.deviceToPage,

		// Render
		"PDFium_RenderPageBitmap":      h.renderPageBitmap,
		"PDFium_RenderPageBitmapStart": h.renderStart,
		"PDFium_RenderPageContinue":    h.renderContinue,
		"PDFium_RenderPageClose":       h.renderClose,
		"PDFium_SetRenderCancel":       h.setRenderCancel,
		"PDFium_GetRenderCancel":       h.getRenderCancel,

		// Bitmaps
		"PDFium_BitmapCreate":    h.bitmapCreate,
		"PDFium_BitmapDestroy":   h.bitmapDestroy,
		"PDFium_BitmapFillRect":  h.bitmapFillRect,
		"PDFium_BitmapGetBuffer": h.bitmapBuffer,
		"PDFium_BitmapGetStride": h.bitmapStride,

		// Text
		"PDFium_LoadPageText":      h.loadPageText,
		"PDFium_ClosePageText":     h.closePageText,
		"PDFium_GetPageCharCount":  h.charCount,
		"PDFium_GetPageText":       h.pageText,
		"PDFium_GetCharBox":        h.charBox,
		"PDFium_GetCharOrigin":     h.charOrigin,
		"PDFium_GetUnicode":        h.unicode,
		"PDFium_GetFontSize":       h.fontSize,
		"PDFium_GetCharAngle":      h.charAngle,
		"PDFium_GetFontWeight":     h.fontWeight,
		"PDFium_GetFillColor":      h.fillColor,
		"PDFium_GetStrokeColor":    h.strokeColor,
		"PDFium_GetCharIndexAtPos": h.charIndexAt,
		"PDFium_CountRects":        h.countRects,
		"PDFium_GetRect":           h.rect,
		"PDFium_GetBoundedText":    h.boundedText,

		// Search
		"PDFium_FindStart":         h.findStart,
		"PDFium_FindNext":          h.findNext,
		"PDFium_FindPrev":          h.findPrev,
		"PDFium_GetSchResultIndex": h.resultIndex,
		"PDFium_GetSchCount":       h.resultCount,
		"PDFium_FindClose":         h.findClose,

		// Save
		"PDFium_SaveAsCopy":        h.saveAsCopy,
		"PDFium_SaveWithVersion":   h.saveWithVersion,
		"PDFium_GetSaveBuffer":     h.saveBuffer,
		"PDFium_GetSaveBufferSize": h.saveBufferSize,
		"PDFium_FreeSaveBuffer":    h.freeSaveBuffer,

		// Memory
		"PDFium_Malloc":    h.malloc,
		"PDFium_Free":      h.free,
		"PDFium_GetMemory": h.memory,
	}
}

// Lifecycle

// init creates the library. Calling it again while initialized is a no-op
// returning 1.
func (h *Host) init(goja.FunctionCall) goja.Value {
	if h.lib != nil {
		return h.vm.ToValue(1)
	}
	lib, err := pdfbridge.New(h.eng, h.config)
	if err != nil {
		h.log.Warn("init failed", "err", err)
		return h.vm.ToValue(0)
	}
	h.lib = lib
	h.log.Debug("host initialized")
	return h.vm.ToValue(1)
}

func (h *Host) destroy(goja.FunctionCall) goja.Value {
	if h.lib != nil {
		h.Close()
		h.log.Debug("host destroyed")
	}
	return goja.Undefined()
}

func (h *Host) lastError(goja.FunctionCall) goja.Value {
	return h.vm.ToValue(uint32(h.lib.LastError()))
}

// loadMemDocument takes the document bytes as a memory block, ArrayBuffer or
// typed array, an optional byte count and an optional password.
func (h *Host) loadMemDocument(call goja.FunctionCall) goja.Value {
	data := h.bytesArg(call, 0)
	if n := intArg(call, 1); n > 0 && n < len(data) {
		data = data[:n]
	}
	doc, err := h.lib.LoadDocument(data, stringArg(call, 2))
	if err != nil {
		h.log.Debug("load document failed", "err", err)
		return h.vm.ToValue(0)
	}
	return h.handle(doc.Handle())
}

func (h *Host) closeDocument(call goja.FunctionCall) goja.Value {
	if doc, err := h.lib.Document(handleArg(call, 0)); err == nil {
		doc.Close()
		h.pruneRects()
	}
	return goja.Undefined()
}

func (h *Host) pageCount(call goja.FunctionCall) goja.Value {
	doc, err := h.lib.Document(handleArg(call, 0))
	if err != nil {
		return h.vm.ToValue(0)
	}
	n, _ := doc.PageCount()
	return h.vm.ToValue(n)
}

// metaText follows FPDF_GetMetaText: the result is the byte length of the
// UTF-16LE value including its terminator, and the value is written only
// when the buffer can hold all of it.
func (h *Host) metaText(call goja.FunctionCall) goja.Value {
	doc, err := h.lib.Document(handleArg(call, 0))
	if err != nil {
		return h.vm.ToValue(0)
	}
	s, err := doc.Metadata(stringArg(call, 1))
	if err != nil {
		return h.vm.ToValue(0)
	}
	units := append(pdfbridge.EncodeUTF16(s), 0, 0)
	if buf := h.buffer(call, 2, intArg(call, 3)); len(buf) >= len(units) {
		copy(buf, units)
	}
	return h.vm.ToValue(len(units))
}

func (h *Host) loadPage(call goja.FunctionCall) goja.Value {
	doc, err := h.lib.Document(handleArg(call, 0))
	if err != nil {
		return h.vm.ToValue(0)
	}
	p, err := doc.LoadPage(intArg(call, 1))
	if err != nil {
		return h.vm.ToValue(0)
	}
	return h.handle(p.Handle())
}

func (h *Host) closePage(call goja.FunctionCall) goja.Value {
	if p, err := h.lib.Page(handleArg(call, 0)); err == nil {
		p.Close()
		h.pruneRects()
	}
	return goja.Undefined()
}

func (h *Host) pageWidth(call goja.FunctionCall) goja.Value {
	p, err := h.lib.Page(handleArg(call, 0))
	if err != nil {
		return h.vm.ToValue(0)
	}
	w, _, _ := p.Size()
	return h.vm.ToValue(w)
}

func (h *Host) pageHeight(call goja.FunctionCall) goja.Value {
	p, err := h.lib.Page(handleArg(call, 0))
	if err != nil {
		return h.vm.ToValue(0)
	}
	_, ht, _ := p.Size()
	return h.vm.ToValue(ht)
}

// viewport reads start_x, start_y, size_x, size_y and rotate from
// consecutive arguments starting at i.
func viewport(call goja.FunctionCall, i int) engine.Viewport {
	return engine.Viewport{
		X:      intArg(call, i),
		Y:      intArg(call, i+1),
		Width:  intArg(call, i+2),
		Height: intArg(call, i+3),
		Rotate: intArg(call, i+4),
	}
}

// point returns {x, y} as a script object.
func (h *Host) point(x, y any) goja.Value {
	o := h.vm.NewObject()
	o.Set("x", x)
	o.Set("y", y)
	return o
}

// pageToDevice(page, start_x, start_y, size_x, size_y, rotate, page_x,
// page_y) returns {x, y} in device pixels, or null.
func (h *Host) pageToDevice(call goja.FunctionCall) goja.Value {
	p, err := h.lib.Page(handleArg(call, 0))
	if err != nil {
		return goja.Null()
	}
	x, y, err := p.PageToDevice(viewport(call, 1), engine.Point{X: floatArg(call, 6), Y: floatArg(call, 7)})
	if err != nil {
		return goja.Null()
	}
	return h.point(x, y)
}

// deviceToPage(page, start_x, start_y, size_x, size_y, rotate, device_x,
// device_y) returns {x, y} in page space, or null.
func (h *Host) deviceToPage(call goja.FunctionCall) goja.Value {
	p, err := h.lib.Page(handleArg(call, 0))
	if err != nil {
		return goja.Null()
	}
	pt, err := p.DeviceToPage(viewport(call, 1), intArg(call, 6), intArg(call, 7))
	if err != nil {
		return goja.Null()
	}
	return h.point(pt.X, pt.Y)
}

// Render

// renderTarget resolves the (bitmap, page) pair every render call starts
// with.
func (h *Host) renderTarget(call goja.FunctionCall) (*pdfbridge.Bitmap, *pdfbridge.Page, bool) {
	b, err := h.lib.Bitmap(handleArg(call, 0))
	if err != nil {
		return nil, nil, false
	}
	p, err := h.lib.Page(handleArg(call, 1))
	if err != nil {
		return nil, nil, false
	}
	return b, p, true
}

// renderPageBitmap(bitmap, page, start_x, start_y, size_x, size_y, rotate,
// flags) draws the page in one call.
func (h *Host) renderPageBitmap(call goja.FunctionCall) goja.Value {
	b, p, ok := h.renderTarget(call)
	if !ok {
		return h.vm.ToValue(false)
	}
	flags := engine.RenderFlags(call.Argument(7).ToInteger())
	if err := p.Render(b, viewport(call, 2), flags); err != nil {
		h.log.Debug("render failed", "page", p.Handle(), "err", err)
		return h.vm.ToValue(false)
	}
	return h.vm.ToValue(true)
}

// renderStart takes the renderPageBitmap arguments and returns the render
// status. Every session polls the host's shared cancel flag.
func (h *Host) renderStart(call goja.FunctionCall) goja.Value {
	b, p, ok := h.renderTarget(call)
	if !ok {
		return h.vm.ToValue(int(engine.Failed))
	}
	flags := engine.RenderFlags(call.Argument(7).ToInteger())
	st, err := p.StartRender(b, viewport(call, 2), flags, pdfbridge.WithCancelFlag(&h.cancel))
	if err != nil {
		h.log.Debug("render start", "page", p.Handle(), "status", st, "err", err)
	}
	return h.vm.ToValue(int(st))
}

func (h *Host) renderContinue(call goja.FunctionCall) goja.Value {
	p, err := h.lib.Page(handleArg(call, 0))
	if err != nil {
		return h.vm.ToValue(int(engine.Failed))
	}
	st, err := p.ContinueRender()
	if err != nil {
		h.log.Debug("render continue", "page", p.Handle(), "status", st, "err", err)
	}
	return h.vm.ToValue(int(st))
}

func (h *Host) renderClose(call goja.FunctionCall) goja.Value {
	if p, err := h.lib.Page(handleArg(call, 0)); err == nil {
		p.CloseRender()
	}
	return goja.Undefined()
}

func (h *Host) setRenderCancel(call goja.FunctionCall) goja.Value {
	h.cancel.Set(call.Argument(0).ToBoolean())
	return goja.Undefined()
}

func (h *Host) getRenderCancel(goja.FunctionCall) goja.Value {
	return h.vm.ToValue(h.cancel.Cancelled())
}

// Bitmaps

func (h *Host) bitmapCreate(call goja.FunctionCall) goja.Value {
	b, err := h.lib.CreateBitmap(intArg(call, 0), intArg(call, 1), call.Argument(2).ToBoolean())
	if err != nil {
		return h.vm.ToValue(0)
	}
	return h.handle(b.Handle())
}

func (h *Host) bitmapDestroy(call goja.FunctionCall) goja.Value {
	if b, err := h.lib.Bitmap(handleArg(call, 0)); err == nil {
		if err := b.Destroy(); err != nil {
			h.log.Debug("bitmap destroy", "bitmap", b.Handle(), "err", err)
		}
	}
	return goja.Undefined()
}

// bitmapFillRect(bitmap, left, top, width, height, argb).
func (h *Host) bitmapFillRect(call goja.FunctionCall) goja.Value {
	if b, err := h.lib.Bitmap(handleArg(call, 0)); err == nil {
		c := engine.ColorFromARGB(uint32(call.Argument(5).ToInteger()))
		b.FillRect(intArg(call, 1), intArg(call, 2), intArg(call, 3), intArg(call, 4), c)
	}
	return goja.Undefined()
}

// bitmapBuffer returns an ArrayBuffer over the engine's pixels, valid until
// the bitmap is destroyed.
func (h *Host) bitmapBuffer(call goja.FunctionCall) goja.Value {
	b, err := h.lib.Bitmap(handleArg(call, 0))
	if err != nil {
		return goja.Null()
	}
	buf, err := b.Buffer()
	if err != nil || buf == nil {
		return goja.Null()
	}
	return h.vm.ToValue(h.vm.NewArrayBuffer(buf))
}

func (h *Host) bitmapStride(call goja.FunctionCall) goja.Value {
	b, err := h.lib.Bitmap(handleArg(call, 0))
	if err != nil {
		return h.vm.ToValue(0)
	}
	n, _ := b.Stride()
	return h.vm.ToValue(n)
}

// Text

func (h *Host) loadPageText(call goja.FunctionCall) goja.Value {
	p, err := h.lib.Page(handleArg(call, 0))
	if err != nil {
		return h.vm.ToValue(0)
	}
	tp, err := p.LoadText()
	if err != nil {
		return h.vm.ToValue(0)
	}
	return h.handle(tp.Handle())
}

func (h *Host) closePageText(call goja.FunctionCall) goja.Value {
	hd := handleArg(call, 0)
	if tp, err := h.lib.TextPage(hd); err == nil {
		tp.Close()
		delete(h.rects, hd)
	}
	return goja.Undefined()
}

func (h *Host) textPage(call goja.FunctionCall) (*pdfbridge.TextPage, bool) {
	tp, err := h.lib.TextPage(handleArg(call, 0))
	return tp, err == nil
}

func (h *Host) charCount(call goja.FunctionCall) goja.Value {
	tp, ok := h.textPage(call)
	if !ok {
		return h.vm.ToValue(-1)
	}
	n, err := tp.CharCount()
	if err != nil {
		return h.vm.ToValue(-1)
	}
	return h.vm.ToValue(n)
}

// pageText(textPage, buffer, bufferLen) follows FPDFText_GetText over the
// whole page: bufferLen and the result count UTF-16 code units, the result
// includes the terminator, and a null buffer asks for the length.
func (h *Host) pageText(call goja.FunctionCall) goja.Value {
	tp, ok := h.textPage(call)
	if !ok {
		return h.vm.ToValue(0)
	}
	s, err := tp.Text()
	if err != nil {
		return h.vm.ToValue(0)
	}
	units := append(pdfbridge.EncodeUTF16(s), 0, 0)
	if handleArg(call, 1) == 0 {
		return h.vm.ToValue(len(units) / 2)
	}
	buf := h.buffer(call, 1, unitBytes(call, 2))
	return h.vm.ToValue(copy(buf, units) / 2)
}

// boundedText(textPage, left, top, right, bottom, buffer, bufferLen)
// follows FPDFText_GetBoundedText: counts exclude the terminator, and a null
// buffer asks for the length.
func (h *Host) boundedText(call goja.FunctionCall) goja.Value {
	tp, ok := h.textPage(call)
	if !ok {
		return h.vm.ToValue(0)
	}
	r := engine.Rect{
		Left:   floatArg(call, 1),
		Top:    floatArg(call, 2),
		Right:  floatArg(call, 3),
		Bottom: floatArg(call, 4),
	}
	s, err := tp.BoundedText(r)
	if err != nil {
		return h.vm.ToValue(0)
	}
	units := pdfbridge.EncodeUTF16(s)
	if handleArg(call, 5) == 0 || intArg(call, 6) <= 0 {
		return h.vm.ToValue(len(units) / 2)
	}
	buf := h.buffer(call, 5, unitBytes(call, 6))
	return h.vm.ToValue(copy(buf, units) / 2)
}

func (h *Host) char(call goja.FunctionCall) (engine.Char, bool) {
	tp, ok := h.textPage(call)
	if !ok {
		return engine.Char{}, false
	}
	c, err := tp.Char(intArg(call, 1))
	return c, err == nil
}

// charBox returns {left, right, bottom, top}, or null.
func (h *Host) charBox(call goja.FunctionCall) goja.Value {
	c, ok := h.char(call)
	if !ok {
		return goja.Null()
	}
	return h.rectValue(c.Box)
}

func (h *Host) rectValue(r engine.Rect) goja.Value {
	o := h.vm.NewObject()
	o.Set("left", r.Left)
	o.Set("right", r.Right)
	o.Set("bottom", r.Bottom)
	o.Set("top", r.Top)
	return o
}

func (h *Host) charOrigin(call goja.FunctionCall) goja.Value {
	c, ok := h.char(call)
	if !ok {
		return goja.Null()
	}
	return h.point(c.Origin.X, c.Origin.Y)
}

func (h *Host) unicode(call goja.FunctionCall) goja.Value {
	c, ok := h.char(call)
	if !ok {
		return h.vm.ToValue(0)
	}
	return h.vm.ToValue(uint32(c.Unicode))
}

func (h *Host) fontSize(call goja.FunctionCall) goja.Value {
	c, ok := h.char(call)
	if !ok {
		return h.vm.ToValue(0)
	}
	return h.vm.ToValue(c.FontSize)
}

// charAngle returns -1 on failure, as FPDFText_GetCharAngle does.
func (h *Host) charAngle(call goja.FunctionCall) goja.Value {
	c, ok := h.char(call)
	if !ok {
		return h.vm.ToValue(-1)
	}
	return h.vm.ToValue(c.Angle)
}

func (h *Host) fontWeight(call goja.FunctionCall) goja.Value {
	c, ok := h.char(call)
	if !ok {
		return h.vm.ToValue(-1)
	}
	return h.vm.ToValue(c.Weight)
}

func (h *Host) colorValue(c engine.Color) goja.Value {
	o := h.vm.NewObject()
	o.Set("r", c.R)
	o.Set("g", c.G)
	o.Set("b", c.B)
	o.Set("a", c.A)
	return o
}

// fillColor returns {r, g, b, a}, or null.
func (h *Host) fillColor(call goja.FunctionCall) goja.Value {
	c, ok := h.char(call)
	if !ok {
		return goja.Null()
	}
	return h.colorValue(c.Fill)
}

func (h *Host) strokeColor(call goja.FunctionCall) goja.Value {
	c, ok := h.char(call)
	if !ok {
		return goja.Null()
	}
	return h.colorValue(c.Stroke)
}

// charIndexAt(textPage, x, y, xTolerance, yTolerance) returns the index, -1
// when no character is there, or -3 on failure.
func (h *Host) charIndexAt(call goja.FunctionCall) goja.Value {
	tp, ok := h.textPage(call)
	if !ok {
		return h.vm.ToValue(-3)
	}
	i, err := tp.CharIndexAt(floatArg(call, 1), floatArg(call, 2), floatArg(call, 3), floatArg(call, 4))
	if err != nil {
		return h.vm.ToValue(-3)
	}
	return h.vm.ToValue(i)
}

// countRects(textPage, start, count) computes the selection rectangles and
// keeps them for getRect until the next call on the same text page.
func (h *Host) countRects(call goja.FunctionCall) goja.Value {
	hd := handleArg(call, 0)
	tp, err := h.lib.TextPage(hd)
	if err != nil {
		return h.vm.ToValue(0)
	}
	rects, err := tp.SelectionRects(intArg(call, 1), intArg(call, 2))
	if err != nil {
		delete(h.rects, hd)
		return h.vm.ToValue(0)
	}
	h.rects[hd] = rects
	return h.vm.ToValue(len(rects))
}

// pruneRects drops cached rectangles of text pages closed by a page or
// document close.
func (h *Host) pruneRects() {
	for hd := range h.rects {
		if _, err := h.lib.TextPage(hd); err != nil {
			delete(h.rects, hd)
		}
	}
}

func (h *Host) rect(call goja.FunctionCall) goja.Value {
	hd := handleArg(call, 0)
	if _, err := h.lib.TextPage(hd); err != nil {
		return goja.Null()
	}
	rects, i := h.rects[hd], intArg(call, 1)
	if i < 0 || i >= len(rects) {
		return goja.Null()
	}
	return h.rectValue(rects[i])
}

// Search

// findStart(textPage, query, flags, startIndex) takes the query as a
// script string.
func (h *Host) findStart(call goja.FunctionCall) goja.Value {
	tp, ok := h.textPage(call)
	if !ok {
		return h.vm.ToValue(0)
	}
	flags := engine.SearchFlags(call.Argument(2).ToInteger())
	s, err := tp.FindStart(stringArg(call, 1), flags, intArg(call, 3))
	if err != nil {
		return h.vm.ToValue(0)
	}
	return h.handle(s.Handle())
}

func (h *Host) search(call goja.FunctionCall) (*pdfbridge.SearchSession, bool) {
	s, err := h.lib.Search(handleArg(call, 0))
	return s, err == nil
}

func (h *Host) findNext(call goja.FunctionCall) goja.Value {
	s, ok := h.search(call)
	return h.vm.ToValue(ok && s.Next())
}

func (h *Host) findPrev(call goja.FunctionCall) goja.Value {
	s, ok := h.search(call)
	return h.vm.ToValue(ok && s.Prev())
}

func (h *Host) resultIndex(call goja.FunctionCall) goja.Value {
	s, ok := h.search(call)
	if !ok {
		return h.vm.ToValue(-1)
	}
	return h.vm.ToValue(s.ResultIndex())
}

func (h *Host) resultCount(call goja.FunctionCall) goja.Value {
	s, ok := h.search(call)
	if !ok {
		return h.vm.ToValue(0)
	}
	return h.vm.ToValue(s.ResultCount())
}

func (h *Host) findClose(call goja.FunctionCall) goja.Value {
	if s, ok := h.search(call); ok {
		s.Close()
	}
	return goja.Undefined()
}

// Save

func (h *Host) saveAsCopy(call goja.FunctionCall) goja.Value {
	doc, _ := h.lib.Document(handleArg(call, 0))
	return h.vm.ToValue(h.lib.Save(doc, engine.SaveFlags(call.Argument(1).ToInteger())))
}

func (h *Host) saveWithVersion(call goja.FunctionCall) goja.Value {
	doc, _ := h.lib.Document(handleArg(call, 0))
	flags := engine.SaveFlags(call.Argument(1).ToInteger())
	return h.vm.ToValue(h.lib.SaveWithVersion(doc, flags, intArg(call, 2)))
}

// saveBuffer returns an ArrayBuffer over the save buffer, or null when it
// is empty. It aliases the buffer until the next save or free.
func (h *Host) saveBuffer(goja.FunctionCall) goja.Value {
	b := h.lib.Buffer().Bytes()
	if b == nil {
		return goja.Null()
	}
	return h.vm.ToValue(h.vm.NewArrayBuffer(b))
}

func (h *Host) saveBufferSize(goja.FunctionCall) goja.Value {
	return h.vm.ToValue(h.lib.Buffer().Len())
}

func (h *Host) freeSaveBuffer(goja.FunctionCall) goja.Value {
	h.lib.Buffer().Free()
	return goja.Undefined()
}

// Memory

func (h *Host) malloc(call goja.FunctionCall) goja.Value {
	hd, err := h.lib.Alloc(intArg(call, 0))
	if err != nil {
		return h.vm.ToValue(0)
	}
	return h.handle(hd)
}

func (h *Host) free(call goja.FunctionCall) goja.Value {
	if err := h.lib.Free(handleArg(call, 0)); err != nil {
		h.log.Debug("free", "err", err)
	}
	return goja.Undefined()
}

// memory returns an ArrayBuffer over a block from PDFium_Malloc, or null.
func (h *Host) memory(call goja.FunctionCall) goja.Value {
	b, err := h.lib.Memory(handleArg(call, 0))
	if err != nil {
		return goja.Null()
	}
	return h.vm.ToValue(h.vm.NewArrayBuffer(b))
}
