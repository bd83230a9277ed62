//go:build pdfium

package pdfium

/*
#cgo pkg-config: pdfium
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include "fpdfview.h"
#include "fpdf_doc.h"
#include "fpdf_progressive.h"
#include "fpdf_save.h"
#include "fpdf_text.h"

extern int goNeedToPause(uintptr_t);
extern int goWriteBlock(uintptr_t, void*, unsigned long);

typedef struct {
	IFSDK_PAUSE pause;
	uintptr_t handle;
} bridge_pause;

typedef struct {
	FPDF_FILEWRITE write;
	uintptr_t handle;
} bridge_writer;

static FPDF_BOOL bridge_need_to_pause(IFSDK_PAUSE* p) {
	return goNeedToPause(((bridge_pause*)p)->handle);
}

static int bridge_write_block(FPDF_FILEWRITE* w, const void* data, unsigned long size) {
	return goWriteBlock(((bridge_writer*)w)->handle, (void*)data, size);
}

static bridge_pause* bridge_new_pause(uintptr_t h) {
	bridge_pause* p = calloc(1, sizeof(bridge_pause));
	p->pause.version = 1;
	p->pause.NeedToPauseNow = bridge_need_to_pause;
	p->handle = h;
	return p;
}

static bridge_writer* bridge_new_writer(uintptr_t h) {
	bridge_writer* w = calloc(1, sizeof(bridge_writer));
	w->write.version = 1;
	w->write.WriteBlock = bridge_write_block;
	w->handle = h;
	return w;
}

static void bridge_init(void) {
	FPDF_LIBRARY_CONFIG config;
	memset(&config, 0, sizeof(config));
	config.version = 2;
	FPDF_InitLibraryWithConfig(&config);
}
*/
import "C"

import (
	"io"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/jpl-au/pdfbridge/engine"
)

// Engine implements engine.Engine over libpdfium. pdfium is process-global,
// so one Engine should be initialized per process.
type Engine struct {
	mu      sync.Mutex
	next    engine.Handle
	objects map[engine.Handle]any
	lastErr engine.ErrorCode
	inited  bool
}

// New returns an uninitialized engine.
func New() *Engine {
	return &Engine{objects: make(map[engine.Handle]any)}
}

type document struct {
	ptr  C.FPDF_DOCUMENT
	data unsafe.Pointer // C copy of the file, alive until close
}

type page struct{ ptr C.FPDF_PAGE }

type bitmap struct {
	ptr C.FPDF_BITMAP
	h   int
}

type textPage struct{ ptr C.FPDF_TEXTPAGE }

type search struct{ ptr C.FPDF_SCHHANDLE }

func (e *Engine) add(obj any) engine.Handle {
	e.next++
	e.objects[e.next] = obj
	return e.next
}

func get[T any](e *Engine, h engine.Handle) (T, bool) {
	v, ok := e.objects[h].(T)
	return v, ok
}

func (e *Engine) fail(code engine.ErrorCode) error {
	e.lastErr = code
	return code
}

func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		C.bridge_init()
		e.inited = true
	}
	return nil
}

func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inited {
		C.FPDF_DestroyLibrary()
		e.inited = false
	}
}

func (e *Engine) LastError() engine.ErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// withPauser runs fn with a C pause table dispatching to p.
func withPauser(p engine.Pauser, fn func(*C.IFSDK_PAUSE) C.int) engine.RenderStatus {
	if p == nil {
		p = engine.Never
	}
	h := cgo.NewHandle(p)
	defer h.Delete()
	table := C.bridge_new_pause(C.uintptr_t(h))
	defer C.free(unsafe.Pointer(table))
	return engine.RenderStatus(fn(&table.pause))
}

// Documents

func (e *Engine) LoadDocument(data []byte, password string) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(data) == 0 {
		return engine.Null, e.fail(engine.CodeFormat)
	}
	buf := C.CBytes(data)
	pw := C.CString(password)
	defer C.free(unsafe.Pointer(pw))
	ptr := C.FPDF_LoadMemDocument(buf, C.int(len(data)), pw)
	if ptr == nil {
		C.free(buf)
		return engine.Null, e.fail(engine.ErrorCode(C.FPDF_GetLastError()))
	}
	e.lastErr = engine.CodeSuccess
	return e.add(&document{ptr: ptr, data: buf}), nil
}

func (e *Engine) CloseDocument(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, h)
	if !ok {
		return
	}
	C.FPDF_CloseDocument(d.ptr)
	C.free(d.data)
	delete(e.objects, h)
}

func (e *Engine) PageCount(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, h)
	if !ok {
		return 0
	}
	return int(C.FPDF_GetPageCount(d.ptr))
}

func (e *Engine) MetaText(h engine.Handle, tag string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, h)
	if !ok {
		return nil
	}
	ctag := C.CString(tag)
	defer C.free(unsafe.Pointer(ctag))
	n := C.FPDF_GetMetaText(d.ptr, ctag, nil, 0)
	if n <= 2 {
		return nil
	}
	buf := C.malloc(C.size_t(n))
	defer C.free(buf)
	C.FPDF_GetMetaText(d.ptr, ctag, buf, n)
	return C.GoBytes(buf, C.int(n-2))
}

func (e *Engine) Save(h engine.Handle, w io.Writer, flags engine.SaveFlags, version int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, h)
	if !ok {
		return e.fail(engine.CodeUnknown)
	}
	wh := cgo.NewHandle(w)
	defer wh.Delete()
	table := C.bridge_new_writer(C.uintptr_t(wh))
	defer C.free(unsafe.Pointer(table))

	var saved C.FPDF_BOOL
	if version == 0 {
		saved = C.FPDF_SaveAsCopy(d.ptr, &table.write, C.FPDF_DWORD(flags))
	} else {
		saved = C.FPDF_SaveWithVersion(d.ptr, &table.write, C.FPDF_DWORD(flags), C.int(version))
	}
	if saved == 0 {
		return e.fail(engine.CodeUnknown)
	}
	e.lastErr = engine.CodeSuccess
	return nil
}

// Pages

func (e *Engine) LoadPage(doc engine.Handle, index int) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, doc)
	if !ok {
		return engine.Null, e.fail(engine.CodePage)
	}
	ptr := C.FPDF_LoadPage(d.ptr, C.int(index))
	if ptr == nil {
		return engine.Null, e.fail(engine.CodePage)
	}
	return e.add(&page{ptr: ptr}), nil
}

func (e *Engine) ClosePage(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := get[*page](e, h); ok {
		C.FPDF_ClosePage(p.ptr)
		delete(e.objects, h)
	}
}

func (e *Engine) PageSize(h engine.Handle) (float64, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok {
		return 0, 0
	}
	return float64(C.FPDF_GetPageWidth(p.ptr)), float64(C.FPDF_GetPageHeight(p.ptr))
}

// Bitmaps

func (e *Engine) CreateBitmap(width, height int, alpha bool) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a := C.int(0)
	if alpha {
		a = 1
	}
	ptr := C.FPDFBitmap_Create(C.int(width), C.int(height), a)
	if ptr == nil {
		return engine.Null, e.fail(engine.CodeUnknown)
	}
	return e.add(&bitmap{ptr: ptr, h: height}), nil
}

func (e *Engine) DestroyBitmap(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := get[*bitmap](e, h); ok {
		C.FPDFBitmap_Destroy(b.ptr)
		delete(e.objects, h)
	}
}

// BitmapBuffer returns the pixel memory owned by pdfium. The slice is valid
// until DestroyBitmap.
func (e *Engine) BitmapBuffer(h engine.Handle) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := get[*bitmap](e, h)
	if !ok {
		return nil
	}
	ptr := C.FPDFBitmap_GetBuffer(b.ptr)
	stride := int(C.FPDFBitmap_GetStride(b.ptr))
	if ptr == nil || stride <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), stride*b.h)
}

func (e *Engine) BitmapStride(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := get[*bitmap](e, h); ok {
		return int(C.FPDFBitmap_GetStride(b.ptr))
	}
	return 0
}

func (e *Engine) FillRect(h engine.Handle, left, top, width, height int, argb uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := get[*bitmap](e, h); ok {
		C.FPDFBitmap_FillRect(b.ptr, C.int(left), C.int(top), C.int(width), C.int(height), C.FPDF_DWORD(argb))
	}
}

// Rendering

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
	C.FPDF_RenderPageBitmap(b.ptr, p.ptr, C.int(vp.X), C.int(vp.Y), C.int(vp.Width), C.int(vp.Height),
		C.int(vp.Rotation()), C.int(flags))
	return nil
}

func (e *Engine) StartRender(bmp, h engine.Handle, vp engine.Viewport, flags engine.RenderFlags, pause engine.Pauser) engine.RenderStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok {
		return engine.Failed
	}
	b, ok := get[*bitmap](e, bmp)
	if !ok {
		return engine.Failed
	}
	return withPauser(pause, func(ps *C.IFSDK_PAUSE) C.int {
		return C.FPDF_RenderPageBitmap_Start(b.ptr, p.ptr, C.int(vp.X), C.int(vp.Y),
			C.int(vp.Width), C.int(vp.Height), C.int(vp.Rotation()), C.int(flags), ps)
	})
}

func (e *Engine) ContinueRender(h engine.Handle, pause engine.Pauser) engine.RenderStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok {
		return engine.Failed
	}
	return withPauser(pause, func(ps *C.IFSDK_PAUSE) C.int {
		return C.FPDF_RenderPage_Continue(p.ptr, ps)
	})
}

func (e *Engine) CloseRender(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := get[*page](e, h); ok {
		C.FPDF_RenderPage_Close(p.ptr)
	}
}

// Text

func (e *Engine) LoadTextPage(h engine.Handle) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok {
		return engine.Null, engine.CodePage
	}
	ptr := C.FPDFText_LoadPage(p.ptr)
	if ptr == nil {
		return engine.Null, engine.CodePage
	}
	return e.add(&textPage{ptr: ptr}), nil
}

func (e *Engine) CloseTextPage(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tp, ok := get[*textPage](e, h); ok {
		C.FPDFText_ClosePage(tp.ptr)
		delete(e.objects, h)
	}
}

func (e *Engine) CharCount(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return -1
	}
	return int(C.FPDFText_CountChars(tp.ptr))
}

func (e *Engine) CharInfo(h engine.Handle, index int) (engine.Char, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return engine.Char{}, false
	}
	i := C.int(index)
	var l, r, b, t, ox, oy C.double
	if C.FPDFText_GetCharBox(tp.ptr, i, &l, &r, &b, &t) == 0 {
		return engine.Char{}, false
	}
	C.FPDFText_GetCharOrigin(tp.ptr, i, &ox, &oy)
	c := engine.Char{
		Unicode:  rune(C.FPDFText_GetUnicode(tp.ptr, i)),
		Box:      engine.Rect{Left: float64(l), Top: float64(t), Right: float64(r), Bottom: float64(b)},
		Origin:   engine.Point{X: float64(ox), Y: float64(oy)},
		FontSize: float64(C.FPDFText_GetFontSize(tp.ptr, i)),
		Angle:    float64(C.FPDFText_GetCharAngle(tp.ptr, i)),
		Weight:   int(C.FPDFText_GetFontWeight(tp.ptr, i)),
	}
	var cr, cg, cb, ca C.uint
	if C.FPDFText_GetFillColor(tp.ptr, i, &cr, &cg, &cb, &ca) != 0 {
		c.Fill = engine.Color{R: uint8(cr), G: uint8(cg), B: uint8(cb), A: uint8(ca)}
	}
	if C.FPDFText_GetStrokeColor(tp.ptr, i, &cr, &cg, &cb, &ca) != 0 {
		c.Stroke = engine.Color{R: uint8(cr), G: uint8(cg), B: uint8(cb), A: uint8(ca)}
	}
	return c, true
}

// utf16Out calls fill with a C buffer of units+1 UTF-16 units and returns
// the first n units written, dropping the terminator.
func utf16Out(units int, fill func(buf *C.ushort) int) []byte {
	if units <= 0 {
		return nil
	}
	size := C.size_t((units + 1) * 2)
	buf := (*C.ushort)(C.malloc(size))
	defer C.free(unsafe.Pointer(buf))
	n := fill(buf)
	if n > units {
		n = units
	}
	if n <= 0 {
		return nil
	}
	return C.GoBytes(unsafe.Pointer(buf), C.int(n*2))
}

func (e *Engine) Text(h engine.Handle, start, count int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return nil
	}
	total := int(C.FPDFText_CountChars(tp.ptr))
	if start < 0 || start > total {
		return nil
	}
	if count < 0 || count > total-start {
		count = total - start
	}
	return utf16Out(count, func(buf *C.ushort) int {
		// The returned count includes the terminator.
		return int(C.FPDFText_GetText(tp.ptr, C.int(start), C.int(count), buf)) - 1
	})
}

func (e *Engine) BoundedText(h engine.Handle, r engine.Rect) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return nil
	}
	l, t, rt, b := C.double(r.Left), C.double(r.Top), C.double(r.Right), C.double(r.Bottom)
	units := int(C.FPDFText_GetBoundedText(tp.ptr, l, t, rt, b, nil, 0))
	return utf16Out(units, func(buf *C.ushort) int {
		return int(C.FPDFText_GetBoundedText(tp.ptr, l, t, rt, b, buf, C.int(units+1)))
	})
}

func (e *Engine) CountRects(h engine.Handle, start, count int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return 0
	}
	total := int(C.FPDFText_CountChars(tp.ptr))
	if start < 0 || start >= total {
		return 0
	}
	if count < 0 || count > total-start {
		count = total - start
	}
	return int(C.FPDFText_CountRects(tp.ptr, C.int(start), C.int(count)))
}

func (e *Engine) Rect(h engine.Handle, index int) (engine.Rect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return engine.Rect{}, false
	}
	var l, t, r, b C.double
	if C.FPDFText_GetRect(tp.ptr, C.int(index), &l, &t, &r, &b) == 0 {
		return engine.Rect{}, false
	}
	return engine.Rect{Left: float64(l), Top: float64(t), Right: float64(r), Bottom: float64(b)}, true
}

func (e *Engine) CharIndexAt(h engine.Handle, x, y, tolX, tolY float64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return -3
	}
	return int(C.FPDFText_GetCharIndexAtPos(tp.ptr, C.double(x), C.double(y), C.double(tolX), C.double(tolY)))
}

// Search

func (e *Engine) FindStart(h engine.Handle, query []byte, flags engine.SearchFlags, start int) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok || len(query) < 2 {
		return engine.Null, engine.CodeUnknown
	}
	q := C.CBytes(append(query[:len(query):len(query)], 0, 0))
	defer C.free(q)
	ptr := C.FPDFText_FindStart(tp.ptr, (C.FPDF_WIDESTRING)(q), C.ulong(flags), C.int(start))
	if ptr == nil {
		return engine.Null, engine.CodeUnknown
	}
	return e.add(&search{ptr: ptr}), nil
}

func (e *Engine) FindNext(h engine.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := get[*search](e, h)
	return ok && C.FPDFText_FindNext(s.ptr) != 0
}

func (e *Engine) FindPrev(h engine.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := get[*search](e, h)
	return ok && C.FPDFText_FindPrev(s.ptr) != 0
}

func (e *Engine) ResultIndex(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := get[*search](e, h); ok {
		return int(C.FPDFText_GetSchResultIndex(s.ptr))
	}
	return -1
}

func (e *Engine) ResultCount(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := get[*search](e, h); ok {
		return int(C.FPDFText_GetSchCount(s.ptr))
	}
	return 0
}

func (e *Engine) FindClose(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := get[*search](e, h); ok {
		C.FPDFText_FindClose(s.ptr)
		delete(e.objects, h)
	}
}

var _ engine.Engine = (*Engine)(nil)
