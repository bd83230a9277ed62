// Package enginetest provides a deterministic in-memory engine for tests.
//
// Documents are described with Document values and serialized with Encode;
// the resulting bytes are what LoadDocument accepts and what Save produces,
// so a save can be reloaded. Rendering is scripted in work units: each unit
// paints one band of the bitmap, the Pauser is polled before every unit, and
// Options.SliceUnits bounds how many units one call may run. The engine keeps
// release accounting so tests can assert that no handle was closed twice and
// that no caller contract violation reached the engine.
package enginetest

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode"

	json "github.com/goccy/go-json"
	xunicode "golang.org/x/text/encoding/unicode"

	"github.com/jpl-au/pdfbridge/engine"
)

// Page describes one scripted page.
type Page struct {
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
	Text   string  `json:"text,omitempty"`
	Units  int     `json:"units,omitempty"`   // render work units, default 4
	FailAt int     `json:"fail_at,omitempty"` // 1-based unit that fails, 0 never
	Color  uint32  `json:"color,omitempty"`   // ARGB painted by each unit
}

// Document describes one scripted document.
type Document struct {
	Pages    []Page            `json:"pages"`
	Password string            `json:"password,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
	Version  int               `json:"version,omitempty"`
	FailSave bool              `json:"fail_save,omitempty"`
}

const magic = "%ENGINETEST\n"

// Encode serializes d into bytes LoadDocument accepts.
func Encode(d Document) []byte {
	raw, _ := json.Marshal(d)
	return append([]byte(magic), raw...)
}

// Decode parses bytes produced by Encode or Save.
func Decode(data []byte) (Document, error) {
	var d Document
	if !bytes.HasPrefix(data, []byte(magic)) {
		return d, engine.CodeFormat
	}
	if err := json.Unmarshal(data[len(magic):], &d); err != nil {
		return d, engine.CodeFormat
	}
	return d, nil
}

// Options configures the engine.
type Options struct {
	SliceUnits  int           // units per render call, 0 runs to completion unless paused
	UnitDelay   time.Duration // time each render unit takes
	CharAdvance float64       // default 10
}

// Kind names a handle family for release accounting.
type Kind int

const (
	KindDocument Kind = iota
	KindPage
	KindTextPage
	KindSearch
	KindBitmap
	numKinds
)

// Stats is a snapshot of release accounting.
type Stats struct {
	Opened       [numKinds]int
	Closed       [numKinds]int
	DoubleClose  int // close of an unknown or already closed handle
	Violations   int // render protocol misuse that reached the engine
	InitCalls    int
	DestroyCalls int
}

// Live returns the number of open handles of kind k.
func (s Stats) Live(k Kind) int { return s.Opened[k] - s.Closed[k] }

type document struct {
	spec Document
}

type page struct {
	doc    engine.Handle
	spec   Page
	render *render
}

type render struct {
	bmp   engine.Handle
	vp    engine.Viewport
	done  int
	state engine.RenderStatus
}

type textPage struct {
	page  engine.Handle
	runes []rune
}

type search struct {
	tp      engine.Handle
	query   []rune
	flags   engine.SearchFlags
	cursor  int // next forward start position
	index   int
	count   int
	started bool
}

type bitmap struct {
	w, h   int
	stride int
	buf    []byte
}

// Engine is an in-memory engine.Engine.
type Engine struct {
	mu      sync.Mutex
	opts    Options
	next    engine.Handle
	objects map[engine.Handle]any
	lastErr engine.ErrorCode
	stats   Stats
}

// New returns an engine with zero-value defaults applied.
func New(opts Options) *Engine {
	if opts.CharAdvance == 0 {
		opts.CharAdvance = 10
	}
	return &Engine{opts: opts, objects: make(map[engine.Handle]any)}
}

// Stats returns a snapshot of release accounting.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) add(k Kind, obj any) engine.Handle {
	e.next++
	e.objects[e.next] = obj
	e.stats.Opened[k]++
	return e.next
}

func (e *Engine) drop(k Kind, h engine.Handle) bool {
	if _, ok := e.objects[h]; !ok {
		e.stats.DoubleClose++
		return false
	}
	delete(e.objects, h)
	e.stats.Closed[k]++
	return true
}

func get[T any](e *Engine, h engine.Handle) (T, bool) {
	v, ok := e.objects[h].(T)
	return v, ok
}

func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.InitCalls++
	return nil
}

func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.DestroyCalls++
}

func (e *Engine) LastError() engine.ErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) fail(code engine.ErrorCode) error {
	e.lastErr = code
	return code
}

// Documents

func (e *Engine) LoadDocument(data []byte, password string) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	spec, err := Decode(data)
	if err != nil {
		return engine.Null, e.fail(engine.CodeFormat)
	}
	if spec.Password != "" && spec.Password != password {
		return engine.Null, e.fail(engine.CodePassword)
	}
	e.lastErr = engine.CodeSuccess
	return e.add(KindDocument, &document{spec: spec}), nil
}

func (e *Engine) CloseDocument(doc engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := get[*document](e, doc); !ok {
		e.stats.DoubleClose++
		return
	}
	e.drop(KindDocument, doc)
}

func (e *Engine) PageCount(doc engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, doc)
	if !ok {
		return 0
	}
	return len(d.spec.Pages)
}

func (e *Engine) MetaText(doc engine.Handle, tag string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, doc)
	if !ok {
		return nil
	}
	return encodeUTF16(d.spec.Meta[tag])
}

func (e *Engine) Save(doc engine.Handle, w io.Writer, flags engine.SaveFlags, version int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, doc)
	if !ok {
		return e.fail(engine.CodeUnknown)
	}
	if d.spec.FailSave {
		return e.fail(engine.CodeUnknown)
	}
	out := d.spec
	if version != 0 {
		out.Version = version
	}
	if flags == engine.SaveRemoveSecurity {
		out.Password = ""
	}
	if _, err := w.Write(Encode(out)); err != nil {
		return e.fail(engine.CodeFile)
	}
	e.lastErr = engine.CodeSuccess
	return nil
}

// Pages

func (e *Engine) LoadPage(doc engine.Handle, index int) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, doc)
	if !ok || index < 0 || index >= len(d.spec.Pages) {
		return engine.Null, e.fail(engine.CodePage)
	}
	spec := d.spec.Pages[index]
	if spec.Units == 0 {
		spec.Units = 4
	}
	return e.add(KindPage, &page{doc: doc, spec: spec}), nil
}

func (e *Engine) ClosePage(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := get[*page](e, h); ok && p.render != nil {
		e.stats.Violations++
	}
	e.drop(KindPage, h)
}

func (e *Engine) PageSize(h engine.Handle) (float64, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok {
		return 0, 0
	}
	return p.spec.Width, p.spec.Height
}

// Bitmaps

func (e *Engine) CreateBitmap(width, height int, alpha bool) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if width <= 0 || height <= 0 {
		return engine.Null, e.fail(engine.CodeUnknown)
	}
	b := &bitmap{w: width, h: height, stride: width * 4}
	b.buf = make([]byte, b.stride*height)
	return e.add(KindBitmap, b), nil
}

func (e *Engine) DestroyBitmap(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drop(KindBitmap, h)
}

func (e *Engine) BitmapBuffer(h engine.Handle) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := get[*bitmap](e, h)
	if !ok {
		return nil
	}
	return b.buf
}

func (e *Engine) BitmapStride(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := get[*bitmap](e, h)
	if !ok {
		return 0
	}
	return b.stride
}

func (e *Engine) FillRect(h engine.Handle, left, top, width, height int, argb uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := get[*bitmap](e, h); ok {
		b.fill(left, top, width, height, argb)
	}
}

func (b *bitmap) fill(left, top, width, height int, argb uint32) {
	c := engine.ColorFromARGB(argb)
	for y := max(top, 0); y < min(top+height, b.h); y++ {
		row := b.buf[y*b.stride:]
		for x := max(left, 0); x < min(left+width, b.w); x++ {
			row[x*4+0] = c.B
			row[x*4+1] = c.G
			row[x*4+2] = c.R
			row[x*4+3] = c.A
		}
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
	r := &render{bmp: bmp, vp: vp}
	for r.done < p.spec.Units {
		if p.spec.FailAt == r.done+1 {
			return engine.CodePage
		}
		e.paint(b, p, r)
	}
	return nil
}

func (e *Engine) StartRender(bmp, h engine.Handle, vp engine.Viewport, flags engine.RenderFlags, pause engine.Pauser) engine.RenderStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok {
		return engine.Failed
	}
	if p.render != nil {
		e.stats.Violations++
		return engine.Failed
	}
	p.render = &render{bmp: bmp, vp: vp, state: engine.NeedsContinue}
	return e.slice(p, pause)
}

func (e *Engine) ContinueRender(h engine.Handle, pause engine.Pauser) engine.RenderStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok {
		return engine.Failed
	}
	if p.render == nil || p.render.state != engine.NeedsContinue {
		e.stats.Violations++
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

// slice runs work units until the page is done, a unit fails, the slice
// quota is spent or the pauser asks to stop.
func (e *Engine) slice(p *page, pause engine.Pauser) engine.RenderStatus {
	r := p.render
	b, ok := get[*bitmap](e, r.bmp)
	if !ok {
		r.state = engine.Failed
		return r.state
	}
	ran := 0
	for r.done < p.spec.Units {
		if pause != nil && pause.NeedToPause() {
			return r.state
		}
		if e.opts.SliceUnits > 0 && ran == e.opts.SliceUnits {
			return r.state
		}
		if p.spec.FailAt == r.done+1 {
			r.state = engine.Failed
			return r.state
		}
		e.paint(b, p, r)
		ran++
	}
	r.state = engine.Done
	return r.state
}

// paint fills the band of the viewport belonging to the next unit.
func (e *Engine) paint(b *bitmap, p *page, r *render) {
	band := max(r.vp.Height/p.spec.Units, 1)
	top := r.vp.Y + r.done*band
	height := band
	if r.done == p.spec.Units-1 {
		height = r.vp.Y + r.vp.Height - top
	}
	color := p.spec.Color
	if color == 0 {
		color = 0xFF000000
	}
	b.fill(r.vp.X, top, r.vp.Width, height, color)
	r.done++
	if e.opts.UnitDelay > 0 {
		time.Sleep(e.opts.UnitDelay)
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
	return e.add(KindTextPage, &textPage{page: h, runes: []rune(p.spec.Text)}), nil
}

func (e *Engine) CloseTextPage(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drop(KindTextPage, h)
}

func (e *Engine) CharCount(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return -1
	}
	return len(tp.runes)
}

// box lays characters out on one line starting at (72, 720).
func (e *Engine) box(i int) engine.Rect {
	left := 72 + float64(i)*e.opts.CharAdvance
	return engine.Rect{Left: left, Right: left + e.opts.CharAdvance, Bottom: 720, Top: 732}
}

func (e *Engine) CharInfo(h engine.Handle, index int) (engine.Char, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok || index < 0 || index >= len(tp.runes) {
		return engine.Char{}, false
	}
	box := e.box(index)
	return engine.Char{
		Unicode:  tp.runes[index],
		Box:      box,
		Origin:   engine.Point{X: box.Left, Y: box.Bottom},
		FontSize: 12,
		Weight:   400,
		Fill:     engine.Color{A: 255},
		Stroke:   engine.Color{A: 255},
	}, true
}

func (e *Engine) Text(h engine.Handle, start, count int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok || start < 0 || start > len(tp.runes) {
		return nil
	}
	end := len(tp.runes)
	if count >= 0 && count < end-start {
		end = start + count
	}
	return encodeUTF16(string(tp.runes[start:end]))
}

func (e *Engine) BoundedText(h engine.Handle, r engine.Rect) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return nil
	}
	var out []rune
	for i, c := range tp.runes {
		b := e.box(i)
		if r.Contains(engine.Point{X: (b.Left + b.Right) / 2, Y: (b.Top + b.Bottom) / 2}) {
			out = append(out, c)
		}
	}
	return encodeUTF16(string(out))
}

func (e *Engine) CountRects(h engine.Handle, start, count int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok || start < 0 || start >= len(tp.runes) || count == 0 {
		return 0
	}
	return 1
}

func (e *Engine) Rect(h engine.Handle, index int) (engine.Rect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok || index != 0 || len(tp.runes) == 0 {
		return engine.Rect{}, false
	}
	return e.box(0).Union(e.box(len(tp.runes) - 1)), true
}

func (e *Engine) CharIndexAt(h engine.Handle, x, y, tolX, tolY float64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return -3
	}
	for i := range tp.runes {
		b := e.box(i)
		grown := engine.Rect{Left: b.Left - tolX, Right: b.Right + tolX, Bottom: b.Bottom - tolY, Top: b.Top + tolY}
		if grown.Contains(engine.Point{X: x, Y: y}) {
			return i
		}
	}
	return -1
}

// Search

func (e *Engine) FindStart(h engine.Handle, query []byte, flags engine.SearchFlags, start int) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return engine.Null, engine.CodeUnknown
	}
	q := []rune(decodeUTF16(query))
	if len(q) == 0 {
		return engine.Null, engine.CodeUnknown
	}
	if start < 0 || start > len(tp.runes) {
		start = 0
	}
	return e.add(KindSearch, &search{tp: h, query: q, flags: flags, cursor: start, index: -1}), nil
}

func (e *Engine) FindNext(h engine.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, tp, ok := e.search(h)
	if !ok {
		return false
	}
	from := s.cursor
	if s.started {
		step := len(s.query)
		if s.flags&engine.Consecutive != 0 {
			step = 1
		}
		from = s.index + step
	}
	for i := from; i+len(s.query) <= len(tp.runes); i++ {
		if s.match(tp.runes, i) {
			s.index, s.count, s.started = i, len(s.query), true
			return true
		}
	}
	s.cursor = len(tp.runes)
	return false
}

func (e *Engine) FindPrev(h engine.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, tp, ok := e.search(h)
	if !ok {
		return false
	}
	from := s.cursor - 1
	if s.started {
		from = s.index - 1
	}
	for i := min(from, len(tp.runes)-len(s.query)); i >= 0; i-- {
		if s.match(tp.runes, i) {
			s.index, s.count, s.started = i, len(s.query), true
			return true
		}
	}
	s.cursor = 0
	return false
}

func (e *Engine) search(h engine.Handle) (*search, *textPage, bool) {
	s, ok := get[*search](e, h)
	if !ok {
		return nil, nil, false
	}
	tp, ok := get[*textPage](e, s.tp)
	if !ok {
		return nil, nil, false
	}
	return s, tp, true
}

func (s *search) match(text []rune, at int) bool {
	for j, q := range s.query {
		c := text[at+j]
		if s.flags&engine.MatchCase != 0 {
			if c != q {
				return false
			}
		} else if unicode.ToLower(c) != unicode.ToLower(q) {
			return false
		}
	}
	if s.flags&engine.MatchWholeWord != 0 {
		if at > 0 && isWord(text[at-1]) {
			return false
		}
		if end := at + len(s.query); end < len(text) && isWord(text[end]) {
			return false
		}
	}
	return true
}

func isWord(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

func (e *Engine) ResultIndex(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := get[*search](e, h)
	if !ok {
		return -1
	}
	return s.index
}

func (e *Engine) ResultCount(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := get[*search](e, h)
	if !ok {
		return 0
	}
	return s.count
}

func (e *Engine) FindClose(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drop(KindSearch, h)
}

var utf16le = xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM)

func encodeUTF16(s string) []byte {
	b, _ := utf16le.NewEncoder().Bytes([]byte(s))
	return b
}

func decodeUTF16(b []byte) string {
	s, _ := utf16le.NewDecoder().Bytes(b[:len(b)&^1])
	return string(s)
}

var _ engine.Engine = (*Engine)(nil)

// String describes the engine for test failure messages.
func (e *Engine) String() string {
	s := e.Stats()
	return fmt.Sprintf("enginetest(live docs=%d pages=%d text=%d search=%d bitmaps=%d double=%d violations=%d)",
		s.Live(KindDocument), s.Live(KindPage), s.Live(KindTextPage), s.Live(KindSearch), s.Live(KindBitmap),
		s.DoubleClose, s.Violations)
}
