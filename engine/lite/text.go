package lite

import (
	"unicode"

	"golang.org/x/text/cases"
	xunicode "golang.org/x/text/encoding/unicode"

	"github.com/jpl-au/pdfbridge/engine"
)

var utf16le = xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM)

func encodeUTF16(s string) []byte {
	b, _ := utf16le.NewEncoder().Bytes([]byte(s))
	return b
}

func decodeUTF16(b []byte) string {
	s, _ := utf16le.NewDecoder().Bytes(b[:len(b)&^1])
	return string(s)
}

type textPage struct {
	page  engine.Handle
	chars []char
	rects []engine.Rect // from the last CountRects
}

func (e *Engine) LoadTextPage(h engine.Handle) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := get[*page](e, h)
	if !ok {
		return engine.Null, engine.CodePage
	}
	return e.add(&textPage{page: h, chars: p.chars}), nil
}

func (e *Engine) CloseTextPage(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := get[*textPage](e, h); ok {
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
	return len(tp.chars)
}

func (e *Engine) CharInfo(h engine.Handle, index int) (engine.Char, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok || index < 0 || index >= len(tp.chars) {
		return engine.Char{}, false
	}
	c := tp.chars[index]
	black := engine.Color{A: 0xFF}
	return engine.Char{
		Unicode:  c.r,
		Box:      c.box,
		Origin:   c.origin,
		FontSize: c.size,
		Weight:   400,
		Fill:     black,
		Stroke:   black,
	}, true
}

func (e *Engine) Text(h engine.Handle, start, count int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok || start < 0 || start > len(tp.chars) {
		return nil
	}
	end := len(tp.chars)
	if count >= 0 && count < end-start {
		end = start + count
	}
	return encodeUTF16(runes(tp.chars[start:end]))
}

func runes(cs []char) string {
	out := make([]rune, len(cs))
	for i, c := range cs {
		out[i] = c.r
	}
	return string(out)
}

func (e *Engine) BoundedText(h engine.Handle, r engine.Rect) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return nil
	}
	var in []char
	for _, c := range tp.chars {
		mid := engine.Point{X: (c.box.Left + c.box.Right) / 2, Y: (c.box.Top + c.box.Bottom) / 2}
		if r.Contains(mid) {
			in = append(in, c)
		}
	}
	return encodeUTF16(runes(in))
}

// CountRects computes one rectangle per line covered by the range and
// keeps them for Rect, as FPDFText_CountRects does.
func (e *Engine) CountRects(h engine.Handle, start, count int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return 0
	}
	tp.rects = tp.rects[:0]
	if start < 0 || start >= len(tp.chars) || count == 0 {
		return 0
	}
	end := len(tp.chars)
	if count > 0 && count < end-start {
		end = start + count
	}
	line := -1
	for _, c := range tp.chars[start:end] {
		if c.generated {
			continue
		}
		if c.line != line {
			tp.rects = append(tp.rects, c.box)
			line = c.line
			continue
		}
		last := &tp.rects[len(tp.rects)-1]
		*last = last.Union(c.box)
	}
	return len(tp.rects)
}

func (e *Engine) Rect(h engine.Handle, index int) (engine.Rect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok || index < 0 || index >= len(tp.rects) {
		return engine.Rect{}, false
	}
	return tp.rects[index], true
}

func (e *Engine) CharIndexAt(h engine.Handle, x, y, tolX, tolY float64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := get[*textPage](e, h)
	if !ok {
		return -3
	}
	pt := engine.Point{X: x, Y: y}
	for i, c := range tp.chars {
		if c.generated {
			continue
		}
		b := c.box
		grown := engine.Rect{Left: b.Left - tolX, Right: b.Right + tolX, Bottom: b.Bottom - tolY, Top: b.Top + tolY}
		if grown.Contains(pt) {
			return i
		}
	}
	return -1
}

type search struct {
	tp      engine.Handle
	query   []rune
	flags   engine.SearchFlags
	cursor  int
	index   int
	count   int
	started bool
	text    []rune // folded unless MatchCase
}

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
	text := []rune(runes(tp.chars))
	if flags&engine.MatchCase == 0 {
		fold := cases.Fold()
		text, q = foldRunes(fold, text), foldRunes(fold, q)
	}
	if start < 0 || start > len(text) {
		start = 0
	}
	return e.add(&search{tp: h, query: q, flags: flags, cursor: start, index: -1, text: text}), nil
}

// foldRunes case-folds rune by rune so indexes stay aligned with the text
// run. Runes whose folding expands keep their simple lower case.
func foldRunes(c cases.Caser, rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		f := []rune(c.String(string(r)))
		if len(f) == 1 {
			out[i] = f[0]
		} else {
			out[i] = unicode.ToLower(r)
		}
	}
	return out
}

func (e *Engine) FindNext(h engine.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := get[*search](e, h)
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
	for i := from; i+len(s.query) <= len(s.text); i++ {
		if s.match(i) {
			s.index, s.count, s.started = i, len(s.query), true
			return true
		}
	}
	s.cursor = len(s.text)
	return false
}

func (e *Engine) FindPrev(h engine.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := get[*search](e, h)
	if !ok {
		return false
	}
	from := s.cursor - 1
	if s.started {
		from = s.index - 1
	}
	for i := min(from, len(s.text)-len(s.query)); i >= 0; i-- {
		if s.match(i) {
			s.index, s.count, s.started = i, len(s.query), true
			return true
		}
	}
	s.cursor = 0
	return false
}

func (s *search) match(at int) bool {
	for j, q := range s.query {
		if s.text[at+j] != q {
			return false
		}
	}
	if s.flags&engine.MatchWholeWord != 0 {
		if at > 0 && isWord(s.text[at-1]) {
			return false
		}
		if end := at + len(s.query); end < len(s.text) && isWord(s.text[end]) {
			return false
		}
	}
	return true
}

func isWord(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

func (e *Engine) ResultIndex(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := get[*search](e, h); ok {
		return s.index
	}
	return -1
}

func (e *Engine) ResultCount(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := get[*search](e, h); ok {
		return s.count
	}
	return 0
}

func (e *Engine) FindClose(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := get[*search](e, h); ok {
		delete(e.objects, h)
	}
}
