package pdfbridge

import (
	"fmt"

	"github.com/jpl-au/pdfbridge/engine"
)

// TextPage is the character-indexed text layer of a Page. It owns its open
// search sessions.
type TextPage struct {
	page     *Page
	handle   Handle
	eh       engine.Handle
	searches map[*SearchSession]struct{}
	closed   bool
}

// Handle returns the text page's registry handle, or 0 once closed.
func (tp *TextPage) Handle() Handle {
	if tp == nil {
		return 0
	}
	lib := tp.page.doc.lib
	lib.mu.Lock()
	defer lib.mu.Unlock()
	if tp.closed {
		return 0
	}
	return tp.handle
}

// Page returns the page the text layer belongs to.
func (tp *TextPage) Page() *Page {
	if tp == nil {
		return nil
	}
	return tp.page
}

// Close closes the text page's search sessions and then the text page.
// Closing twice is a no-op.
func (tp *TextPage) Close() error {
	if tp == nil {
		return nil
	}
	lib := tp.page.doc.lib
	if err := lib.enter(); err != nil {
		return err
	}
	defer lib.mu.Unlock()
	tp.close()
	return nil
}

func (tp *TextPage) close() {
	if tp.closed {
		return
	}
	for s := range tp.searches {
		s.close()
	}
	lib := tp.page.doc.lib
	lib.eng.CloseTextPage(tp.eh)
	lib.reg.remove(tp.handle)
	delete(tp.page.texts, tp)
	tp.closed = true
}

func (tp *TextPage) use() (*Library, error) {
	if tp == nil {
		return nil, ErrNullHandle
	}
	lib := tp.page.doc.lib
	if err := lib.enter(); err != nil {
		return nil, err
	}
	if tp.closed {
		lib.mu.Unlock()
		return nil, ErrUseAfterClose
	}
	return lib, nil
}

// CharCount returns the number of characters on the page.
func (tp *TextPage) CharCount() (int, error) {
	lib, err := tp.use()
	if err != nil {
		return 0, err
	}
	defer lib.mu.Unlock()
	n := lib.eng.CharCount(tp.eh)
	if n < 0 {
		return 0, &EngineError{Op: "char count", Code: engine.CodeUnknown}
	}
	return n, nil
}

// Char returns the character at index i.
func (tp *TextPage) Char(i int) (engine.Char, error) {
	lib, err := tp.use()
	if err != nil {
		return engine.Char{}, err
	}
	defer lib.mu.Unlock()
	c, ok := lib.eng.CharInfo(tp.eh, i)
	if !ok {
		return engine.Char{}, fmt.Errorf("char %d: %w", i, ErrInvalidArgument)
	}
	return c, nil
}

// Text returns the page's whole text run.
func (tp *TextPage) Text() (string, error) {
	return tp.TextRange(0, -1)
}

// TextRange returns count characters starting at start. A negative count
// reads to the end.
func (tp *TextPage) TextRange(start, count int) (string, error) {
	if start < 0 {
		return "", fmt.Errorf("text range: start %d: %w", start, ErrInvalidArgument)
	}
	lib, err := tp.use()
	if err != nil {
		return "", err
	}
	defer lib.mu.Unlock()
	n := lib.eng.CharCount(tp.eh)
	if start > n {
		return "", fmt.Errorf("text range: start %d of %d: %w", start, n, ErrInvalidArgument)
	}
	if count < 0 || count > n-start {
		count = n - start
	}
	return DecodeUTF16(lib.eng.Text(tp.eh, start, count)), nil
}

// BoundedText returns the text whose characters fall inside r, in page
// space.
func (tp *TextPage) BoundedText(r engine.Rect) (string, error) {
	lib, err := tp.use()
	if err != nil {
		return "", err
	}
	defer lib.mu.Unlock()
	return DecodeUTF16(lib.eng.BoundedText(tp.eh, r)), nil
}

// SelectionRects returns the rectangles covering count characters from
// start, one per line segment. A negative count covers the rest of the page.
func (tp *TextPage) SelectionRects(start, count int) ([]engine.Rect, error) {
	if start < 0 {
		return nil, fmt.Errorf("selection rects: start %d: %w", start, ErrInvalidArgument)
	}
	lib, err := tp.use()
	if err != nil {
		return nil, err
	}
	defer lib.mu.Unlock()
	total := lib.eng.CharCount(tp.eh)
	if start > total {
		return nil, fmt.Errorf("selection rects: start %d of %d: %w", start, total, ErrInvalidArgument)
	}
	if count < 0 || count > total-start {
		count = total - start
	}
	n := lib.eng.CountRects(tp.eh, start, count)
	rects := make([]engine.Rect, 0, n)
	for i := range n {
		if r, ok := lib.eng.Rect(tp.eh, i); ok {
			rects = append(rects, r)
		}
	}
	return rects, nil
}

// CharIndexAt returns the index of the character at page point (x, y)
// within the given tolerances, or -1 when there is none.
func (tp *TextPage) CharIndexAt(x, y, tolX, tolY float64) (int, error) {
	lib, err := tp.use()
	if err != nil {
		return -1, err
	}
	defer lib.mu.Unlock()
	i := lib.eng.CharIndexAt(tp.eh, x, y, tolX, tolY)
	if i < -1 {
		return -1, &EngineError{Op: "char index", Code: engine.CodeUnknown}
	}
	return i, nil
}

// FindStart opens a search session positioned before the first match at or
// after start. flags are forwarded to the engine unchanged.
func (tp *TextPage) FindStart(query string, flags engine.SearchFlags, start int) (*SearchSession, error) {
	if query == "" {
		return nil, fmt.Errorf("find: empty query: %w", ErrInvalidArgument)
	}
	lib, err := tp.use()
	if err != nil {
		return nil, err
	}
	defer lib.mu.Unlock()

	eh, err := lib.eng.FindStart(tp.eh, EncodeUTF16(query), flags, start)
	if err == nil && eh == engine.Null {
		err = engine.CodeUnknown
	}
	if err != nil {
		return nil, engineError("find start", err)
	}
	s := &SearchSession{tp: tp, eh: eh}
	s.handle = lib.reg.add(KindSearch, s)
	tp.searches[s] = struct{}{}
	return s, nil
}
