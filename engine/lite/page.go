package lite

import (
	"io"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/tsawler/tabula/contentstream"
	"github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/font"
	"github.com/tsawler/tabula/graphicsstate"
	"github.com/tsawler/tabula/text"

	"github.com/jpl-au/pdfbridge/engine"
)

// Fonts are measured with Helvetica metrics whatever the page declares.
const metricsFont = "Helvetica"

type page struct {
	doc    engine.Handle
	width  float64
	height float64
	items  []item
	chars  []char
	render *render
}

// char is one entry of the text run. Generated characters (inserted
// spaces and line breaks) have a zero-width box at the pen position.
type char struct {
	r         rune
	box       engine.Rect
	origin    engine.Point
	size      float64
	line      int
	generated bool
}

// item is one display list entry.
type item struct {
	kind   itemKind
	rect   engine.Rect // page space, for rectangles
	from   engine.Point
	to     engine.Point
	width  float64
	fill   [3]float64
	stroke [3]float64
	filled bool
	frag   text.TextFragment
	runes  []char
}

type itemKind int

const (
	itemRect itemKind = iota
	itemLine
	itemText
)

func pageContent(ctx *model.Context, pageNr int) ([]byte, error) {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}

func (e *Engine) LoadPage(doc engine.Handle, index int) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, doc)
	if !ok || index < 0 || index >= len(d.dims) {
		return engine.Null, e.fail(engine.CodePage)
	}
	content, err := pageContent(d.ctx, index+1)
	if err != nil {
		return engine.Null, e.fail(engine.CodePage)
	}
	p := &page{doc: doc, width: d.dims[index][0], height: d.dims[index][1]}
	if err := p.interpret(content); err != nil {
		return engine.Null, e.fail(engine.CodePage)
	}
	return e.add(p), nil
}

// interpret builds the display list and text run of a content stream.
func (p *page) interpret(content []byte) error {
	if len(content) == 0 {
		return nil
	}
	ops, err := contentstream.NewParser(content).Parse()
	if err != nil {
		return err
	}

	fonts := make(map[string]*font.Font)
	tx := text.NewExtractor()
	for _, op := range ops {
		if op.Operator != "Tf" || len(op.Operands) == 0 {
			continue
		}
		if name, ok := op.Operands[0].(core.Name); ok {
			n := string(name)
			if _, seen := fonts[n]; !seen {
				fonts[n] = font.NewFont(n, metricsFont, "Type1")
				tx.RegisterParsedFont(n, fonts[n])
			}
		}
	}

	gx := graphicsstate.NewGraphicsExtractor()
	if err := gx.Extract(ops); err != nil {
		return err
	}
	for _, r := range gx.GetRectangles() {
		p.items = append(p.items, item{
			kind: itemRect,
			rect: engine.Rect{
				Left:   r.BBox.X,
				Bottom: r.BBox.Y,
				Right:  r.BBox.X + r.BBox.Width,
				Top:    r.BBox.Y + r.BBox.Height,
			},
			width:  r.StrokeWidth,
			fill:   r.FillColor,
			stroke: r.StrokeColor,
			filled: r.IsFilled,
		})
		if !r.IsStroked {
			p.items[len(p.items)-1].width = 0
		}
	}
	for _, l := range gx.GetLines() {
		p.items = append(p.items, item{
			kind:   itemLine,
			from:   engine.Point{X: l.Start.X, Y: l.Start.Y},
			to:     engine.Point{X: l.End.X, Y: l.End.Y},
			width:  l.Width,
			stroke: l.Color,
		})
	}

	frags, err := tx.Extract(ops)
	if err != nil {
		return err
	}
	for _, f := range frags {
		start := len(p.chars)
		p.appendFragment(f, fonts[f.FontName])
		p.items = append(p.items, item{kind: itemText, frag: f, runes: p.chars[start:len(p.chars):len(p.chars)]})
	}
	return nil
}

// appendFragment adds a fragment's characters to the text run, inserting
// a generated space or line break between it and the previous fragment.
func (p *page) appendFragment(f text.TextFragment, m *font.Font) {
	runes := []rune(f.Text)
	if len(runes) == 0 {
		return
	}
	line := 0
	if n := len(p.chars); n > 0 {
		prev := p.chars[n-1]
		line = prev.line
		pen := engine.Point{X: prev.box.Right, Y: prev.origin.Y}
		switch {
		case math.Abs(f.Y-prev.origin.Y) > 0.5*math.Max(f.FontSize, prev.size):
			p.chars = append(p.chars,
				char{r: '\r', box: zeroBox(pen), origin: pen, size: prev.size, line: line, generated: true},
				char{r: '\n', box: zeroBox(pen), origin: pen, size: prev.size, line: line, generated: true})
			line++
		case f.X-pen.X > 0.15*f.FontSize && !isSpace(prev.r) && !isSpace(runes[0]):
			p.chars = append(p.chars, char{r: ' ', box: zeroBox(pen), origin: pen, size: prev.size, line: line, generated: true})
		}
	}

	// Widths follow the font metrics, scaled so the run spans the
	// fragment width the extractor measured.
	adv := make([]float64, len(runes))
	total := 0.0
	for i, r := range runes {
		w := 0.5
		if m != nil {
			w = m.GetWidth(r) / 1000
		}
		adv[i] = w * f.FontSize
		total += adv[i]
	}
	scale := 1.0
	if total > 0 && f.Width > 0 {
		scale = f.Width / total
	}
	x := f.X
	for i, r := range runes {
		w := adv[i] * scale
		p.chars = append(p.chars, char{
			r:      r,
			box:    engine.Rect{Left: x, Right: x + w, Bottom: f.Y - 0.2*f.FontSize, Top: f.Y + 0.8*f.FontSize},
			origin: engine.Point{X: x, Y: f.Y},
			size:   f.FontSize,
			line:   line,
		})
		x += w
	}
}

func zeroBox(p engine.Point) engine.Rect {
	return engine.Rect{Left: p.X, Right: p.X, Bottom: p.Y, Top: p.Y}
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\r' || r == '\n' }

func (e *Engine) ClosePage(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := get[*page](e, h); ok {
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
	return p.width, p.height
}
