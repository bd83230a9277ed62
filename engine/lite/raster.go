package lite

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/jpl-au/pdfbridge/engine"
)

// bitmap is a BGRA pixel buffer. It implements draw.Image so the
// rasterizer can composite into it directly.
type bitmap struct {
	w, h   int
	stride int
	alpha  bool
	buf    []byte
}

func (b *bitmap) ColorModel() color.Model { return color.NRGBAModel }

func (b *bitmap) Bounds() image.Rectangle { return image.Rect(0, 0, b.w, b.h) }

func (b *bitmap) At(x, y int) color.Color {
	if !image.Pt(x, y).In(b.Bounds()) {
		return color.NRGBA{}
	}
	i := y*b.stride + x*4
	return color.NRGBA{R: b.buf[i+2], G: b.buf[i+1], B: b.buf[i], A: b.buf[i+3]}
}

func (b *bitmap) Set(x, y int, c color.Color) {
	if !image.Pt(x, y).In(b.Bounds()) {
		return
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if !b.alpha {
		n.A = 0xFF
	}
	i := y*b.stride + x*4
	b.buf[i], b.buf[i+1], b.buf[i+2], b.buf[i+3] = n.B, n.G, n.R, n.A
}

func (e *Engine) CreateBitmap(width, height int, alpha bool) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if width <= 0 || height <= 0 {
		return engine.Null, e.fail(engine.CodeUnknown)
	}
	b := &bitmap{w: width, h: height, stride: width * 4, alpha: alpha}
	b.buf = make([]byte, b.stride*height)
	return e.add(b), nil
}

func (e *Engine) DestroyBitmap(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := get[*bitmap](e, h); ok {
		delete(e.objects, h)
	}
}

func (e *Engine) BitmapBuffer(h engine.Handle) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := get[*bitmap](e, h); ok {
		return b.buf
	}
	return nil
}

func (e *Engine) BitmapStride(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := get[*bitmap](e, h); ok {
		return b.stride
	}
	return 0
}

// FillRect overwrites pixels without blending, like FPDFBitmap_FillRect.
func (e *Engine) FillRect(h engine.Handle, left, top, width, height int, argb uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := get[*bitmap](e, h)
	if !ok {
		return
	}
	c := engine.ColorFromARGB(argb)
	r := image.Rect(left, top, left+width, top+height).Intersect(b.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := y*b.stride + x*4
			b.buf[i], b.buf[i+1], b.buf[i+2], b.buf[i+3] = c.B, c.G, c.R, c.A
		}
	}
}

// glyphSet draws text with Go Regular outlines.
type glyphSet struct {
	font *sfnt.Font
	buf  sfnt.Buffer
}

func loadGlyphs() (*glyphSet, error) {
	f, err := sfnt.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	return &glyphSet{font: f}, nil
}

// painter draws display items into one bitmap through one transform. The
// rasterizer covers the clip rectangle, so device points are shifted by
// its origin.
type painter struct {
	dst    *bitmap
	clip   image.Rectangle
	m      engine.Matrix
	scale  float64
	gray   bool
	z      *vector.Rasterizer
	glyphs *glyphSet
}

func newPainter(dst *bitmap, vp engine.Viewport, pageW, pageH float64, flags engine.RenderFlags, g *glyphSet) *painter {
	m := vp.Matrix(pageW, pageH)
	clip := image.Rect(vp.X, vp.Y, vp.X+vp.Width, vp.Y+vp.Height).Intersect(dst.Bounds())
	return &painter{
		dst:    dst,
		clip:   clip,
		m:      m,
		scale:  math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2])),
		gray:   flags&engine.RenderGrayscale != 0,
		z:      vector.NewRasterizer(clip.Dx(), clip.Dy()),
		glyphs: g,
	}
}

func (p *painter) color(c [3]float64) image.Image {
	r, g, b := unit(c[0]), unit(c[1]), unit(c[2])
	if p.gray {
		y := uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000)
		r, g, b = y, y, y
	}
	return image.NewUniform(color.NRGBA{R: r, G: g, B: b, A: 0xFF})
}

func unit(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

func (p *painter) device(pt engine.Point) (float32, float32) {
	d := p.m.Transform(pt)
	return float32(d.X - float64(p.clip.Min.X)), float32(d.Y - float64(p.clip.Min.Y))
}

func (p *painter) begin() {
	p.z.Reset(p.clip.Dx(), p.clip.Dy())
}

func (p *painter) end(src image.Image) {
	p.z.Draw(p.dst, p.clip, src, p.clip.Min)
}

// polygon adds a closed path through page-space points.
func (p *painter) polygon(pts ...engine.Point) {
	x, y := p.device(pts[0])
	p.z.MoveTo(x, y)
	for _, pt := range pts[1:] {
		x, y = p.device(pt)
		p.z.LineTo(x, y)
	}
	p.z.ClosePath()
}

// stroke adds a line segment of the given page-space width as a quad.
// Hairlines are widened to one device pixel.
func (p *painter) stroke(a, b engine.Point, width float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	if p.scale > 0 && width*p.scale < 1 {
		width = 1 / p.scale
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	p.polygon(
		engine.Point{X: a.X + nx, Y: a.Y + ny},
		engine.Point{X: b.X + nx, Y: b.Y + ny},
		engine.Point{X: b.X - nx, Y: b.Y - ny},
		engine.Point{X: a.X - nx, Y: a.Y - ny},
	)
}

func (p *painter) draw(it item) {
	if p.clip.Empty() {
		return
	}
	switch it.kind {
	case itemRect:
		r := it.rect
		if it.filled {
			p.begin()
			p.polygon(
				engine.Point{X: r.Left, Y: r.Bottom}, engine.Point{X: r.Right, Y: r.Bottom},
				engine.Point{X: r.Right, Y: r.Top}, engine.Point{X: r.Left, Y: r.Top},
			)
			p.end(p.color(it.fill))
		}
		if it.width > 0 {
			p.begin()
			corners := []engine.Point{
				{X: r.Left, Y: r.Bottom}, {X: r.Right, Y: r.Bottom},
				{X: r.Right, Y: r.Top}, {X: r.Left, Y: r.Top},
			}
			for i := range corners {
				p.stroke(corners[i], corners[(i+1)%4], it.width)
			}
			p.end(p.color(it.stroke))
		}
	case itemLine:
		p.begin()
		p.stroke(it.from, it.to, it.width)
		p.end(p.color(it.stroke))
	case itemText:
		p.begin()
		p.text(it)
		p.end(p.color([3]float64{}))
	}
}

// text adds glyph outlines for each character of a text item, placed at
// the character's origin in page space.
func (p *painter) text(it item) {
	g := p.glyphs
	if g == nil || it.frag.FontSize <= 0 {
		return
	}
	ppem := fixed.Int26_6(it.frag.FontSize * 64)
	for _, c := range it.runes {
		if c.generated || isSpace(c.r) {
			continue
		}
		idx, err := g.font.GlyphIndex(&g.buf, c.r)
		if err != nil || idx == 0 {
			continue
		}
		segs, err := g.font.LoadGlyph(&g.buf, idx, ppem, nil)
		if err != nil {
			continue
		}
		// Glyph outlines are y-down; page space is y-up.
		at := func(v fixed.Point26_6) (float32, float32) {
			return p.device(engine.Point{X: c.origin.X + float64(v.X)/64, Y: c.origin.Y - float64(v.Y)/64})
		}
		for _, s := range segs {
			switch s.Op {
			case sfnt.SegmentOpMoveTo:
				x, y := at(s.Args[0])
				p.z.MoveTo(x, y)
			case sfnt.SegmentOpLineTo:
				x, y := at(s.Args[0])
				p.z.LineTo(x, y)
			case sfnt.SegmentOpQuadTo:
				bx, by := at(s.Args[0])
				cx, cy := at(s.Args[1])
				p.z.QuadTo(bx, by, cx, cy)
			case sfnt.SegmentOpCubeTo:
				bx, by := at(s.Args[0])
				cx, cy := at(s.Args[1])
				dx, dy := at(s.Args[2])
				p.z.CubeTo(bx, by, cx, cy, dx, dy)
			}
		}
		p.z.ClosePath()
	}
}
