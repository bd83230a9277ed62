package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dop251/goja"
	json "github.com/goccy/go-json"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/jpl-au/pdfbridge"
	"github.com/jpl-au/pdfbridge/engine"
	"github.com/jpl-au/pdfbridge/jshost"
)

// infoTags are the info dictionary entries info reports.
var infoTags = []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer", "CreationDate", "ModDate"}

type pageInfo struct {
	Index  int     `json:"index"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Chars  int     `json:"chars"`
}

type docInfo struct {
	File     string            `json:"file"`
	Pages    int               `json:"pages"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Sizes    []pageInfo        `json:"page_sizes"`
}

func (e *env) writeJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInfo(_ context.Context, e *env, args []string) error {
	if err := e.parse(args, 1, 1); err != nil {
		return err
	}
	path := e.flags.Arg(0)
	lib, doc, err := e.open(path)
	if err != nil {
		return err
	}
	defer lib.Close()

	n, err := doc.PageCount()
	if err != nil {
		return err
	}
	out := docInfo{File: filepath.Base(path), Pages: n, Metadata: make(map[string]string)}
	for _, tag := range infoTags {
		if v, err := doc.Metadata(tag); err == nil && v != "" {
			out.Metadata[tag] = v
		}
	}
	for i := range n {
		p, err := doc.LoadPage(i)
		if err != nil {
			return err
		}
		w, h, _ := p.Size()
		pi := pageInfo{Index: i, Width: w, Height: h}
		if tp, err := p.LoadText(); err == nil {
			pi.Chars, _ = tp.CharCount()
		}
		out.Sizes = append(out.Sizes, pi)
		p.Close()
	}
	return e.writeJSON(out)
}

func runRender(ctx context.Context, e *env, args []string) error {
	index := e.flags.Int("page", 0, "page index")
	scale := e.flags.Float64("scale", 1, "pixels per point")
	rotate := e.flags.Int("rotate", 0, "clockwise quarter turns")
	out := e.flags.String("o", "page.png", "output image (.png, .bmp, .tif)")
	gray := e.flags.Bool("gray", false, "render in grayscale")
	progressive := e.flags.Bool("progressive", false, "render in slices that can be interrupted")
	slice := e.flags.Duration("slice", 10*time.Millisecond, "slice budget for -progressive")
	if err := e.parse(args, 1, 1); err != nil {
		return err
	}
	if *scale <= 0 {
		return fmt.Errorf("render: scale %v must be positive", *scale)
	}
	encode, err := encoderFor(*out)
	if err != nil {
		return err
	}

	lib, doc, err := e.open(e.flags.Arg(0))
	if err != nil {
		return err
	}
	defer lib.Close()
	page, err := doc.LoadPage(*index)
	if err != nil {
		return err
	}
	w, h, err := page.Size()
	if err != nil {
		return err
	}
	vp := engine.Viewport{
		Width:  int(math.Ceil(w * *scale)),
		Height: int(math.Ceil(h * *scale)),
		Rotate: *rotate,
	}
	if vp.Rotation()%2 == 1 {
		vp.Width, vp.Height = vp.Height, vp.Width
	}
	target, err := lib.CreateBitmap(vp.Width, vp.Height, false)
	if err != nil {
		return err
	}
	if err := target.FillRect(0, 0, vp.Width, vp.Height, engine.Color{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}); err != nil {
		return err
	}

	var flags engine.RenderFlags
	if *gray {
		flags |= engine.RenderGrayscale
	}
	if *progressive {
		err = renderProgressive(ctx, e, page, target, vp, flags, *slice)
	} else {
		err = page.Render(target, vp, flags)
	}
	if err != nil {
		return err
	}

	img, err := target.Image()
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", *out, err)
	}
	return f.Close()
}

// renderProgressive drives the start/continue loop. Interrupting the
// command sets the page's cancel flag, which ends the loop at the next
// slice.
func renderProgressive(ctx context.Context, e *env, page *pdfbridge.Page, target *pdfbridge.Bitmap, vp engine.Viewport, flags engine.RenderFlags, budget time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cancel pdfbridge.CancelFlag
	stop := context.AfterFunc(ctx, func() { cancel.Set(true) })
	defer stop()
	defer page.CloseRender()

	start := time.Now()
	st, err := page.StartRender(target, vp, flags, pdfbridge.WithCancelFlag(&cancel), pdfbridge.WithSliceBudget(budget))
	slices := 1
	for st == engine.NeedsContinue {
		st, err = page.ContinueRender()
		slices++
	}
	e.logger().Debug("progressive render", "status", st, "slices", slices, "elapsed", time.Since(start))
	return err
}

type encoder func(f *os.File, img image.Image) error

func encoderFor(path string) (encoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return func(f *os.File, img image.Image) error { return png.Encode(f, img) }, nil
	case ".bmp":
		return func(f *os.File, img image.Image) error { return bmp.Encode(f, img) }, nil
	case ".tif", ".tiff":
		return func(f *os.File, img image.Image) error {
			return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
		}, nil
	default:
		return nil, fmt.Errorf("render: unsupported image format %q", filepath.Ext(path))
	}
}

func runText(_ context.Context, e *env, args []string) error {
	index := e.flags.Int("page", -1, "page index, -1 for every page")
	if err := e.parse(args, 1, 1); err != nil {
		return err
	}
	lib, doc, err := e.open(e.flags.Arg(0))
	if err != nil {
		return err
	}
	defer lib.Close()

	first, last, err := pageRange(doc, *index)
	if err != nil {
		return err
	}
	for i := first; i <= last; i++ {
		p, err := doc.LoadPage(i)
		if err != nil {
			return err
		}
		tp, err := p.LoadText()
		if err != nil {
			return err
		}
		s, err := tp.Text()
		if err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, s)
		p.Close()
	}
	return nil
}

// pageRange returns the pages a -page flag selects.
func pageRange(doc *pdfbridge.Document, index int) (int, int, error) {
	n, err := doc.PageCount()
	if err != nil {
		return 0, 0, err
	}
	if index < 0 {
		return 0, n - 1, nil
	}
	if index >= n {
		return 0, 0, fmt.Errorf("page %d out of range, document has %d", index, n)
	}
	return index, index, nil
}

type match struct {
	Page  int           `json:"page"`
	Index int           `json:"index"`
	Count int           `json:"count"`
	Text  string        `json:"text"`
	Rects []engine.Rect `json:"rects"`
}

func runSearch(_ context.Context, e *env, args []string) error {
	index := e.flags.Int("page", -1, "page index, -1 for every page")
	matchCase := e.flags.Bool("case", false, "match case")
	word := e.flags.Bool("word", false, "match whole words")
	if err := e.parse(args, 2, 2); err != nil {
		return err
	}
	query := e.flags.Arg(0)
	lib, doc, err := e.open(e.flags.Arg(1))
	if err != nil {
		return err
	}
	defer lib.Close()

	var flags engine.SearchFlags
	if *matchCase {
		flags |= engine.MatchCase
	}
	if *word {
		flags |= engine.MatchWholeWord
	}
	first, last, err := pageRange(doc, *index)
	if err != nil {
		return err
	}
	matches := []match{}
	for i := first; i <= last; i++ {
		p, err := doc.LoadPage(i)
		if err != nil {
			return err
		}
		tp, err := p.LoadText()
		if err != nil {
			return err
		}
		s, err := tp.FindStart(query, flags, 0)
		if err != nil {
			return err
		}
		for m := range s.Matches() {
			text, _ := tp.TextRange(m.Index, m.Count)
			rects, _ := tp.SelectionRects(m.Index, m.Count)
			matches = append(matches, match{Page: i, Index: m.Index, Count: m.Count, Text: text, Rects: rects})
		}
		p.Close()
	}
	return e.writeJSON(matches)
}

type saveResult struct {
	File       string `json:"file"`
	Size       int    `json:"size"`
	Digest     string `json:"digest,omitempty"`
	Compressed int    `json:"compressed,omitempty"`
}

func runSave(_ context.Context, e *env, args []string) error {
	out := e.flags.String("o", "out.pdf", "output file")
	version := e.flags.Int("version", 0, "PDF version times ten, 0 keeps the document's")
	incremental := e.flags.Bool("incremental", false, "append changes instead of rewriting")
	decrypt := e.flags.Bool("decrypt", false, "remove security")
	compress := e.flags.Bool("zstd", false, "write a zstd frame instead of raw PDF")
	sum := e.flags.Bool("digest", false, "report the digest of the saved bytes")
	if err := e.parse(args, 1, 1); err != nil {
		return err
	}
	if !engine.ValidVersion(*version) {
		return fmt.Errorf("save: unsupported version %d", *version)
	}
	lib, doc, err := e.open(e.flags.Arg(0))
	if err != nil {
		return err
	}
	defer lib.Close()

	flags := engine.SaveNoIncremental
	switch {
	case *decrypt:
		flags = engine.SaveRemoveSecurity
	case *incremental:
		flags = engine.SaveIncremental
	}
	n := lib.SaveWithVersion(doc, flags, *version)
	if n == 0 {
		return fmt.Errorf("save failed: engine error %v", lib.LastError())
	}
	buf := lib.Buffer()
	defer buf.Free()

	res := saveResult{File: *out, Size: n}
	data := buf.Bytes()
	if *compress {
		if data, err = buf.Compressed(); err != nil {
			return err
		}
		res.Compressed = len(data)
	}
	if *sum {
		res.Digest = buf.Digest()
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	return e.writeJSON(res)
}

func runJS(ctx context.Context, e *env, args []string) error {
	if err := e.parse(args, 1, 2); err != nil {
		return err
	}
	script, err := os.ReadFile(e.flags.Arg(0))
	if err != nil {
		return err
	}
	eng, err := e.newEngine()
	if err != nil {
		return err
	}
	h := jshost.New(nil, eng, pdfbridge.Config{Logger: e.logger()})
	if err := h.Install(); err != nil {
		return err
	}
	defer h.Close()

	vm := h.Runtime()
	if e.flags.NArg() == 2 {
		data, err := os.ReadFile(e.flags.Arg(1))
		if err != nil {
			return err
		}
		if err := vm.Set("pdf", vm.NewArrayBuffer(data)); err != nil {
			return err
		}
	}
	if err := vm.Set("password", e.password); err != nil {
		return err
	}
	if err := vm.Set("print", func(s string) { fmt.Fprintln(e.stdout, s) }); err != nil {
		return err
	}

	v, err := h.Run(ctx, string(script))
	if err != nil {
		return fmt.Errorf("%s: %w", e.flags.Arg(0), err)
	}
	if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		fmt.Fprintln(e.stdout, v.String())
	}
	return nil
}
