// Package lite is a pure-Go document engine.
//
// Documents are read, validated and rewritten with pdfcpu. Page content
// streams are interpreted with tabula: its text extractor yields the
// character run behind text pages and search, and its graphics extractor
// yields the rectangles and strokes of the display list. Rendering
// rasterizes the display list with golang.org/x/image/vector, one display
// item per work step, so progressive renders pause between items.
//
// The engine is a subset of what pdfium draws: filled and stroked
// rectangles, stroked line segments and text set in Go Regular. Images,
// shadings, clipping and curved fills are not drawn. Documents are never
// modified, so an incremental save without a version change writes the
// original bytes back unchanged.
package lite

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jpl-au/pdfbridge/engine"
)

// Options configures the engine. Zero values select defaults.
type Options struct {
	// SliceItems bounds the display items one progressive call draws.
	// Zero draws until the pauser asks to stop.
	SliceItems int

	// Strict selects pdfcpu's strict validation instead of relaxed.
	Strict bool
}

var disableConfig sync.Once

// Engine implements engine.Engine without cgo.
type Engine struct {
	mu      sync.Mutex
	opts    Options
	next    engine.Handle
	objects map[engine.Handle]any
	lastErr engine.ErrorCode
	glyphs  *glyphSet
	inited  bool
}

// New returns an engine with zero-value defaults applied.
func New(opts Options) *Engine {
	return &Engine{opts: opts, objects: make(map[engine.Handle]any)}
}

func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inited {
		return nil
	}
	// pdfcpu otherwise creates a configuration directory under the
	// user's home on first use.
	disableConfig.Do(api.DisableConfigDir)
	g, err := loadGlyphs()
	if err != nil {
		return err
	}
	e.glyphs = g
	e.inited = true
	return nil
}

func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.objects)
	e.inited = false
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

func (e *Engine) add(obj any) engine.Handle {
	e.next++
	e.objects[e.next] = obj
	return e.next
}

func get[T any](e *Engine, h engine.Handle) (T, bool) {
	v, ok := e.objects[h].(T)
	return v, ok
}

type document struct {
	data     []byte
	password string
	ctx      *model.Context
	dims     [][2]float64
	meta     map[string]string
}

func (e *Engine) config(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password
	conf.ValidationMode = model.ValidationRelaxed
	if e.opts.Strict {
		conf.ValidationMode = model.ValidationStrict
	}
	return conf
}

// read parses and validates data into a pdfcpu context.
func (e *Engine) read(data []byte, conf *model.Configuration) (*model.Context, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// loadCode classifies a pdfcpu read failure.
func loadCode(err error) engine.ErrorCode {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password"):
		return engine.CodePassword
	case strings.Contains(msg, "encrypt"), strings.Contains(msg, "security handler"):
		return engine.CodeSecurity
	default:
		return engine.CodeFormat
	}
}

func (e *Engine) LoadDocument(data []byte, password string) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(data) == 0 {
		return engine.Null, e.fail(engine.CodeFormat)
	}
	ctx, err := e.read(data, e.config(password))
	if err != nil {
		return engine.Null, e.fail(loadCode(err))
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return engine.Null, e.fail(engine.CodeFormat)
	}
	d := &document{
		data:     data,
		password: password,
		ctx:      ctx,
		meta: map[string]string{
			"Title":        ctx.Title,
			"Author":       ctx.Author,
			"Subject":      ctx.Subject,
			"Keywords":     ctx.Keywords,
			"Creator":      ctx.Creator,
			"Producer":     ctx.Producer,
			"CreationDate": ctx.XRefTable.CreationDate,
			"ModDate":      ctx.ModDate,
		},
	}
	for _, dim := range dims {
		d.dims = append(d.dims, [2]float64{dim.Width, dim.Height})
	}
	e.lastErr = engine.CodeSuccess
	return e.add(d), nil
}

func (e *Engine) CloseDocument(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := get[*document](e, h); ok {
		delete(e.objects, h)
	}
}

func (e *Engine) PageCount(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, h)
	if !ok {
		return 0
	}
	return d.ctx.PageCount
}

func (e *Engine) MetaText(h engine.Handle, tag string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, h)
	if !ok {
		return nil
	}
	return encodeUTF16(d.meta[tag])
}

var versions = map[int]model.Version{
	10: model.V10, 11: model.V11, 12: model.V12, 13: model.V13,
	14: model.V14, 15: model.V15, 16: model.V16, 17: model.V17,
	20: model.V20,
}

func (e *Engine) Save(h engine.Handle, w io.Writer, flags engine.SaveFlags, version int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := get[*document](e, h)
	if !ok {
		return e.fail(engine.CodeUnknown)
	}
	if flags == engine.SaveIncremental && version == 0 {
		if _, err := w.Write(d.data); err != nil {
			return e.fail(engine.CodeFile)
		}
		e.lastErr = engine.CodeSuccess
		return nil
	}

	conf := e.config(d.password)
	if flags == engine.SaveRemoveSecurity {
		conf.Cmd = model.DECRYPT
	}
	// Each save works on a fresh context: pdfcpu's writer mutates the
	// context it is given.
	ctx, err := e.read(d.data, conf)
	if err != nil {
		return e.fail(engine.CodeUnknown)
	}
	if version != 0 {
		v, ok := versions[version]
		if !ok {
			return e.fail(engine.CodeUnknown)
		}
		ctx.HeaderVersion = &v
		ctx.RootVersion = &v
	}
	if err := api.WriteContext(ctx, w); err != nil {
		return e.fail(engine.CodeFile)
	}
	e.lastErr = engine.CodeSuccess
	return nil
}

var _ engine.Engine = (*Engine)(nil)
