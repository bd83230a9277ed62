// Package jshost installs the flat PDFium_* call surface into a goja
// JavaScript runtime.
//
// Scripts see the boundary the way a WebAssembly host sees an exported C
// surface: resources are plain numbers, out-parameters are returned as small
// objects, and every failure is a sentinel (0, false, null or -1). No
// function throws. Buffers the engine fills are blocks from PDFium_Malloc,
// read and written from script through PDFium_GetMemory.
//
// One cancel flag is shared by every render session the host starts, and
// the save buffer is the library's single slot, so the surface keeps the
// process-wide semantics scripts written against the C boundary expect.
package jshost

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/dop251/goja"

	"github.com/jpl-au/pdfbridge"
	"github.com/jpl-au/pdfbridge/engine"
)

// Host binds one engine to one runtime. The library exists between
// PDFium_Init and PDFium_Destroy.
type Host struct {
	vm     *goja.Runtime
	eng    engine.Engine
	config pdfbridge.Config
	log    *slog.Logger
	lib    *pdfbridge.Library
	cancel pdfbridge.CancelFlag
	rects  map[pdfbridge.Handle][]engine.Rect // from the last PDFium_CountRects per text page
}

// New returns a Host for eng. A nil vm gets a fresh runtime.
func New(vm *goja.Runtime, eng engine.Engine, config pdfbridge.Config) *Host {
	if vm == nil {
		vm = goja.New()
	}
	log := config.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Host{
		vm:     vm,
		eng:    eng,
		config: config,
		log:    log,
		rects:  make(map[pdfbridge.Handle][]engine.Rect),
	}
}

// Runtime returns the runtime the surface is installed into.
func (h *Host) Runtime() *goja.Runtime { return h.vm }

// Library returns the library created by PDFium_Init, or nil.
func (h *Host) Library() *pdfbridge.Library { return h.lib }

// Cancel sets the shared cancel flag. Safe from any goroutine.
func (h *Host) Cancel() { h.cancel.Set(true) }

// Install defines every PDFium_* function as a global.
func (h *Host) Install() error {
	for name, fn := range h.functions() {
		if err := h.vm.Set(name, fn); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}
	return nil
}

// Run evaluates script. Cancelling ctx interrupts the script and sets the
// cancel flag so an in-flight render loop also stops.
func (h *Host) Run(ctx context.Context, script string) (goja.Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	defer h.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			h.cancel.Set(true)
			h.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	v, err := h.vm.RunString(script)
	if err != nil {
		if ie, ok := err.(*goja.InterruptedError); ok {
			if cause := ie.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return v, nil
}

// Close destroys the library if the script left it initialized.
func (h *Host) Close() error {
	if h.lib == nil {
		return nil
	}
	err := h.lib.Close()
	h.lib = nil
	clear(h.rects)
	return err
}

// Argument conversion. Missing arguments are undefined and convert to the
// zero value.

func handleArg(call goja.FunctionCall, i int) pdfbridge.Handle {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	n := v.ToInteger()
	if n <= 0 {
		return 0
	}
	return pdfbridge.Handle(n)
}

func intArg(call goja.FunctionCall, i int) int {
	return int(call.Argument(i).ToInteger())
}

// unitBytes converts a UTF-16 unit count argument to a byte length.
func unitBytes(call goja.FunctionCall, i int) int {
	return 2 * min(intArg(call, i), math.MaxInt/2)
}

func floatArg(call goja.FunctionCall, i int) float64 {
	f := call.Argument(i).ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func stringArg(call goja.FunctionCall, i int) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func (h *Host) handle(v pdfbridge.Handle) goja.Value {
	return h.vm.ToValue(int64(v))
}

// bytesArg reads a byte argument given as a memory block handle, an
// ArrayBuffer or a typed array.
func (h *Host) bytesArg(call goja.FunctionCall, i int) []byte {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch x := v.Export().(type) {
	case goja.ArrayBuffer:
		return x.Bytes()
	case []byte:
		return x
	case int64, float64:
		b, err := h.lib.Memory(handleArg(call, i))
		if err != nil {
			return nil
		}
		return b
	}
	return nil
}

// buffer returns the memory block at argument i, capped at n bytes.
func (h *Host) buffer(call goja.FunctionCall, i, n int) []byte {
	hd := handleArg(call, i)
	if hd == 0 || n <= 0 {
		return nil
	}
	b, err := h.lib.Memory(hd)
	if err != nil {
		return nil
	}
	return b[:min(n, len(b))]
}
