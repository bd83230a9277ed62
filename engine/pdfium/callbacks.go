//go:build pdfium

package pdfium

/*
#include <stdint.h>
*/
import "C"

import (
	"io"
	"runtime/cgo"
	"unsafe"

	"github.com/jpl-au/pdfbridge/engine"
)

//export goNeedToPause
func goNeedToPause(h C.uintptr_t) C.int {
	if p, ok := cgo.Handle(h).Value().(engine.Pauser); ok && p.NeedToPause() {
		return 1
	}
	return 0
}

// goWriteBlock returns 1 on success and 0 on failure, as FPDF_FILEWRITE
// requires.
//
//export goWriteBlock
func goWriteBlock(h C.uintptr_t, data unsafe.Pointer, size C.ulong) C.int {
	w, ok := cgo.Handle(h).Value().(io.Writer)
	if !ok {
		return 0
	}
	if size == 0 {
		return 1
	}
	if _, err := w.Write(C.GoBytes(data, C.int(size))); err != nil {
		return 0
	}
	return 1
}
