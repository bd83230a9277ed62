// Package pdfbridge is a boundary layer between a host and a document
// engine. It wraps the engine's opaque document, page, text page, search and
// bitmap handles in owning Go values. Closing a value closes its children,
// and using it afterwards reports ErrUseAfterClose instead of reaching the
// engine.
//
// Two protocols carry state across calls. A progressive render is a per-page
// session driven by StartRender and ContinueRender; the engine polls a cancel
// flag between work units and the layer turns a cancelled slice into a
// terminal Failed status. A save serializes a document into the library's
// single-slot SaveBuffer, which the next save replaces and Free releases.
//
// Every engine call runs under the library mutex, so engines never see
// concurrent calls. Cancel flags are the only state written without it.
package pdfbridge

import (
	"errors"
	"fmt"

	"github.com/jpl-au/pdfbridge/engine"
)

// Sentinel errors for programmatic handling. Callers can use errors.Is to
// tell handle misuse (ErrUseAfterClose, ErrStaleHandle) from engine failures
// (ErrFormat, ErrPassword, ErrRenderFailed).
var (
	ErrClosed          = errors.New("library is closed")
	ErrUseAfterClose   = errors.New("use after close")
	ErrNullHandle      = errors.New("null handle")
	ErrStaleHandle     = errors.New("stale handle")
	ErrHandleKind      = errors.New("handle refers to a different kind of resource")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTooLarge        = errors.New("document exceeds maximum size")
	ErrRenderActive    = errors.New("render session already active")
	ErrRenderNotActive = errors.New("no render session in progress")
	ErrRenderFailed    = errors.New("render failed")
	ErrRenderCancelled = errors.New("render cancelled")
	ErrBitmapInUse     = errors.New("bitmap is the target of a render session")
	ErrSaveFailed      = errors.New("save failed")
	ErrEmptyBuffer     = errors.New("save buffer is empty")
	ErrDecompress      = errors.New("decompression failed")

	// Engine error codes.
	ErrUnknown     = errors.New("unknown engine error")
	ErrFile        = errors.New("file not found or could not be opened")
	ErrFormat      = errors.New("file not in pdf format or corrupted")
	ErrPassword    = errors.New("password required or incorrect")
	ErrSecurity    = errors.New("unsupported security scheme")
	ErrPage        = errors.New("page not found or content error")
	ErrUnsupported = errors.New("operation not supported by engine")
)

// EngineError reports a failed engine call. It unwraps to the sentinel for
// its code.
type EngineError struct {
	Op   string
	Code engine.ErrorCode
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Code)
}

func (e *EngineError) Unwrap() error {
	switch e.Code {
	case engine.CodeFile:
		return ErrFile
	case engine.CodeFormat:
		return ErrFormat
	case engine.CodePassword:
		return ErrPassword
	case engine.CodeSecurity:
		return ErrSecurity
	case engine.CodePage:
		return ErrPage
	case engine.CodeUnsupported:
		return ErrUnsupported
	default:
		return ErrUnknown
	}
}

// engineError wraps err from an engine call. Codes become *EngineError;
// anything else is wrapped as is.
func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var code engine.ErrorCode
	if errors.As(err, &code) {
		return &EngineError{Op: op, Code: code}
	}
	return fmt.Errorf("%s: %w", op, err)
}
