package engine

import "fmt"

// RenderStatus is the state of a progressive render. Values match
// pdfium's FPDF_RENDER_* constants.
type RenderStatus int

const (
	Idle          RenderStatus = 0 // no progressive render in flight
	NeedsContinue RenderStatus = 1 // slice ended, call ContinueRender
	Done          RenderStatus = 2
	Failed        RenderStatus = 3
)

func (s RenderStatus) String() string {
	switch s {
	case Idle:
		return "idle"
	case NeedsContinue:
		return "needs-continue"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether s ends a progressive render.
func (s RenderStatus) Terminal() bool {
	return s == Done || s == Failed
}

// RenderFlags select rendering options. Values match pdfium's FPDF_* render
// flags and are forwarded verbatim.
type RenderFlags uint32

const (
	RenderAnnotations      RenderFlags = 0x01
	RenderLCDText          RenderFlags = 0x02
	RenderNoNativeText     RenderFlags = 0x04
	RenderGrayscale        RenderFlags = 0x08
	RenderReverseByteOrder RenderFlags = 0x10
	RenderFillToStroke     RenderFlags = 0x20
	RenderNoCatch          RenderFlags = 0x100
	RenderPrinting         RenderFlags = 0x800
	RenderNoSmoothText     RenderFlags = 0x1000
	RenderNoSmoothImage    RenderFlags = 0x2000
	RenderNoSmoothPath     RenderFlags = 0x4000
)

// SaveFlags select the serialization mode. Values match pdfium's
// FPDF_INCREMENTAL family.
type SaveFlags uint32

const (
	SaveIncremental    SaveFlags = 1
	SaveNoIncremental  SaveFlags = 2
	SaveRemoveSecurity SaveFlags = 3
)

// SearchFlags select match semantics. Values match pdfium's FPDF_MATCHCASE
// family and are forwarded verbatim.
type SearchFlags uint32

const (
	MatchCase      SearchFlags = 0x1
	MatchWholeWord SearchFlags = 0x2
	Consecutive    SearchFlags = 0x4
)

// ErrorCode is the engine's last-error code. Values 0 through 6 match
// pdfium's FPDF_ERR_* constants.
type ErrorCode uint32

const (
	CodeSuccess     ErrorCode = 0
	CodeUnknown     ErrorCode = 1
	CodeFile        ErrorCode = 2
	CodeFormat      ErrorCode = 3
	CodePassword    ErrorCode = 4
	CodeSecurity    ErrorCode = 5
	CodePage        ErrorCode = 6
	CodeUnsupported ErrorCode = 0x100
)

// Error lets engines return a code directly as an error.
func (c ErrorCode) Error() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeUnknown:
		return "unknown error"
	case CodeFile:
		return "file not found or could not be opened"
	case CodeFormat:
		return "file not in pdf format or corrupted"
	case CodePassword:
		return "password required or incorrect"
	case CodeSecurity:
		return "unsupported security scheme"
	case CodePage:
		return "page not found or content error"
	case CodeUnsupported:
		return "operation not supported by engine"
	default:
		return fmt.Sprintf("engine error %d", uint32(c))
	}
}

// ValidVersion reports whether v is an acceptable save version: 0 (keep)
// or a PDF version times ten from 1.0 to 1.7, or 2.0.
func ValidVersion(v int) bool {
	return v == 0 || (v >= 10 && v <= 17) || v == 20
}
