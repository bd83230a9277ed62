// Package pdfium is the engine.Engine over libpdfium.
//
// The implementation is compiled only with the pdfium build tag and links
// against the library through pkg-config:
//
//	go build -tags pdfium ./...
//
// Progressive rendering and saving hand pdfium C callback tables
// (IFSDK_PAUSE and FPDF_FILEWRITE) allocated with malloc. Each table carries
// a runtime/cgo.Handle for the Go value the callback dispatches to, so no Go
// pointer is retained by C code. The handle is deleted when the call
// returns.
package pdfium
