//go:build pdfium

package main

import (
	"github.com/jpl-au/pdfbridge/engine"
	"github.com/jpl-au/pdfbridge/engine/pdfium"
)

func init() {
	engines["pdfium"] = func() engine.Engine { return pdfium.New() }
}
