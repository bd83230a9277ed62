// Page and device coordinate spaces.
//
// Page space is PDF user space: origin at the bottom-left of the page, y up,
// units of 1/72 inch. Device space is the bitmap: origin at the top-left,
// y down, units of pixels. A Viewport places the page inside the bitmap and
// rotates it clockwise in quarter turns. The mapping is the same affine
// display matrix pdfium uses for FPDF_PageToDevice.
package engine

import (
	"errors"
	"math"
)

// Point is a position in page or device space.
type Point struct {
	X, Y float64
}

// Rect is a rectangle in page space (Bottom <= Top) or device space.
type Rect struct {
	Left, Top, Right, Bottom float64
}

// Contains reports whether p lies inside r, treating r as page space.
func (r Rect) Contains(p Point) bool {
	lo, hi := math.Min(r.Bottom, r.Top), math.Max(r.Bottom, r.Top)
	return p.X >= r.Left && p.X <= r.Right && p.Y >= lo && p.Y <= hi
}

// Union returns the smallest page-space rectangle holding r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		Left:   math.Min(r.Left, o.Left),
		Top:    math.Max(r.Top, o.Top),
		Right:  math.Max(r.Right, o.Right),
		Bottom: math.Min(r.Bottom, o.Bottom),
	}
}

// Color is an 8-bit RGBA colour.
type Color struct {
	R, G, B, A uint8
}

// ARGB packs c as 0xAARRGGBB, the layout of FPDFBitmap_FillRect.
func (c Color) ARGB() uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// ColorFromARGB unpacks 0xAARRGGBB.
func ColorFromARGB(v uint32) Color {
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: uint8(v >> 24)}
}

// Matrix is an affine transform [a b c d e f] mapping (x, y) to
// (a*x + c*y + e, b*x + d*y + f).
type Matrix [6]float64

// Identity returns the identity transform.
func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Transform applies m to p.
func (m Matrix) Transform(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// Multiply returns m followed by o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// ErrSingular is returned when inverting a degenerate transform.
var ErrSingular = errors.New("matrix is singular")

// Inverse returns the inverse of m.
func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-12 {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// Viewport positions a page inside a bitmap.
type Viewport struct {
	X, Y          int // device origin of the page box
	Width, Height int // device size of the page box
	Rotate        int // clockwise quarter turns, 0..3
}

// Rotation returns Rotate normalized to 0..3.
func (v Viewport) Rotation() int {
	return ((v.Rotate % 4) + 4) % 4
}

// Matrix returns the page-to-device transform for a page of the given size.
// A zero-sized page yields the identity.
func (v Viewport) Matrix(pageW, pageH float64) Matrix {
	if pageW == 0 || pageH == 0 {
		return Identity()
	}
	x, y := float64(v.X), float64(v.Y)
	w, h := float64(v.Width), float64(v.Height)

	// Device positions of page (0,0), (pageW,0) and (0,pageH).
	var o, ex, ey Point
	switch v.Rotation() {
	case 0:
		o, ex, ey = Point{x, y + h}, Point{x + w, y + h}, Point{x, y}
	case 1:
		o, ex, ey = Point{x, y}, Point{x, y + h}, Point{x + w, y}
	case 2:
		o, ex, ey = Point{x + w, y}, Point{x, y}, Point{x + w, y + h}
	case 3:
		o, ex, ey = Point{x + w, y + h}, Point{x + w, y}, Point{x, y + h}
	}
	return Matrix{
		(ex.X - o.X) / pageW, (ex.Y - o.Y) / pageW,
		(ey.X - o.X) / pageH, (ey.Y - o.Y) / pageH,
		o.X, o.Y,
	}
}

// PageToDevice maps a page point to the nearest device pixel.
func (v Viewport) PageToDevice(pageW, pageH float64, p Point) (int, int) {
	d := v.Matrix(pageW, pageH).Transform(p)
	return int(math.Round(d.X)), int(math.Round(d.Y))
}

// DeviceToPage maps a device pixel back to page space.
func (v Viewport) DeviceToPage(pageW, pageH float64, dx, dy int) (Point, error) {
	inv, err := v.Matrix(pageW, pageH).Inverse()
	if err != nil {
		return Point{}, err
	}
	return inv.Transform(Point{float64(dx), float64(dy)}), nil
}
