package pdfbridge

import (
	"fmt"
	"image"

	"github.com/jpl-au/pdfbridge/engine"
)

// Bitmap is a render target allocated by the engine. Pixels are 4 bytes in
// BGRA order with an engine-chosen stride.
type Bitmap struct {
	lib       *Library
	handle    Handle
	eh        engine.Handle
	width     int
	height    int
	alpha     bool
	busy      *Page // page whose render session targets the bitmap
	destroyed bool
}

// Handle returns the bitmap's registry handle, or 0 once destroyed.
func (b *Bitmap) Handle() Handle {
	if b == nil {
		return 0
	}
	b.lib.mu.Lock()
	defer b.lib.mu.Unlock()
	if b.destroyed {
		return 0
	}
	return b.handle
}

// Width returns the bitmap width in pixels.
func (b *Bitmap) Width() int {
	if b == nil {
		return 0
	}
	return b.width
}

// Height returns the bitmap height in pixels.
func (b *Bitmap) Height() int {
	if b == nil {
		return 0
	}
	return b.height
}

// usable checks the bitmap can be drawn into by lib. The caller holds the
// lock.
func (b *Bitmap) usable(lib *Library) error {
	if b.lib != lib {
		return fmt.Errorf("bitmap from another library: %w", ErrInvalidArgument)
	}
	if b.destroyed {
		return fmt.Errorf("bitmap: %w", ErrUseAfterClose)
	}
	return nil
}

func (b *Bitmap) use() error {
	if b == nil {
		return ErrNullHandle
	}
	if err := b.lib.enter(); err != nil {
		return err
	}
	if b.destroyed {
		b.lib.mu.Unlock()
		return ErrUseAfterClose
	}
	return nil
}

// Destroy frees the bitmap. It fails with ErrBitmapInUse while a render
// session targets it. Destroying twice is a no-op.
func (b *Bitmap) Destroy() error {
	if b == nil {
		return nil
	}
	if err := b.lib.enter(); err != nil {
		return err
	}
	defer b.lib.mu.Unlock()
	if b.destroyed {
		return nil
	}
	if b.busy != nil {
		return fmt.Errorf("destroy bitmap: %w", ErrBitmapInUse)
	}
	b.destroy()
	return nil
}

func (b *Bitmap) destroy() {
	if b.destroyed {
		return
	}
	if b.busy != nil {
		b.busy.endRender()
	}
	b.lib.eng.DestroyBitmap(b.eh)
	b.lib.reg.remove(b.handle)
	delete(b.lib.bmps, b)
	b.destroyed = true
}

// Stride returns the number of bytes per row.
func (b *Bitmap) Stride() (int, error) {
	if err := b.use(); err != nil {
		return 0, err
	}
	defer b.lib.mu.Unlock()
	return b.lib.eng.BitmapStride(b.eh), nil
}

// Buffer returns the engine's pixel storage. The slice aliases engine memory
// and is valid until Destroy.
func (b *Bitmap) Buffer() ([]byte, error) {
	if err := b.use(); err != nil {
		return nil, err
	}
	defer b.lib.mu.Unlock()
	return b.lib.eng.BitmapBuffer(b.eh), nil
}

// FillRect paints a device-space rectangle with c.
func (b *Bitmap) FillRect(left, top, width, height int, c engine.Color) error {
	if err := b.use(); err != nil {
		return err
	}
	defer b.lib.mu.Unlock()
	if b.busy != nil {
		return fmt.Errorf("fill rect: %w", ErrBitmapInUse)
	}
	b.lib.eng.FillRect(b.eh, left, top, width, height, c.ARGB())
	return nil
}

// Image copies the pixels into an image.NRGBA. Bitmaps without alpha come
// back opaque.
func (b *Bitmap) Image() (*image.NRGBA, error) {
	if err := b.use(); err != nil {
		return nil, err
	}
	defer b.lib.mu.Unlock()

	buf := b.lib.eng.BitmapBuffer(b.eh)
	stride := b.lib.eng.BitmapStride(b.eh)
	if stride < b.width*4 || len(buf) < stride*(b.height-1)+b.width*4 {
		return nil, fmt.Errorf("image: buffer %d bytes, stride %d: %w", len(buf), stride, ErrUnknown)
	}

	img := image.NewNRGBA(image.Rect(0, 0, b.width, b.height))
	for y := range b.height {
		src := buf[y*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := range b.width {
			s, d := src[x*4:x*4+4], dst[x*4:x*4+4]
			d[0], d[1], d[2] = s[2], s[1], s[0]
			if b.alpha {
				d[3] = s[3]
			} else {
				d[3] = 0xFF
			}
		}
	}
	return img, nil
}
