package pdfbridge

import (
	"errors"
	"math"
	"testing"

	"github.com/jpl-au/pdfbridge/engine"
)

func TestTextPageText(t *testing.T) {
	_, tp := openTestText(t)

	n, err := tp.CharCount()
	if err != nil || n != 21 {
		t.Fatalf("CharCount = %d, %v; want 21", n, err)
	}
	if s, _ := tp.Text(); s != "Hello world, hello Go" {
		t.Errorf("Text = %q", s)
	}

	tests := []struct {
		start, count int
		want         string
	}{
		{0, 5, "Hello"},
		{13, -1, "hello Go"},
		{19, 100, "Go"},
		{21, 0, ""},
		{1, math.MaxInt, "ello world, hello Go"},
	}
	for _, tt := range tests {
		got, err := tp.TextRange(tt.start, tt.count)
		if err != nil || got != tt.want {
			t.Errorf("TextRange(%d, %d) = %q, %v; want %q", tt.start, tt.count, got, err, tt.want)
		}
	}
	if _, err := tp.TextRange(22, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("TextRange past end = %v, want ErrInvalidArgument", err)
	}
}

func TestTextPageChar(t *testing.T) {
	_, tp := openTestText(t)

	c, err := tp.Char(1)
	if err != nil {
		t.Fatalf("Char: %v", err)
	}
	if c.Unicode != 'e' || c.FontSize != 12 {
		t.Errorf("Char(1) = %q size %v", c.Unicode, c.FontSize)
	}
	if c.Box.Left != 82 || c.Box.Right != 92 {
		t.Errorf("Char(1) box = %+v", c.Box)
	}
	if _, err := tp.Char(99); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Char(99) = %v, want ErrInvalidArgument", err)
	}
}

func TestTextPageGeometry(t *testing.T) {
	_, tp := openTestText(t)

	// Characters 0..4 span x 72..122 on the line y 720..732.
	got, _ := tp.BoundedText(engine.Rect{Left: 70, Right: 123, Bottom: 715, Top: 735})
	if got != "Hello" {
		t.Errorf("BoundedText = %q, want Hello", got)
	}

	rects, err := tp.SelectionRects(0, 5)
	if err != nil || len(rects) != 1 {
		t.Fatalf("SelectionRects = %v, %v", rects, err)
	}
	if rects, err := tp.SelectionRects(1, math.MaxInt); err != nil || len(rects) != 1 {
		t.Errorf("SelectionRects(1, MaxInt) = %v, %v", rects, err)
	}
	if _, err := tp.SelectionRects(-1, 5); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SelectionRects(-1, 5) = %v, want ErrInvalidArgument", err)
	}
	if _, err := tp.SelectionRects(22, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SelectionRects past end = %v, want ErrInvalidArgument", err)
	}

	if i, _ := tp.CharIndexAt(85, 725, 0, 0); i != 1 {
		t.Errorf("CharIndexAt(85, 725) = %d, want 1", i)
	}
	if i, _ := tp.CharIndexAt(10, 10, 1, 1); i != -1 {
		t.Errorf("CharIndexAt off text = %d, want -1", i)
	}
}

func TestTextPageUseAfterClose(t *testing.T) {
	_, tp := openTestText(t)
	page := tp.Page()
	tp.Close()

	if _, err := tp.CharCount(); err != ErrUseAfterClose {
		t.Errorf("CharCount after Close = %v, want ErrUseAfterClose", err)
	}
	if _, err := tp.FindStart("x", 0, 0); err != ErrUseAfterClose {
		t.Errorf("FindStart after Close = %v, want ErrUseAfterClose", err)
	}

	// Closing the page closes text pages loaded after the first one too.
	tp2, _ := page.LoadText()
	page.Close()
	if _, err := tp2.Text(); err != ErrUseAfterClose {
		t.Errorf("Text after page Close = %v, want ErrUseAfterClose", err)
	}
}
