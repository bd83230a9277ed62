package jshost

// CachedRects reports how many text pages hold rectangles from
// PDFium_CountRects.
func (h *Host) CachedRects() int { return len(h.rects) }
