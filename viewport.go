package mdpreview

// ViewportTracker maps the consumer's visible source range to per-block
// render priority bands. It never triggers rendering itself; it only
// annotates jobs. Owned by the pipeline goroutine, never touched by
// workers.
type ViewportTracker struct {
	visible SourceRange
	set     bool
}

// SetViewport records the currently visible source range. A collapsed
// range behaves as a caret and is widened to one byte.
func (v *ViewportTracker) SetViewport(r SourceRange) {
	if r.End <= r.Start {
		r.End = r.Start + 1
	}
	v.visible = r
	v.set = true
}

// Priority returns the band for b: PriorityVisible when b intersects the
// visible range, PriorityNear within one viewport height above or below,
// PriorityHidden otherwise. Before any viewport is known every block is
// visible, so the first cycle renders everything eagerly.
func (v *ViewportTracker) Priority(b Block) Priority {
	if !v.set {
		return PriorityVisible
	}
	if b.Range.Overlaps(v.visible) {
		return PriorityVisible
	}
	height := v.visible.Len()
	near := SourceRange{Start: v.visible.Start - height, End: v.visible.End + height}
	if b.Range.Overlaps(near) {
		return PriorityNear
	}
	return PriorityHidden
}

// PriorityMap assigns every block exactly one band.
func (v *ViewportTracker) PriorityMap(blocks []Block) map[BlockID]Priority {
	m := make(map[BlockID]Priority, len(blocks))
	for _, b := range blocks {
		m[b.ID] = v.Priority(b)
	}
	return m
}
