package mdpreview

import (
	"time"
)

// BlockID is a stable opaque block identifier. IDs are assigned when a block
// first appears in a split and are retained across edits as long as the
// block's content merely shifts rather than being retyped (see Differ).
type BlockID uint64

// Generation is the logical edit-generation counter. Every accepted edit
// bumps it; render jobs carry the generation they were scheduled under, and
// results from superseded generations are discarded.
type Generation uint64

// Fingerprint is the 64-bit content hash of a block's source text.
// Two blocks with equal fingerprint are assumed render-equivalent.
type Fingerprint uint64

// SourceRange is a half-open byte range [Start, End) into the document text.
type SourceRange struct {
	Start int
	End   int
}

// Len returns the range length in bytes.
func (r SourceRange) Len() int {
	return r.End - r.Start
}

// Overlaps reports whether r and o share at least one byte.
func (r SourceRange) Overlaps(o SourceRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// Block is a contiguous logical unit of source text. Blocks are values:
// created on each split pass, never mutated in place, retired when absent
// from the next split.
type Block struct {
	ID          BlockID
	Fingerprint Fingerprint
	Range       SourceRange
	Source      string
	Dirty       bool // fingerprint changed since last successful render
}

// Priority is the render priority band assigned by the ViewportTracker.
// Lower numbers render sooner.
type Priority int

// Priority bands.
const (
	PriorityVisible Priority = 0 // intersects the visible range
	PriorityNear    Priority = 1 // within one viewport height above or below
	PriorityHidden  Priority = 2 // everything else
)

// Fragment is one rendered block inside a Patch.
type Fragment struct {
	ID       BlockID
	HTML     string
	Fallback bool // HTML is escaped source text after a render failure
}

// Patch describes what changed in one render cycle. The consumer applies it
// as a diff against its current rendered state: Fragments carries only the
// blocks whose rendered output changed, Order carries the full document
// order so fragments can be placed, and Removed lists retired blocks.
// Full is set on the first patch for a document, the only time the consumer
// renders from scratch.
type Patch struct {
	Generation Generation
	Full       bool
	Order      []BlockID
	Fragments  []Fragment
	Removed    []BlockID
}

// Event is a status notification emitted by the pipeline. Events are
// observability, not correctness: a consumer that ignores them loses
// nothing but visibility. Concrete types: RenderStarted, RenderCompleted,
// BlockRenderFailed, FileLoaded, FileSaved, IOError.
type Event interface {
	event()
}

// RenderStarted signals that a render cycle began dispatching.
type RenderStarted struct {
	Generation Generation
}

// RenderCompleted signals that every job of a generation reached a terminal
// state and the patch (if still current) was emitted.
type RenderCompleted struct {
	Generation Generation
	Duration   time.Duration
}

// BlockRenderFailed signals that one block's render call failed and its
// fragment was replaced with escaped source text. Sibling blocks are
// unaffected.
type BlockRenderFailed struct {
	ID     BlockID
	Reason error
}

// FileLoaded signals that an asynchronous read completed and its content
// entered the pipeline as an edit.
type FileLoaded struct {
	Path string
}

// FileSaved signals that an asynchronous write completed.
type FileSaved struct {
	Path string
}

// IOError signals a failed gateway operation. The pipeline keeps operating
// on in-memory text regardless.
type IOError struct {
	Op   string // "read", "write", "watch"
	Path string
	Err  error
}

func (RenderStarted) event()     {}
func (RenderCompleted) event()   {}
func (BlockRenderFailed) event() {}
func (FileLoaded) event()        {}
func (FileSaved) event()         {}
func (IOError) event()           {}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Bytes     int64
	Entries   int
}

// HitRate returns the hit ratio in [0, 1], or 0 before any lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
