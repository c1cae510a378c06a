package mdpreview

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// defaultSimilarityThreshold is the minimum similarity ratio for an
	// unmatched new block to inherit an old block's identity.
	defaultSimilarityThreshold = 0.5

	// largeBlockBytes switches similarity scoring to line granularity to
	// bound diff cost on big fenced blocks.
	largeBlockBytes = 4 << 10

	// positionWindow bounds how far apart (in document positions) two
	// blocks may sit and still be considered the same block edited.
	positionWindow = 8
)

// Changes classifies one split against the previous one. Blocks holds the
// complete new sequence in document order with IDs assigned; the other
// slices partition it. Deleted lists the IDs of old blocks absent from the
// new sequence.
type Changes struct {
	Blocks    []Block
	Unchanged []Block
	Dirty     []Block
	Inserted  []Block
	Deleted   []BlockID
}

// NeedsRender returns the blocks requiring a render pass (dirty and
// inserted), in document order.
func (c Changes) NeedsRender() []Block {
	var out []Block
	for _, b := range c.Blocks {
		if b.Dirty {
			out = append(out, b)
		}
	}
	return out
}

// Differ aligns a new block sequence against the previous one, carrying
// block IDs across edits so the consumer view and the cache see stable
// identities.
type Differ interface {
	Diff(prev, next []Block) Changes
}

// BlockDiffer is the default Differ. Matching runs in two passes: exact
// fingerprint equality first (ties broken by closest source offset, which
// keeps IDs stable on reorder-free edits), then content similarity for
// blocks edited in place. Whatever remains is an insertion or a deletion.
//
// Not safe for concurrent use; the pipeline goroutine owns it.
type BlockDiffer struct {
	// SimilarityThreshold overrides defaultSimilarityThreshold when > 0.
	SimilarityThreshold float64

	dmp    *diffmatchpatch.DiffMatchPatch
	lastID BlockID
}

// NewBlockDiffer creates a BlockDiffer with the default similarity
// threshold.
func NewBlockDiffer() *BlockDiffer {
	return &BlockDiffer{dmp: diffmatchpatch.New()}
}

// Diff classifies next against prev. Matched blocks keep their old ID and
// are unchanged (equal fingerprint) or dirty (edited in place); unmatched
// new blocks get fresh IDs and are both inserted and dirty. Diffing
// identical sequences yields zero dirty blocks.
func (d *BlockDiffer) Diff(prev, next []Block) Changes {
	used := make([]bool, len(prev))
	matched := make([]int, len(next))
	for i := range matched {
		matched[i] = -1
	}

	// Pass 1: exact fingerprint matches, closest source offset wins.
	byFingerprint := make(map[Fingerprint][]int, len(prev))
	for j, b := range prev {
		byFingerprint[b.Fingerprint] = append(byFingerprint[b.Fingerprint], j)
	}
	for i, nb := range next {
		best, bestDist := -1, 0
		for _, j := range byFingerprint[nb.Fingerprint] {
			if used[j] {
				continue
			}
			dist := absInt(prev[j].Range.Start - nb.Range.Start)
			if best < 0 || dist < bestDist {
				best, bestDist = j, dist
			}
		}
		if best >= 0 {
			used[best] = true
			matched[i] = best
		}
	}

	// Pass 2: similarity alignment for in-place edits, scanned inside a
	// positional window so cost stays near-linear.
	threshold := d.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}
	for i, nb := range next {
		if matched[i] >= 0 {
			continue
		}
		lo, hi := i-positionWindow, i+positionWindow
		if lo < 0 {
			lo = 0
		}
		if hi > len(prev)-1 {
			hi = len(prev) - 1
		}
		best, bestDist := -1, 0
		bestScore := 0.0
		for j := lo; j <= hi; j++ {
			if used[j] {
				continue
			}
			score := d.similarity(prev[j].Source, nb.Source)
			if score < threshold {
				continue
			}
			dist := absInt(prev[j].Range.Start - nb.Range.Start)
			if best < 0 || score > bestScore || (score == bestScore && dist < bestDist) {
				best, bestScore, bestDist = j, score, dist
			}
		}
		if best >= 0 {
			used[best] = true
			matched[i] = best
		}
	}

	// Assemble the classification in document order.
	ch := Changes{Blocks: make([]Block, len(next))}
	for i, nb := range next {
		switch j := matched[i]; {
		case j >= 0 && prev[j].Fingerprint == nb.Fingerprint:
			nb.ID = prev[j].ID
			nb.Dirty = false
			ch.Unchanged = append(ch.Unchanged, nb)
		case j >= 0:
			nb.ID = prev[j].ID
			nb.Dirty = true
			ch.Dirty = append(ch.Dirty, nb)
		default:
			d.lastID++
			nb.ID = d.lastID
			nb.Dirty = true
			ch.Inserted = append(ch.Inserted, nb)
		}
		ch.Blocks[i] = nb
	}
	for j, b := range prev {
		if !used[j] {
			ch.Deleted = append(ch.Deleted, b.ID)
		}
	}
	return ch
}

// similarity returns a ratio in [0, 1]: 1 - levenshtein/longer. Large
// blocks are compared line-wise instead of rune-wise.
func (d *BlockDiffer) similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	var diffs []diffmatchpatch.Diff
	if len(a) > largeBlockBytes || len(b) > largeBlockBytes {
		ra, rb, lines := d.dmp.DiffLinesToRunes(a, b)
		diffs = d.dmp.DiffCharsToLines(d.dmp.DiffMainRunes(ra, rb, false), lines)
	} else {
		diffs = d.dmp.DiffMain(a, b, false)
	}

	longer := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longer {
		longer = n
	}
	return 1 - float64(d.dmp.DiffLevenshtein(diffs))/float64(longer)
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
