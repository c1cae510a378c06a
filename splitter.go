package mdpreview

import (
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Precompiled patterns for block boundary detection.
var (
	// Line ending normalization
	crlfOrCR = regexp.MustCompile(`\r\n?`)

	// Fenced code block delimiter (backticks or tildes)
	fenceDelim = regexp.MustCompile("^(```|~~~)")

	// ATX heading
	atxHeading = regexp.MustCompile(`^#{1,6}\s`)

	// Thematic break (---, ***, ___)
	thematicBreakLine = regexp.MustCompile(`^ {0,3}(-{3,}|\*{3,}|_{3,})[ \t]*$`)

	// List item markers (unordered and ordered)
	bulletListItem  = regexp.MustCompile(`^ {0,3}[-*+]\s`)
	orderedListItem = regexp.MustCompile(`^ {0,3}[0-9]+[.)]\s`)

	// Indented list continuation
	listContinuation = regexp.MustCompile(`^( {2,}|\t)`)
)

// Splitter cuts document text into an ordered sequence of top-level blocks.
// Implementations must be pure and deterministic: identical text always
// yields an identical block list. Blocks carry fingerprints and source
// ranges; IDs are left zero for the Differ to assign.
type Splitter interface {
	Split(text string) []Block
}

// MarkdownSplitter splits on CommonMark-shaped structural boundaries:
// blank lines separate blocks, fenced code stays whole, ATX headings and
// thematic breaks stand alone, and blank lines inside a list do not end it.
// Malformed input never fails: an unterminated fence extends to the end of
// the document.
type MarkdownSplitter struct{}

// Split returns the ordered block sequence for text. Line endings are
// normalized to LF first; source ranges are byte offsets into the
// normalized text, which is what Block.Source is sliced from.
func (MarkdownSplitter) Split(text string) []Block {
	text = NormalizeNewlines(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	offsets := make([]int, len(lines))
	off := 0
	for i, line := range lines {
		offsets[i] = off
		off += len(line) + 1
	}

	var blocks []Block
	start, end := -1, -1 // current block's line span, inclusive; -1 = none
	inFence := false
	inList := false

	flush := func() {
		if start < 0 {
			return
		}
		s := offsets[start]
		e := offsets[end] + len(lines[end])
		src := text[s:e]
		blocks = append(blocks, Block{
			Fingerprint: fingerprintOf(src),
			Range:       SourceRange{Start: s, End: e},
			Source:      src,
		})
		start, end = -1, -1
		inList = false
	}

	for i, line := range lines {
		if inFence {
			end = i
			if fenceDelim.MatchString(line) {
				inFence = false
				flush()
			}
			continue
		}

		if isBlankLine(line) {
			// A blank inside a list does not end it when a further item or
			// indented continuation follows.
			if start >= 0 && inList && listContinues(lines, i) {
				continue
			}
			flush()
			continue
		}

		if fenceDelim.MatchString(line) {
			// A fence opening interrupts any block in progress.
			flush()
			start, end = i, i
			inFence = true
			continue
		}

		if atxHeading.MatchString(line) {
			// ATX headings interrupt paragraphs and stand alone.
			flush()
			start, end = i, i
			flush()
			continue
		}

		if start < 0 && thematicBreakLine.MatchString(line) {
			// Only at a block boundary: directly under a paragraph line a
			// dash run is a setext underline, not a break.
			start, end = i, i
			flush()
			continue
		}

		if start < 0 {
			start = i
			inList = isListItem(line)
		}
		end = i
	}

	// Trailing block or unterminated fence runs to end of document.
	flush()

	return blocks
}

// NormalizeNewlines converts \r\n and \r to \n.
func NormalizeNewlines(text string) string {
	return crlfOrCR.ReplaceAllString(text, "\n")
}

// listContinues reports whether the first non-blank line after index i is
// still part of the list block in progress.
func listContinues(lines []string, i int) bool {
	for j := i + 1; j < len(lines); j++ {
		if isBlankLine(lines[j]) {
			continue
		}
		return isListItem(lines[j]) || listContinuation.MatchString(lines[j])
	}
	return false
}

// isBlankLine returns true if the line is empty or contains only whitespace.
func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

// isListItem returns true if the line starts with a list marker (-, *, +, or 1.).
func isListItem(line string) bool {
	return bulletListItem.MatchString(line) || orderedListItem.MatchString(line)
}

// fingerprintOf hashes block source text; equal fingerprints are treated as
// render-equivalent everywhere in the pipeline.
func fingerprintOf(s string) Fingerprint {
	return Fingerprint(xxhash.Sum64String(s))
}
