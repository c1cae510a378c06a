package mdpreview

import (
	"testing"
)

func sourcesOf(blocks []Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Source
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "empty document",
			input: "",
			want:  nil,
		},
		{
			name:  "whitespace only",
			input: "  \n\n\t\n",
			want:  nil,
		},
		{
			name:  "single paragraph",
			input: "hello world",
			want:  []string{"hello world"},
		},
		{
			name:  "two paragraphs",
			input: "one\n\ntwo",
			want:  []string{"one", "two"},
		},
		{
			name:  "multi-line paragraph stays whole",
			input: "line one\nline two\n\nnext",
			want:  []string{"line one\nline two", "next"},
		},
		{
			name:  "heading stands alone",
			input: "# Title\n\nbody",
			want:  []string{"# Title", "body"},
		},
		{
			name:  "heading interrupts paragraph",
			input: "body\n# Title",
			want:  []string{"body", "# Title"},
		},
		{
			name:  "consecutive headings",
			input: "# One\n## Two",
			want:  []string{"# One", "## Two"},
		},
		{
			name:  "fence keeps blank lines",
			input: "```go\na := 1\n\nb := 2\n```",
			want:  []string{"```go\na := 1\n\nb := 2\n```"},
		},
		{
			name:  "fence content is not a boundary",
			input: "```\n# not a heading\n\n- not a list\n```",
			want:  []string{"```\n# not a heading\n\n- not a list\n```"},
		},
		{
			name:  "unterminated fence runs to end of document",
			input: "para\n\n```\ncode\n\nmore",
			want:  []string{"para", "```\ncode\n\nmore"},
		},
		{
			name:  "tilde fence",
			input: "~~~\nx\n~~~\n\nafter",
			want:  []string{"~~~\nx\n~~~", "after"},
		},
		{
			name:  "fence interrupts paragraph",
			input: "para\n```\ncode\n```",
			want:  []string{"para", "```\ncode\n```"},
		},
		{
			name:  "list items separated by blanks stay together",
			input: "- a\n\n- b\n\npara",
			want:  []string{"- a\n\n- b", "para"},
		},
		{
			name:  "ordered list",
			input: "1. a\n2. b",
			want:  []string{"1. a\n2. b"},
		},
		{
			name:  "list with indented continuation",
			input: "- a\n\n  cont\n\npara",
			want:  []string{"- a\n\n  cont", "para"},
		},
		{
			name:  "thematic break stands alone",
			input: "one\n\n---\n\ntwo",
			want:  []string{"one", "---", "two"},
		},
		{
			name:  "setext underline stays with its paragraph",
			input: "Title\n---\n\nbody",
			want:  []string{"Title\n---", "body"},
		},
		{
			name:  "table stays whole",
			input: "| a | b |\n|---|---|\n| 1 | 2 |",
			want:  []string{"| a | b |\n|---|---|\n| 1 | 2 |"},
		},
		{
			name:  "blockquote grouped by blank lines",
			input: "> quoted\n> more\n\nafter",
			want:  []string{"> quoted\n> more", "after"},
		},
		{
			name:  "leading and trailing blanks dropped",
			input: "\n\npara\n\n",
			want:  []string{"para"},
		},
		{
			name:  "CRLF normalized before splitting",
			input: "one\r\n\r\ntwo",
			want:  []string{"one", "two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sourcesOf(MarkdownSplitter{}.Split(tt.input))
			if len(got) != len(tt.want) {
				t.Fatalf("Split() = %d blocks %q, want %d %q", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Split() block %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitRangesSliceNormalizedText(t *testing.T) {
	input := "# Title\r\n\r\nfirst para\r\nsecond line\r\n\r\n```\ncode\n```\n\nlast"
	normalized := NormalizeNewlines(input)

	blocks := MarkdownSplitter{}.Split(input)
	if len(blocks) == 0 {
		t.Fatal("Split() returned no blocks")
	}

	for i, b := range blocks {
		if b.Range.Start < 0 || b.Range.End > len(normalized) || b.Range.Start >= b.Range.End {
			t.Fatalf("block %d has invalid range %+v for text length %d", i, b.Range, len(normalized))
		}
		if got := normalized[b.Range.Start:b.Range.End]; got != b.Source {
			t.Errorf("block %d range slices %q, Source is %q", i, got, b.Source)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	input := "# T\n\npara one\n\n- a\n- b\n\n```\nx\n```\n"

	first := MarkdownSplitter{}.Split(input)
	second := MarkdownSplitter{}.Split(input)

	if len(first) != len(second) {
		t.Fatalf("block counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Fingerprint != second[i].Fingerprint || first[i].Range != second[i].Range {
			t.Errorf("block %d differs between passes: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSplitFingerprints(t *testing.T) {
	blocks := MarkdownSplitter{}.Split("same\n\nsame\n\ndifferent")
	if len(blocks) != 3 {
		t.Fatalf("Split() = %d blocks, want 3", len(blocks))
	}
	if blocks[0].Fingerprint != blocks[1].Fingerprint {
		t.Error("identical sources should share a fingerprint")
	}
	if blocks[0].Fingerprint == blocks[2].Fingerprint {
		t.Error("distinct sources should not share a fingerprint")
	}
	if blocks[0].Range == blocks[1].Range {
		t.Error("identical sources at different positions should have distinct ranges")
	}
}
