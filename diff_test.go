package mdpreview

import (
	"testing"
)

// splitDoc is a shorthand for building block sequences in diff tests.
func splitDoc(text string) []Block {
	return MarkdownSplitter{}.Split(text)
}

func idsOf(blocks []Block) []BlockID {
	out := make([]BlockID, len(blocks))
	for i, b := range blocks {
		out[i] = b.ID
	}
	return out
}

func TestDiffFirstPassAssignsFreshIDs(t *testing.T) {
	d := NewBlockDiffer()

	ch := d.Diff(nil, splitDoc("# Title\n\npara one\n\npara two"))

	if len(ch.Blocks) != 3 {
		t.Fatalf("Blocks = %d, want 3", len(ch.Blocks))
	}
	if len(ch.Inserted) != 3 || len(ch.Unchanged) != 0 || len(ch.Dirty) != 0 || len(ch.Deleted) != 0 {
		t.Fatalf("first diff classified %d inserted, %d unchanged, %d dirty, %d deleted",
			len(ch.Inserted), len(ch.Unchanged), len(ch.Dirty), len(ch.Deleted))
	}
	seen := map[BlockID]bool{}
	for _, b := range ch.Blocks {
		if b.ID == 0 {
			t.Error("block left with zero ID")
		}
		if seen[b.ID] {
			t.Errorf("duplicate ID %d", b.ID)
		}
		seen[b.ID] = true
		if !b.Dirty {
			t.Errorf("inserted block %d not marked dirty", b.ID)
		}
	}
}

func TestDiffIdempotence(t *testing.T) {
	d := NewBlockDiffer()
	doc := "# Title\n\nalpha paragraph\n\n```\ncode\n```\n\ntail"

	first := d.Diff(nil, splitDoc(doc))
	second := d.Diff(first.Blocks, splitDoc(doc))

	if len(second.Dirty) != 0 || len(second.Inserted) != 0 || len(second.Deleted) != 0 {
		t.Fatalf("re-diff of identical text: %d dirty, %d inserted, %d deleted; want all zero",
			len(second.Dirty), len(second.Inserted), len(second.Deleted))
	}
	if len(second.Unchanged) != len(first.Blocks) {
		t.Fatalf("Unchanged = %d, want %d", len(second.Unchanged), len(first.Blocks))
	}
	for i := range second.Blocks {
		if second.Blocks[i].ID != first.Blocks[i].ID {
			t.Errorf("block %d changed ID: %d -> %d", i, first.Blocks[i].ID, second.Blocks[i].ID)
		}
	}
}

func TestDiffEditOneBlock(t *testing.T) {
	d := NewBlockDiffer()

	prev := d.Diff(nil, splitDoc("alpha paragraph\n\nbeta paragraph\n\ngamma paragraph"))
	next := d.Diff(prev.Blocks, splitDoc("alpha paragraph\n\nbeta paragraph edited\n\ngamma paragraph"))

	if len(next.Unchanged) != 2 || len(next.Dirty) != 1 || len(next.Inserted) != 0 || len(next.Deleted) != 0 {
		t.Fatalf("got %d unchanged, %d dirty, %d inserted, %d deleted; want 2/1/0/0",
			len(next.Unchanged), len(next.Dirty), len(next.Inserted), len(next.Deleted))
	}
	if next.Dirty[0].ID != prev.Blocks[1].ID {
		t.Errorf("edited block lost its ID: %d -> %d", prev.Blocks[1].ID, next.Dirty[0].ID)
	}
	if next.Blocks[0].ID != prev.Blocks[0].ID || next.Blocks[2].ID != prev.Blocks[2].ID {
		t.Error("unchanged neighbors lost their IDs")
	}

	need := next.NeedsRender()
	if len(need) != 1 || need[0].ID != prev.Blocks[1].ID {
		t.Errorf("NeedsRender = %v, want just the edited block", idsOf(need))
	}
}

func TestDiffInsertKeepsNeighborIDs(t *testing.T) {
	d := NewBlockDiffer()

	prev := d.Diff(nil, splitDoc("alpha paragraph\n\nbeta paragraph"))
	next := d.Diff(prev.Blocks, splitDoc("alpha paragraph\n\nbrand new middle\n\nbeta paragraph"))

	if len(next.Unchanged) != 2 || len(next.Inserted) != 1 || len(next.Deleted) != 0 {
		t.Fatalf("got %d unchanged, %d inserted, %d deleted; want 2/1/0",
			len(next.Unchanged), len(next.Inserted), len(next.Deleted))
	}
	if next.Blocks[0].ID != prev.Blocks[0].ID || next.Blocks[2].ID != prev.Blocks[1].ID {
		t.Error("neighbors of the insertion lost their IDs")
	}
	if got := next.Blocks[1].ID; got == prev.Blocks[0].ID || got == prev.Blocks[1].ID {
		t.Errorf("inserted block reused an existing ID %d", got)
	}
}

func TestDiffDelete(t *testing.T) {
	d := NewBlockDiffer()

	prev := d.Diff(nil, splitDoc("alpha paragraph\n\nbeta paragraph\n\ngamma paragraph"))
	next := d.Diff(prev.Blocks, splitDoc("alpha paragraph\n\ngamma paragraph"))

	if len(next.Deleted) != 1 || next.Deleted[0] != prev.Blocks[1].ID {
		t.Fatalf("Deleted = %v, want [%d]", next.Deleted, prev.Blocks[1].ID)
	}
	if len(next.Unchanged) != 2 || len(next.Dirty) != 0 || len(next.Inserted) != 0 {
		t.Fatalf("got %d unchanged, %d dirty, %d inserted; want 2/0/0",
			len(next.Unchanged), len(next.Dirty), len(next.Inserted))
	}
}

func TestDiffReorderFollowsContent(t *testing.T) {
	d := NewBlockDiffer()

	prev := d.Diff(nil, splitDoc("one one one\n\ntwo two two"))
	next := d.Diff(prev.Blocks, splitDoc("two two two\n\none one one"))

	if len(next.Unchanged) != 2 || len(next.Dirty) != 0 {
		t.Fatalf("reorder classified %d unchanged, %d dirty; want 2/0", len(next.Unchanged), len(next.Dirty))
	}
	if next.Blocks[0].ID != prev.Blocks[1].ID || next.Blocks[1].ID != prev.Blocks[0].ID {
		t.Error("IDs did not follow content across the swap")
	}
}

func TestDiffDuplicateContentPrefersClosestOffset(t *testing.T) {
	d := NewBlockDiffer()

	prev := d.Diff(nil, splitDoc("same text\n\nsame text\n\ntail paragraph"))
	next := d.Diff(prev.Blocks, splitDoc("same text\n\nsame text\n\ntail paragraph edited"))

	if next.Blocks[0].ID != prev.Blocks[0].ID {
		t.Errorf("first duplicate matched far copy: %d", next.Blocks[0].ID)
	}
	if next.Blocks[1].ID != prev.Blocks[1].ID {
		t.Errorf("second duplicate matched far copy: %d", next.Blocks[1].ID)
	}
}

func TestDiffRetypedBlockGetsFreshID(t *testing.T) {
	d := NewBlockDiffer()

	prev := d.Diff(nil, splitDoc("alpha paragraph\n\ncompletely original content here"))
	next := d.Diff(prev.Blocks, splitDoc("alpha paragraph\n\nzzzz qqqq wwww xxxx yyyy"))

	if len(next.Inserted) != 1 || len(next.Deleted) != 1 {
		t.Fatalf("retype classified %d inserted, %d deleted; want 1/1", len(next.Inserted), len(next.Deleted))
	}
	if next.Inserted[0].ID == prev.Blocks[1].ID {
		t.Error("retyped block kept the old ID despite low similarity")
	}
}

func TestDiffEmptyNext(t *testing.T) {
	d := NewBlockDiffer()

	prev := d.Diff(nil, splitDoc("alpha\n\nbeta"))
	next := d.Diff(prev.Blocks, nil)

	if len(next.Blocks) != 0 {
		t.Fatalf("Blocks = %d, want 0", len(next.Blocks))
	}
	if len(next.Deleted) != 2 {
		t.Fatalf("Deleted = %v, want both IDs", next.Deleted)
	}
}

func TestSimilarity(t *testing.T) {
	d := NewBlockDiffer()

	tests := []struct {
		name    string
		a, b    string
		atLeast float64
		below   float64
	}{
		{name: "identical", a: "abc", b: "abc", atLeast: 1},
		{name: "small edit", a: "beta paragraph", b: "beta paragraph edited", atLeast: 0.6},
		{name: "retype", a: "completely original content here", b: "zzzz qqqq wwww xxxx yyyy", below: 0.5},
		{name: "empty versus text", a: "", b: "abc", below: 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.similarity(tt.a, tt.b)
			if got < tt.atLeast {
				t.Errorf("similarity(%q, %q) = %.3f, want >= %.3f", tt.a, tt.b, got, tt.atLeast)
			}
			if tt.below > 0 && got >= tt.below {
				t.Errorf("similarity(%q, %q) = %.3f, want < %.3f", tt.a, tt.b, got, tt.below)
			}
		})
	}
}
