// Package mdpreview renders live HTML previews of a markdown document as
// it is edited, re-rendering only the blocks that changed.
//
// # Quick Start
//
// Create a pipeline, feed it edits, and consume patches until done:
//
//	p, err := mdpreview.NewPipeline()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	p.Edit("# Hello\n\nWorld", mdpreview.SourceRange{})
//	patch := <-p.Patches()
//	for _, frag := range patch.Fragments {
//	    fmt.Println(frag.HTML)
//	}
//
// The first patch after startup carries Full=true and every fragment of the
// document. Later patches carry only the fragments whose source changed,
// plus the full block order so consumers can splice them into place.
//
// # Pipeline
//
// Each edit flows through these stages:
//
//  1. Block splitting (blank-line boundaries, fence and list aware)
//  2. Diffing against the previous block list (stable block identities)
//  3. Adaptive debouncing (typing cadence and system load set the delay)
//  4. Parallel block rendering via Goldmark, viewport bands first
//  5. Patch assembly (one patch per render cycle, in document order)
//
// Rendered fragments are cached by content hash, so unchanged blocks cost a
// lookup rather than a render. A superseded cycle (the user typed again
// before it finished) is abandoned without emitting a patch; the cache still
// keeps whatever it managed to render.
//
// # Configuration
//
// Use functional options to customize the pipeline:
//
//	p, err := mdpreview.NewPipeline(
//	    mdpreview.WithWorkers(4),
//	    mdpreview.WithCacheCapacity(64<<20),
//	    mdpreview.WithDelayBounds(100*time.Millisecond, 2*time.Second),
//	    mdpreview.WithLogger(logger),
//	)
//
// # Files
//
// OpenFile loads a document and watches it for external changes, so edits
// made by other programs flow through the same patch stream. SaveTo writes
// the current text atomically; the re-read triggered by our own save changes
// nothing and produces no patch:
//
//	p.OpenFile("notes.md")
//	p.SaveTo("") // save back to notes.md
//
// # Assembling Pages
//
// PageBuilder folds the patch stream into a complete HTML document using a
// built-in theme, for consumers that want a whole page rather than
// fragments:
//
//	builder, err := mdpreview.NewPageBuilder("Notes", "github", "")
//	for patch := range p.Patches() {
//	    builder.Apply(patch)
//	    page, _ := builder.HTML()
//	    os.WriteFile("preview.html", []byte(page), 0644)
//	}
//
// Custom themes live in an asset directory with the same layout as the
// embedded defaults:
//
//	assets/
//	├── styles/
//	│   └── custom.css
//	└── templates/
//	    └── page.html
//
// # Observability
//
// The pipeline keeps Prometheus instruments for cycles, renders, cache
// traffic, and queue depth. With no option given they live on a private
// registry exposed via Gatherer; pass WithMetrics to register them on your
// own registry instead.
package mdpreview
