package mdpreview

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// Highlight placeholders use Private Use Area runes so ==text== survives
// goldmark without WithUnsafe. convertMarkTags swaps them for <mark> tags
// after conversion, letting markdown inside the span render normally.
const (
	markStart = "" // U+E000
	markEnd   = "" // U+E001
)

var highlightPattern = regexp.MustCompile(`==(.*?)==`)

// convertHighlights rewrites ==text== spans to placeholder markers. Fenced
// code blocks are left alone so literal == sequences render verbatim.
func convertHighlights(source string) string {
	if fenceDelim.MatchString(source) {
		return source
	}
	return highlightPattern.ReplaceAllString(source, markStart+"$1"+markEnd)
}

// convertMarkTags completes the highlight conversion on rendered HTML.
func convertMarkTags(html string) string {
	html = strings.ReplaceAll(html, markStart, "<mark>")
	return strings.ReplaceAll(html, markEnd, "</mark>")
}

// BlockRenderer turns one block's source text into an HTML fragment.
// Implementations must be deterministic for a given source (the cache
// assumes it) and safe for concurrent use by all workers. Errors are
// reported as values; a failing block gets a fallback fragment and never
// aborts its siblings.
type BlockRenderer interface {
	RenderBlock(ctx context.Context, source string) (string, error)
}

// GoldmarkRenderer renders markdown blocks using goldmark (pure Go).
// Beyond CommonMark and GFM it converts ==text== spans to <mark> elements.
type GoldmarkRenderer struct {
	md goldmark.Markdown
}

// NewGoldmarkRenderer creates a GoldmarkRenderer with GFM extensions and
// class-based syntax highlighting (styling comes from a theme stylesheet,
// see internal/assets).
func NewGoldmarkRenderer() *GoldmarkRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,      // Tables, strikethrough, autolinks, task lists
			extension.Footnote, // [^1] footnotes
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true), // CSS classes instead of inline styles
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(), // stable anchors for headings
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
			goldmarkhtml.WithXHTML(),
			// WithUnsafe() intentionally not used: block sources come
			// straight from the editor.
		),
	)
	return &GoldmarkRenderer{md: md}
}

// RenderBlock converts one block's markdown to an HTML fragment.
// Supports context cancellation via goroutine + select since goldmark has
// no native context support; a panic inside goldmark is recovered into
// ErrRenderFailed.
func (g *GoldmarkRenderer) RenderBlock(ctx context.Context, source string) (string, error) {
	// Fast path: check context before starting
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}

	done := make(chan result, 1)
	source = convertHighlights(source)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: panic: %v", ErrRenderFailed, r)}
			}
		}()
		var buf bytes.Buffer
		if err := g.md.Convert([]byte(source), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrRenderFailed, err)}
			return
		}
		done <- result{html: convertMarkTags(buf.String())}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}

// fallbackHTML renders a failed block as its escaped source so the
// document view never loses content.
func fallbackHTML(source string) string {
	return `<pre class="mdpreview-fallback">` + html.EscapeString(source) + `</pre>`
}
