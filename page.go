package mdpreview

import (
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/alnah/go-mdpreview/internal/assets"
)

// PageBuilder applies patches to an in-memory rendered view and assembles
// complete HTML pages from it. It is the reference consumer of the Patch
// contract: a full patch replaces the view, an incremental one updates the
// touched fragments, drops removed blocks, and reorders to match Order.
//
// Not safe for concurrent use; apply patches from the goroutine that
// drains Patches.
type PageBuilder struct {
	title     string
	css       string
	baseDir   string
	tmpl      *template.Template
	order     []BlockID
	fragments map[BlockID]Fragment
}

// pageData fills the page template. CSS and Body carry trusted content:
// the theme stylesheet and renderer output respectively.
type pageData struct {
	Title string
	CSS   template.CSS
	Body  template.HTML
}

// NewPageBuilder creates a PageBuilder for the given theme. An empty theme
// selects the default. assetDir optionally points at a directory of custom
// themes and page templates which take precedence over the built-in ones.
func NewPageBuilder(title, theme, assetDir string) (*PageBuilder, error) {
	resolver, err := assets.NewAssetResolver(assetDir)
	if err != nil {
		return nil, fmt.Errorf("loading assets: %w", err)
	}

	if theme == "" {
		theme = assets.DefaultThemeName
	}
	css, err := resolver.LoadStyle(theme)
	if err != nil {
		if errors.Is(err, assets.ErrStyleNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
		}
		return nil, fmt.Errorf("loading theme: %w", err)
	}

	src, err := resolver.LoadTemplate(assets.DefaultTemplateName)
	if err != nil {
		return nil, fmt.Errorf("loading page template: %w", err)
	}
	tmpl, err := template.New(assets.DefaultTemplateName).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing page template: %w", err)
	}

	return &PageBuilder{
		title:     title,
		css:       css,
		tmpl:      tmpl,
		fragments: make(map[BlockID]Fragment),
	}, nil
}

// Themes lists the built-in theme names.
func Themes() []string {
	return assets.Themes()
}

// SetBaseDir makes Apply resolve relative image and link paths in incoming
// fragments against dir. Set it before the first patch when the output page
// does not live next to the source document; fragments applied earlier keep
// their paths as rendered.
func (b *PageBuilder) SetBaseDir(dir string) {
	b.baseDir = dir
}

// Apply folds one patch into the view.
func (b *PageBuilder) Apply(pt Patch) {
	if pt.Full {
		clear(b.fragments)
	}
	for _, id := range pt.Removed {
		delete(b.fragments, id)
	}
	for _, fr := range pt.Fragments {
		if b.baseDir != "" {
			// Best effort: a fragment the rewriter cannot parse is kept as
			// rendered.
			if rewritten, err := rewriteRelativePaths(fr.HTML, b.baseDir); err == nil {
				fr.HTML = rewritten
			}
		}
		b.fragments[fr.ID] = fr
	}
	b.order = pt.Order
}

// Len returns the number of blocks currently in the view.
func (b *PageBuilder) Len() int {
	return len(b.order)
}

// HTML assembles the complete page for the current view.
func (b *PageBuilder) HTML() (string, error) {
	var body strings.Builder
	for _, id := range b.order {
		fr, ok := b.fragments[id]
		if !ok {
			// A block whose fragment never arrived renders as nothing
			// rather than failing the whole page.
			continue
		}
		body.WriteString(fr.HTML)
		if !strings.HasSuffix(fr.HTML, "\n") {
			body.WriteByte('\n')
		}
	}

	var out strings.Builder
	err := b.tmpl.Execute(&out, pageData{
		Title: b.title,
		CSS:   template.CSS(b.css),
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}
	return out.String(), nil
}
