package mdpreview

import (
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// rewriteRelativePaths resolves relative asset references in a rendered
// fragment against the source document's directory, turning them into
// file:// URLs. The preview page often lives in a different directory than
// the document, so relative src/href values would otherwise dangle.
//
// Rewritten: img[src], a[href], video[src|poster], audio[src], source[src].
// Left alone: URLs, data: URIs, anchors, absolute paths, and srcset
// (descriptor lists need their own parser).
func rewriteRelativePaths(fragment, baseDir string) (string, error) {
	if baseDir == "" {
		return fragment, nil
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}

	// Parse in body context so the fragment round-trips without gaining an
	// <html><body> wrapper.
	context := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	for _, n := range nodes {
		rewriteNode(n, absBase)
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// rewriteNode walks the fragment tree and rewrites resolvable attributes.
func rewriteNode(n *html.Node, baseDir string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "img":
			rewriteAttr(n, "src", baseDir)
		case "a":
			rewriteAttr(n, "href", baseDir)
		case "video":
			rewriteAttr(n, "src", baseDir)
			rewriteAttr(n, "poster", baseDir)
		case "audio", "source":
			rewriteAttr(n, "src", baseDir)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteNode(c, baseDir)
	}
}

// rewriteAttr replaces the attribute with a file:// URL when it names a
// relative path inside baseDir. Paths escaping baseDir are left as written.
func rewriteAttr(n *html.Node, name, baseDir string) {
	for i, attr := range n.Attr {
		if attr.Key != name || !isRelativeAssetPath(attr.Val) {
			continue
		}
		abs := filepath.Join(baseDir, attr.Val)
		if !isWithinDir(abs, baseDir) {
			continue
		}
		n.Attr[i].Val = fileURL(abs)
	}
}

// isRelativeAssetPath reports whether the value is a plain relative path
// rather than a URL, data URI, anchor, or absolute path.
func isRelativeAssetPath(path string) bool {
	if path == "" {
		return false
	}
	switch {
	case strings.HasPrefix(path, "http://"),
		strings.HasPrefix(path, "https://"),
		strings.HasPrefix(path, "file://"),
		strings.HasPrefix(path, "data:"),
		strings.HasPrefix(path, "//"),
		strings.HasPrefix(path, "#"):
		return false
	}
	return !filepath.IsAbs(path)
}

// isWithinDir reports whether abs stays inside dir after cleaning.
func isWithinDir(abs, dir string) bool {
	cleanPath := filepath.Clean(abs)
	cleanDir := filepath.Clean(dir)
	if !strings.HasSuffix(cleanDir, string(filepath.Separator)) {
		cleanDir += string(filepath.Separator)
	}
	return strings.HasPrefix(cleanPath+string(filepath.Separator), cleanDir)
}

// fileURL converts an absolute path to a file:// URL, normalizing Windows
// separators.
func fileURL(abs string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}
