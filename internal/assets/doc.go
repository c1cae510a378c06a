// Package assets provides the CSS themes and the page template for the
// rendered preview.
//
// # Loader Architecture
//
// The package implements a layered loading system:
//
//	AssetLoader (interface)
//	    │
//	    ├── EmbeddedLoader    - loads from go:embed filesystem (built-in themes)
//	    ├── FilesystemLoader  - loads from a custom directory on disk
//	    └── AssetResolver     - combines both with custom-first fallback
//
// EmbeddedLoader provides the built-in themes (github, dark) and the page
// template embedded at compile time. The themes style both the markdown
// body and the class-based syntax highlighting emitted by the renderer.
//
// FilesystemLoader lets users supply their own themes and page template
// from a directory, with path traversal protection and symlink resolution.
//
// AssetResolver is the loader the preview uses. It tries the custom
// FilesystemLoader first, falling back to EmbeddedLoader when the asset is
// not found. This enables overriding one theme while keeping the rest.
//
// # Directory Structure
//
//	{basePath}/
//	├── styles/
//	│   └── {name}.css       # themes (e.g. dark.css)
//	└── templates/
//	    └── {name}.html      # page shells (e.g. page.html)
//
// # Security
//
// Asset names are validated to prevent path traversal attacks.
// FilesystemLoader resolves symlinks and verifies paths stay within basePath.
package assets
