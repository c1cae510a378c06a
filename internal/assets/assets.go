package assets

// DefaultThemeName is the built-in theme applied when none is configured.
const DefaultThemeName = "github"

// DefaultTemplateName is the built-in page template.
const DefaultTemplateName = "page"

// defaultLoader is the package-level embedded loader.
var defaultLoader = NewEmbeddedLoader()

// LoadStyle loads a CSS theme by name using the default embedded loader.
// The name should not include the .css extension or path components.
// Returns ErrStyleNotFound if the theme does not exist.
// Returns ErrInvalidAssetName if the name contains path separators or traversal.
func LoadStyle(name string) (string, error) {
	return defaultLoader.LoadStyle(name)
}

// LoadTemplate loads a page template by name using the default embedded loader.
// The name should not include the .html extension or path components.
// Returns ErrTemplateNotFound if the template does not exist.
// Returns ErrInvalidAssetName if the name contains path separators or traversal.
func LoadTemplate(name string) (string, error) {
	return defaultLoader.LoadTemplate(name)
}
