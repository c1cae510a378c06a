package assets

// AssetLoader defines the contract for loading CSS themes and page
// templates. Implementations may load from embedded assets or a directory.
type AssetLoader interface {
	// LoadStyle loads a CSS theme by name (without .css extension).
	// Returns ErrStyleNotFound if the theme doesn't exist.
	// Returns ErrInvalidAssetName if the name contains invalid characters.
	LoadStyle(name string) (string, error)

	// LoadTemplate loads a page template by name (without .html extension).
	// Returns ErrTemplateNotFound if the template doesn't exist.
	// Returns ErrInvalidAssetName if the name contains invalid characters.
	LoadTemplate(name string) (string, error)
}
