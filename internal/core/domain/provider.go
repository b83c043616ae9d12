package domain

import "fmt"

// ProviderType identifies a publishing provider.
// The set is closed: connections and publishes are only accepted for
// providers listed here, even if no adapter is registered for them yet.
type ProviderType string

const (
	ProviderTypeWix       ProviderType = "wix"
	ProviderTypeWordPress ProviderType = "wordpress"
	ProviderTypeGSC       ProviderType = "gsc"
	ProviderTypeBing      ProviderType = "bing"
)

// AllProviderTypes returns every provider in the closed set.
func AllProviderTypes() []ProviderType {
	return []ProviderType{
		ProviderTypeWix,
		ProviderTypeWordPress,
		ProviderTypeGSC,
		ProviderTypeBing,
	}
}

// ParseProviderType validates a raw provider key.
// Returns ErrUnsupportedProvider for anything outside the closed set.
func ParseProviderType(s string) (ProviderType, error) {
	switch ProviderType(s) {
	case ProviderTypeWix, ProviderTypeWordPress, ProviderTypeGSC, ProviderTypeBing:
		return ProviderType(s), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, s)
	}
}

// DisplayName returns a human-readable name for a provider.
func (p ProviderType) DisplayName() string {
	switch p {
	case ProviderTypeWix:
		return "Wix"
	case ProviderTypeWordPress:
		return "WordPress"
	case ProviderTypeGSC:
		return "Google Search Console"
	case ProviderTypeBing:
		return "Bing Webmaster"
	default:
		return string(p)
	}
}
