package linkauth

import (
	"fmt"
	"slices"

	"golang.org/x/crypto/bcrypt"
)

// PictureURLFunc builds a provider-derived profile picture URL from a
// provider subject id.
type PictureURLFunc func(subjectID string) string

// Config holds the knobs shared by the authenticator and the resolver.
type Config struct {
	// HashCost is the bcrypt work factor for local passwords. Defaults to
	// bcrypt.DefaultCost, which is tuned to roughly 100ms per verify on
	// commodity hardware.
	HashCost int

	// Providers is the set of enabled OAuth provider names. Empty means
	// every provider is accepted.
	Providers []string

	// PictureURL maps a provider name to its picture URL builder. A default
	// is registered for facebook.
	PictureURL map[string]PictureURLFunc
}

// EnsureDefaults fills in defaults for any unset fields and returns the
// config for chaining.
func (c *Config) EnsureDefaults() *Config {
	if c.HashCost <= 0 {
		c.HashCost = bcrypt.DefaultCost
	}
	if c.PictureURL == nil {
		c.PictureURL = make(map[string]PictureURLFunc)
	}
	if _, ok := c.PictureURL["facebook"]; !ok {
		c.PictureURL["facebook"] = func(subjectID string) string {
			return fmt.Sprintf("https://graph.facebook.com/%s/picture?type=large", subjectID)
		}
	}
	return c
}

// ProviderEnabled reports whether the provider may be used for resolution.
func (c *Config) ProviderEnabled(provider string) bool {
	if len(c.Providers) == 0 {
		return true
	}
	return slices.Contains(c.Providers, provider)
}

// pictureFor builds the provider-derived picture URL, or "" when no template
// is registered for the provider.
func (c *Config) pictureFor(provider, subjectID string) string {
	if c.PictureURL == nil {
		return ""
	}
	build, ok := c.PictureURL[provider]
	if !ok || build == nil {
		return ""
	}
	return build(subjectID)
}
