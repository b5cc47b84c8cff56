package wapps

import (
	"time"

	"github.com/rs/zerolog"
)

// SiteConfig holds all configuration for a wapps site.
type SiteConfig struct {
	Name        string // Fallback site title when identity settings have none (default "Site")
	URL         string // Canonical URL of the default site (default "http://localhost:3000")
	Description string // Seed description for the default site identity

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/wapps.db")

	AdminPassword string // Required: admin login password
	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	LogLevel string // zerolog level name (default "info")

	IdentityCacheTTL time.Duration // Identity settings cache TTL (default 5min)
	PageSize         int           // Posts per blog listing page (default 10)
	FeedSize         int           // Items per feed (default 20)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Site"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/wapps.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.IdentityCacheTTL == 0 {
		c.IdentityCacheTTL = 5 * time.Minute
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.FeedSize <= 0 {
		c.FeedSize = DefaultFeedSize
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets and
// uploaded images (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithLogger replaces the application logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) {
		a.Log = l
	}
}
