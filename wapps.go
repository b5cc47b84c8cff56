// Package wapps is a multi-site content engine built with Go, Echo, and templ.
// It serves blogs with date, tag, category and author archives, standalone
// pages, RSS and Atom feeds, a sitemap, and SEO metadata resolved from the
// page and the site identity.
//
// Users provide their own templ templates via the ViewFuncs struct,
// and wapps handles the handler logic, middleware, and database operations.
package wapps

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ViewFuncs holds user-provided templ components that the framework calls
// when rendering pages.
type ViewFuncs struct {
	Home           func(v HomeView) templ.Component
	BlogIndex      func(v BlogListing) templ.Component
	Post           func(v PostView) templ.Component
	StaticPage     func(v StaticPageView) templ.Component
	AdminLogin     func(showError bool, csrfToken string) templ.Component
	AdminDashboard func(v AdminDashboardView) templ.Component
	AdminPostForm  func(v AdminPostForm) templ.Component
	AdminPageForm  func(v AdminPageForm) templ.Component
	AdminIdentity  func(v AdminIdentityForm) templ.Component
	AdminImages    func(images []Image, csrfToken string) templ.Component
	NotFound       func() templ.Component
	ServerError    func() templ.Component
}

// App is the central wapps application. It wires together the store, the
// identity cache, image renditions, handlers, middleware, and user-provided
// templates.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Store    *Store
	Identity *IdentityCache
	Images   ImageRenderer
	Views    ViewFuncs
	Log      zerolog.Logger

	customRoutes []func(*App)
	staticDir    string
}

// New creates a new App with the given configuration and view functions.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     views,
		Log:       newLogger(cfg.LogLevel),
		staticDir: "public",
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("service", "wapps").Logger()
}

// Setup opens the database, seeds the default site, and registers
// middleware and routes. Start calls it; tests call it directly.
func (a *App) Setup() error {
	if a.Config.AdminPassword == "" {
		return fmt.Errorf("wapps: AdminPassword is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("wapps: SessionSecret is required")
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("wapps: init store: %w", err)
	}
	a.Store = store

	if err := a.Store.EnsureDefaultSite(a.Config); err != nil {
		return fmt.Errorf("wapps: seed default site: %w", err)
	}

	a.Identity = NewIdentityCache(a.Store, a.Config.IdentityCacheTTL)
	if a.Images == nil {
		a.Images = NewRenditions(a.staticDir)
	}

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start initializes the application and starts the server.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	a.Log.Info().Str("addr", a.Config.Addr).Msg("listening")
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.staticDir)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)

	// Admin routes
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin, loginRateLimit())
	e.POST("/admin/logout/", handleAdminLogout)
	e.GET("/admin/post/new/", a.handleAdminNewPost)
	e.GET("/admin/post/:id/", a.handleAdminPost)
	e.POST("/admin/post/save/", a.handleAdminSavePost)
	e.DELETE("/admin/post/:id/", a.handleAdminDeletePage)
	e.GET("/admin/page/new/", a.handleAdminNewPage)
	e.GET("/admin/page/:id/", a.handleAdminPage)
	e.POST("/admin/page/save/", a.handleAdminSavePage)
	e.DELETE("/admin/page/:id/", a.handleAdminDeletePage)
	e.GET("/admin/identity/", a.handleAdminIdentity)
	e.POST("/admin/identity/", a.handleAdminSaveIdentity)
	e.GET("/admin/images/", a.handleImageList)
	e.POST("/admin/images/upload/", a.handleImageUpload)
	e.DELETE("/admin/images/:filename/", a.handleImageDelete)

	// Public pages
	e.GET("/", a.handleHome)
	e.GET("/*", a.handlePage)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

const siteContextKey = "wapps.site"

// siteFor resolves the site serving the request from its Host header. The
// result is kept on the echo context for the rest of the request.
func (a *App) siteFor(c echo.Context) (Site, error) {
	if s, ok := c.Get(siteContextKey).(Site); ok {
		return s, nil
	}
	site, err := a.Store.SiteForHost(c.Request().Host)
	if err != nil {
		return Site{}, fmt.Errorf("resolve site for %q: %w", c.Request().Host, err)
	}
	c.Set(siteContextKey, site)
	return site, nil
}

// pathSegments splits a URL path into its non-empty segments.
func pathSegments(p string) []string {
	return FilterEmpty(strings.Split(p, "/"))
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "wapps: required environment variable %s is not set\n", key)
		os.Exit(1)
	}
	return v
}
