package wapps

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// HomeView is the view of a site's root page.
type HomeView struct {
	Meta   *Metadata
	Blogs  []Blog
	Pages  []StaticPage
	JsonLD string
}

// StaticPageView is the view of a standalone page.
type StaticPageView struct {
	Page    StaticPage
	Meta    *Metadata
	Partial bool
}

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

func isHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}

func (a *App) handleHome(c echo.Context) error {
	site, err := a.siteFor(c)
	if err != nil {
		return err
	}
	nav, err := a.BlogMeta(c)
	if err != nil {
		return err
	}
	pages, err := a.Store.ListStaticPages(site.ID, true)
	if err != nil {
		return err
	}
	return Render(c, a.Views.Home(HomeView{
		Meta:   nav.Meta,
		Blogs:  nav.Blogs,
		Pages:  pages,
		JsonLD: WebsiteJsonLD(site, nav.Meta),
	}))
}

// handlePage routes a content path: the first segment names a blog or a
// static page of the request's site.
func (a *App) handlePage(c echo.Context) error {
	site, err := a.siteFor(c)
	if err != nil {
		return err
	}
	segs := pathSegments(c.Request().URL.Path)
	if len(segs) == 0 {
		return a.handleHome(c)
	}

	blog, err := a.Store.GetBlogBySlug(site.ID, segs[0])
	switch {
	case err == nil:
		return a.serveBlog(c, site, blog, segs[1:])
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("blog %q: %w", segs[0], err)
	}

	if len(segs) != 1 {
		return echo.ErrNotFound
	}
	page, err := a.Store.GetStaticPage(site.ID, segs[0])
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.ErrNotFound
		}
		return fmt.Errorf("page %q: %w", segs[0], err)
	}
	meta, err := a.metaFor(c, site, page)
	if err != nil {
		return err
	}
	return Render(c, a.Views.StaticPage(StaticPageView{Page: page, Meta: meta, Partial: isHTMX(c)}))
}

func (a *App) handleRobots(c echo.Context) error {
	site, err := a.siteFor(c)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Disallow: /admin/\n")
	b.WriteString("\nSitemap: " + absoluteURL(site.RootURL(), "/sitemap.xml") + "\n")
	return c.String(http.StatusOK, b.String())
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.Log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("server error")
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
