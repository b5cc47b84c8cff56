package wapps

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func (a *App) handleSitemap(c echo.Context) error {
	site, err := a.siteFor(c)
	if err != nil {
		return err
	}
	urls, err := a.sitemapURLs(site)
	if err != nil {
		return err
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}

// sitemapURLs lists the root, every live blog with its live posts, and every
// live static page of a site.
func (a *App) sitemapURLs(site Site) ([]sitemapURL, error) {
	root := site.RootURL()
	urls := []sitemapURL{{Loc: absoluteURL(root, "/")}}

	blogs, err := a.Store.ListLiveBlogs(site.ID)
	if err != nil {
		return nil, err
	}
	for _, b := range blogs {
		urls = append(urls, sitemapURL{Loc: absoluteURL(root, b.Link)})
		posts, err := a.Store.ListAllPosts(b.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range posts {
			if !p.Live {
				continue
			}
			urls = append(urls, sitemapURL{
				Loc:     absoluteURL(root, p.Link),
				LastMod: p.Date.Format("2006-01-02"),
			})
		}
	}

	pages, err := a.Store.ListStaticPages(site.ID, true)
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		urls = append(urls, sitemapURL{Loc: absoluteURL(root, p.Link)})
	}
	return urls, nil
}
