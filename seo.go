package wapps

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
)

// ImageRenderer turns an image and a rendition filter ("original",
// "width-400", "fill-200x200") into a site-relative URL path.
type ImageRenderer interface {
	URL(img *Image, filter string) string
}

// MetaContext is what metadata is resolved from: the request's site, that
// site's identity settings, and the page being rendered (nil for pages that
// aren't backed by content, like the home page).
type MetaContext struct {
	Site     Site
	Identity IdentitySettings
	Page     Content
	SiteName string // fallback when the identity has no name
	Images   ImageRenderer
}

type metaOverrides struct {
	title       string
	description string
	image       *Image
	imageURL    string
	tags        []Tag
}

// MetaOption sets an explicit value that takes precedence over anything
// derived from the page or the site identity.
type MetaOption func(*metaOverrides)

// WithTitle overrides the page title.
func WithTitle(title string) MetaOption {
	return func(o *metaOverrides) { o.title = title }
}

// WithDescription overrides the description.
func WithDescription(desc string) MetaOption {
	return func(o *metaOverrides) { o.description = desc }
}

// WithImage overrides the share image.
func WithImage(img *Image) MetaOption {
	return func(o *metaOverrides) { o.image = img }
}

// WithImageURL overrides the absolute share image URL.
func WithImageURL(u string) MetaOption {
	return func(o *metaOverrides) { o.imageURL = u }
}

// WithTags adds tags on top of the identity and page tags.
func WithTags(tags ...Tag) MetaOption {
	return func(o *metaOverrides) { o.tags = append(o.tags, tags...) }
}

// Metadata is the resolved SEO view of a page, built once per render.
// Every accessor falls back along a fixed chain and never fails; a value
// that can't be found anywhere comes back empty.
type Metadata struct {
	ctx MetaContext
	kw  metaOverrides
}

// NewMetadata resolves metadata for ctx with optional explicit overrides.
func NewMetadata(ctx MetaContext, opts ...MetaOption) *Metadata {
	m := &Metadata{ctx: ctx}
	for _, opt := range opts {
		opt(&m.kw)
	}
	return m
}

// Title returns the override, else the page SEO title, else the page title.
func (m *Metadata) Title() string {
	if m.kw.title != "" {
		return m.kw.title
	}
	if p, ok := m.ctx.Page.(SEOTitled); ok {
		if t := p.ContentSEOTitle(); t != "" {
			return t
		}
	}
	if m.ctx.Page != nil {
		return m.ctx.Page.ContentTitle()
	}
	return ""
}

// SiteTitle returns the identity name, else the configured site name.
func (m *Metadata) SiteTitle() string {
	if m.ctx.Identity.Name != "" {
		return m.ctx.Identity.Name
	}
	return m.ctx.SiteName
}

// FullTitle joins the page and site titles as "Title | Site".
func (m *Metadata) FullTitle() string {
	title, site := m.Title(), m.SiteTitle()
	switch {
	case title != "" && site != "":
		return title + " | " + site
	case site != "":
		return site
	default:
		return title
	}
}

// Description walks override, search description, excerpt, intro and
// description (the last two stripped of HTML) before falling back to the
// site identity description.
func (m *Metadata) Description() string {
	if m.kw.description != "" {
		return m.kw.description
	}
	page := m.ctx.Page
	if p, ok := page.(SearchDescribed); ok {
		if d := p.ContentSearchDescription(); d != "" {
			return d
		}
	}
	if p, ok := page.(Excerpted); ok {
		if d := p.ContentExcerpt(); d != "" {
			return d
		}
	}
	if p, ok := page.(Introduced); ok {
		if d := p.ContentIntro(); d != "" {
			return StripTags(d)
		}
	}
	if p, ok := page.(Described); ok {
		if d := p.ContentDescription(); d != "" {
			return StripTags(d)
		}
	}
	return m.ctx.Identity.Description
}

// Image returns the override, the page feed image, the page image or the
// site logo, in that order. Nil when none is set.
func (m *Metadata) Image() *Image {
	if m.kw.image != nil {
		return m.kw.image
	}
	page := m.ctx.Page
	if p, ok := page.(FeedImaged); ok {
		if img := p.ContentFeedImage(); img != nil {
			return img
		}
	}
	if p, ok := page.(Imaged); ok {
		if img := p.ContentImage(); img != nil {
			return img
		}
	}
	return m.ctx.Identity.Logo
}

// ImageURL returns the override, else the absolute URL of the original
// rendition of Image.
func (m *Metadata) ImageURL() string {
	if m.kw.imageURL != "" {
		return m.kw.imageURL
	}
	img := m.Image()
	if img == nil || m.ctx.Images == nil {
		return ""
	}
	return absoluteURL(m.ctx.Site.RootURL(), m.ctx.Images.URL(img, RenditionOriginal))
}

// Tags returns the union of identity, override and page tags with
// duplicates collapsed.
func (m *Metadata) Tags() []Tag {
	var pageTags []Tag
	if p, ok := m.ctx.Page.(Tagged); ok {
		pageTags = p.ContentTags()
	}
	return uniqueTags(m.ctx.Identity.Tags, m.kw.tags, pageTags)
}

// Keywords renders Tags for a <meta name="keywords"> tag.
func (m *Metadata) Keywords() string {
	return JoinTags(m.Tags())
}

// absoluteURL joins a site root with a rooted path. Paths that are already
// absolute URLs pass through.
func absoluteURL(root, p string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return strings.TrimSuffix(root, "/") + "/" + strings.TrimPrefix(p, "/")
}

// PageMeta resolves metadata for page in the context of the request's site.
// Pass a nil page for views not backed by content.
func (a *App) PageMeta(c echo.Context, page Content, opts ...MetaOption) (*Metadata, error) {
	site, err := a.siteFor(c)
	if err != nil {
		return nil, err
	}
	return a.metaFor(c, site, page, opts...)
}

func (a *App) metaFor(c echo.Context, site Site, page Content, opts ...MetaOption) (*Metadata, error) {
	identity, err := a.Identity.Get(c.Request().Context(), site.ID)
	if err != nil {
		return nil, fmt.Errorf("identity for site %d: %w", site.ID, err)
	}
	return NewMetadata(MetaContext{
		Site:     site,
		Identity: identity,
		Page:     page,
		SiteName: a.Config.Name,
		Images:   a.Images,
	}, opts...), nil
}

// BlogMetaView is the site-level view handed to navigation templates.
type BlogMetaView struct {
	Meta  *Metadata
	Blogs []Blog
}

// BlogMeta lists the live blogs of the request's site together with the
// site-level metadata.
func (a *App) BlogMeta(c echo.Context) (BlogMetaView, error) {
	site, err := a.siteFor(c)
	if err != nil {
		return BlogMetaView{}, err
	}
	meta, err := a.metaFor(c, site, nil)
	if err != nil {
		return BlogMetaView{}, err
	}
	blogs, err := a.Store.ListLiveBlogs(site.ID)
	if err != nil {
		return BlogMetaView{}, err
	}
	return BlogMetaView{Meta: meta, Blogs: blogs}, nil
}
