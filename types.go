package wapps

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Site is a hostname-bound site. Every page and identity record belongs to one.
type Site struct {
	ID        int64
	Hostname  string
	Port      int
	SiteName  string
	IsDefault bool
}

// RootURL returns the scheme+host(+port) prefix used to build absolute URLs.
func (s Site) RootURL() string {
	scheme := "http"
	if s.Port == 443 {
		scheme = "https"
	}
	host := s.Hostname
	if s.Port != 0 && s.Port != 80 && s.Port != 443 {
		host += ":" + strconv.Itoa(s.Port)
	}
	return scheme + "://" + host
}

// siteFromURL builds an unsaved Site from a canonical URL such as SITE_URL.
func siteFromURL(raw, name string) (Site, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Site{}, err
	}
	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return Site{}, err
		}
	}
	return Site{Hostname: u.Hostname(), Port: port, SiteName: name, IsDefault: true}, nil
}

// Image is an uploaded image. Derived variants are produced by an ImageRenderer.
type Image struct {
	ID           int64
	Title        string
	Filename     string
	OriginalName string
	Width        int
	Height       int
	Size         int
	UploadedAt   string
}

// HumanSize formats the file size for admin listings ("84 kB").
func (i Image) HumanSize() string {
	return humanize.Bytes(uint64(i.Size))
}

// Tag is a free-form label. Two tags are the same tag when their slugs match.
type Tag struct {
	Name string
	Slug string
}

// NewTag builds a tag from a display name.
func NewTag(name string) Tag {
	name = strings.TrimSpace(name)
	return Tag{Name: name, Slug: Slugify(name)}
}

// Key returns the identity of the tag.
func (t Tag) Key() string {
	if t.Slug != "" {
		return t.Slug
	}
	return Slugify(t.Name)
}

// TagCount is a tag with the number of live posts carrying it.
type TagCount struct {
	Tag
	Count int
}

// Category is a hierarchical classification for blog posts.
type Category struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	ParentID    int64 // 0 for root categories
	Children    []Category
	BlogCount   int
}

// IdentitySettings holds site-wide branding and SEO defaults.
type IdentitySettings struct {
	SiteID      int64
	Name        string
	Description string
	Logo        *Image
	Tags        []Tag
}

// Page holds the fields every page type shares.
type Page struct {
	ID                int64
	SiteID            int64
	Slug              string
	Title             string
	SEOTitle          string
	SearchDescription string
	Live              bool
	FirstPublishedAt  time.Time
	Owner             string
	Link              string // site-relative URL, filled by the store
}

// ContentTitle implements Content.
func (p Page) ContentTitle() string { return p.Title }

// ContentSEOTitle implements SEOTitled.
func (p Page) ContentSEOTitle() string { return p.SEOTitle }

// ContentSearchDescription implements SearchDescribed.
func (p Page) ContentSearchDescription() string { return p.SearchDescription }

// Blog is a blog index page: the container that posts are published under.
type Blog struct {
	Page
	Intro string // HTML
}

func (b Blog) ContentIntro() string { return b.Intro }

// BlogPost is a single article published under a Blog.
type BlogPost struct {
	Page
	BlogID       int64
	Body         string // HTML
	Excerpt      string // HTML
	Date         time.Time
	Tags         []Tag
	Categories   []Category
	Image        *Image
	RelatedLinks []RelatedLink
}

func (p BlogPost) ContentExcerpt() string { return p.Excerpt }
func (p BlogPost) ContentImage() *Image   { return p.Image }
func (p BlogPost) ContentTags() []Tag     { return p.Tags }

// RelatedLink points from a post to another page or to an external URL.
type RelatedLink struct {
	Title       string
	ExternalURL string
	PageID      int64
	PageURL     string // resolved path of PageID, filled by the store
	SortOrder   int
}

// URL returns the internal page path when set, otherwise the external URL.
func (l RelatedLink) URL() string {
	if l.PageURL != "" {
		return l.PageURL
	}
	return l.ExternalURL
}

// SEO types a StaticPage can declare.
const (
	SEOTypeArticle = "article"
	SEOTypeService = "service"
)

// StaticPage is a standalone content page (about, services, legal...).
type StaticPage struct {
	Page
	Intro     string // plain text
	Body      string // HTML
	Image     *Image
	ImageFull bool
	SEOType   string
	Tags      []Tag
}

func (p StaticPage) ContentIntro() string { return p.Intro }
func (p StaticPage) ContentImage() *Image { return p.Image }
func (p StaticPage) ContentTags() []Tag   { return p.Tags }

// Content is anything page metadata can be resolved from. Optional
// attributes are exposed through the interfaces below; a type that lacks one
// simply doesn't implement it. Intro and description may carry HTML. Custom
// page types get the common ones by embedding Page.
type Content interface {
	ContentTitle() string
}

type (
	SEOTitled       interface{ ContentSEOTitle() string }
	SearchDescribed interface{ ContentSearchDescription() string }
	Excerpted       interface{ ContentExcerpt() string }
	Introduced      interface{ ContentIntro() string }
	Described       interface{ ContentDescription() string }
	FeedImaged      interface{ ContentFeedImage() *Image }
	Imaged          interface{ ContentImage() *Image }
	Tagged          interface{ ContentTags() []Tag }
)
