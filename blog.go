package wapps

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// DefaultPageSize is the number of posts per blog listing page.
const DefaultPageSize = 10

// Blog listing filter types, exposed to templates as BlogListing.FilterType.
const (
	FilterDate     = "date"
	FilterTag      = "tag"
	FilterCategory = "category"
	FilterAuthor   = "author"
)

// BlogListing is the view of a blog index, optionally filtered.
type BlogListing struct {
	Blog       Blog
	Posts      []BlogPost
	Paginator  Paginator
	FilterType string // "" for the unfiltered index
	FilterTerm string
	Tags       []TagCount
	Categories []Category
	Meta       *Metadata
	RSSURL     string
	AtomURL    string
	Partial    bool // HTMX request
}

// PostView is the view of a single blog post.
type PostView struct {
	Post       BlogPost
	Blog       Blog
	Meta       *Metadata
	JsonLD     string
	Tags       []TagCount
	Categories []Category
	Partial    bool
}

// Summarize returns the excerpt, search description or body of a post as
// plain text cut to n runes.
func (p BlogPost) Summarize(n int) string {
	text := p.Excerpt
	if text == "" {
		text = p.SearchDescription
	}
	if text == "" {
		text = p.Body
	}
	return Truncate(StripTags(text), n)
}

// BlogPostingJsonLD returns a JSON-LD string for a BlogPosting schema.
func BlogPostingJsonLD(post BlogPost, site Site, images ImageRenderer) string {
	root := site.RootURL()
	name := post.SEOTitle
	if name == "" {
		name = post.Title
	}
	data := map[string]interface{}{
		"@context":    "https://schema.org",
		"@type":       "BlogPosting",
		"@id":         absoluteURL(root, post.Link),
		"name":        name,
		"headline":    post.Summarize(100),
		"articleBody": post.Body,
	}
	if !post.FirstPublishedAt.IsZero() {
		data["datePublished"] = post.FirstPublishedAt.Format(time.RFC3339)
	}
	if !post.Date.IsZero() {
		data["dateModified"] = post.Date.Format(time.RFC3339)
	}
	if post.Owner != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  post.Owner,
		}
	}
	if len(post.Tags) > 0 {
		data["keywords"] = JoinTags(post.Tags)
	}
	if post.Image != nil && images != nil {
		data["image"] = absoluteURL(root, images.URL(post.Image, RenditionOriginal))
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// --- Pagination ---

// Paginator describes one page of a listing.
type Paginator struct {
	Page     int
	PerPage  int
	Total    int
	NumPages int
}

// NewPaginator picks the page named by raw. Garbage selects the first page
// and a number past the end selects the last one.
func NewPaginator(total, perPage int, raw string) Paginator {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	pages := (total + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	return Paginator{Page: page, PerPage: perPage, Total: total, NumPages: pages}
}

// Offset is the index of the first item on the page.
func (p Paginator) Offset() int { return (p.Page - 1) * p.PerPage }

// HasPrev reports whether there is a page before this one.
func (p Paginator) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether there is a page after this one.
func (p Paginator) HasNext() bool { return p.Page < p.NumPages }

// --- Routing below a blog ---

type blogRouteKind int

const (
	routeIndex blogRouteKind = iota
	routeDate
	routeTag
	routeCategory
	routeAuthor
	routeRSS
	routeAtom
	routePost
)

// blogRoute is a parsed path below a blog root.
type blogRoute struct {
	kind             blogRouteKind
	year, month, day int
	term             string
}

// parseBlogRoute maps the path segments after the blog slug to a route:
//
//	""                 index
//	YYYY/[MM/[DD/]]    posts by date
//	tag/<slug>/        posts by tag
//	category/<slug>/   posts by category
//	author/<name>/     posts by owner
//	rss/, atom/        feeds
//	<slug>/            a post
func parseBlogRoute(segs []string) (blogRoute, bool) {
	switch {
	case len(segs) == 0:
		return blogRoute{kind: routeIndex}, true
	case isDigits(segs[0], 4) && len(segs) <= 3:
		r := blogRoute{kind: routeDate}
		r.year, _ = strconv.Atoi(segs[0])
		if len(segs) > 1 {
			if !isDigits(segs[1], 2) {
				return blogRoute{}, false
			}
			r.month, _ = strconv.Atoi(segs[1])
			if r.month < 1 || r.month > 12 {
				return blogRoute{}, false
			}
		}
		if len(segs) > 2 {
			if !isDigits(segs[2], 2) {
				return blogRoute{}, false
			}
			r.day, _ = strconv.Atoi(segs[2])
			d := time.Date(r.year, time.Month(r.month), r.day, 0, 0, 0, 0, time.UTC)
			if r.day < 1 || d.Day() != r.day {
				return blogRoute{}, false
			}
		}
		return r, true
	case len(segs) == 2 && segs[0] == "tag":
		return blogRoute{kind: routeTag, term: segs[1]}, true
	case len(segs) == 2 && segs[0] == "category":
		return blogRoute{kind: routeCategory, term: segs[1]}, true
	case len(segs) == 2 && segs[0] == "author":
		return blogRoute{kind: routeAuthor, term: segs[1]}, true
	case len(segs) == 1 && segs[0] == "rss":
		return blogRoute{kind: routeRSS}, true
	case len(segs) == 1 && segs[0] == "atom":
		return blogRoute{kind: routeAtom}, true
	case len(segs) == 1:
		return blogRoute{kind: routePost, term: segs[0]}, true
	}
	return blogRoute{}, false
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// filter turns a listing route into a store filter and its display term.
func (r blogRoute) filter() (PostFilter, string, string) {
	switch r.kind {
	case routeDate:
		switch {
		case r.day != 0:
			from := time.Date(r.year, time.Month(r.month), r.day, 0, 0, 0, 0, time.UTC)
			return PostFilter{From: from, To: from.AddDate(0, 0, 1)}, FilterDate, from.Format("January 2, 2006")
		case r.month != 0:
			from := time.Date(r.year, time.Month(r.month), 1, 0, 0, 0, 0, time.UTC)
			return PostFilter{From: from, To: from.AddDate(0, 1, 0)}, FilterDate, from.Format("January 2006")
		default:
			from := time.Date(r.year, 1, 1, 0, 0, 0, 0, time.UTC)
			return PostFilter{From: from, To: from.AddDate(1, 0, 0)}, FilterDate, strconv.Itoa(r.year)
		}
	case routeTag:
		return PostFilter{Tag: r.term}, FilterTag, r.term
	case routeCategory:
		return PostFilter{Category: r.term}, FilterCategory, r.term
	case routeAuthor:
		return PostFilter{Owner: r.term}, FilterAuthor, r.term
	}
	return PostFilter{}, "", ""
}

// --- Handlers ---

func (a *App) serveBlog(c echo.Context, site Site, blog Blog, segs []string) error {
	route, ok := parseBlogRoute(segs)
	if !ok {
		return echo.ErrNotFound
	}
	switch route.kind {
	case routeRSS, routeAtom:
		feed, err := a.BlogFeed(c, site, blog)
		if err != nil {
			return err
		}
		if route.kind == routeRSS {
			return feed.WriteRSS(c)
		}
		return feed.WriteAtom(c)
	case routePost:
		return a.servePost(c, site, blog, route.term)
	default:
		return a.serveBlogListing(c, site, blog, route)
	}
}

// BlogFeed builds the feed of a blog with its newest live posts.
func (a *App) BlogFeed(c echo.Context, site Site, blog Blog) (*BlogFeed, error) {
	meta, err := a.metaFor(c, site, blog)
	if err != nil {
		return nil, err
	}
	posts, err := a.Store.ListPosts(blog.ID, PostFilter{}, a.Config.FeedSize, 0)
	if err != nil {
		return nil, fmt.Errorf("feed posts: %w", err)
	}
	return &BlogFeed{
		Site:   site,
		Blog:   blog,
		Meta:   meta,
		Posts:  posts,
		Images: a.Images,
		Limit:  a.Config.FeedSize,
	}, nil
}

func (a *App) serveBlogListing(c echo.Context, site Site, blog Blog, route blogRoute) error {
	filter, filterType, filterTerm := route.filter()
	total, err := a.Store.CountPosts(blog.ID, filter)
	if err != nil {
		return err
	}
	pager := NewPaginator(total, a.Config.PageSize, c.QueryParam("page"))
	posts, err := a.Store.ListPosts(blog.ID, filter, pager.PerPage, pager.Offset())
	if err != nil {
		return err
	}
	tags, categories, err := a.blogSidebar(blog)
	if err != nil {
		return err
	}
	meta, err := a.metaFor(c, site, blog)
	if err != nil {
		return err
	}
	return Render(c, a.Views.BlogIndex(BlogListing{
		Blog:       blog,
		Posts:      posts,
		Paginator:  pager,
		FilterType: filterType,
		FilterTerm: filterTerm,
		Tags:       tags,
		Categories: categories,
		Meta:       meta,
		RSSURL:     blog.Link + "rss/",
		AtomURL:    blog.Link + "atom/",
		Partial:    isHTMX(c),
	}))
}

func (a *App) servePost(c echo.Context, site Site, blog Blog, slug string) error {
	post, err := a.Store.GetPost(blog.ID, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		}
		return err
	}
	tags, categories, err := a.blogSidebar(blog)
	if err != nil {
		return err
	}
	meta, err := a.metaFor(c, site, post)
	if err != nil {
		return err
	}
	return Render(c, a.Views.Post(PostView{
		Post:       post,
		Blog:       blog,
		Meta:       meta,
		JsonLD:     BlogPostingJsonLD(post, site, a.Images),
		Tags:       tags,
		Categories: categories,
		Partial:    isHTMX(c),
	}))
}

// blogSidebar loads the tag cloud and category tree shown next to posts.
func (a *App) blogSidebar(blog Blog) ([]TagCount, []Category, error) {
	tags, err := a.Store.TagCounts(blog.ID)
	if err != nil {
		return nil, nil, err
	}
	categories, err := a.Store.RootCategories()
	if err != nil {
		return nil, nil, err
	}
	return tags, categories, nil
}
