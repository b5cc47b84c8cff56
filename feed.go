package wapps

import (
	"encoding/xml"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// DefaultFeedSize is the number of entries a blog feed carries.
	DefaultFeedSize = 20

	// Enclosures are always announced as PNG with a zero length; the real
	// type and size of the rendition are not inspected.
	enclosureMIMEType = "image/png"
)

// Enclosure is a media attachment of a feed item.
type Enclosure struct {
	URL      string
	MIMEType string
	Length   int64
}

// FeedItem is one post projected into syndication shape.
type FeedItem struct {
	Title       string
	Description string // HTML
	Content     string // HTML
	PubDate     time.Time
	Link        string
	Enclosure   *Enclosure // nil when the post has no image
}

// BlogFeed projects a blog and its posts into a syndication feed. Title and
// description come from the blog's resolved metadata.
type BlogFeed struct {
	Site   Site
	Blog   Blog
	Meta   *Metadata
	Posts  []BlogPost
	Images ImageRenderer
	Limit  int // 0 means DefaultFeedSize
}

// Title returns the full page title of the blog.
func (f *BlogFeed) Title() string { return f.Meta.FullTitle() }

// Description returns the resolved blog description.
func (f *BlogFeed) Description() string { return f.Meta.Description() }

// Subtitle is the Atom name for Description.
func (f *BlogFeed) Subtitle() string { return f.Description() }

// Link returns the absolute URL of the blog.
func (f *BlogFeed) Link() string { return absoluteURL(f.Site.RootURL(), f.Blog.Link) }

// Items returns the newest posts, newest first, capped at the feed limit.
func (f *BlogFeed) Items() []FeedItem {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultFeedSize
	}
	posts := make([]BlogPost, 0, len(f.Posts))
	for _, p := range f.Posts {
		if p.Live {
			posts = append(posts, p)
		}
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].Date.After(posts[j].Date) })
	if len(posts) > limit {
		posts = posts[:limit]
	}
	root := f.Site.RootURL()
	items := make([]FeedItem, 0, len(posts))
	for _, p := range posts {
		item := FeedItem{
			Title:       p.Title,
			Description: p.Body,
			Content:     p.Body,
			PubDate:     p.Date,
			Link:        absoluteURL(root, p.Link),
		}
		if p.Image != nil && f.Images != nil {
			item.Enclosure = &Enclosure{
				URL:      absoluteURL(root, f.Images.URL(p.Image, RenditionOriginal)),
				MIMEType: enclosureMIMEType,
				Length:   0,
			}
		}
		items = append(items, item)
	}
	return items
}

// Updated returns the date of the newest item, or the zero time.
func updated(items []FeedItem) time.Time {
	var t time.Time
	for _, it := range items {
		if it.PubDate.After(t) {
			t = it.PubDate
		}
	}
	return t
}

// --- RSS 2.0 ---

type rssXML struct {
	XMLName   xml.Name   `xml:"rss"`
	Version   string     `xml:"version,attr"`
	ContentNS string     `xml:"xmlns:content,attr"`
	AtomNS    string     `xml:"xmlns:atom,attr"`
	Channel   rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string      `xml:"title"`
	Link          string      `xml:"link"`
	Description   string      `xml:"description"`
	AtomLink      rssAtomLink `xml:"atom:link"`
	LastBuildDate string      `xml:"lastBuildDate,omitempty"`
	Items         []rssItem   `xml:"item"`
}

type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	Link        string        `xml:"link"`
	Description string        `xml:"description"`
	Content     *rssContent   `xml:"content:encoded,omitempty"`
	PubDate     string        `xml:"pubDate,omitempty"`
	GUID        string        `xml:"guid"`
	Enclosure   *rssEnclosure `xml:"enclosure,omitempty"`
}

type rssContent struct {
	Text string `xml:",cdata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int64  `xml:"length,attr"`
}

func (f *BlogFeed) rss(selfURL string) rssXML {
	items := f.Items()
	out := make([]rssItem, 0, len(items))
	for _, it := range items {
		ri := rssItem{
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
			GUID:        it.Link,
		}
		if it.Content != "" {
			ri.Content = &rssContent{Text: it.Content}
		}
		if !it.PubDate.IsZero() {
			ri.PubDate = it.PubDate.Format(time.RFC1123Z)
		}
		if e := it.Enclosure; e != nil {
			ri.Enclosure = &rssEnclosure{URL: e.URL, Type: e.MIMEType, Length: e.Length}
		}
		out = append(out, ri)
	}
	ch := rssChannel{
		Title:       f.Title(),
		Link:        f.Link(),
		Description: f.Description(),
		AtomLink:    rssAtomLink{Href: selfURL, Rel: "self", Type: "application/rss+xml"},
		Items:       out,
	}
	if t := updated(items); !t.IsZero() {
		ch.LastBuildDate = t.Format(time.RFC1123Z)
	}
	return rssXML{
		Version:   "2.0",
		ContentNS: "http://purl.org/rss/1.0/modules/content/",
		AtomNS:    "http://www.w3.org/2005/Atom",
		Channel:   ch,
	}
}

// --- Atom 1.0 ---

type atomFeed struct {
	XMLName  xml.Name    `xml:"feed"`
	XMLNS    string      `xml:"xmlns,attr"`
	Title    string      `xml:"title"`
	Subtitle string      `xml:"subtitle,omitempty"`
	ID       string      `xml:"id"`
	Updated  string      `xml:"updated"`
	Links    []atomLink  `xml:"link"`
	Entries  []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href   string `xml:"href,attr"`
	Rel    string `xml:"rel,attr,omitempty"`
	Type   string `xml:"type,attr,omitempty"`
	Length string `xml:"length,attr,omitempty"`
}

type atomText struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	ID        string     `xml:"id"`
	Published string     `xml:"published,omitempty"`
	Updated   string     `xml:"updated"`
	Summary   *atomText  `xml:"summary,omitempty"`
	Content   *atomText  `xml:"content,omitempty"`
}

// atomID derives a stable entry id from a URL.
func atomID(link string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(link)).URN()
}

func (f *BlogFeed) atom(selfURL string) atomFeed {
	items := f.Items()
	feedUpdated := updated(items)
	if feedUpdated.IsZero() {
		feedUpdated = f.Blog.FirstPublishedAt
	}
	entries := make([]atomEntry, 0, len(items))
	for _, it := range items {
		e := atomEntry{
			Title: it.Title,
			Links: []atomLink{{Href: it.Link, Rel: "alternate"}},
			ID:    atomID(it.Link),
		}
		if !it.PubDate.IsZero() {
			e.Published = it.PubDate.UTC().Format(time.RFC3339)
			e.Updated = e.Published
		} else {
			// updated is required on every entry.
			e.Updated = f.Blog.FirstPublishedAt.UTC().Format(time.RFC3339)
		}
		if it.Description != "" {
			e.Summary = &atomText{Type: "html", Body: it.Description}
		}
		if it.Content != "" {
			e.Content = &atomText{Type: "html", Body: it.Content}
		}
		if enc := it.Enclosure; enc != nil {
			e.Links = append(e.Links, atomLink{Href: enc.URL, Rel: "enclosure", Type: enc.MIMEType, Length: "0"})
		}
		entries = append(entries, e)
	}
	link := f.Link()
	return atomFeed{
		XMLNS:    "http://www.w3.org/2005/Atom",
		Title:    f.Title(),
		Subtitle: f.Subtitle(),
		ID:       atomID(link),
		Updated:  feedUpdated.UTC().Format(time.RFC3339),
		Links: []atomLink{
			{Href: link, Rel: "alternate"},
			{Href: selfURL, Rel: "self"},
		},
		Entries: entries,
	}
}

func writeXML(c echo.Context, contentType string, v any) error {
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(v)
}

// WriteRSS writes the feed as RSS 2.0.
func (f *BlogFeed) WriteRSS(c echo.Context) error {
	return writeXML(c, "application/rss+xml; charset=utf-8", f.rss(absoluteURL(f.Site.RootURL(), c.Request().URL.Path)))
}

// WriteAtom writes the feed as Atom 1.0.
func (f *BlogFeed) WriteAtom(c echo.Context) error {
	return writeXML(c, "application/atom+xml; charset=utf-8", f.atom(absoluteURL(f.Site.RootURL(), c.Request().URL.Path)))
}
