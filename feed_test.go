package wapps

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFeed(posts []BlogPost) *BlogFeed {
	blog := Blog{Page: Page{Title: "News", Link: "/news/"}, Intro: "<p>All the news</p>"}
	meta := NewMetadata(MetaContext{
		Site:     testSite,
		Identity: IdentitySettings{Name: "Example"},
		Page:     blog,
		Images:   fakeRenderer{},
	})
	return &BlogFeed{Site: testSite, Blog: blog, Meta: meta, Posts: posts, Images: fakeRenderer{}}
}

func feedPost(slug string, date time.Time) BlogPost {
	return BlogPost{
		Page: Page{Slug: slug, Title: "Post " + slug, Live: true, Link: "/news/" + slug + "/"},
		Body: "<p>" + slug + "</p>",
		Date: date,
	}
}

func TestBlogFeedChannel(t *testing.T) {
	f := testFeed(nil)
	assert.Equal(t, "News | Example", f.Title())
	assert.Equal(t, "All the news", f.Description())
	assert.Equal(t, f.Description(), f.Subtitle())
	assert.Equal(t, "https://example.com/news/", f.Link())
	assert.Empty(t, f.Items())
}

func TestBlogFeedItems(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var posts []BlogPost
	for i := 0; i < 25; i++ {
		posts = append(posts, feedPost(fmt.Sprintf("p%02d", i), base.AddDate(0, 0, i)))
	}
	draft := feedPost("draft", base.AddDate(1, 0, 0))
	draft.Live = false
	posts = append(posts, draft)

	items := testFeed(posts).Items()
	require.Len(t, items, DefaultFeedSize)
	assert.Equal(t, "Post p24", items[0].Title)
	assert.Equal(t, "Post p05", items[len(items)-1].Title)
	for i := 1; i < len(items); i++ {
		assert.False(t, items[i].PubDate.After(items[i-1].PubDate))
	}

	first := items[0]
	assert.Equal(t, "https://example.com/news/p24/", first.Link)
	assert.Equal(t, "<p>p24</p>", first.Description)
	assert.Equal(t, first.Description, first.Content)
	assert.Nil(t, first.Enclosure)
}

func TestBlogFeedEnclosure(t *testing.T) {
	p := feedPost("pic", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	p.Image = &Image{Filename: "pic.jpg"}

	items := testFeed([]BlogPost{p}).Items()
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Enclosure)
	assert.Equal(t, Enclosure{
		URL:      "https://example.com/img/original/pic.jpg",
		MIMEType: "image/png",
		Length:   0,
	}, *items[0].Enclosure)
}

func TestBlogFeedLimit(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := testFeed([]BlogPost{feedPost("a", base), feedPost("b", base.AddDate(0, 0, 1))})
	f.Limit = 1
	items := f.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Post b", items[0].Title)
}

func recordFeed(t *testing.T, write func(echo.Context) error, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, write(e.NewContext(req, rec)))
	return rec
}

func TestWriteRSS(t *testing.T) {
	withImage := feedPost("pic", time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC))
	withImage.Image = &Image{Filename: "pic.jpg"}
	plain := feedPost("plain", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	f := testFeed([]BlogPost{plain, withImage})

	rec := recordFeed(t, f.WriteRSS, "/news/rss/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/rss+xml")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, xml.Header))
	assert.Contains(t, body, `<rss version="2.0"`)
	assert.Contains(t, body, `<title>News | Example</title>`)
	assert.Contains(t, body, `<atom:link href="https://example.com/news/rss/" rel="self" type="application/rss+xml"></atom:link>`)
	assert.Contains(t, body, `<enclosure url="https://example.com/img/original/pic.jpg" type="image/png" length="0"></enclosure>`)
	assert.Equal(t, 1, strings.Count(body, "<enclosure"))
	assert.Contains(t, body, "<content:encoded><![CDATA[<p>pic</p>]]></content:encoded>")
	assert.Contains(t, body, "<pubDate>Thu, 02 May 2024 10:00:00 +0000</pubDate>")
	assert.Less(t, strings.Index(body, "Post pic"), strings.Index(body, "Post plain"))

	var parsed struct {
		Items []struct {
			Title string `xml:"title"`
			Link  string `xml:"link"`
		} `xml:"channel>item"`
	}
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &parsed))
	require.Len(t, parsed.Items, 2)
	assert.Equal(t, "https://example.com/news/plain/", parsed.Items[1].Link)
}

func TestWriteAtom(t *testing.T) {
	withImage := feedPost("pic", time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC))
	withImage.Image = &Image{Filename: "pic.jpg"}
	f := testFeed([]BlogPost{withImage, feedPost("plain", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))})

	rec := recordFeed(t, f.WriteAtom, "/news/atom/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/atom+xml")

	var parsed struct {
		XMLName  xml.Name `xml:"http://www.w3.org/2005/Atom feed"`
		Title    string   `xml:"title"`
		Subtitle string   `xml:"subtitle"`
		Updated  string   `xml:"updated"`
		Entries  []struct {
			ID    string `xml:"id"`
			Links []struct {
				Href   string `xml:"href,attr"`
				Rel    string `xml:"rel,attr"`
				Type   string `xml:"type,attr"`
				Length string `xml:"length,attr"`
			} `xml:"link"`
		} `xml:"entry"`
	}
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.Equal(t, "News | Example", parsed.Title)
	assert.Equal(t, "All the news", parsed.Subtitle)
	assert.Equal(t, "2024-05-02T10:00:00Z", parsed.Updated)
	require.Len(t, parsed.Entries, 2)

	first := parsed.Entries[0]
	assert.True(t, strings.HasPrefix(first.ID, "urn:uuid:"))
	assert.Equal(t, atomID("https://example.com/news/pic/"), first.ID)
	require.Len(t, first.Links, 2)
	assert.Equal(t, "enclosure", first.Links[1].Rel)
	assert.Equal(t, "image/png", first.Links[1].Type)
	assert.Equal(t, "0", first.Links[1].Length)
	assert.Len(t, parsed.Entries[1].Links, 1)
	assert.NotEqual(t, first.ID, parsed.Entries[1].ID)
}

func TestWriteAtomEntryWithoutDate(t *testing.T) {
	f := testFeed([]BlogPost{feedPost("undated", time.Time{})})
	f.Blog.FirstPublishedAt = time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)

	rec := recordFeed(t, f.WriteAtom, "/news/atom/")
	var parsed struct {
		Updated string `xml:"updated"`
		Entries []struct {
			Published string `xml:"published"`
			Updated   string `xml:"updated"`
		} `xml:"entry"`
	}
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &parsed))
	require.Len(t, parsed.Entries, 1)
	assert.Equal(t, "2023-06-01T08:00:00Z", parsed.Entries[0].Updated)
	assert.Equal(t, "", parsed.Entries[0].Published)
	assert.Equal(t, "2023-06-01T08:00:00Z", parsed.Updated)
}
