package wapps

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlogRoute(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
		want blogRoute
	}{
		{"", true, blogRoute{kind: routeIndex}},
		{"2024", true, blogRoute{kind: routeDate, year: 2024}},
		{"2024/03", true, blogRoute{kind: routeDate, year: 2024, month: 3}},
		{"2024/02/29", true, blogRoute{kind: routeDate, year: 2024, month: 2, day: 29}},
		{"2023/02/29", false, blogRoute{}},
		{"2024/13", false, blogRoute{}},
		{"2024/3", false, blogRoute{}},
		{"2024/03/05/extra", false, blogRoute{}},
		{"tag/go", true, blogRoute{kind: routeTag, term: "go"}},
		{"category/guides", true, blogRoute{kind: routeCategory, term: "guides"}},
		{"author/ana", true, blogRoute{kind: routeAuthor, term: "ana"}},
		{"tag", true, blogRoute{kind: routePost, term: "tag"}},
		{"rss", true, blogRoute{kind: routeRSS}},
		{"atom", true, blogRoute{kind: routeAtom}},
		{"hello-world", true, blogRoute{kind: routePost, term: "hello-world"}},
		{"hello/world", false, blogRoute{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := parseBlogRoute(pathSegments(tt.path))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlogRouteFilter(t *testing.T) {
	f, typ, term := blogRoute{kind: routeDate, year: 2024, month: 3, day: 5}.filter()
	assert.Equal(t, FilterDate, typ)
	assert.Equal(t, "March 5, 2024", term)
	assert.True(t, f.From.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.True(t, f.To.Equal(time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)))

	f, _, term = blogRoute{kind: routeDate, year: 2024, month: 12}.filter()
	assert.Equal(t, "December 2024", term)
	assert.True(t, f.To.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, _, term = blogRoute{kind: routeDate, year: 2024}.filter()
	assert.Equal(t, "2024", term)

	f, typ, term = blogRoute{kind: routeTag, term: "go"}.filter()
	assert.Equal(t, PostFilter{Tag: "go"}, f)
	assert.Equal(t, FilterTag, typ)
	assert.Equal(t, "go", term)

	f, typ, _ = blogRoute{kind: routeIndex}.filter()
	assert.Equal(t, PostFilter{}, f)
	assert.Equal(t, "", typ)
}

func TestNewPaginator(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		raw      string
		page     int
		pages    int
		hasPrev  bool
		hasNext  bool
		wantSkip int
	}{
		{"empty", 0, "", 1, 1, false, false, 0},
		{"first", 25, "", 1, 3, false, true, 0},
		{"middle", 25, "2", 2, 3, true, true, 10},
		{"last", 25, "3", 3, 3, true, false, 20},
		{"past the end", 25, "99", 3, 3, true, false, 20},
		{"garbage", 25, "abc", 1, 3, false, true, 0},
		{"negative", 25, "-1", 1, 3, false, true, 0},
		{"exact", 20, "2", 2, 2, true, false, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPaginator(tt.total, DefaultPageSize, tt.raw)
			assert.Equal(t, tt.page, p.Page)
			assert.Equal(t, tt.pages, p.NumPages)
			assert.Equal(t, tt.hasPrev, p.HasPrev())
			assert.Equal(t, tt.hasNext, p.HasNext())
			assert.Equal(t, tt.wantSkip, p.Offset())
		})
	}
}

func TestSummarize(t *testing.T) {
	p := BlogPost{Body: "<p>The <b>body</b> text</p>"}
	assert.Equal(t, "The body text", p.Summarize(100))

	p.SearchDescription = "Search text"
	assert.Equal(t, "Search text", p.Summarize(100))

	p.Excerpt = "<p>Excerpt &amp; more</p>"
	assert.Equal(t, "Excerpt & more", p.Summarize(100))

	long := BlogPost{Body: strings.Repeat("word ", 50)}
	got := long.Summarize(20)
	assert.Equal(t, 20, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestBlogPostingJsonLD(t *testing.T) {
	post := BlogPost{
		Page: Page{
			Title:            "Hello",
			SEOTitle:         "Hello, SEO",
			Owner:            "ana",
			Link:             "/news/hello/",
			FirstPublishedAt: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
		},
		Body:  "<p>Body</p>",
		Date:  time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Tags:  []Tag{NewTag("Go")},
		Image: &Image{Filename: "cover.jpg"},
	}
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(BlogPostingJsonLD(post, testSite, fakeRenderer{})), &data))

	assert.Equal(t, "BlogPosting", data["@type"])
	assert.Equal(t, "https://example.com/news/hello/", data["@id"])
	assert.Equal(t, "Hello, SEO", data["name"])
	assert.Equal(t, "Body", data["headline"])
	assert.Equal(t, "<p>Body</p>", data["articleBody"])
	assert.Equal(t, "2024-03-05T09:00:00Z", data["datePublished"])
	assert.Equal(t, "Go", data["keywords"])
	assert.Equal(t, "https://example.com/img/original/cover.jpg", data["image"])
	assert.Equal(t, map[string]any{"@type": "Person", "name": "ana"}, data["author"])

	data = nil
	require.NoError(t, json.Unmarshal([]byte(BlogPostingJsonLD(BlogPost{Page: Page{Title: "x"}}, testSite, nil)), &data))
	assert.Equal(t, "x", data["name"])
	assert.NotContains(t, data, "image")
	assert.NotContains(t, data, "author")
}
