package wapps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(format string, args ...any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, format, args...)
		return err
	})
}

func postSlugs(posts []BlogPost) string {
	slugs := make([]string, len(posts))
	for i, p := range posts {
		slugs[i] = p.Slug
	}
	return strings.Join(slugs, ",")
}

// stubViews renders each view as a one-line summary that tests can match.
func stubViews() ViewFuncs {
	return ViewFuncs{
		Home: func(v HomeView) templ.Component {
			var names []string
			for _, b := range v.Blogs {
				names = append(names, b.Title)
			}
			for _, p := range v.Pages {
				names = append(names, p.Title)
			}
			return text("home:%s|%s", v.Meta.FullTitle(), strings.Join(names, ","))
		},
		BlogIndex: func(v BlogListing) templ.Component {
			return text("index:%s|%s=%s|page %d/%d|%s", v.Meta.FullTitle(), v.FilterType, v.FilterTerm,
				v.Paginator.Page, v.Paginator.NumPages, postSlugs(v.Posts))
		},
		Post: func(v PostView) templ.Component {
			return text("post:%s|%s|%s", v.Post.Slug, v.Meta.FullTitle(), v.Meta.Description())
		},
		StaticPage: func(v StaticPageView) templ.Component {
			return text("page:%s|%s", v.Page.Slug, v.Meta.Description())
		},
		AdminLogin:     func(showError bool, csrf string) templ.Component { return text("login:%t", showError) },
		AdminDashboard: func(v AdminDashboardView) templ.Component { return text("dashboard:%s", v.Message) },
		AdminPostForm:  func(v AdminPostForm) templ.Component { return text("postform:%s", v.Error) },
		AdminPageForm:  func(v AdminPageForm) templ.Component { return text("pageform:%s", v.Error) },
		AdminIdentity:  func(v AdminIdentityForm) templ.Component { return text("identity:%s", v.Identity.Name) },
		AdminImages:    func(images []Image, csrf string) templ.Component { return text("images:%d", len(images)) },
		NotFound:       func() templ.Component { return text("notfound") },
		ServerError:    func() templ.Component { return text("servererror") },
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	app := New(SiteConfig{
		Name:          "Example",
		URL:           "http://example.com",
		Description:   "An example site",
		DatabasePath:  filepath.Join(dir, "test.db"),
		AdminPassword: "secret",
		SessionSecret: "0123456789abcdef0123456789abcdef",
	}, stubViews(), WithStaticDir(dir), WithLogger(zerolog.Nop()))
	require.NoError(t, app.Setup())
	t.Cleanup(func() { app.Close() })
	return app
}

func defaultSite(t *testing.T, app *App) Site {
	t.Helper()
	site, err := app.Store.SiteForHost("example.com")
	require.NoError(t, err)
	return site
}

func newBlog(t *testing.T, app *App, site Site, slug, title string) Blog {
	t.Helper()
	blog := Blog{Page: Page{SiteID: site.ID, Slug: slug, Title: title, Live: true}, Intro: "<p>" + title + " intro</p>"}
	require.NoError(t, app.Store.SaveBlog(&blog))
	return blog
}

func get(t *testing.T, app *App, target string) *httptest.ResponseRecorder {
	t.Helper()
	return getHost(t, app, "example.com", target)
}

func getHost(t *testing.T, app *App, host, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = host
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

func TestSetupRequiresSecrets(t *testing.T) {
	app := New(SiteConfig{DatabasePath: filepath.Join(t.TempDir(), "x.db")}, stubViews(), WithLogger(zerolog.Nop()))
	assert.Error(t, app.Setup())
}

func TestHome(t *testing.T) {
	app := newTestApp(t)
	site := defaultSite(t, app)
	newBlog(t, app, site, "news", "News")
	page := StaticPage{Page: Page{SiteID: site.ID, Slug: "about", Title: "About", Live: true}, Body: "x"}
	require.NoError(t, app.Store.SaveStaticPage(&page))

	rec := get(t, app, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "home:Example|News,About", rec.Body.String())
}

func TestBlogListing(t *testing.T) {
	app := newTestApp(t)
	site := defaultSite(t, app)
	blog := newBlog(t, app, site, "news", "News")
	cat := Category{Name: "Guides"}
	require.NoError(t, app.Store.SaveCategory(&cat))
	for i := 1; i <= 12; i++ {
		addPost(t, app.Store, blog, fmt.Sprintf("p%02d", i), fmt.Sprintf("2024-01-%02d", i), func(p *BlogPost) {
			if i%2 == 0 {
				p.Tags = ParseTagList("even")
				p.Owner = "ana"
			}
			if i == 3 {
				p.Categories = []Category{cat}
			}
		})
	}
	addPost(t, app.Store, blog, "old", "2023-06-01", nil)

	tests := []struct {
		target string
		want   string
	}{
		{"/news/", "index:News | Example|=|page 1/2|p12,p11,p10,p09,p08,p07,p06,p05,p04,p03"},
		{"/news/?page=2", "index:News | Example|=|page 2/2|p02,p01,old"},
		{"/news/?page=9", "index:News | Example|=|page 2/2|p02,p01,old"},
		{"/news/?page=x", "index:News | Example|=|page 1/2|p12,p11,p10,p09,p08,p07,p06,p05,p04,p03"},
		{"/news/2023/", "index:News | Example|date=2023|page 1/1|old"},
		{"/news/2024/01/", "index:News | Example|date=January 2024|page 1/2|p12,p11,p10,p09,p08,p07,p06,p05,p04,p03"},
		{"/news/2024/01/05/", "index:News | Example|date=January 5, 2024|page 1/1|p05"},
		{"/news/2024/02/", "index:News | Example|date=February 2024|page 1/1|"},
		{"/news/tag/even/", "index:News | Example|tag=even|page 1/1|p12,p10,p08,p06,p04,p02"},
		{"/news/category/guides/", "index:News | Example|category=guides|page 1/1|p03"},
		{"/news/author/ana/", "index:News | Example|author=ana|page 1/1|p12,p10,p08,p06,p04,p02"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, app, tt.target)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestBlogPostAndNotFound(t *testing.T) {
	app := newTestApp(t)
	site := defaultSite(t, app)
	blog := newBlog(t, app, site, "news", "News")
	addPost(t, app.Store, blog, "hello", "2024-03-05", func(p *BlogPost) { p.Excerpt = "Say hello" })
	addPost(t, app.Store, blog, "draft", "2024-03-06", func(p *BlogPost) { p.Live = false })

	rec := get(t, app, "/news/hello/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "post:hello|Post hello | Example|Say hello", rec.Body.String())

	for _, target := range []string{"/news/draft/", "/news/missing/", "/news/2024/13/", "/news/a/b/", "/missing/", "/news/hello/extra/"} {
		rec := get(t, app, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "notfound", rec.Body.String(), target)
	}
}

func TestTrailingSlashRedirect(t *testing.T) {
	app := newTestApp(t)
	newBlog(t, app, defaultSite(t, app), "news", "News")

	rec := get(t, app, "/news")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/news/", rec.Header().Get("Location"))
}

func TestStaticPage(t *testing.T) {
	app := newTestApp(t)
	site := defaultSite(t, app)
	page := StaticPage{Page: Page{SiteID: site.ID, Slug: "about", Title: "About", Live: true}, Intro: "Who we are", Body: "x"}
	require.NoError(t, app.Store.SaveStaticPage(&page))

	rec := get(t, app, "/about/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page:about|Who we are", rec.Body.String())
}

func TestFeeds(t *testing.T) {
	app := newTestApp(t)
	site := defaultSite(t, app)
	blog := newBlog(t, app, site, "news", "News")
	img := Image{Filename: "cover.jpg", UploadedAt: "2024-01-01T00:00:00Z"}
	require.NoError(t, app.Store.SaveImage(&img))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 23; i++ {
		addPost(t, app.Store, blog, fmt.Sprintf("p%02d", i), base.AddDate(0, 0, i).Format("2006-01-02"), func(p *BlogPost) {
			if i == 22 {
				p.Image = &img
			}
		})
	}

	rec := get(t, app, "/news/rss/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/rss+xml")
	body := rec.Body.String()
	assert.Equal(t, DefaultFeedSize, strings.Count(body, "<item>"))
	assert.Equal(t, 1, strings.Count(body, "<enclosure "))
	assert.Contains(t, body, `<enclosure url="http://example.com/public/uploads/cover.jpg" type="image/png" length="0">`)
	assert.Contains(t, body, "<title>News | Example</title>")
	assert.Contains(t, body, "<description>News intro</description>")
	assert.Less(t, strings.Index(body, "/news/p22/"), strings.Index(body, "/news/p21/"))
	assert.NotContains(t, body, "/news/p02/")

	rec = get(t, app, "/news/atom/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/atom+xml")
	assert.Equal(t, DefaultFeedSize, strings.Count(rec.Body.String(), "<entry>"))
}

func TestSitemapAndRobots(t *testing.T) {
	app := newTestApp(t)
	site := defaultSite(t, app)
	blog := newBlog(t, app, site, "news", "News")
	addPost(t, app.Store, blog, "hello", "2024-03-05", nil)
	addPost(t, app.Store, blog, "draft", "2024-03-06", func(p *BlogPost) { p.Live = false })
	page := StaticPage{Page: Page{SiteID: site.ID, Slug: "about", Title: "About", Live: true}, Body: "x"}
	require.NoError(t, app.Store.SaveStaticPage(&page))

	rec := get(t, app, "/sitemap.xml")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<loc>http://example.com/</loc>")
	assert.Contains(t, body, "<loc>http://example.com/news/</loc>")
	assert.Contains(t, body, "<loc>http://example.com/news/hello/</loc><lastmod>2024-03-05</lastmod>")
	assert.Contains(t, body, "<loc>http://example.com/about/</loc>")
	assert.NotContains(t, body, "draft")

	rec = get(t, app, "/robots.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sitemap: http://example.com/sitemap.xml")
}

func TestSitesAreResolvedByHost(t *testing.T) {
	app := newTestApp(t)
	newBlog(t, app, defaultSite(t, app), "news", "News")

	other := Site{Hostname: "other.test", Port: 80, SiteName: "Other"}
	require.NoError(t, app.Store.SaveSite(&other))
	require.NoError(t, app.Store.SaveIdentity(IdentitySettings{SiteID: other.ID, Name: "Other Site"}))
	newBlog(t, app, other, "journal", "Journal")

	rec := getHost(t, app, "other.test", "/")
	assert.Equal(t, "home:Other Site|Journal", rec.Body.String())
	assert.Equal(t, http.StatusNotFound, getHost(t, app, "other.test", "/news/").Code)
	assert.Equal(t, http.StatusOK, getHost(t, app, "other.test", "/journal/").Code)

	// Unknown hosts fall back to the default site.
	rec = getHost(t, app, "unknown.test", "/")
	assert.Equal(t, "home:Example|News", rec.Body.String())
}

func postForm(t *testing.T, app *App, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	form.Set("_csrf", "test-token")
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Host = "example.com"
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "_csrf", Value: "test-token"})
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

func TestAdminLoginRateLimit(t *testing.T) {
	app := newTestApp(t)

	rec := get(t, app, "/admin/")
	assert.Equal(t, "login:false", rec.Body.String())

	for i := 0; i < 5; i++ {
		rec := postForm(t, app, "/admin/login/", url.Values{"password": {"wrong"}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "login:true", rec.Body.String())
	}
	rec = postForm(t, app, "/admin/login/", url.Values{"password": {"secret"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAdminLoginRequiresCSRF(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/login/", strings.NewReader("password=secret"))
	req.Host = "example.com"
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRoutesRequireSession(t *testing.T) {
	app := newTestApp(t)
	for _, target := range []string{"/admin/post/new/", "/admin/page/new/", "/admin/identity/", "/admin/images/"} {
		rec := get(t, app, target)
		assert.Equal(t, http.StatusSeeOther, rec.Code, target)
		assert.Equal(t, "/admin/", rec.Header().Get("Location"), target)
	}
}
