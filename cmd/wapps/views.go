package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/wapps"
)

// plainViews renders bare HTML pages for running the server without a
// project of templ templates.
func plainViews() wapps.ViewFuncs {
	return wapps.ViewFuncs{
		Home: func(v wapps.HomeView) templ.Component {
			return layout(v.Meta, func(w *strings.Builder) {
				fmt.Fprintf(w, "<h1>%s</h1><p>%s</p><ul>", esc(v.Meta.SiteTitle()), esc(v.Meta.Description()))
				for _, b := range v.Blogs {
					fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`, esc(b.Link), esc(b.Title))
				}
				for _, p := range v.Pages {
					fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`, esc(p.Link), esc(p.Title))
				}
				w.WriteString("</ul>")
			})
		},
		BlogIndex: func(v wapps.BlogListing) templ.Component {
			return layout(v.Meta, func(w *strings.Builder) {
				fmt.Fprintf(w, "<h1>%s</h1>", esc(v.Blog.Title))
				if v.FilterType != "" {
					fmt.Fprintf(w, "<p>%s: %s</p>", esc(v.FilterType), esc(v.FilterTerm))
				}
				for _, p := range v.Posts {
					fmt.Fprintf(w, `<article><h2><a href="%s">%s</a></h2><time>%s</time><p>%s</p></article>`,
						esc(p.Link), esc(p.Title), p.Date.Format("2006-01-02"), esc(p.Summarize(200)))
				}
				if v.Paginator.HasPrev() {
					fmt.Fprintf(w, `<a href="?page=%d">Newer</a> `, v.Paginator.Page-1)
				}
				if v.Paginator.HasNext() {
					fmt.Fprintf(w, `<a href="?page=%d">Older</a>`, v.Paginator.Page+1)
				}
			})
		},
		Post: func(v wapps.PostView) templ.Component {
			return layout(v.Meta, func(w *strings.Builder) {
				fmt.Fprintf(w, `<script type="application/ld+json">%s</script>`, v.JsonLD)
				fmt.Fprintf(w, "<article><h1>%s</h1><time>%s</time>%s</article>",
					esc(v.Post.Title), v.Post.Date.Format("2006-01-02"), v.Post.Body)
			})
		},
		StaticPage: func(v wapps.StaticPageView) templ.Component {
			return layout(v.Meta, func(w *strings.Builder) {
				fmt.Fprintf(w, "<h1>%s</h1><p>%s</p>%s", esc(v.Page.Title), esc(v.Page.Intro), v.Page.Body)
			})
		},
		AdminLogin: func(showError bool, csrf string) templ.Component {
			return bare("Login", func(w *strings.Builder) {
				if showError {
					w.WriteString("<p>Wrong password.</p>")
				}
				fmt.Fprintf(w, `<form method="post" action="/admin/login/">%s<input type="password" name="password"><button>Login</button></form>`, csrfField(csrf))
			})
		},
		AdminDashboard: func(v wapps.AdminDashboardView) templ.Component {
			return bare("Admin", func(w *strings.Builder) {
				if v.Message != "" {
					fmt.Fprintf(w, "<p>%s</p>", esc(v.Message))
				}
				w.WriteString(`<p><a href="/admin/page/new/">New page</a> <a href="/admin/identity/">Identity</a> <a href="/admin/images/">Images</a></p><ul>`)
				for _, b := range v.Blogs {
					fmt.Fprintf(w, `<li>%s <a href="/admin/post/new/?blog=%d">New post</a></li>`, esc(b.Title), b.ID)
				}
				for _, p := range v.Posts {
					fmt.Fprintf(w, `<li><a href="/admin/post/%d/">%s</a></li>`, p.ID, esc(p.Title))
				}
				for _, p := range v.Pages {
					fmt.Fprintf(w, `<li><a href="/admin/page/%d/">%s</a></li>`, p.ID, esc(p.Title))
				}
				w.WriteString("</ul>")
			})
		},
		AdminPostForm: func(v wapps.AdminPostForm) templ.Component {
			return bare("Post", func(w *strings.Builder) {
				p := v.Post
				fmt.Fprintf(w, `<p>%s</p><form method="post" action="/admin/post/save/">%s`, esc(v.Error), csrfField(v.CsrfToken))
				hidden(w, "id", strconv.FormatInt(p.ID, 10))
				hidden(w, "blog_id", strconv.FormatInt(p.BlogID, 10))
				input(w, "title", p.Title)
				input(w, "slug", p.Slug)
				input(w, "date", p.Date.Format("2006-01-02"))
				input(w, "tags", wapps.JoinTags(p.Tags))
				fmt.Fprintf(w, `<textarea name="body">%s</textarea>`, esc(p.Body))
				w.WriteString(`<label><input type="checkbox" name="live" value="1"> Live</label><button>Save</button></form>`)
			})
		},
		AdminPageForm: func(v wapps.AdminPageForm) templ.Component {
			return bare("Page", func(w *strings.Builder) {
				p := v.Page
				fmt.Fprintf(w, `<p>%s</p><form method="post" action="/admin/page/save/">%s`, esc(v.Error), csrfField(v.CsrfToken))
				hidden(w, "id", strconv.FormatInt(p.ID, 10))
				input(w, "title", p.Title)
				input(w, "slug", p.Slug)
				input(w, "intro", p.Intro)
				input(w, "seo_type", p.SEOType)
				fmt.Fprintf(w, `<textarea name="body">%s</textarea>`, esc(p.Body))
				w.WriteString(`<label><input type="checkbox" name="live" value="1"> Live</label><button>Save</button></form>`)
			})
		},
		AdminIdentity: func(v wapps.AdminIdentityForm) templ.Component {
			return bare("Identity", func(w *strings.Builder) {
				fmt.Fprintf(w, `<p>%s</p><form method="post" action="/admin/identity/">%s`, esc(v.Message), csrfField(v.CsrfToken))
				input(w, "name", v.Identity.Name)
				input(w, "description", v.Identity.Description)
				input(w, "tags", wapps.JoinTags(v.Identity.Tags))
				w.WriteString(`<button>Save</button></form>`)
			})
		},
		AdminImages: func(images []wapps.Image, csrf string) templ.Component {
			return bare("Images", func(w *strings.Builder) {
				fmt.Fprintf(w, `<form method="post" action="/admin/images/upload/" enctype="multipart/form-data">%s<input type="file" name="image"><button>Upload</button></form><ul>`, csrfField(csrf))
				for _, img := range images {
					fmt.Fprintf(w, "<li>#%d %s (%dx%d, %s)</li>", img.ID, esc(img.Filename), img.Width, img.Height, img.HumanSize())
				}
				w.WriteString("</ul>")
			})
		},
		NotFound: func() templ.Component {
			return bare("Not found", func(w *strings.Builder) { w.WriteString("<h1>Not found</h1>") })
		},
		ServerError: func() templ.Component {
			return bare("Error", func(w *strings.Builder) { w.WriteString("<h1>Something went wrong</h1>") })
		},
	}
}

func esc(s string) string { return templ.EscapeString(s) }

func csrfField(token string) string {
	return `<input type="hidden" name="_csrf" value="` + esc(token) + `">`
}

func hidden(w *strings.Builder, name, value string) {
	fmt.Fprintf(w, `<input type="hidden" name="%s" value="%s">`, name, esc(value))
}

func input(w *strings.Builder, name, value string) {
	fmt.Fprintf(w, `<label>%s <input name="%s" value="%s"></label>`, name, name, esc(value))
}

func layout(meta *wapps.Metadata, body func(*strings.Builder)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		var w strings.Builder
		fmt.Fprintf(&w, `<!doctype html><html><head><meta charset="utf-8"><title>%s</title>`, esc(meta.FullTitle()))
		fmt.Fprintf(&w, `<meta name="description" content="%s">`, esc(meta.Description()))
		if kw := meta.Keywords(); kw != "" {
			fmt.Fprintf(&w, `<meta name="keywords" content="%s">`, esc(kw))
		}
		if img := meta.ImageURL(); img != "" {
			fmt.Fprintf(&w, `<meta property="og:image" content="%s">`, esc(img))
		}
		w.WriteString("</head><body>")
		body(&w)
		w.WriteString("</body></html>")
		_, err := io.WriteString(out, w.String())
		return err
	})
}

func bare(title string, body func(*strings.Builder)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		var w strings.Builder
		fmt.Fprintf(&w, `<!doctype html><html><head><meta charset="utf-8"><title>%s</title></head><body>`, esc(title))
		body(&w)
		w.WriteString("</body></html>")
		_, err := io.WriteString(out, w.String())
		return err
	})
}
