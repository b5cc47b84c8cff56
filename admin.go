package wapps

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// AdminDashboardView lists everything an admin can edit on the current site.
type AdminDashboardView struct {
	Site      Site
	Blogs     []Blog
	Posts     []BlogPost
	Pages     []StaticPage
	Message   string
	CsrfToken string
}

// AdminPostForm is the post editor.
type AdminPostForm struct {
	Post       BlogPost
	Blogs      []Blog
	Categories []Category
	Images     []Image
	Error      string
	CsrfToken  string
}

// AdminPageForm is the static page editor.
type AdminPageForm struct {
	Page      StaticPage
	Images    []Image
	Error     string
	CsrfToken string
}

// AdminIdentityForm is the site identity editor.
type AdminIdentityForm struct {
	Identity  IdentitySettings
	Images    []Image
	Message   string
	CsrfToken string
}

// requireAdmin redirects to the login page unless the session is
// authenticated.
func requireAdmin(c echo.Context) bool {
	if IsAdmin(c) {
		return true
	}
	_ = c.Redirect(http.StatusSeeOther, "/admin/")
	return false
}

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(false, CsrfToken(c)))
	}
	return a.renderAdminDashboard(c, c.QueryParam("msg"))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setAdminSession(c); err != nil {
			return err
		}
		a.Log.Info().Str("ip", c.RealIP()).Msg("admin login")
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	a.Log.Warn().Str("ip", c.RealIP()).Msg("admin login failed")
	return Render(c, a.Views.AdminLogin(true, CsrfToken(c)))
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func (a *App) renderAdminDashboard(c echo.Context, msg string) error {
	site, err := a.siteFor(c)
	if err != nil {
		return err
	}
	blogs, err := a.Store.ListAllBlogs(site.ID)
	if err != nil {
		return err
	}
	var posts []BlogPost
	for _, b := range blogs {
		bp, err := a.Store.ListAllPosts(b.ID)
		if err != nil {
			return err
		}
		posts = append(posts, bp...)
	}
	pages, err := a.Store.ListStaticPages(site.ID, false)
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminDashboard(AdminDashboardView{
		Site:      site,
		Blogs:     blogs,
		Posts:     posts,
		Pages:     pages,
		Message:   msg,
		CsrfToken: CsrfToken(c),
	}))
}

func dashboardRedirect(c echo.Context, msg string) error {
	return c.Redirect(http.StatusSeeOther, "/admin/?msg="+url.QueryEscape(msg))
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func formID(c echo.Context, name string) int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(c.FormValue(name)), 10, 64)
	return id
}

// formImage resolves an image_id form value. Unknown ids clear the image.
func (a *App) formImage(c echo.Context, name string) *Image {
	id := formID(c, name)
	if id == 0 {
		return nil
	}
	img, err := a.Store.GetImage(id)
	if err != nil {
		return nil
	}
	return &img
}

// --- Posts ---

func (a *App) handleAdminNewPost(c echo.Context) error {
	if !requireAdmin(c) {
		return nil
	}
	post := BlogPost{Date: time.Now(), BlogID: formID(c, "blog")}
	return a.renderPostForm(c, post, "")
}

func (a *App) handleAdminPost(c echo.Context) error {
	if !requireAdmin(c) {
		return nil
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	post, err := a.Store.GetPostAny(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return a.renderPostForm(c, post, "")
}

func (a *App) renderPostForm(c echo.Context, post BlogPost, msg string) error {
	site, err := a.siteFor(c)
	if err != nil {
		return err
	}
	blogs, err := a.Store.ListAllBlogs(site.ID)
	if err != nil {
		return err
	}
	categories, err := a.Store.ListCategories()
	if err != nil {
		return err
	}
	images, err := a.Store.ListImages()
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminPostForm(AdminPostForm{
		Post:       post,
		Blogs:      blogs,
		Categories: categories,
		Images:     images,
		Error:      msg,
		CsrfToken:  CsrfToken(c),
	}))
}

func (a *App) handleAdminSavePost(c echo.Context) error {
	if !requireAdmin(c) {
		return nil
	}
	if err := c.Request().ParseForm(); err != nil {
		return err
	}
	post := BlogPost{
		Page: Page{
			ID:                formID(c, "id"),
			Slug:              strings.TrimSpace(c.FormValue("slug")),
			Title:             strings.TrimSpace(c.FormValue("title")),
			SEOTitle:          strings.TrimSpace(c.FormValue("seo_title")),
			SearchDescription: strings.TrimSpace(c.FormValue("search_description")),
			Owner:             strings.TrimSpace(c.FormValue("owner")),
			Live:              c.FormValue("live") != "",
		},
		BlogID:  formID(c, "blog_id"),
		Excerpt: c.FormValue("excerpt"),
		Body:    c.FormValue("body"),
		Tags:    ParseTagList(c.FormValue("tags")),
		Image:   a.formImage(c, "image_id"),
	}
	if post.ID != 0 {
		// Keep the original publication time across edits.
		if prev, err := a.Store.GetPostAny(post.ID); err == nil {
			post.FirstPublishedAt = prev.FirstPublishedAt
		}
	}

	date := strings.TrimSpace(c.FormValue("date"))
	if date == "" {
		post.Date = time.Now()
	} else {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			return a.renderPostForm(c, post, "Invalid date format. Use YYYY-MM-DD.")
		}
		post.Date = d
	}

	form := c.Request().Form
	for _, v := range form["category"] {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			post.Categories = append(post.Categories, Category{ID: id})
		}
	}
	titles, urls, pages := form["link_title"], form["link_url"], form["link_page"]
	for i := range titles {
		l := RelatedLink{Title: strings.TrimSpace(titles[i])}
		if i < len(urls) {
			l.ExternalURL = strings.TrimSpace(urls[i])
		}
		if i < len(pages) {
			l.PageID, _ = strconv.ParseInt(pages[i], 10, 64)
		}
		if l.Title == "" && l.ExternalURL == "" && l.PageID == 0 {
			continue
		}
		post.RelatedLinks = append(post.RelatedLinks, l)
	}

	if post.Slug == "" && Slugify(post.Title) == "" {
		return a.renderPostForm(c, post, "Slug is required. Add a title or slug.")
	}
	if err := a.Store.SavePost(&post); err != nil {
		if errors.Is(err, ErrReservedSlug) {
			return a.renderPostForm(c, post, "That slug is reserved. Choose another.")
		}
		return err
	}
	a.Log.Info().Int64("id", post.ID).Str("slug", post.Slug).Bool("live", post.Live).Msg("post saved")
	return dashboardRedirect(c, "saved")
}

// handleAdminDeletePage deletes a post or static page; the route decides
// which.
func (a *App) handleAdminDeletePage(c echo.Context) error {
	if !requireAdmin(c) {
		return nil
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if strings.HasPrefix(c.Path(), "/admin/post/") {
		err = a.Store.DeletePost(id)
	} else {
		err = a.Store.DeleteStaticPage(id)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	a.Log.Info().Int64("id", id).Msg("page deleted")
	return a.renderAdminDashboard(c, "deleted")
}

// --- Static pages ---

func (a *App) handleAdminNewPage(c echo.Context) error {
	if !requireAdmin(c) {
		return nil
	}
	return a.renderPageForm(c, StaticPage{SEOType: SEOTypeArticle}, "")
}

func (a *App) handleAdminPage(c echo.Context) error {
	if !requireAdmin(c) {
		return nil
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	page, err := a.Store.GetStaticPageAny(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return a.renderPageForm(c, page, "")
}

func (a *App) renderPageForm(c echo.Context, page StaticPage, msg string) error {
	images, err := a.Store.ListImages()
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminPageForm(AdminPageForm{
		Page:      page,
		Images:    images,
		Error:     msg,
		CsrfToken: CsrfToken(c),
	}))
}

func (a *App) handleAdminSavePage(c echo.Context) error {
	if !requireAdmin(c) {
		return nil
	}
	site, err := a.siteFor(c)
	if err != nil {
		return err
	}
	page := StaticPage{
		Page: Page{
			ID:                formID(c, "id"),
			SiteID:            site.ID,
			Slug:              strings.TrimSpace(c.FormValue("slug")),
			Title:             strings.TrimSpace(c.FormValue("title")),
			SEOTitle:          strings.TrimSpace(c.FormValue("seo_title")),
			SearchDescription: strings.TrimSpace(c.FormValue("search_description")),
			Owner:             strings.TrimSpace(c.FormValue("owner")),
			Live:              c.FormValue("live") != "",
		},
		Intro:     strings.TrimSpace(c.FormValue("intro")),
		Body:      c.FormValue("body"),
		Image:     a.formImage(c, "image_id"),
		ImageFull: c.FormValue("image_full") != "",
		SEOType:   c.FormValue("seo_type"),
		Tags:      ParseTagList(c.FormValue("tags")),
	}
	if page.ID != 0 {
		if prev, err := a.Store.GetStaticPageAny(page.ID); err == nil {
			page.FirstPublishedAt = prev.FirstPublishedAt
		}
	}
	if page.Slug == "" && Slugify(page.Title) == "" {
		return a.renderPageForm(c, page, "Slug is required. Add a title or slug.")
	}
	if page.SEOType != "" && page.SEOType != SEOTypeArticle && page.SEOType != SEOTypeService {
		return a.renderPageForm(c, page, "Unknown SEO type.")
	}
	if err := a.Store.SaveStaticPage(&page); err != nil {
		return err
	}
	a.Log.Info().Int64("id", page.ID).Str("slug", page.Slug).Bool("live", page.Live).Msg("page saved")
	return dashboardRedirect(c, "saved")
}

// --- Identity ---

func (a *App) handleAdminIdentity(c echo.Context) error {
	if !requireAdmin(c) {
		return nil
	}
	return a.renderIdentityForm(c, "")
}

func (a *App) renderIdentityForm(c echo.Context, msg string) error {
	site, err := a.siteFor(c)
	if err != nil {
		return err
	}
	identity, err := a.Store.IdentityFor(site.ID)
	if err != nil {
		return err
	}
	images, err := a.Store.ListImages()
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminIdentity(AdminIdentityForm{
		Identity:  identity,
		Images:    images,
		Message:   msg,
		CsrfToken: CsrfToken(c),
	}))
}

func (a *App) handleAdminSaveIdentity(c echo.Context) error {
	if !requireAdmin(c) {
		return nil
	}
	site, err := a.siteFor(c)
	if err != nil {
		return err
	}
	identity := IdentitySettings{
		SiteID:      site.ID,
		Name:        strings.TrimSpace(c.FormValue("name")),
		Description: strings.TrimSpace(c.FormValue("description")),
		Logo:        a.formImage(c, "logo_id"),
		Tags:        ParseTagList(c.FormValue("tags")),
	}
	if err := a.Store.SaveIdentity(identity); err != nil {
		return err
	}
	a.Identity.Invalidate(site.ID)
	a.Log.Info().Int64("site", site.ID).Msg("identity saved")
	return a.renderIdentityForm(c, "saved")
}
