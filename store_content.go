package wapps

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Page kinds stored in pages.kind.
const (
	kindBlog       = "blog"
	kindBlogPost   = "blog_post"
	kindStaticPage = "static_page"
)

// ErrReservedSlug is returned when a post slug would shadow a blog route.
var ErrReservedSlug = errors.New("wapps: slug is reserved")

// savePage inserts or updates the shared pages row, setting p.ID on insert.
func savePage(tx *sql.Tx, p *Page, parentID int64, kind string) error {
	if p.Slug == "" {
		p.Slug = Slugify(p.Title)
	}
	if p.Slug == "" {
		return fmt.Errorf("wapps: %s needs a title or slug", kind)
	}
	if p.Live && p.FirstPublishedAt.IsZero() {
		p.FirstPublishedAt = time.Now()
	}
	if p.ID == 0 {
		res, err := tx.Exec(`INSERT INTO pages (site_id, parent_id, kind, slug, title, seo_title, search_description, live, first_published_at, owner)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.SiteID, parentID, kind, p.Slug, p.Title, p.SEOTitle, p.SearchDescription, boolInt(p.Live), formatTime(p.FirstPublishedAt), p.Owner)
		if err != nil {
			return err
		}
		p.ID, err = res.LastInsertId()
		return err
	}
	_, err := tx.Exec(`UPDATE pages SET site_id = ?, parent_id = ?, slug = ?, title = ?, seo_title = ?, search_description = ?, live = ?, first_published_at = ?, owner = ?
WHERE id = ? AND kind = ?`,
		p.SiteID, parentID, p.Slug, p.Title, p.SEOTitle, p.SearchDescription, boolInt(p.Live), formatTime(p.FirstPublishedAt), p.Owner, p.ID, kind)
	return err
}

func setPageTags(tx *sql.Tx, pageID int64, tags []Tag) error {
	if _, err := tx.Exec(`DELETE FROM page_tags WHERE page_id = ?`, pageID); err != nil {
		return err
	}
	ids, err := ensureTags(tx, tags)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.Exec(`INSERT INTO page_tags (page_id, tag_id) VALUES (?, ?)`, pageID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) pageTags(pageID int64) ([]Tag, error) {
	return s.tagsFor(`SELECT t.name, t.slug FROM page_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.page_id = ? ORDER BY t.name`, pageID)
}

// DeletePage removes a page of any kind. Posts under a deleted blog go with it.
func (s *Store) DeletePage(id int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM pages WHERE parent_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM pages WHERE id = ?`, id)
		return err
	})
}

// DeletePost removes a blog post.
func (s *Store) DeletePost(id int64) error {
	return s.deleteKind(id, kindBlogPost)
}

// DeleteStaticPage removes a static page.
func (s *Store) DeleteStaticPage(id int64) error {
	return s.deleteKind(id, kindStaticPage)
}

func (s *Store) deleteKind(id int64, kind string) error {
	res, err := s.db.Exec(`DELETE FROM pages WHERE id = ? AND kind = ?`, id, kind)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const pageColumns = `p.id, p.site_id, p.slug, p.title, p.seo_title, p.search_description, p.live, p.first_published_at, p.owner`

func scanPageArgs(p *Page, live *int, published *string) []any {
	return []any{&p.ID, &p.SiteID, &p.Slug, &p.Title, &p.SEOTitle, &p.SearchDescription, live, published, &p.Owner}
}

func finishPage(p *Page, live int, published string, link string) {
	p.Live = live == 1
	p.FirstPublishedAt = parseTime(published)
	p.Link = link
}

// --- Blogs ---

// SaveBlog inserts or updates a blog index page.
func (s *Store) SaveBlog(b *Blog) error {
	return s.withTx(func(tx *sql.Tx) error {
		if err := savePage(tx, &b.Page, 0, kindBlog); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO blogs (page_id, intro) VALUES (?, ?) ON CONFLICT(page_id) DO UPDATE SET intro = excluded.intro`,
			b.ID, b.Intro)
		return err
	})
}

const blogSelect = `SELECT ` + pageColumns + `, b.intro FROM pages p JOIN blogs b ON b.page_id = p.id `

func scanBlog(row rowScanner) (Blog, error) {
	var b Blog
	var live int
	var published string
	if err := row.Scan(append(scanPageArgs(&b.Page, &live, &published), &b.Intro)...); err != nil {
		return Blog{}, err
	}
	finishPage(&b.Page, live, published, "/"+b.Slug+"/")
	return b, nil
}

// GetBlogBySlug returns a live blog of a site.
func (s *Store) GetBlogBySlug(siteID int64, slug string) (Blog, error) {
	return scanBlog(s.db.QueryRow(blogSelect+`WHERE p.site_id = ? AND p.slug = ? AND p.parent_id = 0 AND p.live = 1`, siteID, slug))
}

// GetBlog returns a blog by id regardless of live status (for admin).
func (s *Store) GetBlog(id int64) (Blog, error) {
	return scanBlog(s.db.QueryRow(blogSelect+`WHERE p.id = ?`, id))
}

// ListLiveBlogs returns the live blogs of a site ordered by title.
func (s *Store) ListLiveBlogs(siteID int64) ([]Blog, error) {
	return s.queryBlogs(blogSelect+`WHERE p.site_id = ? AND p.live = 1 ORDER BY p.title`, siteID)
}

// ListAllBlogs returns every blog of a site (for admin).
func (s *Store) ListAllBlogs(siteID int64) ([]Blog, error) {
	return s.queryBlogs(blogSelect+`WHERE p.site_id = ? ORDER BY p.title`, siteID)
}

func (s *Store) queryBlogs(query string, args ...any) ([]Blog, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var blogs []Blog
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		blogs = append(blogs, b)
	}
	return blogs, rows.Err()
}

// --- Blog posts ---

// reservedPostSlugs are first path segments a blog routes itself.
var reservedPostSlugs = map[string]bool{
	"tag": true, "category": true, "author": true, "rss": true, "atom": true,
}

func isReservedPostSlug(slug string) bool {
	if reservedPostSlugs[slug] {
		return true
	}
	for _, r := range slug {
		if r < '0' || r > '9' {
			return false
		}
	}
	return slug != ""
}

// SavePost inserts or updates a blog post with its tags, categories and
// related links. Tags are created on demand.
func (s *Store) SavePost(p *BlogPost) error {
	if p.Slug == "" {
		p.Slug = Slugify(p.Title)
	}
	if isReservedPostSlug(p.Slug) {
		return fmt.Errorf("%w: %q", ErrReservedSlug, p.Slug)
	}
	if p.Date.IsZero() {
		p.Date = time.Now()
	}
	var imageID int64
	if p.Image != nil {
		imageID = p.Image.ID
	}
	return s.withTx(func(tx *sql.Tx) error {
		if err := tx.QueryRow(`SELECT site_id FROM pages WHERE id = ? AND kind = ?`, p.BlogID, kindBlog).Scan(&p.SiteID); err != nil {
			return fmt.Errorf("blog %d: %w", p.BlogID, err)
		}
		if err := savePage(tx, &p.Page, p.BlogID, kindBlogPost); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO blog_posts (page_id, body, excerpt, date, image_id) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(page_id) DO UPDATE SET body = excluded.body, excerpt = excluded.excerpt, date = excluded.date, image_id = excluded.image_id`,
			p.ID, p.Body, p.Excerpt, formatTime(p.Date), nullID(imageID))
		if err != nil {
			return err
		}
		if err := setPageTags(tx, p.ID, p.Tags); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM blog_post_categories WHERE post_id = ?`, p.ID); err != nil {
			return err
		}
		for _, c := range p.Categories {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO blog_post_categories (post_id, category_id) VALUES (?, ?)`, p.ID, c.ID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`DELETE FROM blog_post_related_links WHERE post_id = ?`, p.ID); err != nil {
			return err
		}
		for i, l := range p.RelatedLinks {
			if _, err := tx.Exec(`INSERT INTO blog_post_related_links (post_id, sort_order, title, link_external, link_page_id) VALUES (?, ?, ?, ?, ?)`,
				p.ID, i, l.Title, l.ExternalURL, nullID(l.PageID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PostFilter narrows a blog listing. Zero fields don't filter.
type PostFilter struct {
	From, To time.Time // post date in [From, To)
	Tag      string    // tag slug
	Category string    // category slug
	Owner    string
}

func (f PostFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if !f.From.IsZero() {
		clauses = append(clauses, `bp.date >= ?`)
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, `bp.date < ?`)
		args = append(args, formatTime(f.To))
	}
	if f.Tag != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM page_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.page_id = p.id AND t.slug = ?)`)
		args = append(args, f.Tag)
	}
	if f.Category != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM blog_post_categories bc JOIN categories c ON c.id = bc.category_id WHERE bc.post_id = p.id AND c.slug = ?)`)
		args = append(args, f.Category)
	}
	if f.Owner != "" {
		clauses = append(clauses, `p.owner = ?`)
		args = append(args, f.Owner)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

const postSelect = `SELECT ` + pageColumns + `, p.parent_id, parent.slug, bp.body, bp.excerpt, bp.date, bp.image_id
FROM pages p JOIN blog_posts bp ON bp.page_id = p.id JOIN pages parent ON parent.id = p.parent_id `

func scanPost(row rowScanner) (BlogPost, sql.NullInt64, error) {
	var p BlogPost
	var live int
	var published, blogSlug, date string
	var imageID sql.NullInt64
	args := append(scanPageArgs(&p.Page, &live, &published), &p.BlogID, &blogSlug, &p.Body, &p.Excerpt, &date, &imageID)
	if err := row.Scan(args...); err != nil {
		return BlogPost{}, imageID, err
	}
	finishPage(&p.Page, live, published, "/"+blogSlug+"/"+p.Slug+"/")
	p.Date = parseTime(date)
	return p, imageID, nil
}

// loadPost attaches image, tags and categories to a scanned post.
func (s *Store) loadPost(p *BlogPost, imageID sql.NullInt64) error {
	var err error
	if p.Image, err = s.optionalImage(imageID); err != nil {
		return err
	}
	if p.Tags, err = s.pageTags(p.ID); err != nil {
		return err
	}
	p.Categories, err = s.queryCategories(`SELECT c.id, c.name, c.slug, c.description, COALESCE(c.parent_id, 0), 0
FROM blog_post_categories bc JOIN categories c ON c.id = bc.category_id WHERE bc.post_id = ? ORDER BY c.name`, p.ID)
	return err
}

func (s *Store) queryPosts(query string, args ...any) ([]BlogPost, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	type scanned struct {
		post    BlogPost
		imageID sql.NullInt64
	}
	var found []scanned
	for rows.Next() {
		p, imageID, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		found = append(found, scanned{p, imageID})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Relations are loaded after the cursor is closed so they can reuse
	// the connection.
	posts := make([]BlogPost, 0, len(found))
	for _, f := range found {
		if err := s.loadPost(&f.post, f.imageID); err != nil {
			return nil, err
		}
		posts = append(posts, f.post)
	}
	return posts, nil
}

// ListPosts returns live posts of a blog matching f, newest first.
// A limit <= 0 returns every match.
func (s *Store) ListPosts(blogID int64, f PostFilter, limit, offset int) ([]BlogPost, error) {
	where, args := f.where()
	query := postSelect + `WHERE p.parent_id = ? AND p.live = 1` + where + ` ORDER BY bp.date DESC, p.id DESC`
	args = append([]any{blogID}, args...)
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	return s.queryPosts(query, args...)
}

// CountPosts counts live posts of a blog matching f.
func (s *Store) CountPosts(blogID int64, f PostFilter) (int, error) {
	where, args := f.where()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pages p JOIN blog_posts bp ON bp.page_id = p.id WHERE p.parent_id = ? AND p.live = 1`+where,
		append([]any{blogID}, args...)...).Scan(&n)
	return n, err
}

// ListAllPosts returns every post of a blog, drafts included, newest first.
func (s *Store) ListAllPosts(blogID int64) ([]BlogPost, error) {
	return s.queryPosts(postSelect+`WHERE p.parent_id = ? ORDER BY bp.date DESC, p.id DESC`, blogID)
}

// GetPost returns a live post of a blog by slug, with its related links.
func (s *Store) GetPost(blogID int64, slug string) (BlogPost, error) {
	return s.getPost(postSelect+`WHERE p.parent_id = ? AND p.slug = ? AND p.live = 1`, blogID, slug)
}

// GetPostAny returns a post by id regardless of live status (for admin).
func (s *Store) GetPostAny(id int64) (BlogPost, error) {
	return s.getPost(postSelect+`WHERE p.id = ?`, id)
}

func (s *Store) getPost(query string, args ...any) (BlogPost, error) {
	p, imageID, err := scanPost(s.db.QueryRow(query, args...))
	if err != nil {
		return BlogPost{}, err
	}
	if err := s.loadPost(&p, imageID); err != nil {
		return BlogPost{}, err
	}
	if p.RelatedLinks, err = s.relatedLinks(p.ID); err != nil {
		return BlogPost{}, err
	}
	return p, nil
}

func (s *Store) relatedLinks(postID int64) ([]RelatedLink, error) {
	rows, err := s.db.Query(`SELECT l.title, l.link_external, COALESCE(l.link_page_id, 0), COALESCE(lp.slug, ''), COALESCE(lpp.slug, ''), l.sort_order
FROM blog_post_related_links l
LEFT JOIN pages lp ON lp.id = l.link_page_id
LEFT JOIN pages lpp ON lpp.id = lp.parent_id
WHERE l.post_id = ? ORDER BY l.sort_order`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []RelatedLink
	for rows.Next() {
		var l RelatedLink
		var slug, parentSlug string
		if err := rows.Scan(&l.Title, &l.ExternalURL, &l.PageID, &slug, &parentSlug, &l.SortOrder); err != nil {
			return nil, err
		}
		switch {
		case slug != "" && parentSlug != "":
			l.PageURL = "/" + parentSlug + "/" + slug + "/"
		case slug != "":
			l.PageURL = "/" + slug + "/"
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// TagCounts returns the tags used by live posts of a blog, most used first.
func (s *Store) TagCounts(blogID int64) ([]TagCount, error) {
	rows, err := s.db.Query(`SELECT t.name, t.slug, COUNT(*) AS n
FROM page_tags pt JOIN tags t ON t.id = pt.tag_id JOIN pages p ON p.id = pt.page_id
WHERE p.parent_id = ? AND p.kind = ? AND p.live = 1
GROUP BY t.id ORDER BY n DESC, t.name`, blogID, kindBlogPost)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var counts []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Slug, &tc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

// --- Static pages ---

// SaveStaticPage inserts or updates a static page with its tags.
func (s *Store) SaveStaticPage(p *StaticPage) error {
	if p.SEOType == "" {
		p.SEOType = SEOTypeArticle
	}
	if p.SEOType != SEOTypeArticle && p.SEOType != SEOTypeService {
		return fmt.Errorf("wapps: unknown seo type %q", p.SEOType)
	}
	var imageID int64
	if p.Image != nil {
		imageID = p.Image.ID
	}
	return s.withTx(func(tx *sql.Tx) error {
		if err := savePage(tx, &p.Page, 0, kindStaticPage); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO static_pages (page_id, intro, body, image_id, image_full, seo_type) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(page_id) DO UPDATE SET intro = excluded.intro, body = excluded.body, image_id = excluded.image_id,
    image_full = excluded.image_full, seo_type = excluded.seo_type`,
			p.ID, p.Intro, p.Body, nullID(imageID), boolInt(p.ImageFull), p.SEOType)
		if err != nil {
			return err
		}
		return setPageTags(tx, p.ID, p.Tags)
	})
}

const staticPageSelect = `SELECT ` + pageColumns + `, sp.intro, sp.body, sp.image_id, sp.image_full, sp.seo_type
FROM pages p JOIN static_pages sp ON sp.page_id = p.id `

func (s *Store) getStaticPage(query string, args ...any) (StaticPage, error) {
	var p StaticPage
	var live, full int
	var published string
	var imageID sql.NullInt64
	scan := append(scanPageArgs(&p.Page, &live, &published), &p.Intro, &p.Body, &imageID, &full, &p.SEOType)
	if err := s.db.QueryRow(query, args...).Scan(scan...); err != nil {
		return StaticPage{}, err
	}
	finishPage(&p.Page, live, published, "/"+p.Slug+"/")
	p.ImageFull = full == 1
	var err error
	if p.Image, err = s.optionalImage(imageID); err != nil {
		return StaticPage{}, err
	}
	if p.Tags, err = s.pageTags(p.ID); err != nil {
		return StaticPage{}, err
	}
	return p, nil
}

// GetStaticPage returns a live static page of a site by slug.
func (s *Store) GetStaticPage(siteID int64, slug string) (StaticPage, error) {
	return s.getStaticPage(staticPageSelect+`WHERE p.site_id = ? AND p.slug = ? AND p.parent_id = 0 AND p.live = 1`, siteID, slug)
}

// GetStaticPageAny returns a static page by id regardless of live status.
func (s *Store) GetStaticPageAny(id int64) (StaticPage, error) {
	return s.getStaticPage(staticPageSelect+`WHERE p.id = ?`, id)
}

// ListStaticPages returns the static pages of a site ordered by title.
// With liveOnly false drafts are included.
func (s *Store) ListStaticPages(siteID int64, liveOnly bool) ([]StaticPage, error) {
	query := `SELECT p.id FROM pages p WHERE p.site_id = ? AND p.kind = ?`
	if liveOnly {
		query += ` AND p.live = 1`
	}
	rows, err := s.db.Query(query+` ORDER BY p.title`, siteID, kindStaticPage)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	pages := make([]StaticPage, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetStaticPageAny(id)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}
