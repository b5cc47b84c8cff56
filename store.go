package wapps

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = sql.ErrNoRows
	// ErrNoSite is returned when no site matches a request and no default site exists.
	ErrNoSite = errors.New("wapps: no site configured for host")
)

// Store wraps a SQLite database holding sites, identity settings, pages
// and images.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	// foreign_keys is per connection, so it goes in the DSN where every
	// pooled connection picks it up.
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrations are applied in order; the index+1 is the schema version.
// Append only.
var migrations = []string{
	// 1: sites, images, identity, taxonomy, blogs and posts
	`
CREATE TABLE sites (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hostname TEXT NOT NULL,
    port INTEGER NOT NULL DEFAULT 80,
    site_name TEXT NOT NULL DEFAULT '',
    is_default INTEGER NOT NULL DEFAULT 0,
    UNIQUE (hostname, port)
);
CREATE TABLE images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL DEFAULT '',
    filename TEXT NOT NULL UNIQUE,
    original_name TEXT NOT NULL DEFAULT '',
    width INTEGER NOT NULL DEFAULT 0,
    height INTEGER NOT NULL DEFAULT 0,
    size INTEGER NOT NULL DEFAULT 0,
    uploaded_at TEXT NOT NULL
);
CREATE TABLE identity_settings (
    site_id INTEGER PRIMARY KEY REFERENCES sites(id) ON DELETE CASCADE,
    name TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    logo_id INTEGER REFERENCES images(id) ON DELETE SET NULL
);
CREATE TABLE tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE
);
CREATE TABLE identity_tags (
    site_id INTEGER NOT NULL REFERENCES identity_settings(site_id) ON DELETE CASCADE,
    tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    PRIMARY KEY (site_id, tag_id)
);
CREATE TABLE categories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    parent_id INTEGER REFERENCES categories(id) ON DELETE CASCADE
);
CREATE TABLE pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
    parent_id INTEGER NOT NULL DEFAULT 0,
    kind TEXT NOT NULL,
    slug TEXT NOT NULL,
    title TEXT NOT NULL,
    seo_title TEXT NOT NULL DEFAULT '',
    search_description TEXT NOT NULL DEFAULT '',
    live INTEGER NOT NULL DEFAULT 1,
    first_published_at TEXT NOT NULL DEFAULT '',
    owner TEXT NOT NULL DEFAULT '',
    UNIQUE (site_id, parent_id, slug)
);
CREATE TABLE page_tags (
    page_id INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
    tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    PRIMARY KEY (page_id, tag_id)
);
CREATE TABLE blogs (
    page_id INTEGER PRIMARY KEY REFERENCES pages(id) ON DELETE CASCADE,
    intro TEXT NOT NULL DEFAULT ''
);
CREATE TABLE blog_posts (
    page_id INTEGER PRIMARY KEY REFERENCES pages(id) ON DELETE CASCADE,
    body TEXT NOT NULL,
    excerpt TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL,
    image_id INTEGER REFERENCES images(id) ON DELETE SET NULL
);
CREATE INDEX blog_posts_date ON blog_posts(date);
CREATE TABLE blog_post_categories (
    post_id INTEGER NOT NULL REFERENCES blog_posts(page_id) ON DELETE CASCADE,
    category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
    PRIMARY KEY (post_id, category_id)
);
CREATE TABLE blog_post_related_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_id INTEGER NOT NULL REFERENCES blog_posts(page_id) ON DELETE CASCADE,
    sort_order INTEGER NOT NULL DEFAULT 0,
    title TEXT NOT NULL,
    link_external TEXT NOT NULL DEFAULT '',
    link_page_id INTEGER REFERENCES pages(id) ON DELETE CASCADE
);
`,
	// 2: static pages
	`
CREATE TABLE static_pages (
    page_id INTEGER PRIMARY KEY REFERENCES pages(id) ON DELETE CASCADE,
    intro TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL,
    image_id INTEGER REFERENCES images(id) ON DELETE SET NULL,
    image_full INTEGER NOT NULL DEFAULT 0,
    seo_type TEXT NOT NULL DEFAULT 'article'
);
`,
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return err
	}
	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		version := i + 1
		err := s.withTx(func(tx *sql.Tx) error {
			if _, err := tx.Exec(migrations[i]); err != nil {
				return err
			}
			_, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, formatTime(time.Now()))
			return err
		})
		if err != nil {
			return fmt.Errorf("version %d: %w", version, err)
		}
	}
	return nil
}

func (s *Store) withTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Times are stored as UTC RFC 3339 text so lexical order is time order.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// --- Sites ---

// SaveSite inserts or updates a site. Marking a site default clears the flag
// on every other site.
func (s *Store) SaveSite(site *Site) error {
	return s.withTx(func(tx *sql.Tx) error {
		if site.IsDefault {
			if _, err := tx.Exec(`UPDATE sites SET is_default = 0 WHERE id != ?`, site.ID); err != nil {
				return err
			}
		}
		if site.ID == 0 {
			res, err := tx.Exec(`INSERT INTO sites (hostname, port, site_name, is_default) VALUES (?, ?, ?, ?)`,
				site.Hostname, site.Port, site.SiteName, boolInt(site.IsDefault))
			if err != nil {
				return err
			}
			site.ID, err = res.LastInsertId()
			return err
		}
		_, err := tx.Exec(`UPDATE sites SET hostname = ?, port = ?, site_name = ?, is_default = ? WHERE id = ?`,
			site.Hostname, site.Port, site.SiteName, boolInt(site.IsDefault), site.ID)
		return err
	})
}

// SiteForHost returns the site bound to host (a Host header value, port
// optional). A site matching both hostname and port wins over one matching
// the hostname only; unknown hosts get the default site. ErrNoSite when
// neither exists.
func (s *Store) SiteForHost(host string) (Site, error) {
	port := 0
	if h, p, err := net.SplitHostPort(host); err == nil {
		host = h
		port, _ = strconv.Atoi(p)
	}
	host = strings.ToLower(host)
	const q = `SELECT id, hostname, port, site_name, is_default FROM sites `
	site, err := scanSite(s.db.QueryRow(q+`WHERE hostname = ? ORDER BY port = ? DESC, is_default DESC, id LIMIT 1`, host, port))
	if err == nil {
		return site, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Site{}, err
	}
	site, err = scanSite(s.db.QueryRow(q + `WHERE is_default = 1 LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Site{}, ErrNoSite
	}
	return site, err
}

// ListSites returns every site ordered by hostname.
func (s *Store) ListSites() ([]Site, error) {
	rows, err := s.db.Query(`SELECT id, hostname, port, site_name, is_default FROM sites ORDER BY hostname, port`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sites []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (Site, error) {
	var site Site
	var def int
	if err := row.Scan(&site.ID, &site.Hostname, &site.Port, &site.SiteName, &def); err != nil {
		return Site{}, err
	}
	site.IsDefault = def == 1
	return site, nil
}

// EnsureDefaultSite creates the default site from cfg on an empty database
// and seeds its identity settings. With sites already present it is a no-op.
func (s *Store) EnsureDefaultSite(cfg SiteConfig) error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sites`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	site, err := siteFromURL(cfg.URL, cfg.Name)
	if err != nil {
		return fmt.Errorf("parse site url %q: %w", cfg.URL, err)
	}
	if err := s.SaveSite(&site); err != nil {
		return err
	}
	return s.SaveIdentity(IdentitySettings{SiteID: site.ID, Name: cfg.Name, Description: cfg.Description})
}

// --- Identity settings ---

// IdentityFor returns the identity settings of a site. A site that never
// saved any gets empty settings, not an error.
func (s *Store) IdentityFor(siteID int64) (IdentitySettings, error) {
	id := IdentitySettings{SiteID: siteID}
	var logoID sql.NullInt64
	err := s.db.QueryRow(`SELECT name, description, logo_id FROM identity_settings WHERE site_id = ?`, siteID).
		Scan(&id.Name, &id.Description, &logoID)
	if errors.Is(err, sql.ErrNoRows) {
		return id, nil
	}
	if err != nil {
		return IdentitySettings{}, err
	}
	if id.Logo, err = s.optionalImage(logoID); err != nil {
		return IdentitySettings{}, err
	}
	id.Tags, err = s.tagsFor(`SELECT t.name, t.slug FROM identity_tags it JOIN tags t ON t.id = it.tag_id WHERE it.site_id = ? ORDER BY t.name`, siteID)
	if err != nil {
		return IdentitySettings{}, err
	}
	return id, nil
}

// SaveIdentity upserts the identity settings of a site, replacing its tags.
func (s *Store) SaveIdentity(id IdentitySettings) error {
	var logoID int64
	if id.Logo != nil {
		logoID = id.Logo.ID
	}
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO identity_settings (site_id, name, description, logo_id) VALUES (?, ?, ?, ?)
ON CONFLICT(site_id) DO UPDATE SET name = excluded.name, description = excluded.description, logo_id = excluded.logo_id`,
			id.SiteID, id.Name, id.Description, nullID(logoID))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM identity_tags WHERE site_id = ?`, id.SiteID); err != nil {
			return err
		}
		tagIDs, err := ensureTags(tx, id.Tags)
		if err != nil {
			return err
		}
		for _, tid := range tagIDs {
			if _, err := tx.Exec(`INSERT INTO identity_tags (site_id, tag_id) VALUES (?, ?)`, id.SiteID, tid); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Tags ---

// ensureTags creates missing tags and returns the ids of all of them, one
// per distinct slug.
func ensureTags(tx *sql.Tx, tags []Tag) ([]int64, error) {
	var ids []int64
	for _, t := range uniqueTags(tags) {
		if _, err := tx.Exec(`INSERT INTO tags (name, slug) VALUES (?, ?) ON CONFLICT(slug) DO NOTHING`, t.Name, t.Slug); err != nil {
			return nil, err
		}
		var id int64
		if err := tx.QueryRow(`SELECT id FROM tags WHERE slug = ?`, t.Slug).Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) tagsFor(query string, args ...any) ([]Tag, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.Name, &t.Slug); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// --- Categories ---

// SaveCategory inserts or updates a category. The slug is derived from the
// name when empty.
func (s *Store) SaveCategory(c *Category) error {
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	if c.ID == 0 {
		res, err := s.db.Exec(`INSERT INTO categories (name, slug, description, parent_id) VALUES (?, ?, ?, ?)`,
			c.Name, c.Slug, c.Description, nullID(c.ParentID))
		if err != nil {
			return err
		}
		c.ID, err = res.LastInsertId()
		return err
	}
	_, err := s.db.Exec(`UPDATE categories SET name = ?, slug = ?, description = ?, parent_id = ? WHERE id = ?`,
		c.Name, c.Slug, c.Description, nullID(c.ParentID), c.ID)
	return err
}

// ListCategories returns every category ordered by name.
func (s *Store) ListCategories() ([]Category, error) {
	return s.queryCategories(`SELECT c.id, c.name, c.slug, c.description, COALESCE(c.parent_id, 0),
    (SELECT COUNT(*) FROM blog_post_categories bc JOIN pages p ON p.id = bc.post_id WHERE bc.category_id = c.id AND p.live = 1)
FROM categories c ORDER BY c.name`)
}

// RootCategories returns top-level categories with their children attached
// and live post counts filled in.
func (s *Store) RootCategories() ([]Category, error) {
	all, err := s.ListCategories()
	if err != nil {
		return nil, err
	}
	children := make(map[int64][]Category)
	for _, c := range all {
		if c.ParentID != 0 {
			children[c.ParentID] = append(children[c.ParentID], c)
		}
	}
	var roots []Category
	for _, c := range all {
		if c.ParentID == 0 {
			c.Children = children[c.ID]
			roots = append(roots, c)
		}
	}
	return roots, nil
}

func (s *Store) queryCategories(query string, args ...any) ([]Category, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ParentID, &c.BlogCount); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
