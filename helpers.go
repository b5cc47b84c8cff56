package wapps

import (
	"encoding/json"
	"net/url"
	"path"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts a title to a URL slug. Accented Latin letters are folded
// to their base ("Café" -> "cafe"); letters and digits of other scripts are
// kept lowercased ("Москва" -> "москва").
func Slugify(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// FilterEmpty removes empty/whitespace-only strings from a slice.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseTagList turns a comma-separated form value into tags, dropping
// blanks and duplicates.
func ParseTagList(s string) []Tag {
	return uniqueTags(tagsFromNames(FilterEmpty(strings.Split(s, ","))))
}

func tagsFromNames(names []string) []Tag {
	tags := make([]Tag, 0, len(names))
	for _, n := range names {
		tags = append(tags, NewTag(n))
	}
	return tags
}

// uniqueTags merges groups of tags into a set keyed by slug, sorted by name.
// The first spelling seen for a slug wins.
func uniqueTags(groups ...[]Tag) []Tag {
	seen := make(map[string]struct{})
	var out []Tag
	for _, g := range groups {
		for _, t := range g {
			key := t.Key()
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if t.Slug == "" {
				t.Slug = key
			}
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// JoinTags joins tag names with ", " for form fields and keywords.
func JoinTags(tags []Tag) string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

// WebsiteJsonLD returns a JSON-LD string for a WebSite schema.
func WebsiteJsonLD(site Site, meta *Metadata) string {
	data := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     meta.SiteTitle(),
		"url":      absoluteURL(site.RootURL(), "/"),
	}
	if d := meta.Description(); d != "" {
		data["description"] = d
	}
	if img := meta.ImageURL(); img != "" {
		data["image"] = img
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
