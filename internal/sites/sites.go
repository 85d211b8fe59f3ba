// Package sites holds the per-site configuration for the supported reading
// surfaces: how to recognize a host, its reader pages, and how to pull book
// and chapter identifiers out of a URL. The browser adapter uses this table
// to classify raw navigations into route and chapter events.
package sites

import (
	"net/url"
	"strings"
)

// Site describes one supported reading surface.
type Site struct {
	// ID identifies the site internally (also the settings key).
	ID string
	// Name is the display name.
	Name string
	// Domain is the host serving the surface.
	Domain string
	// HomeURL is the landing page.
	HomeURL string
	// ReaderPathPrefix marks reading-surface URLs; everything under it is
	// a reader page, everything else on the domain is shelf/chrome.
	ReaderPathPrefix string
}

// WeRead is the default supported surface.
var WeRead = Site{
	ID:               "weread",
	Name:             "微信读书",
	Domain:           "weread.qq.com",
	HomeURL:          "https://weread.qq.com/",
	ReaderPathPrefix: "/web/reader/",
}

// DefaultTable lists the built-in sites. Order matters: the first match wins.
func DefaultTable() []Site {
	return []Site{WeRead}
}

// NetworkCheckAddr returns the dial address used for connectivity probes.
func (s Site) NetworkCheckAddr() string {
	return s.Domain + ":443"
}

// Matches reports whether rawURL is served by this site.
func (s Site) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == s.Domain || strings.HasSuffix(host, "."+s.Domain)
}

// IsReaderPath reports whether pathname is a reading-surface page.
func (s Site) IsReaderPath(pathname string) bool {
	return s.ReaderPathPrefix != "" && strings.HasPrefix(pathname, s.ReaderPathPrefix)
}

// BookID extracts the book identifier from a reader pathname. The reader URL
// shape is <prefix><bookID>[k<chapterID>]; the book id is the first path
// segment after the prefix, with any chapter suffix attached to it stripped
// at the first "k" separator that follows the id head.
func (s Site) BookID(pathname string) string {
	if !s.IsReaderPath(pathname) {
		return ""
	}
	rest := strings.TrimPrefix(pathname, s.ReaderPathPrefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, 'k'); i > 0 {
		rest = rest[:i]
	}
	return rest
}

// ChapterKey extracts the chapter portion of a reader pathname, empty when
// the URL addresses the book itself.
func (s Site) ChapterKey(pathname string) string {
	if !s.IsReaderPath(pathname) {
		return ""
	}
	rest := strings.TrimPrefix(pathname, s.ReaderPathPrefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, 'k'); i > 0 {
		return rest[i+1:]
	}
	return ""
}

// Classify resolves rawURL against the table. site is nil when no site
// matches.
func Classify(table []Site, rawURL string) (site *Site, isReader bool, bookID string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false, ""
	}
	for i := range table {
		if !table[i].Matches(rawURL) {
			continue
		}
		s := &table[i]
		if s.IsReaderPath(u.Path) {
			return s, true, s.BookID(u.Path)
		}
		return s, false, ""
	}
	return nil, false, ""
}
