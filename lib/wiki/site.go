package wiki

import (
	"context"
	"sort"
	"strings"
	"sync"

	"wikisnap/lib/htmlutil"
	"wikisnap/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// Site binds a backend to a wiki origin. It owns the process-lifetime
// caches for the title index and the attribution metadata table; neither
// is ever invalidated once loaded.
type Site struct {
	origin  string
	backend Backend

	titlesOnce sync.Once
	titles     map[string]string
	titlesErr  error

	metaOnce sync.Once
	meta     []Metadata
	metaErr  error
}

func NewSite(site string, backend Backend) *Site {
	return &Site{
		origin:  NormalizeOrigin(site),
		backend: backend,
	}
}

func (s *Site) Origin() string   { return s.origin }
func (s *Site) Backend() Backend { return s.backend }

// Page normalizes a display name into a canonical url and returns a Page
// bound to this site. Nothing is fetched until a getter is called.
func (s *Site) Page(name string) *Page {
	url := name
	if !strings.Contains(name, s.origin) {
		url = s.origin + "/" + name
	}
	return &Page{URL: textutil.NormalizePageName(url), site: s}
}

func (s *Site) pageFromSeed(seed Seed) *Page {
	p := s.Page(seed.FullName)
	p.seed = &seed
	return p
}

// extended reports whether this site carries the attribution-metadata
// and image-review extensions.
func (s *Site) extended() bool {
	return strings.Contains(s.origin, "lafundacionscp")
}

// ListPages returns the pages matching the given filters. When an author
// filter is present the raw listing is reconciled against the
// attribution overrides: a page is included if the raw creator matches
// or any override names the user in any role, and excluded only when an
// autor-role override names somebody else. The asymmetry is deliberate
// and load-bearing: a page with both an author and a rewriter shows up
// for both of them.
func (s *Site) ListPages(ctx context.Context, opts ListOptions) ([]*Page, error) {
	seeds, err := s.backend.ListPages(ctx, opts)
	if err != nil {
		return nil, err
	}
	pages := make([]*Page, len(seeds))
	for i, seed := range seeds {
		pages[i] = s.pageFromSeed(seed)
	}
	if opts.Author == "" {
		return pages, nil
	}

	meta, err := s.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	include := map[string]bool{}
	exclude := map[string]bool{}
	for _, m := range meta {
		if m.User == opts.Author {
			include[m.URL] = true
		} else if m.Role == "autor" {
			exclude[m.URL] = true
		}
	}

	urls := map[string]bool{}
	for _, p := range pages {
		urls[p.URL] = true
	}
	for u := range include {
		urls[u] = true
	}
	for u := range exclude {
		delete(urls, u)
	}

	rest := opts
	rest.Author = ""
	if rest.Empty() {
		sorted := make([]string, 0, len(urls))
		for u := range urls {
			sorted = append(sorted, u)
		}
		sort.Strings(sorted)
		pages = make([]*Page, len(sorted))
		for i, u := range sorted {
			pages[i] = s.Page(u)
		}
		return pages, nil
	}

	// re-list without the author filter to decide order and membership
	// for the override-included urls
	seeds, err = s.backend.ListPages(ctx, rest)
	if err != nil {
		return nil, err
	}
	var out []*Page
	for _, seed := range seeds {
		p := s.pageFromSeed(seed)
		if urls[p.URL] {
			out = append(out, p)
		}
	}
	return out, nil
}

// Metadata returns the site's attribution override records. The table
// lives on a regular wiki page, so this works over either backend. Sites
// without the extension have no records.
func (s *Site) Metadata(ctx context.Context) ([]Metadata, error) {
	s.metaOnce.Do(func() {
		if !s.extended() {
			return
		}
		s.meta, s.metaErr = s.scrapeMetadata(ctx)
	})
	return s.meta, s.metaErr
}

func (s *Site) scrapeMetadata(ctx context.Context) ([]Metadata, error) {
	data, err := s.Page("bot-component:attribution-metadata").Data(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(data.HTML))
	if err != nil {
		return nil, err
	}

	var records []Metadata
	doc.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		name := strings.ToLower(htmlutil.CleanText(cells.Eq(0)))
		records = append(records, Metadata{
			URL:  s.origin + "/" + name,
			User: htmlutil.CleanText(cells.Eq(1)),
			Role: htmlutil.CleanText(cells.Eq(2)),
			Date: htmlutil.CleanText(cells.Eq(3)),
		})
	})
	return records, nil
}

// index pages for the numbered series; their list items map page urls to
// display titles
var titleIndexPages = []string{
	"serie-scp-i", "serie-scp-ii", "serie-scp-iii", "serie-scp-iv",
	"serie-scp-es", "scps-humoristicos", "scp-ex", "scps-archivados",
}

// Titles returns the site-wide url → display-title index used for the
// numbered series. Index pages that fail to resolve are skipped.
func (s *Site) Titles(ctx context.Context) (map[string]string, error) {
	s.titlesOnce.Do(func() {
		s.titles = map[string]string{}
		if !s.extended() {
			return
		}
		for _, name := range titleIndexPages {
			data, err := s.Page(name).Data(ctx)
			if err != nil {
				continue
			}
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(data.HTML))
			if err != nil {
				continue
			}
			s.collectTitles(doc.Find("ul > li"))
		}
		if data, err := s.Page("scp-001").Data(ctx); err == nil {
			if doc, err := goquery.NewDocumentFromReader(strings.NewReader(data.HTML)); err == nil {
				s.collectTitles(doc.Find(".series").Eq(1).Find("p"))
			}
		}
	})
	return s.titles, s.titlesErr
}

func (s *Site) collectTitles(items *goquery.Selection) {
	items.Each(func(_ int, elem *goquery.Selection) {
		text := elem.Text()
		sep := ", "
		if strings.Contains(text, " - ") {
			sep = " - "
		}
		href, ok := elem.Find("a").First().Attr("href")
		if !ok {
			return
		}
		parts := strings.SplitN(text, sep, 2)
		if len(parts) != 2 {
			return
		}
		skip, title := parts[0], parts[1]
		if title == "[ACCESO DENEGADO]" {
			return
		}
		s.titles[s.origin+href] = title
		s.titles[s.origin+"/"+strings.ToLower(skip)] = title
	})
}
