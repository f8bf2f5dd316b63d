package wiki

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page is a single wiki page bound to the Site that created it. All
// fields are resolved lazily through the site's backend and computed at
// most once per instance; write operations invalidate exactly the
// fields they may have changed.
type Page struct {
	URL  string
	site *Site

	// optional listing-resolved fields, consulted before fetching
	seed *Seed

	pdata   *PageData
	history []Revision
	votes   []Vote
	posts   []Post
}

func (p *Page) Site() *Site { return p.site }

// Name is the page's unix name, the last segment of its url.
func (p *Page) Name() string {
	parts := strings.Split(p.URL, "/")
	return parts[len(parts)-1]
}

// Data resolves the page's id, thread id, html and tags, at most once.
func (p *Page) Data(ctx context.Context) (PageData, error) {
	if p.pdata != nil {
		return *p.pdata, nil
	}
	data, err := p.site.backend.PageData(ctx, p.URL)
	if err != nil {
		return PageData{}, err
	}
	p.pdata = &data
	return data, nil
}

func (p *Page) ID(ctx context.Context) (int64, error) {
	data, err := p.Data(ctx)
	return data.ID, err
}

func (p *Page) ThreadID(ctx context.Context) (int64, error) {
	data, err := p.Data(ctx)
	return data.ThreadID, err
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	data, err := p.Data(ctx)
	return data.HTML, err
}

func (p *Page) Tags(ctx context.Context) ([]string, error) {
	if p.seed != nil && p.seed.Tags != nil {
		return p.seed.Tags, nil
	}
	data, err := p.Data(ctx)
	return data.Tags, err
}

// History returns the page's revisions ordered by revision number,
// starting at 0.
func (p *Page) History(ctx context.Context) ([]Revision, error) {
	if p.history != nil {
		return p.history, nil
	}
	id, err := p.ID(ctx)
	if err != nil {
		return nil, err
	}
	revs, err := p.site.backend.History(ctx, id)
	if err != nil {
		return nil, err
	}
	p.history = revs
	return revs, nil
}

func (p *Page) Votes(ctx context.Context) ([]Vote, error) {
	if p.votes != nil {
		return p.votes, nil
	}
	id, err := p.ID(ctx)
	if err != nil {
		return nil, err
	}
	votes, err := p.site.backend.Votes(ctx, id)
	if err != nil {
		return nil, err
	}
	p.votes = votes
	return votes, nil
}

// Posts returns the page's comment thread, flattened. Pages without a
// discussion thread have no posts.
func (p *Page) Posts(ctx context.Context) ([]Post, error) {
	if p.posts != nil {
		return p.posts, nil
	}
	threadID, err := p.ThreadID(ctx)
	if err != nil {
		return nil, err
	}
	if threadID == 0 {
		return nil, nil
	}
	posts, err := p.site.backend.ThreadPosts(ctx, threadID)
	if err != nil {
		return nil, err
	}
	p.posts = posts
	return posts, nil
}

// deletedAccount is the sentinel user wikidot substitutes for voters
// whose accounts no longer exist; their votes do not count.
const deletedAccount = "(account deleted)"

// Rating is the sum of the page's votes, excluding deleted accounts.
func (p *Page) Rating(ctx context.Context) (int, error) {
	if p.seed != nil && p.seed.Rating != nil {
		return *p.seed.Rating, nil
	}
	votes, err := p.Votes(ctx)
	if err != nil {
		return 0, err
	}
	sum := 0
	for _, v := range votes {
		if v.User == deletedAccount {
			continue
		}
		sum += v.Value
	}
	return sum, nil
}

// Created is the timestamp of revision 0.
func (p *Page) Created(ctx context.Context) (string, error) {
	if p.seed != nil && p.seed.CreatedAt != "" {
		t, err := time.Parse("02 Jan 2006 15:04", p.seed.CreatedAt)
		if err == nil {
			return t.Format("2006-01-02 15:04:05"), nil
		}
	}
	history, err := p.History(ctx)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", fmt.Errorf("%w: page %q has no revisions", ErrLookup, p.URL)
	}
	return history[0].Time, nil
}

// rawAuthor is the user who saved revision 0, before any override.
func (p *Page) rawAuthor(ctx context.Context) (string, error) {
	if p.seed != nil && p.seed.CreatedBy != "" {
		return p.seed.CreatedBy, nil
	}
	history, err := p.History(ctx)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", fmt.Errorf("%w: page %q has no revisions", ErrLookup, p.URL)
	}
	return history[0].User, nil
}

// Author is the page's credited author: the autor-role metadata record
// when one exists, the creator of revision 0 otherwise. Co-authored
// pages carry several autor records; the first user in name order wins
// so the answer is stable.
func (p *Page) Author(ctx context.Context) (string, error) {
	meta, err := p.Metadata(ctx)
	if err != nil {
		return "", err
	}
	var authors []string
	for user, m := range meta {
		if m.Role == "autor" {
			authors = append(authors, user)
		}
	}
	if len(authors) > 0 {
		sort.Strings(authors)
		return authors[0], nil
	}
	return p.rawAuthor(ctx)
}

func (p *Page) rawTitle(ctx context.Context) (string, error) {
	if p.seed != nil && p.seed.Title != "" {
		return p.seed.Title, nil
	}
	doc, err := p.document(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("#page-title").Text()), nil
}

// Title is the displayed title, extended with the series index entry
// for numbered articles ("SCP-ES-040: The Actual Title").
func (p *Page) Title(ctx context.Context) (string, error) {
	raw, err := p.rawTitle(ctx)
	if err != nil {
		return "", err
	}
	titles, err := p.site.Titles(ctx)
	if err != nil {
		return raw, nil
	}
	if series, ok := titles[p.URL]; ok {
		return fmt.Sprintf("%s: %s", raw, series), nil
	}
	return raw, nil
}

// Metadata merges the site's explicit attribution records for this page
// with the implied authorship record. Keyed by user, last record for a
// user wins. When no record carries the autor role, one is synthesized
// from revision 0's user; autor records missing a date get the page
// creation date backfilled.
func (p *Page) Metadata(ctx context.Context) (map[string]Metadata, error) {
	records, err := p.site.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	data := map[string]Metadata{}
	for _, m := range records {
		if m.URL == p.URL {
			data[m.User] = m
		}
	}

	hasAuthor := false
	for _, m := range data {
		if m.Role == "autor" {
			hasAuthor = true
			break
		}
	}
	if !hasAuthor {
		author, err := p.rawAuthor(ctx)
		if err != nil {
			return nil, err
		}
		data[author] = Metadata{URL: p.URL, User: author, Role: "autor"}
	}

	for user, m := range data {
		if m.Role == "autor" && m.Date == "" {
			created, err := p.Created(ctx)
			if err != nil {
				return nil, err
			}
			m.Date = created
			data[user] = m
		}
	}
	return data, nil
}

func (p *Page) document(ctx context.Context) (*goquery.Document, error) {
	html, err := p.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Text is the page body as plain text.
func (p *Page) Text(ctx context.Context) (string, error) {
	doc, err := p.document(ctx)
	if err != nil {
		return "", err
	}
	return doc.Find("#page-content").Text(), nil
}

var wordRegex = regexp.MustCompile(`[\w'█-]+`)

func (p *Page) WordCount(ctx context.Context) (int, error) {
	text, err := p.Text(ctx)
	if err != nil {
		return 0, err
	}
	return len(wordRegex.FindAllString(text, -1)), nil
}

var imageExtensions = []string{".png", ".jpg", ".gif"}

// Links returns the unique same-site urls linked from the page body, in
// document order. Off-site and image links are dropped.
func (p *Page) Links(ctx context.Context) ([]string, error) {
	doc, err := p.document(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var links []string
	doc.Find("#page-content a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" || href[0] != '/' {
			return
		}
		for _, ext := range imageExtensions {
			if strings.HasSuffix(href, ext) {
				return
			}
		}
		url := p.site.origin + strings.TrimRight(href, "|")
		if !seen[url] {
			seen[url] = true
			links = append(links, url)
		}
	})
	return links, nil
}

// Images returns the src of every image displayed on the page, in
// document order.
func (p *Page) Images(ctx context.Context) ([]string, error) {
	doc, err := p.document(ctx)
	if err != nil {
		return nil, err
	}
	var images []string
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok {
			images = append(images, src)
		}
	})
	return images, nil
}

var mainlistRegex = regexp.MustCompile(`/scp-[0-9]{3,4}$`)

// IsMainlist reports whether the page sits on the main list of numbered
// articles. Only the extended site has a main list.
func (p *Page) IsMainlist(ctx context.Context) (bool, error) {
	if !p.site.extended() {
		return false, nil
	}
	tags, err := p.Tags(ctx)
	if err != nil {
		return false, err
	}
	if !slices.Contains(tags, "scp") {
		return false, nil
	}
	return mainlistRegex.MatchString(p.URL), nil
}

// Parent is the url of the parent page per the breadcrumbs, empty when
// the page has none.
func (p *Page) Parent(ctx context.Context) (string, error) {
	doc, err := p.document(ctx)
	if err != nil {
		return "", err
	}
	crumbs := doc.Find("#breadcrumbs a")
	if crumbs.Length() == 0 {
		return "", nil
	}
	href, _ := crumbs.Last().Attr("href")
	if href == "" {
		return "", nil
	}
	return p.site.origin + href, nil
}

func (p *Page) mutator() (Mutator, error) {
	m, ok := p.site.backend.(Mutator)
	if !ok {
		return nil, ErrReadOnly
	}
	return m, nil
}

// invalidation sets per write operation

func (p *Page) flushData()    { p.pdata = nil }
func (p *Page) flushHistory() { p.history = nil }
func (p *Page) flushVotes()   { p.votes = nil }

// Edit overwrites the page with new source. An empty title keeps the
// current one.
func (p *Page) Edit(ctx context.Context, source, title, comment string) error {
	m, err := p.mutator()
	if err != nil {
		return err
	}
	if title == "" {
		title, err = p.rawTitle(ctx)
		if err != nil {
			return err
		}
	}
	if err := m.Edit(ctx, p, source, title, comment); err != nil {
		return err
	}
	p.flushData()
	p.flushHistory()
	return nil
}

// Create makes a brand-new page; it fails if the page already exists.
func (p *Page) Create(ctx context.Context, source, title, comment string) error {
	m, err := p.mutator()
	if err != nil {
		return err
	}
	if err := m.Create(ctx, p, source, title, comment); err != nil {
		return err
	}
	p.flushData()
	p.flushHistory()
	return nil
}

// Revert restores the page to revision number n.
func (p *Page) Revert(ctx context.Context, n int) error {
	m, err := p.mutator()
	if err != nil {
		return err
	}
	history, err := p.History(ctx)
	if err != nil {
		return err
	}
	if n < 0 || n >= len(history) {
		return fmt.Errorf("%w: no revision %d", ErrLookup, n)
	}
	if err := m.Revert(ctx, p, history[n]); err != nil {
		return err
	}
	p.flushData()
	p.flushHistory()
	return nil
}

// SetTags replaces the page's whole tag set.
func (p *Page) SetTags(ctx context.Context, tags []string) error {
	m, err := p.mutator()
	if err != nil {
		return err
	}
	if err := m.SetTags(ctx, p, tags); err != nil {
		return err
	}
	p.flushData()
	p.flushHistory()
	return nil
}

func (p *Page) Upvote(ctx context.Context) error   { return p.vote(ctx, 1) }
func (p *Page) Downvote(ctx context.Context) error { return p.vote(ctx, -1) }

// CancelVote retracts the current user's vote.
func (p *Page) CancelVote(ctx context.Context) error { return p.vote(ctx, 0) }

func (p *Page) vote(ctx context.Context, value int) error {
	m, err := p.mutator()
	if err != nil {
		return err
	}
	if err := m.Vote(ctx, p, value); err != nil {
		return err
	}
	p.flushVotes()
	return nil
}
