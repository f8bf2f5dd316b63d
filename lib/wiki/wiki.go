// Package wiki defines the entity model shared by every backend: pages,
// revisions, votes, forum posts and the attribution metadata attached to
// them. A Site ties a backend implementation to an origin and hands out
// Page values; Page derives everything else lazily from backend calls.
package wiki

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrReadOnly = errors.New("backend does not support writes")
	ErrLookup   = errors.New("lookup failed")
)

// Revision is one entry of a page's history. Number 0 is the revision
// that created the page; numbers are contiguous per page.
type Revision struct {
	ID      int64
	Number  int
	User    string
	Time    string
	Comment string
}

// Vote is a single user's current vote on a page, Value is -1 or +1.
type Vote struct {
	User  string
	Value int
}

// Post is one forum post. Parent is nil for top-level posts, otherwise
// it references another post id in the same thread.
type Post struct {
	ID      int64
	Title   string
	Content string
	User    string
	Time    string
	Parent  *int64
}

// Metadata is an out-of-band attribution record: a user credited on a
// page in a given role. Role is one of autor, reescritor, traductor,
// mantenimiento.
type Metadata struct {
	URL  string
	User string
	Role string
	Date string
}

// Category is a standalone forum category.
type Category struct {
	ID          int64
	Title       string
	Description string
	Size        int
}

// Image is an image-review record: hosting url, original source and the
// confirmed license status.
type Image struct {
	URL    string
	Source string
	Status string
	Notes  string
	Data   []byte
}

// Thread is a forum thread, either a page's comment thread or a
// standalone one.
type Thread struct {
	ID          int64
	Title       string
	Description string
}

// PageData is the backend-resolved core of a page: its id, the id of its
// comment thread (0 when the page has none) and the raw html body.
type PageData struct {
	ID       int64
	ThreadID int64
	HTML     string
	Tags     []string
}

// Seed carries the optional per-page fields a listing call may have
// already resolved, so that Page getters can avoid a second fetch.
// Zero fields mean "not resolved", not "empty".
type Seed struct {
	FullName  string
	Title     string
	CreatedBy string
	CreatedAt string
	Rating    *int
	Tags      []string
	Total     int
}

// Backend resolves page data from somewhere: the live site or a
// snapshot. Both implementations satisfy the same contract; shared
// behavior (listing reconciliation, derived fields) lives on Site and
// Page instead.
type Backend interface {
	PageData(ctx context.Context, url string) (PageData, error)
	History(ctx context.Context, pageID int64) ([]Revision, error)
	Votes(ctx context.Context, pageID int64) ([]Vote, error)
	ThreadPosts(ctx context.Context, threadID int64) ([]Post, error)
	ListPages(ctx context.Context, opts ListOptions) ([]Seed, error)
}

// Mutator is the optional write half of a backend. The snapshot backend
// does not implement it.
type Mutator interface {
	Edit(ctx context.Context, p *Page, source, title, comment string) error
	Create(ctx context.Context, p *Page, source, title, comment string) error
	Revert(ctx context.Context, p *Page, rev Revision) error
	SetTags(ctx context.Context, p *Page, tags []string) error
	Vote(ctx context.Context, p *Page, value int) error
}

// NormalizeOrigin turns a site name or url into a canonical
// "http://host" origin. A bare name without a dot is assumed to live
// under wikidot.com.
func NormalizeOrigin(site string) string {
	parsed, err := url.Parse(site)
	host := site
	if err == nil {
		if parsed.Host != "" {
			host = parsed.Host
		} else {
			host = parsed.Path
		}
	}
	host = strings.Trim(host, "/")
	if !strings.Contains(host, ".") {
		host += ".wikidot.com"
	}
	return "http://" + host
}

func (r Revision) String() string {
	return fmt.Sprintf("revision %d by %s at %s", r.Number, r.User, r.Time)
}

// ChildIndex builds a parent-id → children index over a flat post list,
// for reconstructing the nesting of a thread without a recursive object
// graph. Top-level posts are keyed under 0.
func ChildIndex(posts []Post) map[int64][]Post {
	index := map[int64][]Post{}
	for _, p := range posts {
		parent := int64(0)
		if p.Parent != nil {
			parent = *p.Parent
		}
		index[parent] = append(index[parent], p)
	}
	return index
}
