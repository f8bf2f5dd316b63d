// Package snapshot holds the offline backend over a previously captured
// sqlite store, and the builder that captures one.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"wikisnap/lib/snapshot/db"
	"wikisnap/lib/wiki"

	_ "modernc.org/sqlite"
)

var (
	ErrStoreMissing = errors.New("snapshot store does not exist")
	ErrStoreExists  = errors.New("snapshot store already exists")
)

// openStore opens the sqlite file with the single-writer settings the
// store relies on.
// see https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
func openStore(path string) (*sql.DB, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(1)
	if _, err := database.Exec("PRAGMA journal_mode=WAL"); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// Wiki is the read-only snapshot backend. It satisfies wiki.Backend but
// not wiki.Mutator; writes through it fail with wiki.ErrReadOnly.
type Wiki struct {
	qry *db.Queries
}

// NewWiki opens an existing snapshot and binds it to a Site. A missing
// store file is an error, never silently created.
func NewWiki(site, dbpath string) (*wiki.Site, error) {
	if _, err := os.Stat(dbpath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrStoreMissing, dbpath)
	}
	database, err := openStore(dbpath)
	if err != nil {
		return nil, err
	}
	backend := &Wiki{qry: db.New(database)}
	return wiki.NewSite(site, backend), nil
}

func (w *Wiki) PageData(ctx context.Context, url string) (wiki.PageData, error) {
	row, err := w.qry.GetPageByURL(ctx, url)
	if errors.Is(err, sql.ErrNoRows) {
		return wiki.PageData{}, fmt.Errorf("%w: no page %q in snapshot", wiki.ErrLookup, url)
	}
	if err != nil {
		return wiki.PageData{}, err
	}
	tags, err := w.qry.GetPageTags(ctx, row.ID)
	if err != nil {
		return wiki.PageData{}, err
	}
	return wiki.PageData{
		ID:       row.ID,
		ThreadID: row.ThreadID,
		HTML:     row.HTML,
		Tags:     tags,
	}, nil
}

func (w *Wiki) History(ctx context.Context, pageID int64) ([]wiki.Revision, error) {
	rows, err := w.qry.GetRevisions(ctx, pageID)
	if err != nil {
		return nil, err
	}
	revisions := make([]wiki.Revision, len(rows))
	for i, r := range rows {
		revisions[i] = wiki.Revision{
			ID:      r.ID,
			Number:  r.Number,
			User:    r.User,
			Time:    r.Time,
			Comment: r.Comment,
		}
	}
	return revisions, nil
}

func (w *Wiki) Votes(ctx context.Context, pageID int64) ([]wiki.Vote, error) {
	rows, err := w.qry.GetVotes(ctx, pageID)
	if err != nil {
		return nil, err
	}
	votes := make([]wiki.Vote, len(rows))
	for i, v := range rows {
		votes[i] = wiki.Vote{User: v.User, Value: v.Value}
	}
	return votes, nil
}

func (w *Wiki) ThreadPosts(ctx context.Context, threadID int64) ([]wiki.Post, error) {
	rows, err := w.qry.GetThreadPosts(ctx, threadID)
	if err != nil {
		return nil, err
	}
	posts := make([]wiki.Post, len(rows))
	for i, p := range rows {
		post := wiki.Post{
			ID:      p.ID,
			Title:   p.Title,
			Content: p.Content,
			User:    p.User,
			Time:    p.Time,
		}
		if p.Parent.Valid {
			parent := p.Parent.Int64
			post.Parent = &parent
		}
		posts[i] = post
	}
	return posts, nil
}

// ListPages translates the shared filter record into relational
// predicates, all intersected.
func (w *Wiki) ListPages(ctx context.Context, opts wiki.ListOptions) ([]wiki.Seed, error) {
	params := db.ListPagesParams{
		Author: opts.Author,
		Tag:    opts.Tag,
		Limit:  opts.Limit,
	}
	if opts.Rating != "" {
		cmp, err := wiki.ParseComparison(opts.Rating)
		if err != nil {
			return nil, err
		}
		rating, err := cmp.Int()
		if err != nil {
			return nil, err
		}
		params.RatingOp = cmp.Operator
		params.Rating = rating
	}
	if opts.Created != "" {
		cmp, err := wiki.ParseComparison(opts.Created)
		if err != nil {
			return nil, err
		}
		params.CreatedOp = cmp.Operator
		params.CreatedPrefix = cmp.Operand
	}

	urls, err := w.qry.ListPageURLs(ctx, params)
	if err != nil {
		return nil, err
	}
	seeds := make([]wiki.Seed, len(urls))
	for i, url := range urls {
		seeds[i] = wiki.Seed{FullName: url}
	}
	return seeds, nil
}

// ListCategories returns the captured standalone forum categories; the
// size is the number of threads the capture actually holds.
func (w *Wiki) ListCategories(ctx context.Context) ([]wiki.Category, error) {
	rows, err := w.qry.GetForumCategories(ctx)
	if err != nil {
		return nil, err
	}
	categories := make([]wiki.Category, len(rows))
	for i, c := range rows {
		categories[i] = wiki.Category{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			Size:        c.Size,
		}
	}
	return categories, nil
}

func (w *Wiki) ListThreads(ctx context.Context, categoryID int64) ([]wiki.Thread, error) {
	rows, err := w.qry.GetCategoryThreads(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	threads := make([]wiki.Thread, len(rows))
	for i, t := range rows {
		threads[i] = wiki.Thread{ID: t.ID, Title: t.Title, Description: t.Description}
	}
	return threads, nil
}

// Overrides returns the captured attribution records.
func (w *Wiki) Overrides(ctx context.Context) ([]wiki.Metadata, error) {
	rows, err := w.qry.GetOverrides(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]wiki.Metadata, len(rows))
	for i, o := range rows {
		records[i] = wiki.Metadata{URL: o.URL, User: o.User, Role: o.Role, Date: o.Date}
	}
	return records, nil
}

// FetchImage returns the captured bytes for an image url.
func (w *Wiki) FetchImage(ctx context.Context, url string) ([]byte, error) {
	data, err := w.qry.GetImageData(ctx, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no image %q in snapshot", wiki.ErrLookup, url)
	}
	return data, err
}

// ListImages returns the captured image-review records.
func (w *Wiki) ListImages(ctx context.Context) ([]wiki.Image, error) {
	rows, err := w.qry.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	images := make([]wiki.Image, len(rows))
	for i, r := range rows {
		images[i] = wiki.Image{
			URL:    r.URL,
			Source: r.Source,
			Status: r.Status,
			Notes:  r.Notes,
			Data:   r.Data,
		}
	}
	return images, nil
}
