package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"wikisnap/lib/snapshot/db"
	"wikisnap/lib/wiki"
	"wikisnap/lib/wikidot"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("snapshot")

const defaultWorkers = 20

// page-comment threads live in this category and are captured through
// their pages, not through the forum crawl
const perPageCategory = "Per page discussions"

// licenses under which captured images may be redistributed
var allowedLicenses = map[string]bool{
	"PERMISO GARANTIZÁDO": true,
	"BY-NC-SA CC":         true,
	"BY-SA CC":            true,
	"DOMINIO PÚBLICO":     true,
}

// forumLister is the forum surface of a backend. A backend without it
// yields a capture with no standalone forums, logged, not fatal.
type forumLister interface {
	ListCategories(ctx context.Context) ([]wiki.Category, error)
	ListThreads(ctx context.Context, categoryID int64) ([]wiki.Thread, error)
}

// imageLister is the image-review surface of a backend.
type imageLister interface {
	ListImages(ctx context.Context) ([]wiki.Image, error)
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Builder captures a full site into a fresh sqlite store. Pages are
// fetched concurrently; a page whose fetch fails with a connectivity or
// protocol error is logged and skipped, never aborting the run.
type Builder struct {
	Site    *wiki.Site
	Workers int
	Forums  bool
	Images  bool
}

// build-time shared state: the single writer connection, the name→id
// cache and the first fatal (non-skippable) error.
type buildState struct {
	mu    sync.Mutex
	qry   *db.Queries
	sqldb *sql.DB
	ids   *idCache
	fatal error
}

func (st *buildState) fail(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.fatal == nil {
		st.fatal = err
	}
}

func (st *buildState) failed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.fatal != nil
}

// Build creates the store at dbpath and fills it. The path must not
// exist yet; a previous run's store is never silently extended or
// overwritten.
func (b *Builder) Build(ctx context.Context, dbpath string) error {
	ctx, span := tracer.Start(ctx, "builder:Build")
	defer span.End()

	if _, err := os.Stat(dbpath); err == nil {
		return fmt.Errorf("%w: %s", ErrStoreExists, dbpath)
	}
	sqldb, err := openStore(dbpath)
	if err != nil {
		return err
	}
	defer sqldb.Close()
	if _, err := sqldb.ExecContext(ctx, db.Schema); err != nil {
		return err
	}
	ids, err := loadIDCache(dbpath + ".ids.json")
	if err != nil {
		return err
	}

	st := &buildState{qry: db.New(sqldb), sqldb: sqldb, ids: ids}

	if err := b.buildPages(ctx, st); err != nil {
		span.SetStatus(codes.Error, "page phase failed")
		return err
	}
	if b.Forums {
		if err := b.buildForums(ctx, st); err != nil {
			span.SetStatus(codes.Error, "forum phase failed")
			return err
		}
	}
	if err := b.buildMeta(ctx, st); err != nil {
		span.SetStatus(codes.Error, "meta phase failed")
		return err
	}

	if err := b.flushNames(ctx, st); err != nil {
		return err
	}
	return ids.save()
}

func (b *Builder) workers() int {
	if b.Workers > 0 {
		return b.Workers
	}
	return defaultWorkers
}

// skippable reports whether a per-item failure should be logged and
// skipped rather than abort the whole build.
func skippable(err error) bool {
	return errors.Is(err, wikidot.ErrConnectivity) ||
		errors.Is(err, wikidot.ErrProtocol)
}

func (b *Builder) buildPages(ctx context.Context, st *buildState) error {
	pages, err := b.Site.ListPages(ctx, wiki.ListOptions{})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "capturing pages", "count", len(pages))

	sem := make(chan struct{}, b.workers())
	var wg sync.WaitGroup
	for _, page := range pages {
		if ctx.Err() != nil || st.failed() {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(page *wiki.Page) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := b.capturePage(ctx, st, page); err != nil {
				if skippable(err) {
					slog.WarnContext(ctx, "skipping page", "url", page.URL, "err", err)
					return
				}
				st.fail(err)
			}
		}(page)
	}
	wg.Wait()

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.fatal
}

// capturePage fetches everything about one page, then persists it in a
// single transaction under the writer lock. Fetching happens outside
// the lock so workers only serialize on the store.
func (b *Builder) capturePage(ctx context.Context, st *buildState, page *wiki.Page) error {
	data, err := page.Data(ctx)
	if err != nil {
		return err
	}
	history, err := page.History(ctx)
	if err != nil {
		return err
	}
	votes, err := page.Votes(ctx)
	if err != nil {
		return err
	}
	posts, err := page.Posts(ctx)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return withTx(ctx, st, func(q *db.Queries) error {
		err := q.CreatePage(ctx, db.PageRow{
			ID:       data.ID,
			URL:      page.URL,
			ThreadID: data.ThreadID,
			HTML:     data.HTML,
		})
		if err != nil {
			return err
		}
		for _, rev := range history {
			err := q.CreateRevision(
				ctx, data.ID, rev.ID, rev.Number,
				st.ids.User(rev.User), rev.Time, rev.Comment,
			)
			if err != nil {
				return err
			}
		}
		for _, v := range votes {
			if err := q.CreateVote(ctx, data.ID, st.ids.User(v.User), v.Value); err != nil {
				return err
			}
		}
		for _, tag := range data.Tags {
			if err := q.CreatePageTag(ctx, data.ID, st.ids.Tag(tag)); err != nil {
				return err
			}
		}
		if data.ThreadID != 0 {
			err := q.CreateForumThread(ctx, data.ThreadID, sql.NullInt64{}, "", "")
			if err != nil {
				return err
			}
			for _, post := range posts {
				if err := createPost(ctx, q, st.ids, data.ThreadID, post); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func createPost(ctx context.Context, q *db.Queries, ids *idCache, threadID int64, post wiki.Post) error {
	parent := sql.NullInt64{}
	if post.Parent != nil {
		parent = sql.NullInt64{Int64: *post.Parent, Valid: true}
	}
	return q.CreateForumPost(
		ctx, threadID, post.ID, parent,
		post.Title, post.Content, ids.User(post.User), post.Time,
	)
}

// buildForums captures the standalone forum: every category except the
// per-page one, its threads and their posts.
func (b *Builder) buildForums(ctx context.Context, st *buildState) error {
	forum, ok := b.Site.Backend().(forumLister)
	if !ok {
		slog.WarnContext(ctx, "backend has no forum listing, skipping forums")
		return nil
	}
	categories, err := forum.ListCategories(ctx)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, b.workers())
	var wg sync.WaitGroup
	for _, cat := range categories {
		if cat.Title == perPageCategory {
			continue
		}
		if ctx.Err() != nil || st.failed() {
			break
		}

		st.mu.Lock()
		err := st.qry.CreateForumCategory(ctx, cat.ID, cat.Title, cat.Description)
		st.mu.Unlock()
		if err != nil {
			return err
		}

		threads, err := forum.ListThreads(ctx, cat.ID)
		if err != nil {
			if skippable(err) {
				slog.WarnContext(ctx, "skipping category", "category", cat.Title, "err", err)
				continue
			}
			return err
		}
		for _, thread := range threads {
			if ctx.Err() != nil || st.failed() {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(categoryID int64, thread wiki.Thread) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := b.captureThread(ctx, st, categoryID, thread); err != nil {
					if skippable(err) {
						slog.WarnContext(ctx, "skipping thread", "thread", thread.ID, "err", err)
						return
					}
					st.fail(err)
				}
			}(cat.ID, thread)
		}
	}
	wg.Wait()

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.fatal
}

func (b *Builder) captureThread(ctx context.Context, st *buildState, categoryID int64, thread wiki.Thread) error {
	posts, err := b.Site.Backend().ThreadPosts(ctx, thread.ID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return withTx(ctx, st, func(q *db.Queries) error {
		err := q.CreateForumThread(
			ctx, thread.ID,
			sql.NullInt64{Int64: categoryID, Valid: true},
			thread.Title, thread.Description,
		)
		if err != nil {
			return err
		}
		for _, post := range posts {
			if err := createPost(ctx, q, st.ids, thread.ID, post); err != nil {
				return err
			}
		}
		return nil
	})
}

// buildMeta captures the attribution overrides and, when enabled, the
// image-review records with their bytes.
func (b *Builder) buildMeta(ctx context.Context, st *buildState) error {
	records, err := b.Site.Metadata(ctx)
	if err != nil {
		return err
	}
	for _, m := range records {
		st.mu.Lock()
		err := st.qry.CreateOverride(
			ctx, m.URL, st.ids.User(m.User), st.ids.OverrideType(m.Role), m.Date,
		)
		st.mu.Unlock()
		if err != nil {
			return err
		}
	}
	if !b.Images {
		return nil
	}
	return b.buildImages(ctx, st)
}

func (b *Builder) buildImages(ctx context.Context, st *buildState) error {
	lister, ok := b.Site.Backend().(imageLister)
	if !ok {
		slog.WarnContext(ctx, "backend has no image listing, skipping images")
		return nil
	}
	images, err := lister.ListImages(ctx)
	if err != nil {
		return err
	}

	for _, img := range images {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !allowedLicenses[img.Status] || img.Source == "" {
			continue
		}
		data, err := lister.FetchImage(ctx, img.URL)
		if err != nil {
			slog.WarnContext(ctx, "skipping image", "url", img.URL, "err", err)
			continue
		}
		st.mu.Lock()
		err = st.qry.CreateImage(
			ctx, img.URL, img.Source, st.ids.ImageStatus(img.Status), img.Notes, data,
		)
		st.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) flushNames(ctx context.Context, st *buildState) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.ids.mu.Lock()
	defer st.ids.mu.Unlock()
	for table, names := range map[string]map[string]int64{
		"user":          st.ids.Users,
		"tag":           st.ids.Tags,
		"override_type": st.ids.OverrideTypes,
		"image_status":  st.ids.ImageStatuses,
	} {
		if err := st.qry.WriteNames(ctx, table, names); err != nil {
			return err
		}
	}
	return nil
}

func withTx(ctx context.Context, st *buildState, fn func(q *db.Queries) error) error {
	tx, err := st.sqldb.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(st.qry.WithTx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
