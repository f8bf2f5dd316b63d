// Package db is the snapshot store's query layer: an embedded schema
// plus hand-written queries over database/sql.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type PageRow struct {
	ID       int64
	URL      string
	ThreadID int64
	HTML     string
}

type RevisionRow struct {
	ID      int64
	Number  int
	User    string
	Time    string
	Comment string
}

type VoteRow struct {
	User  string
	Value int
}

type PostRow struct {
	ID      int64
	Title   string
	Content string
	User    string
	Time    string
	Parent  sql.NullInt64
}

type ImageRow struct {
	URL    string
	Source string
	Status string
	Notes  string
	Data   []byte
}

func (q *Queries) CreatePage(ctx context.Context, row PageRow) error {
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO page (id, url, thread_id, html) VALUES (?, ?, ?, ?)`,
		row.ID, row.URL, row.ThreadID, row.HTML,
	)
	return err
}

func (q *Queries) CreateRevision(ctx context.Context, pageID, revID int64, number int, userID int64, time, comment string) error {
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO revision (id, page_id, number, user_id, time, comment)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		revID, pageID, number, userID, time, comment,
	)
	return err
}

func (q *Queries) CreateVote(ctx context.Context, pageID, userID int64, value int) error {
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO vote (page_id, user_id, value) VALUES (?, ?, ?)`,
		pageID, userID, value,
	)
	return err
}

func (q *Queries) CreatePageTag(ctx context.Context, pageID, tagID int64) error {
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO page_tag (page_id, tag_id) VALUES (?, ?)`,
		pageID, tagID,
	)
	return err
}

func (q *Queries) CreateForumCategory(ctx context.Context, id int64, title, description string) error {
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO forum_category (id, title, description) VALUES (?, ?, ?)`,
		id, title, description,
	)
	return err
}

func (q *Queries) CreateForumThread(ctx context.Context, id int64, categoryID sql.NullInt64, title, description string) error {
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO forum_thread (id, category_id, title, description)
		 VALUES (?, ?, ?, ?)`,
		id, categoryID, title, description,
	)
	return err
}

func (q *Queries) CreateForumPost(ctx context.Context, threadID, postID int64, parent sql.NullInt64, title, content string, userID int64, time string) error {
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO forum_post (id, thread_id, parent_id, title, content, user_id, time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		postID, threadID, parent, title, content, userID, time,
	)
	return err
}

func (q *Queries) CreateOverride(ctx context.Context, url string, userID, typeID int64, date string) error {
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO override (url, user_id, type_id, date) VALUES (?, ?, ?, ?)`,
		url, userID, typeID, date,
	)
	return err
}

func (q *Queries) CreateImage(ctx context.Context, url, source string, statusID int64, notes string, data []byte) error {
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO image (url, source, status_id, notes, data)
		 VALUES (?, ?, ?, ?, ?)`,
		url, source, statusID, notes, data,
	)
	return err
}

// WriteNames flushes a name→id mapping into one of the lookup tables.
// Idempotent, ids are stable across runs.
func (q *Queries) WriteNames(ctx context.Context, table string, names map[string]int64) error {
	switch table {
	case "user", "tag", "override_type", "image_status":
	default:
		return fmt.Errorf("not a lookup table: %q", table)
	}
	for name, id := range names {
		_, err := q.db.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO `+table+` (id, name) VALUES (?, ?)`,
			id, name,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (q *Queries) GetPageByURL(ctx context.Context, url string) (PageRow, error) {
	var row PageRow
	var threadID sql.NullInt64
	err := q.db.QueryRowContext(
		ctx,
		`SELECT id, url, thread_id, html FROM page WHERE url = ?`,
		url,
	).Scan(&row.ID, &row.URL, &threadID, &row.HTML)
	if err != nil {
		return PageRow{}, err
	}
	row.ThreadID = threadID.Int64
	return row, nil
}

func (q *Queries) GetPageTags(ctx context.Context, pageID int64) ([]string, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT t.name FROM page_tag pt
		 JOIN tag t ON t.id = pt.tag_id
		 WHERE pt.page_id = ?
		 ORDER BY t.name`,
		pageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (q *Queries) GetRevisions(ctx context.Context, pageID int64) ([]RevisionRow, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT r.id, r.number, u.name, r.time, r.comment
		 FROM revision r
		 JOIN user u ON u.id = r.user_id
		 WHERE r.page_id = ?
		 ORDER BY r.number`,
		pageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revisions []RevisionRow
	for rows.Next() {
		var r RevisionRow
		if err := rows.Scan(&r.ID, &r.Number, &r.User, &r.Time, &r.Comment); err != nil {
			return nil, err
		}
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

func (q *Queries) GetVotes(ctx context.Context, pageID int64) ([]VoteRow, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT u.name, v.value FROM vote v
		 JOIN user u ON u.id = v.user_id
		 WHERE v.page_id = ?
		 ORDER BY u.name`,
		pageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []VoteRow
	for rows.Next() {
		var v VoteRow
		if err := rows.Scan(&v.User, &v.Value); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (q *Queries) GetThreadPosts(ctx context.Context, threadID int64) ([]PostRow, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT p.id, p.title, p.content, u.name, p.time, p.parent_id
		 FROM forum_post p
		 JOIN user u ON u.id = p.user_id
		 WHERE p.thread_id = ?
		 ORDER BY p.id`,
		threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []PostRow
	for rows.Next() {
		var p PostRow
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.User, &p.Time, &p.Parent); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

type CategoryRow struct {
	ID          int64
	Title       string
	Description string
	Size        int
}

type ThreadRow struct {
	ID          int64
	Title       string
	Description string
}

type OverrideRow struct {
	URL  string
	User string
	Role string
	Date string
}

func (q *Queries) GetForumCategories(ctx context.Context) ([]CategoryRow, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT c.id, c.title, c.description, COUNT(t.id)
		 FROM forum_category c
		 LEFT JOIN forum_thread t ON t.category_id = c.id
		 GROUP BY c.id
		 ORDER BY c.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []CategoryRow
	for rows.Next() {
		var c CategoryRow
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Size); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (q *Queries) GetCategoryThreads(ctx context.Context, categoryID int64) ([]ThreadRow, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT id, title, description FROM forum_thread
		 WHERE category_id = ?
		 ORDER BY id`,
		categoryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []ThreadRow
	for rows.Next() {
		var t ThreadRow
		if err := rows.Scan(&t.ID, &t.Title, &t.Description); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

func (q *Queries) GetOverrides(ctx context.Context) ([]OverrideRow, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT o.url, u.name, t.name, o.date
		 FROM override o
		 JOIN user u ON u.id = o.user_id
		 JOIN override_type t ON t.id = o.type_id
		 ORDER BY o.url, u.name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []OverrideRow
	for rows.Next() {
		var o OverrideRow
		if err := rows.Scan(&o.URL, &o.User, &o.Role, &o.Date); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (q *Queries) GetImageData(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := q.db.QueryRowContext(
		ctx,
		`SELECT data FROM image WHERE url = ?`,
		url,
	).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (q *Queries) ListImages(ctx context.Context) ([]ImageRow, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT i.url, i.source, s.name, i.notes, i.data
		 FROM image i
		 JOIN image_status s ON s.id = i.status_id
		 ORDER BY i.url`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []ImageRow
	for rows.Next() {
		var i ImageRow
		if err := rows.Scan(&i.URL, &i.Source, &i.Status, &i.Notes, &i.Data); err != nil {
			return nil, err
		}
		images = append(images, i)
	}
	return images, rows.Err()
}

// ListPagesParams carries pre-validated listing predicates. The
// operator fields only ever hold one of the five comparison operators.
type ListPagesParams struct {
	Author        string
	Tag           string
	RatingOp      string
	Rating        int
	CreatedOp     string
	CreatedPrefix string
	Limit         int
}

// ListPageURLs intersects the requested predicates and returns matching
// page urls in stable order.
func (q *Queries) ListPageURLs(ctx context.Context, params ListPagesParams) ([]string, error) {
	query := `SELECT p.url FROM page p`
	var where []string
	var args []any

	if params.Author != "" || params.CreatedOp != "" {
		query += ` JOIN revision r0 ON r0.page_id = p.id AND r0.number = 0`
	}
	if params.Author != "" {
		query += ` JOIN user au ON au.id = r0.user_id`
		where = append(where, `au.name = ?`)
		args = append(args, params.Author)
	}
	if params.Tag != "" {
		query += ` JOIN page_tag pt ON pt.page_id = p.id
			JOIN tag t ON t.id = pt.tag_id`
		where = append(where, `t.name = ?`)
		args = append(args, params.Tag)
	}
	if params.CreatedOp != "" {
		where = append(
			where,
			fmt.Sprintf(`substr(r0.time, 1, %d) %s ?`, len(params.CreatedPrefix), params.CreatedOp),
		)
		args = append(args, params.CreatedPrefix)
	}
	if params.RatingOp != "" {
		where = append(
			where,
			fmt.Sprintf(
				`(SELECT COALESCE(SUM(v.value), 0) FROM vote v WHERE v.page_id = p.id) %s ?`,
				params.RatingOp,
			),
		)
		args = append(args, params.Rating)
	}

	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY p.url`
	if params.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, params.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}
