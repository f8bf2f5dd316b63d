package wikidot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"wikisnap/lib/htmlutil"
	"wikisnap/lib/wiki"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// ThreadPosts recovers every post of a forum thread, walking the nested
// post containers depth first so each post knows its parent.
func (c *Client) ThreadPosts(ctx context.Context, threadID int64) ([]wiki.Post, error) {
	ctx, span := tracer.Start(ctx, "client:ThreadPosts")
	defer span.End()

	var posts []wiki.Post
	err := c.pager(
		ctx, "forum/ForumViewThreadPostsModule", "pageNo",
		map[string]string{"t": strconv.FormatInt(threadID, 10)},
		nil,
		func(body string) error {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
			if err != nil {
				return fmt.Errorf("%w: unparseable thread html: %v", ErrProtocol, err)
			}
			containers := doc.Find("body").ChildrenFiltered(".post-container")
			parsed, err := crawlPosts(containers, nil)
			if err != nil {
				return err
			}
			posts = append(posts, parsed...)
			return nil
		},
	)
	if err != nil {
		span.SetStatus(codes.Error, "thread posts failed")
		return nil, err
	}
	return posts, nil
}

// crawlPosts yields (post, parent) pairs for each container in the
// given selection, then recurses into the container's own
// post-container children with the container's id as parent.
func crawlPosts(containers *goquery.Selection, parent *int64) ([]wiki.Post, error) {
	var posts []wiki.Post
	var crawlErr error
	containers.EachWithBreak(func(_ int, container *goquery.Selection) bool {
		post, err := parsePost(container.Find(".post").First(), parent)
		if err != nil {
			crawlErr = err
			return false
		}
		posts = append(posts, post)

		containerID := htmlutil.SuffixID(container.AttrOr("id", ""))
		children, err := crawlPosts(
			container.ChildrenFiltered(".post-container"), &containerID)
		if err != nil {
			crawlErr = err
			return false
		}
		posts = append(posts, children...)
		return true
	})
	return posts, crawlErr
}

func parsePost(post *goquery.Selection, parent *int64) (wiki.Post, error) {
	if post.Length() == 0 {
		return wiki.Post{}, fmt.Errorf("%w: post container without post", ErrProtocol)
	}

	content := post.Find(".content").First()
	contentHTML := ""
	if len(content.Nodes) > 0 {
		// drop the container's attributes, only the markup matters
		content.Nodes[0].Attr = nil
		var err error
		contentHTML, err = goquery.OuterHtml(content)
		if err != nil {
			return wiki.Post{}, err
		}
	}

	return wiki.Post{
		ID:      htmlutil.SuffixID(post.AttrOr("id", "")),
		Title:   htmlutil.CleanText(post.Find(".title").First()),
		Content: contentHTML,
		User:    htmlutil.CleanText(post.Find(".printuser").First()),
		Time:    htmlutil.ElementTime(post),
		Parent:  parent,
	}, nil
}

// NewPost replies in a thread; parentID of 0 makes a top-level post.
func (c *Client) NewPost(ctx context.Context, threadID, parentID int64, title, source string) error {
	args := map[string]string{
		"threadId": strconv.FormatInt(threadID, 10),
		"title":    title,
		"source":   source,
		"action":   "ForumAction",
		"event":    "savePost",
	}
	if parentID != 0 {
		args["parentId"] = strconv.FormatInt(parentID, 10)
	}
	_, err := c.Module(ctx, "Empty", 0, args)
	return err
}

// ListCategories returns the site's forum categories.
func (c *Client) ListCategories(ctx context.Context) ([]wiki.Category, error) {
	ctx, span := tracer.Start(ctx, "client:ListCategories")
	defer span.End()

	res, err := c.Module(ctx, "forum/ForumStartModule", 0, nil)
	if err != nil {
		span.SetStatus(codes.Error, "forum start module failed")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable forum html: %v", ErrProtocol, err)
	}

	var categories []wiki.Category
	doc.Find(".name").Each(func(_ int, name *goquery.Selection) {
		elem := name.Parent()
		size, _ := strconv.Atoi(htmlutil.CleanText(elem.Find(".threads").First()))
		categories = append(categories, wiki.Category{
			ID:          htmlutil.ElementID(elem.Find(".title a").First()),
			Title:       htmlutil.CleanText(elem.Find(".title").First()),
			Description: htmlutil.CleanText(elem.Find(".description").First()),
			Size:        size,
		})
	})
	return categories, nil
}

// ListThreads returns the standalone threads of a forum category.
func (c *Client) ListThreads(ctx context.Context, categoryID int64) ([]wiki.Thread, error) {
	ctx, span := tracer.Start(ctx, "client:ListThreads")
	defer span.End()

	var threads []wiki.Thread
	err := c.pager(
		ctx, "forum/ForumViewCategoryModule", "p",
		map[string]string{"c": strconv.FormatInt(categoryID, 10)},
		nil,
		func(body string) error {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
			if err != nil {
				return fmt.Errorf("%w: unparseable category html: %v", ErrProtocol, err)
			}
			doc.Find(".name").Each(func(_ int, elem *goquery.Selection) {
				threads = append(threads, wiki.Thread{
					ID:          htmlutil.ElementID(elem.Find(".title a").First()),
					Title:       htmlutil.CleanText(elem.Find(".title").First()),
					Description: htmlutil.CleanText(elem.Find(".description").First()),
				})
			})
			return nil
		},
	)
	if err != nil {
		span.SetStatus(codes.Error, "category listing failed")
		return nil, err
	}
	return threads, nil
}
