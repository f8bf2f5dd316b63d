package wikidot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"wikisnap/lib/htmlutil"
	"wikisnap/lib/wiki"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

var pageIDRegex = regexp.MustCompile(`pageId = ([0-9]+);`)

// PageData fetches a page and pulls its id, discussion thread id, body
// html and tags out of the rendered document.
func (c *Client) PageData(ctx context.Context, url string) (wiki.PageData, error) {
	ctx, span := tracer.Start(ctx, "client:PageData")
	defer span.End()

	res, err := c.session.get(ctx, url)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch page")
		return wiki.PageData{}, err
	}
	raw := res.String()

	groups := pageIDRegex.FindStringSubmatch(raw)
	if groups == nil {
		span.SetStatus(codes.Error, "missing page id")
		return wiki.PageData{}, fmt.Errorf("%w: page id not found in %s", ErrProtocol, url)
	}
	id, err := strconv.ParseInt(groups[1], 10, 64)
	if err != nil {
		return wiki.PageData{}, fmt.Errorf("%w: bad page id in %s", ErrProtocol, url)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return wiki.PageData{}, fmt.Errorf("%w: unparseable page html: %v", ErrProtocol, err)
	}

	threadID := htmlutil.ElementID(doc.Find("#discuss-button").First())

	content := doc.Find("#main-content").First()
	html := ""
	if content.Length() > 0 {
		html, err = goquery.OuterHtml(content)
		if err != nil {
			return wiki.PageData{}, err
		}
	}

	var tags []string
	doc.Find(".page-tags a").Each(func(_ int, a *goquery.Selection) {
		tags = append(tags, a.Text())
	})

	return wiki.PageData{
		ID:       id,
		ThreadID: threadID,
		HTML:     html,
		Tags:     tags,
	}, nil
}

// History lists a page's revisions in creation order, revision 0 first.
func (c *Client) History(ctx context.Context, pageID int64) ([]wiki.Revision, error) {
	ctx, span := tracer.Start(ctx, "client:History")
	defer span.End()

	res, err := c.Module(ctx, "history/PageRevisionListModule", pageID, map[string]string{
		"page":    "1",
		"perpage": "99999",
	})
	if err != nil {
		span.SetStatus(codes.Error, "history module failed")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable history html: %v", ErrProtocol, err)
	}

	rows := doc.Find("tr")
	var revisions []wiki.Revision
	// rows come newest first, skip the header row
	for i := rows.Length() - 1; i >= 1; i-- {
		row := rows.Eq(i)
		cells := row.Find("td")
		if cells.Length() < 7 {
			continue
		}
		number, err := strconv.Atoi(strings.Trim(cells.Eq(0).Text(), ". \n\t"))
		if err != nil {
			continue
		}
		revisions = append(revisions, wiki.Revision{
			ID:      htmlutil.SuffixID(row.AttrOr("id", "")),
			Number:  number,
			User:    strings.TrimSpace(cells.Eq(4).Text()),
			Time:    htmlutil.ElementTime(cells.Eq(5)),
			Comment: strings.TrimSpace(cells.Eq(6).Text()),
		})
	}
	return revisions, nil
}

// Votes lists the current votes on a page. The module renders them as
// alternating user and sign spans.
func (c *Client) Votes(ctx context.Context, pageID int64) ([]wiki.Vote, error) {
	ctx, span := tracer.Start(ctx, "client:Votes")
	defer span.End()

	res, err := c.Module(ctx, "pagerate/WhoRatedPageModule", pageID, nil)
	if err != nil {
		span.SetStatus(codes.Error, "votes module failed")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable votes html: %v", ErrProtocol, err)
	}

	var spans []string
	doc.Find("span").Each(func(_ int, s *goquery.Selection) {
		spans = append(spans, strings.TrimSpace(s.Text()))
	})

	var votes []wiki.Vote
	for i := 0; i+1 < len(spans); i += 2 {
		value := -1
		if spans[i+1] == "+" {
			value = 1
		}
		votes = append(votes, wiki.Vote{User: spans[i], Value: value})
	}
	return votes, nil
}

// Source returns a page's wiki markup via the view-source module.
func (c *Client) Source(ctx context.Context, pageID int64) (string, error) {
	res, err := c.Module(ctx, "viewsource/ViewSourceModule", pageID, nil)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return "", fmt.Errorf("%w: unparseable source html: %v", ErrProtocol, err)
	}
	text := doc.Text()
	if len(text) > 11 {
		text = text[11:]
	}
	return strings.ReplaceAll(strings.TrimSpace(text), " ", " "), nil
}

// action runs a WikiPageAction event against a page.
func (c *Client) action(ctx context.Context, pageID int64, event string, args map[string]string) error {
	form := map[string]string{
		"action": "WikiPageAction",
		"event":  event,
	}
	for k, v := range args {
		form[k] = v
	}
	_, err := c.Module(ctx, "Empty", pageID, form)
	return err
}

// Edit locks the page, then saves new source over it.
func (c *Client) Edit(ctx context.Context, p *wiki.Page, source, title, comment string) error {
	id, err := p.ID(ctx)
	if err != nil {
		return err
	}
	return c.editPage(ctx, id, p.Name(), source, title, comment)
}

// Create is an edit without a prior page id.
func (c *Client) Create(ctx context.Context, p *wiki.Page, source, title, comment string) error {
	return c.editPage(ctx, 0, p.Name(), source, title, comment)
}

func (c *Client) editPage(ctx context.Context, pageID int64, name, source, title, comment string) error {
	ctx, span := tracer.Start(ctx, "client:editPage")
	defer span.End()

	lock, err := c.Module(ctx, "edit/PageEditModule", pageID, map[string]string{
		"mode":       "page",
		"wiki_page":  name,
		"force_lock": "true",
	})
	if err != nil {
		span.SetStatus(codes.Error, "failed to lock page")
		return err
	}
	return c.action(ctx, pageID, "savePage", map[string]string{
		"source":      source,
		"title":       title,
		"comments":    comment,
		"wiki_page":   name,
		"lock_id":     lock.LockID,
		"lock_secret": lock.LockSecret,
		"revision_id": lock.PageRevisionID.String(),
	})
}

// Revert restores the page to the given revision.
func (c *Client) Revert(ctx context.Context, p *wiki.Page, rev wiki.Revision) error {
	id, err := p.ID(ctx)
	if err != nil {
		return err
	}
	return c.action(ctx, id, "revert", map[string]string{
		"revisionId": strconv.FormatInt(rev.ID, 10),
	})
}

// SetTags replaces the whole tag set; the module takes no diffs.
func (c *Client) SetTags(ctx context.Context, p *wiki.Page, tags []string) error {
	id, err := p.ID(ctx)
	if err != nil {
		return err
	}
	return c.action(ctx, id, "saveTags", map[string]string{
		"tags": strings.Join(tags, " "),
	})
}

// Vote rates the page; value 0 cancels the current vote.
func (c *Client) Vote(ctx context.Context, p *wiki.Page, value int) error {
	id, err := p.ID(ctx)
	if err != nil {
		return err
	}
	event := "ratePage"
	if value == 0 {
		event = "cancelVote"
	}
	_, err = c.Module(ctx, "Empty", id, map[string]string{
		"action": "RateAction",
		"event":  event,
		"points": strconv.Itoa(value),
		"force":  "true",
	})
	return err
}
