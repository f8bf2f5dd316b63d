package wikidot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"wikisnap/lib/wiki"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

const listPerPage = 250

// ListPages drives the ListPages module. Requested body fields are
// rendered into the module's table mini-syntax so every listed page
// comes back as a small key/value grid.
func (c *Client) ListPages(ctx context.Context, opts wiki.ListOptions) ([]wiki.Seed, error) {
	ctx, span := tracer.Start(ctx, "client:ListPages")
	defer span.End()

	keys := map[string]bool{"fullname": true}
	for _, key := range strings.Fields(opts.Body) {
		keys[key] = true
	}
	var grid []string
	for key := range keys {
		grid = append(grid, fmt.Sprintf("||%s||%%%%%s%%%% ||", key, key))
	}

	args := map[string]string{
		"perPage":     strconv.Itoa(listPerPage),
		"module_body": strings.Join(grid, "\n"),
	}
	if opts.Author != "" {
		args["created_by"] = opts.Author
	}
	if opts.Tag != "" {
		args["tags"] = opts.Tag
	}
	if opts.Rating != "" {
		if _, err := wiki.ParseComparison(opts.Rating); err != nil {
			return nil, err
		}
		args["rating"] = opts.Rating
	}
	if opts.Created != "" {
		if _, err := wiki.ParseComparison(opts.Created); err != nil {
			return nil, err
		}
		args["created_at"] = opts.Created
	}
	if opts.Limit > 0 {
		args["limit"] = strconv.Itoa(opts.Limit)
	}

	var seeds []wiki.Seed
	err := c.pager(
		ctx, "list/ListPagesModule", "offset", args,
		func(page int) string { return strconv.Itoa(listPerPage * (page - 1)) },
		func(body string) error {
			parsed, err := parseListBody(body)
			if err != nil {
				return err
			}
			seeds = append(seeds, parsed...)
			return nil
		},
	)
	if err != nil {
		span.SetStatus(codes.Error, "listing failed")
		return nil, err
	}
	return seeds, nil
}

// parseListBody turns one module page of list-pages-item grids into
// seeds with their resolved optional fields.
func parseListBody(body string) ([]wiki.Seed, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable listing html: %v", ErrProtocol, err)
	}

	var seeds []wiki.Seed
	doc.Find("div.list-pages-item").Each(func(_ int, item *goquery.Selection) {
		fields := map[string]string{}
		item.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 2 {
				return
			}
			fields[strings.TrimSpace(cells.Eq(0).Text())] = strings.TrimSpace(cells.Eq(1).Text())
		})
		if fields["fullname"] == "" {
			return
		}
		seed := wiki.Seed{
			FullName:  fields["fullname"],
			Title:     fields["title"],
			CreatedBy: fields["created_by"],
			CreatedAt: fields["created_at"],
		}
		if raw, ok := fields["rating"]; ok {
			if rating, err := strconv.Atoi(raw); err == nil {
				seed.Rating = &rating
			}
		}
		if raw, ok := fields["tags"]; ok {
			seed.Tags = strings.Fields(raw)
		}
		if raw, ok := fields["total"]; ok {
			if total, err := strconv.Atoi(raw); err == nil {
				seed.Total = total
			}
		}
		seeds = append(seeds, seed)
	})
	return seeds, nil
}
