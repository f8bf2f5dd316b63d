package wikidot

import (
	"context"
	"fmt"
	"strings"

	"wikisnap/lib/wiki"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// image-review hub pages live on the drafts site, numbered 1..35
const (
	imageReviewBase  = "http://borradores-scp-es.wikidot.com/image-review-%d"
	imageReviewPages = 35
)

// ListImages scrapes the image-review hub: hosting url, original
// source, license status and reviewer notes per image. Cached for the
// process lifetime; only the extended site carries the hub.
func (c *Client) ListImages(ctx context.Context) ([]wiki.Image, error) {
	c.imagesOnce.Do(func() {
		if !strings.Contains(c.origin, "lafundacionscp") {
			return
		}
		c.images, c.imagesErr = c.scrapeImages(ctx)
	})
	return c.images, c.imagesErr
}

func (c *Client) scrapeImages(ctx context.Context) ([]wiki.Image, error) {
	ctx, span := tracer.Start(ctx, "client:scrapeImages")
	defer span.End()

	var images []wiki.Image
	for i := 1; i <= imageReviewPages; i++ {
		res, err := c.session.get(ctx, fmt.Sprintf(imageReviewBase, i))
		if err != nil {
			span.SetStatus(codes.Error, "image review page failed")
			return nil, err
		}
		parsed, err := parseImageReview(res.String())
		if err != nil {
			return nil, err
		}
		images = append(images, parsed...)
	}
	return images, nil
}

// parseImageReview pulls the image records out of one hub page. Rows
// without an image cell are decoration and get skipped.
func parseImageReview(body string) ([]wiki.Image, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable image review html: %v", ErrProtocol, err)
	}
	var images []wiki.Image
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		url, ok := cells.Eq(0).Find("img").First().Attr("src")
		if !ok {
			return
		}
		source, _ := cells.Eq(2).Find("a").First().Attr("href")
		images = append(images, wiki.Image{
			URL:    url,
			Source: source,
			Status: strings.TrimSpace(cells.Eq(3).Text()),
			Notes:  strings.TrimSpace(cells.Eq(4).Text()),
		})
	})
	return images, nil
}

// FetchImage downloads an image's raw bytes. Redirects are expected
// here, image hosts move, so they are followed by hand instead of
// tripping the module redirect rule.
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, error) {
	for hop := 0; hop < 10; hop++ {
		res, err := c.session.http.R().SetContext(ctx).Get(url)
		if err != nil {
			return nil, err
		}
		code := res.StatusCode()
		if code >= 300 && code < 400 {
			location := res.Header().Get("Location")
			if location == "" {
				return nil, fmt.Errorf("%w: redirect without location for image %s", ErrProtocol, url)
			}
			url = location
			continue
		}
		if code >= 400 {
			return nil, fmt.Errorf("%w: status %d for image %s", ErrConnectivity, code, url)
		}
		return res.Body(), nil
	}
	return nil, fmt.Errorf("%w: too many redirects for image %s", ErrProtocol, url)
}
