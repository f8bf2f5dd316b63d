// Package wikidot is the live backend: it talks to a wikidot site
// through its unofficial ajax module connector and extracts entities
// from the html fragments the modules return.
package wikidot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"wikisnap/lib/wiki"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

// token7 can be any six-digit number as long as the payload field and
// the cookie agree.
const token7 = "123456"

// account-scoped endpoints live on www.wikidot.com, not on the wiki
// origin; variables so tests can stand in a local server
var (
	loginURL     = "https://www.wikidot.com/default--flow/login__LoginPopupScreen"
	lookupURL    = "https://www.wikidot.com/quickmodule.php"
	dashboardURL = "https://www.wikidot.com/ajax-module-connector.php"
)

// Client implements wiki.Backend and wiki.Mutator over the live site.
type Client struct {
	origin  string
	session *session

	imagesOnce sync.Once
	images     []wiki.Image
	imagesErr  error
}

func NewClient(site string) (*Client, error) {
	s, err := newSession()
	if err != nil {
		return nil, err
	}
	return &Client{
		origin:  wiki.NormalizeOrigin(site),
		session: s,
	}, nil
}

// NewWiki is the usual entrypoint: a Site backed by a live client.
func NewWiki(site string) (*wiki.Site, error) {
	client, err := NewClient(site)
	if err != nil {
		return nil, err
	}
	return wiki.NewSite(site, client), nil
}

func (c *Client) Origin() string { return c.origin }

// Auth logs into wikidot, establishing the session cookie used by
// subsequent module calls. Failures are surfaced, never retried past
// the session's own transport policy.
func (c *Client) Auth(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "client:Auth")
	defer span.End()

	res, err := c.session.postForm(ctx, loginURL, map[string]string{
		"login":    username,
		"password": password,
		"action":   "Login2Action",
		"event":    "login",
	})
	if err != nil {
		span.SetStatus(codes.Error, "login request failed")
		return err
	}
	if strings.Contains(res.String(), "The login and password do not match") {
		span.SetStatus(codes.Error, "bad credentials")
		return fmt.Errorf("%w: bad credentials for %q", ErrAuth, username)
	}
	return nil
}

// ModuleResponse is the json envelope every module call answers with.
// Only savePage-related calls populate the lock fields.
type ModuleResponse struct {
	Status         string      `json:"status"`
	Message        string      `json:"message"`
	Body           string      `json:"body"`
	LockID         string      `json:"lock_id"`
	LockSecret     string      `json:"lock_secret"`
	PageRevisionID json.Number `json:"page_revision_id"`
}

// Module posts to the ajax module connector. This is the sole transport
// behind nearly every other operation. pageID of 0 means the call is
// not page scoped.
func (c *Client) Module(ctx context.Context, name string, pageID int64, args map[string]string) (ModuleResponse, error) {
	ctx, span := tracer.Start(ctx, "client:Module")
	defer span.End()

	form := map[string]string{
		"moduleName":     name,
		"wikidot_token7": token7,
	}
	if pageID != 0 {
		form["pageId"] = strconv.FormatInt(pageID, 10)
	}
	for k, v := range args {
		form[k] = v
	}
	envelope, err := c.connector(ctx, c.origin+"/ajax-module-connector.php", form)
	if err != nil {
		span.SetStatus(codes.Error, "module call failed")
	}
	return envelope, err
}

// connector posts a form to an ajax module connector and unwraps the
// json envelope, failing on any status other than "ok".
func (c *Client) connector(ctx context.Context, url string, form map[string]string) (ModuleResponse, error) {
	res, err := c.session.postForm(
		ctx, url, form,
		&http.Cookie{Name: "wikidot_token7", Value: token7},
	)
	if err != nil {
		return ModuleResponse{}, err
	}

	var envelope ModuleResponse
	if err := json.Unmarshal(res.Body(), &envelope); err != nil {
		return ModuleResponse{}, fmt.Errorf("%w: malformed module envelope: %v", ErrProtocol, err)
	}
	if envelope.Status != "ok" {
		return envelope, fmt.Errorf(
			"%w: module %s returned status %q: %s",
			ErrProtocol, form["moduleName"], envelope.Status, envelope.Message)
	}
	return envelope, nil
}

// SendPM sends a private message through the dashboard on
// www.wikidot.com. The recipient name is resolved to an account id
// first and must match exactly, so a typo fails before anything is
// sent.
func (c *Client) SendPM(ctx context.Context, username, subject, source string) error {
	ctx, span := tracer.Start(ctx, "client:SendPM")
	defer span.End()

	res, err := c.session.do(ctx, func() *resty.Request {
		return c.session.http.R().SetQueryParams(map[string]string{
			"module": "UserLookupQModule",
			"q":      username,
		})
	}, http.MethodGet, lookupURL)
	if err != nil {
		span.SetStatus(codes.Error, "user lookup failed")
		return err
	}

	var lookup struct {
		Users []struct {
			UserID json.Number `json:"user_id"`
			Name   string      `json:"name"`
		} `json:"users"`
	}
	if err := json.Unmarshal(res.Body(), &lookup); err != nil {
		span.SetStatus(codes.Error, "malformed lookup response")
		return fmt.Errorf("%w: malformed user lookup response: %v", ErrProtocol, err)
	}
	if len(lookup.Users) == 0 || lookup.Users[0].Name != username {
		span.SetStatus(codes.Error, "unknown recipient")
		return fmt.Errorf("%w: no user named %q", wiki.ErrLookup, username)
	}

	_, err = c.connector(ctx, dashboardURL, map[string]string{
		"moduleName":     "Empty",
		"wikidot_token7": token7,
		"source":         source,
		"subject":        subject,
		"to_user_id":     lookup.Users[0].UserID.String(),
		"action":         "DashboardMessageAction",
		"event":          "send",
	})
	if err != nil {
		span.SetStatus(codes.Error, "message send failed")
	}
	return err
}

// pager iterates a multi-page module. It issues the first call, reads
// the "page N of M" marker out of the body, and walks pages 2..M with
// an updated page-key argument, handing each raw body to fn as it
// arrives. Iterating again re-issues every request.
func (c *Client) pager(
	ctx context.Context,
	name, pageKey string,
	args map[string]string,
	update func(page int) string,
	fn func(body string) error,
) error {
	if args == nil {
		args = map[string]string{}
	}
	first, err := c.Module(ctx, name, 0, args)
	if err != nil {
		return err
	}
	if err := fn(first.Body); err != nil {
		return err
	}

	last := pageCount(first.Body)
	for idx := 2; idx <= last; idx++ {
		value := strconv.Itoa(idx)
		if update != nil {
			value = update(idx)
		}
		args[pageKey] = value
		page, err := c.Module(ctx, name, 0, args)
		if err != nil {
			return err
		}
		if err := fn(page.Body); err != nil {
			return err
		}
	}
	return nil
}

// pageCount reads the pager marker ("page 1 of 7") out of a module
// body; bodies without one are single pages.
func pageCount(body string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return 1
	}
	counter := strings.TrimSpace(doc.Find(".pager-no").First().Text())
	if counter == "" {
		return 1
	}
	fields := strings.Fields(counter)
	last, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 1
	}
	return last
}
