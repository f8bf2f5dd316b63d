package wikidot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"wikisnap/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("wikidot")

var (
	// ErrConnectivity means the attempt budget for one request ran out.
	// Fatal to the operation, not to an enclosing crawl.
	ErrConnectivity = errors.New("connectivity exhausted")
	// ErrProtocol covers responses the module protocol forbids:
	// redirects, malformed envelopes, missing html anchors.
	ErrProtocol = errors.New("protocol violation")
	ErrAuth     = errors.New("authentication failed")
)

const (
	defaultMaxAttempts = 10
	requestTimeout     = 60 * time.Second
)

// session wraps resty with the retry discipline every wikidot call goes
// through: up to maxAttempts tries on connection failure or any
// 4xx/5xx, a hard protocol error on redirects. Permanent-looking 4xx
// codes are retried like 5xx on purpose; the module endpoint answers
// 404 for transient backend hiccups often enough that splitting them
// would change crawl results.
type session struct {
	http        *resty.Client
	maxAttempts int
}

func newSession() (*session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(requestTimeout)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	// keep 3xx responses instead of following them, the caller treats
	// them as a protocol error
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(
		func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	))
	restyutil.InstrumentClient(client, tracer)

	return &session{
		http:        client,
		maxAttempts: defaultMaxAttempts,
	}, nil
}

func (s *session) do(ctx context.Context, build func() *resty.Request, method, url string) (*resty.Response, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		res, err := build().SetContext(ctx).Execute(method, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.DebugContext(ctx, "request failed, retrying",
				"method", method, "url", url, "attempt", attempt, "err", err)
			continue
		}
		code := res.StatusCode()
		switch {
		case code >= 200 && code < 300:
			return res, nil
		case code >= 300 && code < 400:
			return nil, fmt.Errorf("%w: redirect attempted with url %s", ErrProtocol, url)
		default:
			slog.DebugContext(ctx, "bad status, retrying",
				"method", method, "url", url, "attempt", attempt, "status", code)
		}
	}
	return nil, fmt.Errorf("%w: %d attempts for url %s", ErrConnectivity, s.maxAttempts, url)
}

func (s *session) get(ctx context.Context, url string) (*resty.Response, error) {
	return s.do(ctx, func() *resty.Request { return s.http.R() }, http.MethodGet, url)
}

func (s *session) postForm(ctx context.Context, url string, form map[string]string, cookies ...*http.Cookie) (*resty.Response, error) {
	return s.do(ctx, func() *resty.Request {
		r := s.http.R().SetFormData(form)
		r.SetHeader("Content-Type", "application/x-www-form-urlencoded;")
		for _, c := range cookies {
			r.SetCookie(c)
		}
		return r
	}, http.MethodPost, url)
}
