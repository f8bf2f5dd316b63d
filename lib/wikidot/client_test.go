package wikidot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"wikisnap/lib/wiki"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL)
	require.NoError(t, err)
	return client
}

func writeModule(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	err := json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"body":   body,
	})
	require.NoError(t, err)
}

func TestModuleRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeModule(t, w, "hello")
	}))

	res, err := client.Module(context.Background(), "Empty", 0, nil)
	require.NoError(t, err)
	require.Equal(t, "hello", res.Body)
	require.Equal(t, int32(3), calls.Load())
}

func TestModuleRetriesClientErrors(t *testing.T) {
	// a 404 from the connector is treated as transient, same as a 500
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeModule(t, w, "")
	}))

	_, err := client.Module(context.Background(), "Empty", 0, nil)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestModuleExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.Module(context.Background(), "Empty", 0, nil)
	require.ErrorIs(t, err, ErrConnectivity)
	require.Equal(t, int32(defaultMaxAttempts), calls.Load())
}

func TestModuleRedirectFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))

	_, err := client.Module(context.Background(), "Empty", 0, nil)
	require.ErrorIs(t, err, ErrProtocol)
	require.Equal(t, int32(1), calls.Load())
}

func TestModuleMalformedEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))

	_, err := client.Module(context.Background(), "Empty", 0, nil)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestModuleBadStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "no_permission",
			"message": "try logging in",
		})
	}))

	_, err := client.Module(context.Background(), "Empty", 0, nil)
	require.ErrorIs(t, err, ErrProtocol)
	require.ErrorContains(t, err, "no_permission")
}

func TestModuleRequestShape(t *testing.T) {
	var form map[string]string
	var cookie *http.Cookie
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		cookie, _ = r.Cookie("wikidot_token7")
		writeModule(t, w, "")
	}))

	_, err := client.Module(context.Background(), "some/Module", 648299, map[string]string{
		"extra": "value",
	})
	require.NoError(t, err)

	require.Equal(t, "some/Module", form["moduleName"])
	require.Equal(t, "648299", form["pageId"])
	require.Equal(t, "value", form["extra"])
	// the token field and cookie must agree for the connector to accept
	// the call
	require.Equal(t, token7, form["wikidot_token7"])
	require.NotNil(t, cookie)
	require.Equal(t, token7, cookie.Value)
}

func TestPagerVisitsEveryPage(t *testing.T) {
	bodies := map[string]string{
		"":  `<span class="pager-no">page 1 of 3</span><div class="row">first</div>`,
		"2": `<div class="row">second</div>`,
		"3": `<div class="row">third</div>`,
	}
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		writeModule(t, w, bodies[r.PostForm.Get("pageNo")])
	}))

	var seen []string
	err := client.pager(
		context.Background(), "forum/ForumViewThreadPostsModule", "pageNo",
		map[string]string{"t": "1"}, nil,
		func(body string) error {
			seen = append(seen, body)
			return nil
		},
	)
	require.NoError(t, err)
	require.Equal(t, []string{bodies[""], bodies["2"], bodies["3"]}, seen)
	// exactly one request per page, no speculative fourth
	require.Equal(t, int32(3), calls.Load())
}

// pmTestServer points the account-scoped endpoints at a local server
// for the duration of the test.
func pmTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	restoreLookup, restoreDashboard := lookupURL, dashboardURL
	lookupURL = server.URL + "/quickmodule.php"
	dashboardURL = server.URL + "/ajax-module-connector.php"
	t.Cleanup(func() { lookupURL, dashboardURL = restoreLookup, restoreDashboard })
	return server
}

func TestSendPM(t *testing.T) {
	var lookupQuery string
	var form map[string]string
	pmTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quickmodule.php":
			require.Equal(t, "UserLookupQModule", r.URL.Query().Get("module"))
			lookupQuery = r.URL.Query().Get("q")
			json.NewEncoder(w).Encode(map[string]any{
				"users": []map[string]any{{"user_id": 460301, "name": "alice"}},
			})
		case "/ajax-module-connector.php":
			require.NoError(t, r.ParseForm())
			form = map[string]string{}
			for k := range r.PostForm {
				form[k] = r.PostForm.Get(k)
			}
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))

	client, err := NewClient("lafundacionscp")
	require.NoError(t, err)
	require.NoError(t, client.SendPM(context.Background(), "alice", "hola", "el mensaje"))

	require.Equal(t, "alice", lookupQuery)
	require.Equal(t, "DashboardMessageAction", form["action"])
	require.Equal(t, "send", form["event"])
	require.Equal(t, "460301", form["to_user_id"])
	require.Equal(t, "hola", form["subject"])
	require.Equal(t, "el mensaje", form["source"])
	require.Equal(t, token7, form["wikidot_token7"])
}

func TestSendPMUnknownRecipient(t *testing.T) {
	pmTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the lookup matches by prefix, so a near-miss answer must not
		// count as the recipient
		json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]any{{"user_id": 1, "name": "alice the other"}},
		})
	}))

	client, err := NewClient("lafundacionscp")
	require.NoError(t, err)

	err = client.SendPM(context.Background(), "alice", "hola", "el mensaje")
	require.ErrorIs(t, err, wiki.ErrLookup)
}

func TestPagerSinglePage(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeModule(t, w, `<div class="row">only</div>`)
	}))

	err := client.pager(
		context.Background(), "forum/ForumViewThreadPostsModule", "pageNo",
		map[string]string{"t": "1"}, nil,
		func(body string) error { return nil },
	)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
}
