package wiki

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func pageURLs(pages []*Page) []string {
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.URL
	}
	return urls
}

func TestListPagesAuthorReconciliation(t *testing.T) {
	site := NewSite("lafundacionscp", extendedBackend())

	// alice created scp-es-050 and scp-es-100, but an autor override
	// hands scp-es-050 to somebody else, and a reescritor override
	// credits her on scp-es-200
	pages, err := site.ListPages(context.Background(), ListOptions{Author: "alice"})
	require.NoError(t, err)

	diff := cmp.Diff(
		[]string{testOrigin + "/scp-es-100", testOrigin + "/scp-es-200"},
		pageURLs(pages),
	)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestListPagesAuthorWithSecondFilter(t *testing.T) {
	backend := extendedBackend()
	backend.seeds[2].Tags = []string{"scp"}    // scp-es-100
	backend.seeds[3].Tags = []string{"cuento"} // scp-es-200
	site := NewSite("lafundacionscp", backend)

	pages, err := site.ListPages(context.Background(), ListOptions{
		Author: "alice",
		Tag:    "scp",
	})
	require.NoError(t, err)
	require.Equal(t, []string{testOrigin + "/scp-es-100"}, pageURLs(pages))

	// the second listing pass runs without the author filter
	require.Len(t, backend.listCalls, 2)
	require.Equal(t, "", backend.listCalls[1].Author)
	require.Equal(t, "scp", backend.listCalls[1].Tag)
}

func TestTitles(t *testing.T) {
	backend := extendedBackend()
	backend.pages[testOrigin+"/serie-scp-i"] = PageData{
		ID: 10,
		HTML: `<ul>
			<li><a href="/scp-040">SCP-040</a> - Evolución</li>
			<li><a href="/scp-050">SCP-050</a>, El Premio</li>
			<li><a href="/scp-055">SCP-055</a> - [ACCESO DENEGADO]</li>
		</ul>`,
	}
	backend.pages[testOrigin+"/scp-001"] = PageData{
		ID: 11,
		HTML: `<div class="series"><p>Aviso</p></div>
			<div class="series">
			<p><a href="/scp-001-prop">Propuesta</a> - La Puerta</p>
			</div>`,
	}
	site := NewSite("lafundacionscp", backend)

	titles, err := site.Titles(context.Background())
	require.NoError(t, err)

	// both separator styles resolve; the redacted entry never does
	require.Equal(t, "Evolución", titles[testOrigin+"/scp-040"])
	require.Equal(t, "El Premio", titles[testOrigin+"/scp-050"])
	require.NotContains(t, titles, testOrigin+"/scp-055")

	// scp-001 proposals come from the second series block
	require.Equal(t, "La Puerta", titles[testOrigin+"/scp-001-prop"])
}

func TestTitlesNonExtendedSite(t *testing.T) {
	site := NewSite("example", &fakeBackend{})
	titles, err := site.Titles(context.Background())
	require.NoError(t, err)
	require.Empty(t, titles)
}

func TestListPagesWithoutAuthorSkipsMetadata(t *testing.T) {
	backend := extendedBackend()
	site := NewSite("lafundacionscp", backend)

	pages, err := site.ListPages(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Len(t, pages, 4)
	require.Len(t, backend.listCalls, 1)
}
