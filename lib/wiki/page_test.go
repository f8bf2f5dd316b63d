package wiki

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const testOrigin = "http://lafundacionscp.wikidot.com"

func TestPageRating(t *testing.T) {
	backend := &fakeBackend{
		pages: map[string]PageData{
			"http://example.wikidot.com/scp-es-040": {ID: 1},
			"http://example.wikidot.com/scp-es-050": {ID: 2},
		},
		votes: map[int64][]Vote{
			1: {
				{User: "a", Value: 1},
				{User: "b", Value: 1},
				{User: "c", Value: -1},
				{User: deletedAccount, Value: -1},
			},
		},
	}
	site := NewSite("example", backend)

	// the deleted-account vote never counts
	rating, err := site.Page("scp-es-040").Rating(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rating)

	// no votes at all is a rating of zero, not an error
	rating, err = site.Page("scp-es-050").Rating(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, rating)
}

func TestPageRatingFromSeed(t *testing.T) {
	site := NewSite("example", &fakeBackend{})
	rating := 42
	page := site.pageFromSeed(Seed{FullName: "scp-es-040", Rating: &rating})

	got, err := page.Rating(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestPageCreated(t *testing.T) {
	backend := &fakeBackend{
		pages: map[string]PageData{
			"http://example.wikidot.com/scp-es-040": {ID: 1},
		},
		history: map[int64][]Revision{
			1: {
				{Number: 0, User: "creator", Time: "2014-04-22 15:36:34"},
				{Number: 1, User: "editor", Time: "2015-01-01 00:00:00"},
			},
		},
	}
	site := NewSite("example", backend)
	page := site.Page("scp-es-040")

	created, err := page.Created(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2014-04-22 15:36:34", created)
}

func TestPageMetadataSynthesis(t *testing.T) {
	// no override records at all: the autor record is synthesized from
	// revision 0 and dated with the page creation time
	backend := &fakeBackend{
		pages: map[string]PageData{
			"http://example.wikidot.com/scp-es-040": {ID: 1},
		},
		history: map[int64][]Revision{
			1: {{Number: 0, User: "creator", Time: "2014-04-22 15:36:34"}},
		},
	}
	site := NewSite("example", backend)
	page := site.Page("scp-es-040")

	meta, err := page.Metadata(context.Background())
	require.NoError(t, err)
	require.Len(t, meta, 1)
	require.Equal(t, "autor", meta["creator"].Role)
	require.Equal(t, "2014-04-22 15:36:34", meta["creator"].Date)

	author, err := page.Author(context.Background())
	require.NoError(t, err)
	require.Equal(t, "creator", author)
}

const metadataHTML = `<table>
<tr><th>página</th><th>usuario</th><th>tipo</th><th>fecha</th></tr>
<tr><td>scp-es-040</td><td>translator</td><td>traductor</td><td>2016-02-01</td></tr>
<tr><td>scp-es-050</td><td>other</td><td>autor</td><td></td></tr>
<tr><td>scp-es-200</td><td>alice</td><td>reescritor</td><td>2017-05-05</td></tr>
<tr><td>scp-es-300</td><td>zoe</td><td>autor</td><td>2018-01-01</td></tr>
<tr><td>scp-es-300</td><td>ana</td><td>autor</td><td>2018-01-01</td></tr>
</table>`

func extendedBackend() *fakeBackend {
	return &fakeBackend{
		pages: map[string]PageData{
			testOrigin + "/bot-component:attribution-metadata": {ID: 99, HTML: metadataHTML},
			testOrigin + "/scp-es-040":                         {ID: 1},
			testOrigin + "/scp-es-050":                         {ID: 2},
			testOrigin + "/scp-es-100":                         {ID: 3},
			testOrigin + "/scp-es-200":                         {ID: 4},
			testOrigin + "/scp-es-300":                         {ID: 5},
		},
		history: map[int64][]Revision{
			1: {{Number: 0, User: "creator", Time: "2014-04-22 15:36:34"}},
			2: {{Number: 0, User: "alice", Time: "2014-01-01 00:00:00"}},
			3: {{Number: 0, User: "alice", Time: "2014-02-02 00:00:00"}},
			4: {{Number: 0, User: "bob", Time: "2014-03-03 00:00:00"}},
			5: {{Number: 0, User: "zoe", Time: "2018-01-01 00:00:00"}},
		},
		seeds: []Seed{
			{FullName: testOrigin + "/scp-es-040", CreatedBy: "creator"},
			{FullName: testOrigin + "/scp-es-050", CreatedBy: "alice"},
			{FullName: testOrigin + "/scp-es-100", CreatedBy: "alice"},
			{FullName: testOrigin + "/scp-es-200", CreatedBy: "bob"},
		},
	}
}

func TestPageMetadataOverride(t *testing.T) {
	site := NewSite("lafundacionscp", extendedBackend())
	page := site.Page("scp-es-050")

	meta, err := page.Metadata(context.Background())
	require.NoError(t, err)

	// the explicit autor override wins; no synthesized record for the
	// revision-0 user, and the missing date is backfilled
	require.NotContains(t, meta, "alice")
	require.Equal(t, "autor", meta["other"].Role)
	require.Equal(t, "2014-01-01 00:00:00", meta["other"].Date)

	author, err := page.Author(context.Background())
	require.NoError(t, err)
	require.Equal(t, "other", author)
}

func TestPageAuthorCoAuthored(t *testing.T) {
	// two autor records: the first user in name order wins, every time
	for i := 0; i < 10; i++ {
		site := NewSite("lafundacionscp", extendedBackend())
		author, err := site.Page("scp-es-300").Author(context.Background())
		require.NoError(t, err)
		require.Equal(t, "ana", author)
	}
}

func TestPageImages(t *testing.T) {
	backend := &fakeBackend{
		pages: map[string]PageData{
			"http://example.wikidot.com/scp-es-040": {
				ID: 1,
				HTML: `<div id="page-content">
					<img src="http://files.example.com/uno.png">
					<p>texto</p>
					<img src="http://files.example.com/dos.jpg">
					<img alt="sin src">
				</div>`,
			},
		},
	}
	site := NewSite("example", backend)

	images, err := site.Page("scp-es-040").Images(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"http://files.example.com/uno.png",
		"http://files.example.com/dos.jpg",
	}, images)
}

func TestPageIsMainlist(t *testing.T) {
	backend := &fakeBackend{
		pages: map[string]PageData{
			testOrigin + "/scp-040":    {ID: 1, Tags: []string{"scp", "seguro"}},
			testOrigin + "/scp-es-040": {ID: 2, Tags: []string{"cuento"}},
			testOrigin + "/taller":     {ID: 3, Tags: []string{"scp"}},
		},
	}
	site := NewSite("lafundacionscp", backend)

	ok, err := site.Page("scp-040").IsMainlist(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// tagged but not a numbered article
	ok, err = site.Page("taller").IsMainlist(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	// numbered-name pattern without the scp tag
	ok, err = site.Page("scp-es-040").IsMainlist(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	// never on a non-extended site
	plain := NewSite("example", &fakeBackend{})
	ok, err = plain.Page("scp-040").IsMainlist(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
