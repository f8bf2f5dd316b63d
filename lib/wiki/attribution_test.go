package wiki

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderAttributionDefaults(t *testing.T) {
	meta := map[string]Metadata{
		"bob":   {User: "bob", Role: "reescritor", Date: "2016-01-01"},
		"alice": {User: "alice", Role: "autor", Date: "2015-01-01"},
	}

	line, err := RenderAttribution(meta, AttributionOptions{})
	require.NoError(t, err)
	require.Equal(t, "alice (autor), bob (reescritor)", line)

	// map iteration order must never leak into the output
	for i := 0; i < 10; i++ {
		again, err := RenderAttribution(meta, AttributionOptions{})
		require.NoError(t, err)
		require.Equal(t, line, again)
	}
}

func TestRenderAttributionSortOrder(t *testing.T) {
	meta := map[string]Metadata{
		"t": {User: "t", Role: "traductor", Date: "2014-01-01"},
		"a": {User: "a", Role: "autor", Date: "2016-01-01"},
		"m": {User: "m", Role: "mantenimiento", Date: "2013-01-01"},
	}

	// role rank wins over date
	line, err := RenderAttribution(meta, AttributionOptions{})
	require.NoError(t, err)
	require.Equal(t, "a (autor), t (traductor), m (mantenimiento)", line)
}

func TestRenderAttributionGrouping(t *testing.T) {
	meta := map[string]Metadata{
		"alice": {User: "alice", Role: "traductor", Date: "2016-01-01"},
		"bob":   {User: "bob", Role: "traductor", Date: "2016-01-01"},
		"carol": {User: "carol", Role: "traductor", Date: "2017-01-01"},
	}
	opts := AttributionOptions{
		Templates:      map[string]string{"traductor": "translated by {user}"},
		GroupTemplates: map[string]string{"traductor": "translated by {users} and {last_user}"},
		Separator:      "; ",
	}

	// alice and bob share role and date and merge into one line; carol
	// has her own date and falls back to the individual template
	line, err := RenderAttribution(meta, opts)
	require.NoError(t, err)
	require.Equal(t, "translated by alice and bob; translated by carol", line)
}

func TestRenderAttributionUnknownRole(t *testing.T) {
	meta := map[string]Metadata{
		"alice": {User: "alice", Role: "editor"},
	}
	_, err := RenderAttribution(meta, AttributionOptions{})
	require.ErrorIs(t, err, ErrLookup)
}

func TestRenderAttributionMissingTemplate(t *testing.T) {
	meta := map[string]Metadata{
		"alice": {User: "alice", Role: "autor"},
	}
	_, err := RenderAttribution(meta, AttributionOptions{
		Templates: map[string]string{"traductor": "{user}"},
	})
	require.ErrorIs(t, err, ErrLookup)
}

func TestRenderAttributionUserFormatter(t *testing.T) {
	meta := map[string]Metadata{
		"alice": {User: "alice", Role: "autor", Date: "2015-01-01"},
	}
	line, err := RenderAttribution(meta, AttributionOptions{
		Templates:     map[string]string{"autor": "by {user}"},
		UserFormatter: "[[user {user}]]",
	})
	require.NoError(t, err)
	require.Equal(t, "by [[user alice]]", line)
}
