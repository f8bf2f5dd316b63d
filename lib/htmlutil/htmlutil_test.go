package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestGetText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div>uno <b>dos</b> <span>tres</span></div>`))
	require.NoError(t, err)
	require.Equal(t, "uno dos tres", GetText(doc.Find("div").Nodes[0]))
}

func TestCleanText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		"<div>  uno \n\t dos <b> tres </b>  </div>"))
	require.NoError(t, err)
	require.Equal(t, "uno dos tres", CleanText(doc.Find("div")))
}

func TestElementID(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<a href="/forum/t-1295923/scp-es-040">discusión</a>`))
	require.NoError(t, err)
	require.Equal(t, int64(1295923), ElementID(doc.Find("a")))
}

func TestSuffixID(t *testing.T) {
	require.Equal(t, int64(1806664), SuffixID("post-1806664"))
	require.Equal(t, int64(0), SuffixID(""))
}

func TestElementTime(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div><span class="odate time_1398180994 format_">25 Apr 2014</span></div>`))
	require.NoError(t, err)
	require.Equal(t, "2014-04-22 15:36:34", ElementTime(doc.Find("div")))
}
