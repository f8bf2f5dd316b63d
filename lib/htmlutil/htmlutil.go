package htmlutil

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// CleanText renders a selection as a single line: trimmed, inner
// whitespace runs collapsed.
func CleanText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, node := range sel.Nodes {
		buffer.WriteString(GetText(node))
	}
	text := strings.TrimSpace(buffer.String())
	return innerWhitespace.ReplaceAllString(text, " ")
}

// ElementID extracts the numeric id from wikidot hrefs of the form
// "/forum/t-12345/some-title".
func ElementID(sel *goquery.Selection) int64 {
	href, ok := sel.Attr("href")
	if !ok {
		return 0
	}
	parts := strings.Split(href, "/")
	if len(parts) < 3 {
		return 0
	}
	segments := strings.SplitN(parts[2], "-", 2)
	if len(segments) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(segments[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// SuffixID extracts the trailing number from element ids like
// "post-1806664" or "revision-row-39167223".
func SuffixID(raw string) int64 {
	parts := strings.Split(raw, "-")
	if len(parts) == 0 {
		return 0
	}
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// ElementTime extracts the unix timestamp wikidot embeds in odate spans
// as a "time_<unix>" class, formatted as "2006-01-02 15:04:05" UTC.
func ElementTime(sel *goquery.Selection) string {
	classes, ok := sel.Find(".odate").First().Attr("class")
	if !ok {
		return ""
	}
	for _, class := range strings.Fields(classes) {
		if !strings.HasPrefix(class, "time_") {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimPrefix(class, "time_"), 10, 64)
		if err != nil {
			continue
		}
		return FormatUnix(unix)
	}
	return ""
}

func FormatUnix(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04:05")
}
