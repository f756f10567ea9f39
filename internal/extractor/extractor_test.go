package extractor

import (
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/crawlforge/harvester/internal/labelmap"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parseHTML(t *testing.T, body string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func TestExtractTrainingInputSkipsScriptStyleNoscript(t *testing.T) {
	doc := parseHTML(t, `<html><body>
		<p>Hello</p>
		<script>alert("x")</script>
		<style>.a{}</style>
		<noscript>no js</noscript>
	</body></html>`)

	got := ExtractTrainingInput(doc)
	require.Contains(t, got, "Hello")
	require.NotContains(t, got, "alert")
	require.NotContains(t, got, ".a{}")
	require.NotContains(t, got, "no js")
}

func TestExtractTrainingInputWrapsDirectTextChildren(t *testing.T) {
	doc := parseHTML(t, `<html><body><p>Hello <b>world</b></p></body></html>`)
	got := ExtractTrainingInput(doc)
	require.Contains(t, got, "<p>")
	require.Contains(t, got, "Hello")
}

func TestExtractTrainingInputReplacesNBSP(t *testing.T) {
	doc := parseHTML(t, "<html><body><p>a b</p></body></html>")
	got := ExtractTrainingInput(doc)
	require.Contains(t, got, "a b")
	require.NotContains(t, got, " ")
}

func TestExtractTrainingInputEmptyReturnsEmptyString(t *testing.T) {
	doc := parseHTML(t, `<html><body><script>x</script></body></html>`)
	require.Equal(t, "", ExtractTrainingInput(doc))
}

func basicLabelMapForTest(t *testing.T) *labelmap.LabelMap {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/labelmap.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
domain: example.com
path_exclude: { re: "^admin/", invert: false }
maps:
  - path_match_re: "^articles/"
    abs_root_url: "https://example.com/articles/"
    labels:
      - { name: title, selector: "h1.title" }
      - { name: tags, selector: "span.tag", list: true }
`), 0o644))
	lm, err := labelmap.Load(path)
	require.NoError(t, err)
	return lm
}

func TestExtractLabelsAppliesMatchingRule(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><h1 class="title">My Title</h1><span class="tag">go</span><span class="tag">rust</span></body></html>`))
	require.NoError(t, err)

	lm := basicLabelMapForTest(t)
	labels := ExtractLabels(doc, lm, "/articles/1")

	require.Equal(t, "My Title", labels["title"])
	require.Equal(t, []string{"go", "rust"}, labels["tags"])
}

func TestExtractLabelsSkipsInvalidSelectorWithoutPanicking(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/labelmap.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
domain: example.com
path_exclude: { re: "^admin/", invert: false }
maps:
  - path_match_re: "^articles/"
    abs_root_url: "https://example.com/articles/"
    labels:
      - { name: title, selector: "h1.title" }
      - { name: broken, selector: "h1[" }
`), 0o644))
	lm, err := labelmap.Load(path)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><h1 class="title">My Title</h1></body></html>`))
	require.NoError(t, err)

	var labels map[string]any
	require.NotPanics(t, func() {
		labels = ExtractLabels(doc, lm, "/articles/1")
	})

	require.Equal(t, "My Title", labels["title"])
	require.NotContains(t, labels, "broken")
}

func TestExtractLabelsNoMatchingRuleReturnsEmpty(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body></body></html>`))
	require.NoError(t, err)

	lm := basicLabelMapForTest(t)
	labels := ExtractLabels(doc, lm, "/other/path")
	require.Empty(t, labels)
}

func TestExtractOutlinksFiltersHashRootRelativeAndCrossDomain(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
		<a href="#top">top</a>
		<a href="/articles/2">rel</a>
		<a href="https://example.com/articles/3">abs-same</a>
		<a href="https://other.com/x">abs-other</a>
		<a href="/admin/secret">excluded</a>
	</body></html>`))
	require.NoError(t, err)

	lm := basicLabelMapForTest(t)
	base, _ := url.Parse("https://example.com/articles/1")

	links := ExtractOutlinks(doc, base, lm)

	var got []string
	for _, l := range links {
		got = append(got, l.String())
	}
	require.ElementsMatch(t, []string{
		"https://example.com/articles/2",
		"https://example.com/articles/3",
	}, got)
}

func TestExtractOutlinksInvertedExcludeKeepsOnlyMatching(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/labelmap.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
domain: example.com
path_exclude: { re: "^keep/", invert: true }
maps:
  - path_match_re: ".*"
    abs_root_url: "https://example.com/"
    labels: []
`), 0o644))
	lm, err := labelmap.Load(path)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
		<a href="/keep/1">keep</a>
		<a href="/drop/1">drop</a>
	</body></html>`))
	require.NoError(t, err)

	base, _ := url.Parse("https://example.com/")
	links := ExtractOutlinks(doc, base, lm)

	require.Len(t, links, 1)
	require.Equal(t, "https://example.com/keep/1", links[0].String())
}
