package adapter

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc.Selection
}

func TestChainFirstSuccessWins(t *testing.T) {
	t.Parallel()

	var calls []string
	step := func(name string, ok bool) Strategy[int, string] {
		return func(int) (string, bool) {
			calls = append(calls, name)
			return name, ok
		}
	}
	chain := Chain[int, string]{step("a", false), step("b", true), step("c", true)}

	got, ok := chain.Resolve(0)
	require.True(t, ok)
	assert.Equal(t, "b", got)
	assert.Equal(t, []string{"a", "b"}, calls)

	_, ok = Chain[int, string]{step("x", false)}.Resolve(0)
	assert.False(t, ok)
	assert.Equal(t, "", Chain[int, string]{}.Value(0))
}

func TestHTMLStrategies(t *testing.T) {
	t.Parallel()

	page := mustDoc(t, `<div id="card" data-id="7">
		<img src="" data-src="/a.jpg"><img src="/b.jpg">
		<h3>  </h3><h3> Jane
			Doe </h3>
	</div>`)
	card := page.Find("#card")

	v, ok := attr("img", "src")(card)
	require.True(t, ok)
	assert.Equal(t, "/b.jpg", v, "empty attributes are skipped")

	v, ok = attr("", "data-id")(card)
	require.True(t, ok)
	assert.Equal(t, "7", v)

	v, ok = text("h3")(card)
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", v)

	_, ok = attr("video", "src")(card)
	assert.False(t, ok)

	_, ok = elements(".missing")(page)
	assert.False(t, ok)
}

func TestJSONStrategies(t *testing.T) {
	t.Parallel()

	doc, err := decodeJSON([]byte(`{"data":{"items":[{"id":12345678901234567890,"name":" A "}],"empty":[]},"n":null}`))
	require.NoError(t, err)

	v, ok := pathField("data.items.0.id")(doc)
	require.True(t, ok)
	assert.Equal(t, "12345678901234567890", v)

	v, ok = pathField("data.items.0.name")(doc)
	require.True(t, ok)
	assert.Equal(t, "A", v)

	_, ok = pathField("n")(doc)
	assert.False(t, ok)
	_, ok = pathField("data.items.9.id")(doc)
	assert.False(t, ok)

	list, ok := listAt("data.empty")(doc)
	require.True(t, ok)
	assert.Empty(t, list)
	_, ok = listAt("data")(doc)
	assert.False(t, ok)

	assert.Equal(t, []string{"a.x", "a.y", "b.x", "b.y"}, prefixed([]string{"a.", "b."}, "x", "y"))
}
