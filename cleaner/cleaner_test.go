package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/browserfetch/models"
)

const doc = `<html lang="en"><head><title> Example Domain </title>
<meta name="description" content="An example page">
<meta property="og:site_name" content="Example">
</head><body>
<nav>Home | About</nav>
<div id="main"><h1>Hello</h1><p>World <a href="/x">link</a></p></div>
<script>var tracking = 1;</script>
</body></html>`

func TestClean_HTMLReturnsDocument(t *testing.T) {
	content, meta, err := NewCleaner().Clean(doc, "https://example.com/", FormatHTML, "")
	require.NoError(t, err)
	assert.Equal(t, doc, content)
	assert.Equal(t, models.Metadata{
		Title:       "Example Domain",
		Description: "An example page",
		SiteName:    "Example",
		Language:    "en",
		SourceURL:   "https://example.com/",
	}, meta)
}

func TestClean_Selector(t *testing.T) {
	content, meta, err := NewCleaner().Clean(doc, "https://example.com/", "", "#main h1")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello</h1>", content)
	assert.Equal(t, "Example Domain", meta.Title)
}

func TestClean_Markdown(t *testing.T) {
	content, _, err := NewCleaner().Clean(doc, "https://example.com/", FormatMarkdown, "#main")
	require.NoError(t, err)
	assert.Contains(t, content, "# Hello")
	assert.Contains(t, content, "[link](https://example.com/x)")
	assert.NotContains(t, content, "tracking")
}

func TestClean_Text(t *testing.T) {
	content, _, err := NewCleaner().Clean(doc, "https://example.com/", FormatText, "#main")
	require.NoError(t, err)
	assert.Equal(t, "Hello\nWorld link", content)
}

func TestClean_Errors(t *testing.T) {
	c := NewCleaner()

	_, _, err := c.Clean(doc, "https://example.com/", FormatHTML, "div[")
	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.ErrCodeInvalidInput, fe.Code)

	_, _, err = c.Clean(doc, "https://example.com/", "pdf", "")
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.ErrCodeInvalidInput, fe.Code)
}

func TestApplyCSSSelector_NoMatchKeepsDocument(t *testing.T) {
	out, err := ApplyCSSSelector(doc, "article.missing")
	require.NoError(t, err)
	assert.Equal(t, doc, out)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "One two\nthree", PlainText("<p>One   two</p><p>three</p><script>x()</script>"))
	assert.Equal(t, "", PlainText(""))
}
