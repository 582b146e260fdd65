package cleaner

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/browserfetch/models"
)

// ApplyCSSSelector returns the outer HTML of every element matching
// selector, concatenated. No match returns rawHTML unchanged.
func ApplyCSSSelector(rawHTML, selector string) (string, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return "", err
	}
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	nodes := cascadia.QueryAll(root, sel)
	if len(nodes) == 0 {
		return rawHTML, nil
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// blockTags end a line in PlainText output.
const blockTags = "p, div, li, h1, h2, h3, h4, h5, h6, tr, br, pre, blockquote, section, article"

// PlainText renders doc as text, one line per block element, with runs of
// whitespace collapsed.
func PlainText(doc string) string {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	d.Find("script, style, noscript, template").Remove()
	d.Find(blockTags).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(d.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// ExtractMetadata reads title, description, site name and language from the
// document head.
func ExtractMetadata(doc, sourceURL string) models.Metadata {
	meta := models.Metadata{SourceURL: sourceURL}
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return meta
	}

	meta.Title = strings.TrimSpace(d.Find("head title").First().Text())
	if meta.Title == "" {
		meta.Title = metaContent(d, `meta[property="og:title"]`)
	}
	meta.Description = metaContent(d, `meta[name="description"]`)
	if meta.Description == "" {
		meta.Description = metaContent(d, `meta[property="og:description"]`)
	}
	meta.SiteName = metaContent(d, `meta[property="og:site_name"]`)
	meta.Language, _ = d.Find("html").Attr("lang")
	return meta
}

func metaContent(d *goquery.Document, selector string) string {
	v, _ := d.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}
