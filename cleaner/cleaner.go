// Package cleaner turns a rendered page into the output format requested by
// an API client: the document itself, Markdown of its main content, or plain
// text.
package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/browserfetch/models"
)

// Output formats.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// Below this many characters of text, readability is assumed to have missed
// the main content and the whole document is used.
const minArticleText = 50

// Cleaner is safe for concurrent use.
type Cleaner struct {
	md *converter.Converter
}

func NewCleaner() *Cleaner {
	return &Cleaner{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal)),
			),
		),
	}
}

// Clean narrows rawHTML to selector (when given) and renders it as format.
// The html format returns the document untouched apart from the selector.
// Metadata always comes from the full document.
func (c *Cleaner) Clean(rawHTML, sourceURL, format, selector string) (string, models.Metadata, error) {
	meta := ExtractMetadata(rawHTML, sourceURL)

	doc := rawHTML
	if selector != "" {
		narrowed, err := ApplyCSSSelector(rawHTML, selector)
		if err != nil {
			return "", meta, models.NewFetchError(models.ErrCodeInvalidInput, "invalid css_selector", err)
		}
		doc = narrowed
	}

	switch format {
	case FormatHTML, "":
		return doc, meta, nil
	case FormatMarkdown:
		article := mainContent(doc, sourceURL)
		md, err := c.md.ConvertString(article, converter.WithDomain(sourceURL))
		if err != nil {
			return "", meta, models.NewFetchError(models.ErrCodeExtraction, "markdown conversion failed", err)
		}
		return md, meta, nil
	case FormatText:
		return PlainText(mainContent(doc, sourceURL)), meta, nil
	default:
		return "", meta, models.NewFetchError(models.ErrCodeInvalidInput, "unsupported output_format: "+format, nil)
	}
}

// mainContent returns readability's article HTML, or doc itself when
// readability fails or finds too little text.
func mainContent(doc, sourceURL string) string {
	u, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL, using full document", "url", sourceURL, "error", err)
		return doc
	}
	article, err := readability.FromReader(strings.NewReader(doc), u)
	if err != nil {
		slog.Warn("readability: extraction failed, using full document", "url", sourceURL, "error", err)
		return doc
	}
	if len(strings.TrimSpace(article.TextContent)) < minArticleText {
		slog.Debug("readability: article too short, using full document",
			"url", sourceURL, "length", len(article.TextContent))
		return doc
	}
	return article.Content
}
