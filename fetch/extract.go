package fetch

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/use-agent/browserfetch/browser"
)

// Extractor reads a value out of a loaded page.
type Extractor[T any] func(browser.Page) (T, error)

// Title returns the document title.
func Title(page browser.Page) (string, error) {
	return page.Title()
}

// HTML returns the serialized document.
func HTML(page browser.Page) (string, error) {
	return page.Content()
}

// Document parses the current document with goquery.
func Document(page browser.Page) (*goquery.Document, error) {
	content, err := page.Content()
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// SelectText returns the trimmed text of every element matching selector.
func SelectText(selector string) Extractor[[]string] {
	return func(page browser.Page) ([]string, error) {
		doc, err := Document(page)
		if err != nil {
			return nil, err
		}
		var out []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				out = append(out, text)
			}
		})
		return out, nil
	}
}

// SelectAttr returns attr of every element matching selector that has it.
func SelectAttr(selector, attr string) Extractor[[]string] {
	return func(page browser.Page) ([]string, error) {
		doc, err := Document(page)
		if err != nil {
			return nil, err
		}
		var out []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(attr); ok {
				out = append(out, v)
			}
		})
		return out, nil
	}
}

// TitleFromHTML returns the text of the first <title> element in doc.
func TitleFromHTML(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(z.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
