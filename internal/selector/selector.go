// Package selector resolves CSS selectors against parsed HTML documents.
package selector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/varoOP/unityscrape/internal/domain"
)

// Document is a parsed HTML document.
type Document struct {
	doc *goquery.Document
}

// Element is a single node found in a Document. Selector is the CSS that
// found it, so the same node can be targeted again in a live page.
type Element struct {
	Selector string
	sel      *goquery.Selection
}

// Selector is a compiled CSS selector.
type Selector struct {
	css     string
	matcher cascadia.Selector
}

// Parse builds a Document from raw HTML.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, domain.NewError(domain.CodeMalformedResponse, "parse html", err)
	}
	return &Document{doc: doc}, nil
}

// Compile parses css once. An invalid selector is a scraper bug and is
// reported as InvalidSelector, never as NotFound.
func Compile(css string) (*Selector, error) {
	m, err := cascadia.Compile(css)
	if err != nil {
		return nil, domain.NewError(domain.CodeInvalidSelector, css, err)
	}
	return &Selector{css: css, matcher: m}, nil
}

func (s *Selector) String() string {
	return s.css
}

// Find returns the first element of doc, in document order, matched by s.
func (s *Selector) Find(doc *Document) (*Element, error) {
	if doc == nil {
		return nil, domain.NewError(domain.CodeNotFound, s.css, nil)
	}

	sel := doc.doc.FindMatcher(s.matcher).First()
	if sel.Length() == 0 {
		return nil, domain.NewError(domain.CodeNotFound, s.css, nil)
	}

	return &Element{Selector: s.css, sel: sel}, nil
}

// Find compiles css and returns its first match in doc.
func Find(doc *Document, css string) (*Element, error) {
	s, err := Compile(css)
	if err != nil {
		return nil, err
	}
	return s.Find(doc)
}

// Attribute returns the value of the named attribute of el.
func Attribute(el *Element, name string) (string, error) {
	if el == nil {
		return "", domain.NewError(domain.CodeAttributeMissing, name, nil)
	}

	v, ok := el.sel.Attr(name)
	if !ok {
		return "", domain.NewError(domain.CodeAttributeMissing, el.Selector+"@"+name, nil)
	}
	return v, nil
}

// Text returns the trimmed inner text of el.
func Text(el *Element) (string, error) {
	if el == nil {
		return "", domain.NewError(domain.CodeNoText, "", nil)
	}

	t := strings.TrimSpace(el.sel.Text())
	if t == "" {
		return "", domain.NewError(domain.CodeNoText, el.Selector, nil)
	}
	return t, nil
}

// Count returns how many elements of doc match s.
func (s *Selector) Count(doc *Document) int {
	if doc == nil {
		return 0
	}
	return doc.doc.FindMatcher(s.matcher).Length()
}
