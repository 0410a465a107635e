// Package mapper converts raw HTML and JSON from the site into domain records
// and serializes records into the on-disk catalog shape.
package mapper

import (
	"strconv"
	"strings"

	"github.com/varoOP/unityscrape/internal/domain"
	"github.com/varoOP/unityscrape/internal/selector"
)

// DetailSelectors locate the fields of an anime detail or episode page.
type DetailSelectors struct {
	Title             string
	TotalEpisodes     string
	AvailableEpisodes string
	Image             string
	// DownloadLink is only present once the player has rendered. When set, the
	// link comes from it alone and a page without it is FieldMissing("link").
	DownloadLink string
	// CanonicalLink is the link source for pages without a player, used only
	// when DownloadLink is empty.
	CanonicalLink string
}

// Mapper maps detail pages using a fixed set of selectors.
type Mapper struct {
	sel DetailSelectors
}

func New(sel DetailSelectors) *Mapper {
	return &Mapper{sel: sel}
}

// AnimeFromDetailPage builds an Anime from a (rendered) detail page. Every
// missing field is a FieldMissing error naming the field.
func (m *Mapper) AnimeFromDetailPage(html string) (*domain.Anime, error) {
	doc, err := selector.Parse(html)
	if err != nil {
		return nil, err
	}
	return m.AnimeFromDocument(doc)
}

// AnimeFromDocument is AnimeFromDetailPage for an already parsed document.
func (m *Mapper) AnimeFromDocument(doc *selector.Document) (*domain.Anime, error) {
	name, err := m.text(doc, "name", m.sel.Title)
	if err != nil {
		return nil, err
	}

	total, err := m.count(doc, "total_episodes", m.sel.TotalEpisodes)
	if err != nil {
		return nil, err
	}

	available, err := m.count(doc, "available_episodes", m.sel.AvailableEpisodes)
	if err != nil {
		return nil, err
	}

	image, err := m.attr(doc, "image_path", m.sel.Image, "src")
	if err != nil {
		return nil, err
	}

	link, err := m.link(doc)
	if err != nil {
		return nil, err
	}

	return &domain.Anime{
		Name:              name,
		Link:              link,
		LinkType:          domain.ClassifyLink(link),
		TotalEpisodes:     total,
		AvailableEpisodes: available,
		ImagePath:         image,
	}, nil
}

func (m *Mapper) link(doc *selector.Document) (string, error) {
	if m.sel.DownloadLink != "" {
		return m.attr(doc, "link", m.sel.DownloadLink, "href")
	}
	return m.attr(doc, "link", m.sel.CanonicalLink, "href")
}

func (m *Mapper) find(doc *selector.Document, field, css string) (*selector.Element, error) {
	if css == "" {
		return nil, domain.NewFieldError(domain.CodeFieldMissing, field, nil)
	}

	el, err := selector.Find(doc, css)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			return nil, domain.NewFieldError(domain.CodeFieldMissing, field, err)
		}
		return nil, err
	}
	return el, nil
}

func (m *Mapper) text(doc *selector.Document, field, css string) (string, error) {
	el, err := m.find(doc, field, css)
	if err != nil {
		return "", err
	}

	t, err := selector.Text(el)
	if err != nil {
		return "", domain.NewFieldError(domain.CodeFieldMissing, field, err)
	}
	return t, nil
}

func (m *Mapper) attr(doc *selector.Document, field, css, name string) (string, error) {
	el, err := m.find(doc, field, css)
	if err != nil {
		return "", err
	}

	v, err := selector.Attribute(el, name)
	if err != nil || strings.TrimSpace(v) == "" {
		return "", domain.NewFieldError(domain.CodeFieldMissing, field, err)
	}
	return strings.TrimSpace(v), nil
}

func (m *Mapper) count(doc *selector.Document, field, css string) (int, error) {
	t, err := m.text(doc, field, css)
	if err != nil {
		return 0, err
	}

	n, err := parseCount(t)
	if err != nil {
		return 0, domain.NewFieldError(domain.CodeFieldInvalid, field, err)
	}
	return n, nil
}

// parseCount reads the leading integer of texts like "12", "12 episodi" or
// "Episodi: 12".
func parseCount(t string) (int, error) {
	digits := strings.FieldsFunc(t, func(r rune) bool { return r < '0' || r > '9' })
	if len(digits) == 0 {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(digits[0])
}
