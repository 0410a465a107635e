package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/varoOP/unityscrape/internal/domain"
)

type searchResponse struct {
	Records *json.RawMessage `json:"records"`
}

type searchRecord struct {
	ID            flexInt `json:"id"`
	Title         string  `json:"title"`
	TitleEng      string  `json:"title_eng"`
	EpisodesCount flexInt `json:"episodes_count"`
	Date          flexInt `json:"date"`
	Type          string  `json:"type"`
	ImageURL      string  `json:"imageurl"`
	ImageURLAlt   string  `json:"image_url"`
	Slug          string  `json:"slug"`
}

// flexInt accepts a non-negative JSON number, a numeric string, or null
// (zero).
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}

	s := string(b)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || fl != float64(int(fl)) {
			return fmt.Errorf("not an integer: %s", string(b))
		}
		n = int(fl)
	}
	if n < 0 {
		return fmt.Errorf("negative count: %s", string(b))
	}
	*f = flexInt(n)
	return nil
}

// SearchEntriesFromJSON decodes the search API response. A body without a
// records array is MalformedResponse, never an empty result.
func SearchEntriesFromJSON(data []byte) ([]domain.SearchEntry, error) {
	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, domain.NewError(domain.CodeMalformedResponse, "decode search response", err)
	}

	if resp.Records == nil {
		return nil, domain.NewError(domain.CodeMalformedResponse, "records key missing", nil)
	}

	var records []searchRecord
	if err := json.Unmarshal(*resp.Records, &records); err != nil {
		return nil, domain.NewError(domain.CodeMalformedResponse, "records is not an array of entries", err)
	}

	entries := make([]domain.SearchEntry, 0, len(records))
	for _, r := range records {
		title := r.Title
		if title == "" {
			title = r.TitleEng
		}
		image := r.ImageURL
		if image == "" {
			image = r.ImageURLAlt
		}

		entries = append(entries, domain.SearchEntry{
			ID:            int(r.ID),
			Title:         title,
			EpisodesCount: int(r.EpisodesCount),
			Date:          int(r.Date),
			Type:          domain.EntryType(r.Type),
			ImageURL:      image,
			Slug:          r.Slug,
		})
	}

	return entries, nil
}

// checkName rejects names that cannot be a JSON object key and come back
// unchanged.
func checkName(name string) error {
	if name == "" {
		return domain.NewFieldError(domain.CodeFieldMissing, "name", nil)
	}
	if !utf8.ValidString(name) {
		return domain.NewFieldError(domain.CodeFieldInvalid, "name", nil)
	}
	return nil
}

// ToPersistableJSON encodes a as {"<name>": {link, link_type, ...}}.
func ToPersistableJSON(a domain.Anime) ([]byte, error) {
	if err := checkName(a.Name); err != nil {
		return nil, err
	}

	return json.MarshalIndent(map[string]domain.Anime{a.Name: a}, "", "  ")
}

// AnimeFromJSON reverses ToPersistableJSON. The object must hold exactly one
// anime.
func AnimeFromJSON(data []byte) (*domain.Anime, error) {
	catalog, err := decodeCatalog(data)
	if err != nil {
		return nil, err
	}

	if len(catalog) != 1 {
		return nil, domain.NewError(domain.CodeMalformedResponse, fmt.Sprintf("expected one anime, got %d", len(catalog)), nil)
	}

	for name, a := range catalog {
		a.Name = name
		return &a, nil
	}
	return nil, nil
}

// MarshalCatalog encodes a whole catalog keyed by name. Later entries
// replace earlier ones with the same name.
func MarshalCatalog(anime []domain.Anime) ([]byte, error) {
	catalog := make(map[string]domain.Anime, len(anime))
	for _, a := range anime {
		if err := checkName(a.Name); err != nil {
			return nil, err
		}
		catalog[a.Name] = a
	}

	return json.MarshalIndent(catalog, "", "  ")
}

// UnmarshalCatalog decodes a catalog written by MarshalCatalog, sorted by
// name.
func UnmarshalCatalog(data []byte) ([]domain.Anime, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []domain.Anime{}, nil
	}

	catalog, err := decodeCatalog(data)
	if err != nil {
		return nil, err
	}

	anime := make([]domain.Anime, 0, len(catalog))
	for name, a := range catalog {
		a.Name = name
		anime = append(anime, a)
	}

	sort.Slice(anime, func(i, j int) bool {
		return anime[i].Name < anime[j].Name
	})

	return anime, nil
}

func decodeCatalog(data []byte) (map[string]domain.Anime, error) {
	var catalog map[string]domain.Anime
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, domain.NewError(domain.CodeMalformedResponse, "decode catalog", err)
	}
	return catalog, nil
}
