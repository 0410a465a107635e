package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// LinkType describes what an Anime link points at.
type LinkType string

const (
	LinkTypeEpisodePage LinkType = "episode-page"
	LinkTypeDirectVideo LinkType = "direct-video"
	LinkTypeUnknown     LinkType = "unknown"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".m3u8": {},
	".webm": {},
	".mkv":  {},
}

// ClassifyLink guesses the LinkType of a scraped URL from its path.
func ClassifyLink(link string) LinkType {
	u, err := url.Parse(link)
	if err != nil || u.Path == "" {
		return LinkTypeUnknown
	}

	if _, ok := videoExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
		return LinkTypeDirectVideo
	}

	if strings.Contains(u.Path, "/anime/") {
		return LinkTypeEpisodePage
	}

	return LinkTypeUnknown
}

// Anime stores the catalog and playback metadata scraped for one title.
// Name is the unique key within a catalog.
type Anime struct {
	Name              string   `json:"-" yaml:"name"`
	Link              string   `json:"link" yaml:"link"`
	LinkType          LinkType `json:"link_type" yaml:"link_type"`
	TotalEpisodes     int      `json:"total_episodes" yaml:"total_episodes"`
	AvailableEpisodes int      `json:"available_episodes" yaml:"available_episodes"`
	ImagePath         string   `json:"image_path" yaml:"image_path"`
}

func (a Anime) String() string {
	return fmt.Sprintf("%s (%d/%d)", a.Name, a.AvailableEpisodes, a.TotalEpisodes)
}

// Consistent reports whether AvailableEpisodes <= TotalEpisodes. The site does
// not guarantee it, so callers decide what to do with inconsistent records.
func (a Anime) Consistent() bool {
	return a.AvailableEpisodes <= a.TotalEpisodes
}

// EntryType is the kind of title returned by the search API.
type EntryType string

const (
	EntryTypeTV    EntryType = "TV"
	EntryTypeMovie EntryType = "Movie"
	EntryTypeOVA   EntryType = "OVA"
)

// Known reports whether the type is one of TV, Movie or OVA. Other values
// the site sends are kept verbatim.
func (t EntryType) Known() bool {
	switch t {
	case EntryTypeTV, EntryTypeMovie, EntryTypeOVA:
		return true
	}
	return false
}

// SearchEntry is one record of the site's internal search API.
type SearchEntry struct {
	ID            int       `json:"id"`
	Title         string    `json:"title"`
	EpisodesCount int       `json:"episodes_count"`
	Date          int       `json:"date"`
	Type          EntryType `json:"type"`
	ImageURL      string    `json:"image_url"`
	Slug          string    `json:"slug"`
}

// PageURL builds the episode page of the entry on the site at base.
func (e SearchEntry) PageURL(base string) string {
	return strings.TrimRight(base, "/") + fmt.Sprintf("/anime/%d-%s", e.ID, e.Slug)
}
