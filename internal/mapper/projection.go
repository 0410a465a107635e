package mapper

import (
	"github.com/samber/lo"

	"github.com/varoOP/unityscrape/internal/domain"
)

// AnimeFromSearchEntry projects a search result into a catalog record. The
// API does not report how many episodes are out, so AvailableEpisodes
// starts equal to EpisodesCount until a detail page says otherwise.
func AnimeFromSearchEntry(entry domain.SearchEntry, base string) domain.Anime {
	link := entry.PageURL(base)
	return domain.Anime{
		Name:              entry.Title,
		Link:              link,
		LinkType:          domain.ClassifyLink(link),
		TotalEpisodes:     entry.EpisodesCount,
		AvailableEpisodes: entry.EpisodesCount,
		ImagePath:         entry.ImageURL,
	}
}

// AnimesFromSearchEntries projects every entry that has a title.
func AnimesFromSearchEntries(entries []domain.SearchEntry, base string) []domain.Anime {
	named := lo.Filter(entries, func(e domain.SearchEntry, _ int) bool {
		return e.Title != ""
	})
	return lo.Map(named, func(e domain.SearchEntry, _ int) domain.Anime {
		return AnimeFromSearchEntry(e, base)
	})
}

// Reconcile fills the gaps of a scraped detail record with the search entry
// of the same title. Values read from the detail page win.
func Reconcile(entry domain.SearchEntry, detail domain.Anime) domain.Anime {
	out := detail
	out.Name = lo.Ternary(detail.Name != "", detail.Name, entry.Title)
	out.ImagePath = lo.Ternary(detail.ImagePath != "", detail.ImagePath, entry.ImageURL)
	if detail.TotalEpisodes == 0 {
		out.TotalEpisodes = entry.EpisodesCount
	}
	if out.LinkType == "" {
		out.LinkType = domain.ClassifyLink(out.Link)
	}
	return out
}

// MergeCatalog overlays incoming onto existing, one record per name. The
// result keeps existing order with new names appended.
func MergeCatalog(existing, incoming []domain.Anime) []domain.Anime {
	byName := lo.SliceToMap(incoming, func(a domain.Anime) (string, domain.Anime) {
		return a.Name, a
	})

	merged := lo.Map(lo.UniqBy(existing, func(a domain.Anime) string { return a.Name }), func(a domain.Anime, _ int) domain.Anime {
		if n, ok := byName[a.Name]; ok {
			return n
		}
		return a
	})

	seen := lo.SliceToMap(merged, func(a domain.Anime) (string, struct{}) {
		return a.Name, struct{}{}
	})
	for _, a := range incoming {
		if _, ok := seen[a.Name]; ok {
			continue
		}
		seen[a.Name] = struct{}{}
		merged = append(merged, byName[a.Name])
	}

	return merged
}
