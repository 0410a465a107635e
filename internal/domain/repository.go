package domain

import (
	"context"
)

// CatalogPath is the location of an on-disk catalog. The extension picks the
// format: .json (keyed by anime name) or .yaml/.yml.
type CatalogPath string

// CatalogRepository defines the interface for catalog file storage
type CatalogRepository interface {
	Get(ctx context.Context, path CatalogPath) ([]Anime, error)
	Store(ctx context.Context, path CatalogPath, anime []Anime) error
	Merge(ctx context.Context, path CatalogPath, anime []Anime) ([]Anime, error)
}

// RecordStore defines the interface for the sqlite record store
type RecordStore interface {
	UpsertAnime(ctx context.Context, site string, anime Anime) error
	ListAnime(ctx context.Context, site string) ([]Anime, error)
	UpsertSearchEntries(ctx context.Context, site, query string, entries []SearchEntry) error
	ListSearchEntries(ctx context.Context, site, query string) ([]SearchEntry, error)
}
