package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/unityscrape/internal/domain"
)

func openDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "data", "unityscrape.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaVersion(t *testing.T) {
	db := openDB(t)

	var version int
	require.NoError(t, db.handler.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, len(recordMigrations), version)

	// Already current: nothing to do.
	require.NoError(t, db.Migrate())
}

func TestUpsertAndListAnime(t *testing.T) {
	repo := NewRecordRepo(zerolog.Nop(), openDB(t))
	ctx := context.Background()

	require.NoError(t, repo.UpsertAnime(ctx, "animeunity", domain.Anime{Name: "Naruto", Link: "https://x/1.mp4", LinkType: domain.LinkTypeDirectVideo, TotalEpisodes: 1}))
	require.NoError(t, repo.UpsertAnime(ctx, "animeunity", domain.Anime{Name: "Bleach", Link: "https://x/anime/2-bleach", LinkType: domain.LinkTypeEpisodePage, TotalEpisodes: 366, AvailableEpisodes: 366}))
	require.NoError(t, repo.UpsertAnime(ctx, "animeunity", domain.Anime{Name: "Naruto", Link: "https://x/1.mp4", LinkType: domain.LinkTypeDirectVideo, TotalEpisodes: 220, AvailableEpisodes: 12}))
	require.NoError(t, repo.UpsertAnime(ctx, "other", domain.Anime{Name: "Naruto"}))

	anime, err := repo.ListAnime(ctx, "animeunity")
	require.NoError(t, err)
	require.Len(t, anime, 2)
	assert.Equal(t, "Bleach", anime[0].Name)
	assert.Equal(t, domain.LinkTypeEpisodePage, anime[0].LinkType)
	assert.Equal(t, 220, anime[1].TotalEpisodes)
	assert.Equal(t, 12, anime[1].AvailableEpisodes)
}

func TestUpsertSearchEntriesReplacesQuery(t *testing.T) {
	repo := NewRecordRepo(zerolog.Nop(), openDB(t))
	ctx := context.Background()

	first := []domain.SearchEntry{
		{ID: 12, Title: "Naruto", EpisodesCount: 220, Date: 2002, Type: domain.EntryTypeTV, Slug: "naruto"},
		{ID: 13, Title: "Naruto Movie", EpisodesCount: 1, Date: 2004, Type: domain.EntryTypeMovie, Slug: "naruto-movie"},
	}
	require.NoError(t, repo.UpsertSearchEntries(ctx, "animeunity", "naruto", first))

	got, err := repo.ListSearchEntries(ctx, "animeunity", "naruto")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := []domain.SearchEntry{{ID: 99, Title: "Boruto", Type: "Special", Slug: "boruto"}}
	require.NoError(t, repo.UpsertSearchEntries(ctx, "animeunity", "naruto", second))

	got, err = repo.ListSearchEntries(ctx, "animeunity", "naruto")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	require.NoError(t, repo.UpsertSearchEntries(ctx, "animeunity", "naruto", nil))
	got, err = repo.ListSearchEntries(ctx, "animeunity", "naruto")
	require.NoError(t, err)
	assert.Empty(t, got)
}
