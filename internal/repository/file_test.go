package repository

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/unityscrape/internal/domain"
)

func TestStoreAndGetJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := NewFileRepository(zerolog.Nop(), fs)
	ctx := context.Background()

	anime := []domain.Anime{
		{Name: "Naruto", Link: "https://x/video.mp4", LinkType: domain.LinkTypeDirectVideo, TotalEpisodes: 220, AvailableEpisodes: 220},
	}
	require.NoError(t, r.Store(ctx, "out/catalog.json", anime))

	raw, err := afero.ReadFile(fs, "out/catalog.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"Naruto":{"link":"https://x/video.mp4","link_type":"direct-video","total_episodes":220,"available_episodes":220,"image_path":""}}`, string(raw))

	got, err := r.Get(ctx, "out/catalog.json")
	require.NoError(t, err)
	assert.Equal(t, anime, got)
}

func TestStoreAndGetYAML(t *testing.T) {
	r := NewFileRepository(zerolog.Nop(), afero.NewMemMapFs())
	ctx := context.Background()

	anime := []domain.Anime{{Name: "Bleach", TotalEpisodes: 366, LinkType: domain.LinkTypeEpisodePage}}
	require.NoError(t, r.Store(ctx, "catalog.yaml", anime))

	got, err := r.Get(ctx, "catalog.yaml")
	require.NoError(t, err)
	assert.Equal(t, anime, got)
}

func TestGetMissingFile(t *testing.T) {
	r := NewFileRepository(zerolog.Nop(), afero.NewMemMapFs())

	_, err := r.Get(context.Background(), "nope.json")
	assert.Error(t, err)
}

func TestGetDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("dir.json", 0755))

	_, err := NewFileRepository(zerolog.Nop(), fs).Get(context.Background(), "dir.json")
	assert.ErrorContains(t, err, "directory")
}

func TestMergeKeepsOneEntryPerName(t *testing.T) {
	r := NewFileRepository(zerolog.Nop(), afero.NewMemMapFs())
	ctx := context.Background()

	merged, err := r.Merge(ctx, "catalog.json", []domain.Anime{{Name: "Naruto", TotalEpisodes: 1}})
	require.NoError(t, err)
	assert.Len(t, merged, 1)

	merged, err = r.Merge(ctx, "catalog.json", []domain.Anime{
		{Name: "Naruto", TotalEpisodes: 220},
		{Name: "Bleach", TotalEpisodes: 366},
	})
	require.NoError(t, err)
	require.Len(t, merged, 2)

	got, err := r.Get(ctx, "catalog.json")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Bleach", got[0].Name)
	assert.Equal(t, 220, got[1].TotalEpisodes)
}
