package mapper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/unityscrape/internal/domain"
)

var testSelectors = DetailSelectors{
	Title:             "h1.title",
	TotalEpisodes:     ".info .episodes-total",
	AvailableEpisodes: ".info .episodes-available",
	Image:             "img.cover",
	DownloadLink:      `a[class="plyr__controls__item plyr__control"]`,
	CanonicalLink:     `link[rel="canonical"]`,
}

const renderedPage = `<html>
<head><link rel="canonical" href="https://www.animeunity.so/anime/1-naruto"></head>
<body>
	<h1 class="title"> Naruto </h1>
	<div class="info">
		<span class="episodes-total">220 episodi</span>
		<span class="episodes-available">Episodi: 220</span>
	</div>
	<img class="cover" src="https://img.animeunity.so/naruto.jpg">
	<div class="plyr__controls">
		<a class="plyr__controls__item plyr__control" href="https://x/video.mp4">Download</a>
	</div>
</body>
</html>`

func TestAnimeFromDetailPage(t *testing.T) {
	a, err := New(testSelectors).AnimeFromDetailPage(renderedPage)
	require.NoError(t, err)

	assert.Equal(t, domain.Anime{
		Name:              "Naruto",
		Link:              "https://x/video.mp4",
		LinkType:          domain.LinkTypeDirectVideo,
		TotalEpisodes:     220,
		AvailableEpisodes: 220,
		ImagePath:         "https://img.animeunity.so/naruto.jpg",
	}, *a)
}

func TestAnimeFromDetailPageMissingDownloadLink(t *testing.T) {
	// Plyr renders its buttons with the same classes as the download anchor.
	page := `<html><head><link rel="canonical" href="https://www.animeunity.so/anime/1-naruto"></head>
<body><h1 class="title">Naruto</h1>
<div class="info"><span class="episodes-total">220</span><span class="episodes-available">12</span></div>
<img class="cover" src="/c.jpg">
<button class="plyr__controls__item plyr__control" type="button">Play</button></body></html>`

	a, err := New(testSelectors).AnimeFromDetailPage(page)
	assert.Nil(t, a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFieldMissing))

	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "link", derr.Field)
}

func TestAnimeFromDetailPageWithoutPlayerUsesCanonical(t *testing.T) {
	page := `<html><head><link rel="canonical" href="https://www.animeunity.so/anime/1-naruto"></head>
<body><h1 class="title">Naruto</h1>
<div class="info"><span class="episodes-total">220</span><span class="episodes-available">12</span></div>
<img class="cover" src="/c.jpg"></body></html>`

	sel := testSelectors
	sel.DownloadLink = ""

	a, err := New(sel).AnimeFromDetailPage(page)
	require.NoError(t, err)
	assert.Equal(t, "https://www.animeunity.so/anime/1-naruto", a.Link)
	assert.Equal(t, domain.LinkTypeEpisodePage, a.LinkType)
	assert.Equal(t, 12, a.AvailableEpisodes)
}

func TestAnimeFromDetailPageMissingTitle(t *testing.T) {
	page := `<html><body><h2 class="title">Naruto</h2></body></html>`

	a, err := New(testSelectors).AnimeFromDetailPage(page)
	assert.Nil(t, a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFieldMissing))

	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "name", derr.Field)
	assert.Equal(t, domain.KindStructural, derr.Kind)
}

func TestAnimeFromDetailPageNonNumericCount(t *testing.T) {
	page := `<html><body><h1 class="title">Naruto</h1>
<div class="info"><span class="episodes-total">??</span></div></body></html>`

	_, err := New(testSelectors).AnimeFromDetailPage(page)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFieldInvalid))

	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "total_episodes", derr.Field)
}

func TestSearchEntriesFromJSON(t *testing.T) {
	body := []byte(`{"records":[
		{"id":12,"title":"Naruto","episodes_count":220,"date":"2002","type":"TV","imageurl":"https://img/n.jpg","slug":"naruto"},
		{"id":"13","title":"Naruto Movie","episodes_count":"1","date":2004,"type":"Movie","image_url":"https://img/m.jpg","slug":"naruto-movie"},
		{"id":14,"title":"Special","episodes_count":null,"date":"2005","type":"Special","imageurl":"","slug":"special"}
	]}`)

	entries, err := SearchEntriesFromJSON(body)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, domain.SearchEntry{
		ID: 12, Title: "Naruto", EpisodesCount: 220, Date: 2002,
		Type: domain.EntryTypeTV, ImageURL: "https://img/n.jpg", Slug: "naruto",
	}, entries[0])
	assert.Equal(t, 13, entries[1].ID)
	assert.Equal(t, 2004, entries[1].Date)
	assert.Equal(t, "https://img/m.jpg", entries[1].ImageURL)
	assert.Equal(t, domain.EntryType("Special"), entries[2].Type)
	assert.False(t, entries[2].Type.Known())
	assert.Equal(t, 0, entries[2].EpisodesCount)
}

func TestSearchEntriesFromJSONMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no records key", body: `{}`},
		{name: "records not an array", body: `{"records":"nope"}`},
		{name: "unparsable date", body: `{"records":[{"id":1,"date":"soon"}]}`},
		{name: "negative episode count", body: `{"records":[{"id":1,"episodes_count":-3}]}`},
		{name: "negative episode count string", body: `{"records":[{"id":1,"episodes_count":"-1"}]}`},
		{name: "negative date", body: `{"records":[{"id":1,"date":-2002}]}`},
		{name: "not json", body: `<html></html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := SearchEntriesFromJSON([]byte(tt.body))
			assert.Nil(t, entries)
			assert.True(t, errors.Is(err, domain.ErrMalformedResponse))
		})
	}
}

func TestSearchEntriesFromJSONEmptyRecords(t *testing.T) {
	entries, err := SearchEntriesFromJSON([]byte(`{"records":[]}`))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPersistableJSONRoundTrip(t *testing.T) {
	a := domain.Anime{
		Name:              "Naruto",
		Link:              "https://x/video.mp4",
		LinkType:          domain.LinkTypeDirectVideo,
		TotalEpisodes:     220,
		AvailableEpisodes: 12,
		ImagePath:         "https://img/n.jpg",
	}

	data, err := ToPersistableJSON(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Naruto":{"link":"https://x/video.mp4","link_type":"direct-video","total_episodes":220,"available_episodes":12,"image_path":"https://img/n.jpg"}}`, string(data))

	back, err := AnimeFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, a, *back)
}

func TestPersistableJSONRejectsInvalidName(t *testing.T) {
	_, err := ToPersistableJSON(domain.Anime{Name: "bad\xffutf8", Link: "https://x/video.mp4"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFieldInvalid))

	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "name", derr.Field)

	_, err = MarshalCatalog([]domain.Anime{{Name: "Naruto"}, {Name: "bad\xffutf8"}})
	assert.True(t, errors.Is(err, domain.ErrFieldInvalid))

	_, err = ToPersistableJSON(domain.Anime{Name: "ナルト"})
	assert.NoError(t, err)
}

func TestAnimeFromJSONRequiresOneKey(t *testing.T) {
	_, err := AnimeFromJSON([]byte(`{"A":{},"B":{}}`))
	assert.True(t, errors.Is(err, domain.ErrMalformedResponse))

	_, err = AnimeFromJSON([]byte(`{}`))
	assert.True(t, errors.Is(err, domain.ErrMalformedResponse))
}

func TestCatalogLastWriterWins(t *testing.T) {
	data, err := MarshalCatalog([]domain.Anime{
		{Name: "Naruto", TotalEpisodes: 1},
		{Name: "Bleach", TotalEpisodes: 366},
		{Name: "Naruto", TotalEpisodes: 220},
	})
	require.NoError(t, err)

	anime, err := UnmarshalCatalog(data)
	require.NoError(t, err)
	require.Len(t, anime, 2)
	assert.Equal(t, "Bleach", anime[0].Name)
	assert.Equal(t, 220, anime[1].TotalEpisodes)
}

func TestProjection(t *testing.T) {
	entry := domain.SearchEntry{ID: 12, Title: "Naruto", EpisodesCount: 220, ImageURL: "https://img/n.jpg", Slug: "naruto"}

	a := AnimeFromSearchEntry(entry, "https://www.animeunity.so/")
	assert.Equal(t, "https://www.animeunity.so/anime/12-naruto", a.Link)
	assert.Equal(t, domain.LinkTypeEpisodePage, a.LinkType)
	assert.Equal(t, 220, a.TotalEpisodes)

	rec := Reconcile(entry, domain.Anime{Link: "https://x/video.mp4", LinkType: domain.LinkTypeDirectVideo, AvailableEpisodes: 12})
	assert.Equal(t, "Naruto", rec.Name)
	assert.Equal(t, 220, rec.TotalEpisodes)
	assert.Equal(t, 12, rec.AvailableEpisodes)
	assert.Equal(t, "https://img/n.jpg", rec.ImagePath)
	assert.Equal(t, domain.LinkTypeDirectVideo, rec.LinkType)

	all := AnimesFromSearchEntries([]domain.SearchEntry{entry, {ID: 3}}, "https://www.animeunity.so")
	assert.Len(t, all, 1)
}

func TestMergeCatalog(t *testing.T) {
	existing := []domain.Anime{{Name: "Naruto", TotalEpisodes: 1}, {Name: "Bleach"}}
	incoming := []domain.Anime{{Name: "One Piece"}, {Name: "Naruto", TotalEpisodes: 220}}

	merged := MergeCatalog(existing, incoming)
	require.Len(t, merged, 3)
	assert.Equal(t, []string{"Naruto", "Bleach", "One Piece"}, []string{merged[0].Name, merged[1].Name, merged[2].Name})
	assert.Equal(t, 220, merged[0].TotalEpisodes)
}
