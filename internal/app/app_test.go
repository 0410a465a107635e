package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/unityscrape/internal/browser"
	"github.com/varoOP/unityscrape/internal/browser/browsertest"
	"github.com/varoOP/unityscrape/internal/config"
	"github.com/varoOP/unityscrape/internal/database"
	"github.com/varoOP/unityscrape/internal/domain"
	"github.com/varoOP/unityscrape/internal/driver"
)

const episodePage = `<html><body>
	<h1 class="title">Bleach</h1>
	<div class="info-wrapper">
		<span class="episodes-total">366</span>
		<span class="episodes-available">12</span>
	</div>
	<img class="cover" src="https://img.animeunity.so/bleach.jpg">
	<a class="plyr__controls__item plyr__control" href="https://cdn.animeunity.so/bleach-1.mp4">Download</a>
</body></html>`

// reusedDrivers hands out an already running browser and the given tab.
type reusedDrivers struct {
	tab     browser.Tab
	stopped int
}

func (d *reusedDrivers) Start(ctx context.Context) (*driver.Process, error) {
	return &driver.Process{Reused: true, Headless: true}, nil
}

func (d *reusedDrivers) Connect(ctx context.Context, p *driver.Process, headless bool) (browser.Tab, error) {
	return d.tab, nil
}

func (d *reusedDrivers) Stop(p *driver.Process) {
	d.stopped++
}

type fixture struct {
	site     *httptest.Server
	webhooks atomic.Int32
	cfg      *domain.Config
}

func newFixture(t *testing.T, searchBody string) *fixture {
	t.Helper()

	f := &fixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><meta name="csrf-token" content="T"></head></html>`))
	})
	mux.HandleFunc("/archivio/get-animes", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchBody))
	})
	f.site = httptest.NewServer(mux)
	t.Cleanup(f.site.Close)

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.webhooks.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(hook.Close)

	v := viper.New()
	config.Setup(v)
	v.Set("base_url", f.site.URL)
	v.Set("discord_webhook_url", hook.URL)
	v.Set("retry.initial_interval", "1ms")
	v.Set("retry.max_interval", "5ms")

	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	f.cfg = cfg

	return f
}

func TestSearchStoresCatalogAndDatabase(t *testing.T) {
	f := newFixture(t, `{"records":[
		{"id":12,"title":"Naruto","episodes_count":"220","date":"2002","type":"TV","slug":"naruto"},
		{"id":13,"title":"","episodes_count":1,"date":"2004","type":"Movie","slug":"untitled"}
	]}`)

	fs := afero.NewMemMapFs()
	a, err := New(zerolog.Nop(), f.cfg, Options{Fs: fs})
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "unityscrape.db")
	entries, err := a.Search(context.Background(), "naruto", Target{Catalog: "catalog.json", DBPath: dbPath})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.EqualValues(t, 1, f.webhooks.Load())

	catalog, err := a.Catalog(context.Background(), "catalog.json")
	require.NoError(t, err)
	require.Len(t, catalog, 1, "entries without a title are not projected")
	assert.Equal(t, "Naruto", catalog[0].Name)
	assert.Equal(t, 220, catalog[0].TotalEpisodes)

	db, err := database.NewDB(dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	stored, err := database.NewRecordRepo(zerolog.Nop(), db).ListSearchEntries(context.Background(), "animeunity", "naruto")
	require.NoError(t, err)
	assert.Equal(t, entries, stored)
}

func TestSearchFailureNotifies(t *testing.T) {
	f := newFixture(t, `{"data":[]}`)

	a, err := New(zerolog.Nop(), f.cfg, Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	_, err = a.Search(context.Background(), "naruto", Target{Catalog: "catalog.json"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.EqualValues(t, 1, f.webhooks.Load())

	_, err = a.Catalog(context.Background(), "catalog.json")
	assert.Error(t, err, "nothing is written on failure")
}

func TestFetchMergesIntoYAMLCatalog(t *testing.T) {
	f := newFixture(t, `{"records":[]}`)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "catalog.yaml", []byte(`
- name: Naruto
  link: https://www.animeunity.so/anime/12-naruto
  link_type: episode-page
  total_episodes: 220
  available_episodes: 220
`), 0644))

	drivers := &reusedDrivers{tab: &browsertest.Tab{HTML: episodePage}}
	a, err := New(zerolog.Nop(), f.cfg, Options{Fs: fs, Drivers: drivers})
	require.NoError(t, err)

	anime, err := a.Fetch(context.Background(), f.site.URL+"/anime/2-bleach", Target{Catalog: "catalog.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "Bleach", anime.Name)
	assert.Equal(t, domain.LinkTypeDirectVideo, anime.LinkType)
	assert.Equal(t, 1, drivers.stopped)

	catalog, err := a.Catalog(context.Background(), "catalog.yaml")
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	assert.Equal(t, "Naruto", catalog[0].Name)
	assert.Equal(t, "Bleach", catalog[1].Name)
	assert.Equal(t, 12, catalog[1].AvailableEpisodes)
}

func TestWriteMetrics(t *testing.T) {
	f := newFixture(t, `{"records":[{"id":12,"title":"Naruto","episodes_count":1,"date":"2002","type":"TV","slug":"naruto"}]}`)

	a, err := New(zerolog.Nop(), f.cfg, Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	_, err = a.Search(context.Background(), "naruto", Target{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "unityscrape.prom")
	require.NoError(t, a.WriteMetrics(path))
	require.NoError(t, a.WriteMetrics(""))

	body, err := afero.ReadFile(afero.NewOsFs(), path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `unityscrape_runs_total{mode="http",outcome="success"} 1`)
}

func TestUnknownSite(t *testing.T) {
	f := newFixture(t, `{"records":[]}`)
	f.cfg.Site = "crunchyroll"

	_, err := New(zerolog.Nop(), f.cfg, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestSearchCatalogIsKeyedByName(t *testing.T) {
	f := newFixture(t, `{"records":[{"id":12,"title":"Naruto","episodes_count":3,"date":"2002","type":"TV","slug":"naruto"}]}`)

	fs := afero.NewMemMapFs()
	a, err := New(zerolog.Nop(), f.cfg, Options{Fs: fs})
	require.NoError(t, err)

	_, err = a.Search(context.Background(), "naruto", Target{Catalog: "catalog.json"})
	require.NoError(t, err)

	body, err := afero.ReadFile(fs, "catalog.json")
	require.NoError(t, err)

	var keyed map[string]map[string]any
	require.NoError(t, json.Unmarshal(body, &keyed))
	require.Contains(t, keyed, "Naruto")
	assert.EqualValues(t, 3, keyed["Naruto"]["total_episodes"])
}
