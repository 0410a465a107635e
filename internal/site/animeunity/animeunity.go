// Package animeunity is the AnimeUnity site variant.
package animeunity

import (
	"context"
	"time"

	"dario.cat/mergo"
	"github.com/rs/zerolog"

	"github.com/varoOP/unityscrape/internal/browser"
	"github.com/varoOP/unityscrape/internal/domain"
	"github.com/varoOP/unityscrape/internal/mapper"
	"github.com/varoOP/unityscrape/internal/selector"
	"github.com/varoOP/unityscrape/internal/session"
	"github.com/varoOP/unityscrape/internal/site"
)

const (
	Name           = "animeunity"
	DefaultBaseURL = "https://www.animeunity.so"
)

// DefaultSelectors match the AnimeUnity episode page once the player has
// rendered.
var DefaultSelectors = domain.SelectorConfig{
	Title:             "h1.title",
	TotalEpisodes:     ".info-wrapper .episodes-total",
	AvailableEpisodes: ".info-wrapper .episodes-available",
	Image:             "img.cover",
	DownloadLink:      `a[class="plyr__controls__item plyr__control"]`,
	CanonicalLink:     `link[rel="canonical"]`,
}

func init() {
	site.Register(Name, New)
}

type animeUnity struct {
	log         zerolog.Logger
	baseURL     string
	waitTimeout time.Duration
	selectors   domain.SelectorConfig
	mapper      *mapper.Mapper
	replicator  *session.Replicator
}

// New builds the variant from deps. Selectors set in config override the
// defaults one by one.
func New(deps site.Deps) (site.Site, error) {
	sel := deps.Config.Selectors
	if err := mergo.Merge(&sel, DefaultSelectors); err != nil {
		return nil, domain.NewError(domain.CodeInvalidConfig, "merge selectors", err)
	}

	// Fail on a bad override now rather than halfway through a run.
	for _, css := range []string{sel.Title, sel.TotalEpisodes, sel.AvailableEpisodes, sel.Image, sel.DownloadLink, sel.CanonicalLink} {
		if _, err := selector.Compile(css); err != nil {
			return nil, err
		}
	}
	if sel.PlayerReady != "" {
		if _, err := selector.Compile(sel.PlayerReady); err != nil {
			return nil, err
		}
	}

	base := deps.Config.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	replicator := deps.Replicator
	if replicator == nil {
		replicator = session.NewReplicator(deps.Log, session.Config{
			SearchEndpoint: deps.Config.SearchEndpoint,
			UserAgent:      deps.Config.UserAgent,
			Timeout:        deps.Config.RequestTimeout,
		})
	}

	return &animeUnity{
		log:         deps.Log.With().Str("module", Name).Logger(),
		baseURL:     base,
		waitTimeout: deps.Config.WaitTimeout,
		selectors:   sel,
		replicator:  replicator,
		mapper: mapper.New(mapper.DetailSelectors{
			Title:             sel.Title,
			TotalEpisodes:     sel.TotalEpisodes,
			AvailableEpisodes: sel.AvailableEpisodes,
			Image:             sel.Image,
			DownloadLink:      sel.DownloadLink,
			CanonicalLink:     sel.CanonicalLink,
		}),
	}, nil
}

func (a *animeUnity) Name() string {
	return Name
}

func (a *animeUnity) BaseURL() string {
	return a.baseURL
}

func (a *animeUnity) OpenSession(ctx context.Context) (*session.Session, error) {
	return a.replicator.Open(ctx, a.baseURL)
}

func (a *animeUnity) Search(ctx context.Context, s *session.Session, term string) ([]byte, error) {
	return a.replicator.Query(ctx, s, term)
}

func (a *animeUnity) DecodeEntries(data []byte) ([]domain.SearchEntry, error) {
	return mapper.SearchEntriesFromJSON(data)
}

// Navigate waits for the download anchor, which the player only renders
// after the page's scripts have run. The player's buttons carry the same
// classes, so waiting on the control bar alone is not enough.
func (a *animeUnity) Navigate(ctx context.Context, tab browser.Tab, link string) error {
	if err := tab.Navigate(ctx, link); err != nil {
		return err
	}

	if a.selectors.PlayerReady != "" {
		if _, err := tab.WaitForElement(ctx, a.selectors.PlayerReady, a.waitTimeout); err != nil {
			return err
		}
	}

	if _, err := tab.WaitForElement(ctx, a.selectors.DownloadLink, a.waitTimeout); err != nil {
		return err
	}

	a.log.Debug().Str("link", link).Msg("player rendered")
	return nil
}

func (a *animeUnity) ExtractRecord(ctx context.Context, tab browser.Tab) (*domain.Anime, error) {
	doc, err := tab.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return a.mapper.AnimeFromDocument(doc)
}
