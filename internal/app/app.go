package app

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/varoOP/unityscrape/internal/browser"
	"github.com/varoOP/unityscrape/internal/config"
	"github.com/varoOP/unityscrape/internal/database"
	"github.com/varoOP/unityscrape/internal/domain"
	"github.com/varoOP/unityscrape/internal/driver"
	"github.com/varoOP/unityscrape/internal/logger"
	"github.com/varoOP/unityscrape/internal/mapper"
	"github.com/varoOP/unityscrape/internal/metrics"
	"github.com/varoOP/unityscrape/internal/notification"
	"github.com/varoOP/unityscrape/internal/orchestrator"
	"github.com/varoOP/unityscrape/internal/repository"
	"github.com/varoOP/unityscrape/internal/session"
	"github.com/varoOP/unityscrape/internal/site"

	_ "github.com/varoOP/unityscrape/internal/site/animeunity"
)

// App represents the main application with all dependencies initialized
type App struct {
	log                 zerolog.Logger
	config              *domain.Config
	site                site.Site
	orchestrator        *orchestrator.Orchestrator
	catalogRepo         domain.CatalogRepository
	notificationService domain.NotificationService
	metrics             *metrics.Recorder
}

// Options are the per-invocation settings that do not live in the config file
type Options struct {
	// Fs backs the catalog files, the OS filesystem if nil.
	Fs afero.Fs
	// Drivers replaces the driver manager built from config.
	Drivers orchestrator.Drivers
	// Replicator replaces the HTTP session replicator built from config.
	Replicator *session.Replicator
}

// NewApp loads the configuration and builds the application from it
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLoggerWithLevelString(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return New(log, cfg, Options{})
}

// New wires every component from cfg
func New(log zerolog.Logger, cfg *domain.Config, opts Options) (*App, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	replicator := opts.Replicator
	if replicator == nil {
		replicator = session.NewReplicator(log, session.Config{
			SearchEndpoint: cfg.SearchEndpoint,
			UserAgent:      cfg.UserAgent,
			Timeout:        cfg.RequestTimeout,
		})
	}

	s, err := site.New(cfg.Site, site.Deps{Log: log, Config: *cfg, Replicator: replicator})
	if err != nil {
		return nil, fmt.Errorf("failed to build site %s: %w", cfg.Site, err)
	}

	drivers := opts.Drivers
	if drivers == nil {
		dcfg := driver.ConfigFrom(cfg.Driver)
		dcfg.PollInterval = cfg.PollInterval
		drivers = driver.NewManager(log, dcfg, driver.WithTabOptions(browser.Options{
			Timeout:      cfg.WaitTimeout,
			PollInterval: cfg.PollInterval,
			Log:          log,
		}))
	}

	rec := metrics.NewRecorder()

	return &App{
		log:    log,
		config: cfg,
		site:   s,
		orchestrator: orchestrator.New(log, s, drivers, orchestrator.Options{
			Retry:    cfg.Retry,
			Headless: cfg.Driver.Headless,
			Metrics:  rec,
		}),
		catalogRepo:         repository.NewFileRepository(log, opts.Fs),
		notificationService: notification.NewService(log, cfg.DiscordWebhookURL),
		metrics:             rec,
	}, nil
}

// Metrics exposes the recorder the runs report to
func (a *App) Metrics() *metrics.Recorder {
	return a.metrics
}

// Target says where a run's records are kept besides being printed
type Target struct {
	// Catalog is a .json or .yaml catalog file to merge into.
	Catalog string
	// DBPath is a sqlite database to store into.
	DBPath string
}

func (a *App) notify(ctx context.Context, err error, summary domain.RunSummary) {
	if err != nil {
		if notifyErr := a.notificationService.SendError(ctx, err); notifyErr != nil {
			a.log.Warn().Err(notifyErr).Msg("Failed to send error notification")
		}
		return
	}

	if notifyErr := a.notificationService.SendSuccess(ctx, summary); notifyErr != nil {
		a.log.Warn().Err(notifyErr).Msg("Failed to send success notification")
	}
}

func (a *App) openStore(path string) (*database.DB, domain.RecordStore, error) {
	db, err := database.NewDB(path, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, database.NewRecordRepo(a.log, db), nil
}

// Search queries the site's search API for term over HTTP and keeps the
// results in target
func (a *App) Search(ctx context.Context, term string, target Target) (entries []domain.SearchEntry, err error) {
	summary := domain.RunSummary{Site: a.site.Name(), Mode: domain.ModeHTTP, Query: term}
	defer func() { a.notify(ctx, err, summary) }()

	res, err := a.orchestrator.Scrape(ctx, orchestrator.Request{Mode: domain.ModeHTTP, Term: term})
	if err != nil {
		return nil, err
	}

	summary.Records = len(res.Entries)
	summary.Attempts = res.Attempts
	summary.Duration = res.Duration

	if target.Catalog != "" {
		projected := mapper.AnimesFromSearchEntries(res.Entries, a.site.BaseURL())
		if _, err := a.catalogRepo.Merge(ctx, domain.CatalogPath(target.Catalog), projected); err != nil {
			return nil, fmt.Errorf("failed to update catalog: %w", err)
		}
	}

	if target.DBPath != "" {
		db, store, err := a.openStore(target.DBPath)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		if err := store.UpsertSearchEntries(ctx, a.site.Name(), term, res.Entries); err != nil {
			return nil, fmt.Errorf("failed to store search entries: %w", err)
		}
	}

	return res.Entries, nil
}

// Fetch renders the episode page at link in the browser and keeps the
// record in target
func (a *App) Fetch(ctx context.Context, link string, target Target) (anime *domain.Anime, err error) {
	summary := domain.RunSummary{Site: a.site.Name(), Mode: domain.ModeBrowser, Query: link}
	defer func() { a.notify(ctx, err, summary) }()

	res, err := a.orchestrator.Scrape(ctx, orchestrator.Request{Mode: domain.ModeBrowser, Link: link})
	if err != nil {
		return nil, err
	}

	summary.Records = 1
	summary.Attempts = res.Attempts
	summary.Duration = res.Duration

	if !res.Anime.Consistent() {
		a.log.Warn().Str("anime", res.Anime.Name).Msg("available episodes exceed total episodes")
	}

	if target.Catalog != "" {
		if _, err := a.catalogRepo.Merge(ctx, domain.CatalogPath(target.Catalog), []domain.Anime{*res.Anime}); err != nil {
			return nil, fmt.Errorf("failed to update catalog: %w", err)
		}
	}

	if target.DBPath != "" {
		db, store, err := a.openStore(target.DBPath)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		if err := store.UpsertAnime(ctx, a.site.Name(), *res.Anime); err != nil {
			return nil, fmt.Errorf("failed to store anime: %w", err)
		}
	}

	return res.Anime, nil
}

// Catalog reads the catalog file at path
func (a *App) Catalog(ctx context.Context, path string) ([]domain.Anime, error) {
	anime, err := a.catalogRepo.Get(ctx, domain.CatalogPath(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog %s", path)
	}
	return anime, nil
}

// WriteMetrics writes the metrics of this process to path in the textfile
// collector format
func (a *App) WriteMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := a.metrics.WriteToTextfile(path); err != nil {
		return errors.Wrap(err, "failed to write metrics")
	}
	return nil
}
