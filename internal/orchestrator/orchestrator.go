// Package orchestrator runs one scrape end to end: it acquires a browser tab
// or an HTTP session, queries the site, maps the result, and releases
// everything it acquired before returning.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/varoOP/unityscrape/internal/browser"
	"github.com/varoOP/unityscrape/internal/domain"
	"github.com/varoOP/unityscrape/internal/driver"
	"github.com/varoOP/unityscrape/internal/metrics"
	"github.com/varoOP/unityscrape/internal/session"
	"github.com/varoOP/unityscrape/internal/site"
)

type State string

const (
	StateIdle             State = "idle"
	StateSessionAcquiring State = "session_acquiring"
	StateQuerying         State = "querying"
	StateExtracting       State = "extracting"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Stage is the step of the pipeline a failure happened in.
type Stage string

const (
	StageSession    Stage = "session"
	StageQuery      Stage = "query"
	StageExtraction Stage = "extraction"
)

// Error is returned by every failed run.
type Error struct {
	Mode     domain.Mode
	Stage    Stage
	State    State
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s scrape failed at %s stage (state %s, %d attempts): %v", e.Mode, e.Stage, e.State, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Drivers starts and stops the browser for the browser path.
type Drivers interface {
	Start(ctx context.Context) (*driver.Process, error)
	Connect(ctx context.Context, p *driver.Process, headless bool) (browser.Tab, error)
	Stop(p *driver.Process)
}

type Request struct {
	Mode domain.Mode
	// Link is the episode page to render (browser mode).
	Link string
	// Term is the search term (http mode).
	Term string
}

type Result struct {
	Mode    domain.Mode
	Anime   *domain.Anime
	Entries []domain.SearchEntry
	// States lists every state the run went through, idle first.
	States   []State
	Attempts int
	Duration time.Duration
}

type Options struct {
	Retry    domain.RetryConfig
	Headless bool
	Metrics  *metrics.Recorder
}

type Orchestrator struct {
	log      zerolog.Logger
	site     site.Site
	drivers  Drivers
	retry    domain.RetryConfig
	headless bool
	metrics  *metrics.Recorder
}

// New builds an orchestrator for s. drivers may be nil when only the HTTP
// path is used.
func New(log zerolog.Logger, s site.Site, drivers Drivers, opts Options) *Orchestrator {
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Retry.InitialInterval <= 0 {
		opts.Retry.InitialInterval = 500 * time.Millisecond
	}
	if opts.Retry.MaxInterval <= 0 {
		opts.Retry.MaxInterval = 10 * time.Second
	}

	return &Orchestrator{
		log:      log.With().Str("module", "orchestrator").Logger(),
		site:     s,
		drivers:  drivers,
		retry:    opts.Retry,
		headless: opts.Headless,
		metrics:  opts.Metrics,
	}
}

// run is the mutable state of one Scrape call.
type run struct {
	o        *Orchestrator
	log      zerolog.Logger
	mode     domain.Mode
	state    State
	states   []State
	attempts int
}

func (o *Orchestrator) newRun(mode domain.Mode) *run {
	return &run{
		o:      o,
		log:    o.log.With().Str("mode", string(mode)).Str("site", o.site.Name()).Logger(),
		mode:   mode,
		state:  StateIdle,
		states: []State{StateIdle},
	}
}

func (r *run) transition(to State) {
	r.log.Debug().Str("from", string(r.state)).Str("to", string(to)).Msg("state transition")
	r.state = to
	r.states = append(r.states, to)
	r.o.metrics.Transition(string(r.mode), string(to))
}

// fail moves the run to failed and builds the error for the caller.
func (r *run) fail(stage Stage, attempts int, err error) *Error {
	e := &Error{Mode: r.mode, Stage: stage, State: r.state, Attempts: attempts, Err: err}
	r.transition(StateFailed)
	return e
}

func kindLabel(err error) string {
	k := domain.KindOf(err)
	if k == 0 {
		return "unknown"
	}
	return k.String()
}

// step runs op until it succeeds, fails with a non-transient error, or has
// used up the attempt budget.
func (r *run) step(ctx context.Context, stage Stage, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.o.retry.InitialInterval
	b.MaxInterval = r.o.retry.MaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.o.retry.MaxAttempts-1)), ctx)

	attempts := 0
	var last error
	err := backoff.RetryNotify(func() error {
		attempts++
		r.attempts++
		r.o.metrics.Attempt(string(r.mode), string(stage))

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err
		r.o.metrics.Failure(string(r.mode), string(stage), kindLabel(err))

		if !domain.IsTransient(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		r.log.Warn().Err(err).Str("stage", string(stage)).Int("attempt", attempts).Dur("wait", wait).Msg("retrying")
	})
	if err == nil {
		return nil
	}

	// Cancellation during a backoff wait reports ctx.Err; keep the leaf error.
	if last != nil && errors.Is(err, ctx.Err()) && !errors.Is(last, ctx.Err()) {
		err = fmt.Errorf("%w: %w", err, last)
	}
	return r.fail(stage, attempts, err)
}

// Scrape runs req to completion. Whatever it acquired is released before it
// returns, on success and on failure.
func (o *Orchestrator) Scrape(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	r := o.newRun(req.Mode)
	res := &Result{Mode: req.Mode}

	var err error
	switch req.Mode {
	case domain.ModeBrowser:
		res.Anime, err = o.scrapeBrowser(ctx, r, req.Link)
	case domain.ModeHTTP:
		res.Entries, err = o.scrapeHTTP(ctx, r, req.Term)
	default:
		err = r.fail(StageSession, 0, domain.NewError(domain.CodeInvalidConfig, fmt.Sprintf("unknown mode %q", req.Mode), nil))
	}

	res.States = r.states
	res.Attempts = r.attempts
	res.Duration = time.Since(start)

	if err != nil {
		o.metrics.Run(string(req.Mode), "failure", res.Duration, 0)
		r.log.Error().Err(err).Dur("duration", res.Duration).Msg("scrape failed")
		return nil, err
	}

	records := len(res.Entries)
	if res.Anime != nil {
		records = 1
	}
	o.metrics.Run(string(req.Mode), "success", res.Duration, records)
	r.log.Info().Int("records", records).Int("attempts", res.Attempts).Dur("duration", res.Duration).Msg("scrape finished")

	return res, nil
}

func (o *Orchestrator) scrapeBrowser(ctx context.Context, r *run, link string) (*domain.Anime, error) {
	if link == "" {
		return nil, r.fail(StageSession, 0, domain.NewError(domain.CodeInvalidConfig, "browser mode needs a link", nil))
	}
	if o.drivers == nil {
		return nil, r.fail(StageSession, 0, domain.NewError(domain.CodeInvalidConfig, "browser mode needs a driver manager", nil))
	}

	var (
		proc *driver.Process
		tab  browser.Tab
	)
	defer func() {
		if tab != nil {
			if err := tab.Close(); err != nil {
				r.log.Warn().Err(err).Msg("could not close tab")
			}
		}
		o.drivers.Stop(proc)
	}()

	r.transition(StateSessionAcquiring)
	if err := r.step(ctx, StageSession, func(ctx context.Context) error {
		p, err := o.drivers.Start(ctx)
		if err != nil {
			return err
		}

		t, err := o.drivers.Connect(ctx, p, o.headless)
		if err != nil {
			o.drivers.Stop(p)
			return err
		}

		proc, tab = p, t
		return nil
	}); err != nil {
		return nil, err
	}

	r.transition(StateQuerying)
	if err := r.step(ctx, StageQuery, func(ctx context.Context) error {
		return o.site.Navigate(ctx, tab, link)
	}); err != nil {
		return nil, err
	}

	r.transition(StateExtracting)
	var anime *domain.Anime
	if err := r.step(ctx, StageExtraction, func(ctx context.Context) error {
		a, err := o.site.ExtractRecord(ctx, tab)
		if err != nil {
			return err
		}
		anime = a
		return nil
	}); err != nil {
		return nil, err
	}

	r.transition(StateDone)
	return anime, nil
}

func (o *Orchestrator) scrapeHTTP(ctx context.Context, r *run, term string) ([]domain.SearchEntry, error) {
	if term == "" {
		return nil, r.fail(StageSession, 0, domain.NewError(domain.CodeInvalidConfig, "http mode needs a search term", nil))
	}

	var sess *session.Session
	defer func() {
		sess.Discard()
	}()

	r.transition(StateSessionAcquiring)
	if err := r.step(ctx, StageSession, func(ctx context.Context) error {
		s, err := o.site.OpenSession(ctx)
		if err != nil {
			return err
		}
		sess = s
		return nil
	}); err != nil {
		return nil, err
	}

	r.transition(StateQuerying)
	var data []byte
	if err := r.step(ctx, StageQuery, func(ctx context.Context) error {
		d, err := o.site.Search(ctx, sess, term)
		if err != nil {
			return err
		}
		data = d
		return nil
	}); err != nil {
		return nil, err
	}

	r.transition(StateExtracting)
	var entries []domain.SearchEntry
	if err := r.step(ctx, StageExtraction, func(ctx context.Context) error {
		e, err := o.site.DecodeEntries(data)
		if err != nil {
			return err
		}
		entries = e
		return nil
	}); err != nil {
		return nil, err
	}

	r.transition(StateDone)
	return entries, nil
}

// FetchRecord renders link in the browser and maps it into an Anime.
func (o *Orchestrator) FetchRecord(ctx context.Context, link string) (*domain.Anime, error) {
	res, err := o.Scrape(ctx, Request{Mode: domain.ModeBrowser, Link: link})
	if err != nil {
		return nil, err
	}
	return res.Anime, nil
}

// Search queries the site's search API over HTTP.
func (o *Orchestrator) Search(ctx context.Context, term string) ([]domain.SearchEntry, error) {
	res, err := o.Scrape(ctx, Request{Mode: domain.ModeHTTP, Term: term})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}
