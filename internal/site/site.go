// Package site defines the capability set a scrapeable site provides and
// picks the variant named in config.
package site

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/varoOP/unityscrape/internal/browser"
	"github.com/varoOP/unityscrape/internal/domain"
	"github.com/varoOP/unityscrape/internal/session"
)

// Site is everything the orchestrator needs from one site.
type Site interface {
	Name() string
	BaseURL() string

	// OpenSession replays the site's handshake for the HTTP path.
	OpenSession(ctx context.Context) (*session.Session, error)
	// Search returns the raw search API response for term.
	Search(ctx context.Context, s *session.Session, term string) ([]byte, error)
	DecodeEntries(data []byte) ([]domain.SearchEntry, error)

	// Navigate opens link in tab and waits until the page has rendered the
	// parts ExtractRecord reads.
	Navigate(ctx context.Context, tab browser.Tab, link string) error
	ExtractRecord(ctx context.Context, tab browser.Tab) (*domain.Anime, error)
}

type Deps struct {
	Log        zerolog.Logger
	Config     domain.Config
	Replicator *session.Replicator
}

type Factory func(deps Deps) (Site, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a site variant available under name, replacing any
// variant registered before under the same name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	factories[name] = f
}

// Names lists the registered variants.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the variant registered as name.
func New(name string, deps Deps) (Site, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, domain.NewError(domain.CodeInvalidConfig, fmt.Sprintf("unknown site %q (have %v)", name, Names()), nil)
	}
	return f(deps)
}
