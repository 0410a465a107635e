// Package session replays the site's browser handshake over plain HTTP:
// cookies and the CSRF token from the landing page, then the JSON search API.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly"
	"github.com/gocolly/colly/extensions"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/varoOP/unityscrape/internal/domain"
	"github.com/varoOP/unityscrape/internal/mapper"
	"github.com/varoOP/unityscrape/internal/selector"
)

const (
	DefaultSearchEndpoint = "/archivio/get-animes"

	csrfMetaSelector = `meta[name="csrf-token"]`
)

type Config struct {
	SearchEndpoint string
	// UserAgent is sent on every request. Empty picks a random browser UA.
	UserAgent string
	Timeout   time.Duration
	// Transport is the underlying round tripper. When nil every session gets
	// its own clone of http.DefaultTransport.
	Transport http.RoundTripper
}

// ctxTransport binds the context of the call in flight to every request the
// collector sends.
type ctxTransport struct {
	mu        sync.Mutex
	ctx       context.Context
	Transport http.RoundTripper
}

func (t *ctxTransport) bind(ctx context.Context) {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()
}

func (t *ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()

	if ctx != nil {
		req = req.WithContext(ctx)
	}
	return t.Transport.RoundTrip(req)
}

// CloseIdleConnections closes the kept-alive connections of the underlying
// transport.
func (t *ctxTransport) CloseIdleConnections() {
	if c, ok := t.Transport.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// Session holds the state of one replayed handshake. It belongs to a single
// run and is never persisted.
type Session struct {
	BaseURL   *url.URL
	Jar       *cookiejar.Jar
	CSRFToken string
	CreatedAt time.Time

	collector *colly.Collector
	transport *ctxTransport
	discarded bool

	lastResp *colly.Response
	lastErr  error
}

// Cookies returns the cookies the session sends to the site.
func (s *Session) Cookies() []*http.Cookie {
	if s == nil || s.Jar == nil {
		return nil
	}
	return s.Jar.Cookies(s.BaseURL)
}

// Discard drops the session's cookies and token and closes its connections
// to the site. Safe to call more than once.
func (s *Session) Discard() {
	if s == nil {
		return
	}
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
	s.discarded = true
	s.CSRFToken = ""
	s.Jar = nil
	s.collector = nil
}

func (s *Session) url(path string) string {
	return strings.TrimRight(s.BaseURL.String(), "/") + "/" + strings.TrimLeft(path, "/")
}

func (s *Session) do(ctx context.Context, method, u string, body []byte, hdr http.Header) (*colly.Response, error) {
	s.transport.bind(ctx)
	defer s.transport.bind(nil)

	s.lastResp, s.lastErr = nil, nil

	var data io.Reader
	if body != nil {
		data = bytes.NewReader(body)
	}

	err := s.collector.Request(method, u, data, nil, hdr)
	if err == nil {
		err = s.lastErr
	}

	return s.lastResp, err
}

type Replicator struct {
	log zerolog.Logger
	cfg Config
}

func NewReplicator(log zerolog.Logger, cfg Config) *Replicator {
	if cfg.SearchEndpoint == "" {
		cfg.SearchEndpoint = DefaultSearchEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Replicator{
		log: log.With().Str("module", "session").Logger(),
		cfg: cfg,
	}
}

// classify maps a failed request to code. Network errors, 5xx and 429 are
// transient; any other status means the site answered and refused.
func classify(ctx context.Context, code domain.Code, what string, resp *colly.Response, err error) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	switch {
	case ctx.Err() != nil:
		return domain.NewError(code, what, ctx.Err())
	case status == 0:
		return domain.NewError(code, what, err)
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return domain.NewError(code, fmt.Sprintf("%s: status %d", what, status), err).WithKind(domain.KindTransient)
	default:
		return domain.NewError(code, fmt.Sprintf("%s: status %d", what, status), err).WithKind(domain.KindStructural)
	}
}

// Open fetches the landing page of baseURL with a fresh cookie jar and
// captures the CSRF token from its meta tag.
func (r *Replicator) Open(ctx context.Context, baseURL string) (*Session, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.NewError(domain.CodeInvalidConfig, fmt.Sprintf("invalid base url %q", baseURL), err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, domain.NewError(domain.CodeOpenFailed, "create cookie jar", err)
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.AllowedDomains(u.Host, u.Hostname()),
	)
	if r.cfg.UserAgent != "" {
		c.UserAgent = r.cfg.UserAgent
	} else {
		extensions.RandomUserAgent(c)
	}

	base := r.cfg.Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}

	t := &ctxTransport{Transport: base}
	c.WithTransport(t)
	c.SetCookieJar(jar)
	c.SetRequestTimeout(r.cfg.Timeout)

	s := &Session{
		BaseURL:   u,
		Jar:       jar,
		CreatedAt: time.Now(),
		collector: c,
		transport: t,
	}
	c.OnResponse(func(resp *colly.Response) {
		s.lastResp = resp
	})
	c.OnError(func(resp *colly.Response, err error) {
		s.lastResp, s.lastErr = resp, err
	})

	opened := false
	defer func() {
		if !opened {
			s.Discard()
		}
	}()

	resp, err := s.do(ctx, http.MethodGet, s.url("/"), nil, nil)
	if err != nil {
		return nil, classify(ctx, domain.CodeOpenFailed, "landing page", resp, err)
	}

	doc, err := selector.Parse(string(resp.Body))
	if err != nil {
		return nil, domain.NewError(domain.CodeCsrfTokenMissing, "landing page is not html", err)
	}

	meta, err := selector.Find(doc, csrfMetaSelector)
	if err != nil {
		return nil, domain.NewError(domain.CodeCsrfTokenMissing, "no csrf-token meta tag", err)
	}

	token, err := selector.Attribute(meta, "content")
	if err != nil || strings.TrimSpace(token) == "" {
		return nil, domain.NewError(domain.CodeCsrfTokenMissing, "empty csrf-token meta tag", err)
	}
	s.CSRFToken = strings.TrimSpace(token)
	opened = true

	r.log.Debug().
		Str("base", u.String()).
		Int("cookies", len(s.Cookies())).
		Msg("session opened")

	return s, nil
}

type searchRequest struct {
	Title  string `json:"title"`
	Type   bool   `json:"type"`
	Year   bool   `json:"year"`
	Order  bool   `json:"order"`
	Status bool   `json:"status"`
	Genres bool   `json:"genres"`
	Offset int    `json:"offset"`
	Dubbed bool   `json:"dubbed"`
	Season bool   `json:"season"`
}

// Query posts term to the search endpoint and returns the raw response body.
func (r *Replicator) Query(ctx context.Context, s *Session, term string) ([]byte, error) {
	return r.QueryPage(ctx, s, term, 0)
}

// QueryPage is Query starting at offset into the result list.
func (r *Replicator) QueryPage(ctx context.Context, s *Session, term string, offset int) ([]byte, error) {
	if s == nil || s.discarded {
		return nil, domain.NewError(domain.CodeSearchFailed, "session is not open", nil).WithKind(domain.KindConfig)
	}

	body, err := json.Marshal(searchRequest{Title: term, Offset: offset})
	if err != nil {
		return nil, domain.NewError(domain.CodeSearchFailed, "encode search request", err).WithKind(domain.KindConfig)
	}

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Accept", "application/json, text/plain, */*")
	hdr.Set("X-Requested-With", "XMLHttpRequest")
	hdr.Set("X-CSRF-TOKEN", s.CSRFToken)
	hdr.Set("Referer", s.url("/"))
	hdr.Set("Origin", strings.TrimRight(s.BaseURL.String(), "/"))

	resp, err := s.do(ctx, http.MethodPost, s.url(r.cfg.SearchEndpoint), body, hdr)
	if err != nil {
		return nil, classify(ctx, domain.CodeSearchFailed, "search "+term, resp, err)
	}

	r.log.Trace().Str("term", term).Int("offset", offset).Int("bytes", len(resp.Body)).Msg("search answered")

	return resp.Body, nil
}

// Search runs Query and decodes the result records.
func (r *Replicator) Search(ctx context.Context, s *Session, term string) ([]domain.SearchEntry, error) {
	data, err := r.Query(ctx, s, term)
	if err != nil {
		return nil, err
	}
	return mapper.SearchEntriesFromJSON(data)
}
