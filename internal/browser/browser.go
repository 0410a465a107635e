// Package browser drives one tab of a running Chrome over the DevTools
// protocol and exposes the rendered DOM through the selector engine.
package browser

import (
	"context"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/varoOP/unityscrape/internal/domain"
	"github.com/varoOP/unityscrape/internal/selector"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

// Tab is an attached page in a running browser.
type Tab interface {
	Navigate(ctx context.Context, url string) error
	WaitForElement(ctx context.Context, css string, timeout time.Duration) (*selector.Element, error)
	Snapshot(ctx context.Context) (*selector.Document, error)
	ReadAttribute(ctx context.Context, css, name string) (string, error)
	ReadInnerText(ctx context.Context, css string) (string, error)
	TypeText(ctx context.Context, text string) error
	Click(ctx context.Context, el *selector.Element) error
	Close() error
}

type Options struct {
	// Timeout bounds every operation that has no explicit timeout.
	Timeout      time.Duration
	PollInterval time.Duration
	Log          zerolog.Logger
}

// Session is a Tab backed by chromedp.
type Session struct {
	log     zerolog.Logger
	ctx     context.Context
	timeout time.Duration
	poll    time.Duration

	closeOnce sync.Once
	cancelTab context.CancelFunc
	detach    context.CancelFunc

	// Product is what the browser reported during the handshake.
	Product string
}

// Dial attaches a new tab to the browser listening at wsURL and confirms the
// connection with a Browser.getVersion round trip.
func Dial(ctx context.Context, wsURL string, opts Options) (*Session, error) {
	allocCtx, detach := chromedp.NewRemoteAllocator(context.Background(), wsURL)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := newSession(tabCtx, cancelTab, detach, opts)

	// The first Run creates the target, so it must use the tab context itself.
	stop := context.AfterFunc(ctx, cancelTab)
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(c context.Context) error {
		_, product, _, _, _, err := cdpbrowser.GetVersion().Do(c)
		s.Product = product
		return err
	}))
	if !stop() || err != nil {
		s.Close()
		if ctx.Err() != nil {
			return nil, domain.NewError(domain.CodeConnectFailed, "dial "+wsURL, ctx.Err())
		}
		return nil, domain.NewError(domain.CodeConnectFailed, "dial "+wsURL, err)
	}

	s.log.Debug().Str("product", s.Product).Msg("attached to browser")

	return s, nil
}

func newSession(tabCtx context.Context, cancelTab, detach context.CancelFunc, opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	return &Session{
		log:       opts.Log.With().Str("module", "browser").Logger(),
		ctx:       tabCtx,
		timeout:   opts.Timeout,
		poll:      opts.PollInterval,
		cancelTab: cancelTab,
		detach:    detach,
	}
}

// opCtx derives an operation context from the tab that is also cancelled
// with the caller's ctx.
func (s *Session) opCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = s.timeout
	}

	c, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

// fail prefers the caller's cancellation over the operation error.
func fail(ctx context.Context, code domain.Code, detail string, err error) error {
	if ctx.Err() != nil {
		return domain.NewError(code, detail, ctx.Err())
	}
	return domain.NewError(code, detail, err)
}

// Navigate loads url and waits until the document body is ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	c, cancel := s.opCtx(ctx, 0)
	defer cancel()

	s.log.Trace().Str("url", url).Msg("navigating")

	if err := chromedp.Run(c,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fail(ctx, domain.CodeNavigationFailed, url, err)
	}

	return nil
}

// WaitForElement polls the rendered DOM until css matches or timeout
// elapses. An invalid selector fails before any polling.
func (s *Session) WaitForElement(ctx context.Context, css string, timeout time.Duration) (*selector.Element, error) {
	sel, err := selector.Compile(css)
	if err != nil {
		return nil, err
	}

	c, cancel := s.opCtx(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		doc, err := s.snapshot(c)
		if err == nil {
			if el, err := sel.Find(doc); err == nil {
				return el, nil
			}
		}

		select {
		case <-c.Done():
			return nil, fail(ctx, domain.CodeWaitTimedOut, css, c.Err())
		case <-ticker.C:
		}
	}
}

func (s *Session) snapshot(ctx context.Context) (*selector.Document, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return selector.Parse(html)
}

// Snapshot returns the current rendered DOM.
func (s *Session) Snapshot(ctx context.Context) (*selector.Document, error) {
	c, cancel := s.opCtx(ctx, 0)
	defer cancel()

	doc, err := s.snapshot(c)
	if err != nil {
		if domain.CodeOf(err) != "" {
			return nil, err
		}
		return nil, fail(ctx, domain.CodeNavigationFailed, "read rendered document", err)
	}
	return doc, nil
}

func (s *Session) ReadAttribute(ctx context.Context, css, name string) (string, error) {
	doc, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	el, err := selector.Find(doc, css)
	if err != nil {
		return "", err
	}
	return selector.Attribute(el, name)
}

func (s *Session) ReadInnerText(ctx context.Context, css string) (string, error) {
	doc, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	el, err := selector.Find(doc, css)
	if err != nil {
		return "", err
	}
	return selector.Text(el)
}

// TypeText sends text as key events to the focused element.
func (s *Session) TypeText(ctx context.Context, text string) error {
	c, cancel := s.opCtx(ctx, 0)
	defer cancel()

	if err := chromedp.Run(c, chromedp.KeyEvent(text)); err != nil {
		return fail(ctx, domain.CodeInputFailed, "", err)
	}
	return nil
}

// Click clicks the live node matching the selector el was found with.
func (s *Session) Click(ctx context.Context, el *selector.Element) error {
	if el == nil || el.Selector == "" {
		return domain.NewError(domain.CodeClickFailed, "no element", nil).WithKind(domain.KindStructural)
	}

	c, cancel := s.opCtx(ctx, 0)
	defer cancel()

	if err := chromedp.Run(c, chromedp.Click(el.Selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fail(ctx, domain.CodeClickFailed, el.Selector, err)
	}
	return nil
}

// Close closes the tab and detaches from the browser. The browser process
// itself is left running.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancelTab()
		s.detach()
		s.log.Trace().Msg("tab closed")
	})
	return nil
}
