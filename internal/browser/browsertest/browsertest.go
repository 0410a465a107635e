// Package browsertest provides an in-memory browser.Tab serving fixed HTML.
package browsertest

import (
	"context"
	"sync"
	"time"

	"github.com/varoOP/unityscrape/internal/domain"
	"github.com/varoOP/unityscrape/internal/selector"
)

// Tab renders HTML for every navigation. Set the error fields to make the
// matching operation fail.
type Tab struct {
	HTML string

	NavigateErr error
	WaitErr     error

	mu        sync.Mutex
	navigated []string
	typed     []string
	clicked   []string
	closed    int
}

func (t *Tab) Navigate(ctx context.Context, url string) error {
	t.mu.Lock()
	t.navigated = append(t.navigated, url)
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.NewError(domain.CodeNavigationFailed, url, err)
	}
	return t.NavigateErr
}

func (t *Tab) WaitForElement(ctx context.Context, css string, timeout time.Duration) (*selector.Element, error) {
	sel, err := selector.Compile(css)
	if err != nil {
		return nil, err
	}
	if t.WaitErr != nil {
		return nil, t.WaitErr
	}

	doc, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	el, err := sel.Find(doc)
	if err != nil {
		return nil, domain.NewError(domain.CodeWaitTimedOut, css, err)
	}
	return el, nil
}

func (t *Tab) Snapshot(ctx context.Context) (*selector.Document, error) {
	return selector.Parse(t.HTML)
}

func (t *Tab) ReadAttribute(ctx context.Context, css, name string) (string, error) {
	doc, err := t.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	el, err := selector.Find(doc, css)
	if err != nil {
		return "", err
	}
	return selector.Attribute(el, name)
}

func (t *Tab) ReadInnerText(ctx context.Context, css string) (string, error) {
	doc, err := t.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	el, err := selector.Find(doc, css)
	if err != nil {
		return "", err
	}
	return selector.Text(el)
}

func (t *Tab) TypeText(ctx context.Context, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typed = append(t.typed, text)
	return nil
}

func (t *Tab) Click(ctx context.Context, el *selector.Element) error {
	if el == nil {
		return domain.NewError(domain.CodeClickFailed, "no element", nil)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clicked = append(t.clicked, el.Selector)
	return nil
}

func (t *Tab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

// Navigated returns the URLs passed to Navigate.
func (t *Tab) Navigated() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.navigated...)
}

// Closed reports how many times Close was called.
func (t *Tab) Closed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
