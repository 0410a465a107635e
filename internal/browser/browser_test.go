package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/unityscrape/internal/domain"
)

func detachedSession(t *testing.T) (*Session, *int) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	closed := 0
	s := newSession(ctx, func() { closed++; cancel() }, func() {}, Options{Log: zerolog.Nop()})
	return s, &closed
}

func TestNewSessionDefaults(t *testing.T) {
	s, _ := detachedSession(t)
	assert.Equal(t, defaultTimeout, s.timeout)
	assert.Equal(t, defaultPollInterval, s.poll)
}

func TestWaitForElementInvalidSelectorFailsImmediately(t *testing.T) {
	s, _ := detachedSession(t)

	start := time.Now()
	el, err := s.WaitForElement(context.Background(), "a[href", time.Minute)
	assert.Nil(t, el)
	assert.True(t, errors.Is(err, domain.ErrInvalidSelector))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForElementHonorsCallerContext(t *testing.T) {
	s, _ := detachedSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.WaitForElement(ctx, ".plyr__control", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrWaitTimedOut))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClickWithoutElement(t *testing.T) {
	s, _ := detachedSession(t)

	err := s.Click(context.Background(), nil)
	assert.Equal(t, domain.CodeClickFailed, domain.CodeOf(err))
	assert.Equal(t, domain.KindStructural, domain.KindOf(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	s, closed := detachedSession(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, *closed)
}

func TestOperationsAfterCloseFail(t *testing.T) {
	s, _ := detachedSession(t)
	require.NoError(t, s.Close())

	err := s.Navigate(context.Background(), "http://127.0.0.1:1/")
	assert.True(t, errors.Is(err, domain.ErrNavigationFailed))
	assert.True(t, domain.IsTransient(err))
}
