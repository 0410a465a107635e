package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithLevelString(t *testing.T) {
	log, err := NewLoggerWithLevelString("debug")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	_, err = NewLoggerWithLevelString("loud")
	assert.Error(t, err)
}
