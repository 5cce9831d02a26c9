package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOptionalTime(t *testing.T) {
	at, err := parseOptionalTime("", false)
	assert.NoError(t, err)
	assert.Nil(t, at)

	at, err = parseOptionalTime("2025-03-01T09:30:00Z", false)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), *at)

	at, err = parseOptionalTime("2025-03-01", false)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *at)

	at, err = parseOptionalTime("2025-03-01", true)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 23, 59, 59, 999999999, time.UTC), *at)

	_, err = parseOptionalTime("yesterday", false)
	assert.Error(t, err)
}
