package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI(t *testing.T) {
	out := FormatForCLI(AlreadySyncing())

	assert.Contains(t, out, "Error: a sync is already in progress")
	assert.Contains(t, out, "Hint: wait for the running sync")
	assert.Contains(t, out, "Code: ERR_503_ALREADY_SYNCING")
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatForCLI_StandardError(t *testing.T) {
	out := FormatForCLI(errors.New("socket closed"))

	assert.Contains(t, out, "socket closed")
	assert.Contains(t, out, ErrCodeInternal)
}

func TestFormatJSON(t *testing.T) {
	data, err := FormatJSON(NotConnected("list store", errors.New("database is closed")))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeNotConnected, decoded["code"])
	assert.Equal(t, "CONNECTIVITY", decoded["category"])
	assert.Equal(t, true, decoded["retryable"])
	assert.Equal(t, "database is closed", decoded["cause"])
}

func TestLogAttrs(t *testing.T) {
	assert.Nil(t, LogAttrs(nil))
	assert.Len(t, LogAttrs(errors.New("plain")), 1)

	attrs := LogAttrs(UnknownEntity("invoice"))
	// error, error_code, retryable, detail_entity
	assert.Len(t, attrs, 4)
}
