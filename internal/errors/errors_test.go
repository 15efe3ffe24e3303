package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncError_Unwrap_PreservesCause(t *testing.T) {
	// Given: a store failure
	cause := errors.New("dial unix /tmp/store.sock: connect: refused")

	// When: wrapping it as NotConnected
	err := NotConnected("list store", cause)

	// Then: the cause is reachable through the chain
	require.NotNil(t, err)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestSyncError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *SyncError
		expected string
	}{
		{
			name:     "not connected",
			err:      NotConnected("search engine", nil),
			expected: "[ERR_301_NOT_CONNECTED] search engine is not connected",
		},
		{
			name:     "unknown entity",
			err:      UnknownEntity("invoice"),
			expected: `[ERR_402_UNKNOWN_ENTITY] no transformer for entity "invoice"`,
		},
		{
			name:     "already syncing",
			err:      AlreadySyncing(),
			expected: "[ERR_503_ALREADY_SYNCING] a sync is already in progress",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestSyncError_Is_MatchesSentinelByCode(t *testing.T) {
	// Given: errors wrapped further up the call stack
	wrapped := fmt.Errorf("dequeue: %w", NotConnected("list store", nil))

	// Then: sentinels match by code, not identity
	assert.True(t, errors.Is(wrapped, ErrNotConnected))
	assert.False(t, errors.Is(wrapped, ErrAlreadySyncing))
	assert.True(t, errors.Is(UnknownQueue("archive"), ErrUnknownQueue))
}

func TestSyncError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeStoreFailed, "push failed", nil).
		WithDetail("list", "search-sync").
		WithDetail("op", "push")

	assert.Equal(t, "search-sync", err.Details["list"])
	assert.Equal(t, "push", err.Details["op"])
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeStoreFailed, CategoryStorage},
		{ErrCodeNotConnected, CategoryConnectivity},
		{ErrCodeUnknownEntity, CategoryValidation},
		{ErrCodeBulkIndexFailed, CategoryPipeline},
		{"BAD", CategoryPipeline},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, categoryFromCode(tt.code))
		})
	}
}

func TestClassification(t *testing.T) {
	// NotConnected is retryable, never permanent
	assert.True(t, IsRetryable(NotConnected("list store", nil)))
	assert.False(t, IsPermanent(NotConnected("list store", nil)))

	// Mapping failures are permanent for the job
	assert.True(t, IsPermanent(UnknownEntity("invoice")))
	assert.True(t, IsPermanent(fmt.Errorf("map: %w", InvalidPayload("listing", "missing id"))))
	assert.False(t, IsRetryable(UnknownEntity("invoice")))

	// Startup precondition failures are fatal
	assert.True(t, IsFatal(DependencyUnavailable("search engine", nil)))
	assert.False(t, IsFatal(BulkIndexFailure(3, nil)))

	// Plain errors carry no classification
	plain := errors.New("boom")
	assert.False(t, IsRetryable(plain))
	assert.False(t, IsPermanent(plain))
	assert.False(t, IsFatal(plain))
	assert.Equal(t, "", GetCode(plain))
	assert.Equal(t, ErrCodeBulkIndexFailed, GetCode(fmt.Errorf("flush: %w", BulkIndexFailure(2, plain))))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}
