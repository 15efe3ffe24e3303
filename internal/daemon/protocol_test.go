package daemon

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
)

func TestNewSuccessResponse(t *testing.T) {
	resp := NewSuccessResponse("req-1", CountResult{Count: 3})

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "req-1", resp.ID)
	assert.JSONEq(t, `{"count":3}`, string(resp.Result))
	assert.Nil(t, resp.Error)
}

func TestErrorResponse_RoundTripsCodes(t *testing.T) {
	// Given: a pipeline error
	resp := errorResponse("req-2", serrors.UnknownQueue("bogus"))

	// Then: the wire form keeps the code
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSyncError, resp.Error.Code)
	assert.Equal(t, serrors.ErrCodeUnknownQueue, resp.Error.Data)

	// And: the client side rebuilds a matching error
	assert.ErrorIs(t, resp.Error.asError(), serrors.ErrUnknownQueue)
}

func TestErrorResponse_ForeignError(t *testing.T) {
	resp := errorResponse("req-3", errors.New("boom"))

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)

	var rpcErr *Error
	require.ErrorAs(t, resp.Error.asError(), &rpcErr)
	assert.Contains(t, rpcErr.Error(), "boom")
}

func TestUpdateConfigParams_Patch(t *testing.T) {
	enabled := true
	p := UpdateConfigParams{Enabled: &enabled, Interval: "10m", RetryDelay: "250ms"}

	patch, err := p.Patch()

	require.NoError(t, err)
	require.NotNil(t, patch.Interval)
	require.NotNil(t, patch.RetryDelay)
	assert.Equal(t, 10*time.Minute, *patch.Interval)
	assert.Equal(t, 250*time.Millisecond, *patch.RetryDelay)
	assert.True(t, *patch.Enabled)
	assert.Nil(t, patch.BatchSize)

	_, err = UpdateConfigParams{Interval: "soon"}.Patch()
	assert.ErrorIs(t, err, serrors.ErrInvalidInput)
}
