package daemon

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
)

func TestInstanceLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "indexsync.lock")
	first := NewInstanceLock(path)
	second := NewInstanceLock(path)

	// Given: one holder
	require.NoError(t, first.Acquire())
	assert.True(t, first.Held())
	assert.Equal(t, path, first.Path())

	// When: a second instance tries
	err := second.Acquire()

	// Then: it is refused
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrDependencyUnavailable)
	assert.False(t, second.Held())

	// When: the first releases
	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	// Then: the second can take over
	require.NoError(t, second.Acquire())
	require.NoError(t, second.Release())
}
