package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexsync/internal/config"
)

func TestConfigTemplate_MatchesDefaults(t *testing.T) {
	// Given: the template written to disk
	path := filepath.Join(t.TempDir(), "indexsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ConfigTemplate), 0o644))

	// When: loading it
	cfg, err := config.Load(path)

	// Then: every section equals the defaults
	require.NoError(t, err)
	defaults := config.NewConfig()
	assert.Equal(t, defaults.Queue, cfg.Queue)
	assert.Equal(t, defaults.Indexer, cfg.Indexer)
	assert.Equal(t, defaults.Sync, cfg.Sync)
	assert.Equal(t, defaults.Store, cfg.Store)
	assert.Equal(t, defaults.Search, cfg.Search)
	assert.Equal(t, defaults.Source, cfg.Source)
	assert.Equal(t, defaults.Daemon, cfg.Daemon)
	assert.Equal(t, defaults.Logging, cfg.Logging)
}
