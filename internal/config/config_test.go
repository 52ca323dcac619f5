package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file yields defaults", func(t *testing.T) {
		c, err := Load(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), c)
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
store:
  backend: badger
  cache_size: 8
watch:
  debounce: 250ms
`), 0644))

		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", c.LogLevel)
		assert.Equal(t, "badger", c.Store.Backend)
		assert.Equal(t, 8, c.Store.CacheSize)
		assert.Equal(t, 250*time.Millisecond, c.Watch.Debounce)
		assert.Equal(t, 7420, c.Server.Port)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"server":{"host":"0.0.0.0","port":9000},"environment":"prod"}`), 0644))

		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:9000", c.Addr())
		assert.Equal(t, "prod", c.Environment)
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("SBVC_LOG_LEVEL", "warn")
		t.Setenv("SBVC_STORE_BACKEND", "badger")

		c, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "warn", c.LogLevel)
		assert.Equal(t, "badger", c.Store.Backend)
	})

	t.Run("invalid backend", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: tape\n"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
