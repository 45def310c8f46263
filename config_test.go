package resgo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Equal(t, int64(250<<20), cfg.CacheFileLimit)
		assert.Equal(t, uint32(1<<20), cfg.MaxHandles)
		assert.Equal(t, 32, cfg.AllocBandwidth)
		assert.Equal(t, "none", cfg.Compression)
		assert.Equal(t, "invalid", cfg.Sweep)
		require.NoError(t, cfg.Validate())

		assert.Equal(t, cfg, Config{}.withDefaults())
	})

	t.Run("Parse", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
cache_dir: /var/cache/resgo
max_handles: 4096
strict: true
memory_limit_bytes: 1048576
compression: lz4
sweep: all
`))
		require.NoError(t, err)
		assert.Equal(t, "/var/cache/resgo", cfg.CacheDir)
		assert.Equal(t, uint32(4096), cfg.MaxHandles)
		assert.True(t, cfg.Strict)
		assert.Equal(t, int64(1<<20), cfg.MemoryLimitBytes)
		assert.Equal(t, "lz4", cfg.Compression)
		assert.Equal(t, "all", cfg.Sweep)
		assert.Equal(t, 32, cfg.AllocBandwidth, "absent keys keep defaults")
	})

	t.Run("Invalid", func(t *testing.T) {
		tests := []struct {
			name string
			yaml string
		}{
			{"compression", "compression: brotli"},
			{"sweep", "sweep: some"},
			{"negative limit", "cache_file_limit: -1"},
			{"negative io", "io_limit_bytes_per_sec: -5"},
			{"bandwidth", "max_handles: 8\nalloc_bandwidth: 16"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := ParseConfig([]byte(tt.yaml))
				assert.ErrorIs(t, err, ErrInvalidConfig)
			})
		}

		_, err := ParseConfig([]byte("max_handles: [1"))
		require.Error(t, err)
	})

	t.Run("LoadFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "resgo.yaml")
		data, err := Config{CacheDir: "cache", DebugNames: true}.withDefaults().YAML()
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "cache", cfg.CacheDir)
		assert.True(t, cfg.DebugNames)

		_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
