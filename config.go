package resgo

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/resgo/cachefile"
	"github.com/hupe1980/resgo/table"
)

const (
	// DefaultCacheFileLimit is the per-file size limit of the cache pool.
	DefaultCacheFileLimit = cachefile.DefaultLimit

	// DefaultMaxHandles bounds the handle space.
	DefaultMaxHandles = 1 << 20

	// DefaultAllocBandwidth is the mean number of handles the allocator
	// keeps staged.
	DefaultAllocBandwidth = 32
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config configures an Engine. Zero values select the documented defaults.
type Config struct {
	// CacheDir is the directory cache files are created in.
	// If empty, a "resgo" directory below os.TempDir() is used.
	CacheDir string `yaml:"cache_dir"`

	// CacheFileLimit is the soft size limit of a single cache file in bytes.
	CacheFileLimit int64 `yaml:"cache_file_limit"`

	// MaxHandles is the number of handles the engine can issue. Handles are
	// drawn from [1, MaxHandles].
	MaxHandles uint32 `yaml:"max_handles"`

	// AllocBandwidth is the mean allocation request size. The allocator
	// stages up to twice this many handles ahead of demand.
	AllocBandwidth int `yaml:"alloc_bandwidth"`

	// Strict selects the strict occupancy policy for the public table and
	// for scopes created with NewScope.
	Strict bool `yaml:"strict"`

	// DebugNames names resources "<kind>#<handle>" when they enter a table.
	DebugNames bool `yaml:"debug_names"`

	// MemoryLimitBytes caps the payload bytes of loaded resources. Loading
	// past the limit evicts other resources to the cache. 0 only tracks.
	MemoryLimitBytes int64 `yaml:"memory_limit_bytes"`

	// IOLimitBytesPerSec throttles cache file traffic. 0 is unlimited.
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec"`

	// Compression is the cache payload codec: "none", "lz4" or "zstd".
	Compression string `yaml:"compression"`

	// Sweep selects what CollectGarbage erases: "invalid" or "all".
	Sweep string `yaml:"sweep"`
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		CacheFileLimit: DefaultCacheFileLimit,
		MaxHandles:     DefaultMaxHandles,
		AllocBandwidth: DefaultAllocBandwidth,
		Compression:    cachefile.CompressionNone.String(),
		Sweep:          table.SweepInvalid.String(),
	}
}

// LoadConfig reads a YAML config file. Keys absent from the file keep their
// defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("resgo: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config data over DefaultConfig and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("resgo: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.CacheFileLimit < 0:
		return fmt.Errorf("%w: cache_file_limit %d", ErrInvalidConfig, c.CacheFileLimit)
	case c.AllocBandwidth < 0:
		return fmt.Errorf("%w: alloc_bandwidth %d", ErrInvalidConfig, c.AllocBandwidth)
	case c.MemoryLimitBytes < 0:
		return fmt.Errorf("%w: memory_limit_bytes %d", ErrInvalidConfig, c.MemoryLimitBytes)
	case c.IOLimitBytesPerSec < 0:
		return fmt.Errorf("%w: io_limit_bytes_per_sec %d", ErrInvalidConfig, c.IOLimitBytesPerSec)
	}
	if c.AllocBandwidth > 0 && c.MaxHandles > 0 && uint32(c.AllocBandwidth) > c.MaxHandles {
		return fmt.Errorf("%w: alloc_bandwidth %d exceeds max_handles %d", ErrInvalidConfig, c.AllocBandwidth, c.MaxHandles)
	}
	if _, err := c.compression(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.sweep(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// YAML encodes the config.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CacheFileLimit == 0 {
		c.CacheFileLimit = d.CacheFileLimit
	}
	if c.MaxHandles == 0 {
		c.MaxHandles = d.MaxHandles
	}
	if c.AllocBandwidth == 0 {
		c.AllocBandwidth = d.AllocBandwidth
	}
	if c.Compression == "" {
		c.Compression = d.Compression
	}
	if c.Sweep == "" {
		c.Sweep = d.Sweep
	}
	return c
}

func (c Config) compression() (cachefile.Compression, error) {
	return cachefile.ParseCompression(c.Compression)
}

func (c Config) sweep() (table.Sweep, error) {
	return table.ParseSweep(c.Sweep)
}
