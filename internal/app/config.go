package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration, loadable from
// environment variables (CATALOG_ prefix), flags, or YAML config files.
type Config struct {
	DatabaseURL string `usage:"PostgreSQL connection URL (CATALOG_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Cache       CacheConfig
	Pagination  PaginationConfig
	Audit       AuditConfig
	RefData     RefDataConfig
	Import      ImportConfig
}

// RedisConfig locates the listing cache. An empty address disables caching.
type RedisConfig struct {
	Addr     string `default:"localhost:6379" usage:"Redis address, empty to disable the listing cache"`
	Password string `usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
}

// CacheConfig controls listing cache entries.
type CacheConfig struct {
	TTL     time.Duration `default:"300s" usage:"Listing cache entry lifetime"`
	Timeout time.Duration `default:"2s" usage:"Per-operation cache timeout"`
}

// PaginationConfig bounds listing page sizes.
type PaginationConfig struct {
	DefaultLimit int `default:"10" usage:"Page size when none is requested" flag:"default-limit"`
	MaxLimit     int `default:"100" usage:"Largest accepted page size" flag:"max-limit"`
}

// AuditConfig sizes the audit queue.
type AuditConfig struct {
	Buffer int `default:"1024" usage:"Pending audit events before new ones are dropped"`
}

// RefDataConfig controls the size and design type lookup snapshot.
type RefDataConfig struct {
	TTL time.Duration `default:"10m" usage:"Reference data snapshot lifetime" flag:"refdata-ttl"`
}

// ImportConfig configures catalog-import.
type ImportConfig struct {
	Owner         string  `usage:"Seller that owns imported designs" flag:"owner"`
	Input         string  `default:"data" usage:"Input file or directory of *.jsonl.gz files" flag:"input"`
	BloomCapacity uint    `default:"100000" usage:"Expected number of designs per seller" flag:"bloom-capacity"`
	BloomFPR      float64 `default:"0.001" usage:"Bloom filter false positive rate" flag:"bloom-fpr"`
}

// LoadConfig loads configuration from an optional .env file, environment
// variables, flags and YAML config files, and applies platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CATALOG",
		Files:     []string{"config.yaml", "/etc/catalog/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CATALOG_DATABASE_URL or DATABASE_URL")
	}
	if c.Pagination.MaxLimit < 1 {
		return errors.Errorf("pagination max limit must be positive, got %d", c.Pagination.MaxLimit)
	}
	if c.Pagination.DefaultLimit < 1 || c.Pagination.DefaultLimit > c.Pagination.MaxLimit {
		return errors.Errorf("pagination default limit must be in 1..%d, got %d",
			c.Pagination.MaxLimit, c.Pagination.DefaultLimit)
	}
	if c.Cache.Timeout <= 0 || c.Cache.Timeout > 10*time.Second {
		return errors.Errorf("cache timeout must be in (0, 10s], got %s", c.Cache.Timeout)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and REDIS_ADDR to the application's
// CATALOG_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" && c.Redis.Addr == "localhost:6379" {
		c.Redis.Addr = v
	}
}
