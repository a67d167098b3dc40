package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/assaykit/assaykit/internal/blob"
	"github.com/assaykit/assaykit/internal/cache"
	"github.com/assaykit/assaykit/internal/gct"
	"github.com/assaykit/assaykit/internal/ledger"
)

// EnvPrefix prefixes environment overrides, e.g. ASSAYKIT_CACHE_DRIVER.
const EnvPrefix = "ASSAYKIT"

// Config represents the assaykit configuration
type Config struct {
	Pivot   PivotConfig  `mapstructure:"pivot"`
	Cache   CacheConfig  `mapstructure:"cache"`
	Ledger  LedgerConfig `mapstructure:"ledger"`
	Blob    BlobConfig   `mapstructure:"blob"`
	Workers int          `mapstructure:"workers"`
	QC      QCConfig     `mapstructure:"qc"`
}

// PivotConfig holds pivot defaults shared by pivot and pivot-splits
type PivotConfig struct {
	RowID   string   `mapstructure:"rid_header"`
	ColID   string   `mapstructure:"cid_header"`
	RowMeta []string `mapstructure:"row_metadata_headers"`
	ColMeta []string `mapstructure:"col_metadata_headers"`
	Format  string   `mapstructure:"format"`
}

// CacheConfig selects the metadata API response cache
type CacheConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
	Redis  RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds the redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LedgerConfig selects the run ledger database. An empty driver disables it.
type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// BlobConfig selects the object store used by publish and fetch
type BlobConfig struct {
	Driver string   `mapstructure:"driver"`
	Root   string   `mapstructure:"root"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config holds the bucket settings. Credentials come from the AWS chain.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// QCConfig points at the QC thresholds file
type QCConfig struct {
	ThresholdsFile string `mapstructure:"thresholds_file"`
}

// Load reads assaykit.yaml from path, or from the working directory and
// $HOME/.assaykit when path is empty, then applies ASSAYKIT_ overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("assaykit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".assaykit"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pivot.rid_header", "rid")
	v.SetDefault("pivot.cid_header", "profile_id")
	v.SetDefault("pivot.format", string(gct.Binary))
	v.SetDefault("cache.driver", string(cache.DriverMemory))
	v.SetDefault("cache.ttl", cache.DefaultOptions().TTL)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("ledger.driver", "")
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.root", "published")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("workers", 4)
	v.SetDefault("qc.thresholds_file", "")
}

// CacheSettings converts the cache section for cache.Open.
func (c *Config) CacheSettings() cache.Config {
	return cache.Config{
		Driver:  cache.Driver(c.Cache.Driver),
		Options: cache.Options{TTL: c.Cache.TTL},
		Redis: cache.RedisConfig{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
		},
	}
}

// BlobSettings converts the blob section for blob.Open.
func (c *Config) BlobSettings() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		Root:   c.Blob.Root,
		S3: blob.S3Config{
			Bucket:    c.Blob.S3.Bucket,
			Region:    c.Blob.S3.Region,
			Endpoint:  c.Blob.S3.Endpoint,
			PathStyle: c.Blob.S3.PathStyle,
		},
	}
}

// MatrixFormat returns the configured pivot output format.
func (c *Config) MatrixFormat() gct.Format {
	f, _ := gct.ParseFormat(c.Pivot.Format)
	return f
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cache.Driver(cfg.Cache.Driver) {
	case cache.DriverMemory, cache.DriverRedis, cache.DriverNone:
	default:
		return fmt.Errorf("cache.driver must be memory, redis or none, got: %s", cfg.Cache.Driver)
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got: %s", cfg.Cache.TTL)
	}

	switch cfg.Ledger.Driver {
	case "":
	case ledger.DriverSQLite, ledger.DriverPostgres:
		if cfg.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required when ledger.driver is %s", cfg.Ledger.Driver)
		}
	default:
		return fmt.Errorf("ledger.driver must be %s, %s or empty, got: %s",
			ledger.DriverSQLite, ledger.DriverPostgres, cfg.Ledger.Driver)
	}

	switch blob.Driver(cfg.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if cfg.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket is required when blob.driver is s3")
		}
	default:
		return fmt.Errorf("blob.driver must be fs, s3 or memory, got: %s", cfg.Blob.Driver)
	}

	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got: %d", cfg.Workers)
	}
	if _, err := gct.ParseFormat(cfg.Pivot.Format); err != nil {
		return fmt.Errorf("pivot.format: %w", err)
	}
	return nil
}
