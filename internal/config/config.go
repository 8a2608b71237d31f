package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"blobgw/internal/storage"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load, e.g.
// BLOBGW_BACKEND_KIND for backend.kind.
const EnvPrefix = "BLOBGW"

// Settings is the daemon configuration.
type Settings struct {
	Listen          string          `mapstructure:"listen"`
	AdminListen     string          `mapstructure:"admin_listen"`
	LogLevel        string          `mapstructure:"log_level"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	OTLPEndpoint    string          `mapstructure:"otlp_endpoint"`
	Backend         storage.Options `mapstructure:"backend"`
}

var defaults = map[string]any{
	"listen":                   ":50051",
	"admin_listen":             ":9090",
	"log_level":                "info",
	"shutdown_timeout":         30 * time.Second,
	"otlp_endpoint":            "",
	"backend.kind":             storage.KindFS,
	"backend.data_dir":         "./data",
	"backend.sqlite_path":      "",
	"backend.bucket_url":       "",
	"backend.chunk_size":       storage.DefaultChunkSize,
	"backend.minio.endpoint":   "",
	"backend.minio.access_key": "",
	"backend.minio.secret_key": "",
	"backend.minio.bucket":     "",
	"backend.minio.use_ssl":    false,
	"backend.redis.addr":       "",
	"backend.redis.ttl":        time.Duration(0),
	"backend.redis.max_bytes":  0,
}

// SetDefaults registers the default of every setting on v. Registering every
// key is what lets AutomaticEnv see nested keys during Unmarshal.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the settings from v, reading configFile first when it is set.
func Load(v *viper.Viper, configFile string) (Settings, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate reports every invalid setting at once.
func (s Settings) Validate() error {
	var errs []error

	if s.Listen == "" {
		errs = append(errs, errors.New("listen must not be empty"))
	}
	if _, err := s.Level(); err != nil {
		errs = append(errs, err)
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", s.ShutdownTimeout))
	}

	b := s.Backend
	if b.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("backend.chunk_size must be positive, got %d", b.ChunkSize))
	}
	if b.Redis.TTL < 0 {
		errs = append(errs, fmt.Errorf("backend.redis.ttl must not be negative, got %s", b.Redis.TTL))
	}

	switch b.Kind {
	case storage.KindMemory:
	case storage.KindFS:
		if b.DataDir == "" {
			errs = append(errs, errors.New("backend.data_dir is required for the fs backend"))
		}
	case storage.KindSQLite:
		if b.DataDir == "" && b.SQLitePath == "" {
			errs = append(errs, errors.New("backend.sqlite_path or backend.data_dir is required for the sqlite backend"))
		}
	case storage.KindMinio:
		if b.Minio.Endpoint == "" {
			errs = append(errs, errors.New("backend.minio.endpoint is required for the minio backend"))
		}
		if b.Minio.Bucket == "" {
			errs = append(errs, errors.New("backend.minio.bucket is required for the minio backend"))
		}
	case storage.KindBucket:
		if b.BucketURL == "" {
			errs = append(errs, errors.New("backend.bucket_url is required for the bucket backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.kind %q is not one of %s", b.Kind, strings.Join(storage.Kinds, ", ")))
	}

	return errors.Join(errs...)
}

// Level parses LogLevel.
func (s Settings) Level() (log.Level, error) {
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
