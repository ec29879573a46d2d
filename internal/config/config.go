// Package config loads bucketfs settings from flags, an optional config
// file and BUCKETFS_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/storage"
	"github.com/s3fs-fuse/bucketfs/internal/storage/minio"
	"github.com/s3fs-fuse/bucketfs/internal/storage/s3"
)

// Config holds all configuration for the application
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json, text

	Backend     BackendConfig     `mapstructure:"backend"`
	S3          S3Config          `mapstructure:"s3"`
	Minio       MinioConfig       `mapstructure:"minio"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	MongoDB     MongoDBConfig     `mapstructure:"mongodb"`
	Memory      MemoryConfig      `mapstructure:"memory"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Listing     ListingConfig     `mapstructure:"listing"`
	Server      ServerConfig      `mapstructure:"server"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Mount       MountConfig       `mapstructure:"mount"`
}

type BackendConfig struct {
	Type string `mapstructure:"type"` // s3, minio, postgres, mongodb, memory
}

type S3Config struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	PartSize     int64  `mapstructure:"part_size"`
}

type MinioConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Secure   bool   `mapstructure:"secure"`
	Region   string `mapstructure:"region"`
}

type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type MemoryConfig struct {
	Containers []string `mapstructure:"containers"`
}

// CredentialsConfig selects where access credentials come from.
type CredentialsConfig struct {
	Source     string        `mapstructure:"source"` // env, file, endpoint
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	PasswdFile string        `mapstructure:"passwd_file"`
	Region     string        `mapstructure:"region"`
}

type ListingConfig struct {
	DirectoryTimes bool `mapstructure:"directory_times"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

type MetricsConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Namespace string `mapstructure:"namespace"`
}

// MountConfig sets ownership and modes reported by a FUSE mount. Negative
// ids mean the current user.
type MountConfig struct {
	Uid      int    `mapstructure:"uid"`
	Gid      int    `mapstructure:"gid"`
	FileMode uint32 `mapstructure:"file_mode"`
	DirMode  uint32 `mapstructure:"dir_mode"`
	ReadOnly bool   `mapstructure:"read_only"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":        "log_level",
	"log-format":       "log_format",
	"backend":          "backend.type",
	"region":           "s3.region",
	"endpoint":         "s3.endpoint",
	"minio-endpoint":   "minio.endpoint",
	"postgres-dsn":     "postgres.dsn",
	"mongodb-uri":      "mongodb.uri",
	"credentials":      "credentials.source",
	"credentials-url":  "credentials.endpoint",
	"credentials-ttl":  "credentials.cache_ttl",
	"passwd-file":      "credentials.passwd_file",
	"directory-times":  "listing.directory_times",
	"listen":           "server.listen",
	"metrics":          "metrics.enable",
	"memory-container": "memory.containers",
	"uid":              "mount.uid",
	"gid":              "mount.gid",
	"read-only":        "mount.read_only",
}

// Load reads the configuration for cmd.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("BUCKETFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("backend.type", string(storage.BackendTypeS3))

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.use_path_style", false)
	v.SetDefault("s3.part_size", s3.DefaultPartSize)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.secure", true)
	v.SetDefault("minio.region", "")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "objects")

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "bucketfs")
	v.SetDefault("mongodb.collection", "objects")

	v.SetDefault("memory.containers", []string{})

	v.SetDefault("credentials.source", "env")
	v.SetDefault("credentials.endpoint", "")
	v.SetDefault("credentials.timeout", 10*time.Second)
	// Caching is off unless asked for: every operation fetches fresh
	// credentials.
	v.SetDefault("credentials.cache_ttl", time.Duration(0))
	v.SetDefault("credentials.passwd_file", "")
	v.SetDefault("credentials.region", "")

	v.SetDefault("listing.directory_times", false)

	v.SetDefault("server.listen", "127.0.0.1:8888")

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.namespace", "bucketfs")

	v.SetDefault("mount.uid", -1)
	v.SetDefault("mount.gid", -1)
	v.SetDefault("mount.file_mode", 0644)
	v.SetDefault("mount.dir_mode", 0755)
	v.SetDefault("mount.read_only", false)
}

// bindFlags binds the flags cmd actually defines.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func validate(cfg *Config) error {
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", cfg.LogFormat)
	}

	switch storage.BackendType(cfg.Backend.Type) {
	case storage.BackendTypeS3, storage.BackendTypeMemory:
	case storage.BackendTypeMinio:
		if cfg.Minio.Endpoint == "" {
			return fmt.Errorf("minio.endpoint is required for the minio backend")
		}
	case storage.BackendTypePostgres:
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for the postgres backend")
		}
	case storage.BackendTypeMongoDB:
		if cfg.MongoDB.URI == "" {
			return fmt.Errorf("mongodb.uri is required for the mongodb backend")
		}
	default:
		return fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}

	switch cfg.Credentials.Source {
	case "env":
	case "file":
		if cfg.Credentials.PasswdFile == "" {
			return fmt.Errorf("credentials.passwd_file is required for file credentials")
		}
	case "endpoint":
		if cfg.Credentials.Endpoint == "" {
			return fmt.Errorf("credentials.endpoint is required for endpoint credentials")
		}
	default:
		return fmt.Errorf("unknown credentials source %q", cfg.Credentials.Source)
	}
	if cfg.Credentials.CacheTTL < 0 {
		return fmt.Errorf("credentials.cache_ttl must not be negative")
	}

	if cfg.S3.PartSize != 0 && cfg.S3.PartSize < s3.MinMultipartSize {
		return fmt.Errorf("s3.part_size must be at least %d bytes", s3.MinMultipartSize)
	}

	if cfg.Mount.FileMode > 0777 || cfg.Mount.DirMode > 0777 {
		return fmt.Errorf("mount modes must be permission bits only")
	}

	return nil
}

// Storage converts the backend settings for storage.NewConnector.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		Type: storage.BackendType(c.Backend.Type),
		S3: s3.Options{
			Region:       c.S3.Region,
			Endpoint:     c.S3.Endpoint,
			UsePathStyle: c.S3.UsePathStyle,
			PartSize:     c.S3.PartSize,
		},
		Minio: minio.Options{
			Endpoint: c.Minio.Endpoint,
			Secure:   c.Minio.Secure,
			Region:   c.Minio.Region,
		},
		PostgresConnStr:  c.Postgres.DSN,
		PostgresTable:    c.Postgres.Table,
		MongoURI:         c.MongoDB.URI,
		MongoDatabase:    c.MongoDB.Database,
		MongoCollection:  c.MongoDB.Collection,
		MemoryContainers: c.Memory.Containers,
	}
}

// Provider builds the credential provider, wrapped in a cache when
// cache_ttl is positive.
func (c *Config) Provider(log logrus.FieldLogger) credentials.Provider {
	var p credentials.Provider
	switch c.Credentials.Source {
	case "file":
		p = credentials.NewFileProvider(c.Credentials.PasswdFile, c.Credentials.Region, log)
	case "endpoint":
		p = credentials.NewEndpointProvider(c.Credentials.Endpoint, c.Credentials.Timeout, log)
	default:
		p = credentials.NewEnvProvider(log)
	}
	if c.Credentials.CacheTTL > 0 {
		return credentials.NewCachedProvider(p, c.Credentials.CacheTTL)
	}
	return p
}

// ServiceURLs names the endpoints the configured backend and credential
// source talk to. Database connection strings carry secrets and are left out.
func (c *Config) ServiceURLs() map[string]string {
	urls := make(map[string]string)
	switch storage.BackendType(c.Backend.Type) {
	case storage.BackendTypeS3:
		if c.S3.Endpoint != "" {
			urls["storage"] = c.S3.Endpoint
		} else {
			urls["storage"] = fmt.Sprintf("https://s3.%s.amazonaws.com", c.S3.Region)
		}
	case storage.BackendTypeMinio:
		scheme := "http"
		if c.Minio.Secure {
			scheme = "https"
		}
		urls["storage"] = scheme + "://" + c.Minio.Endpoint
	}
	if c.Credentials.Source == "endpoint" {
		urls["credentials"] = c.Credentials.Endpoint
	}
	return urls
}
