// Package entitycfg loads entitystored's runtime configuration from a
// YAML/JSON/TOML file, environment variables, and command-line flags,
// with the usual flags > env > file > default precedence (spec.md §6
// "Configuration").
package entitycfg

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for an entitystored process.
type Config struct {
	Server     ServerConfig
	Postgres   PostgresConfig
	Blob       BlobConfig
	Redis      RedisConfig
	Repository string // repository name fed into wdno: blank-node hashing
	LogLevel   string
	LogFormat  string

	// WriteRateLimit caps requests per second on the mutating HTTP
	// routes. Zero (the default) disables rate limiting.
	WriteRateLimit float64
}

// ServerConfig is the HTTP listener's configuration.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// PostgresConfig configures the metadata index connection pool.
type PostgresConfig struct {
	DSN         string
	MaxConns    int32
	AuditDSN    string // metadata/audit's GORM connection; defaults to DSN
}

// BlobConfig configures the S3-compatible blob store.
type BlobConfig struct {
	Bucket    string
	Region    string
	Endpoint  string // non-empty selects a custom (e.g. MinIO) endpoint
	AccessKey string // static credentials for Endpoint; AWS uses its default chain when empty
	SecretKey string
}

// RedisConfig configures the distributed lock the blob reaper uses.
type RedisConfig struct {
	Addr string
	DB   int
}

// Defaults returns the configuration used when no file, env var, or flag
// overrides a setting.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Postgres: PostgresConfig{
			DSN:      "postgres://localhost:5432/entitystore?sslmode=disable",
			MaxConns: 10,
		},
		Blob: BlobConfig{
			Bucket: "entitystore-revisions",
			Region: "us-east-1",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Repository: "entitystore",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// BindFlags registers the configuration flags a cobra command exposes
// and binds them into v, so that flag > env > file > default precedence
// falls naturally out of viper's own resolution order.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.String("port", "", "HTTP server port")
	flags.String("host", "", "HTTP server bind address")
	flags.String("postgres-dsn", "", "Postgres connection string for the metadata index")
	flags.String("blob-bucket", "", "S3 bucket storing revision blobs")
	flags.String("blob-endpoint", "", "custom S3-compatible endpoint (e.g. MinIO)")
	flags.String("blob-access-key", "", "static access key for blob-endpoint (unused against real AWS)")
	flags.String("blob-secret-key", "", "static secret key for blob-endpoint (unused against real AWS)")
	flags.String("redis-addr", "", "Redis address used for the blob reaper's lock")
	flags.String("repository", "", "repository name used in RDF blank-node hashing")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	flags.Float64("write-rate-limit", 0, "requests per second allowed on mutating routes (0 disables)")

	v.BindPFlag("server.port", flags.Lookup("port"))
	v.BindPFlag("server.host", flags.Lookup("host"))
	v.BindPFlag("postgres.dsn", flags.Lookup("postgres-dsn"))
	v.BindPFlag("blob.bucket", flags.Lookup("blob-bucket"))
	v.BindPFlag("blob.endpoint", flags.Lookup("blob-endpoint"))
	v.BindPFlag("blob.access_key", flags.Lookup("blob-access-key"))
	v.BindPFlag("blob.secret_key", flags.Lookup("blob-secret-key"))
	v.BindPFlag("redis.addr", flags.Lookup("redis-addr"))
	v.BindPFlag("repository", flags.Lookup("repository"))
	v.BindPFlag("log.level", flags.Lookup("log-level"))
	v.BindPFlag("log.format", flags.Lookup("log-format"))
	v.BindPFlag("server.write_rate_limit", flags.Lookup("write-rate-limit"))
}

// Load resolves Config from v, which the caller has already pointed at a
// config file (or left to viper's search path), bound to flags via
// BindFlags and, if desired, to the environment. Unset keys fall back to
// Defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()

	if p := v.GetString("server.port"); p != "" {
		var port int
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
			return Config{}, fmt.Errorf("invalid server.port %q: %w", p, err)
		}
		cfg.Server.Port = port
	}
	if h := v.GetString("server.host"); h != "" {
		cfg.Server.Host = h
	}
	if d := v.GetString("postgres.dsn"); d != "" {
		cfg.Postgres.DSN = d
	}
	if n := v.GetInt("postgres.max_conns"); n > 0 {
		cfg.Postgres.MaxConns = int32(n)
	}
	if a := v.GetString("postgres.audit_dsn"); a != "" {
		cfg.Postgres.AuditDSN = a
	}
	if b := v.GetString("blob.bucket"); b != "" {
		cfg.Blob.Bucket = b
	}
	if r := v.GetString("blob.region"); r != "" {
		cfg.Blob.Region = r
	}
	if e := v.GetString("blob.endpoint"); e != "" {
		cfg.Blob.Endpoint = e
	}
	if a := v.GetString("blob.access_key"); a != "" {
		cfg.Blob.AccessKey = a
	}
	if s := v.GetString("blob.secret_key"); s != "" {
		cfg.Blob.SecretKey = s
	}
	if a := v.GetString("redis.addr"); a != "" {
		cfg.Redis.Addr = a
	}
	if n := v.GetInt("redis.db"); n != 0 {
		cfg.Redis.DB = n
	}
	if r := v.GetString("repository"); r != "" {
		cfg.Repository = r
	}
	if l := v.GetString("log.level"); l != "" {
		cfg.LogLevel = l
	}
	if f := v.GetString("log.format"); f != "" {
		cfg.LogFormat = f
	}
	if r := v.GetFloat64("server.write_rate_limit"); r > 0 {
		cfg.WriteRateLimit = r
	}

	if cfg.Postgres.AuditDSN == "" {
		cfg.Postgres.AuditDSN = cfg.Postgres.DSN
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.Blob.Bucket == "" {
		return fmt.Errorf("blob.bucket must not be empty")
	}
	return nil
}
