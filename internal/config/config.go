// Package config handles resolving configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported storage drivers.
const (
	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite"
)

// Supported query profiles.
const (
	ProfileFull   = "full"
	ProfileNarrow = "narrow"
)

const envPrefix = "PERMITS"

// envAliases binds config keys to the bare environment variables used by
// existing deployments. The PERMITS_ prefixed form is always accepted too.
var envAliases = map[string]string{
	"api.username":      "API_USER",
	"api.password":      "API_PASS",
	"api.password_hash": "API_PASS_HASH",
	"storage.host":      "SQL_SERVER",
	"storage.database":  "SQL_DB",
	"storage.user":      "SQL_USER",
	"storage.password":  "SQL_PASS",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the complete service configuration.
type Config struct {
	LogLevel string  `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Address  string  `mapstructure:"address"   validate:"required,hostname_port"`
	DevMode  bool    `mapstructure:"dev_mode"`
	API      API     `mapstructure:"api"`
	Storage  Storage `mapstructure:"storage"`
	Query    Query   `mapstructure:"query"`
	Server   Server  `mapstructure:"server"`
}

// LogValue satisfies [slog.LogValuer]. Secrets are redacted by the nested
// groups.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("log_level", c.LogLevel),
		slog.String("address", c.Address),
		slog.Bool("dev_mode", c.DevMode),
		slog.Any("api", c.API),
		slog.Any("storage", c.Storage),
		slog.Group("query",
			slog.String("profile", c.Query.Profile),
			slog.Duration("timeout", c.Query.Timeout),
		),
		slog.Group("server",
			slog.Duration("read_header_timeout", c.Server.ReadHeaderTimeout),
			slog.Duration("read_timeout", c.Server.ReadTimeout),
			slog.Duration("write_timeout", c.Server.WriteTimeout),
			slog.Duration("shutdown_timeout", c.Server.ShutdownTimeout),
		),
	)
}

// API holds the credentials callers must present via basic auth. Exactly one
// of Password or PasswordHash (bcrypt) is needed.
type API struct {
	Username     string `mapstructure:"username"      validate:"required"`
	Password     string `mapstructure:"password"      validate:"required_without=PasswordHash"`
	PasswordHash string `mapstructure:"password_hash" validate:"required_without=Password"`
}

// LogValue satisfies [slog.LogValuer] so secrets never reach the logs.
func (a API) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", a.Username),
		slog.Bool("password_set", a.Password != ""),
		slog.Bool("password_hash_set", a.PasswordHash != ""),
	)
}

// Storage describes the connection pool to the records store.
type Storage struct {
	Driver          string        `mapstructure:"driver"            validate:"oneof=sqlserver sqlite"`
	Host            string        `mapstructure:"host"              validate:"required_if=Driver sqlserver"`
	Port            int           `mapstructure:"port"              validate:"gte=0,lte=65535"`
	Database        string        `mapstructure:"database"          validate:"required_if=Driver sqlserver"`
	User            string        `mapstructure:"user"              validate:"required_if=Driver sqlserver"`
	Password        string        `mapstructure:"password"`
	Path            string        `mapstructure:"path"              validate:"required_if=Driver sqlite"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// LogValue satisfies [slog.LogValuer] so secrets never reach the logs.
func (s Storage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("driver", s.Driver),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.String("database", s.Database),
		slog.String("user", s.User),
		slog.String("path", s.Path),
		slog.Int("max_open_conns", s.MaxOpenConns),
	)
}

// Query selects the served record shape and bounds query latency.
type Query struct {
	Profile string        `mapstructure:"profile" validate:"oneof=full narrow"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Server holds the HTTP server timeouts.
type Server struct {
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gt=0"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        validate:"gt=0"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"    validate:"gt=0"`
}

// DefaultPath is the configuration file consulted when none is specified.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "permits.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("address", "localhost:9999")
	v.SetDefault("dev_mode", false)

	v.SetDefault("api.username", "")
	v.SetDefault("api.password", "")
	v.SetDefault("api.password_hash", "")

	v.SetDefault("storage.driver", DriverSQLServer)
	v.SetDefault("storage.host", "")
	v.SetDefault("storage.port", 0)
	v.SetDefault("storage.database", "")
	v.SetDefault("storage.user", "")
	v.SetDefault("storage.password", "")
	v.SetDefault("storage.path", filepath.Join(xdg.DataHome, "permits", "dev.sqlite"))
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("query.profile", ProfileFull)
	v.SetDefault("query.timeout", 30*time.Second)

	v.SetDefault("server.read_header_timeout", 1*time.Second)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 45*time.Second) // must outlast query.timeout
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// LoadDotEnv populates the process environment from the given .env files,
// without overriding variables that are already set. Missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// Load resolves the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, in increasing order of precedence.
// The result is validated for completeness.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound *fs.PathError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			return nil, fmt.Errorf("failed to unmarshal config file at %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
