package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileEnvVar names the environment variable holding an optional YAML config path.
const FileEnvVar = "READERSHIP_CONFIG_FILE"

// envPrefix is accepted in front of every key, e.g. READERSHIP_PORT.
const envPrefix = "READERSHIP_"

// Settings is a resolved snapshot of the configuration.
type Settings struct {
	Port               string        `koanf:"port"`
	ServerReadTimeout  time.Duration `koanf:"server_read_timeout"`
	ServerWriteTimeout time.Duration `koanf:"server_write_timeout"`
	ServerIdleTimeout  time.Duration `koanf:"server_idle_timeout"`
	GinMode            string        `koanf:"gin_mode"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
	DashboardJWTSecret string        `koanf:"dashboard_jwt_secret"`

	DBDriver           string        `koanf:"db_driver"`
	DBDSN              string        `koanf:"db_dsn"`
	TursoAuthToken     string        `koanf:"turso_auth_token"`
	DBMaxOpenConns     int           `koanf:"db_max_open_conns"`
	DBMaxIdleConns     int           `koanf:"db_max_idle_conns"`
	DBConnMaxLifetime  time.Duration `koanf:"db_conn_max_lifetime"`
	SlowQueryThreshold time.Duration `koanf:"slow_query_threshold"`

	ReportingTimezone string `koanf:"reporting_timezone"`
	DefaultWindowDays int    `koanf:"default_window_days"`
	MaxWindowDays     int    `koanf:"max_window_days"`
	TopArticlesLimit  int    `koanf:"top_articles_limit"`

	ArticleCacheTTL      time.Duration `koanf:"article_cache_ttl"`
	CacheCleanupInterval time.Duration `koanf:"cache_cleanup_interval"`
	RedisURL             string        `koanf:"redis_url"`

	LogLevel     string `koanf:"log_level"`
	LogJSON      bool   `koanf:"log_json"`
	LogDirectory string `koanf:"log_directory"`
}

// Configuration validation errors.
var (
	ErrInvalidPort       = errors.New("PORT must be a valid integer")
	ErrInvalidDriver     = errors.New("DB_DRIVER must be sqlite3, libsql or memory")
	ErrMissingDSN        = errors.New("DB_DSN is required")
	ErrInvalidTimezone   = errors.New("REPORTING_TIMEZONE is not a known location")
	ErrInvalidWindow     = errors.New("DEFAULT_WINDOW_DAYS must be between 1 and MAX_WINDOW_DAYS")
	ErrInvalidTopLimit   = errors.New("TOP_ARTICLES_LIMIT must be positive")
	ErrInvalidLogLevel   = errors.New("LOG_LEVEL must be debug, info, warn or error")
	ErrInvalidCacheTTL   = errors.New("ARTICLE_CACHE_TTL must be positive")
	ErrMissingTursoToken = errors.New("TURSO_AUTH_TOKEN is required for remote libsql databases")
)

// Current returns the settings held by the package variables.
func Current() *Settings {
	return &Settings{
		Port:                 Port,
		ServerReadTimeout:    ServerReadTimeout,
		ServerWriteTimeout:   ServerWriteTimeout,
		ServerIdleTimeout:    ServerIdleTimeout,
		GinMode:              GinMode,
		CORSAllowedOrigins:   append([]string(nil), CORSAllowedOrigins...),
		DashboardJWTSecret:   DashboardJWTSecret,
		DBDriver:             DBDriver,
		DBDSN:                DBDSN,
		TursoAuthToken:       TursoAuthToken,
		DBMaxOpenConns:       DBMaxOpenConns,
		DBMaxIdleConns:       DBMaxIdleConns,
		DBConnMaxLifetime:    DBConnMaxLifetime,
		SlowQueryThreshold:   SlowQueryThreshold,
		ReportingTimezone:    ReportingTimezone,
		DefaultWindowDays:    DefaultWindowDays,
		MaxWindowDays:        MaxWindowDays,
		TopArticlesLimit:     TopArticlesLimit,
		ArticleCacheTTL:      ArticleCacheTTL,
		CacheCleanupInterval: CacheCleanupInterval,
		RedisURL:             RedisURL,
		LogLevel:             LogLevel,
		LogJSON:              LogJSON,
		LogDirectory:         LogDirectory,
	}
}

// Load layers an optional YAML file and the environment over the current
// package values. Precedence is environment > file > built-in defaults.
// It returns the settings and every validation error found.
func Load(path string) (*Settings, []error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", path, err)}
		}
	}

	// Re-applied after the file so that plain and prefixed variables win.
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, []error{fmt.Errorf("failed to load environment variables: %w", err)}
	}

	settings := Current()
	if err := k.Unmarshal("", settings); err != nil {
		return nil, []error{fmt.Errorf("failed to unmarshal configuration: %w", err)}
	}
	settings.CORSAllowedOrigins = splitList(settings.CORSAllowedOrigins)

	return settings, settings.Validate()
}

var knownKeys = func() map[string]bool {
	keys := make(map[string]bool)
	for _, k := range []string{
		"port", "server_read_timeout", "server_write_timeout", "server_idle_timeout",
		"gin_mode", "cors_allowed_origins", "dashboard_jwt_secret",
		"db_driver", "db_dsn", "turso_auth_token", "db_max_open_conns", "db_max_idle_conns",
		"db_conn_max_lifetime", "slow_query_threshold",
		"reporting_timezone", "default_window_days", "max_window_days", "top_articles_limit",
		"article_cache_ttl", "cache_cleanup_interval", "redis_url",
		"log_level", "log_json", "log_directory",
	} {
		keys[k] = true
	}
	return keys
}()

// envKey maps PORT or READERSHIP_PORT to "port". Unknown variables map to
// "" and are ignored by the provider.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	if !knownKeys[key] {
		return ""
	}
	return key
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate returns every configuration problem found.
func (s *Settings) Validate() []error {
	var errs []error

	if _, err := strconv.Atoi(s.Port); err != nil {
		errs = append(errs, ErrInvalidPort)
	}
	switch s.DBDriver {
	case "sqlite3", "memory":
	case "libsql":
		if strings.HasPrefix(s.DBDSN, "libsql://") && s.TursoAuthToken == "" && !strings.Contains(s.DBDSN, "authToken=") {
			errs = append(errs, ErrMissingTursoToken)
		}
	default:
		errs = append(errs, ErrInvalidDriver)
	}
	if s.DBDSN == "" && s.DBDriver != "memory" {
		errs = append(errs, ErrMissingDSN)
	}
	if _, err := s.Location(); err != nil {
		errs = append(errs, ErrInvalidTimezone)
	}
	if s.DefaultWindowDays < 1 || s.MaxWindowDays < s.DefaultWindowDays {
		errs = append(errs, ErrInvalidWindow)
	}
	if s.TopArticlesLimit < 1 {
		errs = append(errs, ErrInvalidTopLimit)
	}
	if s.ArticleCacheTTL <= 0 {
		errs = append(errs, ErrInvalidCacheTTL)
	}
	if _, err := s.SlogLevel(); err != nil {
		errs = append(errs, ErrInvalidLogLevel)
	}

	return errs
}

// Location resolves the reporting timezone.
func (s *Settings) Location() (*time.Location, error) {
	return time.LoadLocation(s.ReportingTimezone)
}

// SlogLevel parses LogLevel.
func (s *Settings) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s.LogLevel))
	return level, err
}

// Apply publishes the settings to the package variables read by the rest
// of the service.
func (s *Settings) Apply() {
	Port = s.Port
	ServerReadTimeout = s.ServerReadTimeout
	ServerWriteTimeout = s.ServerWriteTimeout
	ServerIdleTimeout = s.ServerIdleTimeout
	GinMode = s.GinMode
	CORSAllowedOrigins = s.CORSAllowedOrigins
	DashboardJWTSecret = s.DashboardJWTSecret
	DBDriver = s.DBDriver
	DBDSN = s.DBDSN
	TursoAuthToken = s.TursoAuthToken
	DBMaxOpenConns = s.DBMaxOpenConns
	DBMaxIdleConns = s.DBMaxIdleConns
	DBConnMaxLifetime = s.DBConnMaxLifetime
	SlowQueryThreshold = s.SlowQueryThreshold
	ReportingTimezone = s.ReportingTimezone
	DefaultWindowDays = s.DefaultWindowDays
	MaxWindowDays = s.MaxWindowDays
	TopArticlesLimit = s.TopArticlesLimit
	ArticleCacheTTL = s.ArticleCacheTTL
	CacheCleanupInterval = s.CacheCleanupInterval
	RedisURL = s.RedisURL
	LogLevel = s.LogLevel
	LogJSON = s.LogJSON
	LogDirectory = s.LogDirectory
}
