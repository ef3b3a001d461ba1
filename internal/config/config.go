// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/storage/mysql"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMySQL    = "mysql"
	StoreBolt     = "bolt"
)

// Server holds HTTP server timeouts.
type Server struct {
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Store selects the backend; empty means postgres when DatabaseURL is
	// set and memory otherwise.
	Store       string       `yaml:"store"`
	DatabaseURL string       `yaml:"database_url"`
	Migrate     bool         `yaml:"db_migrate"`
	MySQL       mysql.Config `yaml:"mysql"`
	BoltPath    string       `yaml:"bolt_path"`

	Currency       string        `yaml:"ledger_currency"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
	DevSeed        bool          `yaml:"dev_seed"`

	Server Server `yaml:"server"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTPAddr:       ":8080",
		LogLevel:       "info",
		LogFormat:      "json",
		Migrate:        true,
		MySQL:          mysql.Config{Host: "localhost", Port: 3306, DBName: "ledger"},
		BoltPath:       "ledger.db",
		Currency:       ledger.DefaultCurrency,
		PersistTimeout: 10 * time.Second,
		Server: Server{
			ReadTimeout:       5 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
	}
}

// Load reads CONFIG_FILE (if set) and then the environment.
func Load() (Config, error) {
	return load(os.Getenv, os.ReadFile)
}

func load(getenv func(string) string, readFile func(string) ([]byte, error)) (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(getenv("CONFIG_FILE")); path != "" {
		raw, err := readFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	e := envReader{getenv: getenv}
	e.str("HTTP_ADDR", &cfg.HTTPAddr)
	e.str("LOG_LEVEL", &cfg.LogLevel)
	e.str("LOG_FORMAT", &cfg.LogFormat)
	e.str("STORE", &cfg.Store)
	e.str("DATABASE_URL", &cfg.DatabaseURL)
	e.boolean("DB_MIGRATE", &cfg.Migrate)
	e.str("MYSQL_HOST", &cfg.MySQL.Host)
	e.integer("MYSQL_PORT", &cfg.MySQL.Port)
	e.str("MYSQL_USER", &cfg.MySQL.User)
	e.str("MYSQL_PASSWORD", &cfg.MySQL.Password)
	e.str("MYSQL_DB", &cfg.MySQL.DBName)
	e.str("BOLT_PATH", &cfg.BoltPath)
	e.str("LEDGER_CURRENCY", &cfg.Currency)
	e.duration("PERSIST_TIMEOUT", &cfg.PersistTimeout)
	e.boolean("DEV_SEED", &cfg.DevSeed)
	e.duration("HTTP_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration("HTTP_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.duration("HTTP_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	e.duration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if e.err != nil {
		return Config{}, e.err
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = StoreMemory
		if c.DatabaseURL != "" {
			c.Store = StorePostgres
		}
	}
	switch c.Store {
	case StoreMemory, StoreBolt:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: STORE=postgres requires DATABASE_URL")
		}
	case StoreMySQL:
		if c.MySQL.Host == "" || c.MySQL.DBName == "" {
			return fmt.Errorf("config: STORE=mysql requires MYSQL_HOST and MYSQL_DB")
		}
	default:
		return fmt.Errorf("config: unknown STORE %q", c.Store)
	}

	curr, err := ledger.ParseCurrency(c.Currency)
	if err != nil {
		return fmt.Errorf("config: LEDGER_CURRENCY: %w", err)
	}
	c.Currency = curr

	if c.MySQL.Port == 0 {
		c.MySQL.Port = 3306
	}
	if c.MySQL.MaxOpenConns == 0 {
		c.MySQL.MaxOpenConns = 100
	}
	if c.MySQL.MaxIdleConns == 0 {
		c.MySQL.MaxIdleConns = 10
	}
	if c.MySQL.ConnMaxLifetime == 0 {
		c.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
	if c.MySQL.LogLevel == "" {
		c.MySQL.LogLevel = gormLevel(c.LogLevel)
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = Default().PersistTimeout
	}
	return nil
}

// gormLevel maps the service log level onto gorm's vocabulary.
func gormLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug":
		return "info"
	case "warn", "warning":
		return "warn"
	default:
		return "error"
	}
}

// envReader applies set environment variables and keeps the first parse error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		e.fail(key, v)
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = d
}

func (e *envReader) fail(key, v string) {
	if e.err == nil {
		e.err = fmt.Errorf("config: invalid %s %q", key, v)
	}
}
