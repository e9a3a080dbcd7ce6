// Package config loads service and client settings from an optional TOML or
// YAML file overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable pointing at a config file.
const EnvConfigPath = "TASKCAL_CONFIG"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendTables   = "tables"
)

// Duration is a time.Duration read from strings such as "15m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

type Storage struct {
	Backend          string `toml:"backend" yaml:"backend"`
	SQLitePath       string `toml:"sqlite_path" yaml:"sqlite_path"`
	PostgresURL      string `toml:"postgres_url" yaml:"postgres_url"`
	ConnectionString string `toml:"connection_string" yaml:"connection_string"`
	TasksTable       string `toml:"tasks_table" yaml:"tasks_table"`
	EventsQueue      string `toml:"events_queue" yaml:"events_queue"`
}

type Redis struct {
	ConnectionString string   `toml:"connection_string" yaml:"connection_string"`
	CacheTTL         Duration `toml:"cache_ttl" yaml:"cache_ttl"`
	DedupeTTL        Duration `toml:"dedupe_ttl" yaml:"dedupe_ttl"`
	EventsChannel    string   `toml:"events_channel" yaml:"events_channel"`
}

type Auth struct {
	Domain       string   `toml:"domain" yaml:"domain"`
	Audience     string   `toml:"audience" yaml:"audience"`
	LocalMode    string   `toml:"local_mode" yaml:"local_mode"`
	LocalSecret  string   `toml:"local_secret" yaml:"local_secret"`
	JWKSCacheTTL Duration `toml:"jwks_cache_ttl" yaml:"jwks_cache_ttl"`
}

type Events struct {
	Workers        int      `toml:"workers" yaml:"workers"`
	Buffer         int      `toml:"buffer" yaml:"buffer"`
	Timeout        Duration `toml:"timeout" yaml:"timeout"`
	HandoffTimeout Duration `toml:"handoff_timeout" yaml:"handoff_timeout"`
}

type Client struct {
	BaseURL string `toml:"base_url" yaml:"base_url"`
	Token   string `toml:"token" yaml:"token"`
	Budget  int    `toml:"budget" yaml:"budget"`
	Columns int    `toml:"columns" yaml:"columns"`
}

// Config is the complete settings tree.
type Config struct {
	Debug      bool    `toml:"debug" yaml:"debug"`
	ListenAddr string  `toml:"listen_addr" yaml:"listen_addr"`
	Storage    Storage `toml:"storage" yaml:"storage"`
	Redis      Redis   `toml:"redis" yaml:"redis"`
	Auth       Auth    `toml:"auth" yaml:"auth"`
	Events     Events  `toml:"events" yaml:"events"`
	Client     Client  `toml:"client" yaml:"client"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Storage: Storage{
			Backend:    BackendMemory,
			SQLitePath: "taskcal.db",
		},
		Redis: Redis{
			CacheTTL:      Duration(5 * time.Minute),
			DedupeTTL:     Duration(24 * time.Hour),
			EventsChannel: "task-events",
		},
		Auth: Auth{JWKSCacheTTL: Duration(15 * time.Minute)},
		Events: Events{
			Workers:        8,
			Buffer:         1024,
			Timeout:        Duration(30 * time.Second),
			HandoffTimeout: Duration(15 * time.Millisecond),
		},
		Client: Client{BaseURL: "http://localhost:8080"},
	}
}

// Load reads defaults, then the file named by TASKCAL_CONFIG (if any), then
// environment overrides. Services call Validate on the result.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, applyEnv(&cfg)
}

// LoadFile decodes path into cfg. The format follows the file extension.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	envBool("DEBUG", &cfg.Debug, &errs)
	if v, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		cfg.ListenAddr = ":" + v
	}
	envStr("LISTEN_ADDR", &cfg.ListenAddr)

	envStr("STORAGE_BACKEND", &cfg.Storage.Backend)
	envStr("SQLITE_PATH", &cfg.Storage.SQLitePath)
	envStr("DATABASE_URL", &cfg.Storage.PostgresURL)
	envStr("STORAGE_CONNECTION_STRING", &cfg.Storage.ConnectionString)
	envStr("TASKS_TABLE", &cfg.Storage.TasksTable)
	envStr("EVENTS_QUEUE", &cfg.Storage.EventsQueue)

	envStr("REDIS_CONNECTION_STRING", &cfg.Redis.ConnectionString)
	envDur("CACHE_TTL", &cfg.Redis.CacheTTL, &errs)
	envDur("DEDUPER_TTL", &cfg.Redis.DedupeTTL, &errs)
	envStr("EVENTS_CHANNEL", &cfg.Redis.EventsChannel)

	envStr("AUTH0_DOMAIN", &cfg.Auth.Domain)
	envStr("AUTH0_AUDIENCE", &cfg.Auth.Audience)
	envStr("LOCAL_AUTH_MODE", &cfg.Auth.LocalMode)
	envStr("LOCAL_AUTH_SHARED_SECRET", &cfg.Auth.LocalSecret)
	envDur("JWKS_CACHE_TTL", &cfg.Auth.JWKSCacheTTL, &errs)

	envInt("EVENT_WORKERS", &cfg.Events.Workers, &errs)
	envInt("EVENT_BUFFER", &cfg.Events.Buffer, &errs)
	envDur("EVENT_TIMEOUT", &cfg.Events.Timeout, &errs)
	envDur("EVENT_HANDOFF_TIMEOUT", &cfg.Events.HandoffTimeout, &errs)

	envStr("TASKCAL_URL", &cfg.Client.BaseURL)
	envStr("TASKCAL_TOKEN", &cfg.Client.Token)
	envInt("TASKCAL_BUDGET", &cfg.Client.Budget, &errs)
	envInt("TASKCAL_COLUMNS", &cfg.Client.Columns, &errs)
	return errors.Join(errs...)
}

// Validate reports service settings that cannot work together.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage: sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresURL == "" {
			return errors.New("storage: postgres_url is required for the postgres backend")
		}
	case BackendTables:
		if c.Storage.ConnectionString == "" || c.Storage.TasksTable == "" {
			return errors.New("storage: connection_string and tasks_table are required for the tables backend")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.EventsQueue != "" && c.Storage.ConnectionString == "" {
		return errors.New("storage: events_queue requires connection_string")
	}
	switch strings.ToLower(c.Auth.LocalMode) {
	case "":
		if c.Auth.Domain == "" || c.Auth.Audience == "" {
			return errors.New("auth: domain and audience are required unless local_mode is set")
		}
	case "hs256":
		if c.Auth.LocalSecret == "" {
			return errors.New("auth: local_secret must be set when local_mode=hs256")
		}
	default:
		return fmt.Errorf("auth: unsupported local_mode %q", c.Auth.LocalMode)
	}
	if c.Events.Workers <= 0 || c.Events.Buffer < 0 {
		return errors.New("events: workers must be greater than zero and buffer not negative")
	}
	return nil
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envBool(key string, dst *bool, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = b
	}
}

func envInt(key string, dst *int, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = n
	}
}

func envDur(key string, dst *Duration, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			*errs = append(*errs, fmt.Errorf("invalid %s: %q", key, v))
			return
		}
		*dst = Duration(d)
	}
}
