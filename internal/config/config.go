// Package config loads application settings from defaults, .env files, an
// optional YAML file and GEOEDITORS_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Source     SourceConfig     `mapstructure:"source"`
	Boundaries BoundariesConfig `mapstructure:"boundaries"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Update     UpdateConfig     `mapstructure:"update"`
	Web        WebConfig        `mapstructure:"web"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SourceConfig describes the remote geoeditors archive.
type SourceConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	StartMonth string        `mapstructure:"start_month"`
	RateLimit  float64       `mapstructure:"rate_limit"` // requests per second
	Timeout    time.Duration `mapstructure:"timeout"`
}

// BoundariesConfig locates the country polygons file on GitHub.
type BoundariesConfig struct {
	Owner       string `mapstructure:"owner"`
	Repo        string `mapstructure:"repo"`
	Path        string `mapstructure:"path"`
	Ref         string `mapstructure:"ref"`
	GitHubToken string `mapstructure:"github_token"`
}

type StorageConfig struct {
	Type    string `mapstructure:"type"` // "file", "sqlite", "postgres"
	DataDir string `mapstructure:"data_dir"`
	DSN     string `mapstructure:"dsn"`
}

type UpdateConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type WebConfig struct {
	DefaultProject       string `mapstructure:"default_project"`
	DefaultActivityLevel string `mapstructure:"default_activity_level"`
	TrendTopN            int    `mapstructure:"trend_top_n"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
	File   string `mapstructure:"file"`
}

const (
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 5001},
		Source: SourceConfig{
			BaseURL:    "https://analytics.wikimedia.org/published/datasets/geoeditors_monthly",
			StartMonth: "2023-07",
			RateLimit:  2,
			Timeout:    60 * time.Second,
		},
		Boundaries: BoundariesConfig{
			Owner: "python-visualization",
			Repo:  "folium",
			Path:  "examples/data/world-countries.json",
			Ref:   "main",
		},
		Storage: StorageConfig{Type: StorageFile, DataDir: "data"},
		Update:  UpdateConfig{Concurrency: 4},
		Web: WebConfig{
			DefaultProject:       "en.wikipedia",
			DefaultActivityLevel: "1 to 4",
			TrendTopN:            10,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// defaults flattens Default() into viper keys so AutomaticEnv can see every key.
func defaults(cfg *Config) map[string]any {
	return map[string]any{
		"server.host":                cfg.Server.Host,
		"server.port":                cfg.Server.Port,
		"source.base_url":            cfg.Source.BaseURL,
		"source.start_month":         cfg.Source.StartMonth,
		"source.rate_limit":          cfg.Source.RateLimit,
		"source.timeout":             cfg.Source.Timeout,
		"boundaries.owner":           cfg.Boundaries.Owner,
		"boundaries.repo":            cfg.Boundaries.Repo,
		"boundaries.path":            cfg.Boundaries.Path,
		"boundaries.ref":             cfg.Boundaries.Ref,
		"boundaries.github_token":    cfg.Boundaries.GitHubToken,
		"storage.type":               cfg.Storage.Type,
		"storage.data_dir":           cfg.Storage.DataDir,
		"storage.dsn":                cfg.Storage.DSN,
		"update.concurrency":         cfg.Update.Concurrency,
		"web.default_project":        cfg.Web.DefaultProject,
		"web.default_activity_level": cfg.Web.DefaultActivityLevel,
		"web.trend_top_n":            cfg.Web.TrendTopN,
		"log.level":                  cfg.Log.Level,
		"log.format":                 cfg.Log.Format,
		"log.file":                   cfg.Log.File,
	}
}

// Load loads configuration from path, or from geoeditors.yaml in the standard
// locations when path is empty. A missing config file is not an error.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range defaults(Default()) {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("GEOEDITORS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("geoeditors")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".geoeditors"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env files; earlier files win because godotenv never
// overwrites a variable that is already set.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
}

// applyEnvOverrides honours the unprefixed variables deployments already use.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" && cfg.Boundaries.GitHubToken == "" {
		cfg.Boundaries.GitHubToken = token
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = dsn
	}
}

// Validate checks values that would otherwise fail late and obscurely.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageFile, StorageSQLite:
	case StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if _, err := time.Parse("2006-01", c.Source.StartMonth); err != nil {
		return fmt.Errorf("invalid source.start_month %q: %w", c.Source.StartMonth, err)
	}
	if c.Update.Concurrency < 1 {
		c.Update.Concurrency = 1
	}
	if c.Source.RateLimit <= 0 {
		return fmt.Errorf("source.rate_limit must be positive")
	}
	if c.Web.TrendTopN < 1 {
		c.Web.TrendTopN = 1
	}
	return nil
}

// Addr returns the server's listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DataPath joins name onto the data directory.
func (c *Config) DataPath(name string) string {
	return filepath.Join(c.Storage.DataDir, name)
}
