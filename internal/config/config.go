package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/taxid-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Sources  []model.RawSource `yaml:"sources" mapstructure:"sources"`
	Fetch    FetchConfig       `yaml:"fetch" mapstructure:"fetch"`
	Store    StoreConfig       `yaml:"store" mapstructure:"store"`
	Sink     SinkConfig        `yaml:"sink" mapstructure:"sink"`
	Registry RegistryConfig    `yaml:"registry" mapstructure:"registry"`
	Lookup   LookupConfig      `yaml:"lookup" mapstructure:"lookup"`
	Export   ExportConfig      `yaml:"export" mapstructure:"export"`
	Server   ServerConfig      `yaml:"server" mapstructure:"server"`
	Log      LogConfig         `yaml:"log" mapstructure:"log"`
}

// FetchConfig configures source feed downloads.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	InsecureTLS bool    `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	AutoMigrate bool   `yaml:"auto_migrate" mapstructure:"auto_migrate"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SinkConfig configures batched persistence.
type SinkConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// RegistryConfig configures the live business registry lookup.
type RegistryConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Disabled    bool    `yaml:"disabled" mapstructure:"disabled"`
	SourceLabel string  `yaml:"source_label" mapstructure:"source_label"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// LookupConfig configures query limits.
type LookupConfig struct {
	NameLimit     int    `yaml:"name_limit" mapstructure:"name_limit"`
	MaxBatch      int    `yaml:"max_batch" mapstructure:"max_batch"`
	NotFoundLabel string `yaml:"not_found_label" mapstructure:"not_found_label"`
}

// ExportConfig configures report and table file output.
type ExportConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// ServerConfig configures the lookup API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ConfigError reports a missing or invalid setting that store-dependent operations cannot run without.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Key + ": " + e.Reason
}

// DefaultSources are the FIA open-data feeds, in precedence order.
func DefaultSources() []model.RawSource {
	return []model.RawSource{
		{URL: "https://eip.fia.gov.tw/data/BGMOPEN99X.csv", Label: "全國各級學校"},
		{URL: "https://www.fia.gov.tw/download/9bc4de1485014443b518beb37d8f35fe", Label: "行政院所屬機關"},
		{URL: "https://www.fia.gov.tw/download/2d35e0525c484964a84798baf39c72d2", Label: "地方政府機關"},
		{URL: "https://eip.fia.gov.tw/data/BGMOPEN99.csv", Label: "非營利事業"},
	}
}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables still win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TAXID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.user_agent", "taxid-cli/1.0")
	v.SetDefault("fetch.insecure_tls", true)
	v.SetDefault("fetch.rate_per_sec", 0.0)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.table", "unified_numbers")
	v.SetDefault("store.timeout_secs", 30)
	v.SetDefault("store.auto_migrate", true)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("sink.batch_size", 1000)
	v.SetDefault("registry.base_url", "https://data.gcis.nat.gov.tw/od/data/api/5F64D864-61CB-4D0D-8AD9-492047CC1EA6")
	v.SetDefault("registry.timeout_secs", 5)
	v.SetDefault("registry.disabled", false)
	v.SetDefault("registry.source_label", "經濟部商工登記")
	v.SetDefault("registry.rate_per_sec", 0.0)
	v.SetDefault("lookup.name_limit", 50)
	v.SetDefault("lookup.max_batch", 500)
	v.SetDefault("lookup.not_found_label", "查無資料")
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.formats", []string{"csv", "xlsx"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Hosted Postgres providers export DATABASE_URL.
	if cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
	}

	return &cfg, nil
}

// LoadSources reads an ordered source list from a YAML file of the form
// `sources: [{url: ..., label: ...}]`.
func LoadSources(path string) ([]model.RawSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read sources file %s", path)
	}

	var doc struct {
		Sources []model.RawSource `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "config: parse sources file %s", path)
	}

	for i, s := range doc.Sources {
		if strings.TrimSpace(s.URL) == "" || strings.TrimSpace(s.Label) == "" {
			return nil, eris.Errorf("config: sources file %s: entry %d needs url and label", path, i)
		}
	}
	if len(doc.Sources) == 0 {
		return nil, eris.Errorf("config: sources file %s lists no sources", path)
	}

	return doc.Sources, nil
}

// StoreDSN returns the database URL for the configured driver.
// SQLite falls back to a local file; Postgres has no usable default.
func (c *Config) StoreDSN() (string, error) {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			return "taxid.db", nil
		}
		return c.Store.DatabaseURL, nil
	case "postgres", "":
		if c.Store.DatabaseURL == "" {
			return "", &ConfigError{Key: "store.database_url", Reason: "not set (TAXID_STORE_DATABASE_URL or DATABASE_URL)"}
		}
		return c.Store.DatabaseURL, nil
	default:
		return "", &ConfigError{Key: "store.driver", Reason: "unsupported driver " + c.Store.Driver}
	}
}

// Validate checks that the settings a command needs are present and sane.
// mode is one of "sync", "serve", or "lookup".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "sync":
		if len(c.Sources) == 0 {
			problems = append(problems, "sources must list at least one feed")
		}
		for i, s := range c.Sources {
			if s.URL == "" || s.Label == "" {
				problems = append(problems, fmt.Sprintf("sources[%d] needs url and label", i))
			}
		}
		for _, f := range c.Export.Formats {
			if f != "csv" && f != "xlsx" {
				problems = append(problems, fmt.Sprintf("export.formats: unknown format %q", f))
			}
		}
		if c.Sink.BatchSize <= 0 {
			problems = append(problems, "sink.batch_size must be positive")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
		}
		fallthrough
	case "lookup":
		if !c.Registry.Disabled && c.Registry.BaseURL == "" {
			problems = append(problems, "registry.base_url is required unless registry.disabled")
		}
		if c.Lookup.NameLimit <= 0 {
			problems = append(problems, "lookup.name_limit must be positive")
		}
		if c.Lookup.MaxBatch <= 0 {
			problems = append(problems, "lookup.max_batch must be positive")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// Seconds converts a seconds setting to a duration, using def when unset.
func Seconds(secs int, def time.Duration) time.Duration {
	if secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
