package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"market_terminal/internal/models"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs"
	defaultConfigFile = "values_local.yaml"

	redacted = "***"
)

var secretKeys = []string{"telegram.token", "db_dsn", "redis.password"}

type Config struct {
	Service struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"service"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Stream StreamConfig `mapstructure:"stream"`
	API    APIConfig    `mapstructure:"api"`
	Load   LoadConfig   `mapstructure:"load"`

	// Presets maps a preset name (VN30, HOSE, ...) to its symbol list.
	Presets map[string][]string `mapstructure:"presets"`
	// Sectors is the board universe; the first group is the primary basket.
	Sectors []models.SymbolGroup `mapstructure:"sectors"`

	Preferences PreferencesConfig `mapstructure:"preferences"`
	DB          string            `mapstructure:"db_dsn"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Tracing     TracingConfig     `mapstructure:"tracing"`

	settings map[string]any
}

type StreamConfig struct {
	URL              string        `mapstructure:"url"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	Jitter           time.Duration `mapstructure:"jitter"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoadConfig struct {
	Preset  string `mapstructure:"preset"`
	Years   int    `mapstructure:"years"`
	OnStart bool   `mapstructure:"on_start"`
}

type PreferencesConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	Profile string `mapstructure:"profile"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelegramConfig struct {
	Token    string  `mapstructure:"token"`
	ChatID   int64   `mapstructure:"chat_id"`
	MinScore float64 `mapstructure:"min_score"`
}

type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// NewConfig reads configs/$CONFIG_FILE (values_local.yaml by default) after
// loading .env into the process environment.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = defaultConfigFile
	}
	return Load(filepath.Join(configDir, name))
}

// Load reads one yaml file. Environment variables override file values,
// with dots replaced by underscores (STREAM_URL, REDIS_ADDR, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the historical names still work
	_ = v.BindEnv("telegram.token", "TELEGRAM_TOKEN")
	_ = v.BindEnv("db_dsn", "DATABASE_DSN", "DB_DSN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.settings = v.AllSettings()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.port", 8080)
	v.SetDefault("log.level", "info")

	v.SetDefault("stream.url", "ws://localhost:8000/ws/market")
	v.SetDefault("stream.base_delay", "1s")
	v.SetDefault("stream.jitter", "500ms")
	v.SetDefault("stream.max_delay", "30s")
	v.SetDefault("stream.ping_period", "20s")
	v.SetDefault("stream.handshake_timeout", "10s")
	v.SetDefault("stream.read_limit", 1<<20)

	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("load.preset", "VN30")
	v.SetDefault("load.years", 3)
	v.SetDefault("load.on_start", true)

	v.SetDefault("preferences.backend", "file")
	v.SetDefault("preferences.path", "data/preferences.json")
	v.SetDefault("preferences.profile", "default")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("telegram.min_score", 0.7)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
}

func (c *Config) Validate() error {
	s := c.Stream
	if s.URL == "" {
		return errors.New("stream.url is required")
	}
	if s.BaseDelay <= 0 || s.MaxDelay <= 0 || s.Jitter < 0 {
		return errors.Errorf("stream backoff must be positive: base=%s jitter=%s max=%s", s.BaseDelay, s.Jitter, s.MaxDelay)
	}
	if s.MaxDelay < s.BaseDelay {
		return errors.Errorf("stream.max_delay %s is below stream.base_delay %s", s.MaxDelay, s.BaseDelay)
	}
	switch c.Preferences.Backend {
	case "file", "postgres", "redis":
	default:
		return errors.Errorf("unknown preferences backend %q", c.Preferences.Backend)
	}
	if c.Preferences.Backend == "postgres" && c.DB == "" {
		return errors.New("db_dsn is required for the postgres preferences backend")
	}
	if c.Load.Preset != "" && len(c.Presets) > 0 {
		if _, ok := c.Preset(c.Load.Preset); !ok {
			return errors.Errorf("load.preset %q is not in presets", c.Load.Preset)
		}
	}
	return nil
}

// Preset returns the symbols of a preset. Names are case-insensitive since
// viper lowercases map keys.
func (c *Config) Preset(name string) ([]string, bool) {
	syms, ok := c.Presets[strings.ToLower(name)]
	return syms, ok
}

// Addr is the listen address of the HTTP surface.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.Port)
}

// Dump renders the effective settings as yaml with secrets masked.
func (c *Config) Dump() string {
	settings := c.settings
	if settings == nil {
		return ""
	}
	masked := make(map[string]any, len(settings))
	for k, v := range settings {
		masked[k] = v
	}
	for _, key := range secretKeys {
		mask(masked, strings.Split(key, "."))
	}

	bs, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("<config dump failed: %v>", err)
	}
	return string(bs)
}

func mask(m map[string]any, path []string) {
	v, ok := m[path[0]]
	if !ok {
		return
	}
	if len(path) == 1 {
		if s, isStr := v.(string); isStr && s == "" {
			return
		}
		m[path[0]] = redacted
		return
	}
	inner, ok := v.(map[string]any)
	if !ok {
		return
	}
	cp := make(map[string]any, len(inner))
	for k, iv := range inner {
		cp[k] = iv
	}
	mask(cp, path[1:])
	m[path[0]] = cp
}
