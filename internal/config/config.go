package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"shopee-dash/internal/repo"
)

// Store drivers.
const (
	DriverSupabase = repo.DriverSupabase
	DriverPostgres = repo.DriverPostgres
	DriverSQLite   = repo.DriverSQLite
)

// Config holds runtime settings. Keys are flat and match the environment
// variable names in lower case, so a YAML file and the environment share one
// vocabulary.
type Config struct {
	AppEnv           string `koanf:"app_env"`
	LogLevel         string `koanf:"log_level"`
	LogFormat        string `koanf:"log_format" validate:"oneof=text json"`
	HTTPListenAddr   string `koanf:"http_listen_addr" validate:"required"`
	PublicBasePath   string `koanf:"public_base_path"`
	MetricsNamespace string `koanf:"metrics_namespace"`

	StoreDriver    string        `koanf:"store_driver" validate:"oneof=supabase postgres sqlite"`
	StoreTimeout   time.Duration `koanf:"store_timeout" validate:"gte=0"`
	SupabaseURL    string        `koanf:"supabase_url" validate:"omitempty,url"`
	SupabaseKey    string        `koanf:"supabase_key"`
	SupabaseTable  string        `koanf:"supabase_table"`
	DatabaseURL    string        `koanf:"database_url" validate:"required_if=StoreDriver postgres"`
	DatabaseSchema string        `koanf:"database_schema"`
	SQLitePath     string        `koanf:"sqlite_path" validate:"required_if=StoreDriver sqlite"`
	AutoMigrate    bool          `koanf:"auto_migrate"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`
	RedisTLS      bool   `koanf:"redis_tls"`
	CacheFilePath string `koanf:"cache_file_path"`

	ShopeeStatusURL string        `koanf:"shopee_status_url" validate:"omitempty,url"`
	ShopeePageURL   string        `koanf:"shopee_page_url" validate:"omitempty,url"`
	ShopeeRelayURL  string        `koanf:"shopee_relay_url" validate:"omitempty,url"`
	ShopeeTimeout   time.Duration `koanf:"shopee_timeout" validate:"gte=0"`
	ShopeeUserAgent string        `koanf:"shopee_user_agent"`

	DashboardPassword  string        `koanf:"dashboard_password"`
	AuthSecret         string        `koanf:"auth_secret"`
	AuthTokenTTL       time.Duration `koanf:"auth_token_ttl" validate:"gte=0"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
}

// Store returns the account store settings.
func (c *Config) Store() repo.OpenConfig {
	return repo.OpenConfig{
		Driver: c.StoreDriver,
		Supabase: repo.SupabaseConfig{
			URL:     c.SupabaseURL,
			APIKey:  c.SupabaseKey,
			Table:   c.SupabaseTable,
			Timeout: c.StoreTimeout,
		},
		DatabaseURL: c.DatabaseURL,
		Schema:      c.DatabaseSchema,
		SQLitePath:  c.SQLitePath,
		AutoMigrate: c.AutoMigrate,
	}
}

// Load reads CONFIG_FILE (optional) and then the environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom reads the YAML file at path, if any, overlays the environment,
// applies defaults and validates the result.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if path = strings.TrimSpace(path); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(key), value
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables")
	}

	cfg := new(Config)
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.AppEnv == "" {
		c.AppEnv = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.HTTPListenAddr == "" {
		c.HTTPListenAddr = ":8080"
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = "shopee_dash"
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if c.StoreDriver == "" {
		c.StoreDriver = DriverSupabase
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = 15 * time.Second
	}
	if c.SupabaseTable == "" {
		c.SupabaseTable = "shopee_accounts"
	}
	if c.DatabaseSchema == "" {
		c.DatabaseSchema = "public"
	}
	if c.CacheFilePath == "" {
		c.CacheFilePath = "data/shopee_accounts_backup.json"
	}
	if c.ShopeeTimeout == 0 {
		c.ShopeeTimeout = 15 * time.Second
	}
	if c.AuthTokenTTL == 0 {
		c.AuthTokenTTL = 24 * time.Hour
	}

	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins
	if len(c.CORSAllowedOrigins) == 0 {
		c.CORSAllowedOrigins = []string{"*"}
	}
}
